package bridge

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shield-xrpfinance/shield-bridge/app"
	"github.com/shield-xrpfinance/shield-bridge/attestation"
	"github.com/shield-xrpfinance/shield-bridge/fassets"
	"github.com/shield-xrpfinance/shield-bridge/flare"
	"github.com/shield-xrpfinance/shield-bridge/models"
	"github.com/shield-xrpfinance/shield-bridge/xrpl"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

var (
	ErrInvalidTransition   = errors.New("bridge status transition not allowed")
	ErrPaymentNotValidated = errors.New("source payment not yet validated")
	ErrPaymentMismatch     = errors.New("source payment does not match bridge record")
	ErrReservationExpired  = errors.New("collateral reservation expired")
)

// reservation validity window on the wrapped side; the agent releases the
// reserved lots if no payment proof lands in time
const reservationWindow = 3 * time.Minute

// Orchestrator drives a deposit through the bridge state machine. It owns the
// happy path; the watchdog owns recovery. Both funnel completion through the
// shared Finalizer.
type Orchestrator struct {
	store        Store
	xrpl         xrpl.Client
	minter       fassets.Minter
	attestation  attestation.Client
	flareClient  flare.FlareClient
	finalizer    *Finalizer
	fassetToken  common.Address
	mintReceiver common.Address
}

func NewOrchestrator(
	store Store,
	xrplClient xrpl.Client,
	minter fassets.Minter,
	attestationClient attestation.Client,
	flareClient flare.FlareClient,
	finalizer *Finalizer,
	fassetToken common.Address,
	mintReceiver common.Address,
) *Orchestrator {
	return &Orchestrator{
		store:        store,
		xrpl:         xrplClient,
		minter:       minter,
		attestation:  attestationClient,
		flareClient:  flareClient,
		finalizer:    finalizer,
		fassetToken:  fassetToken,
		mintReceiver: mintReceiver,
	}
}

// InitiateDeposit validates the amount, creates the bridge record and starts
// collateral reservation in the background. The caller gets the bridge id
// immediately and polls status while reservation proceeds.
func (x *Orchestrator) InitiateDeposit(sourceAmount string) (*models.Bridge, error) {
	lotSize, err := x.minter.LotSize()
	if err != nil {
		return nil, fmt.Errorf("error fetching lot size: %w", err)
	}
	lots, err := fassets.CalculateLotsFromString(sourceAmount, lotSize)
	if err != nil {
		return nil, err
	}
	rounded := fassets.RoundedAmount(lots, lotSize)

	now := time.Now()
	bridge := &models.Bridge{
		BridgeId:      uuid.NewString(),
		Status:        models.BridgeStatusPending,
		SourceAmount:  sourceAmount,
		RoundedAmount: rounded.String(),
		Lots:          lots,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := x.store.InsertBridge(bridge); err != nil {
		return nil, err
	}

	app.ProcessMetrics.DepositsStarted.Inc()
	log.Info("[ORCHESTRATOR] Created bridge ", bridge.BridgeId, " for ", sourceAmount, " drops (", lots, " lots)")

	go x.reserve(bridge.BridgeId, lots)

	return bridge, nil
}

// reserve drives pending → awaiting_payment: agent selection, fee-attached
// reservation transaction, reservation event decode. Any failure terminates
// the bridge with last_error set.
func (x *Orchestrator) reserve(bridgeId string, lots int64) {
	if err := x.advance(bridgeId, models.BridgeStatusCreating, nil); err != nil {
		x.markFailed(bridgeId, err)
		return
	}

	agent, err := x.minter.FindBestAgent(lots)
	if err != nil {
		x.markFailed(bridgeId, err)
		return
	}

	if err := x.advance(bridgeId, models.BridgeStatusReservingCollateral, bson.M{
		"agent_vault": agent.VaultAddress,
	}); err != nil {
		x.markFailed(bridgeId, err)
		return
	}

	reservation, err := x.minter.ReserveCollateral(agent, lots)
	if err != nil {
		x.markFailed(bridgeId, err)
		return
	}

	if err := x.advance(bridgeId, models.BridgeStatusAwaitingPayment, bson.M{
		"collateral_reservation_id": reservation.ReservationId.String(),
		"payment_reference":         reservation.PaymentReference,
		"payment_address":           reservation.PaymentAddress,
		"reservation_expiry":        time.Now().Add(reservationWindow),
	}); err != nil {
		x.markFailed(bridgeId, err)
		return
	}

	log.Info("[ORCHESTRATOR] Bridge ", bridgeId, " awaiting payment to ", reservation.PaymentAddress,
		" reference ", reservation.PaymentReference)
}

// ConfirmPayment verifies the depositor's source-ledger payment and drives
// the bridge through proof retrieval, minting and finalization.
func (x *Orchestrator) ConfirmPayment(bridgeId string, sourceTxHash string) error {
	bridge, err := x.store.GetBridgeById(bridgeId)
	if err != nil {
		return err
	}
	if models.IsTerminalStatus(bridge.Status) {
		return fmt.Errorf("%w: bridge %s is %s", ErrInvalidTransition, bridgeId, bridge.Status)
	}

	if bridge.Status == models.BridgeStatusAwaitingPayment {
		if err := x.verifyPayment(bridge, sourceTxHash); err != nil {
			if errors.Is(err, ErrReservationExpired) || errors.Is(err, ErrPaymentMismatch) {
				x.markFailed(bridgeId, err)
			}
			return err
		}
		if err := x.advance(bridgeId, models.BridgeStatusSourceConfirmed, bson.M{
			"source_tx_hash": sourceTxHash,
		}); err != nil {
			return err
		}
		bridge.SourceTxHash = sourceTxHash
	}

	return x.mintAndFinalize(bridgeId)
}

func (x *Orchestrator) verifyPayment(bridge *models.Bridge, sourceTxHash string) error {
	if time.Now().After(bridge.ReservationExpiry) {
		return fmt.Errorf("%w: bridge %s expired at %s",
			ErrReservationExpired, bridge.BridgeId, bridge.ReservationExpiry)
	}

	tx, err := x.xrpl.GetTransaction(sourceTxHash)
	if err != nil {
		return fmt.Errorf("error looking up source tx %s: %w", sourceTxHash, err)
	}
	if !tx.Validated {
		return fmt.Errorf("%w: %s", ErrPaymentNotValidated, sourceTxHash)
	}
	if tx.Meta.TransactionResult != "tesSUCCESS" {
		return fmt.Errorf("%w: tx %s result %s", ErrPaymentMismatch, sourceTxHash, tx.Meta.TransactionResult)
	}
	if !strings.EqualFold(tx.Destination, bridge.PaymentAddress) {
		return fmt.Errorf("%w: tx %s paid %s, expected %s",
			ErrPaymentMismatch, sourceTxHash, tx.Destination, bridge.PaymentAddress)
	}
	if !strings.EqualFold(tx.PaymentReference(), bridge.PaymentReference) {
		return fmt.Errorf("%w: tx %s reference %s, expected %s",
			ErrPaymentMismatch, sourceTxHash, tx.PaymentReference(), bridge.PaymentReference)
	}
	return nil
}

// mintAndFinalize drives source_confirmed → completed. It re-reads the
// bridge at each step so a crash-resumed invocation picks up where the
// previous run stopped.
func (x *Orchestrator) mintAndFinalize(bridgeId string) error {
	bridge, err := x.store.GetBridgeById(bridgeId)
	if err != nil {
		return err
	}

	// already minted: only finalization is left
	if bridge.DestMintTxHash != "" {
		return x.finalizer.FinalizeBridge(bridgeId)
	}

	if err := x.advance(bridgeId, models.BridgeStatusGeneratingProof, nil); err != nil {
		return err
	}

	proof, err := x.attestation.RetrievePaymentProof(bridge.SourceTxHash)
	if err != nil {
		return fmt.Errorf("error retrieving proof for bridge %s: %w", bridgeId, err)
	}
	if !strings.EqualFold(attestation.ProofPaymentReference(proof), bridge.PaymentReference) {
		err := fmt.Errorf("proof reference %s does not match bridge %s reference %s",
			attestation.ProofPaymentReference(proof), bridgeId, bridge.PaymentReference)
		x.markFailed(bridgeId, err)
		return err
	}
	encoded, err := attestation.EncodeProof(proof)
	if err != nil {
		return fmt.Errorf("error encoding proof for bridge %s: %w", bridgeId, err)
	}

	if err := x.advance(bridgeId, models.BridgeStatusProofGenerated, nil); err != nil {
		return err
	}

	reservationId, ok := new(big.Int).SetString(bridge.CollateralReservationId, 10)
	if !ok {
		err := fmt.Errorf("bridge %s has invalid reservation id %q", bridgeId, bridge.CollateralReservationId)
		x.markFailed(bridgeId, err)
		return err
	}

	if err := x.advance(bridgeId, models.BridgeStatusMinting, nil); err != nil {
		return err
	}

	mintTxHash, err := x.minter.ExecuteMinting(encoded, reservationId)
	if err != nil {
		return fmt.Errorf("error executing mint for bridge %s: %w", bridgeId, err)
	}

	mintedAmount, err := x.mintedAmountFromReceipt(mintTxHash)
	if err != nil {
		return fmt.Errorf("error recovering minted amount for bridge %s: %w", bridgeId, err)
	}

	// persist before finalizing so a crash here resumes via the idempotency
	// check instead of re-minting
	if err := x.store.UpdateBridge(bridgeId, bson.M{
		"dest_mint_tx_hash": mintTxHash,
		"minted_amount":     mintedAmount.String(),
	}); err != nil {
		return err
	}

	return x.finalizer.FinalizeBridge(bridgeId)
}

func (x *Orchestrator) mintedAmountFromReceipt(mintTxHash string) (*big.Int, error) {
	return mintedAmountFromReceipt(x.flareClient, x.fassetToken, x.mintReceiver, mintTxHash)
}

// mintedAmountFromReceipt recovers the exact minted amount from the wrapped
// token's Transfer log inside the mint transaction's receipt. The mint event
// and the transfer are separate log entries correlated only by transaction
// hash and recipient, so the amount is never assumed from the mint event.
func mintedAmountFromReceipt(client flare.FlareClient, token common.Address, receiver common.Address, mintTxHash string) (*big.Int, error) {
	receipt, err := client.GetTransactionReceipt(mintTxHash)
	if err != nil {
		return nil, err
	}
	transferTopic := fassets.TransferTopic()
	for _, entry := range receipt.Logs {
		if entry.Address != token {
			continue
		}
		if len(entry.Topics) == 0 || entry.Topics[0] != transferTopic {
			continue
		}
		transfer, err := fassets.ParseTransfer(*entry)
		if err != nil {
			return nil, err
		}
		if transfer.To != receiver {
			continue
		}
		return transfer.Value, nil
	}
	return nil, fmt.Errorf("no wrapped token transfer to %s in tx %s", receiver.Hex(), mintTxHash)
}

// Cancel moves a non-terminal bridge to cancelled.
func (x *Orchestrator) Cancel(bridgeId string) error {
	bridge, err := x.store.GetBridgeById(bridgeId)
	if err != nil {
		return err
	}
	if !models.CanTransition(bridge.Status, models.BridgeStatusCancelled) {
		return fmt.Errorf("%w: bridge %s is %s", ErrInvalidTransition, bridgeId, bridge.Status)
	}
	return x.store.UpdateBridge(bridgeId, bson.M{"status": models.BridgeStatusCancelled})
}

// advance moves the bridge to the next status after a transition-guard check,
// applying any extra fields in the same write. A bridge already at or beyond
// the target is a no-op so a retried handler resumes where the previous
// invocation stopped instead of erroring on its own earlier transition.
func (x *Orchestrator) advance(bridgeId string, to string, extra bson.M) error {
	bridge, err := x.store.GetBridgeById(bridgeId)
	if err != nil {
		return err
	}
	if !models.IsTerminalStatus(bridge.Status) && models.StatusReached(bridge.Status, to) {
		log.Debug("[ORCHESTRATOR] Bridge ", bridgeId, " already at ", bridge.Status, ", skipping ", to)
		return nil
	}
	if !models.CanTransition(bridge.Status, to) {
		return fmt.Errorf("%w: bridge %s %s -> %s", ErrInvalidTransition, bridgeId, bridge.Status, to)
	}
	patch := bson.M{"status": to}
	for key, value := range extra {
		patch[key] = value
	}
	return x.store.UpdateBridge(bridgeId, patch)
}

// markFailed is status-filtered so a bridge that went terminal concurrently
// (cancelled, or completed by the watchdog) is never dragged back to failed.
func (x *Orchestrator) markFailed(bridgeId string, cause error) {
	log.Error("[ORCHESTRATOR] Bridge ", bridgeId, " failed: ", cause)
	failed, err := x.store.UpdateBridgeIfStatus(bridgeId, models.NonTerminalStatuses(), bson.M{
		"status":     models.BridgeStatusFailed,
		"last_error": cause.Error(),
	})
	if err != nil {
		log.Error("[ORCHESTRATOR] Error marking bridge ", bridgeId, " failed: ", err)
		return
	}
	if !failed {
		log.Debug("[ORCHESTRATOR] Bridge ", bridgeId, " already terminal, leaving as is")
		return
	}
	app.ProcessMetrics.BridgesFailed.Inc()
}
