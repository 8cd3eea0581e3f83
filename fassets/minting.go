package fassets

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shield-xrpfinance/shield-bridge/flare"
	"github.com/shield-xrpfinance/shield-bridge/models"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNoAgentAvailable        = errors.New("no agent with enough free collateral lots")
	ErrReservationEventMissing = errors.New("reservation receipt missing CollateralReserved event")
	ErrBadPaymentReference     = errors.New("reservation payment reference is empty or zero")
	ErrTxReverted              = errors.New("transaction reverted")
	ErrReceiptTimeout          = errors.New("timed out waiting for transaction receipt")
)

const (
	receiptPollInterval = 3 * time.Second
	receiptPollTimeout  = 3 * time.Minute

	submitMaxAttempts = 4
)

// CollateralReservation is the decoded outcome of a successful
// reserveCollateral transaction. PaymentReference is the 0x-prefixed hex of
// the 32-byte reference the minter must attach to the underlying payment.
type CollateralReservation struct {
	ReservationId       *big.Int
	AgentVault          string
	PaymentAddress      string
	PaymentReference    string
	ValueUBA            *big.Int
	FeeUBA              *big.Int
	LastUnderlyingBlock *big.Int
	TxHash              string
}

// Minter is the write-side of the asset manager: collateral reservation,
// minting execution and the redemption round-trip.
type Minter interface {
	LotSize() (*big.Int, error)
	FindBestAgent(lotsRequired int64) (*models.Agent, error)
	ReserveCollateral(agent *models.Agent, lots int64) (*CollateralReservation, error)
	ExecuteMinting(proof []byte, reservationId *big.Int) (string, error)
	RequestRedemption(lots int64, underlyingAddress string) (*RedemptionRequestedEvent, error)
	ConfirmRedemptionPayment(proof []byte, requestId *big.Int) (string, error)
}

type MintingClient struct {
	client  flare.FlareClient
	manager AssetManagerContract
	cache   *AgentCache
}

func NewMintingClient(client flare.FlareClient, manager AssetManagerContract, cache *AgentCache) *MintingClient {
	return &MintingClient{
		client:  client,
		manager: manager,
		cache:   cache,
	}
}

func (x *MintingClient) LotSize() (*big.Int, error) {
	return x.manager.LotSize()
}

// FindBestAgent prefers the warm cache; when the cache is disabled or holds
// no qualifying agent even after a forced refresh, it falls back to a live
// directory scan.
func (x *MintingClient) FindBestAgent(lotsRequired int64) (*models.Agent, error) {
	if x.cache != nil {
		if _, err := x.cache.GetCachedAgents(false); err == nil {
			if agent := x.cache.FindBestAgentFromCache(lotsRequired); agent != nil {
				return agent, nil
			}
		}
		// cache can lag behind on-chain collateral moves; one forced refresh
		// before declaring no capacity
		if _, err := x.cache.GetCachedAgents(true); err == nil {
			if agent := x.cache.FindBestAgentFromCache(lotsRequired); agent != nil {
				return agent, nil
			}
			return nil, ErrNoAgentAvailable
		}
	}
	return x.findBestAgentLive(lotsRequired)
}

func (x *MintingClient) findBestAgentLive(lotsRequired int64) (*models.Agent, error) {
	listed, _, err := x.manager.GetAvailableAgents(big.NewInt(0), big.NewInt(agentListPageSize))
	if err != nil {
		return nil, fmt.Errorf("error listing agents: %w", err)
	}

	var best *models.Agent
	for _, available := range listed {
		if !available.FreeCollateralLots.IsInt64() || available.FreeCollateralLots.Int64() < lotsRequired {
			continue
		}
		info, err := x.manager.GetAgentInfo(available.AgentVault)
		if err != nil {
			log.Warn("[MINTING] Error fetching agent ", available.AgentVault.Hex(), ": ", err)
			continue
		}
		if info.Status != AgentStatusNormal {
			continue
		}
		agent := models.Agent{
			VaultAddress:       available.AgentVault.Hex(),
			UnderlyingAddress:  info.UnderlyingAddressString,
			FeeBips:            uint16(info.FeeBIPS.Uint64()),
			FreeCollateralLots: info.FreeCollateralLots.Int64(),
			Active:             true,
			LastUpdated:        time.Now(),
		}
		if best == nil || agent.FeeBips < best.FeeBips {
			found := agent
			best = &found
		}
	}
	if best == nil {
		return nil, ErrNoAgentAvailable
	}
	return best, nil
}

// ReserveCollateral submits a payable reserveCollateral transaction against
// the chosen agent and decodes the CollateralReserved event from the receipt.
// The reservation is a paid, slot-consuming mutation, so there are no blind
// retries past the fee-escalation loop; a missing event or an unusable
// payment reference after a mined transaction is a hard error for the caller
// to surface.
func (x *MintingClient) ReserveCollateral(agent *models.Agent, lots int64) (*CollateralReservation, error) {
	fee, err := x.manager.CollateralReservationFee(big.NewInt(lots))
	if err != nil {
		return nil, fmt.Errorf("error fetching reservation fee: %w", err)
	}

	opts, err := flare.NewTransactor(x.client)
	if err != nil {
		return nil, err
	}
	opts.Value = fee

	agentVault := common.HexToAddress(agent.VaultAddress)
	maxFeeBIPS := big.NewInt(int64(agent.FeeBips))

	tx, err := flare.SubmitWithEscalation(x.client, opts, flare.NewEscalationState(submitMaxAttempts),
		func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return x.manager.ReserveCollateral(opts, agentVault, big.NewInt(lots), maxFeeBIPS, common.Address{})
		})
	if err != nil {
		return nil, fmt.Errorf("error submitting reservation: %w", err)
	}

	log.Info("[MINTING] Submitted collateral reservation: ", tx.Hash().Hex())

	receipt, err := x.waitForReceipt(tx.Hash().Hex())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: reservation tx %s", ErrTxReverted, tx.Hash().Hex())
	}

	event, err := x.reservationEventFromReceipt(receipt)
	if err != nil {
		return nil, err
	}

	reference := common.Bytes2Hex(event.PaymentReference[:])
	if bytes.Equal(event.PaymentReference[:], make([]byte, 32)) {
		return nil, fmt.Errorf("%w: tx %s", ErrBadPaymentReference, tx.Hash().Hex())
	}

	return &CollateralReservation{
		ReservationId:       event.CollateralReservationId,
		AgentVault:          event.AgentVault.Hex(),
		PaymentAddress:      event.PaymentAddress,
		PaymentReference:    "0x" + reference,
		ValueUBA:            event.ValueUBA,
		FeeUBA:              event.FeeUBA,
		LastUnderlyingBlock: event.LastUnderlyingBlock,
		TxHash:              tx.Hash().Hex(),
	}, nil
}

func (x *MintingClient) reservationEventFromReceipt(receipt *types.Receipt) (*CollateralReservedEvent, error) {
	managerAddress := x.manager.Address()
	topic := CollateralReservedTopic()
	for _, entry := range receipt.Logs {
		if entry.Address != managerAddress {
			continue
		}
		if len(entry.Topics) == 0 || entry.Topics[0] != topic {
			continue
		}
		event, err := ParseCollateralReserved(*entry)
		if err != nil {
			return nil, fmt.Errorf("error decoding CollateralReserved log: %w", err)
		}
		return event, nil
	}
	return nil, ErrReservationEventMissing
}

// ExecuteMinting presents the payment attestation proof to the asset manager
// and returns the mined transaction hash.
func (x *MintingClient) ExecuteMinting(proof []byte, reservationId *big.Int) (string, error) {
	opts, err := flare.NewTransactor(x.client)
	if err != nil {
		return "", err
	}

	tx, err := flare.SubmitWithEscalation(x.client, opts, flare.NewEscalationState(submitMaxAttempts),
		func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return x.manager.ExecuteMinting(opts, proof, reservationId)
		})
	if err != nil {
		return "", fmt.Errorf("error submitting executeMinting: %w", err)
	}

	log.Info("[MINTING] Submitted executeMinting: ", tx.Hash().Hex())

	receipt, err := x.waitForReceipt(tx.Hash().Hex())
	if err != nil {
		return "", err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("%w: executeMinting tx %s", ErrTxReverted, tx.Hash().Hex())
	}
	return tx.Hash().Hex(), nil
}

func (x *MintingClient) RequestRedemption(lots int64, underlyingAddress string) (*RedemptionRequestedEvent, error) {
	opts, err := flare.NewTransactor(x.client)
	if err != nil {
		return nil, err
	}

	tx, err := flare.SubmitWithEscalation(x.client, opts, flare.NewEscalationState(submitMaxAttempts),
		func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return x.manager.Redeem(opts, big.NewInt(lots), underlyingAddress)
		})
	if err != nil {
		return nil, fmt.Errorf("error submitting redeem: %w", err)
	}

	receipt, err := x.waitForReceipt(tx.Hash().Hex())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: redeem tx %s", ErrTxReverted, tx.Hash().Hex())
	}

	managerAddress := x.manager.Address()
	topic := RedemptionRequestedTopic()
	for _, entry := range receipt.Logs {
		if entry.Address != managerAddress || len(entry.Topics) == 0 || entry.Topics[0] != topic {
			continue
		}
		return ParseRedemptionRequested(*entry)
	}
	return nil, errors.New("redeem receipt missing RedemptionRequested event")
}

func (x *MintingClient) ConfirmRedemptionPayment(proof []byte, requestId *big.Int) (string, error) {
	opts, err := flare.NewTransactor(x.client)
	if err != nil {
		return "", err
	}

	tx, err := flare.SubmitWithEscalation(x.client, opts, flare.NewEscalationState(submitMaxAttempts),
		func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return x.manager.ConfirmRedemptionPayment(opts, proof, requestId)
		})
	if err != nil {
		return "", fmt.Errorf("error submitting confirmRedemptionPayment: %w", err)
	}

	receipt, err := x.waitForReceipt(tx.Hash().Hex())
	if err != nil {
		return "", err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("%w: confirmRedemptionPayment tx %s", ErrTxReverted, tx.Hash().Hex())
	}
	return tx.Hash().Hex(), nil
}

func (x *MintingClient) waitForReceipt(txHash string) (*types.Receipt, error) {
	return waitForReceipt(x.client, txHash)
}

func waitForReceipt(client flare.FlareClient, txHash string) (*types.Receipt, error) {
	deadline := time.Now().Add(receiptPollTimeout)
	for {
		receipt, err := client.GetTransactionReceipt(txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, txHash)
		}
		time.Sleep(receiptPollInterval)
	}
}
