package bridge

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shield-xrpfinance/shield-bridge/app"
	"github.com/shield-xrpfinance/shield-bridge/fassets"
	"github.com/shield-xrpfinance/shield-bridge/models"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

// Finalizer owns the last leg of a bridge: deposit the minted wrapped tokens
// into the yield vault and mark the bridge completed. It is invoked by both
// the orchestrator's happy path and the watchdog's recovery path, so it must
// tolerate being called twice for the same bridge.
type Finalizer struct {
	store    Store
	vault    fassets.Vault
	receiver common.Address
}

func NewFinalizer(store Store, vault fassets.Vault, receiver common.Address) *Finalizer {
	return &Finalizer{
		store:    store,
		vault:    vault,
		receiver: receiver,
	}
}

// finalizeClaimStatuses are the statuses a finalizer may claim the vault
// deposit from.
var finalizeClaimStatuses = []string{
	models.BridgeStatusSourceConfirmed,
	models.BridgeStatusGeneratingProof,
	models.BridgeStatusProofGenerated,
	models.BridgeStatusMinting,
}

// FinalizeBridge mints vault shares for the bridge's minted amount and marks
// it completed. An already-completed bridge is a silent no-op; a bridge with
// no recorded minted amount cannot be finalized. The vault deposit is claimed
// with a status-filtered write, so the primary flow and the watchdog racing
// over the same bridge produce exactly one deposit: the loser observes an
// unmatched write and backs off.
func (x *Finalizer) FinalizeBridge(bridgeId string) error {
	bridge, err := x.store.GetBridgeById(bridgeId)
	if err != nil {
		return err
	}

	if bridge.Status == models.BridgeStatusCompleted {
		log.Debug("[FINALIZER] Bridge ", bridgeId, " already completed, skipping")
		return nil
	}
	if models.IsTerminalStatus(bridge.Status) {
		return fmt.Errorf("bridge %s is terminal (%s), refusing to finalize", bridgeId, bridge.Status)
	}
	if bridge.DestMintTxHash == "" || bridge.MintedAmount == "" {
		return fmt.Errorf("bridge %s has no recorded mint, cannot finalize", bridgeId)
	}

	amount, ok := new(big.Int).SetString(bridge.MintedAmount, 10)
	if !ok {
		return fmt.Errorf("bridge %s has invalid minted amount %q", bridgeId, bridge.MintedAmount)
	}

	if bridge.Status == models.BridgeStatusVaultMinting {
		// a previous run claimed the deposit; resume only when its vault tx
		// is on record, otherwise that run may still be in flight
		if bridge.VaultDepositTxHash == "" {
			log.Debug("[FINALIZER] Bridge ", bridgeId, " deposit already claimed, skipping")
			return nil
		}
		return x.complete(bridgeId, bridge.VaultDepositTxHash)
	}

	claimed, err := x.store.UpdateBridgeIfStatus(bridgeId, finalizeClaimStatuses, bson.M{
		"status": models.BridgeStatusVaultMinting,
	})
	if err != nil {
		return err
	}
	if !claimed {
		log.Debug("[FINALIZER] Bridge ", bridgeId, " claimed by a concurrent finalizer, skipping")
		return nil
	}

	vaultTx, err := x.vault.Deposit(amount, x.receiver)
	if err != nil {
		return fmt.Errorf("error depositing into vault for bridge %s: %w", bridgeId, err)
	}
	if err := x.store.UpdateBridge(bridgeId, bson.M{
		"vault_deposit_tx_hash": vaultTx,
	}); err != nil {
		return err
	}

	return x.complete(bridgeId, vaultTx)
}

func (x *Finalizer) complete(bridgeId string, vaultTx string) error {
	if err := x.store.UpdateBridge(bridgeId, bson.M{
		"status": models.BridgeStatusCompleted,
	}); err != nil {
		return err
	}
	app.ProcessMetrics.BridgesCompleted.Inc()
	log.Info("[FINALIZER] Completed bridge ", bridgeId, " vault tx ", vaultTx)
	return nil
}
