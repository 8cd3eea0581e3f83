package bridge

import (
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shield-xrpfinance/shield-bridge/app"
	"github.com/shield-xrpfinance/shield-bridge/fassets"
	"github.com/shield-xrpfinance/shield-bridge/flare"
	"github.com/shield-xrpfinance/shield-bridge/models"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	WatchdogName = "deposit watchdog"

	// mongo-lock resource guarding the scan cycle; a second instance failing
	// to acquire it skips the cycle instead of double-scanning
	watchdogLockResource = "watchdog"
)

// WatchdogRunner reconciles on-chain truth against persisted bridge state: a
// deposit whose payment was confirmed but whose mint completion was never
// observed (crash, dropped event, race) is found by scanning the asset
// manager's MintingExecuted log and driven to completion.
type WatchdogRunner struct {
	store          Store
	client         flare.FlareClient
	finalizer      *Finalizer
	managerAddress common.Address
	fassetToken    common.Address
	mintReceiver   common.Address
	lookbackBlocks int64

	currentBlock uint64
}

func NewWatchdogRunner(
	store Store,
	client flare.FlareClient,
	finalizer *Finalizer,
	managerAddress common.Address,
	fassetToken common.Address,
	mintReceiver common.Address,
) *WatchdogRunner {
	return &WatchdogRunner{
		store:          store,
		client:         client,
		finalizer:      finalizer,
		managerAddress: managerAddress,
		fassetToken:    fassetToken,
		mintReceiver:   mintReceiver,
		lookbackBlocks: app.Config.Watchdog.LookbackBlocks,
	}
}

func (x *WatchdogRunner) Run() {
	lockId, err := app.DB.XLock(watchdogLockResource)
	if err != nil {
		log.Warn("[WATCHDOG] Could not acquire scan lock, skipping cycle: ", err)
		return
	}
	defer func() {
		if err := app.DB.Unlock(lockId); err != nil {
			log.Warn("[WATCHDOG] Error releasing scan lock: ", err)
		}
	}()

	if err := x.runCycle(); err != nil {
		log.Error("[WATCHDOG] Error running cycle: ", err)
	}
}

func (x *WatchdogRunner) Status() models.RunnerStatus {
	return models.RunnerStatus{
		FlareBlockNumber: strconv.FormatUint(x.currentBlock, 10),
	}
}

func (x *WatchdogRunner) runCycle() error {
	app.ProcessMetrics.WatchdogCycles.Inc()

	bridges, err := x.store.GetBridgesByStatus([]string{
		models.BridgeStatusSourceConfirmed,
		models.BridgeStatusGeneratingProof,
		models.BridgeStatusProofGenerated,
		models.BridgeStatusMinting,
		models.BridgeStatusVaultMinting,
	})
	if err != nil {
		return fmt.Errorf("error querying stuck bridges: %w", err)
	}

	head, err := x.client.GetBlockNumber()
	if err != nil {
		return fmt.Errorf("error fetching block number: %w", err)
	}
	x.currentBlock = head

	// idempotency check first: a recorded mint hash means only amount
	// recovery or finalization was interrupted
	var pending []models.Bridge
	for _, bridge := range bridges {
		if bridge.DestMintTxHash != "" {
			x.completeRecovered(&bridge)
			continue
		}
		pending = append(pending, bridge)
	}

	fromBlock, firstRun, err := x.scanStart(head)
	if err != nil {
		return err
	}

	if len(pending) > 0 && fromBlock <= head {
		// pin the lookback window before the first scan so a failed scan is
		// retried over the same range instead of a window off a newer head
		if firstRun && fromBlock > 0 {
			if err := x.store.SetServiceState(
				models.ServiceStateWatchdogLastCheckedBlock, strconv.FormatUint(fromBlock-1, 10)); err != nil {
				return fmt.Errorf("error pinning watermark: %w", err)
			}
		}
		if err := x.scanForMints(pending, fromBlock, head); err != nil {
			// the watermark stays put so the unscanned range is rescanned
			// next cycle, never skipped
			return fmt.Errorf("error scanning for mints: %w", err)
		}
	}

	// the watermark advances only after a fully successful scan
	if err := x.store.SetServiceState(
		models.ServiceStateWatchdogLastCheckedBlock, strconv.FormatUint(head, 10)); err != nil {
		return fmt.Errorf("error persisting watermark: %w", err)
	}
	app.ProcessMetrics.WatchdogWatermark.Set(float64(head))

	log.Debug("[WATCHDOG] Cycle complete, watermark ", head, ", ", len(pending), " bridges pending")
	return nil
}

// scanStart resolves the first block to scan: watermark + 1, or a fixed
// lookback window on first run.
func (x *WatchdogRunner) scanStart(head uint64) (uint64, bool, error) {
	raw, err := x.store.GetServiceState(models.ServiceStateWatchdogLastCheckedBlock)
	if err != nil {
		return 0, false, fmt.Errorf("error reading watermark: %w", err)
	}
	if raw == "" {
		if x.lookbackBlocks >= 0 && head > uint64(x.lookbackBlocks) {
			return head - uint64(x.lookbackBlocks), true, nil
		}
		return 0, true, nil
	}
	watermark, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid watermark %q: %w", raw, err)
	}
	return watermark + 1, false, nil
}

// scanForMints walks [fromBlock, head] in chunks no larger than the RPC
// provider's per-query block limit, looking for MintingExecuted events
// matching the pending bridges' reservation ids. A query failure aborts the
// scan with an error so the caller holds the watermark back; found events are
// safe to revisit because recovery is idempotent.
func (x *WatchdogRunner) scanForMints(pending []models.Bridge, fromBlock uint64, head uint64) error {
	byReservationId := make(map[string]*models.Bridge, len(pending))
	var reservationTopics []common.Hash
	for i := range pending {
		bridge := &pending[i]
		reservationId, ok := new(big.Int).SetString(bridge.CollateralReservationId, 10)
		if !ok {
			log.Warn("[WATCHDOG] Bridge ", bridge.BridgeId, " has invalid reservation id, skipping")
			continue
		}
		byReservationId[reservationId.String()] = bridge
		reservationTopics = append(reservationTopics, common.BigToHash(reservationId))
	}
	if len(reservationTopics) == 0 {
		return nil
	}

	maxBlocks := uint64(x.client.MaxQueryBlocks())
	for start := fromBlock; start <= head; start += maxBlocks {
		end := start + maxBlocks - 1
		if end > head {
			end = head
		}

		logs, err := x.client.FilterLogs(ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{x.managerAddress},
			Topics: [][]common.Hash{
				{fassets.MintingExecutedTopic()},
				nil,
				reservationTopics,
			},
		})
		if err != nil {
			return fmt.Errorf("error scanning blocks %d-%d: %w", start, end, err)
		}

		for _, entry := range logs {
			event, err := fassets.ParseMintingExecuted(entry)
			if err != nil {
				log.Error("[WATCHDOG] Error decoding MintingExecuted log in tx ",
					entry.TxHash.Hex(), ": ", err)
				continue
			}
			bridge, ok := byReservationId[event.CollateralReservationId.String()]
			if !ok {
				continue
			}
			x.recoverBridge(bridge, event)
			delete(byReservationId, event.CollateralReservationId.String())
		}
	}
	return nil
}

// recoverBridge persists the discovered mint hash and independently recovered
// minted amount onto the bridge, then finalizes. The amount comes from the
// wrapped token's Transfer log in the same receipt, never from the mint event
// itself. One bridge's failure never aborts the cycle.
func (x *WatchdogRunner) recoverBridge(bridge *models.Bridge, event *fassets.MintingExecutedEvent) {
	mintTxHash := event.Raw.TxHash.Hex()
	log.Info("[WATCHDOG] Found mint ", mintTxHash, " for bridge ", bridge.BridgeId)

	// the hash lands first: once recorded, the bridge is recoverable through
	// the idempotency check even after the watermark moves past this range
	if err := x.store.UpdateBridge(bridge.BridgeId, bson.M{
		"dest_mint_tx_hash": mintTxHash,
	}); err != nil {
		x.recordError(bridge.BridgeId, fmt.Errorf("error persisting mint hash: %w", err))
		return
	}

	amount, err := x.mintedAmountFromReceipt(mintTxHash)
	if err != nil {
		x.recordError(bridge.BridgeId, fmt.Errorf("error recovering minted amount: %w", err))
		return
	}
	if err := x.store.UpdateBridge(bridge.BridgeId, bson.M{
		"minted_amount": amount.String(),
	}); err != nil {
		x.recordError(bridge.BridgeId, fmt.Errorf("error persisting minted amount: %w", err))
		return
	}

	app.ProcessMetrics.WatchdogRecoveries.Inc()
	x.finalize(bridge.BridgeId)
}

// completeRecovered resumes a bridge whose mint hash is already on record:
// fills the minted amount when a previous cycle crashed before recovering it,
// then finalizes.
func (x *WatchdogRunner) completeRecovered(bridge *models.Bridge) {
	if bridge.MintedAmount == "" {
		amount, err := x.mintedAmountFromReceipt(bridge.DestMintTxHash)
		if err != nil {
			x.recordError(bridge.BridgeId, fmt.Errorf("error recovering minted amount: %w", err))
			return
		}
		if err := x.store.UpdateBridge(bridge.BridgeId, bson.M{
			"minted_amount": amount.String(),
		}); err != nil {
			x.recordError(bridge.BridgeId, fmt.Errorf("error persisting minted amount: %w", err))
			return
		}
	}
	x.finalize(bridge.BridgeId)
}

func (x *WatchdogRunner) mintedAmountFromReceipt(mintTxHash string) (*big.Int, error) {
	return mintedAmountFromReceipt(x.client, x.fassetToken, x.mintReceiver, mintTxHash)
}

func (x *WatchdogRunner) finalize(bridgeId string) {
	if err := x.finalizer.FinalizeBridge(bridgeId); err != nil {
		x.recordError(bridgeId, fmt.Errorf("error finalizing: %w", err))
	}
}

// recordError writes last_error without touching status; the bridge stays
// eligible for the next cycle
func (x *WatchdogRunner) recordError(bridgeId string, cause error) {
	log.Error("[WATCHDOG] Bridge ", bridgeId, ": ", cause)
	if err := x.store.UpdateBridge(bridgeId, bson.M{"last_error": cause.Error()}); err != nil {
		log.Error("[WATCHDOG] Error recording bridge error: ", err)
	}
}

func NewWatchdog(
	wg *sync.WaitGroup,
	store Store,
	client flare.FlareClient,
	finalizer *Finalizer,
	managerAddress common.Address,
	fassetToken common.Address,
	mintReceiver common.Address,
) models.Service {
	if !app.Config.Watchdog.Enabled {
		log.Debug("[WATCHDOG] Watchdog disabled")
		return models.NewEmptyService(wg)
	}

	log.Debug("[WATCHDOG] Initializing deposit watchdog")

	runner := NewWatchdogRunner(store, client, finalizer, managerAddress, fassetToken, mintReceiver)

	return app.NewRunnerService(
		WatchdogName,
		runner,
		wg,
		time.Duration(app.Config.Watchdog.IntervalMillis)*time.Millisecond,
	)
}
