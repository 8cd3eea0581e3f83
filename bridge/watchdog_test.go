package bridge

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shield-xrpfinance/shield-bridge/app"
	"github.com/shield-xrpfinance/shield-bridge/fassets"
	"github.com/shield-xrpfinance/shield-bridge/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testManagerAddress = common.HexToAddress("0x5555555555555555555555555555555555555555")
	testAgentVault     = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func mintingExecutedLog(t *testing.T, reservationId int64, blockNumber uint64, txHash string) types.Log {
	t.Helper()
	event := fassets.AssetManagerABI.Events["MintingExecuted"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(30000000), big.NewInt(150000))
	require.NoError(t, err)
	return types.Log{
		Address: testManagerAddress,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(testAgentVault.Bytes()),
			common.BigToHash(big.NewInt(reservationId)),
		},
		Data:        data,
		BlockNumber: blockNumber,
		TxHash:      common.HexToHash(txHash),
	}
}

func stuckBridge(store *memoryStore, bridgeId string, reservationId string, status string) *models.Bridge {
	bridge := &models.Bridge{
		BridgeId:                bridgeId,
		Status:                  status,
		SourceAmount:            "25",
		RoundedAmount:           "30",
		Lots:                    3,
		PaymentReference:        testReference,
		CollateralReservationId: reservationId,
		SourceTxHash:            testSourceTxHash,
		CreatedAt:               time.Now(),
		UpdatedAt:               time.Now(),
	}
	_ = store.InsertBridge(bridge)
	return bridge
}

func testWatchdog(store Store, client *fakeFlareClient, vault *fakeVault, lookback int64) *WatchdogRunner {
	app.Config.Watchdog.LookbackBlocks = lookback
	finalizer := NewFinalizer(store, vault, testReceiver)
	return NewWatchdogRunner(store, client, finalizer, testManagerAddress, testFassetToken, testReceiver)
}

func TestWatchdogRecovery(t *testing.T) {
	t.Run("recovers stuck bridge from chain logs", func(t *testing.T) {
		store := newMemoryStore()
		vault := &fakeVault{}
		client := newFakeFlareClient()
		client.logs = []types.Log{mintingExecutedLog(t, 77, 900, testMintTxHash)}
		client.receipts[testMintTxHash] = &types.Receipt{
			Status: types.ReceiptStatusSuccessful,
			Logs:   []*types.Log{transferLog(t, 30000000)},
		}
		stuckBridge(store, "bridge-1", "77", models.BridgeStatusSourceConfirmed)

		watchdog := testWatchdog(store, client, vault, 500)
		require.NoError(t, watchdog.runCycle())

		bridge, err := store.GetBridgeById("bridge-1")
		require.NoError(t, err)
		assert.Equal(t, models.BridgeStatusCompleted, bridge.Status)
		assert.Equal(t, testMintTxHash, bridge.DestMintTxHash)
		// amount recovered independently from the transfer log
		assert.Equal(t, "30000000", bridge.MintedAmount)
		assert.Equal(t, 1, vault.depositCount())

		// queries filter on the pending reservation ids
		require.NotEmpty(t, client.queries)
		topics := client.queries[0].Topics
		require.Len(t, topics, 3)
		assert.Equal(t, fassets.MintingExecutedTopic(), topics[0][0])
		assert.Contains(t, topics[2], common.BigToHash(big.NewInt(77)))
	})

	t.Run("recorded mint hash finalizes without scanning", func(t *testing.T) {
		store := newMemoryStore()
		vault := &fakeVault{}
		client := newFakeFlareClient()
		bridge := stuckBridge(store, "bridge-1", "77", models.BridgeStatusMinting)
		bridge.DestMintTxHash = testMintTxHash
		bridge.MintedAmount = "30000000"
		_ = store.InsertBridge(bridge)

		watchdog := testWatchdog(store, client, vault, 500)
		require.NoError(t, watchdog.runCycle())

		updated, _ := store.GetBridgeById("bridge-1")
		assert.Equal(t, models.BridgeStatusCompleted, updated.Status)
		assert.Equal(t, 1, vault.depositCount())
		assert.Empty(t, client.queries)
	})

	t.Run("amount recovery resumes next cycle", func(t *testing.T) {
		store := newMemoryStore()
		vault := &fakeVault{}
		client := newFakeFlareClient()
		// the mint log is found but its receipt is not yet available
		client.logs = []types.Log{mintingExecutedLog(t, 77, 900, testMintTxHash)}
		stuckBridge(store, "bridge-1", "77", models.BridgeStatusSourceConfirmed)

		watchdog := testWatchdog(store, client, vault, 500)
		require.NoError(t, watchdog.runCycle())

		// the hash is on record, so the bridge survives the watermark
		// moving past its block
		bridge, err := store.GetBridgeById("bridge-1")
		require.NoError(t, err)
		assert.Equal(t, models.BridgeStatusSourceConfirmed, bridge.Status)
		assert.Equal(t, testMintTxHash, bridge.DestMintTxHash)
		assert.NotEmpty(t, bridge.LastError)
		assert.Equal(t, 0, vault.depositCount())

		client.receipts[testMintTxHash] = &types.Receipt{
			Status: types.ReceiptStatusSuccessful,
			Logs:   []*types.Log{transferLog(t, 30000000)},
		}
		client.blockNumber = 1500
		require.NoError(t, watchdog.runCycle())

		recovered, _ := store.GetBridgeById("bridge-1")
		assert.Equal(t, models.BridgeStatusCompleted, recovered.Status)
		assert.Equal(t, "30000000", recovered.MintedAmount)
		assert.Equal(t, 1, vault.depositCount())
	})

	t.Run("one failing bridge does not block another", func(t *testing.T) {
		store := newMemoryStore()
		vault := &fakeVault{}
		client := newFakeFlareClient()
		// bridge-1's mint receipt is missing, bridge-2's is available
		client.logs = []types.Log{
			mintingExecutedLog(t, 77, 900, "0x"+common.Bytes2Hex(common.BigToHash(big.NewInt(1)).Bytes())),
			mintingExecutedLog(t, 78, 901, testMintTxHash),
		}
		client.receipts[testMintTxHash] = &types.Receipt{
			Status: types.ReceiptStatusSuccessful,
			Logs:   []*types.Log{transferLog(t, 30000000)},
		}
		stuckBridge(store, "bridge-1", "77", models.BridgeStatusSourceConfirmed)
		stuckBridge(store, "bridge-2", "78", models.BridgeStatusSourceConfirmed)

		watchdog := testWatchdog(store, client, vault, 500)
		require.NoError(t, watchdog.runCycle())

		failed, _ := store.GetBridgeById("bridge-1")
		assert.Equal(t, models.BridgeStatusSourceConfirmed, failed.Status)
		assert.NotEmpty(t, failed.LastError)

		recovered, _ := store.GetBridgeById("bridge-2")
		assert.Equal(t, models.BridgeStatusCompleted, recovered.Status)
	})
}

func TestWatchdogWatermark(t *testing.T) {
	t.Run("advances to head every cycle", func(t *testing.T) {
		store := newMemoryStore()
		client := newFakeFlareClient()
		client.blockNumber = 1000

		watchdog := testWatchdog(store, client, &fakeVault{}, 500)
		require.NoError(t, watchdog.runCycle())

		watermark, err := store.GetServiceState(models.ServiceStateWatchdogLastCheckedBlock)
		require.NoError(t, err)
		assert.Equal(t, "1000", watermark)

		client.blockNumber = 1500
		require.NoError(t, watchdog.runCycle())

		watermark, _ = store.GetServiceState(models.ServiceStateWatchdogLastCheckedBlock)
		assert.Equal(t, "1500", watermark)
	})

	t.Run("first run scans a bounded lookback window", func(t *testing.T) {
		store := newMemoryStore()
		client := newFakeFlareClient()
		client.blockNumber = 1000
		stuckBridge(store, "bridge-1", "77", models.BridgeStatusSourceConfirmed)

		watchdog := testWatchdog(store, client, &fakeVault{}, 300)
		require.NoError(t, watchdog.runCycle())

		require.NotEmpty(t, client.queries)
		assert.Equal(t, uint64(700), client.queries[0].FromBlock.Uint64())
	})

	t.Run("resumes after the persisted watermark", func(t *testing.T) {
		store := newMemoryStore()
		require.NoError(t, store.SetServiceState(models.ServiceStateWatchdogLastCheckedBlock, "800"))
		client := newFakeFlareClient()
		client.blockNumber = 1000
		stuckBridge(store, "bridge-1", "77", models.BridgeStatusSourceConfirmed)

		watchdog := testWatchdog(store, client, &fakeVault{}, 500)
		require.NoError(t, watchdog.runCycle())

		require.NotEmpty(t, client.queries)
		assert.Equal(t, uint64(801), client.queries[0].FromBlock.Uint64())
		assert.Equal(t, uint64(1000), client.queries[0].ToBlock.Uint64())
	})
}

func TestWatchdogScanFailure(t *testing.T) {
	store := newMemoryStore()
	vault := &fakeVault{}
	client := newFakeFlareClient()
	client.blockNumber = 1000
	client.logs = []types.Log{mintingExecutedLog(t, 77, 900, testMintTxHash)}
	client.receipts[testMintTxHash] = &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs:   []*types.Log{transferLog(t, 30000000)},
	}
	client.filterErr = errors.New("connection reset")
	stuckBridge(store, "bridge-1", "77", models.BridgeStatusSourceConfirmed)

	watchdog := testWatchdog(store, client, vault, 300)
	require.Error(t, watchdog.runCycle())

	// the failed range is held back, not skipped
	watermark, err := store.GetServiceState(models.ServiceStateWatchdogLastCheckedBlock)
	require.NoError(t, err)
	assert.Equal(t, "699", watermark)

	bridge, _ := store.GetBridgeById("bridge-1")
	assert.Equal(t, models.BridgeStatusSourceConfirmed, bridge.Status)
	assert.Equal(t, 0, vault.depositCount())

	// the rpc recovers with the head further along; the rescan still covers
	// the held-back range and finds the mint
	client.filterErr = nil
	client.blockNumber = 1200
	require.NoError(t, watchdog.runCycle())

	require.True(t, len(client.queries) >= 2)
	assert.Equal(t, uint64(700), client.queries[1].FromBlock.Uint64())

	recovered, _ := store.GetBridgeById("bridge-1")
	assert.Equal(t, models.BridgeStatusCompleted, recovered.Status)
	assert.Equal(t, 1, vault.depositCount())

	watermark, _ = store.GetServiceState(models.ServiceStateWatchdogLastCheckedBlock)
	assert.Equal(t, "1200", watermark)
}

func TestWatchdogChunking(t *testing.T) {
	store := newMemoryStore()
	require.NoError(t, store.SetServiceState(models.ServiceStateWatchdogLastCheckedBlock, "0"))
	client := newFakeFlareClient()
	client.blockNumber = 1200
	stuckBridge(store, "bridge-1", "77", models.BridgeStatusSourceConfirmed)

	watchdog := testWatchdog(store, client, &fakeVault{}, 500)
	require.NoError(t, watchdog.runCycle())

	maxBlocks := uint64(client.MaxQueryBlocks())
	require.NotEmpty(t, client.queries)

	next := uint64(1)
	for _, query := range client.queries {
		from := query.FromBlock.Uint64()
		to := query.ToBlock.Uint64()
		assert.Equal(t, next, from, "chunks must be contiguous")
		assert.LessOrEqual(t, to-from+1, maxBlocks, "chunk exceeds provider block limit")
		next = to + 1
	}
	assert.Equal(t, uint64(1201), next, "chunks must cover the full scan range")

	watermark, _ := store.GetServiceState(models.ServiceStateWatchdogLastCheckedBlock)
	assert.Equal(t, "1200", watermark)
}
