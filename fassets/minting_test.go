package fassets

import (
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shield-xrpfinance/shield-bridge/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFlareClient satisfies flare.FlareClient for submission tests; receipts
// are served from a map keyed by tx hash.
type fakeFlareClient struct {
	mu       sync.Mutex
	receipts map[string]*types.Receipt
	gasPrice *big.Int
}

func newFakeFlareClient() *fakeFlareClient {
	return &fakeFlareClient{
		receipts: make(map[string]*types.Receipt),
		gasPrice: big.NewInt(25_000_000_000),
	}
}

func (f *fakeFlareClient) ValidateNetwork()                {}
func (f *fakeFlareClient) GetBlockNumber() (uint64, error) { return 1000, nil }
func (f *fakeFlareClient) GetChainID() (*big.Int, error)   { return big.NewInt(14), nil }
func (f *fakeFlareClient) GetClient() *ethclient.Client    { return nil }
func (f *fakeFlareClient) GetTransactionByHash(txHash string) (*types.Transaction, bool, error) {
	return nil, false, errors.New("not implemented")
}
func (f *fakeFlareClient) GetTransactionReceipt(txHash string) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[txHash]
	if !ok {
		return nil, errors.New("not found")
	}
	return receipt, nil
}
func (f *fakeFlareClient) FilterLogs(query ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}
func (f *fakeFlareClient) SuggestGasPrice() (*big.Int, error) { return f.gasPrice, nil }
func (f *fakeFlareClient) MaxQueryBlocks() int64              { return 499 }

// reservingAssetManager extends the fake manager with a canned reservation
// transaction and receipt wiring.
type reservingAssetManager struct {
	*fakeAssetManager
	managerAddress common.Address
	tx             *types.Transaction
	reserveErr     error
}

func (r *reservingAssetManager) Address() common.Address { return r.managerAddress }

func (r *reservingAssetManager) ReserveCollateral(opts *bind.TransactOpts, agentVault common.Address, lots *big.Int, maxMintingFeeBIPS *big.Int, executor common.Address) (*types.Transaction, error) {
	if r.reserveErr != nil {
		return nil, r.reserveErr
	}
	return r.tx, nil
}

func setupSignerConfig(t *testing.T) {
	t.Helper()
	app.Config.Flare.PrivateKey = "1111111111111111111111111111111111111111111111111111111111111111"
	app.Config.Flare.Mnemonic = ""
}

func dummyTx() *types.Transaction {
	return types.NewTransaction(1, common.HexToAddress("0x99"), big.NewInt(0), 21000, big.NewInt(1), nil)
}

func TestFindBestAgentLive(t *testing.T) {
	manager := newFakeAssetManager()
	manager.addAgent(agentAddress(1), 300, 100, AgentStatusNormal)
	manager.addAgent(agentAddress(2), 100, 100, AgentStatusNormal)
	manager.addAgent(agentAddress(3), 50, 1, AgentStatusNormal)
	manager.addAgent(agentAddress(4), 25, 100, 2)

	client := newFakeFlareClient()
	minting := NewMintingClient(client, manager, nil)

	t.Run("cheapest eligible agent", func(t *testing.T) {
		agent, err := minting.FindBestAgent(10)
		require.NoError(t, err)
		assert.Equal(t, agentAddress(2).Hex(), agent.VaultAddress)
	})

	t.Run("no capacity", func(t *testing.T) {
		_, err := minting.FindBestAgent(1000)
		assert.ErrorIs(t, err, ErrNoAgentAvailable)
	})
}

func TestReserveCollateral(t *testing.T) {
	setupSignerConfig(t)

	managerAddress := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tx := dummyTx()

	buildManager := func() *reservingAssetManager {
		base := newFakeAssetManager()
		base.addAgent(agentAddress(1), 250, 100, AgentStatusNormal)
		return &reservingAssetManager{
			fakeAssetManager: base,
			managerAddress:   managerAddress,
			tx:               tx,
		}
	}

	reservedLog := func(reference [32]byte) *types.Log {
		event := AssetManagerABI.Events["CollateralReserved"]
		data, err := event.Inputs.NonIndexed().Pack(
			big.NewInt(30000000), big.NewInt(150000), big.NewInt(5000), "rPaymentAddress", reference)
		require.NoError(t, err)
		return &types.Log{
			Address: managerAddress,
			Topics: []common.Hash{
				event.ID,
				common.BytesToHash(testAgentVault.Bytes()),
				common.BytesToHash(testMinter.Bytes()),
				common.BigToHash(big.NewInt(77)),
			},
			Data: data,
		}
	}

	t.Run("decodes reservation event", func(t *testing.T) {
		manager := buildManager()
		client := newFakeFlareClient()

		var reference [32]byte
		reference[0] = 0x46
		reference[31] = 0x01
		client.receipts[tx.Hash().Hex()] = &types.Receipt{
			Status: types.ReceiptStatusSuccessful,
			Logs:   []*types.Log{reservedLog(reference)},
		}

		minting := NewMintingClient(client, manager, nil)
		best, err := minting.FindBestAgent(3)
		require.NoError(t, err)

		reservation, err := minting.ReserveCollateral(best, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(77), reservation.ReservationId.Int64())
		assert.Equal(t, "rPaymentAddress", reservation.PaymentAddress)
		assert.Equal(t, "0x"+common.Bytes2Hex(reference[:]), reservation.PaymentReference)
		assert.Equal(t, int64(30000000), reservation.ValueUBA.Int64())
		assert.Equal(t, tx.Hash().Hex(), reservation.TxHash)
	})

	t.Run("missing event is a hard error", func(t *testing.T) {
		manager := buildManager()
		client := newFakeFlareClient()
		client.receipts[tx.Hash().Hex()] = &types.Receipt{
			Status: types.ReceiptStatusSuccessful,
		}

		minting := NewMintingClient(client, manager, nil)
		best, err := minting.FindBestAgent(3)
		require.NoError(t, err)

		_, err = minting.ReserveCollateral(best, 3)
		assert.ErrorIs(t, err, ErrReservationEventMissing)
	})

	t.Run("zero payment reference rejected", func(t *testing.T) {
		manager := buildManager()
		client := newFakeFlareClient()

		var zeroReference [32]byte
		client.receipts[tx.Hash().Hex()] = &types.Receipt{
			Status: types.ReceiptStatusSuccessful,
			Logs:   []*types.Log{reservedLog(zeroReference)},
		}

		minting := NewMintingClient(client, manager, nil)
		best, err := minting.FindBestAgent(3)
		require.NoError(t, err)

		_, err = minting.ReserveCollateral(best, 3)
		assert.ErrorIs(t, err, ErrBadPaymentReference)
	})

	t.Run("reverted transaction", func(t *testing.T) {
		manager := buildManager()
		client := newFakeFlareClient()
		client.receipts[tx.Hash().Hex()] = &types.Receipt{
			Status: types.ReceiptStatusFailed,
		}

		minting := NewMintingClient(client, manager, nil)
		best, err := minting.FindBestAgent(3)
		require.NoError(t, err)

		_, err = minting.ReserveCollateral(best, 3)
		assert.ErrorIs(t, err, ErrTxReverted)
	})

	t.Run("submission error not retried", func(t *testing.T) {
		manager := buildManager()
		manager.reserveErr = errors.New("execution reverted: agent not available")
		client := newFakeFlareClient()

		minting := NewMintingClient(client, manager, nil)
		best, err := minting.FindBestAgent(3)
		require.NoError(t, err)

		_, err = minting.ReserveCollateral(best, 3)
		assert.Error(t, err)
	})
}
