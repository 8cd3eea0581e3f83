package bridge

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shield-xrpfinance/shield-bridge/attestation"
	"github.com/shield-xrpfinance/shield-bridge/fassets"
	"github.com/shield-xrpfinance/shield-bridge/models"
	"github.com/shield-xrpfinance/shield-bridge/xrpl"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

func init() {
	log.SetOutput(io.Discard)
}

// memoryStore is an in-memory Store for orchestrator, finalizer and watchdog
// tests.
type memoryStore struct {
	mu      sync.Mutex
	bridges map[string]*models.Bridge
	state   map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		bridges: make(map[string]*models.Bridge),
		state:   make(map[string]string),
	}
}

func (s *memoryStore) InsertBridge(bridge *models.Bridge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *bridge
	s.bridges[bridge.BridgeId] = &clone
	return nil
}

func (s *memoryStore) GetBridgeById(bridgeId string) (*models.Bridge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bridge, ok := s.bridges[bridgeId]
	if !ok {
		return nil, ErrBridgeNotFound
	}
	clone := *bridge
	return &clone, nil
}

func (s *memoryStore) GetBridgeByPaymentReference(reference string) (*models.Bridge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, bridge := range s.bridges {
		if bridge.PaymentReference == reference {
			clone := *bridge
			return &clone, nil
		}
	}
	return nil, ErrBridgeNotFound
}

func (s *memoryStore) UpdateBridge(bridgeId string, patch bson.M) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bridge, ok := s.bridges[bridgeId]
	if !ok {
		return ErrBridgeNotFound
	}
	return applyPatch(bridge, patch)
}

func (s *memoryStore) UpdateBridgeIfStatus(bridgeId string, statuses []string, patch bson.M) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bridge, ok := s.bridges[bridgeId]
	if !ok {
		return false, nil
	}
	matched := false
	for _, status := range statuses {
		if bridge.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	return true, applyPatch(bridge, patch)
}

func applyPatch(bridge *models.Bridge, patch bson.M) error {
	for key, value := range patch {
		switch key {
		case "status":
			bridge.Status = value.(string)
		case "source_amount":
			bridge.SourceAmount = value.(string)
		case "payment_reference":
			bridge.PaymentReference = value.(string)
		case "collateral_reservation_id":
			bridge.CollateralReservationId = value.(string)
		case "agent_vault":
			bridge.AgentVault = value.(string)
		case "payment_address":
			bridge.PaymentAddress = value.(string)
		case "source_tx_hash":
			bridge.SourceTxHash = value.(string)
		case "dest_mint_tx_hash":
			bridge.DestMintTxHash = value.(string)
		case "minted_amount":
			bridge.MintedAmount = value.(string)
		case "vault_deposit_tx_hash":
			bridge.VaultDepositTxHash = value.(string)
		case "last_error":
			bridge.LastError = value.(string)
		case "reservation_expiry":
			bridge.ReservationExpiry = value.(time.Time)
		case "updated_at":
			bridge.UpdatedAt = value.(time.Time)
		default:
			return fmt.Errorf("unexpected patch key %q", key)
		}
	}
	return nil
}

func (s *memoryStore) GetBridgesByStatus(statuses []string) ([]models.Bridge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Bridge
	for _, bridge := range s.bridges {
		for _, status := range statuses {
			if bridge.Status == status {
				out = append(out, *bridge)
				break
			}
		}
	}
	return out, nil
}

func (s *memoryStore) GetServiceState(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state[key], nil
}

func (s *memoryStore) SetServiceState(key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = value
	return nil
}

// fakeVault counts share-minting deposits. A non-zero delay widens the race
// window for concurrent finalization tests.
type fakeVault struct {
	mu       sync.Mutex
	deposits int
	err      error
	delay    time.Duration
}

func (f *fakeVault) Deposit(amount *big.Int, receiver common.Address) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.deposits++
	return fmt.Sprintf("0xvault%d", f.deposits), nil
}

func (f *fakeVault) ShareBalance(account common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeVault) depositCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deposits
}

// fakeMinter serves canned reservations and mint hashes.
type fakeMinter struct {
	agent       *models.Agent
	reservation *fassets.CollateralReservation
	mintTxHash  string
	agentErr    error
	reserveErr  error
	mintErr     error
}

func (f *fakeMinter) LotSize() (*big.Int, error) { return big.NewInt(10), nil }

func (f *fakeMinter) FindBestAgent(lotsRequired int64) (*models.Agent, error) {
	if f.agentErr != nil {
		return nil, f.agentErr
	}
	return f.agent, nil
}

func (f *fakeMinter) ReserveCollateral(agent *models.Agent, lots int64) (*fassets.CollateralReservation, error) {
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	return f.reservation, nil
}

func (f *fakeMinter) ExecuteMinting(proof []byte, reservationId *big.Int) (string, error) {
	if f.mintErr != nil {
		return "", f.mintErr
	}
	return f.mintTxHash, nil
}

func (f *fakeMinter) RequestRedemption(lots int64, underlyingAddress string) (*fassets.RedemptionRequestedEvent, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeMinter) ConfirmRedemptionPayment(proof []byte, requestId *big.Int) (string, error) {
	return "", errors.New("not implemented")
}

// fakeXrplClient serves canned transactions by hash.
type fakeXrplClient struct {
	txs map[string]*xrpl.Transaction
}

func (f *fakeXrplClient) GetLedgerIndex() (int64, error) { return 1000, nil }

func (f *fakeXrplClient) GetAccountInfo(account string) (*xrpl.AccountInfo, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeXrplClient) GetTransaction(hash string) (*xrpl.Transaction, error) {
	tx, ok := f.txs[hash]
	if !ok {
		return nil, errors.New("txnNotFound")
	}
	return tx, nil
}

func (f *fakeXrplClient) SubmitPayment(txBlob string) (string, error) {
	return "", errors.New("not implemented")
}

// fakeAttestationClient returns a canned proof for any transaction.
type fakeAttestationClient struct {
	proof *attestation.PaymentProof
	err   error
}

func (f *fakeAttestationClient) PrepareRequest(txHash string) (string, error) {
	return "0xencoded", nil
}

func (f *fakeAttestationClient) GetProof(roundId uint64, encodedRequest string) (*attestation.PaymentProof, error) {
	return f.proof, f.err
}

func (f *fakeAttestationClient) LatestRound() (uint64, error) { return 100, nil }

func (f *fakeAttestationClient) RetrievePaymentProof(txHash string) (*attestation.PaymentProof, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.proof, nil
}

// fakeFlareClient scripts receipts and log queries, recording every
// FilterLogs block range for scan window assertions.
type fakeFlareClient struct {
	mu          sync.Mutex
	blockNumber uint64
	receipts    map[string]*types.Receipt
	logs        []types.Log
	queries     []ethereum.FilterQuery
	filterErr   error
}

func newFakeFlareClient() *fakeFlareClient {
	return &fakeFlareClient{
		blockNumber: 1000,
		receipts:    make(map[string]*types.Receipt),
	}
}

func (f *fakeFlareClient) ValidateNetwork() {}

func (f *fakeFlareClient) GetBlockNumber() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blockNumber, nil
}

func (f *fakeFlareClient) GetChainID() (*big.Int, error) { return big.NewInt(14), nil }

func (f *fakeFlareClient) GetClient() *ethclient.Client { return nil }

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
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.filterErr != nil {
		return nil, f.filterErr
	}
	var matched []types.Log
	for _, entry := range f.logs {
		if entry.BlockNumber >= query.FromBlock.Uint64() && entry.BlockNumber <= query.ToBlock.Uint64() {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

func (f *fakeFlareClient) SuggestGasPrice() (*big.Int, error) { return big.NewInt(1), nil }

func (f *fakeFlareClient) MaxQueryBlocks() int64 { return 499 }
