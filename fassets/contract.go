package fassets

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/shield-xrpfinance/shield-bridge/app"
	"github.com/shield-xrpfinance/shield-bridge/flare"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Trimmed asset manager ABI: only the surface this bridge calls. Kept as an
// explicit constant so event decoding stays strict and versioned.
const assetManagerABI = `[
	{"type":"function","name":"lotSize","stateMutability":"view","inputs":[],"outputs":[{"name":"_lotSizeUBA","type":"uint256"}]},
	{"type":"function","name":"collateralReservationFee","stateMutability":"view","inputs":[{"name":"_lots","type":"uint256"}],"outputs":[{"name":"_reservationFeeNatWei","type":"uint256"}]},
	{"type":"function","name":"getAvailableAgentsDetailedList","stateMutability":"view","inputs":[{"name":"_start","type":"uint256"},{"name":"_end","type":"uint256"}],"outputs":[{"name":"_agents","type":"tuple[]","components":[{"name":"agentVault","type":"address"},{"name":"feeBIPS","type":"uint256"},{"name":"freeCollateralLots","type":"uint256"}]},{"name":"_totalLength","type":"uint256"}]},
	{"type":"function","name":"getAgentInfo","stateMutability":"view","inputs":[{"name":"_agentVault","type":"address"}],"outputs":[{"name":"_info","type":"tuple","components":[{"name":"status","type":"uint8"},{"name":"underlyingAddressString","type":"string"},{"name":"feeBIPS","type":"uint256"},{"name":"freeCollateralLots","type":"uint256"}]}]},
	{"type":"function","name":"reserveCollateral","stateMutability":"payable","inputs":[{"name":"_agentVault","type":"address"},{"name":"_lots","type":"uint256"},{"name":"_maxMintingFeeBIPS","type":"uint256"},{"name":"_executor","type":"address"}],"outputs":[]},
	{"type":"function","name":"executeMinting","stateMutability":"nonpayable","inputs":[{"name":"_payment","type":"bytes"},{"name":"_collateralReservationId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"redeem","stateMutability":"nonpayable","inputs":[{"name":"_lots","type":"uint256"},{"name":"_redeemerUnderlyingAddressString","type":"string"}],"outputs":[{"name":"_redeemedAmountUBA","type":"uint256"}]},
	{"type":"function","name":"confirmRedemptionPayment","stateMutability":"nonpayable","inputs":[{"name":"_payment","type":"bytes"},{"name":"_redemptionRequestId","type":"uint256"}],"outputs":[]},
	{"type":"event","name":"CollateralReserved","inputs":[{"name":"agentVault","type":"address","indexed":true},{"name":"minter","type":"address","indexed":true},{"name":"collateralReservationId","type":"uint256","indexed":true},{"name":"valueUBA","type":"uint256","indexed":false},{"name":"feeUBA","type":"uint256","indexed":false},{"name":"lastUnderlyingBlock","type":"uint256","indexed":false},{"name":"paymentAddress","type":"string","indexed":false},{"name":"paymentReference","type":"bytes32","indexed":false}]},
	{"type":"event","name":"MintingExecuted","inputs":[{"name":"agentVault","type":"address","indexed":true},{"name":"collateralReservationId","type":"uint256","indexed":true},{"name":"mintedAmountUBA","type":"uint256","indexed":false},{"name":"agentFeeUBA","type":"uint256","indexed":false}]},
	{"type":"event","name":"RedemptionRequested","inputs":[{"name":"agentVault","type":"address","indexed":true},{"name":"requestId","type":"uint256","indexed":true},{"name":"paymentAddress","type":"string","indexed":false},{"name":"valueUBA","type":"uint256","indexed":false},{"name":"paymentReference","type":"bytes32","indexed":false}]}
]`

const erc20ABI = `[
	{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
]`

type AvailableAgent struct {
	AgentVault         common.Address
	FeeBIPS            *big.Int
	FreeCollateralLots *big.Int
}

type AgentDetail struct {
	Status                  uint8
	UnderlyingAddressString string
	FeeBIPS                 *big.Int
	FreeCollateralLots      *big.Int
}

// agent status value meaning "normal operation" on the asset manager
const AgentStatusNormal uint8 = 0

type AssetManagerContract interface {
	Address() common.Address
	LotSize() (*big.Int, error)
	CollateralReservationFee(lots *big.Int) (*big.Int, error)
	GetAvailableAgents(start *big.Int, end *big.Int) ([]AvailableAgent, *big.Int, error)
	GetAgentInfo(agentVault common.Address) (*AgentDetail, error)
	ReserveCollateral(opts *bind.TransactOpts, agentVault common.Address, lots *big.Int, maxMintingFeeBIPS *big.Int, executor common.Address) (*types.Transaction, error)
	ExecuteMinting(opts *bind.TransactOpts, payment []byte, collateralReservationId *big.Int) (*types.Transaction, error)
	Redeem(opts *bind.TransactOpts, lots *big.Int, underlyingAddress string) (*types.Transaction, error)
	ConfirmRedemptionPayment(opts *bind.TransactOpts, payment []byte, redemptionRequestId *big.Int) (*types.Transaction, error)
}

type assetManager struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

var (
	AssetManagerABI = mustParseABI(assetManagerABI)
	ERC20ABI        = mustParseABI(erc20ABI)
)

func NewAssetManager(address common.Address, client flare.FlareClient) AssetManagerContract {
	backend := client.GetClient()
	return &assetManager{
		address:  address,
		abi:      AssetManagerABI,
		contract: bind.NewBoundContract(address, AssetManagerABI, backend, backend, backend),
	}
}

func (a *assetManager) callOpts() (*bind.CallOpts, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(app.Config.Flare.RPCTimeoutMillis)*time.Millisecond)
	return &bind.CallOpts{Context: ctx}, cancel
}

func (a *assetManager) Address() common.Address {
	return a.address
}

func (a *assetManager) LotSize() (*big.Int, error) {
	opts, cancel := a.callOpts()
	defer cancel()

	var out []interface{}
	err := a.contract.Call(opts, &out, "lotSize")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (a *assetManager) CollateralReservationFee(lots *big.Int) (*big.Int, error) {
	opts, cancel := a.callOpts()
	defer cancel()

	var out []interface{}
	err := a.contract.Call(opts, &out, "collateralReservationFee", lots)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (a *assetManager) GetAvailableAgents(start *big.Int, end *big.Int) ([]AvailableAgent, *big.Int, error) {
	opts, cancel := a.callOpts()
	defer cancel()

	var out []interface{}
	err := a.contract.Call(opts, &out, "getAvailableAgentsDetailedList", start, end)
	if err != nil {
		return nil, nil, err
	}
	agents := *abi.ConvertType(out[0], new([]AvailableAgent)).(*[]AvailableAgent)
	totalLength := *abi.ConvertType(out[1], new(*big.Int)).(**big.Int)
	return agents, totalLength, nil
}

func (a *assetManager) GetAgentInfo(agentVault common.Address) (*AgentDetail, error) {
	opts, cancel := a.callOpts()
	defer cancel()

	var out []interface{}
	err := a.contract.Call(opts, &out, "getAgentInfo", agentVault)
	if err != nil {
		return nil, err
	}
	info := *abi.ConvertType(out[0], new(AgentDetail)).(*AgentDetail)
	return &info, nil
}

func (a *assetManager) ReserveCollateral(opts *bind.TransactOpts, agentVault common.Address, lots *big.Int, maxMintingFeeBIPS *big.Int, executor common.Address) (*types.Transaction, error) {
	return a.contract.Transact(opts, "reserveCollateral", agentVault, lots, maxMintingFeeBIPS, executor)
}

func (a *assetManager) ExecuteMinting(opts *bind.TransactOpts, payment []byte, collateralReservationId *big.Int) (*types.Transaction, error) {
	return a.contract.Transact(opts, "executeMinting", payment, collateralReservationId)
}

func (a *assetManager) Redeem(opts *bind.TransactOpts, lots *big.Int, underlyingAddress string) (*types.Transaction, error) {
	return a.contract.Transact(opts, "redeem", lots, underlyingAddress)
}

func (a *assetManager) ConfirmRedemptionPayment(opts *bind.TransactOpts, payment []byte, redemptionRequestId *big.Int) (*types.Transaction, error) {
	return a.contract.Transact(opts, "confirmRedemptionPayment", payment, redemptionRequestId)
}
