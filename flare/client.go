package flare

import (
	"context"
	"math/big"
	"time"

	"github.com/shield-xrpfinance/shield-bridge/app"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	log "github.com/sirupsen/logrus"
)

const (
	// hard cap imposed by the RPC provider on blocks per log query
	DefaultMaxQueryBlocks int64 = 499
)

type FlareClient interface {
	ValidateNetwork()
	GetBlockNumber() (uint64, error)
	GetChainID() (*big.Int, error)
	GetClient() *ethclient.Client
	GetTransactionByHash(txHash string) (*types.Transaction, bool, error)
	GetTransactionReceipt(txHash string) (*types.Receipt, error)
	FilterLogs(query ethereum.FilterQuery) ([]types.Log, error)
	SuggestGasPrice() (*big.Int, error)
	MaxQueryBlocks() int64
}

type flareClient struct {
	client *ethclient.Client
}

func (c *flareClient) timeout() time.Duration {
	return time.Duration(app.Config.Flare.RPCTimeoutMillis) * time.Millisecond
}

func (c *flareClient) GetClient() *ethclient.Client {
	return c.client
}

func (c *flareClient) GetBlockNumber() (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout())
	defer cancel()

	blockNumber, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}

	return blockNumber, nil
}

func (c *flareClient) GetChainID() (*big.Int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout())
	defer cancel()

	chainID, err := c.client.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	return chainID, nil
}

func (c *flareClient) ValidateNetwork() {
	log.Debugln("[FLARE]", "Validating network")
	log.Debugln("[FLARE]", "uri", app.Config.Flare.RPCURL)

	chainID, err := c.GetChainID()
	if err != nil {
		log.Fatalln("[FLARE]", "Failed to get chain ID:", err)
	}
	blockNumber, err := c.GetBlockNumber()
	if err != nil {
		log.Fatalln("[FLARE]", "Failed to get block number:", err)
	}

	log.Debugln("[FLARE]", "chainID", chainID.Uint64())

	if chainID.String() != app.Config.Flare.ChainID {
		log.Fatalln("[FLARE]", "Chain ID Mismatch", "expected", app.Config.Flare.ChainID, "got", chainID.Uint64())
	}

	log.Debugln("[FLARE]", "blockNumber", blockNumber)

	log.Infoln("[FLARE]", "Validated network")
}

func (c *flareClient) GetTransactionByHash(txHash string) (*types.Transaction, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout())
	defer cancel()

	tx, isPending, err := c.client.TransactionByHash(ctx, common.HexToHash(txHash))
	return tx, isPending, err
}

func (c *flareClient) GetTransactionReceipt(txHash string) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout())
	defer cancel()

	receipt, err := c.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	return receipt, err
}

func (c *flareClient) FilterLogs(query ethereum.FilterQuery) ([]types.Log, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout())
	defer cancel()

	return c.client.FilterLogs(ctx, query)
}

func (c *flareClient) SuggestGasPrice() (*big.Int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout())
	defer cancel()

	return c.client.SuggestGasPrice(ctx)
}

func (c *flareClient) MaxQueryBlocks() int64 {
	if app.Config.Flare.MaxQueryBlocks > 0 {
		return app.Config.Flare.MaxQueryBlocks
	}
	return DefaultMaxQueryBlocks
}

func NewClient() (FlareClient, error) {
	client, err := ethclient.Dial(app.Config.Flare.RPCURL)
	return &flareClient{
		client: client,
	}, err
}

// NewTransactor builds signed transaction options for the configured signer.
func NewTransactor(client FlareClient) (*bind.TransactOpts, error) {
	signer, err := app.GetFlareSigner()
	if err != nil {
		return nil, err
	}
	chainID, err := client.GetChainID()
	if err != nil {
		return nil, err
	}
	return bind.NewKeyedTransactorWithChainID(signer.PrivateKey, chainID)
}
