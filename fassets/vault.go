package fassets

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shield-xrpfinance/shield-bridge/flare"
	log "github.com/sirupsen/logrus"
)

const vaultJSON = `[
	{"type":"function","name":"deposit","stateMutability":"nonpayable","inputs":[{"name":"_assets","type":"uint256"},{"name":"_receiver","type":"address"}],"outputs":[{"name":"_shares","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"_account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const erc20WriteJSON = `[
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"_account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	VaultABI      = mustParseABI(vaultJSON)
	ERC20WriteABI = mustParseABI(erc20WriteJSON)
)

// Vault deposits freshly minted wrapped tokens into the yield vault so the
// depositor ends the bridge holding vault shares, not raw wrapped tokens.
type Vault interface {
	Deposit(amount *big.Int, receiver common.Address) (string, error)
	ShareBalance(account common.Address) (*big.Int, error)
}

type yieldVault struct {
	client        flare.FlareClient
	vaultAddress  common.Address
	assetAddress  common.Address
	vaultContract *bind.BoundContract
	assetContract *bind.BoundContract
}

func NewYieldVault(client flare.FlareClient, vaultAddress common.Address, assetAddress common.Address) Vault {
	backend := client.GetClient()
	return &yieldVault{
		client:        client,
		vaultAddress:  vaultAddress,
		assetAddress:  assetAddress,
		vaultContract: bind.NewBoundContract(vaultAddress, VaultABI, backend, backend, backend),
		assetContract: bind.NewBoundContract(assetAddress, ERC20WriteABI, backend, backend, backend),
	}
}

func (x *yieldVault) callOpts() (*bind.CallOpts, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	return &bind.CallOpts{Context: ctx}, cancel
}

// Deposit approves the vault for the wrapped amount and calls deposit. Both
// transactions ride the fee-escalation loop and must mine successfully.
func (x *yieldVault) Deposit(amount *big.Int, receiver common.Address) (string, error) {
	if err := x.approve(amount); err != nil {
		return "", err
	}

	opts, err := flare.NewTransactor(x.client)
	if err != nil {
		return "", err
	}

	tx, err := flare.SubmitWithEscalation(x.client, opts, flare.NewEscalationState(submitMaxAttempts),
		func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return x.vaultContract.Transact(opts, "deposit", amount, receiver)
		})
	if err != nil {
		return "", fmt.Errorf("error submitting vault deposit: %w", err)
	}

	log.Info("[VAULT] Submitted vault deposit: ", tx.Hash().Hex())

	receipt, err := x.waitForReceipt(tx.Hash().Hex())
	if err != nil {
		return "", err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("%w: vault deposit tx %s", ErrTxReverted, tx.Hash().Hex())
	}
	return tx.Hash().Hex(), nil
}

func (x *yieldVault) approve(amount *big.Int) error {
	opts, err := flare.NewTransactor(x.client)
	if err != nil {
		return err
	}

	tx, err := flare.SubmitWithEscalation(x.client, opts, flare.NewEscalationState(submitMaxAttempts),
		func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return x.assetContract.Transact(opts, "approve", x.vaultAddress, amount)
		})
	if err != nil {
		return fmt.Errorf("error submitting approve: %w", err)
	}

	receipt, err := x.waitForReceipt(tx.Hash().Hex())
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: approve tx %s", ErrTxReverted, tx.Hash().Hex())
	}
	return nil
}

func (x *yieldVault) ShareBalance(account common.Address) (*big.Int, error) {
	opts, cancel := x.callOpts()
	defer cancel()
	var out []interface{}
	if err := x.vaultContract.Call(opts, &out, "balanceOf", account); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (x *yieldVault) waitForReceipt(txHash string) (*types.Receipt, error) {
	return waitForReceipt(x.client, txHash)
}
