package fassets

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Strict decoders for the asset manager's event log entries. Every decoder
// checks the event signature and topic arity before unpacking; an unknown
// shape is a hard decode error, never a guess.

var (
	ErrWrongEventSignature = errors.New("log does not match expected event signature")
	ErrMalformedEvent      = errors.New("log has unexpected topic layout")
)

type CollateralReservedEvent struct {
	AgentVault              common.Address
	Minter                  common.Address
	CollateralReservationId *big.Int
	ValueUBA                *big.Int
	FeeUBA                  *big.Int
	LastUnderlyingBlock     *big.Int
	PaymentAddress          string
	PaymentReference        [32]byte
	Raw                     types.Log
}

type MintingExecutedEvent struct {
	AgentVault              common.Address
	CollateralReservationId *big.Int
	MintedAmountUBA         *big.Int
	AgentFeeUBA             *big.Int
	Raw                     types.Log
}

type RedemptionRequestedEvent struct {
	AgentVault       common.Address
	RequestId        *big.Int
	PaymentAddress   string
	ValueUBA         *big.Int
	PaymentReference [32]byte
	Raw              types.Log
}

type TransferEvent struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Raw   types.Log
}

func indexedArguments(event abi.Event) abi.Arguments {
	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func checkLog(parsedABI abi.ABI, name string, log types.Log) (abi.Event, error) {
	event, ok := parsedABI.Events[name]
	if !ok {
		return abi.Event{}, fmt.Errorf("unknown event %q", name)
	}
	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return abi.Event{}, fmt.Errorf("%w: want %s", ErrWrongEventSignature, name)
	}
	if len(log.Topics) != len(indexedArguments(event))+1 {
		return abi.Event{}, fmt.Errorf("%w: %s has %d topics", ErrMalformedEvent, name, len(log.Topics))
	}
	return event, nil
}

func ParseCollateralReserved(log types.Log) (*CollateralReservedEvent, error) {
	event, err := checkLog(AssetManagerABI, "CollateralReserved", log)
	if err != nil {
		return nil, err
	}

	var out CollateralReservedEvent
	if err := AssetManagerABI.UnpackIntoInterface(&out, event.Name, log.Data); err != nil {
		return nil, fmt.Errorf("%w: CollateralReserved data: %s", ErrMalformedEvent, err)
	}
	if err := abi.ParseTopics(&out, indexedArguments(event), log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("%w: CollateralReserved topics: %s", ErrMalformedEvent, err)
	}
	out.Raw = log
	return &out, nil
}

func ParseMintingExecuted(log types.Log) (*MintingExecutedEvent, error) {
	event, err := checkLog(AssetManagerABI, "MintingExecuted", log)
	if err != nil {
		return nil, err
	}

	var out MintingExecutedEvent
	if err := AssetManagerABI.UnpackIntoInterface(&out, event.Name, log.Data); err != nil {
		return nil, fmt.Errorf("%w: MintingExecuted data: %s", ErrMalformedEvent, err)
	}
	if err := abi.ParseTopics(&out, indexedArguments(event), log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("%w: MintingExecuted topics: %s", ErrMalformedEvent, err)
	}
	out.Raw = log
	return &out, nil
}

func ParseRedemptionRequested(log types.Log) (*RedemptionRequestedEvent, error) {
	event, err := checkLog(AssetManagerABI, "RedemptionRequested", log)
	if err != nil {
		return nil, err
	}

	var out RedemptionRequestedEvent
	if err := AssetManagerABI.UnpackIntoInterface(&out, event.Name, log.Data); err != nil {
		return nil, fmt.Errorf("%w: RedemptionRequested data: %s", ErrMalformedEvent, err)
	}
	if err := abi.ParseTopics(&out, indexedArguments(event), log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("%w: RedemptionRequested topics: %s", ErrMalformedEvent, err)
	}
	out.Raw = log
	return &out, nil
}

func ParseTransfer(log types.Log) (*TransferEvent, error) {
	event, err := checkLog(ERC20ABI, "Transfer", log)
	if err != nil {
		return nil, err
	}

	var out TransferEvent
	if err := ERC20ABI.UnpackIntoInterface(&out, event.Name, log.Data); err != nil {
		return nil, fmt.Errorf("%w: Transfer data: %s", ErrMalformedEvent, err)
	}
	if err := abi.ParseTopics(&out, indexedArguments(event), log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("%w: Transfer topics: %s", ErrMalformedEvent, err)
	}
	out.Raw = log
	return &out, nil
}

// MintingExecutedTopic is the event signature topic used by watchdog log
// queries.
func MintingExecutedTopic() common.Hash {
	return AssetManagerABI.Events["MintingExecuted"].ID
}

func CollateralReservedTopic() common.Hash {
	return AssetManagerABI.Events["CollateralReserved"].ID
}

func RedemptionRequestedTopic() common.Hash {
	return AssetManagerABI.Events["RedemptionRequested"].ID
}

func TransferTopic() common.Hash {
	return ERC20ABI.Events["Transfer"].ID
}
