package fassets

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testAgentVault = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testMinter     = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func mintingExecutedLog(t *testing.T, reservationId int64, minted int64, fee int64) types.Log {
	t.Helper()
	event := AssetManagerABI.Events["MintingExecuted"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(minted), big.NewInt(fee))
	require.NoError(t, err)
	return types.Log{
		Address: common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(testAgentVault.Bytes()),
			common.BigToHash(big.NewInt(reservationId)),
		},
		Data:   data,
		TxHash: common.HexToHash("0xabcd"),
	}
}

func TestParseMintingExecuted(t *testing.T) {
	t.Run("valid log", func(t *testing.T) {
		event, err := ParseMintingExecuted(mintingExecutedLog(t, 42, 30000000, 150000))
		require.NoError(t, err)
		assert.Equal(t, testAgentVault, event.AgentVault)
		assert.Equal(t, int64(42), event.CollateralReservationId.Int64())
		assert.Equal(t, int64(30000000), event.MintedAmountUBA.Int64())
		assert.Equal(t, int64(150000), event.AgentFeeUBA.Int64())
		assert.Equal(t, common.HexToHash("0xabcd"), event.Raw.TxHash)
	})

	t.Run("wrong signature", func(t *testing.T) {
		log := mintingExecutedLog(t, 42, 1, 1)
		log.Topics[0] = TransferTopic()
		_, err := ParseMintingExecuted(log)
		assert.ErrorIs(t, err, ErrWrongEventSignature)
	})

	t.Run("missing indexed topic", func(t *testing.T) {
		log := mintingExecutedLog(t, 42, 1, 1)
		log.Topics = log.Topics[:2]
		_, err := ParseMintingExecuted(log)
		assert.ErrorIs(t, err, ErrMalformedEvent)
	})

	t.Run("extra topic", func(t *testing.T) {
		log := mintingExecutedLog(t, 42, 1, 1)
		log.Topics = append(log.Topics, common.Hash{})
		_, err := ParseMintingExecuted(log)
		assert.ErrorIs(t, err, ErrMalformedEvent)
	})
}

func TestParseCollateralReserved(t *testing.T) {
	event := AssetManagerABI.Events["CollateralReserved"]

	var reference [32]byte
	copy(reference[:], common.FromHex("0x4642505266410001000000000000000000000000000000000000000000000123"))

	data, err := event.Inputs.NonIndexed().Pack(
		big.NewInt(30000000),
		big.NewInt(150000),
		big.NewInt(99887766),
		"rAgentUnderlyingAddress123",
		reference,
	)
	require.NoError(t, err)

	log := types.Log{
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(testAgentVault.Bytes()),
			common.BytesToHash(testMinter.Bytes()),
			common.BigToHash(big.NewInt(7)),
		},
		Data: data,
	}

	parsed, err := ParseCollateralReserved(log)
	require.NoError(t, err)
	assert.Equal(t, testAgentVault, parsed.AgentVault)
	assert.Equal(t, testMinter, parsed.Minter)
	assert.Equal(t, int64(7), parsed.CollateralReservationId.Int64())
	assert.Equal(t, int64(30000000), parsed.ValueUBA.Int64())
	assert.Equal(t, int64(150000), parsed.FeeUBA.Int64())
	assert.Equal(t, int64(99887766), parsed.LastUnderlyingBlock.Int64())
	assert.Equal(t, "rAgentUnderlyingAddress123", parsed.PaymentAddress)
	assert.Equal(t, reference, parsed.PaymentReference)

	t.Run("wrong signature", func(t *testing.T) {
		bad := log
		bad.Topics = append([]common.Hash{MintingExecutedTopic()}, log.Topics[1:]...)
		_, err := ParseCollateralReserved(bad)
		assert.ErrorIs(t, err, ErrWrongEventSignature)
	})
}

func TestParseTransfer(t *testing.T) {
	event := ERC20ABI.Events["Transfer"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(30000000))
	require.NoError(t, err)

	log := types.Log{
		Topics: []common.Hash{
			event.ID,
			common.Hash{},
			common.BytesToHash(testMinter.Bytes()),
		},
		Data: data,
	}

	parsed, err := ParseTransfer(log)
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, parsed.From)
	assert.Equal(t, testMinter, parsed.To)
	assert.Equal(t, int64(30000000), parsed.Value.Int64())

	t.Run("empty topics", func(t *testing.T) {
		_, err := ParseTransfer(types.Log{})
		assert.ErrorIs(t, err, ErrWrongEventSignature)
	})
}

func TestParseRedemptionRequested(t *testing.T) {
	event := AssetManagerABI.Events["RedemptionRequested"]

	var reference [32]byte
	reference[31] = 0x42

	data, err := event.Inputs.NonIndexed().Pack(
		"rRedeemerAddress456",
		big.NewInt(20000000),
		reference,
	)
	require.NoError(t, err)

	log := types.Log{
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(testAgentVault.Bytes()),
			common.BigToHash(big.NewInt(11)),
		},
		Data: data,
	}

	parsed, err := ParseRedemptionRequested(log)
	require.NoError(t, err)
	assert.Equal(t, int64(11), parsed.RequestId.Int64())
	assert.Equal(t, "rRedeemerAddress456", parsed.PaymentAddress)
	assert.Equal(t, int64(20000000), parsed.ValueUBA.Int64())
	assert.Equal(t, reference, parsed.PaymentReference)
}
