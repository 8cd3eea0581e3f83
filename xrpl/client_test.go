package xrpl

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const referenceHex = "4642505266410001000000000000000000000000000000000000000000000123"

func decodeTransaction(t *testing.T, raw string) *Transaction {
	t.Helper()
	var tx Transaction
	require.NoError(t, json.Unmarshal([]byte(raw), &tx))
	return &tx
}

func TestPaymentReference(t *testing.T) {
	t.Run("extracts 32-byte memo", func(t *testing.T) {
		tx := decodeTransaction(t, `{
			"Memos": [{"Memo": {"MemoData": "`+referenceHex+`"}}]
		}`)
		assert.Equal(t, "0x"+referenceHex, tx.PaymentReference())
	})

	t.Run("accepts 0x prefix and uppercase hex", func(t *testing.T) {
		tx := decodeTransaction(t, `{
			"Memos": [{"Memo": {"MemoData": "0x4642505266410001000000000000000000000000000000000000000000000ABC"}}]
		}`)
		assert.Equal(t,
			"0x4642505266410001000000000000000000000000000000000000000000000abc",
			tx.PaymentReference())
	})

	t.Run("skips memos with the wrong length", func(t *testing.T) {
		tx := decodeTransaction(t, `{
			"Memos": [
				{"Memo": {"MemoData": "cafe"}},
				{"Memo": {"MemoData": "`+referenceHex+`"}}
			]
		}`)
		assert.Equal(t, "0x"+referenceHex, tx.PaymentReference())
	})

	t.Run("skips non-hex memos", func(t *testing.T) {
		tx := decodeTransaction(t, `{
			"Memos": [{"Memo": {"MemoData": "not hex at all"}}]
		}`)
		assert.Equal(t, "", tx.PaymentReference())
	})

	t.Run("no memos", func(t *testing.T) {
		tx := decodeTransaction(t, `{}`)
		assert.Equal(t, "", tx.PaymentReference())
	})
}

func TestDeliveredDrops(t *testing.T) {
	t.Run("meta delivered amount wins", func(t *testing.T) {
		tx := decodeTransaction(t, `{
			"Amount": "30000000",
			"meta": {"delivered_amount": "25000000"}
		}`)
		assert.Equal(t, "25000000", tx.DeliveredDrops())
	})

	t.Run("falls back to declared amount", func(t *testing.T) {
		tx := decodeTransaction(t, `{"Amount": "30000000", "meta": {}}`)
		assert.Equal(t, "30000000", tx.DeliveredDrops())
	})
}

func clientPool(t *testing.T, response string) (*Pool, *fakeConn) {
	t.Helper()
	dialer := newFakeDialer()
	conn := dialer.add("wss://one", response)
	pool := NewPoolWithDialer(poolConfig([]string{"wss://one"}, 1), dialer.dial)
	require.NoError(t, pool.Initialize())
	t.Cleanup(pool.Shutdown)
	return pool, conn
}

func TestGetLedgerIndex(t *testing.T) {
	pool, _ := clientPool(t, `{"ledger_current_index": 812345}`)

	index, err := pool.GetLedgerIndex()
	require.NoError(t, err)
	assert.Equal(t, int64(812345), index)
}

func TestGetAccountInfo(t *testing.T) {
	pool, conn := clientPool(t, `{
		"account_data": {"Account": "rAccount1", "Balance": "1000000", "Sequence": 7}
	}`)

	info, err := pool.GetAccountInfo("rAccount1")
	require.NoError(t, err)
	assert.Equal(t, "rAccount1", info.Account)
	assert.Equal(t, "1000000", info.Balance)
	assert.Equal(t, uint32(7), info.Sequence)

	// account lookups are cached
	_, err = pool.GetAccountInfo("rAccount1")
	require.NoError(t, err)
	assert.Equal(t, 1, conn.callCount())
}

func TestGetTransaction(t *testing.T) {
	pool, _ := clientPool(t, `{
		"hash": "ABC123",
		"Account": "rSender1",
		"Destination": "rReceiver1",
		"Amount": "25000000",
		"Memos": [{"Memo": {"MemoData": "`+referenceHex+`"}}],
		"validated": true,
		"meta": {"TransactionResult": "tesSUCCESS", "delivered_amount": "25000000"}
	}`)

	tx, err := pool.GetTransaction("ABC123")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", tx.Hash)
	assert.True(t, tx.Validated)
	assert.Equal(t, "tesSUCCESS", tx.Meta.TransactionResult)
	assert.Equal(t, "0x"+referenceHex, tx.PaymentReference())
	assert.Equal(t, "25000000", tx.DeliveredDrops())
}

func TestSubmitPayment(t *testing.T) {
	t.Run("returns hash on tes result", func(t *testing.T) {
		pool, _ := clientPool(t, `{
			"engine_result": "tesSUCCESS",
			"tx_json": {"hash": "DEF456"}
		}`)

		hash, err := pool.SubmitPayment("deadbeef")
		require.NoError(t, err)
		assert.Equal(t, "DEF456", hash)
	})

	t.Run("rejects non-tes result", func(t *testing.T) {
		pool, _ := clientPool(t, `{
			"engine_result": "tecUNFUNDED_PAYMENT",
			"tx_json": {"hash": "DEF456"}
		}`)

		_, err := pool.SubmitPayment("deadbeef")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tecUNFUNDED_PAYMENT")
	})
}
