package xrpl

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Client is the typed query surface the orchestrator uses; implemented by
// Pool.
type Client interface {
	GetLedgerIndex() (int64, error)
	GetAccountInfo(account string) (*AccountInfo, error)
	GetTransaction(hash string) (*Transaction, error)
	SubmitPayment(txBlob string) (string, error)
}

var _ Client = &Pool{}

type AccountInfo struct {
	Account  string `json:"Account"`
	Balance  string `json:"Balance"`
	Sequence uint32 `json:"Sequence"`
}

type memoWrapper struct {
	Memo struct {
		MemoData string `json:"MemoData"`
	} `json:"Memo"`
}

type Transaction struct {
	Hash        string `json:"hash"`
	Account     string `json:"Account"`
	Destination string `json:"Destination"`
	// Amount is the delivered amount in drops for XRP payments
	Amount    string        `json:"Amount"`
	Memos     []memoWrapper `json:"Memos"`
	Validated bool          `json:"validated"`
	Meta      struct {
		TransactionResult string `json:"TransactionResult"`
		DeliveredAmount   string `json:"delivered_amount"`
	} `json:"meta"`
}

// PaymentReference extracts the bridge payment reference from the first memo
// carrying a 32-byte value, returned as 0x-prefixed lowercase hex.
func (t *Transaction) PaymentReference() string {
	for _, memo := range t.Memos {
		data := strings.TrimPrefix(strings.ToLower(memo.Memo.MemoData), "0x")
		decoded, err := hex.DecodeString(data)
		if err != nil || len(decoded) != 32 {
			continue
		}
		return "0x" + hex.EncodeToString(decoded)
	}
	return ""
}

// DeliveredDrops is the amount actually delivered; the meta field wins over
// the declared Amount because partial payments deliver less than declared.
func (t *Transaction) DeliveredDrops() string {
	if t.Meta.DeliveredAmount != "" {
		return t.Meta.DeliveredAmount
	}
	return t.Amount
}

func (p *Pool) GetLedgerIndex() (int64, error) {
	result, err := p.Request("ledger_current", nil, nil)
	if err != nil {
		return 0, err
	}
	var response struct {
		LedgerCurrentIndex int64 `json:"ledger_current_index"`
	}
	if err := json.Unmarshal(result, &response); err != nil {
		return 0, fmt.Errorf("error unmarshalling ledger_current response: %w", err)
	}
	return response.LedgerCurrentIndex, nil
}

func (p *Pool) GetAccountInfo(account string) (*AccountInfo, error) {
	params := map[string]interface{}{
		"account":      account,
		"ledger_index": "validated",
	}
	result, err := p.Request("account_info", params, &RequestOptions{Cache: true, CacheTTL: 10 * time.Second})
	if err != nil {
		return nil, err
	}
	var response struct {
		AccountData AccountInfo `json:"account_data"`
	}
	if err := json.Unmarshal(result, &response); err != nil {
		return nil, fmt.Errorf("error unmarshalling account_info response: %w", err)
	}
	return &response.AccountData, nil
}

func (p *Pool) GetTransaction(hash string) (*Transaction, error) {
	params := map[string]interface{}{
		"transaction": hash,
	}
	result, err := p.Request("tx", params, nil)
	if err != nil {
		return nil, err
	}
	var tx Transaction
	if err := json.Unmarshal(result, &tx); err != nil {
		return nil, fmt.Errorf("error unmarshalling tx response: %w", err)
	}
	return &tx, nil
}

func (p *Pool) SubmitPayment(txBlob string) (string, error) {
	params := map[string]interface{}{
		"tx_blob": txBlob,
	}
	result, err := p.Request("submit", params, nil)
	if err != nil {
		return "", err
	}
	var response struct {
		EngineResult string `json:"engine_result"`
		TxJson       struct {
			Hash string `json:"hash"`
		} `json:"tx_json"`
	}
	if err := json.Unmarshal(result, &response); err != nil {
		return "", fmt.Errorf("error unmarshalling submit response: %w", err)
	}
	if !strings.HasPrefix(response.EngineResult, "tes") {
		return "", fmt.Errorf("payment submission rejected: %s", response.EngineResult)
	}
	return response.TxJson.Hash, nil
}
