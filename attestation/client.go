package attestation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shield-xrpfinance/shield-bridge/app"
	log "github.com/sirupsen/logrus"
)

// Two-step proof retrieval against the attestation provider: prepare encodes
// a payment attestation request from a transaction id, then get-specific-proof
// returns the finalized proof bundle for a voting round. The bundle is
// re-encoded into the payment proof bytes the asset manager's executeMinting
// call verifies.

var (
	ErrProofPending  = errors.New("proof not yet available for voting round")
	ErrProofInvalid  = errors.New("attestation provider reported invalid request")
	ErrProofTimedOut = errors.New("timed out waiting for attestation proof")
)

const (
	proofPollInterval = 10 * time.Second

	// XRP payment attestation type and source ids, 32-byte right-padded ASCII
	attestationTypePayment = "Payment"
	sourceIdXRP            = "XRP"
)

type Client interface {
	PrepareRequest(txHash string) (string, error)
	GetProof(roundId uint64, encodedRequest string) (*PaymentProof, error)
	LatestRound() (uint64, error)
	RetrievePaymentProof(txHash string) (*PaymentProof, error)
}

type PaymentProof struct {
	MerkleProof []string        `json:"merkle_proof"`
	VotingRound uint64          `json:"voting_round"`
	Response    PaymentResponse `json:"response"`
}

type PaymentResponse struct {
	AttestationType     string `json:"attestationType"`
	SourceId            string `json:"sourceId"`
	VotingRound         string `json:"votingRound"`
	LowestUsedTimestamp string `json:"lowestUsedTimestamp"`
	RequestBody         struct {
		TransactionId string `json:"transactionId"`
		InUtxo        string `json:"inUtxo"`
		Utxo          string `json:"utxo"`
	} `json:"requestBody"`
	ResponseBody struct {
		BlockNumber               string `json:"blockNumber"`
		BlockTimestamp            string `json:"blockTimestamp"`
		SourceAddressHash         string `json:"sourceAddressHash"`
		ReceivingAddressHash      string `json:"receivingAddressHash"`
		IntendedReceivingAddrHash string `json:"intendedReceivingAddressHash"`
		SpentAmount               string `json:"spentAmount"`
		IntendedSpentAmount       string `json:"intendedSpentAmount"`
		ReceivedAmount            string `json:"receivedAmount"`
		IntendedReceivedAmount    string `json:"intendedReceivedAmount"`
		StandardPaymentReference  string `json:"standardPaymentReference"`
		OneToOne                  bool   `json:"oneToOne"`
		Status                    string `json:"status"`
	} `json:"responseBody"`
}

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	timeout time.Duration
}

func NewClient() Client {
	timeout := time.Duration(app.Config.Attestation.TimeoutMillis) * time.Millisecond
	return &client{
		baseURL: app.Config.Attestation.BaseURL,
		apiKey:  app.Config.Attestation.APIKey,
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (x *client) post(path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, x.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if x.apiKey != "" {
		req.Header.Set("X-API-KEY", x.apiKey)
	}
	res, err := x.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("attestation provider returned %d: %s", res.StatusCode, string(raw))
	}
	return json.Unmarshal(raw, out)
}

func (x *client) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, x.baseURL+path, nil)
	if err != nil {
		return err
	}
	if x.apiKey != "" {
		req.Header.Set("X-API-KEY", x.apiKey)
	}
	res, err := x.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("attestation provider returned %d: %s", res.StatusCode, string(raw))
	}
	return json.Unmarshal(raw, out)
}

func paddedAscii(s string) string {
	padded := make([]byte, 32)
	copy(padded, s)
	return "0x" + common.Bytes2Hex(padded)
}

// PrepareRequest asks the provider to ABI-encode a payment attestation
// request for the given underlying transaction.
func (x *client) PrepareRequest(txHash string) (string, error) {
	body := map[string]interface{}{
		"attestationType": paddedAscii(attestationTypePayment),
		"sourceId":        paddedAscii(sourceIdXRP),
		"requestBody": map[string]string{
			"transactionId": "0x" + txHash,
			"inUtxo":        "0",
			"utxo":          "0",
		},
	}
	var out struct {
		Status            string `json:"status"`
		AbiEncodedRequest string `json:"abiEncodedRequest"`
	}
	if err := x.post("/attestation-client/api/proof/prepare", body, &out); err != nil {
		return "", err
	}
	if out.Status != "VALID" {
		return "", fmt.Errorf("%w: status %s for tx %s", ErrProofInvalid, out.Status, txHash)
	}
	return out.AbiEncodedRequest, nil
}

func (x *client) LatestRound() (uint64, error) {
	var out struct {
		LatestAvailableRoundId uint64 `json:"latestAvailableRoundId"`
	}
	if err := x.get("/attestation-client/api/proof/status", &out); err != nil {
		return 0, err
	}
	return out.LatestAvailableRoundId, nil
}

// GetProof fetches the finalized proof bundle for an encoded request in a
// given voting round. ErrProofPending means the round has not finalized the
// request yet and the caller should poll again.
func (x *client) GetProof(roundId uint64, encodedRequest string) (*PaymentProof, error) {
	body := map[string]interface{}{
		"roundId":      roundId,
		"requestBytes": encodedRequest,
	}
	var out struct {
		Status string `json:"status"`
		Data   struct {
			MerkleProof []string        `json:"merkleProof"`
			RoundId     uint64          `json:"roundId"`
			Response    PaymentResponse `json:"response"`
		} `json:"data"`
	}
	if err := x.post("/attestation-client/api/proof/get-specific-proof", body, &out); err != nil {
		return nil, err
	}
	switch out.Status {
	case "OK":
		return &PaymentProof{
			MerkleProof: out.Data.MerkleProof,
			VotingRound: out.Data.RoundId,
			Response:    out.Data.Response,
		}, nil
	case "PENDING":
		return nil, ErrProofPending
	default:
		return nil, fmt.Errorf("%w: status %s", ErrProofInvalid, out.Status)
	}
}

// RetrievePaymentProof drives the full two-step flow: prepare the encoded
// request, then poll finalized rounds until the proof lands or the configured
// timeout expires.
func (x *client) RetrievePaymentProof(txHash string) (*PaymentProof, error) {
	encoded, err := x.PrepareRequest(txHash)
	if err != nil {
		return nil, err
	}

	startRound, err := x.LatestRound()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(x.timeout)
	round := startRound
	for {
		proof, err := x.GetProof(round, encoded)
		if err == nil {
			log.Info("[ATTESTATION] Retrieved proof for tx ", txHash, " in round ", proof.VotingRound)
			return proof, nil
		}
		if !errors.Is(err, ErrProofPending) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: tx %s", ErrProofTimedOut, txHash)
		}
		time.Sleep(proofPollInterval)
		if latest, err := x.LatestRound(); err == nil && latest > round {
			round = latest
		}
	}
}

// proofArguments is the ABI layout of the asset manager's payment proof
// parameter: a bytes32 merkle path plus the attestation response tuple.
var proofArguments = abi.Arguments{
	{Type: mustNewType("bytes32[]")},
	{Type: mustNewTupleType()},
}

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

func mustNewTupleType() abi.Type {
	typ, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "attestationType", Type: "bytes32"},
		{Name: "sourceId", Type: "bytes32"},
		{Name: "votingRound", Type: "uint64"},
		{Name: "lowestUsedTimestamp", Type: "uint64"},
		{Name: "requestBody", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "transactionId", Type: "bytes32"},
			{Name: "inUtxo", Type: "uint256"},
			{Name: "utxo", Type: "uint256"},
		}},
		{Name: "responseBody", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "blockNumber", Type: "uint64"},
			{Name: "blockTimestamp", Type: "uint64"},
			{Name: "sourceAddressHash", Type: "bytes32"},
			{Name: "receivingAddressHash", Type: "bytes32"},
			{Name: "intendedReceivingAddressHash", Type: "bytes32"},
			{Name: "spentAmount", Type: "int256"},
			{Name: "intendedSpentAmount", Type: "int256"},
			{Name: "receivedAmount", Type: "int256"},
			{Name: "intendedReceivedAmount", Type: "int256"},
			{Name: "standardPaymentReference", Type: "bytes32"},
			{Name: "oneToOne", Type: "bool"},
			{Name: "status", Type: "uint8"},
		}},
	})
	if err != nil {
		panic(err)
	}
	return typ
}

type proofRequestBody struct {
	TransactionId [32]byte
	InUtxo        *big.Int
	Utxo          *big.Int
}

type proofResponseBody struct {
	BlockNumber                  uint64
	BlockTimestamp               uint64
	SourceAddressHash            [32]byte
	ReceivingAddressHash         [32]byte
	IntendedReceivingAddressHash [32]byte
	SpentAmount                  *big.Int
	IntendedSpentAmount          *big.Int
	ReceivedAmount               *big.Int
	IntendedReceivedAmount       *big.Int
	StandardPaymentReference     [32]byte
	OneToOne                     bool
	Status                       uint8
}

type proofResponse struct {
	AttestationType     [32]byte
	SourceId            [32]byte
	VotingRound         uint64
	LowestUsedTimestamp uint64
	RequestBody         proofRequestBody
	ResponseBody        proofResponseBody
}

func bytes32FromHex(s string) [32]byte {
	var out [32]byte
	copy(out[:], common.FromHex(s))
	return out
}

func bigFromDecimal(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal value %q in proof response", s)
	}
	return value, nil
}

func uint64FromDecimal(s string) (uint64, error) {
	value, err := bigFromDecimal(s)
	if err != nil {
		return 0, err
	}
	if !value.IsUint64() {
		return 0, fmt.Errorf("value %q out of uint64 range in proof response", s)
	}
	return value.Uint64(), nil
}

// EncodeProof packs the retrieved proof bundle into the bytes parameter the
// asset manager's executeMinting call verifies on-chain.
func EncodeProof(proof *PaymentProof) ([]byte, error) {
	merklePath := make([][32]byte, len(proof.MerkleProof))
	for i, node := range proof.MerkleProof {
		merklePath[i] = bytes32FromHex(node)
	}

	response := proof.Response

	votingRound, err := uint64FromDecimal(response.VotingRound)
	if err != nil {
		return nil, err
	}
	lowestUsedTimestamp, err := uint64FromDecimal(response.LowestUsedTimestamp)
	if err != nil {
		return nil, err
	}
	inUtxo, err := bigFromDecimal(response.RequestBody.InUtxo)
	if err != nil {
		return nil, err
	}
	utxo, err := bigFromDecimal(response.RequestBody.Utxo)
	if err != nil {
		return nil, err
	}
	blockNumber, err := uint64FromDecimal(response.ResponseBody.BlockNumber)
	if err != nil {
		return nil, err
	}
	blockTimestamp, err := uint64FromDecimal(response.ResponseBody.BlockTimestamp)
	if err != nil {
		return nil, err
	}
	spentAmount, err := bigFromDecimal(response.ResponseBody.SpentAmount)
	if err != nil {
		return nil, err
	}
	intendedSpentAmount, err := bigFromDecimal(response.ResponseBody.IntendedSpentAmount)
	if err != nil {
		return nil, err
	}
	receivedAmount, err := bigFromDecimal(response.ResponseBody.ReceivedAmount)
	if err != nil {
		return nil, err
	}
	intendedReceivedAmount, err := bigFromDecimal(response.ResponseBody.IntendedReceivedAmount)
	if err != nil {
		return nil, err
	}
	status, err := uint64FromDecimal(response.ResponseBody.Status)
	if err != nil {
		return nil, err
	}

	packed := proofResponse{
		AttestationType:     bytes32FromHex(response.AttestationType),
		SourceId:            bytes32FromHex(response.SourceId),
		VotingRound:         votingRound,
		LowestUsedTimestamp: lowestUsedTimestamp,
		RequestBody: proofRequestBody{
			TransactionId: bytes32FromHex(response.RequestBody.TransactionId),
			InUtxo:        inUtxo,
			Utxo:          utxo,
		},
		ResponseBody: proofResponseBody{
			BlockNumber:                  blockNumber,
			BlockTimestamp:               blockTimestamp,
			SourceAddressHash:            bytes32FromHex(response.ResponseBody.SourceAddressHash),
			ReceivingAddressHash:         bytes32FromHex(response.ResponseBody.ReceivingAddressHash),
			IntendedReceivingAddressHash: bytes32FromHex(response.ResponseBody.IntendedReceivingAddrHash),
			SpentAmount:                  spentAmount,
			IntendedSpentAmount:          intendedSpentAmount,
			ReceivedAmount:               receivedAmount,
			IntendedReceivedAmount:       intendedReceivedAmount,
			StandardPaymentReference:     bytes32FromHex(response.ResponseBody.StandardPaymentReference),
			OneToOne:                     response.ResponseBody.OneToOne,
			Status:                       uint8(status),
		},
	}

	return proofArguments.Pack(merklePath, packed)
}

// ProofPaymentReference returns the 0x-prefixed standard payment reference
// carried inside the proof, for cross-checking against the bridge record.
func ProofPaymentReference(proof *PaymentProof) string {
	return "0x" + common.Bytes2Hex(common.FromHex(proof.Response.ResponseBody.StandardPaymentReference))
}
