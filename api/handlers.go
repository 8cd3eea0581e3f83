package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shield-xrpfinance/shield-bridge/bridge"
	"github.com/shield-xrpfinance/shield-bridge/fassets"
	"github.com/shield-xrpfinance/shield-bridge/models"
)

type bridgeResponse struct {
	BridgeId         string `json:"bridge_id"`
	Status           string `json:"status"`
	SourceAmount     string `json:"source_amount"`
	RoundedAmount    string `json:"rounded_amount"`
	Lots             int64  `json:"lots"`
	PaymentReference string `json:"payment_reference,omitempty"`
	PaymentAddress   string `json:"payment_address,omitempty"`
	SourceTxHash     string `json:"source_tx_hash,omitempty"`
	DestMintTxHash   string `json:"dest_mint_tx_hash,omitempty"`
	MintedAmount     string `json:"minted_amount,omitempty"`
	LastError        string `json:"last_error,omitempty"`
}

func toBridgeResponse(b *models.Bridge) bridgeResponse {
	return bridgeResponse{
		BridgeId:         b.BridgeId,
		Status:           b.Status,
		SourceAmount:     b.SourceAmount,
		RoundedAmount:    b.RoundedAmount,
		Lots:             b.Lots,
		PaymentReference: b.PaymentReference,
		PaymentAddress:   b.PaymentAddress,
		SourceTxHash:     b.SourceTxHash,
		DestMintTxHash:   b.DestMintTxHash,
		MintedAmount:     b.MintedAmount,
		LastError:        b.LastError,
	}
}

func (x *Server) handleStartDeposit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		errorResponse(w, http.StatusBadRequest, err)
		return
	}

	created, err := x.orchestrator.InitiateDeposit(body.Amount)
	if err != nil {
		if errors.Is(err, fassets.ErrAmountBelowMinimum) || errors.Is(err, fassets.ErrInvalidAmount) {
			errorResponse(w, http.StatusBadRequest, err)
			return
		}
		errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	jsonResponse(w, http.StatusCreated, toBridgeResponse(created))
}

func (x *Server) handleGetBridge(w http.ResponseWriter, r *http.Request) {
	found, err := x.store.GetBridgeById(chi.URLParam(r, "id"))
	if errors.Is(err, bridge.ErrBridgeNotFound) {
		errorResponse(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	jsonResponse(w, http.StatusOK, toBridgeResponse(found))
}

// handleConfirmPayment reports the depositor's source-ledger payment hash;
// verification and the mint pipeline run in the background so the request
// returns promptly.
func (x *Server) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	bridgeId := chi.URLParam(r, "id")

	var body struct {
		SourceTxHash string `json:"source_tx_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if body.SourceTxHash == "" {
		errorResponse(w, http.StatusBadRequest, errors.New("source_tx_hash is required"))
		return
	}

	found, err := x.store.GetBridgeById(bridgeId)
	if errors.Is(err, bridge.ErrBridgeNotFound) {
		errorResponse(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	if models.IsTerminalStatus(found.Status) {
		errorResponse(w, http.StatusConflict, errors.New("bridge is in terminal status "+found.Status))
		return
	}

	go func() {
		_ = x.orchestrator.ConfirmPayment(bridgeId, body.SourceTxHash)
	}()

	jsonResponse(w, http.StatusAccepted, map[string]string{
		"bridge_id": bridgeId,
		"status":    "processing",
	})
}

func (x *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if x.health == nil {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	last, err := x.health.FindLastHealth()
	if err != nil {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "starting"})
		return
	}
	jsonResponse(w, http.StatusOK, last)
}
