package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	CollectionBridges = "bridges"
)

// types of bridge status
const (
	BridgeStatusPending             = "pending"
	BridgeStatusCreating            = "creating"
	BridgeStatusReservingCollateral = "reserving_collateral"
	BridgeStatusAwaitingPayment     = "awaiting_payment"
	BridgeStatusSourceConfirmed     = "source_confirmed"
	BridgeStatusGeneratingProof     = "generating_proof"
	BridgeStatusProofGenerated      = "proof_generated"
	BridgeStatusMinting             = "minting"
	BridgeStatusVaultMinting        = "vault_minting"
	BridgeStatusCompleted           = "completed"
	BridgeStatusFailed              = "failed"
	BridgeStatusCancelled           = "cancelled"
)

// statusRank orders the happy path; terminal states are handled separately
var statusRank = map[string]int{
	BridgeStatusPending:             0,
	BridgeStatusCreating:            1,
	BridgeStatusReservingCollateral: 2,
	BridgeStatusAwaitingPayment:     3,
	BridgeStatusSourceConfirmed:     4,
	BridgeStatusGeneratingProof:     5,
	BridgeStatusProofGenerated:      6,
	BridgeStatusMinting:             7,
	BridgeStatusVaultMinting:        8,
	BridgeStatusCompleted:           9,
}

// NonTerminalStatuses lists every status a bridge can still move out of.
func NonTerminalStatuses() []string {
	return []string{
		BridgeStatusPending,
		BridgeStatusCreating,
		BridgeStatusReservingCollateral,
		BridgeStatusAwaitingPayment,
		BridgeStatusSourceConfirmed,
		BridgeStatusGeneratingProof,
		BridgeStatusProofGenerated,
		BridgeStatusMinting,
		BridgeStatusVaultMinting,
	}
}

func IsTerminalStatus(status string) bool {
	return status == BridgeStatusCompleted ||
		status == BridgeStatusFailed ||
		status == BridgeStatusCancelled
}

// CanTransition reports whether a bridge may move from one status to another.
// The happy path only advances forward; failed and cancelled are reachable
// from any non-terminal status; terminal states accept no transition.
func CanTransition(from string, to string) bool {
	if IsTerminalStatus(from) {
		return false
	}
	if to == BridgeStatusFailed || to == BridgeStatusCancelled {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// StatusReached reports whether a bridge already sits at or beyond the target
// happy-path status. A retried handler uses it to resume instead of failing
// on a transition it performed before.
func StatusReached(current string, target string) bool {
	currentRank, ok := statusRank[current]
	if !ok {
		return false
	}
	targetRank, ok := statusRank[target]
	if !ok {
		return false
	}
	return currentRank >= targetRank
}

type Bridge struct {
	Id                      *primitive.ObjectID `bson:"_id,omitempty"`
	BridgeId                string              `bson:"bridge_id"`
	Status                  string              `bson:"status"`
	SourceAmount            string              `bson:"source_amount"`
	RoundedAmount           string              `bson:"rounded_amount"`
	Lots                    int64               `bson:"lots"`
	PaymentReference        string              `bson:"payment_reference,omitempty"`
	CollateralReservationId string              `bson:"collateral_reservation_id,omitempty"`
	AgentVault              string              `bson:"agent_vault,omitempty"`
	PaymentAddress          string              `bson:"payment_address,omitempty"`
	SourceTxHash            string              `bson:"source_tx_hash,omitempty"`
	DestMintTxHash          string              `bson:"dest_mint_tx_hash,omitempty"`
	MintedAmount            string              `bson:"minted_amount,omitempty"`
	VaultDepositTxHash      string              `bson:"vault_deposit_tx_hash,omitempty"`
	ReservationExpiry       time.Time           `bson:"reservation_expiry,omitempty"`
	LastError               string              `bson:"last_error,omitempty"`
	CreatedAt               time.Time           `bson:"created_at"`
	UpdatedAt               time.Time           `bson:"updated_at"`
}
