package models

import "time"

// Agent is a cached snapshot of a collateral-providing agent on the asset
// manager. Entries older than the cache refresh interval are stale.
type Agent struct {
	VaultAddress       string    `bson:"vault_address" json:"vault_address"`
	UnderlyingAddress  string    `bson:"underlying_address" json:"underlying_address"`
	FeeBips            uint16    `bson:"fee_bips" json:"fee_bips"`
	FreeCollateralLots int64     `bson:"free_collateral_lots" json:"free_collateral_lots"`
	Active             bool      `bson:"active" json:"active"`
	LastUpdated        time.Time `bson:"last_updated" json:"last_updated"`
}
