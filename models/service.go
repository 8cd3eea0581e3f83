package models

import (
	"sync"
	"time"
)

type Service interface {
	Start()
	Health() ServiceHealth
	Stop()
}

type ServiceHealth struct {
	Name             string    `bson:"name" json:"name"`
	LastSyncTime     time.Time `bson:"last_sync_time" json:"last_sync_time"`
	NextSyncTime     time.Time `bson:"next_sync_time" json:"next_sync_time"`
	XrplLedger       string    `bson:"xrpl_ledger" json:"xrpl_ledger"`
	FlareBlockNumber string    `bson:"flare_block_number" json:"flare_block_number"`
	Healthy          bool      `bson:"healthy" json:"healthy"`
}

// RunnerStatus is what a periodic runner reports after each run; the runner
// service folds it into its ServiceHealth.
type RunnerStatus struct {
	XrplLedger       string
	FlareBlockNumber string
}

type EmptyService struct {
	wg *sync.WaitGroup
}

func (e *EmptyService) Start() {}

func (e *EmptyService) Stop() {
	e.wg.Done()
}

const EmptyServiceName = "empty"

func (e *EmptyService) Health() ServiceHealth {
	return ServiceHealth{
		Name:         EmptyServiceName,
		LastSyncTime: time.Now(),
		NextSyncTime: time.Now(),
		Healthy:      true,
	}
}

func NewEmptyService(wg *sync.WaitGroup) *EmptyService {
	return &EmptyService{
		wg: wg,
	}
}
