package app

import (
	"sync"
	"time"

	"github.com/shield-xrpfinance/shield-bridge/models"
	log "github.com/sirupsen/logrus"
)

// Runner is a unit of periodic work. Run is invoked once immediately when the
// service starts and then once per interval; runs never overlap because the
// service loop is sequential, so a run that outlasts the interval simply
// delays the next tick instead of stacking.
type Runner interface {
	Run()
	Status() models.RunnerStatus
}

type RunnerService struct {
	name     string
	runner   Runner
	wg       *sync.WaitGroup
	interval time.Duration

	stop     chan bool
	stopOnce sync.Once

	healthMu sync.RWMutex
	health   models.ServiceHealth
}

func NewRunnerService(
	name string,
	runner Runner,
	wg *sync.WaitGroup,
	interval time.Duration,
) *RunnerService {
	if name == "" || runner == nil || wg == nil || interval == 0 {
		log.Error("[RUNNER] Invalid parameters while creating runner service")
		return nil
	}
	return &RunnerService{
		name:     name,
		runner:   runner,
		wg:       wg,
		interval: interval,
		stop:     make(chan bool),
	}
}

func (x *RunnerService) Start() {
	if x == nil {
		return
	}
	log.Infof("[%s] Starting service", x.name)
	stop := false
	for !stop {
		log.Debugf("[%s] Starting run", x.name)

		x.runner.Run()

		x.updateHealth()

		log.Debugf("[%s] Finished run, sleeping for %s", x.name, x.interval)

		select {
		case <-x.stop:
			stop = true
			log.Infof("[%s] Stopped service", x.name)
		case <-time.After(x.interval):
		}
	}
	x.wg.Done()
}

func (x *RunnerService) Health() models.ServiceHealth {
	x.healthMu.RLock()
	defer x.healthMu.RUnlock()

	return x.health
}

func (x *RunnerService) updateHealth() {
	status := x.runner.Status()
	lastSyncTime := time.Now()

	x.healthMu.Lock()
	defer x.healthMu.Unlock()

	x.health = models.ServiceHealth{
		Name:             x.name,
		LastSyncTime:     lastSyncTime,
		NextSyncTime:     lastSyncTime.Add(x.interval),
		XrplLedger:       status.XrplLedger,
		FlareBlockNumber: status.FlareBlockNumber,
		Healthy:          true,
	}
}

func (x *RunnerService) Stop() {
	if x == nil {
		return
	}
	log.Debugf("[%s] Stopping service", x.name)
	x.stopOnce.Do(func() {
		close(x.stop)
	})
}
