package app

import (
	"os"
	"sync"
	"time"

	"github.com/shield-xrpfinance/shield-bridge/models"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	HealthCheckName = "health check"
)

type HealthCheckRunner struct {
	instanceId   string
	hostname     string
	flareAddress string

	servicesMu sync.RWMutex
	services   []models.Service
}

func (x *HealthCheckRunner) Run() {
	x.PostHealth()
}

func (x *HealthCheckRunner) Status() models.RunnerStatus {
	return models.RunnerStatus{}
}

// SetServices registers the services whose health is reported; called once
// after all services are constructed.
func (x *HealthCheckRunner) SetServices(services []models.Service) {
	x.servicesMu.Lock()
	defer x.servicesMu.Unlock()
	x.services = services
}

func (x *HealthCheckRunner) ServiceHealths() []models.ServiceHealth {
	x.servicesMu.RLock()
	defer x.servicesMu.RUnlock()

	var serviceHealths []models.ServiceHealth
	for _, service := range x.services {
		health := service.Health()
		if health.Name == models.EmptyServiceName {
			continue
		}
		serviceHealths = append(serviceHealths, health)
	}
	return serviceHealths
}

func (x *HealthCheckRunner) FindLastHealth() (models.Health, error) {
	var health models.Health
	filter := bson.M{
		"instance_id": x.instanceId,
		"hostname":    x.hostname,
	}
	err := DB.FindOne(models.CollectionHealthChecks, filter, &health)
	return health, err
}

func (x *HealthCheckRunner) LastHealthByServiceName() map[string]models.ServiceHealth {
	healthMap := make(map[string]models.ServiceHealth)
	if !Config.HealthCheck.ReadLastHealth {
		return healthMap
	}
	lastHealth, err := x.FindLastHealth()
	if err != nil {
		log.Warn("[HEALTH] Error getting last health: ", err)
		return healthMap
	}
	for _, serviceHealth := range lastHealth.ServiceHealths {
		healthMap[serviceHealth.Name] = serviceHealth
	}
	return healthMap
}

func (x *HealthCheckRunner) PostHealth() bool {
	log.Debug("[HEALTH] Posting health")

	filter := bson.M{
		"instance_id": x.instanceId,
		"hostname":    x.hostname,
	}
	onInsert := bson.M{
		"instance_id":   x.instanceId,
		"hostname":      x.hostname,
		"flare_address": x.flareAddress,
		"created_at":    time.Now(),
	}
	onUpdate := bson.M{
		"service_healths": x.ServiceHealths(),
		"updated_at":      time.Now(),
	}
	update := bson.M{"$set": onUpdate, "$setOnInsert": onInsert}

	err := DB.UpsertOne(models.CollectionHealthChecks, filter, update)
	if err != nil {
		log.Error("[HEALTH] Error posting health: ", err)
		return false
	}

	log.Info("[HEALTH] Posted health")
	return true
}

func NewHealthCheck(wg *sync.WaitGroup) (models.Service, *HealthCheckRunner) {
	log.Debug("[HEALTH] Initializing health check")

	hostname, err := os.Hostname()
	if err != nil {
		log.Warn("[HEALTH] Error getting hostname: ", err)
		hostname = "unknown"
	}

	signer, err := GetFlareSigner()
	if err != nil {
		log.Fatal("[HEALTH] Error getting flare signer: ", err)
	}

	// the signer address is stable across restarts, so the last health
	// document for this instance can be found again
	x := &HealthCheckRunner{
		instanceId:   signer.Address,
		hostname:     hostname,
		flareAddress: signer.Address,
	}

	log.Info("[HEALTH] Initialized health check")

	return NewRunnerService(
		HealthCheckName,
		x,
		wg,
		time.Duration(Config.HealthCheck.IntervalMillis)*time.Millisecond,
	), x
}
