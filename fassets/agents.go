package fassets

import (
	"fmt"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shield-xrpfinance/shield-bridge/app"
	"github.com/shield-xrpfinance/shield-bridge/models"
	log "github.com/sirupsen/logrus"
)

const (
	AgentCacheName = "agent cache"

	// page size for the paginated available-agents listing
	agentListPageSize = 100
)

// AgentCache keeps a warm directory of collateral-providing agents so the
// deposit hot path never pays the multi-second live discovery cost. The
// per-agent detail fetch is the dominant latency, so it runs as a bounded
// parallel fan-out.
type AgentCache struct {
	manager         AssetManagerContract
	refreshInterval time.Duration
	fanOut          int

	refreshing atomic.Bool

	mu          sync.RWMutex
	agents      []models.Agent
	lastRefresh time.Time
	lastError   error
}

func NewAgentCache(manager AssetManagerContract) *AgentCache {
	return &AgentCache{
		manager:         manager,
		refreshInterval: time.Duration(app.Config.AgentCache.RefreshIntervalMillis) * time.Millisecond,
		fanOut:          app.Config.AgentCache.DetailFetchConcurrency,
	}
}

func (x *AgentCache) Run() {
	// background refresh failures are logged and swallowed; the stale cache
	// stays servable
	if err := x.Refresh(); err != nil {
		log.Error("[AGENT CACHE] Error refreshing agents: ", err)
	}
}

func (x *AgentCache) Status() models.RunnerStatus {
	return models.RunnerStatus{}
}

// Refresh fetches the agent list and per-agent detail. At most one refresh
// runs at a time; a request arriving mid-refresh is a no-op and the caller
// keeps reading the previous cache until the in-flight refresh lands.
func (x *AgentCache) Refresh() error {
	if !x.refreshing.CompareAndSwap(false, true) {
		log.Debug("[AGENT CACHE] Refresh already in progress, skipping")
		return nil
	}
	defer x.refreshing.Store(false)

	var listed []AvailableAgent
	start := int64(0)
	for {
		page, totalLength, err := x.manager.GetAvailableAgents(
			big.NewInt(start), big.NewInt(start+agentListPageSize))
		if err != nil {
			err = fmt.Errorf("error listing agents: %w", err)
			x.mu.Lock()
			x.lastError = err
			x.mu.Unlock()
			return err
		}
		listed = append(listed, page...)
		start += int64(len(page))
		if len(page) == 0 || !totalLength.IsInt64() || start >= totalLength.Int64() {
			break
		}
	}

	agents := x.fetchAgentDetails(listed)

	x.mu.Lock()
	x.agents = agents
	x.lastRefresh = time.Now()
	x.lastError = nil
	x.mu.Unlock()

	app.ProcessMetrics.AgentCacheRefreshes.Inc()
	app.ProcessMetrics.AgentCacheSize.Set(float64(len(agents)))
	log.Info("[AGENT CACHE] Refreshed ", len(agents), "/", len(listed), " agents")
	return nil
}

// fetchAgentDetails resolves per-agent detail in parallel under the fan-out
// bound. An agent whose detail fetch fails is logged and dropped from this
// refresh; it does not abort the others.
func (x *AgentCache) fetchAgentDetails(listed []AvailableAgent) []models.Agent {
	var mu sync.Mutex
	var agents []models.Agent

	semaphore := make(chan struct{}, x.fanOut)
	var wg sync.WaitGroup

	for _, available := range listed {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(available AvailableAgent) {
			defer wg.Done()
			defer func() { <-semaphore }()

			info, err := x.manager.GetAgentInfo(available.AgentVault)
			if err != nil {
				log.Warn("[AGENT CACHE] Error fetching agent ", available.AgentVault.Hex(), ": ", err)
				return
			}

			agent := models.Agent{
				VaultAddress:       available.AgentVault.Hex(),
				UnderlyingAddress:  info.UnderlyingAddressString,
				FeeBips:            uint16(info.FeeBIPS.Uint64()),
				FreeCollateralLots: info.FreeCollateralLots.Int64(),
				Active:             info.Status == AgentStatusNormal,
				LastUpdated:        time.Now(),
			}

			mu.Lock()
			agents = append(agents, agent)
			mu.Unlock()
		}(available)
	}
	wg.Wait()

	sort.Slice(agents, func(i, j int) bool {
		return agents[i].FeeBips < agents[j].FeeBips
	})
	return agents
}

// GetCachedAgents returns the in-memory agent list, refreshing first when the
// cache is empty, forced, or older than the refresh interval. The refresh
// error propagates only when the caller forced a refresh and there is no
// stale cache to fall back on.
func (x *AgentCache) GetCachedAgents(forceRefresh bool) ([]models.Agent, error) {
	x.mu.RLock()
	empty := len(x.agents) == 0
	stale := time.Since(x.lastRefresh) > x.refreshInterval
	x.mu.RUnlock()

	if forceRefresh || empty || stale {
		if err := x.Refresh(); err != nil {
			x.mu.RLock()
			stillEmpty := len(x.agents) == 0
			x.mu.RUnlock()
			if forceRefresh && stillEmpty {
				return nil, err
			}
			log.Warn("[AGENT CACHE] Refresh failed, serving stale cache: ", err)
		}
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	agents := make([]models.Agent, len(x.agents))
	copy(agents, x.agents)
	return agents, nil
}

// FindBestAgentFromCache returns the cheapest active cached agent with enough
// free collateral lots, or nil when none qualifies.
func (x *AgentCache) FindBestAgentFromCache(lotsRequired int64) *models.Agent {
	x.mu.RLock()
	defer x.mu.RUnlock()

	// agents are kept sorted ascending by fee
	for i := range x.agents {
		agent := x.agents[i]
		if !agent.Active {
			continue
		}
		if agent.FreeCollateralLots < lotsRequired {
			continue
		}
		found := agent
		return &found
	}
	return nil
}

// NewAgentCacheService performs the initial synchronous load and wraps the
// cache in a periodic refresh service.
func NewAgentCacheService(wg *sync.WaitGroup, manager AssetManagerContract) (models.Service, *AgentCache) {
	if !app.Config.AgentCache.Enabled {
		log.Debug("[AGENT CACHE] Agent cache disabled")
		return models.NewEmptyService(wg), nil
	}

	log.Debug("[AGENT CACHE] Initializing agent cache")

	x := NewAgentCache(manager)
	if err := x.Refresh(); err != nil {
		log.Warn("[AGENT CACHE] Initial load failed, will retry on interval: ", err)
	}

	log.Info("[AGENT CACHE] Initialized agent cache")

	return app.NewRunnerService(AgentCacheName, x, wg, x.refreshInterval), x
}
