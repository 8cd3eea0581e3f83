package xrpl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shield-xrpfinance/shield-bridge/app"
	"github.com/shield-xrpfinance/shield-bridge/models"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNoConnections  = errors.New("no connections available")
	ErrAcquireTimeout = errors.New("timed out waiting for a connection")
)

const (
	// consecutive request failures before an endpoint is swapped out
	replaceFailureThreshold = 5
	// consecutive ping failures before a connection is flagged disconnected
	pingFailureThreshold = 3
	// exponent cap for reconnect backoff
	maxBackoffShift = 5
)

// PooledConnection tracks one member of the pool. All fields are guarded by
// the pool mutex.
type PooledConnection struct {
	Endpoint            string
	Connected           bool
	InFlight            int
	ConsecutiveFailures int

	conn         Conn
	pingFailures int
	reconnecting bool
}

// ConnectionHealth is a read-only snapshot for health reporting.
type ConnectionHealth struct {
	Endpoint            string `json:"endpoint"`
	Connected           bool   `json:"connected"`
	InFlight            int    `json:"in_flight"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

// RequestOptions controls caching of a single request.
type RequestOptions struct {
	Cache    bool
	CacheTTL time.Duration
}

type cacheEntry struct {
	value     json.RawMessage
	expiresAt time.Time
}

type waiter struct {
	ch chan *PooledConnection
}

// Pool is a resilient set of connections to the source ledger's node network:
// least-loaded selection under a per-connection in-flight ceiling, a bounded
// FIFO wait queue when saturated, capped-exponential reconnects with endpoint
// replacement, and a stale-response cache as a last resort.
type Pool struct {
	config models.XRPLConfig
	dialer Dialer

	mu          sync.Mutex
	connections []*PooledConnection
	// endpoints not currently assigned to any pool member, in priority order
	spareEndpoints []string
	waiters        []*waiter
	cache          map[string]cacheEntry
	shutdown       bool

	stop     chan bool
	stopOnce sync.Once
}

func NewPool(config models.XRPLConfig) *Pool {
	return NewPoolWithDialer(config, DialEndpoint)
}

func NewPoolWithDialer(config models.XRPLConfig, dialer Dialer) *Pool {
	return &Pool{
		config: config,
		dialer: dialer,
		cache:  make(map[string]cacheEntry),
		stop:   make(chan bool),
	}
}

// Initialize opens up to PoolSize connections, assigning endpoints round-robin
// in priority order, and starts the health check loop. It fails only when not
// a single connection could be opened.
func (p *Pool) Initialize() error {
	poolSize := p.config.PoolSize
	endpoints := p.config.Endpoints

	p.mu.Lock()
	for i := 0; i < poolSize; i++ {
		endpoint := endpoints[i%len(endpoints)]
		p.connections = append(p.connections, &PooledConnection{Endpoint: endpoint})
	}
	assigned := make(map[string]bool)
	for _, pc := range p.connections {
		assigned[pc.Endpoint] = true
	}
	for _, endpoint := range endpoints {
		if !assigned[endpoint] {
			p.spareEndpoints = append(p.spareEndpoints, endpoint)
		}
	}
	connections := append([]*PooledConnection{}, p.connections...)
	p.mu.Unlock()

	connected := 0
	for _, pc := range connections {
		if err := p.connect(pc); err != nil {
			log.Warn("[XRPL POOL] Error connecting to ", pc.Endpoint, ": ", err)
			p.scheduleReconnect(pc)
			continue
		}
		connected++
	}
	if connected == 0 {
		return fmt.Errorf("could not connect to any of %d endpoints", len(endpoints))
	}

	go p.healthCheckLoop()

	log.Info("[XRPL POOL] Initialized with ", connected, "/", len(connections), " connections")
	return nil
}

func (p *Pool) connect(pc *PooledConnection) error {
	p.mu.Lock()
	endpoint := pc.Endpoint
	p.mu.Unlock()

	conn, err := p.dialer(endpoint)
	if err != nil {
		return err
	}

	p.mu.Lock()
	pc.conn = conn
	pc.Connected = true
	pc.pingFailures = 0
	pc.ConsecutiveFailures = 0
	p.mu.Unlock()
	return nil
}

// Request executes a command with retries, each attempt on a freshly acquired
// least-loaded connection under a per-attempt timeout. When every attempt
// fails, a cached response for the same command and params is returned when
// one exists, however stale.
func (p *Pool) Request(command string, params map[string]interface{}, opts *RequestOptions) (json.RawMessage, error) {
	cacheKey := requestCacheKey(command, params)

	if opts != nil && opts.Cache {
		if value, ok := p.cachedResponse(cacheKey, false); ok {
			app.ProcessMetrics.PoolRequestsTotal.WithLabelValues(command, "cached").Inc()
			return value, nil
		}
	}

	maxRetries := p.config.MaxRetries
	requestTimeout := time.Duration(p.config.RequestTimeoutMillis) * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		pc, err := p.acquire()
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrNoConnections) {
				break
			}
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		result, err := pc.conn.Do(ctx, command, params)
		cancel()

		if err != nil {
			lastErr = err
			p.release(pc, false)
			log.Debug("[XRPL POOL] Attempt ", attempt+1, " for ", command, " failed: ", err)
			continue
		}

		p.release(pc, true)
		if opts != nil && opts.Cache {
			p.storeResponse(cacheKey, result, opts.CacheTTL)
		}
		app.ProcessMetrics.PoolRequestsTotal.WithLabelValues(command, "success").Inc()
		return result, nil
	}

	if value, ok := p.cachedResponse(cacheKey, true); ok {
		log.Warn("[XRPL POOL] All attempts for ", command, " failed, serving stale cache")
		app.ProcessMetrics.PoolCacheFallbacks.Inc()
		app.ProcessMetrics.PoolRequestsTotal.WithLabelValues(command, "stale_cache").Inc()
		return value, nil
	}

	app.ProcessMetrics.PoolRequestsTotal.WithLabelValues(command, "error").Inc()
	return nil, lastErr
}

func requestCacheKey(command string, params map[string]interface{}) string {
	encoded, _ := json.Marshal(params)
	return command + ":" + string(encoded)
}

func (p *Pool) cachedResponse(key string, allowStale bool) (json.RawMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.cache[key]
	if !ok {
		return nil, false
	}
	if !allowStale && time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

func (p *Pool) storeResponse(key string, value json.RawMessage, ttl time.Duration) {
	if ttl == 0 {
		ttl = time.Duration(p.config.ResponseCacheTTLMillis) * time.Millisecond
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache[key] = cacheEntry{value: value, expiresAt: time.Now().Add(ttl)}
}

// acquire returns the least-loaded connected connection with in-flight
// capacity, or parks the caller on the bounded FIFO wait queue.
func (p *Pool) acquire() (*PooledConnection, error) {
	p.mu.Lock()

	if p.shutdown || len(p.connections) == 0 {
		p.mu.Unlock()
		return nil, ErrNoConnections
	}

	if pc := p.pickLeastLoadedLocked(); pc != nil {
		pc.InFlight++
		p.mu.Unlock()
		return pc, nil
	}

	anyConnected := false
	for _, pc := range p.connections {
		if pc.Connected {
			anyConnected = true
			break
		}
	}
	if !anyConnected {
		p.mu.Unlock()
		return nil, ErrNoConnections
	}

	if len(p.waiters) >= p.config.WaitQueueSize {
		p.mu.Unlock()
		return nil, fmt.Errorf("wait queue is full")
	}

	w := &waiter{ch: make(chan *PooledConnection, 1)}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	acquireTimeout := time.Duration(p.config.AcquireTimeoutMillis) * time.Millisecond
	select {
	case pc := <-w.ch:
		if pc == nil {
			return nil, ErrNoConnections
		}
		return pc, nil
	case <-time.After(acquireTimeout):
		p.mu.Lock()
		found := false
		for i, queued := range p.waiters {
			if queued == w {
				p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
				found = true
				break
			}
		}
		p.mu.Unlock()
		if !found {
			// the waiter was already popped under the lock, so a handover
			// (or a close on shutdown) is guaranteed: the blocking receive
			// keeps the in-flight count consistent
			if pc := <-w.ch; pc != nil {
				return pc, nil
			}
			return nil, ErrNoConnections
		}
		return nil, ErrAcquireTimeout
	}
}

func (p *Pool) pickLeastLoadedLocked() *PooledConnection {
	var best *PooledConnection
	for _, pc := range p.connections {
		if !pc.Connected || pc.InFlight >= p.config.MaxInFlight {
			continue
		}
		if best == nil || pc.InFlight < best.InFlight {
			best = pc
		}
	}
	return best
}

// release returns a connection to the pool, hands capacity to the first
// waiter in FIFO order, and drives the failure bookkeeping.
func (p *Pool) release(pc *PooledConnection, success bool) {
	p.mu.Lock()
	pc.InFlight--
	if success {
		pc.ConsecutiveFailures = 0
	} else {
		pc.ConsecutiveFailures++
	}
	needsReplacement := !success && pc.ConsecutiveFailures >= replaceFailureThreshold

	if pc.Connected && pc.InFlight < p.config.MaxInFlight && len(p.waiters) > 0 && !needsReplacement {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		pc.InFlight++
		p.mu.Unlock()
		w.ch <- pc
		return
	}
	p.mu.Unlock()

	if needsReplacement {
		p.retireConnection(pc)
	}
}

// retireConnection disconnects a repeatedly failing member and swaps its
// endpoint for an unused candidate when one exists; without an alternative
// the same endpoint stays on the reconnect schedule.
func (p *Pool) retireConnection(pc *PooledConnection) {
	p.mu.Lock()
	if !pc.Connected {
		p.mu.Unlock()
		return
	}
	pc.Connected = false
	conn := pc.conn
	pc.conn = nil

	if len(p.spareEndpoints) > 0 {
		replacement := p.spareEndpoints[0]
		p.spareEndpoints = append(p.spareEndpoints[1:], pc.Endpoint)
		log.Warn("[XRPL POOL] Replacing endpoint ", pc.Endpoint, " with ", replacement,
			" after ", pc.ConsecutiveFailures, " consecutive failures")
		pc.Endpoint = replacement
		pc.ConsecutiveFailures = 0
	} else {
		log.Warn("[XRPL POOL] Endpoint ", pc.Endpoint, " keeps failing and no alternative exists, retrying with backoff")
	}
	p.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	p.scheduleReconnect(pc)
}

func (p *Pool) scheduleReconnect(pc *PooledConnection) {
	p.mu.Lock()
	if pc.reconnecting || p.shutdown {
		p.mu.Unlock()
		return
	}
	pc.reconnecting = true
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			pc.reconnecting = false
			p.mu.Unlock()
		}()

		base := time.Duration(p.config.ReconnectBaseMillis) * time.Millisecond
		for {
			p.mu.Lock()
			if p.shutdown {
				p.mu.Unlock()
				return
			}
			failures := pc.ConsecutiveFailures
			p.mu.Unlock()

			shift := failures
			if shift > maxBackoffShift {
				shift = maxBackoffShift
			}
			backoff := base * (1 << shift)

			select {
			case <-p.stop:
				return
			case <-time.After(backoff):
			}

			app.ProcessMetrics.PoolReconnects.Inc()
			if err := p.connect(pc); err == nil {
				log.Info("[XRPL POOL] Reconnected to ", pc.Endpoint)
				p.notifyWaitersLocked(pc)
				return
			}

			p.mu.Lock()
			pc.ConsecutiveFailures++
			log.Warn("[XRPL POOL] Reconnect to ", pc.Endpoint, " failed (", pc.ConsecutiveFailures, " consecutive failures)")
			if pc.ConsecutiveFailures >= replaceFailureThreshold && len(p.spareEndpoints) > 0 {
				replacement := p.spareEndpoints[0]
				p.spareEndpoints = append(p.spareEndpoints[1:], pc.Endpoint)
				log.Warn("[XRPL POOL] Replacing dead endpoint ", pc.Endpoint, " with ", replacement)
				pc.Endpoint = replacement
				pc.ConsecutiveFailures = 0
			}
			p.mu.Unlock()
		}
	}()
}

func (p *Pool) notifyWaitersLocked(pc *PooledConnection) {
	p.mu.Lock()
	for len(p.waiters) > 0 && pc.Connected && pc.InFlight < p.config.MaxInFlight {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		pc.InFlight++
		w.ch <- pc
	}
	p.mu.Unlock()
}

func (p *Pool) healthCheckLoop() {
	interval := time.Duration(p.config.HealthCheckMillis) * time.Millisecond
	for {
		select {
		case <-p.stop:
			return
		case <-time.After(interval):
		}
		p.checkConnections()
	}
}

func (p *Pool) checkConnections() {
	p.mu.Lock()
	connections := append([]*PooledConnection{}, p.connections...)
	p.mu.Unlock()

	requestTimeout := time.Duration(p.config.RequestTimeoutMillis) * time.Millisecond

	for _, pc := range connections {
		p.mu.Lock()
		conn := pc.conn
		connected := pc.Connected
		p.mu.Unlock()
		if !connected || conn == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		err := conn.Ping(ctx)
		cancel()

		p.mu.Lock()
		if err != nil {
			pc.pingFailures++
			log.Warn("[XRPL POOL] Health check failed for ", pc.Endpoint, " (", pc.pingFailures, "/", pingFailureThreshold, "): ", err)
			if pc.pingFailures >= pingFailureThreshold {
				pc.Connected = false
				pc.conn = nil
				p.mu.Unlock()
				_ = conn.Close()
				p.scheduleReconnect(pc)
				continue
			}
		} else {
			pc.pingFailures = 0
		}
		p.mu.Unlock()
	}
}

// HealthStatus reports per-connection state.
func (p *Pool) HealthStatus() []ConnectionHealth {
	p.mu.Lock()
	defer p.mu.Unlock()

	var health []ConnectionHealth
	for _, pc := range p.connections {
		health = append(health, ConnectionHealth{
			Endpoint:            pc.Endpoint,
			Connected:           pc.Connected,
			InFlight:            pc.InFlight,
			ConsecutiveFailures: pc.ConsecutiveFailures,
		})
	}
	return health
}

// Shutdown stops the health and reconnect loops and closes every connection.
func (p *Pool) Shutdown() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})

	p.mu.Lock()
	p.shutdown = true
	connections := append([]*PooledConnection{}, p.connections...)
	for _, w := range p.waiters {
		close(w.ch)
	}
	p.waiters = nil
	p.mu.Unlock()

	for _, pc := range connections {
		p.mu.Lock()
		conn := pc.conn
		pc.conn = nil
		pc.Connected = false
		p.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	}
	log.Info("[XRPL POOL] Shutdown complete")
}
