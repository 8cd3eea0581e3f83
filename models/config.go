package models

type Config struct {
	HealthCheck HealthCheckConfig `yaml:"health_check" json:"health_check"`
	Logger      LoggerConfig      `yaml:"logger" json:"logger"`
	MongoDB     MongoConfig       `yaml:"mongodb" json:"mongo_db"`
	XRPL        XRPLConfig        `yaml:"xrpl" json:"xrpl"`
	Flare       FlareConfig       `yaml:"flare" json:"flare"`
	Attestation AttestationConfig `yaml:"attestation" json:"attestation"`
	AgentCache  AgentCacheConfig  `yaml:"agent_cache" json:"agent_cache"`
	Watchdog    WatchdogConfig    `yaml:"watchdog" json:"watchdog"`
	API         APIConfig         `yaml:"api" json:"api"`
}

type HealthCheckConfig struct {
	IntervalMillis int64 `yaml:"interval_ms" json:"interval_ms"`
	ReadLastHealth bool  `yaml:"read_last_health" json:"read_last_health"`
}

type LoggerConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

type MongoConfig struct {
	URI           string `yaml:"uri" json:"uri"`
	Database      string `yaml:"database" json:"database"`
	TimeoutMillis int64  `yaml:"timeout_ms" json:"timeout_ms"`
}

type XRPLConfig struct {
	Endpoints              []string `yaml:"endpoints" json:"endpoints"`
	PoolSize               int      `yaml:"pool_size" json:"pool_size"`
	MaxInFlight            int      `yaml:"max_in_flight" json:"max_in_flight"`
	MaxRetries             int      `yaml:"max_retries" json:"max_retries"`
	RequestTimeoutMillis   int64    `yaml:"request_timeout_ms" json:"request_timeout_ms"`
	AcquireTimeoutMillis   int64    `yaml:"acquire_timeout_ms" json:"acquire_timeout_ms"`
	HealthCheckMillis      int64    `yaml:"health_check_ms" json:"health_check_ms"`
	ReconnectBaseMillis    int64    `yaml:"reconnect_base_ms" json:"reconnect_base_ms"`
	WaitQueueSize          int      `yaml:"wait_queue_size" json:"wait_queue_size"`
	ResponseCacheTTLMillis int64    `yaml:"response_cache_ttl_ms" json:"response_cache_ttl_ms"`
}

type FlareConfig struct {
	RPCURL              string `yaml:"rpc_url" json:"rpcurl"`
	RPCTimeoutMillis    int64  `yaml:"rpc_timeout_ms" json:"rpc_timeout_ms"`
	ChainID             string `yaml:"chain_id" json:"chain_id"`
	PrivateKey          string `yaml:"private_key" json:"private_key"`
	Mnemonic            string `yaml:"mnemonic" json:"mnemonic"`
	AssetManagerAddress string `yaml:"asset_manager_address" json:"asset_manager_address"`
	FAssetAddress       string `yaml:"fasset_address" json:"fasset_address"`
	VaultAddress        string `yaml:"vault_address" json:"vault_address"`
	MaxQueryBlocks      int64  `yaml:"max_query_blocks" json:"max_query_blocks"`
}

type AttestationConfig struct {
	BaseURL       string `yaml:"base_url" json:"base_url"`
	APIKey        string `yaml:"api_key" json:"api_key"`
	TimeoutMillis int64  `yaml:"timeout_ms" json:"timeout_ms"`
}

type AgentCacheConfig struct {
	Enabled                bool  `yaml:"enabled" json:"enabled"`
	RefreshIntervalMillis  int64 `yaml:"refresh_interval_ms" json:"refresh_interval_ms"`
	DetailFetchConcurrency int   `yaml:"detail_fetch_concurrency" json:"detail_fetch_concurrency"`
}

type WatchdogConfig struct {
	Enabled        bool  `yaml:"enabled" json:"enabled"`
	IntervalMillis int64 `yaml:"interval_ms" json:"interval_ms"`
	LookbackBlocks int64 `yaml:"lookback_blocks" json:"lookback_blocks"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    uint64 `yaml:"port" json:"port"`
}
