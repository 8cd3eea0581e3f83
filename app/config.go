package app

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/shield-xrpfinance/shield-bridge/models"
	"gopkg.in/yaml.v2"
)

var (
	Config models.Config
)

func InitConfig(configFile string, envFile string) {
	var yamlFile, err = os.ReadFile(configFile)
	if err != nil {
		log.Fatalf("[CONFIG] Error reading config file %q: %s\n", configFile, err.Error())
	}
	err = yaml.Unmarshal(yamlFile, &Config)
	if err != nil {
		log.Fatalf("[CONFIG] Error unmarshalling config file %q: %s\n", configFile, err.Error())
	}
	setConfigDefaults()
	readConfigFromENV(envFile)
	validateConfig()
}

func setConfigDefaults() {
	if Config.Logger.Format == "" {
		Config.Logger.Format = "text"
	}
	if Config.MongoDB.TimeoutMillis == 0 {
		Config.MongoDB.TimeoutMillis = 2000
	}
	if Config.XRPL.PoolSize == 0 {
		Config.XRPL.PoolSize = 3
	}
	if Config.XRPL.MaxInFlight == 0 {
		Config.XRPL.MaxInFlight = 10
	}
	if Config.XRPL.MaxRetries == 0 {
		Config.XRPL.MaxRetries = 3
	}
	if Config.XRPL.RequestTimeoutMillis == 0 {
		Config.XRPL.RequestTimeoutMillis = 10000
	}
	if Config.XRPL.AcquireTimeoutMillis == 0 {
		Config.XRPL.AcquireTimeoutMillis = 5000
	}
	if Config.XRPL.HealthCheckMillis == 0 {
		Config.XRPL.HealthCheckMillis = 30000
	}
	if Config.XRPL.ReconnectBaseMillis == 0 {
		Config.XRPL.ReconnectBaseMillis = 1000
	}
	if Config.XRPL.WaitQueueSize == 0 {
		Config.XRPL.WaitQueueSize = 64
	}
	if Config.XRPL.ResponseCacheTTLMillis == 0 {
		Config.XRPL.ResponseCacheTTLMillis = 30000
	}
	if Config.Flare.RPCTimeoutMillis == 0 {
		Config.Flare.RPCTimeoutMillis = 10000
	}
	if Config.Flare.MaxQueryBlocks == 0 {
		Config.Flare.MaxQueryBlocks = 499
	}
	if Config.Attestation.TimeoutMillis == 0 {
		Config.Attestation.TimeoutMillis = 20000
	}
	if Config.AgentCache.RefreshIntervalMillis == 0 {
		Config.AgentCache.RefreshIntervalMillis = 60000
	}
	if Config.AgentCache.DetailFetchConcurrency == 0 {
		Config.AgentCache.DetailFetchConcurrency = 8
	}
	if Config.Watchdog.IntervalMillis == 0 {
		Config.Watchdog.IntervalMillis = 60000
	}
	if Config.Watchdog.LookbackBlocks == 0 {
		Config.Watchdog.LookbackBlocks = 10000
	}
	if Config.HealthCheck.IntervalMillis == 0 {
		Config.HealthCheck.IntervalMillis = 30000
	}
	if Config.API.Port == 0 {
		Config.API.Port = 8080
	}
}

func validateConfig() {
	if Config.MongoDB.URI == "" {
		log.Fatal("[CONFIG] MongoDB.URI is required")
	}
	if Config.MongoDB.Database == "" {
		log.Fatal("[CONFIG] MongoDB.Database is required")
	}
	if len(Config.XRPL.Endpoints) == 0 {
		log.Fatal("[CONFIG] XRPL.Endpoints is required")
	}
	if Config.Flare.RPCURL == "" {
		log.Fatal("[CONFIG] Flare.RPCURL is required")
	}
	if Config.Flare.ChainID == "" {
		log.Fatal("[CONFIG] Flare.ChainID is required")
	}
	if Config.Flare.PrivateKey == "" && Config.Flare.Mnemonic == "" {
		log.Fatal("[CONFIG] One of Flare.PrivateKey or Flare.Mnemonic is required")
	}
	if Config.Flare.AssetManagerAddress == "" {
		log.Fatal("[CONFIG] Flare.AssetManagerAddress is required")
	}
	if Config.Flare.FAssetAddress == "" {
		log.Fatal("[CONFIG] Flare.FAssetAddress is required")
	}
	if Config.Flare.VaultAddress == "" {
		log.Fatal("[CONFIG] Flare.VaultAddress is required")
	}
	if Config.Attestation.BaseURL == "" {
		log.Fatal("[CONFIG] Attestation.BaseURL is required")
	}
}
