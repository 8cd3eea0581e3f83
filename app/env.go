package app

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func readConfigFromENV(envFile string) {
	if envFile != "" {
		err := godotenv.Load(envFile)
		if err != nil {
			log.Warn("[ENV] Error loading .env file: ", err.Error())
		}
	}

	// mongodb
	if os.Getenv("MONGODB_URI") != "" {
		Config.MongoDB.URI = os.Getenv("MONGODB_URI")
	}
	if os.Getenv("MONGODB_DATABASE") != "" {
		Config.MongoDB.Database = os.Getenv("MONGODB_DATABASE")
	}
	if os.Getenv("MONGODB_TIMEOUT_MS") != "" {
		timeoutMillis, err := strconv.ParseInt(os.Getenv("MONGODB_TIMEOUT_MS"), 10, 64)
		if err != nil {
			log.Warn("[ENV] Error parsing MONGODB_TIMEOUT_MS: ", err.Error())
		} else {
			Config.MongoDB.TimeoutMillis = timeoutMillis
		}
	}

	// xrpl
	if os.Getenv("XRPL_ENDPOINTS") != "" {
		Config.XRPL.Endpoints = strings.Split(os.Getenv("XRPL_ENDPOINTS"), ",")
	}
	if os.Getenv("XRPL_POOL_SIZE") != "" {
		poolSize, err := strconv.Atoi(os.Getenv("XRPL_POOL_SIZE"))
		if err != nil {
			log.Warn("[ENV] Error parsing XRPL_POOL_SIZE: ", err.Error())
		} else {
			Config.XRPL.PoolSize = poolSize
		}
	}

	// flare
	if os.Getenv("FLARE_RPC_URL") != "" {
		Config.Flare.RPCURL = os.Getenv("FLARE_RPC_URL")
	}
	if os.Getenv("FLARE_CHAIN_ID") != "" {
		Config.Flare.ChainID = os.Getenv("FLARE_CHAIN_ID")
	}
	if os.Getenv("FLARE_PRIVATE_KEY") != "" {
		Config.Flare.PrivateKey = os.Getenv("FLARE_PRIVATE_KEY")
	}
	if os.Getenv("FLARE_MNEMONIC") != "" {
		Config.Flare.Mnemonic = os.Getenv("FLARE_MNEMONIC")
	}
	if os.Getenv("FLARE_ASSET_MANAGER_ADDRESS") != "" {
		Config.Flare.AssetManagerAddress = os.Getenv("FLARE_ASSET_MANAGER_ADDRESS")
	}
	if os.Getenv("FLARE_FASSET_ADDRESS") != "" {
		Config.Flare.FAssetAddress = os.Getenv("FLARE_FASSET_ADDRESS")
	}
	if os.Getenv("FLARE_VAULT_ADDRESS") != "" {
		Config.Flare.VaultAddress = os.Getenv("FLARE_VAULT_ADDRESS")
	}
	if os.Getenv("FLARE_MAX_QUERY_BLOCKS") != "" {
		maxQueryBlocks, err := strconv.ParseInt(os.Getenv("FLARE_MAX_QUERY_BLOCKS"), 10, 64)
		if err != nil {
			log.Warn("[ENV] Error parsing FLARE_MAX_QUERY_BLOCKS: ", err.Error())
		} else {
			Config.Flare.MaxQueryBlocks = maxQueryBlocks
		}
	}

	// attestation
	if os.Getenv("ATTESTATION_BASE_URL") != "" {
		Config.Attestation.BaseURL = os.Getenv("ATTESTATION_BASE_URL")
	}
	if os.Getenv("ATTESTATION_API_KEY") != "" {
		Config.Attestation.APIKey = os.Getenv("ATTESTATION_API_KEY")
	}

	// watchdog
	if os.Getenv("WATCHDOG_INTERVAL_MS") != "" {
		intervalMillis, err := strconv.ParseInt(os.Getenv("WATCHDOG_INTERVAL_MS"), 10, 64)
		if err != nil {
			log.Warn("[ENV] Error parsing WATCHDOG_INTERVAL_MS: ", err.Error())
		} else {
			Config.Watchdog.IntervalMillis = intervalMillis
		}
	}
	if os.Getenv("WATCHDOG_LOOKBACK_BLOCKS") != "" {
		lookback, err := strconv.ParseInt(os.Getenv("WATCHDOG_LOOKBACK_BLOCKS"), 10, 64)
		if err != nil {
			log.Warn("[ENV] Error parsing WATCHDOG_LOOKBACK_BLOCKS: ", err.Error())
		} else {
			Config.Watchdog.LookbackBlocks = lookback
		}
	}

	// api
	if os.Getenv("API_PORT") != "" {
		port, err := strconv.ParseUint(os.Getenv("API_PORT"), 10, 64)
		if err != nil {
			log.Warn("[ENV] Error parsing API_PORT: ", err.Error())
		} else {
			Config.API.Port = port
		}
	}

	// logger
	if os.Getenv("LOGGER_LEVEL") != "" {
		Config.Logger.Level = os.Getenv("LOGGER_LEVEL")
	}
}
