package main

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shield-xrpfinance/shield-bridge/api"
	"github.com/shield-xrpfinance/shield-bridge/app"
	"github.com/shield-xrpfinance/shield-bridge/attestation"
	"github.com/shield-xrpfinance/shield-bridge/bridge"
	"github.com/shield-xrpfinance/shield-bridge/fassets"
	"github.com/shield-xrpfinance/shield-bridge/flare"
	"github.com/shield-xrpfinance/shield-bridge/models"
	"github.com/shield-xrpfinance/shield-bridge/xrpl"
	log "github.com/sirupsen/logrus"
)

// createServices wires the whole pipeline: XRPL pool, Flare client, asset
// manager, agent cache, minting client, vault, orchestrator, watchdog, API
// and health reporting. Services share one WaitGroup so shutdown drains them
// together.
func createServices(wg *sync.WaitGroup) ([]models.Service, *xrpl.Pool) {
	signer, err := app.GetFlareSigner()
	if err != nil {
		log.Fatal("[MAIN] Error loading signer: ", err)
	}

	pool := xrpl.NewPool(app.Config.XRPL)
	if err := pool.Initialize(); err != nil {
		log.Fatal("[MAIN] Error initializing XRPL pool: ", err)
	}

	flareClient, err := flare.NewClient()
	if err != nil {
		log.Fatal("[MAIN] Error initializing Flare client: ", err)
	}
	flareClient.ValidateNetwork()

	managerAddress := common.HexToAddress(app.Config.Flare.AssetManagerAddress)
	fassetToken := common.HexToAddress(app.Config.Flare.FAssetAddress)
	vaultAddress := common.HexToAddress(app.Config.Flare.VaultAddress)
	receiver := common.HexToAddress(signer.Address)

	manager := fassets.NewAssetManager(managerAddress, flareClient)
	vault := fassets.NewYieldVault(flareClient, vaultAddress, fassetToken)

	store := bridge.NewStore()
	finalizer := bridge.NewFinalizer(store, vault, receiver)

	agentService, agentCache := fassets.NewAgentCacheService(wg, manager)
	minter := fassets.NewMintingClient(flareClient, manager, agentCache)

	orchestrator := bridge.NewOrchestrator(
		store,
		pool,
		minter,
		attestation.NewClient(),
		flareClient,
		finalizer,
		fassetToken,
		receiver,
	)

	watchdog := bridge.NewWatchdog(wg, store, flareClient, finalizer, managerAddress, fassetToken, receiver)

	healthService, healthRunner := app.NewHealthCheck(wg)
	apiService := api.NewServer(wg, store, orchestrator, healthRunner)

	services := []models.Service{
		agentService,
		watchdog,
		apiService,
		healthService,
	}
	healthRunner.SetServices(services)

	wg.Add(len(services))

	return services, pool
}
