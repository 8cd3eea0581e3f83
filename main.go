package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/shield-xrpfinance/shield-bridge/app"
	log "github.com/sirupsen/logrus"
)

func main() {

	var configFile string
	var envFile string
	if len(os.Args) > 1 {
		configFile, _ = filepath.Abs(os.Args[1])
	}
	if len(os.Args) > 2 {
		envFile, _ = filepath.Abs(os.Args[2])
	}

	app.InitConfig(configFile, envFile)
	app.InitLogger()
	app.InitDB()

	var wg sync.WaitGroup
	services, pool := createServices(&wg)

	for _, service := range services {
		go service.Start()
	}

	log.Info("[MAIN] Bridge started")

	gracefulStop := make(chan os.Signal, 1)
	done := make(chan bool, 1)
	signal.Notify(gracefulStop, syscall.SIGINT, syscall.SIGTERM)
	go waitForExitSignals(gracefulStop, done)
	<-done

	log.Debug("[MAIN] Stopping services")
	for _, service := range services {
		service.Stop()
	}
	wg.Wait()
	pool.Shutdown()
	if err := app.DB.Disconnect(); err != nil {
		log.Error("[MAIN] Error disconnecting from db: ", err)
	}
	log.Info("[MAIN] Bridge stopped")
}

func waitForExitSignals(gracefulStop chan os.Signal, done chan bool) {
	sig := <-gracefulStop
	log.Debug("[MAIN] Got signal: ", sig)
	done <- true
}
