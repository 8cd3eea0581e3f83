package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shield-xrpfinance/shield-bridge/app"
	"github.com/shield-xrpfinance/shield-bridge/bridge"
	"github.com/shield-xrpfinance/shield-bridge/models"
	log "github.com/sirupsen/logrus"
)

const ApiName = "api"

// Server is the thin collaborator boundary for the presentation layer: start
// a deposit, confirm its payment, poll bridge status. It runs as a service so
// shutdown drains it with the rest of the process.
type Server struct {
	router       chi.Router
	server       *http.Server
	store        bridge.Store
	orchestrator *bridge.Orchestrator
	health       *app.HealthCheckRunner
	wg           *sync.WaitGroup
}

func NewServer(wg *sync.WaitGroup, store bridge.Store, orchestrator *bridge.Orchestrator, health *app.HealthCheckRunner) models.Service {
	if !app.Config.API.Enabled {
		log.Debug("[API] API disabled")
		return models.NewEmptyService(wg)
	}

	x := &Server{
		store:        store,
		orchestrator: orchestrator,
		health:       health,
		wg:           wg,
	}
	x.routes()
	x.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.Config.API.Port),
		Handler: x.router,
	}
	return x
}

func (x *Server) routes() {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", x.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))
		r.Post("/deposits", x.handleStartDeposit)
		r.Get("/bridges/{id}", x.handleGetBridge)
		r.Post("/bridges/{id}/payment", x.handleConfirmPayment)
	})

	x.router = r
}

func (x *Server) Start() {
	log.Info("[API] Listening on ", x.server.Addr)
	if err := x.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("[API] Server error: ", err)
	}
	log.Info("[API] Stopped")
}

func (x *Server) Health() models.ServiceHealth {
	return models.ServiceHealth{
		Name:         ApiName,
		LastSyncTime: time.Now(),
		NextSyncTime: time.Now(),
		Healthy:      true,
	}
}

func (x *Server) Stop() {
	log.Debug("[API] Stopping")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := x.server.Shutdown(ctx); err != nil {
		log.Error("[API] Error shutting down: ", err)
	}
	x.wg.Done()
}

func jsonResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("[API] Error encoding response: ", err)
	}
}

func errorResponse(w http.ResponseWriter, statusCode int, err error) {
	jsonResponse(w, statusCode, map[string]string{"error": err.Error()})
}
