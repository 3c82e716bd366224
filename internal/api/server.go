// Package api serves the suite's HTTP interface: content generation, prompt
// optimization, batch processing, workflow execution, revenue operations,
// usage statistics and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/optisuite/optisuite/internal/batch"
	"github.com/optisuite/optisuite/internal/config"
	"github.com/optisuite/optisuite/internal/content"
	"github.com/optisuite/optisuite/internal/logging"
	"github.com/optisuite/optisuite/internal/revenue"
	"github.com/optisuite/optisuite/internal/usage"
	"github.com/optisuite/optisuite/internal/workflow"
)

// Deps bundles the services the API server exposes.
type Deps struct {
	Messenger batch.Messenger
	Generator *content.Generator
	Engine    *workflow.Engine
	Pricing   *revenue.Pricing
	Ledger    revenue.Ledger
	Packager  *revenue.Packager
	Stats     *usage.Stats
	Registry  *prometheus.Registry
}

// Server is the suite's HTTP API server.
type Server struct {
	deps  Deps
	guard *keyGuard

	// maxWorkers is read on request goroutines and written by the config
	// watcher, so access goes through the atomic.
	maxWorkers atomic.Int64

	httpServer *http.Server
}

// NewServer wires the routes and middleware for the given configuration.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		deps:  deps,
		guard: newKeyGuard(cfg.APIKeys),
	}
	s.maxWorkers.Store(int64(cfg.Batch.MaxWorkers))

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery())

	engine.GET("/health", s.handleHealth)
	if deps.Registry != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	v1 := engine.Group("/v1", s.guard.middleware())
	v1.POST("/generate", s.handleGenerate)
	v1.POST("/optimize", s.handleOptimize)
	v1.POST("/batch", s.handleBatch)
	v1.GET("/workflows", s.handleListWorkflows)
	v1.POST("/workflows/:name/execute", s.handleExecuteWorkflow)
	v1.GET("/stats", s.handleStats)
	v1.POST("/revenue/estimate", s.handleEstimate)
	v1.GET("/revenue/transactions", s.handleListTransactions)
	v1.POST("/revenue/transactions", s.handleLogTransaction)
	v1.POST("/revenue/packages", s.handleBuildPackage)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// ApplyConfig updates the hot-reloadable parts of the server.
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.guard.setKeys(cfg.APIKeys)
	s.maxWorkers.Store(int64(cfg.Batch.MaxWorkers))
	if s.deps.Pricing != nil {
		s.deps.Pricing.SetPrices(cfg.Pricing)
	}
	if s.deps.Stats != nil {
		s.deps.Stats.SetEnabled(cfg.UsageStatisticsEnabled)
	}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("API server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown failed: %w", err)
	}
	return <-errCh
}
