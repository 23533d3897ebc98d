package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/domage/github-trend-analyzer/internal/analysis"
	"github.com/domage/github-trend-analyzer/internal/api"
	"github.com/domage/github-trend-analyzer/internal/config"
	"github.com/domage/github-trend-analyzer/internal/notifications"
	"github.com/domage/github-trend-analyzer/internal/observability"
	"github.com/domage/github-trend-analyzer/internal/scheduler"
	"github.com/domage/github-trend-analyzer/internal/sources"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting GitHub trend analyzer")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(cfg.MetricsNamespace, reg)

	// Both transports share one pacing budget
	limiter := sources.NewRateLimiter(cfg.SearchRateLimit, cfg.SearchBurst)
	rest := sources.NewGitHubREST(sources.ClientConfig{
		BaseURL:   cfg.GitHubAPIURL,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.HTTPTimeout,
		Limiter:   limiter,
		Metrics:   metrics,
	})
	graphql := sources.NewGitHubGraphQL(sources.ClientConfig{
		BaseURL:   cfg.GitHubGraphQLURL,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.HTTPTimeout,
		Limiter:   limiter,
		Metrics:   metrics,
	})

	notificationService := notifications.NewService(cfg)
	analysisService := analysis.NewService(cfg, rest, graphql, notificationService, metrics)

	schedulerService := scheduler.NewService(cfg, analysisService)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: api.NewRouter(analysisService, reg),
		// Trend comparisons over many windows can take minutes
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
