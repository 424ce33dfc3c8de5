// Command aiops-engine runs the online anomaly-detection engine:
// ingestion poller, control loop, and HTTP telemetry surface.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/talosprotocol/aiops-engine/internal/config"
	"github.com/talosprotocol/aiops-engine/internal/core"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("could not load %s: %v, continuing with existing environment", envPath, err)
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	ginMode := getEnv("GIN_MODE", "release")
	gin.SetMode(ginMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(*configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}

	c, err := core.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to build engine core: %v", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			slog.Error("error closing engine core", "error", err)
		}
	}()

	router := gin.New()
	router.Use(gin.Recovery())
	c.Telemetry.Register(router)

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		c.Poller.Run(ctx)
	}()

	go func() {
		defer wg.Done()
		c.Loop.Run(ctx)
	}()

	go func() {
		slog.Info("http server listening", "port", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received, draining in-flight work")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// Poller and Loop both select on ctx.Done() at their next iteration
	// boundary, so no in-flight trace is dropped mid-tick: the current
	// poll cycle or tick finishes, then each goroutine returns.
	wg.Wait()
	slog.Info("aiops-engine stopped cleanly")
}
