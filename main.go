package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/denisbrodbeck/machineid"

	"mt5-gateway/internal/api"
	"mt5-gateway/internal/events"
	"mt5-gateway/internal/registry"
	"mt5-gateway/internal/stream"
	"mt5-gateway/internal/trade"
	"mt5-gateway/pkg/config"
	"mt5-gateway/pkg/db"
	"mt5-gateway/pkg/logging"
	"mt5-gateway/pkg/terminal"
	"mt5-gateway/pkg/terminal/bridge"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logging.Setup(cfg.LogFile)
	log.Printf("starting mt5-gateway on port %s", cfg.Port)

	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v1.0-dev"
	}
	instanceID, err := machineid.ProtectedID("mt5-gateway")
	if err != nil {
		instanceID = "unknown"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("journal init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("journal migrations failed: %v", err)
	}

	bus := events.NewBus()

	factory := terminalFactory(cfg)
	reg := registry.New(factory, bus, registry.Config{
		SweepInterval: cfg.SweepInterval,
		IdleTimeout:   cfg.IdleTimeout,
		Stream: stream.Config{
			PollInterval: cfg.PollInterval,
			PoolSize:     cfg.StreamPoolSize,
		},
	})
	reg.Start(ctx)

	exec := &trade.Executor{Journal: database, Bus: bus}

	server := api.NewServer(reg, exec, bus, database, cfg.JWTSecret, api.Meta{
		Version:      buildVersion,
		InstanceID:   instanceID,
		MockTerminal: cfg.UseMockTerminal,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	reg.Stop(shutdownCtx)
	log.Println("shutdown complete")
}

// terminalFactory picks the terminal backend. The mock is a single
// shared in-memory terminal per account; the bridge is one HTTP client
// per account against the terminal bridge process.
func terminalFactory(cfg *config.Config) registry.Factory {
	if cfg.UseMockTerminal {
		var mu sync.Mutex
		mocks := make(map[string]*terminal.MockGateway)
		return func(accountID string) terminal.Gateway {
			mu.Lock()
			defer mu.Unlock()
			m, ok := mocks[accountID]
			if !ok {
				m = terminal.NewMockGateway()
				mocks[accountID] = m
			}
			return m
		}
	}
	return func(accountID string) terminal.Gateway {
		return bridge.New(bridge.Config{
			BaseURL: cfg.BridgeURL,
			Timeout: cfg.TerminalTimeout,
			RPS:     cfg.BridgeRPS,
			Burst:   int(cfg.BridgeRPS),
		})
	}
}
