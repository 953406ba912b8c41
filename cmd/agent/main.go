package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VaXeS13/MP-sub002/internal/agent"
	"github.com/VaXeS13/MP-sub002/internal/command"
	"github.com/VaXeS13/MP-sub002/internal/config"
	"github.com/VaXeS13/MP-sub002/internal/device"
	"github.com/VaXeS13/MP-sub002/internal/ledger"
	"github.com/VaXeS13/MP-sub002/internal/logger"
	"github.com/VaXeS13/MP-sub002/internal/realtime"
)

func main() {
	var (
		cfgPath   = flag.String("config", "config/config.yaml", "Path to configuration file")
		serverURL = flag.String("server", "", "Override cloud hub URL")
	)
	flag.Parse()

	cfg, err := config.Init(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Cannot load configuration:", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if err := logger.Init(cfg.LogPath, cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "Cannot open log file:", err)
		os.Exit(1)
	}
	if cfg.TenantID == "" || cfg.AgentID == "" {
		logger.Error("agent.tenant_id and agent.agent_id must be configured")
		os.Exit(1)
	}

	var store ledger.Store
	if cfg.LedgerDBPath != "" {
		sqlStore, err := ledger.OpenSQLStore(cfg.LedgerDBPath)
		if err != nil {
			logger.Error("Cannot open CRK database:", err)
			os.Exit(1)
		}
		store = sqlStore
	} else {
		logger.Warn("No ledger db path configured, fiscal history will not survive a restart")
		store = ledger.NewMemoryStore()
	}

	crk := ledger.New(store)
	registry := device.NewRegistry()
	queue := command.NewQueue(cfg.DefaultTimeout, cfg.DefaultMaxRetries)

	signer := &realtime.Signer{Secret: []byte(cfg.TokenSecret), Issuer: "local-agent", ExpMin: 60}

	var svc *agent.Service
	link := realtime.NewLink(signer, func() realtime.RegistrationSnapshot {
		return svc.Snapshot()
	})
	svc = agent.New(cfg, queue, registry, crk, link)

	if err := svc.Initialize(cfg.TenantID, cfg.AgentID); err != nil {
		logger.Error("Agent initialization failed:", err)
		os.Exit(1)
	}

	// The initial connect retries forever on the link's fixed schedule;
	// connectivity loss must never kill the process.
	for attempt := 0; ; attempt++ {
		started, err := svc.Start(context.Background())
		if err == nil {
			if !started {
				logger.Warn("Agent already running")
			}
			break
		}
		delay := realtime.BackoffDelay(attempt)
		logger.Errorf("Start failed (attempt #%d): %v, retrying in %v", attempt+1, err, delay)
		time.Sleep(delay)
	}

	config.Watch(svc.ApplyConfig)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received, exiting...")
	svc.Stop()
}
