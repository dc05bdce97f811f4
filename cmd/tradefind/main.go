package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"tradefin/config"
	"tradefin/core"
	"tradefin/core/events"
	"tradefin/crypto"
	"tradefin/gateway/middleware"
	"tradefin/gateway/routes"
	"tradefin/native/common"
	"tradefin/native/pool"
	"tradefin/observability/logging"
	telemetry "tradefin/observability/otel"
	"tradefin/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to daemon configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup("tradefind", cfg.Environment, logging.Rotation{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: "tradefind",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
		})
		if err != nil {
			logger.Error("initialise telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("create data directory", "error", err)
		os.Exit(1)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("open state database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var emitter events.Emitter = events.NoopEmitter{}
	if strings.TrimSpace(cfg.JournalPath) != "" {
		journal, err := events.OpenJournal(cfg.JournalPath)
		if err != nil {
			logger.Error("open event journal", "error", err)
			os.Exit(1)
		}
		defer journal.Close()
		emitter = journal
	}

	node, err := buildNode(cfg, db, emitter)
	if err != nil {
		logger.Error("assemble node", "error", err)
		os.Exit(1)
	}

	handler, err := routes.New(routes.Config{
		Node: node,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		}, nil),
		RateLimiter: middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		}),
		Observability: middleware.NewObservability(logger),
		DevFaucet:     cfg.DevFaucet,
	})
	if err != nil {
		logger.Error("build router", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("gateway listening", "address", cfg.ListenAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

func buildNode(cfg *config.Config, db storage.Database, emitter events.Emitter) (*core.Node, error) {
	admins, err := parseAddresses(cfg.Roles.Admins)
	if err != nil {
		return nil, err
	}
	verifiers, err := parseAddresses(cfg.Roles.Verifiers)
	if err != nil {
		return nil, err
	}
	platform, err := parseTreasury(cfg.Treasury.Platform)
	if err != nil {
		return nil, err
	}
	amc, err := parseTreasury(cfg.Treasury.AMC)
	if err != nil {
		return nil, err
	}
	return core.NewNode(db, core.NodeConfig{
		Roles:            core.NewRoleSet(admins, verifiers),
		PlatformTreasury: platform,
		AMCTreasury:      amc,
		Fees: pool.FeePolicy{
			PlatformFeeBps: cfg.Fees.PlatformFeeBps,
			AMCFeeBps:      cfg.Fees.AMCFeeBps,
			RewardBps:      cfg.Fees.RewardBps,
		},
		Emitter:   emitter,
		Pauses:    common.NewPauses(cfg.Paused...),
		DevFaucet: cfg.DevFaucet,
	})
}

func parseAddresses(raw []string) ([][20]byte, error) {
	out := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		addr, err := crypto.ParseAddress(strings.TrimSpace(entry))
		if err != nil {
			return nil, err
		}
		out = append(out, [20]byte(addr))
	}
	return out, nil
}

func parseTreasury(raw string) ([20]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return [20]byte{}, nil
	}
	addr, err := crypto.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, err
	}
	return [20]byte(addr), nil
}
