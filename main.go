package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/solvenet/solvenet/api"
	"github.com/solvenet/solvenet/core"
	"github.com/solvenet/solvenet/p2p"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("node failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	store, err := core.OpenLevelDB(filepath.Join(cfg.DataDir, "chain.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	registry := core.NewRegistry(core.NewSubsetSumSolver())
	adjuster := core.NewAdjuster(cfg.InitialTarget, cfg.TargetBlockTime)
	hub := p2p.NewHub(logger)

	engine, err := core.NewEngine(core.EngineConfig{
		NetworkID:         cfg.NetworkID,
		GenesisTimestamp:  cfg.GenesisTimestamp,
		GenesisSeed:       cfg.GenesisSeed,
		CreatorTag:        cfg.CreatorTag,
		EpochDuration:     cfg.EpochDuration,
		ConfirmationDepth: cfg.ConfirmationDepth,
		MaxReorgDepth:     cfg.MaxReorgDepth,
		MaxHeadersPerSec:  cfg.MaxHeadersPerSec,
	}, registry, store, adjuster,
		core.WithAnnouncer(hub),
		core.WithMetrics(core.NewMetrics()),
		core.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MinerEnabled {
		miner, err := core.NewMiner(core.MinerConfig{
			Tier:          core.Tier(cfg.MinerTier),
			EpochDuration: cfg.EpochDuration,
			Limits: core.ResourceLimits{
				MaxSolveSeconds: cfg.MaxSolveSecs,
				MaxMemoryBytes:  core.DefaultLimits().MaxMemoryBytes,
			},
		}, engine, registry, logger)
		if err != nil {
			return err
		}
		go miner.Run(ctx)
		go submitLoop(ctx, engine, miner, logger)
	}

	server := &http.Server{
		Addr:         cfg.APIListen,
		Handler:      api.NewServer(engine, hub.ServeWS),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("api listening", "addr", cfg.APIListen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// submitLoop feeds locally mined blocks through the same validation path
// remote blocks take. The miner never mutates engine state directly.
func submitLoop(ctx context.Context, engine *core.Engine, miner *core.Miner, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case mined := <-miner.Results():
			if err := engine.ValidateHeader(mined.Block); err != nil {
				logger.Warn("mined header rejected", "block", mined.Block.BlockHash.String(), "error", err)
				continue
			}
			if err := engine.ValidateReveal(mined.Block.BlockHash, mined.Commitment, mined.MinerSalt, mined.Bundle); err != nil {
				logger.Warn("mined reveal rejected", "block", mined.Block.BlockHash.String(), "error", err)
			}
		}
	}
}

func newLogger(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "text") {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
