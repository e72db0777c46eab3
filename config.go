package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/solvenet/solvenet/core"
)

// Config is the node configuration, from flags with SOLVENET_* environment
// fallbacks.
type Config struct {
	NetworkID        string
	GenesisTimestamp float64
	GenesisSeed      string
	CreatorTag       string

	DataDir           string
	APIListen         string
	EpochDuration     float64
	TargetBlockTime   float64
	InitialTarget     float64
	ConfirmationDepth uint64
	MaxReorgDepth     int
	MaxHeadersPerSec  int

	MinerEnabled bool
	MinerTier    int
	MaxSolveSecs float64

	LogLevel  string
	LogFormat string
}

func defaultConfig() Config {
	return Config{
		NetworkID:        "solvenet-mainnet",
		GenesisTimestamp: 1609459200, // 2021-01-01T00:00:00Z
		GenesisSeed:      "solvenet-genesis-v1",
		CreatorTag:       "solvenet",

		DataDir:           "data",
		APIListen:         "127.0.0.1:8080",
		EpochDuration:     core.DefaultEpochDuration,
		TargetBlockTime:   core.DefaultTargetBlockTime,
		InitialTarget:     1000,
		ConfirmationDepth: core.DefaultConfirmationDepth,
		MaxReorgDepth:     core.DefaultMaxReorgDepth,
		MaxHeadersPerSec:  core.DefaultMaxHeadersPerSec,

		MinerEnabled: true,
		MinerTier:    int(core.Tier2),
		MaxSolveSecs: 300,

		LogLevel:  "info",
		LogFormat: "json",
	}
}

func parseFlags(args []string) (Config, error) {
	cfg := defaultConfig()

	fs := flag.NewFlagSet("solvenet-node", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	networkID := fs.String("network", envOr("SOLVENET_NETWORK", cfg.NetworkID), "Network ID")
	genesisSeed := fs.String("genesis.seed", envOr("SOLVENET_GENESIS_SEED", cfg.GenesisSeed), "Genesis seed")
	dataDir := fs.String("data.dir", envOr("SOLVENET_DATA_DIR", cfg.DataDir), "Data directory")
	apiListen := fs.String("api.listen", envOr("SOLVENET_API_LISTEN", cfg.APIListen), "HTTP API listen address (ip:port)")
	epochDuration := fs.Float64("epoch.duration", envOrFloat("SOLVENET_EPOCH_DURATION", cfg.EpochDuration), "Epoch salt rotation period (seconds)")
	targetBlockTime := fs.Float64("difficulty.blockTime", envOrFloat("SOLVENET_TARGET_BLOCK_TIME", cfg.TargetBlockTime), "Target block time (seconds)")
	initialTarget := fs.Float64("difficulty.initial", envOrFloat("SOLVENET_INITIAL_TARGET", cfg.InitialTarget), "Initial difficulty target")
	confDepth := fs.Uint64("finality.depth", cfg.ConfirmationDepth, "Confirmation depth for finality")
	maxReorg := fs.Int("reorg.maxDepth", cfg.MaxReorgDepth, "Maximum accepted reorg depth")
	headerRate := fs.Int("headers.maxPerSec", cfg.MaxHeadersPerSec, "Header admission rate limit (headers/second)")
	minerEnabled := fs.Bool("miner.enabled", envOrBool("SOLVENET_MINER_ENABLED", cfg.MinerEnabled), "Enable the local mining worker")
	minerTier := fs.Int("miner.tier", cfg.MinerTier, "Mining capacity tier (1-5)")
	maxSolve := fs.Float64("miner.maxSolveSecs", cfg.MaxSolveSecs, "Per-attempt solve budget (seconds)")
	logLevel := fs.String("log.level", envOr("SOLVENET_LOG_LEVEL", cfg.LogLevel), "Log level: debug|info|warn|error")
	logFormat := fs.String("log.format", envOr("SOLVENET_LOG_FORMAT", cfg.LogFormat), "Log format: json|text")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.NetworkID = strings.TrimSpace(*networkID)
	cfg.GenesisSeed = strings.TrimSpace(*genesisSeed)
	cfg.DataDir = strings.TrimSpace(*dataDir)
	cfg.APIListen = strings.TrimSpace(*apiListen)
	cfg.EpochDuration = *epochDuration
	cfg.TargetBlockTime = *targetBlockTime
	cfg.InitialTarget = *initialTarget
	cfg.ConfirmationDepth = *confDepth
	cfg.MaxReorgDepth = *maxReorg
	cfg.MaxHeadersPerSec = *headerRate
	cfg.MinerEnabled = *minerEnabled
	cfg.MinerTier = *minerTier
	cfg.MaxSolveSecs = *maxSolve
	cfg.LogLevel = strings.TrimSpace(*logLevel)
	cfg.LogFormat = strings.TrimSpace(*logFormat)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.NetworkID == "" {
		return errors.New("network must not be empty")
	}
	if cfg.DataDir == "" {
		return errors.New("data.dir must not be empty")
	}
	if cfg.APIListen == "" {
		return errors.New("api.listen must not be empty")
	}
	if cfg.EpochDuration <= 0 {
		return fmt.Errorf("epoch.duration out of range: %f", cfg.EpochDuration)
	}
	if cfg.TargetBlockTime <= 0 {
		return fmt.Errorf("difficulty.blockTime out of range: %f", cfg.TargetBlockTime)
	}
	if cfg.MaxReorgDepth <= 0 {
		return fmt.Errorf("reorg.maxDepth out of range: %d", cfg.MaxReorgDepth)
	}
	if cfg.MaxHeadersPerSec <= 0 {
		return fmt.Errorf("headers.maxPerSec out of range: %d", cfg.MaxHeadersPerSec)
	}
	if !core.Tier(cfg.MinerTier).Valid() {
		return fmt.Errorf("miner.tier out of range: %d", cfg.MinerTier)
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", cfg.LogLevel)
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log.format: %q", cfg.LogFormat)
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envOrFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envOrBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
