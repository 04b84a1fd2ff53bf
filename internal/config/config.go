package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/series-dashboard/internal/common"
	"github.com/i474232898/series-dashboard/internal/series"
)

const (
	defaultDataURL      = "https://auraprodstorage.blob.core.windows.net/public-parquet/consolidado.parquet"
	defaultBatchDataURL = "https://auraprodstorage.blob.core.windows.net/public-parquet/consolidado_batelada.parquet"

	defaultSourceOrder = "BAR_Au_L,LIX_Au_L,TQ1_Au_L,TQ2_Au_L,TQ6_Au_L,TQ7_Au_L,REJ_Au_L,LIX_Au_S,TQ2_Au_S,TQ6_Au_S,REJ_Au_S"
	defaultLiquid      = "BAR_Au_L,LIX_Au_L,TQ1_Au_L,TQ2_Au_L,TQ6_Au_L,TQ7_Au_L,REJ_Au_L"
)

type AppConfig struct {
	Port string

	// Remote snapshots.
	DataURL      string
	BatchDataURL string

	// Dataset cache and outbound calls.
	CacheTTL    time.Duration
	HTTPTimeout time.Duration

	// FreshnessInterval controls the background fingerprint check (0 disables it).
	FreshnessInterval time.Duration
	SessionIdleTTL    time.Duration

	// View defaults.
	DefaultWindow  int
	LookbackDays   int
	SourceOrder    []string
	LiquidSources  []string
	BatchDateFloor time.Time

	LogLevel zerolog.Level
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Err(err).Msg("config: no .env file loaded")
	}
	cfg := &AppConfig{
		Port:         getenvDefault("PORT", "8080"),
		DataURL:      getenvDefault("DATA_URL", defaultDataURL),
		BatchDataURL: getenvDefault("BATCH_DATA_URL", defaultBatchDataURL),
	}

	var err error
	if cfg.CacheTTL, err = getenvDuration("CACHE_TTL", "10m"); err != nil {
		return nil, err
	}
	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("invalid CACHE_TTL: must be positive")
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.FreshnessInterval, err = getenvDuration("FRESHNESS_INTERVAL", "5m"); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTTL, err = getenvDuration("SESSION_IDLE_TTL", "30m"); err != nil {
		return nil, err
	}

	cfg.DefaultWindow = getenvInt("DEFAULT_WINDOW", 6)
	if cfg.DefaultWindow <= 0 {
		return nil, fmt.Errorf("invalid DEFAULT_WINDOW: must be a positive integer, got %d", cfg.DefaultWindow)
	}
	cfg.LookbackDays = getenvInt("LOOKBACK_DAYS", 30)
	if cfg.LookbackDays < 0 {
		return nil, fmt.Errorf("invalid LOOKBACK_DAYS: must not be negative, got %d", cfg.LookbackDays)
	}

	cfg.SourceOrder = common.SplitList(getenvDefault("SOURCE_ORDER", defaultSourceOrder))
	cfg.LiquidSources = common.SplitList(getenvDefault("LIQUID_SOURCES", defaultLiquid))
	if len(cfg.LiquidSources) == 0 {
		return nil, fmt.Errorf("invalid LIQUID_SOURCES: at least one source is required")
	}

	floor, err := series.ParseDay(getenvDefault("BATCH_DATE_FLOOR", "2023-07-22"))
	if err != nil {
		return nil, fmt.Errorf("invalid BATCH_DATE_FLOOR: %w", err)
	}
	cfg.BatchDateFloor = floor

	level, err := zerolog.ParseLevel(getenvDefault("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
