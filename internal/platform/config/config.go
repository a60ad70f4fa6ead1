package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL   string
	Port          string
	IsProduction  bool
	EnableDBCheck bool

	// Posting policy
	AllowDirectPost   bool     // Permit posting straight from DRAFT without approval
	DangerZoneActions []string // Action names requiring an explicit override record

	// Outbox relay
	RelayPollInterval time.Duration
	RelayBatchSize    int
	RelayMaxAttempts  int
	RelayReclaimAfter time.Duration // Age at which a claimed entry is swept back to pending

	// Rate limiting, in ulule/limiter notation, e.g. "100-M"
	RateLimit string
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("IS_PRODUCTION", false)
	viper.SetDefault("ENABLE_DB_CHECK", false)
	viper.SetDefault("ALLOW_DIRECT_POST", false)
	viper.SetDefault("DANGER_ZONE_ACTIONS", "reverse")
	viper.SetDefault("RELAY_POLL_INTERVAL", "10s")
	viper.SetDefault("RELAY_BATCH_SIZE", 50)
	viper.SetDefault("RELAY_MAX_ATTEMPTS", 5)
	viper.SetDefault("RELAY_RECLAIM_AFTER", "5m")
	viper.SetDefault("RATE_LIMIT", "300-M")

	viper.AutomaticEnv()

	cfg := &Config{}

	cfg.DatabaseURL = viper.GetString("PGSQL_URL")
	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set.")
	}

	cfg.Port = viper.GetString("PORT")
	if cfg.Port == "" {
		cfg.Port = "8080"
		log.Printf("Warning: PORT environment variable not set. Defaulting to %s\n", cfg.Port)
	}

	cfg.IsProduction = viper.GetBool("IS_PRODUCTION")
	cfg.EnableDBCheck = viper.GetBool("ENABLE_DB_CHECK")
	cfg.AllowDirectPost = viper.GetBool("ALLOW_DIRECT_POST")

	dangerZone := viper.GetString("DANGER_ZONE_ACTIONS")
	for _, action := range strings.Split(dangerZone, ",") {
		action = strings.TrimSpace(action)
		if action != "" {
			cfg.DangerZoneActions = append(cfg.DangerZoneActions, action)
		}
	}

	pollIntervalStr := viper.GetString("RELAY_POLL_INTERVAL")
	pollInterval, err := time.ParseDuration(pollIntervalStr)
	if err != nil {
		pollInterval = 10 * time.Second
		log.Printf("Warning: Invalid value for RELAY_POLL_INTERVAL ('%s'). Defaulting to %s.\n", pollIntervalStr, pollInterval.String())
	}
	cfg.RelayPollInterval = pollInterval

	cfg.RelayBatchSize = viper.GetInt("RELAY_BATCH_SIZE")
	if cfg.RelayBatchSize <= 0 {
		cfg.RelayBatchSize = 50
		log.Printf("Warning: RELAY_BATCH_SIZE must be positive. Defaulting to %d.\n", cfg.RelayBatchSize)
	}

	cfg.RelayMaxAttempts = viper.GetInt("RELAY_MAX_ATTEMPTS")
	if cfg.RelayMaxAttempts <= 0 {
		cfg.RelayMaxAttempts = 5
		log.Printf("Warning: RELAY_MAX_ATTEMPTS must be positive. Defaulting to %d.\n", cfg.RelayMaxAttempts)
	}

	reclaimAfterStr := viper.GetString("RELAY_RECLAIM_AFTER")
	reclaimAfter, err := time.ParseDuration(reclaimAfterStr)
	if err != nil {
		reclaimAfter = 5 * time.Minute
		log.Printf("Warning: Invalid value for RELAY_RECLAIM_AFTER ('%s'). Defaulting to %s.\n", reclaimAfterStr, reclaimAfter.String())
	}
	cfg.RelayReclaimAfter = reclaimAfter

	cfg.RateLimit = viper.GetString("RATE_LIMIT")

	return cfg, nil
}
