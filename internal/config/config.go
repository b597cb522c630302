package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Pair is one source wall → destination channel mapping from the pairs file.
type Pair struct {
	Source        string `toml:"source"`
	ChannelID     int64  `toml:"channel_id"`
	SeedTimestamp int64  `toml:"seed_timestamp"`
}

type pairsFile struct {
	Pairs []Pair `toml:"pair"`
}

// Config holds the application configuration.
type Config struct {
	AppEnv       string
	Debug        bool
	Version      string
	VKToken      string
	BotToken     string
	SentryDSN    string
	StoragePath  string
	PairsFile    string
	SyncInterval string // empty means a single run
	Pairs        []Pair
}

// LoadConfig loads configuration from environment variables and the TOML
// pairs file. It attempts to load a .env file if present but prioritizes
// actual environment variables set in the system (e.g., by Docker).
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	debug, _ := strconv.ParseBool(getEnv("DEBUG", "false"))

	cfg := &Config{
		AppEnv:       getEnv("APP_ENV", "development"),
		Debug:        debug,
		Version:      getEnv("VERSION", "dev"),
		VKToken:      getEnv("VK_SERVICE_ACCESS_TOKEN", ""),
		BotToken:     getEnv("TELEGRAM_BOT_TOKEN", ""),
		SentryDSN:    getEnv("SENTRY_DSN", ""),
		StoragePath:  getEnv("STORAGE_PATH", "vk-tg-mirror-storage/storage"),
		PairsFile:    getEnv("PAIRS_FILE", "mirror.toml"),
		SyncInterval: getEnv("SYNC_INTERVAL", ""),
	}

	if cfg.VKToken == "" {
		return nil, fmt.Errorf("VK_SERVICE_ACCESS_TOKEN is required")
	}
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.SentryDSN == "" {
		log.Println("Warning: SENTRY_DSN is not set. Error tracking disabled.")
	}

	pairs, err := loadPairs(cfg.PairsFile)
	if err != nil {
		return nil, err
	}
	cfg.Pairs = pairs

	return cfg, nil
}

// loadPairs reads the pairs file and validates every entry. A pair without a
// seed timestamp falls back to the LAST_PUBLISHED_UNIX_TIMESTAMP_<source>
// environment variable, used only when no cursor entry exists for the source.
func loadPairs(path string) ([]Pair, error) {
	var pf pairsFile
	if _, err := toml.DecodeFile(path, &pf); err != nil {
		return nil, fmt.Errorf("invalid pairs file %s: %w", path, err)
	}
	if len(pf.Pairs) == 0 {
		return nil, fmt.Errorf("pairs file %s defines no [[pair]] entries", path)
	}

	for i, pair := range pf.Pairs {
		if pair.Source == "" {
			return nil, fmt.Errorf("pair %d: source is required", i)
		}
		// The source doubles as the cursor file key, which is
		// whitespace-separated.
		if strings.ContainsAny(pair.Source, " \t\n") {
			return nil, fmt.Errorf("pair %d: source %q must not contain whitespace", i, pair.Source)
		}
		if pair.ChannelID == 0 {
			return nil, fmt.Errorf("pair %d (%s): channel_id is required", i, pair.Source)
		}
		if pair.SeedTimestamp == 0 {
			if seed := getEnv("LAST_PUBLISHED_UNIX_TIMESTAMP_"+pair.Source, ""); seed != "" {
				ts, err := strconv.ParseInt(seed, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("pair %d (%s): invalid seed timestamp %q: %w", i, pair.Source, seed, err)
				}
				pf.Pairs[i].SeedTimestamp = ts
			}
		}
	}
	return pf.Pairs, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
