// Package config loads server configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

// Config is the full server configuration.
type Config struct {
	ListenAddr string  `yaml:"listenAddr"`
	LogLevel   string  `yaml:"logLevel"`
	Storage    Storage `yaml:"storage"`
	Alerts     Alerts  `yaml:"alerts"`
}

// Storage selects and parameterizes the persistence backend.
type Storage struct {
	Backend          string `yaml:"backend"`
	SQLitePath       string `yaml:"sqlitePath"`
	FirestoreProject string `yaml:"firestoreProject"`
}

// Alerts tunes the consecutive-failure alerting.
type Alerts struct {
	SustainedThreshold int `yaml:"sustainedThreshold"`
}

// Default returns the configuration used when nothing is provided.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		Storage: Storage{
			Backend:    BackendMemory,
			SQLitePath: "ofxingest.db",
		},
		Alerts: Alerts{SustainedThreshold: 3},
	}
}

// Load reads configuration in increasing precedence: defaults, the YAML
// file at path (skipped when path is empty), then OFXINGEST_* variables
// from the environment. A .env file in the working directory is loaded
// first if present.
func Load(path string) (Config, error) {
	// Missing .env is the common case, not an error.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OFXINGEST_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("OFXINGEST_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("OFXINGEST_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("OFXINGEST_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("OFXINGEST_FIRESTORE_PROJECT"); v != "" {
		cfg.Storage.FirestoreProject = v
	}
	if v := os.Getenv("OFXINGEST_SUSTAINED_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Alerts.SustainedThreshold = n
		}
	}
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage backend %q requires sqlitePath", c.Storage.Backend)
		}
	case BackendFirestore:
		if c.Storage.FirestoreProject == "" {
			return fmt.Errorf("storage backend %q requires firestoreProject", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Alerts.SustainedThreshold < 1 {
		return fmt.Errorf("sustainedThreshold must be at least 1, got %d", c.Alerts.SustainedThreshold)
	}
	return nil
}
