package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Port               string        `yaml:"port"`
	LogLevel           string        `yaml:"log_level"`
	ChainID            uint64        `yaml:"chain_id"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	MaxBodySizeBytes   int64         `yaml:"max_body_size_bytes"`
	DataDir            string        `yaml:"data_dir"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	HTTPClientTimeout  time.Duration `yaml:"http_client_timeout"`
	SnapshotInterval   time.Duration `yaml:"snapshot_interval"`

	// Path-finding service
	PFSURL        string `yaml:"pfs_url"`
	PFSAddress    string `yaml:"pfs_address"`
	PFSMaxFee     uint64 `yaml:"pfs_max_fee"`
	PFSMaxPaths   int    `yaml:"pfs_max_paths"`
	OneToNAddress string `yaml:"one_to_n_address"`

	// Feedback reporting
	FeedbackFlushInterval time.Duration `yaml:"feedback_flush_interval"`

	// Admin endpoint auth
	NodeAuthSecret  string `yaml:"node_auth_secret"`
	RequireNodeAuth bool   `yaml:"require_node_auth"`
}

// Default values
const (
	DefaultRateLimitPerMinute    = 100
	DefaultMaxBodySizeBytes      = 1 << 20 // 1MB
	DefaultDataDir               = "./data"
	DefaultShutdownTimeout       = 30 * time.Second
	DefaultHTTPClientTimeout     = 5 * time.Second
	DefaultSnapshotInterval      = 5 * time.Minute
	DefaultFeedbackFlushInterval = 30 * time.Second
	DefaultPFSMaxPaths           = 3
	DefaultChainID               = 1
)

func defaultConfig() *Config {
	return &Config{
		Port:                  "8080",
		LogLevel:              "info",
		ChainID:               DefaultChainID,
		RateLimitPerMinute:    DefaultRateLimitPerMinute,
		MaxBodySizeBytes:      DefaultMaxBodySizeBytes,
		DataDir:               DefaultDataDir,
		ShutdownTimeout:       DefaultShutdownTimeout,
		HTTPClientTimeout:     DefaultHTTPClientTimeout,
		SnapshotInterval:      DefaultSnapshotInterval,
		PFSMaxPaths:           DefaultPFSMaxPaths,
		FeedbackFlushInterval: DefaultFeedbackFlushInterval,
	}
}

// LoadConfig reads configuration from environment variables with defaults.
// When CONFIG_FILE is set, the YAML file is loaded first and environment
// variables override it.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		fileCfg, err := LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if chainID := os.Getenv("CHAIN_ID"); chainID != "" {
		if id, err := strconv.ParseUint(chainID, 10, 64); err == nil && id > 0 {
			cfg.ChainID = id
		}
	}

	if rateLimit := os.Getenv("RATE_LIMIT_PER_MINUTE"); rateLimit != "" {
		if limit, err := strconv.Atoi(rateLimit); err == nil && limit > 0 {
			cfg.RateLimitPerMinute = limit
		}
	}

	if maxBody := os.Getenv("MAX_BODY_SIZE_BYTES"); maxBody != "" {
		if size, err := strconv.ParseInt(maxBody, 10, 64); err == nil && size > 0 {
			cfg.MaxBodySizeBytes = size
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}

	if timeout := os.Getenv("SHUTDOWN_TIMEOUT"); timeout != "" {
		if duration, err := time.ParseDuration(timeout); err == nil && duration > 0 {
			cfg.ShutdownTimeout = duration
		}
	}

	if timeout := os.Getenv("HTTP_CLIENT_TIMEOUT"); timeout != "" {
		if duration, err := time.ParseDuration(timeout); err == nil && duration > 0 {
			cfg.HTTPClientTimeout = duration
		}
	}

	if interval := os.Getenv("SNAPSHOT_INTERVAL"); interval != "" {
		if duration, err := time.ParseDuration(interval); err == nil && duration > 0 {
			cfg.SnapshotInterval = duration
		}
	}

	if pfsURL := os.Getenv("PFS_URL"); pfsURL != "" {
		cfg.PFSURL = pfsURL
	}

	if pfsAddress := os.Getenv("PFS_ADDRESS"); pfsAddress != "" {
		cfg.PFSAddress = pfsAddress
	}

	if maxFee := os.Getenv("PFS_MAX_FEE"); maxFee != "" {
		if fee, err := strconv.ParseUint(maxFee, 10, 64); err == nil {
			cfg.PFSMaxFee = fee
		}
	}

	if maxPaths := os.Getenv("PFS_MAX_PATHS"); maxPaths != "" {
		if paths, err := strconv.Atoi(maxPaths); err == nil && paths > 0 {
			cfg.PFSMaxPaths = paths
		}
	}

	if oneToN := os.Getenv("ONE_TO_N_ADDRESS"); oneToN != "" {
		cfg.OneToNAddress = oneToN
	}

	if interval := os.Getenv("FEEDBACK_FLUSH_INTERVAL"); interval != "" {
		if duration, err := time.ParseDuration(interval); err == nil && duration > 0 {
			cfg.FeedbackFlushInterval = duration
		}
	}

	if secret := os.Getenv("NODE_AUTH_SECRET"); secret != "" {
		cfg.NodeAuthSecret = secret
	}

	if required := os.Getenv("REQUIRE_NODE_AUTH"); required != "" {
		cfg.RequireNodeAuth = required == "true"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadConfigFromFile reads configuration from a YAML file, applying
// defaults for fields the file omits.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (cfg *Config) Validate() error {
	if cfg.PFSURL != "" {
		if len(cfg.PFSURL) > MaxURLLength {
			return fmt.Errorf("pfs_url too long")
		}
		if !strings.HasPrefix(cfg.PFSURL, "http://") && !strings.HasPrefix(cfg.PFSURL, "https://") {
			return fmt.Errorf("pfs_url must be an http(s) URL")
		}
		if cfg.PFSAddress == "" {
			return fmt.Errorf("pfs_address is required when pfs_url is set")
		}
		if _, ok := CanonicalAddress(cfg.PFSAddress); !ok {
			return fmt.Errorf("pfs_address is not a valid address")
		}
		if cfg.OneToNAddress == "" {
			return fmt.Errorf("one_to_n_address is required when pfs_url is set")
		}
		if _, ok := CanonicalAddress(cfg.OneToNAddress); !ok {
			return fmt.Errorf("one_to_n_address is not a valid address")
		}
	}

	if cfg.RequireNodeAuth && cfg.NodeAuthSecret == "" {
		return fmt.Errorf("node_auth_secret is required when require_node_auth is set")
	}

	return nil
}

// PFS returns the path-finding service config, or nil when none is set.
func (cfg *Config) PFS() *PFSConfig {
	if cfg.PFSURL == "" {
		return nil
	}
	return &PFSConfig{
		URL:      cfg.PFSURL,
		Address:  NormalizeAddress(Address(cfg.PFSAddress)),
		MaxFee:   cfg.PFSMaxFee,
		MaxPaths: cfg.PFSMaxPaths,
	}
}
