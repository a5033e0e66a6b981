package config

// Package config provides a reusable loader for meshkv node configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"meshkv/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a meshkv node (spec §6), mirroring
// the environment variables and YAML files under cmd/config.
type Config struct {
	Node struct {
		BindAddr       string   `mapstructure:"bind_addr" json:"bind_addr"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		DataDir        string   `mapstructure:"data_dir" json:"data_dir"`
		Region         string   `mapstructure:"region" json:"region"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		NATLeaseSecs   int      `mapstructure:"nat_lease_secs" json:"nat_lease_secs"`
	} `mapstructure:"node" json:"node"`

	Resources struct {
		MaxConcurrentOps   int `mapstructure:"max_concurrent_ops" json:"max_concurrent_ops"`
		MaxPeerConnections int `mapstructure:"max_peer_connections" json:"max_peer_connections"`
	} `mapstructure:"resources" json:"resources"`

	RateLimit struct {
		Requests   int `mapstructure:"requests" json:"requests"`
		WindowSecs int `mapstructure:"window_secs" json:"window_secs"`
	} `mapstructure:"rate_limit" json:"rate_limit"`

	Cache struct {
		HotSize   int `mapstructure:"hot_size" json:"hot_size"`
		WarmSize  int `mapstructure:"warm_size" json:"warm_size"`
		HotTTLMS  int `mapstructure:"hot_ttl_ms" json:"hot_ttl_ms"`
		WarmTTLMS int `mapstructure:"warm_ttl_ms" json:"warm_ttl_ms"`
	} `mapstructure:"cache" json:"cache"`

	Limits struct {
		MaxValueSizeBytes      int `mapstructure:"max_value_size_bytes" json:"max_value_size_bytes"`
		TimestampDriftWindowMS int `mapstructure:"timestamp_drift_window_ms" json:"timestamp_drift_window_ms"`
	} `mapstructure:"limits" json:"limits"`

	Sync struct {
		IntervalSecs int `mapstructure:"interval_secs" json:"interval_secs"`
	} `mapstructure:"sync" json:"sync"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// defaults mirrors spec §6's stated defaults, applied before any file or
// environment override is read.
func defaults() {
	viper.SetDefault("resources.max_concurrent_ops", 1000)
	viper.SetDefault("resources.max_peer_connections", 100)
	viper.SetDefault("rate_limit.requests", 100)
	viper.SetDefault("rate_limit.window_secs", 60)
	viper.SetDefault("cache.hot_size", 10000)
	viper.SetDefault("cache.warm_size", 100000)
	viper.SetDefault("cache.hot_ttl_ms", 60000)
	viper.SetDefault("cache.warm_ttl_ms", 600000)
	viper.SetDefault("limits.max_value_size_bytes", 10<<20)
	viper.SetDefault("limits.timestamp_drift_window_ms", 300000)
	viper.SetDefault("sync.interval_secs", 30)
	viper.SetDefault("node.bind_addr", "/ip4/0.0.0.0/tcp/0")
	viper.SetDefault("node.discovery_tag", "meshkv")
	viper.SetDefault("node.nat_lease_secs", 3600)
	viper.SetDefault("node.data_dir", "./data")
	viper.SetDefault("logging.level", "info")
}

// bindEnv maps spec §6's bare environment variable names (no MESHKV_
// prefix, since they're meant to be set directly in a unit file or compose
// env block) onto their nested config keys.
func bindEnv() {
	_ = viper.BindEnv("node.bind_addr", "BIND_ADDR")
	_ = viper.BindEnv("node.bootstrap_peers", "BOOTSTRAP_PEERS")
	_ = viper.BindEnv("node.data_dir", "DATA_DIR")
	_ = viper.BindEnv("node.region", "REGION")
	_ = viper.BindEnv("node.nat_lease_secs", "NAT_LEASE_SECS")
	_ = viper.BindEnv("resources.max_concurrent_ops", "MAX_CONCURRENT_OPS")
	_ = viper.BindEnv("resources.max_peer_connections", "MAX_PEER_CONNECTIONS")
	_ = viper.BindEnv("rate_limit.requests", "RATE_LIMIT_REQUESTS")
	_ = viper.BindEnv("rate_limit.window_secs", "RATE_LIMIT_WINDOW_SECS")
	_ = viper.BindEnv("cache.hot_size", "CACHE_HOT_SIZE")
	_ = viper.BindEnv("cache.warm_size", "CACHE_WARM_SIZE")
	_ = viper.BindEnv("cache.hot_ttl_ms", "CACHE_HOT_TTL_MS")
	_ = viper.BindEnv("cache.warm_ttl_ms", "CACHE_WARM_TTL_MS")
	_ = viper.BindEnv("limits.max_value_size_bytes", "MAX_VALUE_SIZE_BYTES")
	_ = viper.BindEnv("limits.timestamp_drift_window_ms", "TIMESTAMP_DRIFT_WINDOW_MS")
}

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	defaults()

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	bindEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	// BOOTSTRAP_PEERS arrives as a single comma-separated string whether it
	// came from the environment or a flag; viper's default decode hook splits
	// it on commas but keeps surrounding spaces and empty items, so it is
	// re-split here with each entry trimmed and blank entries dropped.
	if raw := viper.GetString("node.bootstrap_peers"); raw != "" {
		AppConfig.Node.BootstrapPeers = nil
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				AppConfig.Node.BootstrapPeers = append(AppConfig.Node.BootstrapPeers, p)
			}
		}
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the MESHKV_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("MESHKV_ENV", ""))
}
