// Package config loads the coordinator's runtime configuration (spec §6
// "Configuration keys recognized") with viper, the way a service in this
// lineage reads its settings from a file plus environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// StoreMode selects which SessionStore backend a process runs.
type StoreMode string

const (
	ModeRedis      StoreMode = "redis"
	ModeReplicated StoreMode = "raft"
)

// Config is the full set of recognized keys.
type Config struct {
	Store struct {
		Mode  StoreMode `mapstructure:"mode"`
		Redis struct {
			Address     string        `mapstructure:"address"`
			Password    string        `mapstructure:"password"`
			QueryLimit  int           `mapstructure:"queryLimit"`
			DialTimeout time.Duration `mapstructure:"dialTimeout"`
		} `mapstructure:"redis"`
		Raft struct {
			LocalID     string `mapstructure:"localId"`
			BindAddress string `mapstructure:"bindAddress"`
			DataDir     string `mapstructure:"dataDir"`
			Bootstrap   bool   `mapstructure:"bootstrap"`
		} `mapstructure:"raft"`
	} `mapstructure:"store"`

	Coordinator struct {
		DefaultTimeout time.Duration `mapstructure:"defaultTimeout"`
		MonitorTick    time.Duration `mapstructure:"monitorTick"`
	} `mapstructure:"coordinator"`

	MySQLDSN string `mapstructure:"mysqlDsn"`
}

// Load reads configuration from path (if non-empty) plus TC_-prefixed
// environment overrides (e.g. TC_STORE_MODE), applying defaults matching
// spec §6 (queryLimit 100, mode "redis").
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.mode", string(ModeRedis))
	v.SetDefault("store.redis.queryLimit", 100)
	v.SetDefault("store.redis.dialTimeout", 5*time.Second)
	v.SetDefault("coordinator.defaultTimeout", 60*time.Second)
	v.SetDefault("coordinator.monitorTick", 10*time.Second)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.Store.Mode != ModeRedis && cfg.Store.Mode != ModeReplicated {
		return nil, fmt.Errorf("config: unrecognized store.mode %q", cfg.Store.Mode)
	}
	return &cfg, nil
}
