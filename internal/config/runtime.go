package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RuntimeConfig holds the gateway tunables that can change without a restart.
type RuntimeConfig struct {
	KeyCacheTTLSeconds   int   `mapstructure:"keyCacheTTLSeconds"`
	ProxyTimeoutSeconds  int   `mapstructure:"proxyTimeoutSeconds"`
	GlobalBufferCap      int64 `mapstructure:"globalBufferCap"`
	CustomerBufferCap    int64 `mapstructure:"customerBufferCap"`
	DrainIntervalSeconds int   `mapstructure:"drainIntervalSeconds"`
	DrainBatchSize       int   `mapstructure:"drainBatchSize"`
	RateLimitEnabled     bool  `mapstructure:"rateLimitEnabled"`
}

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		KeyCacheTTLSeconds:   300,
		ProxyTimeoutSeconds:  30,
		GlobalBufferCap:      5000,
		CustomerBufferCap:    1000,
		DrainIntervalSeconds: 30,
		DrainBatchSize:       100,
		RateLimitEnabled:     true,
	}
}

func (c RuntimeConfig) KeyCacheTTL() time.Duration {
	return time.Duration(c.KeyCacheTTLSeconds) * time.Second
}

func (c RuntimeConfig) ProxyTimeout() time.Duration {
	return time.Duration(c.ProxyTimeoutSeconds) * time.Second
}

func (c RuntimeConfig) DrainInterval() time.Duration {
	return time.Duration(c.DrainIntervalSeconds) * time.Second
}

type RuntimeConfigHolder struct {
	current atomic.Value // holds RuntimeConfig
}

func NewRuntimeConfigHolder() (*RuntimeConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("runtime")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/metergate/config") // Volume-mounted config
	v.AddConfigPath("/etc/metergate")            // System config
	v.AddConfigPath(".")                         // Current directory (dev mode)

	v.SetEnvPrefix("METERGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRuntimeConfig()
	v.SetDefault("runtime.keyCacheTTLSeconds", defaults.KeyCacheTTLSeconds)
	v.SetDefault("runtime.proxyTimeoutSeconds", defaults.ProxyTimeoutSeconds)
	v.SetDefault("runtime.globalBufferCap", defaults.GlobalBufferCap)
	v.SetDefault("runtime.customerBufferCap", defaults.CustomerBufferCap)
	v.SetDefault("runtime.drainIntervalSeconds", defaults.DrainIntervalSeconds)
	v.SetDefault("runtime.drainBatchSize", defaults.DrainBatchSize)
	v.SetDefault("runtime.rateLimitEnabled", defaults.RateLimitEnabled)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg RuntimeConfig
	if err := v.UnmarshalKey("runtime", &cfg); err != nil {
		return nil, err
	}
	if err := validateRuntimeConfig(cfg); err != nil {
		return nil, err
	}

	holder := &RuntimeConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated RuntimeConfig
		if err := v.UnmarshalKey("runtime", &updated); err != nil {
			log.Printf("[runtime-config] reload failed: %v", err)
			return
		}
		if err := validateRuntimeConfig(updated); err != nil {
			log.Printf("[runtime-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[runtime-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *RuntimeConfigHolder) Get() RuntimeConfig {
	return h.current.Load().(RuntimeConfig)
}

func validateRuntimeConfig(cfg RuntimeConfig) error {
	if cfg.KeyCacheTTLSeconds <= 0 {
		return errors.New("runtime.keyCacheTTLSeconds must be positive")
	}
	if cfg.ProxyTimeoutSeconds <= 0 {
		return errors.New("runtime.proxyTimeoutSeconds must be positive")
	}
	if cfg.GlobalBufferCap <= 0 || cfg.CustomerBufferCap <= 0 {
		return errors.New("runtime buffer caps must be positive")
	}
	if cfg.DrainIntervalSeconds <= 0 {
		return errors.New("runtime.drainIntervalSeconds must be positive")
	}
	if cfg.DrainBatchSize <= 0 || cfg.DrainBatchSize > 1000 {
		return errors.New("runtime.drainBatchSize must be between 1 and 1000")
	}
	return nil
}
