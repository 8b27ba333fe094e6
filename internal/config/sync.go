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

// SyncConfig tunes the PMS poll loop and provisioning windows without a restart.
type SyncConfig struct {
	PollInterval   time.Duration `mapstructure:"pollInterval"`
	LookaheadDays  int           `mapstructure:"lookaheadDays"`
	LookbackDays   int           `mapstructure:"lookbackDays"`
	ClockSkew      time.Duration `mapstructure:"clockSkew"`
	PaymentLinkTTL time.Duration `mapstructure:"paymentLinkTTL"`
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		PollInterval:   5 * time.Minute,
		LookaheadDays:  14,
		LookbackDays:   1,
		ClockSkew:      15 * time.Minute,
		PaymentLinkTTL: 72 * time.Hour,
	}
}

// SyncConfigHolder serves the current SyncConfig and hot-reloads it
// when the mounted config file changes.
type SyncConfigHolder struct {
	current atomic.Value // holds SyncConfig
}

func NewSyncConfigHolder() (*SyncConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("sync")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/hostelway/config")
	v.AddConfigPath("/etc/hostelway")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HOSTELWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultSyncConfig()
		v.SetDefault("sync.pollInterval", defaults.PollInterval)
		v.SetDefault("sync.lookaheadDays", defaults.LookaheadDays)
		v.SetDefault("sync.lookbackDays", defaults.LookbackDays)
		v.SetDefault("sync.clockSkew", defaults.ClockSkew)
		v.SetDefault("sync.paymentLinkTTL", defaults.PaymentLinkTTL)
	}

	var cfg SyncConfig
	if err := v.UnmarshalKey("sync", &cfg); err != nil {
		return nil, err
	}
	cfg = withSyncDefaults(cfg)
	if err := validateSyncConfig(cfg); err != nil {
		return nil, err
	}

	holder := &SyncConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SyncConfig
		if err := v.UnmarshalKey("sync", &updated); err != nil {
			log.Printf("[sync-config] reload failed: %v", err)
			return
		}
		updated = withSyncDefaults(updated)
		if err := validateSyncConfig(updated); err != nil {
			log.Printf("[sync-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[sync-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticSyncConfigHolder wraps a fixed config without file watching.
func NewStaticSyncConfigHolder(cfg SyncConfig) *SyncConfigHolder {
	holder := &SyncConfigHolder{}
	holder.current.Store(withSyncDefaults(cfg))
	return holder
}

func (h *SyncConfigHolder) Get() SyncConfig {
	return h.current.Load().(SyncConfig)
}

func withSyncDefaults(cfg SyncConfig) SyncConfig {
	defaults := DefaultSyncConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.LookaheadDays <= 0 {
		cfg.LookaheadDays = defaults.LookaheadDays
	}
	if cfg.LookbackDays < 0 {
		cfg.LookbackDays = defaults.LookbackDays
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = defaults.ClockSkew
	}
	if cfg.PaymentLinkTTL <= 0 {
		cfg.PaymentLinkTTL = defaults.PaymentLinkTTL
	}
	return cfg
}

func validateSyncConfig(cfg SyncConfig) error {
	if cfg.PollInterval < time.Second {
		return errors.New("sync.pollInterval must be at least 1s")
	}
	if cfg.ClockSkew > 12*time.Hour {
		return errors.New("sync.clockSkew must not exceed 12h")
	}
	return nil
}
