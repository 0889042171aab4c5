package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RedemptionConfig tunes artifact issuance and replay handling.
type RedemptionConfig struct {
	CouponDefaultValidDays int    `mapstructure:"couponDefaultValidDays"`
	VirtualDefaultVendor   string `mapstructure:"virtualDefaultVendor"`
	CouponCodePrefix       string `mapstructure:"couponCodePrefix"`
	VirtualCodePrefix      string `mapstructure:"virtualCodePrefix"`
	ReplayMaxAttempts      int    `mapstructure:"replayMaxAttempts"`
	ReplayBackoffMs        int    `mapstructure:"replayBackoffMs"`
	InFlightLockTTLSeconds int    `mapstructure:"inFlightLockTTLSeconds"`
	HistoryDefaultPageSize int    `mapstructure:"historyDefaultPageSize"`
	HistoryMaxPageSize     int    `mapstructure:"historyMaxPageSize"`
}

func DefaultRedemptionConfig() RedemptionConfig {
	return RedemptionConfig{
		CouponDefaultValidDays: 30,
		VirtualDefaultVendor:   "default",
		CouponCodePrefix:       "CPN",
		VirtualCodePrefix:      "VRT",
		ReplayMaxAttempts:      5,
		ReplayBackoffMs:        20,
		InFlightLockTTLSeconds: 30,
		HistoryDefaultPageSize: 20,
		HistoryMaxPageSize:     100,
	}
}

func (c RedemptionConfig) ReplayBackoff() time.Duration {
	return time.Duration(c.ReplayBackoffMs) * time.Millisecond
}

func (c RedemptionConfig) InFlightLockTTL() time.Duration {
	return time.Duration(c.InFlightLockTTLSeconds) * time.Second
}

type RedemptionConfigHolder struct {
	current atomic.Value // holds RedemptionConfig
}

// NewStaticRedemptionConfigHolder pins cfg without watching any file.
func NewStaticRedemptionConfigHolder(cfg RedemptionConfig) *RedemptionConfigHolder {
	holder := &RedemptionConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewRedemptionConfigHolder(log *zap.Logger) (*RedemptionConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("redemption")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/loyalty")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LOYALTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRedemptionConfig()
	v.SetDefault("redemption.couponDefaultValidDays", defaults.CouponDefaultValidDays)
	v.SetDefault("redemption.virtualDefaultVendor", defaults.VirtualDefaultVendor)
	v.SetDefault("redemption.couponCodePrefix", defaults.CouponCodePrefix)
	v.SetDefault("redemption.virtualCodePrefix", defaults.VirtualCodePrefix)
	v.SetDefault("redemption.replayMaxAttempts", defaults.ReplayMaxAttempts)
	v.SetDefault("redemption.replayBackoffMs", defaults.ReplayBackoffMs)
	v.SetDefault("redemption.inFlightLockTTLSeconds", defaults.InFlightLockTTLSeconds)
	v.SetDefault("redemption.historyDefaultPageSize", defaults.HistoryDefaultPageSize)
	v.SetDefault("redemption.historyMaxPageSize", defaults.HistoryMaxPageSize)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeRedemptionConfig(v)
	if err != nil {
		return nil, err
	}
	if err := validateRedemptionConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticRedemptionConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeRedemptionConfig(v)
		if err != nil {
			log.Warn("redemption config reload failed", zap.Error(err))
			return
		}
		if err := validateRedemptionConfig(updated); err != nil {
			log.Warn("invalid redemption config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("redemption config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// decodeRedemptionConfig goes through AllSettings so file values are merged over defaults key by key.
func decodeRedemptionConfig(v *viper.Viper) (RedemptionConfig, error) {
	var wrapper struct {
		Redemption RedemptionConfig `mapstructure:"redemption"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return RedemptionConfig{}, err
	}
	return wrapper.Redemption, nil
}

func (h *RedemptionConfigHolder) Get() RedemptionConfig {
	return h.current.Load().(RedemptionConfig)
}

func validateRedemptionConfig(cfg RedemptionConfig) error {
	if cfg.CouponDefaultValidDays <= 0 {
		return errors.New("redemption.couponDefaultValidDays must be positive")
	}
	if strings.TrimSpace(cfg.VirtualDefaultVendor) == "" {
		return errors.New("redemption.virtualDefaultVendor cannot be empty")
	}
	if cfg.ReplayMaxAttempts <= 0 {
		return errors.New("redemption.replayMaxAttempts must be positive")
	}
	if cfg.ReplayBackoffMs < 0 {
		return errors.New("redemption.replayBackoffMs cannot be negative")
	}
	if cfg.InFlightLockTTLSeconds <= 0 {
		return errors.New("redemption.inFlightLockTTLSeconds must be positive")
	}
	if cfg.HistoryDefaultPageSize <= 0 || cfg.HistoryMaxPageSize < cfg.HistoryDefaultPageSize {
		return errors.New("redemption history page sizes are inconsistent")
	}
	return nil
}
