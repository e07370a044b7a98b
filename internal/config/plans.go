package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlanAllotment describes the monthly included-credit grant for a plan.
type PlanAllotment struct {
	MonthlyCredits int64 `mapstructure:"monthlyCredits"`
	ValidityDays   int   `mapstructure:"validityDays"`
}

// PlansConfig maps plan codes to their allotments.
type PlansConfig struct {
	Plans map[string]PlanAllotment `mapstructure:"plans"`
}

func DefaultPlansConfig() PlansConfig {
	return PlansConfig{
		Plans: map[string]PlanAllotment{
			"free":    {MonthlyCredits: 0, ValidityDays: 0},
			"starter": {MonthlyCredits: 100, ValidityDays: 31},
			"growth":  {MonthlyCredits: 500, ValidityDays: 31},
			"agency":  {MonthlyCredits: 2000, ValidityDays: 31},
		},
	}
}

// PlansHolder serves the current plan allotments and hot-reloads them
// when the config file changes on disk.
type PlansHolder struct {
	current atomic.Value // holds PlansConfig
}

func NewPlansHolder() (*PlansHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/creditledger/config")
	v.AddConfigPath("/etc/creditledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CREDITLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPlansConfig()
		v.SetDefault("plans", defaults.Plans)
	}

	var cfg PlansConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := validatePlansConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PlansHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlansConfig
		if err := v.Unmarshal(&updated); err != nil {
			log.Printf("[plans-config] reload failed: %v", err)
			return
		}
		if err := validatePlansConfig(updated); err != nil {
			log.Printf("[plans-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[plans-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PlansHolder) Get() PlansConfig {
	return h.current.Load().(PlansConfig)
}

// Allotment returns the allotment for a plan code, falling back to zero
// when the plan is unknown.
func (h *PlansHolder) Allotment(plan string) PlanAllotment {
	cfg := h.Get()
	if allotment, ok := cfg.Plans[strings.ToLower(strings.TrimSpace(plan))]; ok {
		return allotment
	}
	return PlanAllotment{}
}

func validatePlansConfig(cfg PlansConfig) error {
	if len(cfg.Plans) == 0 {
		return errors.New("plans cannot be empty")
	}
	for code, allotment := range cfg.Plans {
		if allotment.MonthlyCredits < 0 {
			return errors.New("plan " + code + " has negative monthlyCredits")
		}
		if allotment.MonthlyCredits > 0 && allotment.ValidityDays <= 0 {
			return errors.New("plan " + code + " grants credits without validityDays")
		}
	}
	return nil
}
