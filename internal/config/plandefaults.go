package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlanGuardrails bounds what operators can configure on a billing plan,
// independent of the per-plan validation rules.
type PlanGuardrails struct {
	MaxTiers             int      `mapstructure:"maxTiers"`
	DefaultUnitOfMeasure string   `mapstructure:"defaultUnitOfMeasure"`
	UnitsOfMeasure       []string `mapstructure:"unitsOfMeasure"`
}

func DefaultPlanGuardrails() PlanGuardrails {
	return PlanGuardrails{
		MaxTiers:             20,
		DefaultUnitOfMeasure: "unit",
		UnitsOfMeasure:       []string{"unit", "GB", "seat", "api_call", "hour"},
	}
}

type PlanGuardrailHolder struct {
	current atomic.Value // holds PlanGuardrails
}

// NewPlanGuardrailHolder reads plans.yml and keeps it hot-reloaded so
// guardrail changes land without a restart.
func NewPlanGuardrailHolder() (*PlanGuardrailHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/planforge/config") // Volume-mounted config
	v.AddConfigPath("/etc/planforge")            // System config
	v.AddConfigPath(".")                         // Current directory (dev mode)

	v.SetEnvPrefix("PLANFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPlanGuardrails()
		v.SetDefault("plans.maxTiers", defaults.MaxTiers)
		v.SetDefault("plans.defaultUnitOfMeasure", defaults.DefaultUnitOfMeasure)
		v.SetDefault("plans.unitsOfMeasure", defaults.UnitsOfMeasure)
	}

	var cfg PlanGuardrails
	if err := v.UnmarshalKey("plans", &cfg); err != nil {
		return nil, err
	}
	if err := validatePlanGuardrails(cfg); err != nil {
		return nil, err
	}

	holder := &PlanGuardrailHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanGuardrails
		if err := v.UnmarshalKey("plans", &updated); err != nil {
			log.Printf("[plan-config] reload failed: %v", err)
			return
		}
		if err := validatePlanGuardrails(updated); err != nil {
			log.Printf("[plan-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[plan-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// StaticPlanGuardrails wraps a fixed guardrail set, bypassing the file
// watcher. Used by tests.
func StaticPlanGuardrails(cfg PlanGuardrails) *PlanGuardrailHolder {
	holder := &PlanGuardrailHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PlanGuardrailHolder) Get() PlanGuardrails {
	return h.current.Load().(PlanGuardrails)
}

func validatePlanGuardrails(cfg PlanGuardrails) error {
	if cfg.MaxTiers < 1 {
		return errors.New("plans.maxTiers must be at least 1")
	}
	if strings.TrimSpace(cfg.DefaultUnitOfMeasure) == "" {
		return errors.New("plans.defaultUnitOfMeasure cannot be empty")
	}
	return nil
}
