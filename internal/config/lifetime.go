package config

import "time"

type LifetimerCfg struct {
	// WakeUpInterval is the pause between two reaper passes.
	WakeUpInterval time.Duration `yaml:"wake_up_interval"`

	// Rate caps expired entries removed per second by the reaper workers.
	Rate int `yaml:"rate"`
}

func (cfg *LifetimerCfg) Enabled() bool {
	return cfg != nil && cfg.WakeUpInterval > 0
}

// EffectiveRate falls back to the default removal rate.
func (cfg *LifetimerCfg) EffectiveRate() int {
	if cfg.Rate <= 0 {
		return defaultReaperRate
	}
	return cfg.Rate
}
