package config

// Cache groups the tuning of one in-memory data container. Optional components are disabled by
// leaving them nil.
type Cache struct {
	DB DBCfg `yaml:"db"`

	// AdmissionControl enables TinyLFU admission in front of the eviction policy (LIRS caches).
	AdmissionControl *AdmissionControlCfg `yaml:"admission_control"`

	// Lifetime configures the expiration reaper. Nil means expired entries are only dropped on read.
	Lifetime *LifetimerCfg `yaml:"lifetime"`

	// Eviction bounds the number of entries. Nil means unbounded.
	Eviction *EvictionCfg `yaml:"eviction"`

	// Persistence backs the container with a file store.
	Persistence *PersistenceCfg `yaml:"persistence"`
}

// AdjustConfig derives the virtual fields and fills in zero tunables.
func (cfg *Cache) AdjustConfig() {
	if cfg.DB.Shards <= 0 {
		cfg.DB.Shards = defaultShards
	}
	cfg.DB.Shards = nextPow2(cfg.DB.Shards)

	if cfg.Eviction.Enabled() {
		cfg.Eviction.IsListing = cfg.Eviction.Mode != EvictionModeSampling
		if cfg.Eviction.CallsPerSec <= 0 {
			cfg.Eviction.CallsPerSec = defaultEvictionCallsPerSec
		}
		if cfg.Eviction.BackoffSpinsPerCall <= 0 {
			cfg.Eviction.BackoffSpinsPerCall = defaultBackoffSpins
		}
	}

	if cfg.AdmissionControl.Enabled() {
		cfg.AdmissionControl.adjust(cfg.Eviction)
	}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
