package config

// AdmissionControlCfg dimensions the TinyLFU sketch and doorkeeper.
type AdmissionControlCfg struct {
	// Capacity is the number of entries tracked; defaults to the eviction bound.
	Capacity int `yaml:"capacity"`

	// Shards is rounded up to a power of two.
	Shards int `yaml:"shards"`

	// SampleMultiplier times Capacity increments trigger counter aging.
	SampleMultiplier int `yaml:"sample_multiplier"`

	// DoorBitsPerCounter sizes the doorkeeper bitset.
	DoorBitsPerCounter int `yaml:"door_bits_per_counter"`
}

func (cfg *AdmissionControlCfg) Enabled() bool {
	return cfg != nil
}

func (cfg *AdmissionControlCfg) adjust(ev *EvictionCfg) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1024
		if ev.Enabled() {
			cfg.Capacity = int(ev.MaxEntries)
		}
	}
	if cfg.Shards <= 0 {
		cfg.Shards = 4
	}
	cfg.Shards = nextPow2(cfg.Shards)
	if cfg.SampleMultiplier <= 0 {
		cfg.SampleMultiplier = 10
	}
	if cfg.DoorBitsPerCounter <= 0 {
		cfg.DoorBitsPerCounter = 8
	}
}
