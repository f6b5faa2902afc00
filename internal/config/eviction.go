package config

// EvictionMode selects how victims are found.
type EvictionMode string

const (
	// EvictionModeLRU walks per shard access ordered lists.
	EvictionModeLRU EvictionMode = "lru"
	// EvictionModeFIFO walks per shard insertion ordered lists; reads do not reorder.
	EvictionModeFIFO EvictionMode = "fifo"
	// EvictionModeSampling evicts the least recently touched of a random sample.
	EvictionModeSampling EvictionMode = "sampling"
)

type EvictionCfg struct {
	Mode EvictionMode `yaml:"mode"`

	// MaxEntries is the bound enforced inline on writes and by the background evictor.
	MaxEntries int64 `yaml:"max_entries"`

	// CallsPerSec is how often the background evictor checks the bound.
	CallsPerSec int64 `yaml:"calls_per_sec"`

	// BackoffSpinsPerCall caps the shards visited by a single eviction pass.
	BackoffSpinsPerCall int64 `yaml:"backoff_spins_per_call"`

	IsListing bool `yaml:"-"`
}

func (cfg *EvictionCfg) Enabled() bool {
	return cfg != nil && cfg.MaxEntries > 0
}
