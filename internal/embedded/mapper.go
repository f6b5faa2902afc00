package embedded

import (
	appconfig "github.com/infinispan/infinispan-subsystem/config"
	enginecfg "github.com/infinispan/infinispan-subsystem/internal/config"
	"github.com/infinispan/infinispan-subsystem/internal/configuration"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

// EngineConfig maps a cache configuration onto the tuning of its data container.
//
// Eviction strategies map to victim selection: LRU and LIRS walk access ordered lists (LIRS adds
// TinyLFU admission), FIFO walks insertion ordered lists and UNORDERED samples. Only the first file
// store backs the container; other store types are configuration only.
func EngineConfig(name string, cfg configuration.Configuration, tuning *appconfig.Engine) *enginecfg.Cache {
	if tuning == nil {
		tuning = &appconfig.Engine{}
	}
	out := &enginecfg.Cache{
		DB: enginecfg.DBCfg{
			Shards:                 tuning.Shards,
			IsTelemetryLogsEnabled: tuning.TelemetryLogs && cfg.Statistics,
			TelemetryLogsInterval:  tuning.TelemetryInterval,
		},
	}

	if ev := cfg.Eviction; ev.Strategy.IsEnabled() && ev.MaxEntries > 0 {
		out.Eviction = &enginecfg.EvictionCfg{
			Mode:                evictionMode(ev.Strategy),
			MaxEntries:          ev.MaxEntries,
			CallsPerSec:         tuning.EvictionCallsPerSec,
			BackoffSpinsPerCall: tuning.EvictionBackoff,
		}
		if ev.Strategy == schema.EvictionLIRS {
			ac := enginecfg.AdmissionControlCfg{}
			if tuning.Admission != nil {
				ac = *tuning.Admission
			}
			out.AdmissionControl = &ac
		}
	}

	if exp := cfg.Expiration; exp.ReaperEnabled && exp.WakeUpInterval > 0 {
		out.Lifetime = &enginecfg.LifetimerCfg{WakeUpInterval: exp.WakeUpInterval, Rate: tuning.ReaperRate}
	}

	if s, ok := FileStoreOf(cfg); ok {
		out.Persistence = &enginecfg.PersistenceCfg{
			Dir:            s.File.Location,
			Name:           name,
			Gzip:           tuning.StoreGzip,
			Crc32Control:   true,
			Preload:        s.Preload,
			Passivation:    cfg.Persistence.Passivation,
			PurgeOnStartup: s.PurgeOnStartup,
			ReadOnly:       s.IgnoreModifications,
			MaxEntries:     s.File.MaxEntries,
		}
	}

	out.AdjustConfig()
	return out
}

func evictionMode(s schema.EvictionStrategy) enginecfg.EvictionMode {
	switch s {
	case schema.EvictionFIFO:
		return enginecfg.EvictionModeFIFO
	case schema.EvictionUnordered:
		return enginecfg.EvictionModeSampling
	default:
		return enginecfg.EvictionModeLRU
	}
}

// FileStoreOf returns the first file store with a resolved location.
func FileStoreOf(cfg configuration.Configuration) (configuration.Store, bool) {
	for _, s := range cfg.Persistence.Stores {
		if s.Kind == configuration.KindFile && s.File != nil && s.File.Location != "" {
			return s, true
		}
	}
	return configuration.Store{}, false
}
