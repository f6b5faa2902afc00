package config

import "time"

const (
	defaultShards              = 64
	defaultEvictionCallsPerSec = 10
	defaultBackoffSpins        = 2048
	defaultReaperRate          = 1000
)

type DBCfg struct {
	// Shards is rounded up to a power of two. The cache concurrency level is a good start.
	Shards int `yaml:"shards"`

	IsTelemetryLogsEnabled bool          `yaml:"stat_logs_enabled"`
	TelemetryLogsInterval  time.Duration `yaml:"stat_logs_interval"`
}
