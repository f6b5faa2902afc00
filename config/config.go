// Package config is the server configuration: filesystem paths, management listener, logging,
// platform services and data container tuning. It is loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	engine "github.com/infinispan/infinispan-subsystem/internal/config"
)

type Config struct {
	Server     Server            `yaml:"server"`
	Management *Management       `yaml:"management"`
	Log        Log               `yaml:"log"`
	Subsystem  Subsystem         `yaml:"subsystem"`
	Platform   Platform          `yaml:"platform"`
	Engine     *Engine           `yaml:"engine"`
	Properties map[string]string `yaml:"properties"`
}

// Server mirrors the standard server path names (jboss.server.data.dir and friends).
type Server struct {
	NodeName  string `yaml:"node_name"`
	BaseDir   string `yaml:"base_dir"`
	DataDir   string `yaml:"data_dir"`
	TempDir   string `yaml:"temp_dir"`
	ConfigDir string `yaml:"config_dir"`
}

type Management struct {
	Listen          string        `yaml:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func (cfg *Management) Enabled() bool { return cfg != nil && cfg.Listen != "" }

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

type Subsystem struct {
	// XML is the subsystem document read at boot.
	XML string `yaml:"xml"`
}

// Platform declares the services the subsystem depends on but does not own.
type Platform struct {
	TransactionManager bool              `yaml:"transaction_manager"`
	DataSources        map[string]string `yaml:"datasources"`     // jndi name -> connection url
	SocketBindings     map[string]string `yaml:"socket_bindings"` // outbound binding -> host:port
	Modules            []string          `yaml:"modules"`
}

// Engine tunes the data containers of every cache.
type Engine struct {
	// Shards of every data container; zero keeps the engine default.
	Shards              int                         `yaml:"shards"`
	EvictionCallsPerSec int64                       `yaml:"eviction_calls_per_sec"`
	EvictionBackoff     int64                       `yaml:"eviction_backoff_spins"`
	ReaperRate          int                         `yaml:"reaper_rate"`
	Admission           *engine.AdmissionControlCfg `yaml:"admission_control"`
	TelemetryLogs       bool                        `yaml:"stat_logs_enabled"`
	TelemetryInterval   time.Duration               `yaml:"stat_logs_interval"`
	StoreGzip           bool                        `yaml:"store_gzip"`
}

func (cfg *Engine) Enabled() bool { return cfg != nil }

func Default() *Config {
	cfg := &Config{}
	cfg.AdjustConfig()
	return cfg
}

// AdjustConfig fills defaults and derives dependent paths.
func (cfg *Config) AdjustConfig() {
	if cfg.Server.NodeName == "" {
		host, _ := os.Hostname()
		cfg.Server.NodeName = host
	}
	if cfg.Server.BaseDir == "" {
		cfg.Server.BaseDir = "."
	}
	if cfg.Server.DataDir == "" {
		cfg.Server.DataDir = cfg.Server.BaseDir + "/data"
	}
	if cfg.Server.TempDir == "" {
		cfg.Server.TempDir = cfg.Server.BaseDir + "/tmp"
	}
	if cfg.Server.ConfigDir == "" {
		cfg.Server.ConfigDir = cfg.Server.BaseDir + "/configuration"
	}
	if cfg.Management.Enabled() && cfg.Management.ShutdownTimeout <= 0 {
		cfg.Management.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if !cfg.Engine.Enabled() {
		cfg.Engine = &Engine{}
	}
	if cfg.Engine.TelemetryInterval <= 0 {
		cfg.Engine.TelemetryInterval = 30 * time.Second
	}
	if cfg.Properties == nil {
		cfg.Properties = map[string]string{}
	}
}

// Paths returns the named server paths the path manager resolves relative-to attributes against.
func (cfg *Config) Paths() map[string]string {
	return map[string]string{
		"jboss.home.dir":          cfg.Server.BaseDir,
		"jboss.server.base.dir":   cfg.Server.BaseDir,
		"jboss.server.data.dir":   cfg.Server.DataDir,
		"jboss.server.temp.dir":   cfg.Server.TempDir,
		"jboss.server.config.dir": cfg.Server.ConfigDir,
	}
}

// ResolverProperties merges paths, the node name and user properties for expression resolution.
func (cfg *Config) ResolverProperties() map[string]string {
	out := cfg.Paths()
	out["jboss.node.name"] = cfg.Server.NodeName
	for k, v := range cfg.Properties {
		out[k] = v
	}
	return out
}

func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	var cfg *Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.AdjustConfig()

	return cfg, nil
}
