package configuration

import (
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

//go:embed infinispan-defaults.yaml
var embeddedDefaults []byte

var allModes = []schema.CacheMode{
	schema.CacheModeLocal,
	schema.CacheModeReplSync, schema.CacheModeReplAsync,
	schema.CacheModeDistSync, schema.CacheModeDistAsync,
	schema.CacheModeInvalidationSync, schema.CacheModeInvalidationAsync,
}

// Defaults holds the default configuration of every cache mode.
type Defaults struct {
	byMode map[schema.CacheMode]Configuration
}

type defaultsDocument struct {
	Default yaml.Node            `yaml:"default"`
	Modes   map[string]yaml.Node `yaml:"modes"`
}

// EmbeddedDefaults parses the defaults shipped with the binary.
func EmbeddedDefaults() (*Defaults, error) {
	return parseDefaults(embeddedDefaults)
}

// LoadDefaults parses a defaults document from r.
func LoadDefaults(r io.Reader) (*Defaults, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}
	return parseDefaults(data)
}

func parseDefaults(data []byte) (*Defaults, error) {
	var doc defaultsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal defaults: %w", err)
	}
	var base Configuration
	if !doc.Default.IsZero() {
		if err := doc.Default.Decode(&base); err != nil {
			return nil, fmt.Errorf("decode default configuration: %w", err)
		}
	}
	d := &Defaults{byMode: make(map[schema.CacheMode]Configuration, len(allModes))}
	for name, node := range doc.Modes {
		mode := schema.CacheMode(name)
		if !isKnownMode(mode) {
			return nil, fmt.Errorf("unknown cache mode %q in defaults", name)
		}
		cfg := base.Clone()
		if err := node.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode defaults of %s: %w", name, err)
		}
		cfg.Clustering.CacheMode = mode
		d.byMode[mode] = cfg
	}
	for _, mode := range allModes {
		if _, ok := d.byMode[mode]; ok {
			continue
		}
		cfg := base.Clone()
		if seed, ok := d.byMode[mode.ToSync()]; ok {
			cfg = seed.Clone()
		}
		cfg.Clustering.CacheMode = mode
		d.byMode[mode] = cfg
	}
	return d, nil
}

func isKnownMode(m schema.CacheMode) bool {
	for _, k := range allModes {
		if k == m {
			return true
		}
	}
	return false
}

// Configuration returns a copy of the defaults for mode.
func (d *Defaults) Configuration(mode schema.CacheMode) Configuration {
	return d.byMode[mode].Clone()
}
