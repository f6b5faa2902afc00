package config

type PersistenceCfg struct {
	// Dir holds the store file of the cache.
	Dir string `yaml:"dir"`

	// Name is the base name of the store file.
	Name string `yaml:"name"`

	// Gzip compresses the store file.
	Gzip bool `yaml:"gzip"`

	// Crc32Control checksums every record and skips corrupted ones on load.
	Crc32Control bool `yaml:"crc32"`

	Preload        bool `yaml:"preload"`
	Passivation    bool `yaml:"passivation"`
	PurgeOnStartup bool `yaml:"purge_on_startup"`
	ReadOnly       bool `yaml:"read_only"`

	// MaxEntries bounds the entries kept in the file; negative means unbounded.
	MaxEntries int64 `yaml:"max_entries"`
}

func (cfg *PersistenceCfg) Enabled() bool {
	return cfg != nil
}
