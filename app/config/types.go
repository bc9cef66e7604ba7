package config

// SourceConfig represents a complete source definition loaded from a YAML file.
type SourceConfig struct {
	Name     string         // Derived from filename (without .yml extension)
	URL      string         `yaml:"url"`
	Settings SourceSettings `yaml:"settings"`
	Rules    []ConfigRule   `yaml:"rules"`
}

type SourceSettings struct {
	Enabled         bool   `yaml:"enabled"`
	IntervalMinutes int    `yaml:"interval_minutes"`
	MaxEntries      int    `yaml:"max_entries"` // 0 = unlimited
	RecentOnly      bool   `yaml:"recent_only"`
	DedupStrategy   string `yaml:"dedup_strategy"` // empty = process default
}

// ConfigRule is one filter rule as declared in a source file. Declaration
// order is preserved so that equal-priority rules evaluate deterministically.
type ConfigRule struct {
	Kind     string `yaml:"kind"` // keyword | regex | tag | language
	Mode     string `yaml:"mode"` // include | exclude
	Pattern  string `yaml:"pattern"`
	Priority int    `yaml:"priority"`
	Enabled  *bool  `yaml:"enabled"` // nil = enabled
}

func (r *ConfigRule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}
