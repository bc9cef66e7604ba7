package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and validation of source configurations
type Loader struct {
	sourcesDir string
}

// NewLoader creates a new configuration loader
func NewLoader(sourcesDir string) *Loader {
	return &Loader{sourcesDir: sourcesDir}
}

// LoadAll loads all YAML source files from the sources directory, keyed by
// source name (the filename without extension).
func (l *Loader) LoadAll() (map[string]*SourceConfig, error) {
	configs := make(map[string]*SourceConfig)

	if _, err := os.Stat(l.sourcesDir); os.IsNotExist(err) {
		return configs, nil
	}

	files, err := filepath.Glob(filepath.Join(l.sourcesDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YAML files: %w", err)
	}

	ymlFiles, err := filepath.Glob(filepath.Join(l.sourcesDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YML files: %w", err)
	}
	files = append(files, ymlFiles...)

	for _, file := range files {
		config, err := l.loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}

		if err := l.validate(config); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", file, err)
		}

		configs[config.Name] = config
	}

	return configs, nil
}

func (l *Loader) loadFile(path string) (*SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config SourceConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Base(path)
	config.Name = strings.TrimSuffix(base, filepath.Ext(base))

	l.setDefaults(&config)

	return &config, nil
}

func (l *Loader) setDefaults(config *SourceConfig) {
	if config.Settings.IntervalMinutes == 0 {
		config.Settings.IntervalMinutes = 60
	}
}

func (l *Loader) validate(config *SourceConfig) error {
	if config.URL == "" {
		return fmt.Errorf("source URL is required")
	}
	if config.Settings.IntervalMinutes < 0 {
		return fmt.Errorf("interval must be non-negative")
	}
	if config.Settings.MaxEntries < 0 {
		return fmt.Errorf("max entries must be non-negative")
	}

	switch config.Settings.DedupStrategy {
	case "", "strict", "medium", "relaxed":
	default:
		return fmt.Errorf("unknown dedup strategy: %q", config.Settings.DedupStrategy)
	}

	validKinds := map[string]bool{
		"keyword":  true,
		"regex":    true,
		"tag":      true,
		"language": true,
	}

	for i, rule := range config.Rules {
		if !validKinds[rule.Kind] {
			return fmt.Errorf("invalid rule kind at index %d: %s", i, rule.Kind)
		}
		if rule.Mode != "include" && rule.Mode != "exclude" {
			return fmt.Errorf("invalid rule mode at index %d: %s", i, rule.Mode)
		}
		if rule.Pattern == "" {
			return fmt.Errorf("rule at index %d must have a pattern", i)
		}
		// Bad regex disables the rule at evaluation time rather than
		// rejecting the whole source file.
		if rule.Kind == "regex" {
			if _, err := regexp.Compile("(?i)" + rule.Pattern); err != nil {
				slog.Warn("Invalid regex pattern in rule, rule will be skipped",
					"source", config.Name, "pattern", rule.Pattern, "error", err)
			}
		}
	}

	return nil
}
