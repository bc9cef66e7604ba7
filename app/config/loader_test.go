package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSourceFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write source file: %v", err)
	}
}

func TestLoadAll_MissingDirectory(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "does-not-exist"))

	configs, err := loader.LoadAll()
	if err != nil {
		t.Fatalf("Expected no error for missing directory, got: %v", err)
	}
	if len(configs) != 0 {
		t.Errorf("Expected empty config map, got %d entries", len(configs))
	}
}

func TestLoadAll_ValidSource(t *testing.T) {
	dir := t.TempDir()
	writeSourceFile(t, dir, "example.yml", `
url: https://example.com/feed.xml
settings:
  enabled: true
  interval_minutes: 30
  max_entries: 50
  recent_only: true
rules:
  - kind: keyword
    mode: exclude
    pattern: sponsored
    priority: 10
  - kind: language
    mode: include
    pattern: en
    priority: 5
`)

	configs, err := NewLoader(dir).LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	config, ok := configs["example"]
	if !ok {
		t.Fatalf("Expected source named 'example', got keys: %v", configs)
	}
	if config.URL != "https://example.com/feed.xml" {
		t.Errorf("Unexpected URL: %s", config.URL)
	}
	if !config.Settings.Enabled || !config.Settings.RecentOnly {
		t.Errorf("Settings not parsed: %+v", config.Settings)
	}
	if config.Settings.IntervalMinutes != 30 {
		t.Errorf("Expected interval 30, got %d", config.Settings.IntervalMinutes)
	}
	if len(config.Rules) != 2 {
		t.Fatalf("Expected 2 rules, got %d", len(config.Rules))
	}
	if !config.Rules[0].IsEnabled() {
		t.Errorf("Rule without enabled field should default to enabled")
	}
}

func TestLoadAll_DefaultInterval(t *testing.T) {
	dir := t.TempDir()
	writeSourceFile(t, dir, "minimal.yml", "url: https://example.com/rss\n")

	configs, err := NewLoader(dir).LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if configs["minimal"].Settings.IntervalMinutes != 60 {
		t.Errorf("Expected default interval 60, got %d", configs["minimal"].Settings.IntervalMinutes)
	}
}

func TestLoadAll_MissingURL(t *testing.T) {
	dir := t.TempDir()
	writeSourceFile(t, dir, "broken.yml", "settings:\n  enabled: true\n")

	if _, err := NewLoader(dir).LoadAll(); err == nil {
		t.Error("Expected error for source without URL")
	}
}

func TestLoadAll_InvalidRuleKind(t *testing.T) {
	dir := t.TempDir()
	writeSourceFile(t, dir, "badrule.yml", `
url: https://example.com/rss
rules:
  - kind: sentiment
    mode: exclude
    pattern: sad
`)

	if _, err := NewLoader(dir).LoadAll(); err == nil {
		t.Error("Expected error for unknown rule kind")
	}
}

func TestLoadAll_InvalidRegexIsTolerated(t *testing.T) {
	dir := t.TempDir()
	writeSourceFile(t, dir, "badregex.yml", `
url: https://example.com/rss
rules:
  - kind: regex
    mode: exclude
    pattern: "["
`)

	// Malformed patterns are skipped at evaluation time, not rejected at load.
	if _, err := NewLoader(dir).LoadAll(); err != nil {
		t.Errorf("Invalid regex should not fail loading, got: %v", err)
	}
}

func TestLoadAll_InvalidDedupStrategy(t *testing.T) {
	dir := t.TempDir()
	writeSourceFile(t, dir, "badstrategy.yml", `
url: https://example.com/rss
settings:
  dedup_strategy: aggressive
`)

	if _, err := NewLoader(dir).LoadAll(); err == nil {
		t.Error("Expected error for unknown dedup strategy")
	}
}
