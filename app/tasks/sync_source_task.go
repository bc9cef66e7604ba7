package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"feedspider/app/config"
	"feedspider/app/database"
)

// SyncSourceTask reconciles one YAML source definition into the database:
// insert new sources, update changed settings, replace the rule set.
type SyncSourceTask struct {
	Task
	sourceConfig *config.SourceConfig
	sourceRepo   database.SourceRepository
	ruleRepo     database.RuleRepository
}

func NewSyncSourceTask(sourceConfig *config.SourceConfig,
	sourceRepo database.SourceRepository, ruleRepo database.RuleRepository) *SyncSourceTask {
	return &SyncSourceTask{
		Task:         NewTask(TaskTypeSyncSource, sourceConfig.Name, 3),
		sourceConfig: sourceConfig,
		sourceRepo:   sourceRepo,
		ruleRepo:     ruleRepo,
	}
}

func (t *SyncSourceTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	settings := t.sourceConfig.Settings
	sourceID, err := t.sourceRepo.UpsertSource(t.sourceConfig.Name, t.sourceConfig.URL,
		settings.Enabled, settings.IntervalMinutes, settings.MaxEntries,
		settings.RecentOnly, settings.DedupStrategy)
	if err != nil {
		return fmt.Errorf("failed to upsert source: %w", err)
	}

	rules := make([]database.FilterRule, 0, len(t.sourceConfig.Rules))
	for _, rule := range t.sourceConfig.Rules {
		rules = append(rules, database.FilterRule{
			Kind:     rule.Kind,
			Mode:     rule.Mode,
			Pattern:  rule.Pattern,
			Priority: rule.Priority,
			Enabled:  rule.IsEnabled(),
		})
	}

	if err := t.ruleRepo.ReplaceRules(sourceID, rules); err != nil {
		return fmt.Errorf("failed to replace rules: %w", err)
	}

	slog.Debug("Task completed",
		"type", "SyncSource",
		"source", t.SourceName,
		"duration", t.GetDuration(),
		"rules", len(rules))

	return nil
}
