package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"feedspider/app/database"
	"feedspider/app/enrichment"
	"feedspider/app/feed"
)

const (
	enrichBatchSize   = 5
	enrichMaxKeywords = 10
	enrichSentences   = 3
)

// EnrichSourceTask post-processes persisted entries: full-text extraction from
// the entry page, keyword ranking and an extractive summary. Enrichment is
// best effort; a failure on one entry never blocks the others.
type EnrichSourceTask struct {
	Task
	sourceID  string
	entryRepo database.EntryRepository
	fetcher   *feed.Fetcher
	extractor *enrichment.Extractor
	done      func()
}

func NewEnrichSourceTask(sourceID, sourceName string, entryRepo database.EntryRepository,
	fetcher *feed.Fetcher, extractor *enrichment.Extractor, done func()) *EnrichSourceTask {
	return &EnrichSourceTask{
		Task:      NewTask(TaskTypeEnrichSource, sourceName, 1),
		sourceID:  sourceID,
		entryRepo: entryRepo,
		fetcher:   fetcher,
		extractor: extractor,
		done:      done,
	}
}

// Release gives the source's enrichment in-flight slot back to the scheduler.
func (t *EnrichSourceTask) Release() {
	if t.done != nil {
		t.done()
	}
}

func (t *EnrichSourceTask) Execute(ctx context.Context) error {
	entries, err := t.entryRepo.GetEntriesForEnrichment(t.sourceID, enrichBatchSize)
	if err != nil {
		return fmt.Errorf("failed to load entries for enrichment: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	enriched := 0
	for i := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if t.enrichEntry(ctx, &entries[i]) {
			enriched++
		}
	}

	slog.Info("Task completed",
		"type", "EnrichSource",
		"source", t.SourceName,
		"duration", t.GetDuration(),
		"enriched", enriched,
		"pending", len(entries))

	return nil
}

func (t *EnrichSourceTask) enrichEntry(ctx context.Context, entry *database.Entry) bool {
	text := t.fetchFullText(ctx, entry.Link)
	if text == "" {
		// Fall back to the feed-provided body so the entry still gets
		// keywords and a summary, and is not picked up again next batch.
		switch {
		case entry.Content != "":
			text = entry.Content
		case entry.Summary != "":
			text = entry.Summary
		default:
			text = entry.Title
		}
	}

	keywords := enrichment.Keywords(text, enrichMaxKeywords)
	summary := enrichment.Summarize(text, enrichSentences)

	if err := t.entryRepo.UpdateEnrichment(entry.ID, text, keywords, summary); err != nil {
		slog.Warn("Failed to store enrichment",
			"source", t.SourceName, "entry", entry.ID, "error", err)
		return false
	}
	return true
}

func (t *EnrichSourceTask) fetchFullText(ctx context.Context, link string) string {
	if link == "" {
		return ""
	}

	result, err := t.fetcher.Fetch(ctx, link, "", "")
	if err != nil {
		slog.Debug("Failed to fetch page for enrichment",
			"source", t.SourceName, "link", link, "error", err)
		return ""
	}

	text, err := t.extractor.Run(result.Body)
	if err != nil {
		slog.Debug("Failed to extract page content",
			"source", t.SourceName, "link", link, "error", err)
		return ""
	}
	return text
}
