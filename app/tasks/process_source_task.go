package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feedspider/app/cfg"
	"feedspider/app/database"
	"feedspider/app/feed"
)

// CycleResult is the outcome of one fetch cycle for one source.
type CycleResult struct {
	Fetched     int  `json:"fetched"`
	New         int  `json:"new"`
	Duplicates  int  `json:"duplicates"`
	Filtered    int  `json:"filteredOut"`
	Errors      int  `json:"errors"`
	NotModified bool `json:"notModified"`
}

// ProcessSourceTask runs the full pipeline for one source: fetch, parse,
// deduplicate, filter, persist, then commit the cycle state. Any error aborts
// the cycle before the state update; the periodic due scan retries on the next
// pass, so the task itself never retries.
type ProcessSourceTask struct {
	Task
	Result CycleResult

	sourceID   string
	force      bool
	sourceRepo database.SourceRepository
	entryRepo  database.EntryRepository
	ruleRepo   database.RuleRepository
	fetcher    *feed.Fetcher
	parser     *feed.Parser
	filterer   *feed.Filterer
	done       func()
}

func NewProcessSourceTask(sourceID, sourceName string, force bool,
	sourceRepo database.SourceRepository, entryRepo database.EntryRepository,
	ruleRepo database.RuleRepository, fetcher *feed.Fetcher, parser *feed.Parser,
	filterer *feed.Filterer, done func()) *ProcessSourceTask {
	return &ProcessSourceTask{
		Task:       NewTask(TaskTypeProcessSource, sourceName, 0),
		sourceID:   sourceID,
		force:      force,
		sourceRepo: sourceRepo,
		entryRepo:  entryRepo,
		ruleRepo:   ruleRepo,
		fetcher:    fetcher,
		parser:     parser,
		filterer:   filterer,
		done:       done,
	}
}

// Release gives the source's in-flight slot back to the scheduler.
func (t *ProcessSourceTask) Release() {
	if t.done != nil {
		t.done()
	}
}

func (t *ProcessSourceTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c := cfg.Get()

	source, err := t.sourceRepo.GetSource(t.sourceID)
	if err != nil {
		return fmt.Errorf("failed to load source: %w", err)
	}
	if source == nil {
		return ErrSourceNotFound
	}
	if !source.Enabled {
		slog.Debug("Source disabled, skipping", "source", source.Name)
		return nil
	}

	etag, lastModified := source.ETag, source.LastModified
	if t.force {
		etag, lastModified = "", ""
	}

	result, err := t.fetcher.Fetch(ctx, source.URL, etag, lastModified)
	if errors.Is(err, feed.ErrNotModified) {
		t.Result.NotModified = true
		err = t.sourceRepo.UpdateSourceState(source.ID, time.Now().UTC(), result.ETag, result.LastModified, 0)
		if err != nil {
			return fmt.Errorf("failed to update source state: %w", err)
		}
		slog.Info("Task completed",
			"type", "ProcessSource",
			"source", source.Name,
			"duration", t.GetDuration(),
			"not_modified", true)
		return nil
	}
	if err != nil {
		t.recordFailure(source.ID)
		return fmt.Errorf("failed to fetch source: %w", err)
	}

	metadata, candidates, err := t.parser.Run(result.Body, feed.ParseOptions{
		RecentOnly:   source.RecentOnly,
		RecentWindow: c.RecentWindow(),
		MaxEntries:   source.MaxEntries,
	})
	if err != nil {
		// A malformed payload will not get better within this cycle; the
		// next due scan fetches it fresh.
		t.recordFailure(source.ID)
		return fmt.Errorf("failed to parse source payload: %w", err)
	}
	t.Result.Fetched = len(candidates)

	strategy := c.DedupStrategy
	if source.DedupStrategy != "" {
		strategy = cfg.DedupStrategy(source.DedupStrategy)
	}
	dedup := feed.NewDeduplicator(strategy, c.SimilarityThreshold)

	known, err := t.entryRepo.KnownSignatures(source.ID)
	if err != nil {
		t.recordFailure(source.ID)
		return fmt.Errorf("failed to load known signatures: %w", err)
	}

	rules, err := t.ruleRepo.ListRules(source.ID, true)
	if err != nil {
		t.recordFailure(source.ID)
		return fmt.Errorf("failed to load filter rules: %w", err)
	}
	eval := t.filterer.Prepare(rules)

	var entries []database.Entry
	var commit []database.Signature

	for i := range candidates {
		candidate := &candidates[i]
		sigs := dedup.Signatures(candidate)

		if dup, reason := dedup.IsDuplicate(sigs, known); dup {
			t.Result.Duplicates++
			slog.Debug("Duplicate entry skipped",
				"source", source.Name, "reason", reason, "link", candidate.Link)
			continue
		}

		if accepted, reason := eval.Accepts(candidate); !accepted {
			t.Result.Filtered++
			slog.Debug("Entry rejected by filter",
				"source", source.Name, "rule", reason, "link", candidate.Link)
			continue
		}

		entries = append(entries, database.Entry{
			SourceID:    source.ID,
			GUID:        candidate.GUID,
			Link:        candidate.Link,
			Title:       candidate.Title,
			Summary:     candidate.Summary,
			Content:     candidate.Content,
			Language:    candidate.Language,
			Tags:        candidate.Tags,
			PublishedAt: candidate.PublishedAt,
		})
		commit = append(commit, dedup.CommitList(sigs)...)

		// Later candidates in the same payload dedup against this one too.
		observe(known, sigs, strategy)
	}

	inserted, err := t.entryRepo.AppendEntries(source.ID, entries)
	if err != nil {
		t.recordFailure(source.ID)
		return fmt.Errorf("failed to persist entries: %w", err)
	}
	t.Result.New = inserted

	if err := t.entryRepo.AddSignatures(source.ID, commit); err != nil {
		t.recordFailure(source.ID)
		return fmt.Errorf("failed to commit signatures: %w", err)
	}

	err = t.sourceRepo.UpdateSourceState(source.ID, time.Now().UTC(), result.ETag, result.LastModified, 0)
	if err != nil {
		t.recordFailure(source.ID)
		return fmt.Errorf("failed to update source state: %w", err)
	}

	slog.Info("Task completed",
		"type", "ProcessSource",
		"source", source.Name,
		"title", metadata.Title,
		"duration", t.GetDuration(),
		"fetched", t.Result.Fetched,
		"new", t.Result.New,
		"duplicates", t.Result.Duplicates,
		"filtered", t.Result.Filtered)

	return nil
}

func (t *ProcessSourceTask) recordFailure(sourceID string) {
	t.Result.Errors = 1
	if err := t.sourceRepo.IncrementErrorCount(sourceID); err != nil {
		slog.Warn("Failed to record source error", "source", t.SourceName, "error", err)
	}
}

// observe adds freshly derived signatures to the in-memory known set so that
// duplicates within a single payload are caught before anything is persisted.
func observe(known *database.SignatureSet, sigs feed.EntrySignatures, strategy cfg.DedupStrategy) {
	if sigs.CanonicalLink != "" {
		known.Links[sigs.CanonicalLink] = struct{}{}
	}
	if sigs.NormalizedTitle != "" {
		known.Titles[sigs.NormalizedTitle] = struct{}{}
	}
	if sigs.ContentHash != "" {
		known.Hashes[sigs.ContentHash] = struct{}{}
	}
	if strategy == cfg.DedupRelaxed && sigs.NormalizedBody != "" {
		known.Bodies = append(known.Bodies, sigs.NormalizedBody)
	}
}
