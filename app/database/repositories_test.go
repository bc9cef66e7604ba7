package database

import (
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

func createSource(t *testing.T, repo SourceRepository, name string) string {
	t.Helper()
	id, err := repo.UpsertSource(name, "https://example.com/"+name+".xml", true, 60, 0, false, "")
	if err != nil {
		t.Fatalf("Failed to upsert source: %v", err)
	}
	return id
}

func TestSourceRepository_UpsertAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewSourceRepository(db)

	id := createSource(t, repo, "example")

	source, err := repo.GetSource("example")
	if err != nil {
		t.Fatalf("GetSource failed: %v", err)
	}
	if source == nil {
		t.Fatal("Expected source, got nil")
	}
	if source.ID != id {
		t.Errorf("Expected ID %s, got %s", id, source.ID)
	}
	if source.IntervalMinutes != 60 {
		t.Errorf("Expected interval 60, got %d", source.IntervalMinutes)
	}
	if source.LastFetchedAt != nil {
		t.Error("New source should have no lastFetched")
	}

	// Upsert again with changed settings keeps the same row
	id2, err := repo.UpsertSource("example", "https://example.com/new.xml", false, 30, 10, true, "strict")
	if err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}
	if id2 != id {
		t.Errorf("Upsert should keep the source ID, got %s vs %s", id2, id)
	}

	source, _ = repo.GetSource("example")
	if source.URL != "https://example.com/new.xml" || source.Enabled || !source.RecentOnly {
		t.Errorf("Settings not updated: %+v", source)
	}
	if source.DedupStrategy != "strict" {
		t.Errorf("Expected strict strategy, got %q", source.DedupStrategy)
	}
}

func TestSourceRepository_GetMissing(t *testing.T) {
	repo := NewSourceRepository(testDB(t))

	source, err := repo.GetSource("nope")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if source != nil {
		t.Errorf("Expected nil for missing source, got %+v", source)
	}
}

func TestSourceRepository_ListEnabledOnly(t *testing.T) {
	repo := NewSourceRepository(testDB(t))

	createSource(t, repo, "on")
	if _, err := repo.UpsertSource("off", "https://example.com/off.xml", false, 60, 0, false, ""); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	all, err := repo.ListSources(false)
	if err != nil {
		t.Fatalf("ListSources failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 sources, got %d", len(all))
	}

	enabled, err := repo.ListSources(true)
	if err != nil {
		t.Fatalf("ListSources(enabledOnly) failed: %v", err)
	}
	if len(enabled) != 1 || enabled[0].Name != "on" {
		t.Errorf("Expected only enabled source, got %+v", enabled)
	}

	count, err := repo.GetSourceCount(true)
	if err != nil || count != 1 {
		t.Errorf("Expected enabled count 1, got %d (%v)", count, err)
	}
}

func TestSourceRepository_UpdateSourceState(t *testing.T) {
	repo := NewSourceRepository(testDB(t))
	id := createSource(t, repo, "example")

	fetched := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := repo.UpdateSourceState(id, fetched, `"etag-1"`, "Sat, 30 Aug 2026 11:00:00 GMT", 2); err != nil {
		t.Fatalf("UpdateSourceState failed: %v", err)
	}

	source, _ := repo.GetSource("example")
	if source.LastFetchedAt == nil || !source.LastFetchedAt.Equal(fetched) {
		t.Errorf("Expected lastFetched %s, got %v", fetched, source.LastFetchedAt)
	}
	if source.ETag != `"etag-1"` || source.ErrorCount != 2 {
		t.Errorf("State not persisted: %+v", source)
	}
}

func TestEntryRepository_AppendIsIdempotent(t *testing.T) {
	db := testDB(t)
	sourceID := createSource(t, NewSourceRepository(db), "example")
	repo := NewEntryRepository(db)

	published := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	entries := []Entry{
		{GUID: "g1", Link: "https://example.com/a", Title: "A", PublishedAt: &published},
		{GUID: "g2", Link: "https://example.com/b", Title: "B", Tags: []string{"go"}},
	}

	inserted, err := repo.AppendEntries(sourceID, entries)
	if err != nil {
		t.Fatalf("AppendEntries failed: %v", err)
	}
	if inserted != 2 {
		t.Errorf("Expected 2 inserted, got %d", inserted)
	}

	inserted, err = repo.AppendEntries(sourceID, entries)
	if err != nil {
		t.Fatalf("Second append failed: %v", err)
	}
	if inserted != 0 {
		t.Errorf("Re-appending same entries should insert 0, got %d", inserted)
	}

	count, _ := repo.GetEntryCount(sourceID)
	if count != 2 {
		t.Errorf("Expected 2 stored entries, got %d", count)
	}

	recent, err := repo.GetRecentEntries(sourceID, 10)
	if err != nil {
		t.Fatalf("GetRecentEntries failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 recent entries, got %d", len(recent))
	}
}

func TestEntryRepository_LinklessEntriesAreDistinct(t *testing.T) {
	db := testDB(t)
	sourceID := createSource(t, NewSourceRepository(db), "example")
	repo := NewEntryRepository(db)

	// Feeds without per-item links still produce distinct GUIDs (the parser
	// falls back to a title hash); both entries must be stored.
	entries := []Entry{
		{GUID: "sha256:aaaa", Link: "", Title: "First item"},
		{GUID: "sha256:bbbb", Link: "", Title: "Second item"},
	}

	inserted, err := repo.AppendEntries(sourceID, entries)
	if err != nil {
		t.Fatalf("AppendEntries failed: %v", err)
	}
	if inserted != 2 {
		t.Errorf("Expected both link-less entries stored, got %d", inserted)
	}

	inserted, err = repo.AppendEntries(sourceID, entries)
	if err != nil {
		t.Fatalf("Second append failed: %v", err)
	}
	if inserted != 0 {
		t.Errorf("Re-appending same GUIDs should insert 0, got %d", inserted)
	}
}

func TestEntryRepository_Signatures(t *testing.T) {
	db := testDB(t)
	sourceA := createSource(t, NewSourceRepository(db), "a")
	sourceB := createSource(t, NewSourceRepository(db), "b")
	repo := NewEntryRepository(db)

	err := repo.AddSignatures(sourceA, []Signature{
		{Kind: "link", Value: "https://example.com/a"},
		{Kind: "title", Value: "hello world"},
		{Kind: "hash", Value: "abc123"},
		{Kind: "body", Value: "normalized body text"},
		{Kind: "link", Value: ""}, // empty values are dropped
	})
	if err != nil {
		t.Fatalf("AddSignatures failed: %v", err)
	}

	// Duplicate commits are absorbed
	if err := repo.AddSignatures(sourceA, []Signature{{Kind: "link", Value: "https://example.com/a"}}); err != nil {
		t.Fatalf("Duplicate AddSignatures failed: %v", err)
	}

	set, err := repo.KnownSignatures(sourceA)
	if err != nil {
		t.Fatalf("KnownSignatures failed: %v", err)
	}
	if _, ok := set.Links["https://example.com/a"]; !ok {
		t.Error("Expected link signature")
	}
	if _, ok := set.Titles["hello world"]; !ok {
		t.Error("Expected title signature")
	}
	if _, ok := set.Hashes["abc123"]; !ok {
		t.Error("Expected hash signature")
	}
	if len(set.Bodies) != 1 {
		t.Errorf("Expected 1 body signature, got %d", len(set.Bodies))
	}
	if len(set.Links) != 1 {
		t.Errorf("Empty and duplicate signatures should be dropped, got %d links", len(set.Links))
	}

	// Signatures are scoped per source
	other, err := repo.KnownSignatures(sourceB)
	if err != nil {
		t.Fatalf("KnownSignatures for other source failed: %v", err)
	}
	if len(other.Links) != 0 || len(other.Bodies) != 0 {
		t.Error("Signatures must not leak across sources")
	}
}

func TestEntryRepository_Enrichment(t *testing.T) {
	db := testDB(t)
	sourceID := createSource(t, NewSourceRepository(db), "example")
	repo := NewEntryRepository(db)

	if _, err := repo.AppendEntries(sourceID, []Entry{{GUID: "g", Link: "https://example.com/x", Title: "X"}}); err != nil {
		t.Fatalf("AppendEntries failed: %v", err)
	}

	pending, err := repo.GetEntriesForEnrichment(sourceID, 10)
	if err != nil {
		t.Fatalf("GetEntriesForEnrichment failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending entry, got %d", len(pending))
	}

	if err := repo.UpdateEnrichment(pending[0].ID, "full text", []string{"go", "feeds"}, "short summary"); err != nil {
		t.Fatalf("UpdateEnrichment failed: %v", err)
	}

	pending, _ = repo.GetEntriesForEnrichment(sourceID, 10)
	if len(pending) != 0 {
		t.Errorf("Enriched entries should not be pending, got %d", len(pending))
	}

	entries, _ := repo.GetRecentEntries(sourceID, 1)
	if len(entries) != 1 || entries[0].FullText != "full text" || len(entries[0].Keywords) != 2 {
		t.Errorf("Enrichment not persisted: %+v", entries)
	}
}

func TestRuleRepository_OrderAndReplace(t *testing.T) {
	db := testDB(t)
	sourceID := createSource(t, NewSourceRepository(db), "example")
	repo := NewRuleRepository(db)

	rules := []FilterRule{
		{Kind: "keyword", Mode: "include", Pattern: "news", Priority: 5, Enabled: true},
		{Kind: "keyword", Mode: "exclude", Pattern: "spam", Priority: 10, Enabled: true},
		{Kind: "keyword", Mode: "exclude", Pattern: "ads", Priority: 10, Enabled: true},
		{Kind: "regex", Mode: "exclude", Pattern: "draft.*", Priority: 5, Enabled: false},
	}
	if err := repo.ReplaceRules(sourceID, rules); err != nil {
		t.Fatalf("ReplaceRules failed: %v", err)
	}

	got, err := repo.ListRules(sourceID, false)
	if err != nil {
		t.Fatalf("ListRules failed: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("Expected 4 rules, got %d", len(got))
	}

	// Priority descending, then declaration order within the tie
	if got[0].Pattern != "spam" || got[1].Pattern != "ads" {
		t.Errorf("Wrong priority/declaration ordering: %q, %q", got[0].Pattern, got[1].Pattern)
	}

	enabled, err := repo.ListRules(sourceID, true)
	if err != nil {
		t.Fatalf("ListRules(enabledOnly) failed: %v", err)
	}
	if len(enabled) != 3 {
		t.Errorf("Expected 3 enabled rules, got %d", len(enabled))
	}

	// Replace drops the old set
	if err := repo.ReplaceRules(sourceID, rules[:1]); err != nil {
		t.Fatalf("Second ReplaceRules failed: %v", err)
	}
	got, _ = repo.ListRules(sourceID, false)
	if len(got) != 1 {
		t.Errorf("Expected 1 rule after replace, got %d", len(got))
	}
}
