package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type entryRepository struct {
	db *DB
}

func NewEntryRepository(db *DB) EntryRepository {
	return &entryRepository{db: db}
}

// AppendEntries inserts surviving entries for a source and returns the number
// actually inserted. Re-inserting an already stored GUID is a silent no-op,
// which keeps retried cycles idempotent. Uniqueness is keyed on the GUID
// rather than the link: the parser guarantees a GUID for every entry, while
// link-less feeds would collide on an empty link.
func (r *entryRepository) AppendEntries(sourceID string, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	now := formatTime(time.Now())

	for _, entry := range entries {
		tags, err := json.Marshal(emptyIfNil(entry.Tags))
		if err != nil {
			return 0, fmt.Errorf("failed to marshal tags: %w", err)
		}

		var publishedAt any
		if entry.PublishedAt != nil {
			publishedAt = formatTime(*entry.PublishedAt)
		}

		res, err := tx.Exec(`
			INSERT INTO entries (id, source_id, guid, link, title, summary, content,
			                     language, tags, published_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (source_id, guid) DO NOTHING
		`, uuid.NewString(), sourceID, entry.GUID, entry.Link, entry.Title, entry.Summary,
			entry.Content, entry.Language, string(tags), publishedAt, now)
		if err != nil {
			return 0, fmt.Errorf("failed to insert entry: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit entries: %w", err)
	}

	return inserted, nil
}

func (r *entryRepository) GetEntryCount(sourceID string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM entries WHERE source_id = ?", sourceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get entry count: %w", err)
	}
	return count, nil
}

const entryColumns = `id, source_id, guid, link, title, summary, content, language,
	tags, published_at, full_text, keywords, generated_summary, created_at`

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var e Entry
	var tags, keywords string
	var publishedAt sql.NullString
	var createdAt string

	err := rows.Scan(&e.ID, &e.SourceID, &e.GUID, &e.Link, &e.Title, &e.Summary,
		&e.Content, &e.Language, &tags, &publishedAt, &e.FullText, &keywords,
		&e.GeneratedSummary, &createdAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		e.Tags = nil
	}
	if err := json.Unmarshal([]byte(keywords), &e.Keywords); err != nil {
		e.Keywords = nil
	}
	e.PublishedAt = parseNullTime(publishedAt)
	e.CreatedAt, _ = time.Parse(timeLayout, createdAt)

	return &e, nil
}

func (r *entryRepository) queryEntries(query string, args ...any) ([]Entry, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		entries = append(entries, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entry rows: %w", err)
	}

	return entries, nil
}

func (r *entryRepository) GetRecentEntries(sourceID string, limit int) ([]Entry, error) {
	return r.queryEntries(`
		SELECT `+entryColumns+` FROM entries
		WHERE source_id = ?
		ORDER BY COALESCE(published_at, created_at) DESC
		LIMIT ?
	`, sourceID, limit)
}

func (r *entryRepository) KnownSignatures(sourceID string) (*SignatureSet, error) {
	rows, err := r.db.Query("SELECT kind, value FROM signatures WHERE source_id = ?", sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signatures: %w", err)
	}
	defer rows.Close()

	set := NewSignatureSet()
	for rows.Next() {
		var kind, value string
		if err := rows.Scan(&kind, &value); err != nil {
			return nil, fmt.Errorf("failed to scan signature row: %w", err)
		}

		switch kind {
		case "link":
			set.Links[value] = struct{}{}
		case "title":
			set.Titles[value] = struct{}{}
		case "hash":
			set.Hashes[value] = struct{}{}
		case "body":
			set.Bodies = append(set.Bodies, value)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signature rows: %w", err)
	}

	return set, nil
}

func (r *entryRepository) AddSignatures(sourceID string, signatures []Signature) error {
	if len(signatures) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	for _, sig := range signatures {
		if sig.Value == "" {
			continue
		}
		_, err := tx.Exec(`
			INSERT INTO signatures (source_id, kind, value, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (source_id, kind, value) DO NOTHING
		`, sourceID, sig.Kind, sig.Value, now)
		if err != nil {
			return fmt.Errorf("failed to insert signature: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit signatures: %w", err)
	}

	return nil
}

func (r *entryRepository) GetEntriesForEnrichment(sourceID string, limit int) ([]Entry, error) {
	return r.queryEntries(`
		SELECT `+entryColumns+` FROM entries
		WHERE source_id = ? AND full_text = ''
		ORDER BY created_at DESC
		LIMIT ?
	`, sourceID, limit)
}

func (r *entryRepository) UpdateEnrichment(entryID string, fullText string, keywords []string, generatedSummary string) error {
	kw, err := json.Marshal(emptyIfNil(keywords))
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}

	_, err = r.db.Exec(`
		UPDATE entries
		SET full_text = ?, keywords = ?, generated_summary = ?
		WHERE id = ?
	`, fullText, string(kw), generatedSummary, entryID)
	if err != nil {
		return fmt.Errorf("failed to update enrichment: %w", err)
	}

	return nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
