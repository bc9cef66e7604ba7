package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const timeLayout = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

type sourceRepository struct {
	db *DB
}

func NewSourceRepository(db *DB) SourceRepository {
	return &sourceRepository{db: db}
}

const sourceColumns = `id, name, url, enabled, interval_minutes, max_entries, recent_only,
	dedup_strategy, last_fetched_at, etag, last_modified, error_count, created_at, updated_at`

func (r *sourceRepository) scanSource(row interface{ Scan(...any) error }) (*Source, error) {
	var s Source
	var enabled, recentOnly int
	var lastFetched sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&s.ID, &s.Name, &s.URL, &enabled, &s.IntervalMinutes, &s.MaxEntries,
		&recentOnly, &s.DedupStrategy, &lastFetched, &s.ETag, &s.LastModified,
		&s.ErrorCount, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	s.Enabled = enabled != 0
	s.RecentOnly = recentOnly != 0
	s.LastFetchedAt = parseNullTime(lastFetched)
	s.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	s.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)

	return &s, nil
}

func (r *sourceRepository) ListSources(enabledOnly bool) ([]Source, error) {
	query := "SELECT " + sourceColumns + " FROM sources"
	if enabledOnly {
		query += " WHERE enabled = 1"
	}
	query += " ORDER BY name"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		s, err := r.scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}

	return sources, nil
}

func (r *sourceRepository) GetSource(name string) (*Source, error) {
	row := r.db.QueryRow("SELECT "+sourceColumns+" FROM sources WHERE name = ? OR id = ?", name, name)

	s, err := r.scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}

	return s, nil
}

func (r *sourceRepository) GetSourceCount(enabledOnly bool) (int, error) {
	query := "SELECT COUNT(*) FROM sources"
	if enabledOnly {
		query += " WHERE enabled = 1"
	}

	var count int
	if err := r.db.QueryRow(query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get source count: %w", err)
	}
	return count, nil
}

func (r *sourceRepository) UpsertSource(name, url string, enabled bool, intervalMinutes, maxEntries int, recentOnly bool, dedupStrategy string) (string, error) {
	existing, err := r.GetSource(name)
	if err != nil {
		return "", fmt.Errorf("failed to check existing source: %w", err)
	}

	now := formatTime(time.Now())

	if existing != nil {
		_, err = r.db.Exec(`
			UPDATE sources
			SET url = ?, enabled = ?, interval_minutes = ?, max_entries = ?,
			    recent_only = ?, dedup_strategy = ?, updated_at = ?
			WHERE id = ?
		`, url, boolToInt(enabled), intervalMinutes, maxEntries, boolToInt(recentOnly), dedupStrategy, now, existing.ID)
		if err != nil {
			return "", fmt.Errorf("failed to update source: %w", err)
		}
		return existing.ID, nil
	}

	id := uuid.NewString()
	_, err = r.db.Exec(`
		INSERT INTO sources (id, name, url, enabled, interval_minutes, max_entries,
		                     recent_only, dedup_strategy, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, name, url, boolToInt(enabled), intervalMinutes, maxEntries, boolToInt(recentOnly), dedupStrategy, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to insert source: %w", err)
	}

	return id, nil
}

// UpdateSourceState commits the outcome of one fetch cycle in a single
// statement: lastFetched, validator tokens and the error counter land
// together or not at all.
func (r *sourceRepository) UpdateSourceState(sourceID string, lastFetched time.Time, etag, lastModified string, errorCount int) error {
	_, err := r.db.Exec(`
		UPDATE sources
		SET last_fetched_at = ?, etag = ?, last_modified = ?, error_count = ?, updated_at = ?
		WHERE id = ?
	`, formatTime(lastFetched), etag, lastModified, errorCount, formatTime(time.Now()), sourceID)

	if err != nil {
		return fmt.Errorf("failed to update source state: %w", err)
	}

	return nil
}

// IncrementErrorCount records a failed cycle without touching lastFetched or
// the validator tokens.
func (r *sourceRepository) IncrementErrorCount(sourceID string) error {
	_, err := r.db.Exec(`
		UPDATE sources SET error_count = error_count + 1, updated_at = ? WHERE id = ?
	`, formatTime(time.Now()), sourceID)

	if err != nil {
		return fmt.Errorf("failed to increment error count: %w", err)
	}

	return nil
}

func (r *sourceRepository) SetSourceEnabled(sourceID string, enabled bool) error {
	_, err := r.db.Exec(`
		UPDATE sources SET enabled = ?, updated_at = ? WHERE id = ?
	`, boolToInt(enabled), formatTime(time.Now()), sourceID)

	if err != nil {
		return fmt.Errorf("failed to set source enabled: %w", err)
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
