package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fetchd/fetchd/internal/domain"
)

// CreateSession inserts a new session row (C7 `create`).
func (s *PersistentStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	dbo, err := fromSession(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, url, headers, download_info, segments, stats, schema_version, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dbo.SessionID, dbo.URL, dbo.Headers, dbo.DownloadInfo, dbo.Segments, dbo.Stats,
		dbo.SchemaVersion, dbo.Status, dbo.CreatedAt, dbo.UpdatedAt)
	return err
}

// UpdateSession persists the current segments/stats/status snapshot (C7
// `update`). Called every 5s while downloading and on pause, failure and
// completion (spec §4.7); a cancelled run does not call it, since its
// session is deleted instead.
func (s *PersistentStore) UpdateSession(ctx context.Context, sess *domain.Session) error {
	sess.UpdatedAt = time.Now()
	dbo, err := fromSession(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE sessions SET segments = ?, stats = ?, status = ?, updated_at = ?
		WHERE session_id = ?`,
		dbo.Segments, dbo.Stats, dbo.Status, dbo.UpdatedAt, dbo.SessionID)
	return err
}

// GetSession fetches one session by id (C7 `get`). Returns nil, nil if absent.
func (s *PersistentStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, url, headers, download_info, segments, stats, schema_version, status, created_at, updated_at
		FROM sessions WHERE session_id = ?`, id)

	var d sessionDBO
	err := row.Scan(&d.SessionID, &d.URL, &d.Headers, &d.DownloadInfo, &d.Segments, &d.Stats,
		&d.SchemaVersion, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.ToDomain()
}

// ListSessions returns sessions, optionally filtered by status (C7 `list`).
func (s *PersistentStore) ListSessions(ctx context.Context, status domain.SessionStatus) ([]*domain.Session, error) {
	query := `SELECT session_id, url, headers, download_info, segments, stats, schema_version, status, created_at, updated_at FROM sessions`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		var d sessionDBO
		if err := rows.Scan(&d.SessionID, &d.URL, &d.Headers, &d.DownloadInfo, &d.Segments, &d.Stats,
			&d.SchemaVersion, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		dom, err := d.ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, dom)
	}
	return out, nil
}

// ListSessionsByURL returns all sessions (possibly many paused attempts)
// for a given URL (C7 `list_by_url`).
func (s *PersistentStore) ListSessionsByURL(ctx context.Context, url string) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, url, headers, download_info, segments, stats, schema_version, status, created_at, updated_at
		FROM sessions WHERE url = ? ORDER BY created_at DESC`, url)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		var d sessionDBO
		if err := rows.Scan(&d.SessionID, &d.URL, &d.Headers, &d.DownloadInfo, &d.Segments, &d.Stats,
			&d.SchemaVersion, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		dom, err := d.ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, dom)
	}
	return out, nil
}

// DeleteSession removes a session row (C7 `delete`); used both for cancel
// cleanup and for pruning sessions found broken on resume (spec §4.8
// staleness detection).
func (s *PersistentStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", id)
	return err
}

// CleanupSessions deletes terminal sessions older than olderThan (C7
// `cleanup`, spec §6 cleanup.session_cleanup_age_days).
func (s *PersistentStore) CleanupSessions(ctx context.Context, olderThan time.Time) error {
	query := fmt.Sprintf(
		"DELETE FROM sessions WHERE updated_at < ? AND status IN (%s)",
		strings.Join([]string{"'completed'", "'failed'"}, ","),
	)
	_, err := s.db.ExecContext(ctx, query, olderThan)
	return err
}
