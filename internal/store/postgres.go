package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fetchd/fetchd/internal/domain"
)

// PostgresStore is the optional shared-deployment C9 backend (SPEC_FULL.md
// DOMAIN STACK): a pool-backed alternative to PersistentStore for callers
// running the queue manager against a central database rather than a local
// sqlite file, e.g. several fetchd processes on different hosts draining one
// queue. Selected via config.Store.Driver == "postgres".
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and runs the embedded schema migrations
// against it. The schema mirrors the sqlite one column-for-column (same
// migrations/*.sql source, applied through golang-migrate's postgres
// driver instead of sqlite's).
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.runPostgresMigrations(dsn); err != nil {
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	dbo, err := fromSession(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, url, headers, download_info, segments, stats, schema_version, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		dbo.SessionID, dbo.URL, dbo.Headers, dbo.DownloadInfo, dbo.Segments, dbo.Stats,
		dbo.SchemaVersion, dbo.Status, dbo.CreatedAt, dbo.UpdatedAt)
	return err
}

func (s *PostgresStore) UpdateSession(ctx context.Context, sess *domain.Session) error {
	sess.UpdatedAt = time.Now()
	dbo, err := fromSession(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE sessions SET segments = $1, stats = $2, status = $3, updated_at = $4
		WHERE session_id = $5`,
		dbo.Segments, dbo.Stats, dbo.Status, dbo.UpdatedAt, dbo.SessionID)
	return err
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, url, headers, download_info, segments, stats, schema_version, status, created_at, updated_at
		FROM sessions WHERE session_id = $1`, id)

	var d sessionDBO
	err := row.Scan(&d.SessionID, &d.URL, &d.Headers, &d.DownloadInfo, &d.Segments, &d.Stats,
		&d.SchemaVersion, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.ToDomain()
}

func (s *PostgresStore) ListSessions(ctx context.Context, status domain.SessionStatus) ([]*domain.Session, error) {
	query := `SELECT session_id, url, headers, download_info, segments, stats, schema_version, status, created_at, updated_at FROM sessions`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.pool.Query(ctx, query, args...)
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
	return out, rows.Err()
}

func (s *PostgresStore) ListSessionsByURL(ctx context.Context, url string) ([]*domain.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, url, headers, download_info, segments, stats, schema_version, status, created_at, updated_at
		FROM sessions WHERE url = $1 ORDER BY created_at DESC`, url)
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
	return out, rows.Err()
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE session_id = $1", id)
	return err
}

func (s *PostgresStore) CleanupSessions(ctx context.Context, olderThan time.Time) error {
	_, err := s.pool.Exec(ctx,
		"DELETE FROM sessions WHERE updated_at < $1 AND status IN ('completed', 'failed')", olderThan)
	return err
}

const pgQueueItemColumns = `id, url, filename, output_dir, headers, max_connections, status, created_at, started_at, completed_at, error, progress, speed, eta, file_path`

func (s *PostgresStore) SaveQueueItem(ctx context.Context, item *domain.QueueItem) error {
	dbo, err := fromQueueItem(item)
	if err != nil {
		return fmt.Errorf("encode queue item: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO queue_items (id, url, filename, output_dir, headers, max_connections, status, created_at, started_at, completed_at, error, progress, speed, eta, file_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			error = excluded.error,
			progress = excluded.progress,
			speed = excluded.speed,
			eta = excluded.eta,
			file_path = excluded.file_path`,
		dbo.ID, dbo.URL, dbo.Filename, dbo.OutputDir, dbo.Headers, dbo.MaxConnections, dbo.Status,
		dbo.CreatedAt, dbo.StartedAt, dbo.CompletedAt, dbo.Error, dbo.Progress, dbo.Speed, dbo.ETA, dbo.FilePath,
	)
	return err
}

func (s *PostgresStore) GetQueueItem(ctx context.Context, id string) (*domain.QueueItem, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+pgQueueItemColumns+" FROM queue_items WHERE id = $1", id)
	item, err := scanQueueItem(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return item, err
}

func (s *PostgresStore) FindByPrefix(ctx context.Context, prefix string) (*domain.QueueItem, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+pgQueueItemColumns+" FROM queue_items WHERE id LIKE $1 LIMIT 2", prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*domain.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, item)
	}
	switch len(matches) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return nil, ErrAmbiguous
	}
}

func (s *PostgresStore) ListQueueItems(ctx context.Context, status domain.QueueItemStatus) ([]*domain.QueueItem, error) {
	query := "SELECT " + pgQueueItemColumns + " FROM queue_items"
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetActiveQueueItems(ctx context.Context) ([]*domain.QueueItem, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+pgQueueItemColumns+` FROM queue_items
		WHERE status NOT IN ('completed', 'failed', 'cancelled') ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) ResetStuckQueueItems(ctx context.Context, newStatus domain.QueueItemStatus, oldStatuses ...domain.QueueItemStatus) error {
	if len(oldStatuses) == 0 {
		return nil
	}
	placeholders := make([]string, len(oldStatuses))
	args := make([]interface{}, len(oldStatuses)+1)
	args[0] = string(newStatus)
	for i, st := range oldStatuses {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args[i+1] = string(st)
	}
	query := fmt.Sprintf(
		"UPDATE queue_items SET status = $1, error = 'interrupted by shutdown' WHERE status IN (%s)",
		strings.Join(placeholders, ","),
	)
	_, err := s.pool.Exec(ctx, query, args...)
	return err
}

func (s *PostgresStore) DeleteQueueItem(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM queue_items WHERE id = $1", id)
	return err
}

func (s *PostgresStore) SetSetting(ctx context.Context, section, key string, value interface{}) error {
	var encoded, valueType string
	switch v := value.(type) {
	case int:
		encoded, valueType = strconv.Itoa(v), "int"
	case int64:
		encoded, valueType = strconv.FormatInt(v, 10), "int"
	case float64:
		encoded, valueType = strconv.FormatFloat(v, 'f', -1, 64), "float"
	case bool:
		encoded, valueType = strconv.FormatBool(v), "bool"
	case string:
		encoded, valueType = v, "string"
	default:
		return domain.NewError(domain.KindValidation, "SetSetting", nil)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (section, key, value, value_type, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT(section, key) DO UPDATE SET
			value = excluded.value,
			value_type = excluded.value_type,
			updated_at = excluded.updated_at`,
		section, key, encoded, valueType, time.Now())
	return err
}

func (s *PostgresStore) GetSetting(ctx context.Context, section, key string) (*domain.Setting, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT section, key, value, value_type, updated_at FROM settings WHERE section = $1 AND key = $2",
		section, key)

	var st domain.Setting
	if err := row.Scan(&st.Section, &st.Key, &st.Value, &st.ValueType, &st.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

func (s *PostgresStore) ListSettings(ctx context.Context, section string) ([]domain.Setting, error) {
	query := "SELECT section, key, value, value_type, updated_at FROM settings"
	args := []interface{}{}
	if section != "" {
		query += " WHERE section = $1"
		args = append(args, section)
	}
	query += " ORDER BY section, key"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Setting
	for rows.Next() {
		var st domain.Setting
		if err := rows.Scan(&st.Section, &st.Key, &st.Value, &st.ValueType, &st.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteSetting(ctx context.Context, section, key string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM settings WHERE section = $1 AND key = $2", section, key)
	return err
}

// runPostgresMigrations applies the same embedded migrations/*.sql tree used
// by sqlite, through golang-migrate's postgres driver. Takes dsn directly
// rather than the pool, since golang-migrate manages its own connection.
func (s *PostgresStore) runPostgresMigrations(dsn string) error {
	return runMigrationsWithDriver("postgres", dsn)
}
