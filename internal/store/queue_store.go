package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/fetchd/fetchd/internal/domain"
)

// SaveQueueItem upserts a queue item row. Grounded verbatim on
// internal/store/queue.go's ON CONFLICT upsert shape.
func (s *PersistentStore) SaveQueueItem(ctx context.Context, item *domain.QueueItem) error {
	dbo, err := fromQueueItem(item)
	if err != nil {
		return fmt.Errorf("encode queue item: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO queue_items (id, url, filename, output_dir, headers, max_connections, status, created_at, started_at, completed_at, error, progress, speed, eta, file_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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

func scanQueueItem(row interface {
	Scan(dest ...interface{}) error
}) (*domain.QueueItem, error) {
	var d queueItemDBO
	err := row.Scan(&d.ID, &d.URL, &d.Filename, &d.OutputDir, &d.Headers, &d.MaxConnections, &d.Status,
		&d.CreatedAt, &d.StartedAt, &d.CompletedAt, &d.Error, &d.Progress, &d.Speed, &d.ETA, &d.FilePath)
	if err != nil {
		return nil, err
	}
	return d.ToDomain()
}

const queueItemColumns = `id, url, filename, output_dir, headers, max_connections, status, created_at, started_at, completed_at, error, progress, speed, eta, file_path`

// GetQueueItem fetches one item by id.
func (s *PersistentStore) GetQueueItem(ctx context.Context, id string) (*domain.QueueItem, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+queueItemColumns+" FROM queue_items WHERE id = ?", id)
	item, err := scanQueueItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// FindByPrefix resolves a caller-supplied unique id prefix (spec §4.9:
// "callers may reference items by a unique prefix of the id"). Returns
// ErrNotFound or ErrAmbiguous accordingly.
func (s *PersistentStore) FindByPrefix(ctx context.Context, prefix string) (*domain.QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+queueItemColumns+" FROM queue_items WHERE id LIKE ? LIMIT 2", prefix+"%")
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

// ListQueueItems returns all items ordered by creation time, optionally
// filtered by status.
func (s *PersistentStore) ListQueueItems(ctx context.Context, status domain.QueueItemStatus) ([]*domain.QueueItem, error) {
	query := "SELECT " + queueItemColumns + " FROM queue_items"
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

	var items []*domain.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// GetActiveQueueItems returns items not in a terminal state. Grounded on
// internal/store/queue.go's GetActiveQueueItems (status NOT IN filter),
// used to rehydrate the in-memory queue at startup.
func (s *PersistentStore) GetActiveQueueItems(ctx context.Context) ([]*domain.QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+queueItemColumns+` FROM queue_items
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
	return items, nil
}

// ResetStuckQueueItems marks items left in a non-terminal state by an
// unexpected shutdown back to queued, so the scheduler retries them on
// restart. Grounded verbatim (dynamic IN-clause bulk update) on
// internal/store/queue.go's ResetStuckQueueItems.
func (s *PersistentStore) ResetStuckQueueItems(ctx context.Context, newStatus domain.QueueItemStatus, oldStatuses ...domain.QueueItemStatus) error {
	if len(oldStatuses) == 0 {
		return nil
	}
	placeholders := make([]string, len(oldStatuses))
	args := make([]interface{}, len(oldStatuses)+1)
	args[0] = string(newStatus)
	for i, st := range oldStatuses {
		placeholders[i] = "?"
		args[i+1] = string(st)
	}
	query := fmt.Sprintf(
		"UPDATE queue_items SET status = ?, error = 'interrupted by shutdown' WHERE status IN (%s)",
		strings.Join(placeholders, ","),
	)
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// DeleteQueueItem removes a queue item row.
func (s *PersistentStore) DeleteQueueItem(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM queue_items WHERE id = ?", id)
	return err
}

var (
	ErrNotFound  = fmt.Errorf("queue item not found")
	ErrAmbiguous = fmt.Errorf("queue item id prefix is ambiguous")
)
