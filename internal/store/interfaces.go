package store

import (
	"context"
	"time"

	"github.com/fetchd/fetchd/internal/domain"
)

// Store is the C9 contract consumed by the coordinator and queue manager.
// Both PersistentStore (sqlite, default) and PostgresStore (optional, for a
// shared multi-process deployment) satisfy it, so callers depend on neither
// driver directly (Design Notes: connection-pool abstraction instead of a
// concrete per-thread DB handle).
type Store interface {
	CreateSession(ctx context.Context, sess *domain.Session) error
	UpdateSession(ctx context.Context, sess *domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	ListSessions(ctx context.Context, status domain.SessionStatus) ([]*domain.Session, error)
	ListSessionsByURL(ctx context.Context, url string) ([]*domain.Session, error)
	DeleteSession(ctx context.Context, id string) error
	CleanupSessions(ctx context.Context, olderThan time.Time) error

	SaveQueueItem(ctx context.Context, item *domain.QueueItem) error
	GetQueueItem(ctx context.Context, id string) (*domain.QueueItem, error)
	FindByPrefix(ctx context.Context, prefix string) (*domain.QueueItem, error)
	ListQueueItems(ctx context.Context, status domain.QueueItemStatus) ([]*domain.QueueItem, error)
	GetActiveQueueItems(ctx context.Context) ([]*domain.QueueItem, error)
	ResetStuckQueueItems(ctx context.Context, newStatus domain.QueueItemStatus, oldStatuses ...domain.QueueItemStatus) error
	DeleteQueueItem(ctx context.Context, id string) error

	SetSetting(ctx context.Context, section, key string, value interface{}) error
	GetSetting(ctx context.Context, section, key string) (*domain.Setting, error)
	ListSettings(ctx context.Context, section string) ([]domain.Setting, error)
	DeleteSetting(ctx context.Context, section, key string) error

	Close() error
}

var (
	_ Store = (*PersistentStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
