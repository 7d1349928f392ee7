package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/fetchd/fetchd/internal/domain"
)

// sessionDBO maps to the sessions table. Headers/download_info/segments/
// stats are JSON-encoded columns carrying structured fields (spec §4.10);
// schema_version lets future migrations reinterpret the encoding (Design
// Notes: typed, versioned serialization instead of dynamic JSON blobs).
type sessionDBO struct {
	SessionID     string       `db:"session_id"`
	URL           string       `db:"url"`
	Headers       string       `db:"headers"`
	DownloadInfo  string       `db:"download_info"`
	Segments      string       `db:"segments"`
	Stats         string       `db:"stats"`
	SchemaVersion int          `db:"schema_version"`
	Status        string       `db:"status"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

func (d *sessionDBO) ToDomain() (*domain.Session, error) {
	s := &domain.Session{
		ID:            d.SessionID,
		URL:           d.URL,
		Status:        domain.SessionStatus(d.Status),
		SchemaVersion: d.SchemaVersion,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(d.Headers), &s.Headers); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(d.DownloadInfo), &s.Download); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(d.Segments), &s.Segments); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(d.Stats), &s.Stats); err != nil {
		return nil, err
	}
	return s, nil
}

func fromSession(s *domain.Session) (*sessionDBO, error) {
	headers, err := json.Marshal(s.Headers)
	if err != nil {
		return nil, err
	}
	downloadInfo, err := json.Marshal(s.Download)
	if err != nil {
		return nil, err
	}
	segments, err := json.Marshal(s.Segments)
	if err != nil {
		return nil, err
	}
	stats, err := json.Marshal(s.Stats)
	if err != nil {
		return nil, err
	}
	return &sessionDBO{
		SessionID:     s.ID,
		URL:           s.URL,
		Headers:       string(headers),
		DownloadInfo:  string(downloadInfo),
		Segments:      string(segments),
		Stats:         string(stats),
		SchemaVersion: s.SchemaVersion,
		Status:        string(s.Status),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}, nil
}

// queueItemDBO maps to the queue_items table.
type queueItemDBO struct {
	ID             string         `db:"id"`
	URL            string         `db:"url"`
	Filename       string         `db:"filename"`
	OutputDir      string         `db:"output_dir"`
	Headers        string         `db:"headers"`
	MaxConnections int            `db:"max_connections"`
	Status         string         `db:"status"`
	CreatedAt      time.Time      `db:"created_at"`
	StartedAt      sql.NullTime   `db:"started_at"`
	CompletedAt    sql.NullTime   `db:"completed_at"`
	Error          sql.NullString `db:"error"`
	Progress       float64        `db:"progress"`
	Speed          float64        `db:"speed"`
	ETA            float64        `db:"eta"`
	FilePath       sql.NullString `db:"file_path"`
}

func (d *queueItemDBO) ToDomain() (*domain.QueueItem, error) {
	item := &domain.QueueItem{
		ID:                 d.ID,
		URL:                d.URL,
		Status:             domain.QueueItemStatus(d.Status),
		ProgressPercentage: d.Progress,
		DownloadSpeed:      d.Speed,
		ETASeconds:         d.ETA,
		Error:              d.Error.String,
		FilePath:           d.FilePath.String,
		CreatedAt:          d.CreatedAt,
		Overrides: domain.Overrides{
			Filename:       d.Filename,
			OutputDir:      d.OutputDir,
			MaxConnections: d.MaxConnections,
		},
	}
	if d.StartedAt.Valid {
		item.StartedAt = d.StartedAt.Time
	}
	if d.CompletedAt.Valid {
		item.CompletedAt = d.CompletedAt.Time
	}
	if err := json.Unmarshal([]byte(d.Headers), &item.Overrides.Headers); err != nil {
		return nil, err
	}
	return item, nil
}

func fromQueueItem(item *domain.QueueItem) (*queueItemDBO, error) {
	headers, err := json.Marshal(item.Overrides.Headers)
	if err != nil {
		return nil, err
	}
	d := &queueItemDBO{
		ID:             item.ID,
		URL:            item.URL,
		Filename:       item.Overrides.Filename,
		OutputDir:      item.Overrides.OutputDir,
		Headers:        string(headers),
		MaxConnections: item.Overrides.MaxConnections,
		Status:         string(item.Status),
		CreatedAt:      item.CreatedAt,
		Error:          sql.NullString{String: item.Error, Valid: item.Error != ""},
		Progress:       item.ProgressPercentage,
		Speed:          item.DownloadSpeed,
		ETA:            item.ETASeconds,
		FilePath:       sql.NullString{String: item.FilePath, Valid: item.FilePath != ""},
	}
	if !item.StartedAt.IsZero() {
		d.StartedAt = sql.NullTime{Time: item.StartedAt, Valid: true}
	}
	if !item.CompletedAt.IsZero() {
		d.CompletedAt = sql.NullTime{Time: item.CompletedAt, Valid: true}
	}
	return d, nil
}
