package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/fetchd/fetchd/internal/domain"
)

// SetSetting upserts one (section, key) setting, encoding value by kind so
// GetSetting can round-trip int/float/bool/string without a dynamic blob
// (Supplemented Features: settings as typed triples, grounded on
// fetchx_cli's config/settings.py).
func (s *PersistentStore) SetSetting(ctx context.Context, section, key string, value interface{}) error {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (section, key, value, value_type, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(section, key) DO UPDATE SET
			value = excluded.value,
			value_type = excluded.value_type,
			updated_at = excluded.updated_at`,
		section, key, encoded, valueType, time.Now())
	return err
}

// GetSetting fetches one setting. Returns nil, nil if unset, so callers can
// fall back to the compiled-in default (config.Config).
func (s *PersistentStore) GetSetting(ctx context.Context, section, key string) (*domain.Setting, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT section, key, value, value_type, updated_at FROM settings WHERE section = ? AND key = ?",
		section, key)

	var st domain.Setting
	if err := row.Scan(&st.Section, &st.Key, &st.Value, &st.ValueType, &st.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// ListSettings returns every stored setting, optionally scoped to one
// section, for display or export.
func (s *PersistentStore) ListSettings(ctx context.Context, section string) ([]domain.Setting, error) {
	query := "SELECT section, key, value, value_type, updated_at FROM settings"
	args := []interface{}{}
	if section != "" {
		query += " WHERE section = ?"
		args = append(args, section)
	}
	query += " ORDER BY section, key"

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	return out, nil
}

// DeleteSetting removes an override, reverting the key to its compiled-in default.
func (s *PersistentStore) DeleteSetting(ctx context.Context, section, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE section = ? AND key = ?", section, key)
	return err
}
