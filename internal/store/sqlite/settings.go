package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"order_pacer/internal/model"
)

const (
	runSettingsKey   = "run_settings"
	emailSettingsKey = "email_settings"
)

// LoadSettings returns the stored run settings, normalized. Defaults are
// returned when nothing has been saved yet.
func (s *Store) LoadSettings(ctx context.Context) (model.Settings, error) {
	out := model.DefaultSettings()
	ok, err := s.getJSON(ctx, runSettingsKey, &out)
	if err != nil {
		return model.Settings{}, err
	}
	if !ok {
		return model.DefaultSettings(), nil
	}
	return out.Normalize(), nil
}

func (s *Store) SaveSettings(ctx context.Context, v model.Settings) (model.Settings, error) {
	v = v.Normalize()
	if err := v.Validate(); err != nil {
		return model.Settings{}, err
	}
	if err := s.putJSON(ctx, runSettingsKey, v); err != nil {
		return model.Settings{}, err
	}
	return v, nil
}

func (s *Store) GetEmailSettings(ctx context.Context) (model.EmailSettings, bool, error) {
	var out model.EmailSettings
	ok, err := s.getJSON(ctx, emailSettingsKey, &out)
	if err != nil || !ok {
		return model.EmailSettings{}, ok, err
	}
	out.Email = strings.TrimSpace(out.Email)
	out.AuthCode = strings.TrimSpace(out.AuthCode)
	return out, true, nil
}

func (s *Store) UpsertEmailSettings(ctx context.Context, v model.EmailSettings) (model.EmailSettings, error) {
	if err := s.putJSON(ctx, emailSettingsKey, v); err != nil {
		return model.EmailSettings{}, err
	}
	return v, nil
}

func (s *Store) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	var valueJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT value_json FROM settings WHERE key = ?
	`, key).Scan(&valueJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(valueJSON), dst); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) putJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value_json = excluded.value_json,
			updated_at = excluded.updated_at
	`, key, string(b), time.Now().UnixMilli())
	return err
}
