package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"order_pacer/internal/model"
)

var ErrNoSamples = errors.New("no contact samples imported")

// ImportSamples inserts samples, skipping rows without a first name or phone
// and rows already present. It returns the number of new rows.
func (s *Store) ImportSamples(ctx context.Context, samples []model.Sample) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (first_name, last_name, phone, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(first_name, last_name, phone) DO NOTHING
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	inserted := 0
	for _, smp := range samples {
		first := strings.TrimSpace(smp.FirstName)
		phone := strings.TrimSpace(smp.Phone)
		if first == "" || phone == "" {
			continue
		}
		res, err := stmt.ExecContext(ctx, first, strings.TrimSpace(smp.LastName), phone, now)
		if err != nil {
			return 0, fmt.Errorf("import sample %q: %w", first, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// RandomSample picks one stored sample uniformly at random.
func (s *Store) RandomSample(ctx context.Context) (model.Sample, error) {
	var out model.Sample
	err := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, phone FROM samples ORDER BY RANDOM() LIMIT 1
	`).Scan(&out.ID, &out.FirstName, &out.LastName, &out.Phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Sample{}, ErrNoSamples
		}
		return model.Sample{}, err
	}
	return out, nil
}

func (s *Store) CountSamples(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM samples`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) DeleteSamples(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM samples`)
	return err
}
