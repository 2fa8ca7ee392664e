package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chartengine/internal/model"
)

// ErrNotFound is returned when no matching dataset exists.
var ErrNotFound = errors.New("dataset not found")

// Stored is a dataset read back from the store.
type Stored struct {
	Dataset
	Series *model.PriceSeries
	Params model.ParamSet
}

// LoadLatest returns the most recently saved dataset, or ErrNotFound.
func (s *DatasetStore) LoadLatest(ctx context.Context) (*Stored, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM datasets ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite query latest dataset: %w", err)
	}
	return s.Load(ctx, id)
}

// Load returns the dataset with the given id.
func (s *DatasetStore) Load(ctx context.Context, id string) (*Stored, error) {
	var (
		st        Stored
		params    string
		createdNs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, bars, params, created_at FROM datasets WHERE id = ?`, id,
	).Scan(&st.ID, &st.Name, &st.Bars, &params, &createdNs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite query dataset: %w", err)
	}
	st.CreatedAt = time.Unix(0, createdNs).UTC()
	if err := json.Unmarshal([]byte(params), &st.Params); err != nil {
		return nil, fmt.Errorf("decode params of %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT label, open, high, low, close
		FROM bars
		WHERE dataset_id = ?
		ORDER BY idx ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	bars := make([]model.PriceBar, 0, st.Bars)
	for rows.Next() {
		var (
			label                 string
			open                  sql.NullFloat64
			high, low, closePrice float64
		)
		if err := rows.Scan(&label, &open, &high, &low, &closePrice); err != nil {
			return nil, fmt.Errorf("sqlite scan bar: %w", err)
		}
		var op *float64
		if open.Valid {
			v := open.Float64
			op = &v
		}
		b, err := model.NewPriceBar(label, op, high, low, closePrice)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", id, err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	st.Series, err = model.NewPriceSeries(bars)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", id, err)
	}
	return &st, nil
}

// List returns up to limit datasets, newest first.
func (s *DatasetStore) List(ctx context.Context, limit int) ([]Dataset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, bars, created_at FROM datasets ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite list datasets: %w", err)
	}
	defer rows.Close()

	var out []Dataset
	for rows.Next() {
		var (
			d         Dataset
			createdNs int64
		)
		if err := rows.Scan(&d.ID, &d.Name, &d.Bars, &createdNs); err != nil {
			return nil, fmt.Errorf("sqlite scan dataset: %w", err)
		}
		d.CreatedAt = time.Unix(0, createdNs).UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}
