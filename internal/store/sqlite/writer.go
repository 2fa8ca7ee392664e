package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"chartengine/internal/model"
)

// Config configures the dataset store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/datasets.db"; ":memory:" for tests
}

// Dataset describes one stored upload.
type Dataset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Bars      int       `json:"bars"`
	CreatedAt time.Time `json:"createdAt"`
}

// DatasetStore persists uploaded price series and the parameters they
// were last computed with. Indicator results are never stored; they are
// recomputed after a restore.
type DatasetStore struct {
	db  *sql.DB
	now func() time.Time
}

// DB returns the underlying sql.DB for health checks.
func (s *DatasetStore) DB() *sql.DB { return s.db }

// Open opens (or creates) the database with WAL mode and schema.
func Open(cfg Config) (*DatasetStore, error) {
	dsn := cfg.DBPath + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	if cfg.DBPath == ":memory:" {
		dsn = cfg.DBPath
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single connection: serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &DatasetStore{db: db, now: time.Now}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS datasets (
			id         TEXT    PRIMARY KEY,
			name       TEXT    NOT NULL,
			bars       INTEGER NOT NULL,
			params     TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS datasets_created ON datasets (created_at);

		CREATE TABLE IF NOT EXISTS bars (
			dataset_id TEXT    NOT NULL,
			idx        INTEGER NOT NULL,
			label      TEXT    NOT NULL,
			open       REAL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			PRIMARY KEY (dataset_id, idx)
		);
	`)
	return err
}

// Save stores a series with the parameters in force and returns its
// metadata. Bars are inserted in one transaction.
func (s *DatasetStore) Save(ctx context.Context, name string, series *model.PriceSeries, ps model.ParamSet) (Dataset, error) {
	if series.Len() == 0 {
		return Dataset{}, &model.ValidationError{Reason: "refusing to store an empty series", Err: model.ErrEmptyInput}
	}
	params, err := json.Marshal(ps)
	if err != nil {
		return Dataset{}, fmt.Errorf("marshal params: %w", err)
	}

	ds := Dataset{
		ID:        uuid.NewString(),
		Name:      name,
		Bars:      series.Len(),
		CreatedAt: s.now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Dataset{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO datasets (id, name, bars, params, created_at) VALUES (?, ?, ?, ?, ?)`,
		ds.ID, ds.Name, ds.Bars, string(params), ds.CreatedAt.UnixNano(),
	); err != nil {
		return Dataset{}, fmt.Errorf("sqlite insert dataset: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (dataset_id, idx, label, open, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return Dataset{}, err
	}
	defer stmt.Close()

	for i := 0; i < series.Len(); i++ {
		b := series.Bar(i)
		var open sql.NullFloat64
		if b.Open != nil {
			open = sql.NullFloat64{Float64: *b.Open, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, ds.ID, i, b.Label, open, b.High, b.Low, b.Close); err != nil {
			return Dataset{}, fmt.Errorf("sqlite insert bar %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

// SaveParams records the parameters last used with a dataset.
func (s *DatasetStore) SaveParams(ctx context.Context, id string, ps model.ParamSet) error {
	params, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE datasets SET params = ? WHERE id = ?`, string(params), id)
	if err != nil {
		return fmt.Errorf("sqlite update params: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dataset %s: %w", id, ErrNotFound)
	}
	return nil
}

// Prune deletes all but the keep most recent datasets and returns how
// many were removed.
func (s *DatasetStore) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 1 {
		return 0, fmt.Errorf("prune: keep must be >= 1, got %d", keep)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	const stale = `SELECT id FROM datasets ORDER BY created_at DESC, rowid DESC LIMIT -1 OFFSET ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM bars WHERE dataset_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("sqlite prune bars: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("sqlite prune datasets: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("[sqlite] pruned %d datasets (keeping %d)", n, keep)
	}
	return int(n), nil
}

// Close closes the database.
func (s *DatasetStore) Close() error {
	return s.db.Close()
}
