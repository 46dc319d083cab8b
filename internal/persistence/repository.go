package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
	"github.com/nerrad567/gray-logic-subsystems/internal/model"
)

// Repository defines the interface for model persistence operations.
type Repository interface {
	// LoadModelsByPlace returns every model of the given types in a place.
	LoadModelsByPlace(ctx context.Context, placeID string, types []string) ([]*model.Entity, error)

	// Save writes e and returns the modification timestamp recorded.
	// failed holds attributes from earlier unsuccessful saves; they are
	// merged beneath the entity's dirty attributes.
	Save(ctx context.Context, placeID string, e *model.Entity, failed map[string]any) (time.Time, error)

	// DeleteByAddress removes the row for addr. Deleting a missing row is not an error.
	DeleteByAddress(ctx context.Context, addr messaging.Address) error

	// FindByAddress returns a single stored model.
	FindByAddress(ctx context.Context, addr messaging.Address) (*model.Entity, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed model repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// LoadModelsByPlace returns every model of the given types in a place,
// ordered by address. An empty types slice loads nothing.
func (r *SQLiteRepository) LoadModelsByPlace(ctx context.Context, placeID string, types []string) ([]*model.Entity, error) {
	if len(types) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(types)+1)
	args = append(args, placeID)
	for _, t := range types {
		args = append(args, t)
	}
	query := `SELECT address, attributes, created_at, modified_at
		FROM models WHERE place_id = ? AND type IN (?` + strings.Repeat(", ?", len(types)-1) + `)
		ORDER BY address`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying models for place %s: %w", placeID, err)
	}
	defer rows.Close()

	var models []*model.Entity
	for rows.Next() {
		e, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		models = append(models, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating model rows: %w", err)
	}
	return models, nil
}

// FindByAddress returns the stored model at addr.
func (r *SQLiteRepository) FindByAddress(ctx context.Context, addr messaging.Address) (*model.Entity, error) {
	const query = `SELECT address, attributes, created_at, modified_at
		FROM models WHERE address = ?`
	e, err := scanModel(r.db.QueryRowContext(ctx, query, addr.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrModelNotFound
	}
	return e, err
}

// Save writes e. An entity that has never been persisted is written in
// full; otherwise the dirty attributes, over any previously failed ones,
// are merged into the stored row inside a transaction.
func (r *SQLiteRepository) Save(ctx context.Context, placeID string, e *model.Entity, failed map[string]any) (time.Time, error) {
	if placeID == "" {
		return time.Time{}, ErrMissingPlace
	}
	now := r.now()
	if !e.IsPersisted() {
		if err := r.upsert(ctx, r.db, placeID, e.Address(), e.Type(), e.Attributes(), now); err != nil {
			return time.Time{}, err
		}
		return now, nil
	}

	delta := maps.Clone(failed)
	if delta == nil {
		delta = make(map[string]any)
	}
	maps.Copy(delta, e.DirtyAttributes())

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT attributes FROM models WHERE address = ?`, e.Address().String()).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Row vanished underneath us; write the full state back.
		if err := r.upsert(ctx, tx, placeID, e.Address(), e.Type(), e.Attributes(), now); err != nil {
			return time.Time{}, err
		}
	case err != nil:
		return time.Time{}, fmt.Errorf("reading model %s: %w", e.Address(), err)
	default:
		stored := make(map[string]any)
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			return time.Time{}, fmt.Errorf("decoding model %s: %w", e.Address(), err)
		}
		for name, value := range delta {
			if value == nil {
				delete(stored, name)
				continue
			}
			stored[name] = value
		}
		b, err := json.Marshal(stored)
		if err != nil {
			return time.Time{}, fmt.Errorf("encoding model %s: %w", e.Address(), err)
		}
		const update = `UPDATE models SET attributes = ?, modified_at = ? WHERE address = ?`
		if _, err := tx.ExecContext(ctx, update, string(b), formatTime(now), e.Address().String()); err != nil {
			return time.Time{}, fmt.Errorf("updating model %s: %w", e.Address(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("committing model %s: %w", e.Address(), err)
	}
	return now, nil
}

// DeleteByAddress removes the row for addr.
func (r *SQLiteRepository) DeleteByAddress(ctx context.Context, addr messaging.Address) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM models WHERE address = ?`, addr.String()); err != nil {
		return fmt.Errorf("deleting model %s: %w", addr, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLiteRepository) upsert(ctx context.Context, db execer, placeID string, addr messaging.Address, modelType string, attrs map[string]any, now time.Time) error {
	b, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encoding model %s: %w", addr, err)
	}
	const query = `INSERT INTO models (address, place_id, type, attributes, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			place_id = excluded.place_id,
			type = excluded.type,
			attributes = excluded.attributes,
			modified_at = excluded.modified_at`
	ts := formatTime(now)
	if _, err := db.ExecContext(ctx, query, addr.String(), placeID, modelType, string(b), ts, ts); err != nil {
		return fmt.Errorf("inserting model %s: %w", addr, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(row rowScanner) (*model.Entity, error) {
	var address, raw, createdAt, modifiedAt string
	if err := row.Scan(&address, &raw, &createdAt, &modifiedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning model row: %w", err)
	}
	attrs := make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return nil, fmt.Errorf("decoding model %s: %w", address, err)
	}
	if _, ok := attrs[messaging.AttrAddress]; !ok {
		attrs[messaging.AttrAddress] = address
	}
	e, err := model.FromAttributes(attrs, parseTime(createdAt), parseTime(modifiedAt))
	if err != nil {
		return nil, fmt.Errorf("loading model %s: %w", address, err)
	}
	return e, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
