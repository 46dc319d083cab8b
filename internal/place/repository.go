package place

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for place persistence operations.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Place, error)
	FindAccountIDForPlace(ctx context.Context, id string) (string, error)
	List(ctx context.Context) ([]Place, error)
	Create(ctx context.Context, p *Place) error
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed place repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// FindByID returns a single place by ID.
func (r *SQLiteRepository) FindByID(ctx context.Context, id string) (*Place, error) {
	const query = `SELECT id, account_id, name, population, tz, created_at, updated_at
		FROM places WHERE id = ?`
	var (
		p                    Place
		tz                   sql.NullString
		createdAt, updatedAt string
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.AccountID, &p.Name, &p.Population, &tz, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlaceNotFound
		}
		return nil, fmt.Errorf("querying place %s: %w", id, err)
	}
	p.TimeZone = tz.String
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// FindAccountIDForPlace returns the account owning the place.
func (r *SQLiteRepository) FindAccountIDForPlace(ctx context.Context, id string) (string, error) {
	const query = `SELECT account_id FROM places WHERE id = ?`
	var accountID string
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrPlaceNotFound
		}
		return "", fmt.Errorf("querying account for place %s: %w", id, err)
	}
	return accountID, nil
}

// List returns all places ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Place, error) {
	const query = `SELECT id, account_id, name, population, tz, created_at, updated_at
		FROM places ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying places: %w", err)
	}
	defer rows.Close()

	var places []Place
	for rows.Next() {
		var (
			p                    Place
			tz                   sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Name, &p.Population, &tz, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning place row: %w", err)
		}
		p.TimeZone = tz.String
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		places = append(places, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating place rows: %w", err)
	}
	return places, nil
}

// Create inserts a new place.
func (r *SQLiteRepository) Create(ctx context.Context, p *Place) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Population == "" {
		p.Population = DefaultPopulation
	}
	const query = `INSERT INTO places (id, account_id, name, population, tz)
		VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.AccountID, p.Name, p.Population, nullStr(p.TimeZone))
	if err != nil {
		return fmt.Errorf("inserting place %s: %w", p.ID, err)
	}
	return nil
}

// Delete removes a place.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM places WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting place %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return ErrPlaceNotFound
	}
	return nil
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// parseTime parses the strftime default used by the schema.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
