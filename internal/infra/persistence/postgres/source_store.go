package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webhookhub/webhookhub/errs"
	"github.com/webhookhub/webhookhub/internal/domain/relay"
)

// SourceStore persists webhook sources.
type SourceStore struct {
	pool *pgxpool.Pool
}

// NewSourceStore constructs a SourceStore backed by the provided pool.
func NewSourceStore(pool *pgxpool.Pool) *SourceStore {
	return &SourceStore{pool: pool}
}

const (
	sourceInsertSQL = `
INSERT INTO sources (id, name, hmac_secret, active, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, name, hmac_secret, active, created_at;
`

	sourceGetByNameSQL = `
SELECT id, name, hmac_secret, active, created_at
FROM sources
WHERE name = $1;
`

	sourceListSQL = `
SELECT id, name, hmac_secret, active, created_at
FROM sources
ORDER BY created_at DESC;
`
)

// Create inserts a new source. A name collision surfaces as a conflict error.
func (s *SourceStore) Create(ctx context.Context, src relay.Source) (relay.Source, error) {
	if s.pool == nil {
		return relay.Source{}, fmt.Errorf("source store: nil pool")
	}
	name := strings.TrimSpace(src.Name)
	if err := relay.ValidateName(name); err != nil {
		return relay.Source{}, errs.New("source store", errs.CodeInvalid, errs.WithCause(err))
	}
	row := s.pool.QueryRow(ctx, sourceInsertSQL, src.ID, name, src.HMACSecret, src.Active, src.CreatedAt)
	created, err := scanSource(row)
	if err != nil {
		if isUniqueViolation(err, "sources_name_key") {
			return relay.Source{}, errs.New("source store", errs.CodeConflict,
				errs.WithMessage("source name already registered"), errs.WithField("name", name))
		}
		return relay.Source{}, fmt.Errorf("source store: insert: %w", err)
	}
	return created, nil
}

// GetByName loads a source by its unique name.
func (s *SourceStore) GetByName(ctx context.Context, name string) (relay.Source, bool, error) {
	if s.pool == nil {
		return relay.Source{}, false, fmt.Errorf("source store: nil pool")
	}
	row := s.pool.QueryRow(ctx, sourceGetByNameSQL, name)
	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return relay.Source{}, false, nil
		}
		return relay.Source{}, false, fmt.Errorf("source store: get by name: %w", err)
	}
	return src, true, nil
}

// List returns all sources, newest first.
func (s *SourceStore) List(ctx context.Context) ([]relay.Source, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("source store: nil pool")
	}
	rows, err := s.pool.Query(ctx, sourceListSQL)
	if err != nil {
		return nil, fmt.Errorf("source store: list: %w", err)
	}
	defer rows.Close()

	var sources []relay.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("source store: scan: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source store: iterate: %w", err)
	}
	return sources, nil
}

func scanSource(row rowScanner) (relay.Source, error) {
	var src relay.Source
	if err := row.Scan(&src.ID, &src.Name, &src.HMACSecret, &src.Active, &src.CreatedAt); err != nil {
		return relay.Source{}, err
	}
	return src, nil
}
