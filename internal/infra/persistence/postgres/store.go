// Package postgres implements the WebhookHub persistence store on PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webhookhub/webhookhub/internal/domain/relay"
)

// Store aggregates the PostgreSQL-backed repositories behind one pool.
type Store struct {
	pool         *pgxpool.Pool
	Sources      *SourceStore
	Destinations *DestinationStore
	Events       *EventStore
	Deliveries   *DeliveryStore
	Capture      *CaptureStore
}

// New constructs a PostgreSQL persistence store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:         pool,
		Sources:      NewSourceStore(pool),
		Destinations: NewDestinationStore(pool),
		Events:       NewEventStore(pool),
		Deliveries:   NewDeliveryStore(pool),
		Capture:      NewCaptureStore(pool),
	}
}

// Pool exposes the underlying pgx pool.
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// NewPool dials a bounded pgx pool and verifies connectivity.
func NewPool(ctx context.Context, dsn string, maxConns int32, connectTimeout time.Duration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if connectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = connectTimeout
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

var (
	_ relay.SourceStore      = (*SourceStore)(nil)
	_ relay.DestinationStore = (*DestinationStore)(nil)
	_ relay.EventStore       = (*EventStore)(nil)
	_ relay.DeliveryStore    = (*DeliveryStore)(nil)
	_ relay.CaptureStore     = (*CaptureStore)(nil)
)
