package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webhookhub/webhookhub/errs"
	"github.com/webhookhub/webhookhub/internal/domain/relay"
)

// DestinationStore persists destinations and their routing rules.
type DestinationStore struct {
	pool *pgxpool.Pool
}

// NewDestinationStore constructs a DestinationStore backed by the provided pool.
func NewDestinationStore(pool *pgxpool.Pool) *DestinationStore {
	return &DestinationStore{pool: pool}
}

const (
	destinationInsertSQL = `
INSERT INTO destinations (id, name, target_url, active, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, name, target_url, active, created_at;
`

	destinationRuleInsertSQL = `
INSERT INTO destination_rules (id, destination_id, source_name, event_type)
VALUES ($1, $2, $3, $4)
RETURNING id, destination_id, source_name, event_type;
`

	destinationListSQL = `
SELECT id, name, target_url, active, created_at
FROM destinations
ORDER BY created_at DESC;
`

	destinationRulesForSQL = `
SELECT id, destination_id, source_name, event_type
FROM destination_rules
WHERE destination_id = ANY($1::uuid[])
ORDER BY destination_id;
`
)

// Create inserts a destination and its initial rule set in one transaction.
// A destination must carry at least one rule.
func (s *DestinationStore) Create(ctx context.Context, dst relay.Destination) (relay.Destination, error) {
	if s.pool == nil {
		return relay.Destination{}, fmt.Errorf("destination store: nil pool")
	}
	name := strings.TrimSpace(dst.Name)
	if err := relay.ValidateName(name); err != nil {
		return relay.Destination{}, errs.New("destination store", errs.CodeInvalid, errs.WithCause(err))
	}
	if err := relay.ValidateTargetURL(dst.TargetURL); err != nil {
		return relay.Destination{}, errs.New("destination store", errs.CodeInvalid, errs.WithCause(err))
	}
	if len(dst.Rules) == 0 {
		return relay.Destination{}, errs.New("destination store", errs.CodeInvalid,
			errs.WithMessage("destination requires at least one rule"))
	}
	for _, rule := range dst.Rules {
		if err := relay.ValidateRule(rule); err != nil {
			return relay.Destination{}, errs.New("destination store", errs.CodeInvalid, errs.WithCause(err))
		}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return relay.Destination{}, fmt.Errorf("destination store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, destinationInsertSQL, dst.ID, name, dst.TargetURL, dst.Active, dst.CreatedAt)
	created, err := scanDestination(row)
	if err != nil {
		return relay.Destination{}, fmt.Errorf("destination store: insert: %w", err)
	}
	created.Rules = make([]relay.DestinationRule, 0, len(dst.Rules))
	for _, rule := range dst.Rules {
		ruleRow := tx.QueryRow(ctx, destinationRuleInsertSQL, rule.ID, created.ID, rule.SourceName, rule.EventType)
		inserted, err := scanDestinationRule(ruleRow)
		if err != nil {
			return relay.Destination{}, fmt.Errorf("destination store: insert rule: %w", err)
		}
		created.Rules = append(created.Rules, inserted)
	}
	if err := tx.Commit(ctx); err != nil {
		return relay.Destination{}, fmt.Errorf("destination store: commit: %w", err)
	}
	return created, nil
}

// AppendRule attaches an additional selector to an existing destination.
func (s *DestinationStore) AppendRule(ctx context.Context, rule relay.DestinationRule) (relay.DestinationRule, error) {
	if s.pool == nil {
		return relay.DestinationRule{}, fmt.Errorf("destination store: nil pool")
	}
	if err := relay.ValidateRule(rule); err != nil {
		return relay.DestinationRule{}, errs.New("destination store", errs.CodeInvalid, errs.WithCause(err))
	}
	row := s.pool.QueryRow(ctx, destinationRuleInsertSQL, rule.ID, rule.DestinationID, rule.SourceName, rule.EventType)
	inserted, err := scanDestinationRule(row)
	if err != nil {
		return relay.DestinationRule{}, fmt.Errorf("destination store: append rule: %w", err)
	}
	return inserted, nil
}

// List returns all destinations with their rules, newest first.
func (s *DestinationStore) List(ctx context.Context) ([]relay.Destination, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("destination store: nil pool")
	}
	rows, err := s.pool.Query(ctx, destinationListSQL)
	if err != nil {
		return nil, fmt.Errorf("destination store: list: %w", err)
	}
	defer rows.Close()

	var destinations []relay.Destination
	index := make(map[uuid.UUID]int)
	ids := make([]uuid.UUID, 0, 8)
	for rows.Next() {
		dst, err := scanDestination(rows)
		if err != nil {
			return nil, fmt.Errorf("destination store: scan: %w", err)
		}
		index[dst.ID] = len(destinations)
		ids = append(ids, dst.ID)
		destinations = append(destinations, dst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("destination store: iterate: %w", err)
	}
	if len(destinations) == 0 {
		return destinations, nil
	}

	ruleRows, err := s.pool.Query(ctx, destinationRulesForSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("destination store: list rules: %w", err)
	}
	defer ruleRows.Close()
	for ruleRows.Next() {
		rule, err := scanDestinationRule(ruleRows)
		if err != nil {
			return nil, fmt.Errorf("destination store: scan rule: %w", err)
		}
		if i, ok := index[rule.DestinationID]; ok {
			destinations[i].Rules = append(destinations[i].Rules, rule)
		}
	}
	if err := ruleRows.Err(); err != nil {
		return nil, fmt.Errorf("destination store: iterate rules: %w", err)
	}
	return destinations, nil
}

func scanDestination(row rowScanner) (relay.Destination, error) {
	var dst relay.Destination
	if err := row.Scan(&dst.ID, &dst.Name, &dst.TargetURL, &dst.Active, &dst.CreatedAt); err != nil {
		return relay.Destination{}, err
	}
	return dst, nil
}

func scanDestinationRule(row rowScanner) (relay.DestinationRule, error) {
	var rule relay.DestinationRule
	if err := row.Scan(&rule.ID, &rule.DestinationID, &rule.SourceName, &rule.EventType); err != nil {
		return relay.DestinationRule{}, err
	}
	return rule, nil
}
