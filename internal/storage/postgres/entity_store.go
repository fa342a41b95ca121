package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
)

// EntityStore implements store.EntityRepository on the entities table.
// The full entity lives in the payload column; the other columns exist for
// the unique dedup index and for range scans.
type EntityStore struct {
	pool Pool
}

// NewEntityStore constructs an EntityStore from an existing pool.
func NewEntityStore(pool Pool) (*EntityStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &EntityStore{pool: pool}, nil
}

// Ping verifies the database is reachable.
func (s *EntityStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// GetByKey loads the entity stored under key.
func (s *EntityStore) GetByKey(ctx context.Context, key opportunity.DedupKey) (opportunity.Entity, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT payload FROM entities
		WHERE kind = $1 AND name_key = $2 AND scope_key = $3`,
		string(key.Kind), key.Name, key.Scope,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return opportunity.Entity{}, store.ErrNotFound
	}
	if err != nil {
		return opportunity.Entity{}, fmt.Errorf("get entity %s: %w", key, err)
	}
	return decodeEntity(raw)
}

// ListByScope returns every entity of kind within scope, oldest first.
func (s *EntityStore) ListByScope(ctx context.Context, kind opportunity.Kind, scope string) ([]opportunity.Entity, error) {
	return s.query(ctx, "list scope", `
		SELECT payload FROM entities
		WHERE kind = $1 AND scope_key = $2
		ORDER BY created_at, id`,
		string(kind), scope,
	)
}

// Insert writes e unless its dedup key is already taken.
func (s *EntityStore) Insert(ctx context.Context, e opportunity.Entity) (bool, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("marshal entity: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO entities (
			id, kind, name_key, scope_key, name, province_key,
			closes_at, deadline_status, payload, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (kind, name_key, scope_key) DO NOTHING`,
		e.ID,
		string(e.Key.Kind),
		e.Key.Name,
		e.Key.Scope,
		e.Name,
		opportunity.Normalize(e.Province),
		e.ClosesAt,
		string(e.DeadlineStatus),
		payload,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert entity: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Update rewrites the mutable columns of an existing entity.
func (s *EntityStore) Update(ctx context.Context, e opportunity.Entity) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE entities
		SET name = $2, province_key = $3, closes_at = $4,
			deadline_status = $5, payload = $6, updated_at = $7
		WHERE id = $1`,
		e.ID,
		e.Name,
		opportunity.Normalize(e.Province),
		e.ClosesAt,
		string(e.DeadlineStatus),
		payload,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// List returns entities matching filter. Kind and province are pushed into
// SQL; the remaining conditions are applied to the decoded rows.
func (s *EntityStore) List(ctx context.Context, filter store.EntityFilter) ([]opportunity.Entity, error) {
	rows, err := s.query(ctx, "list entities", `
		SELECT payload FROM entities
		WHERE ($1 = '' OR kind = $1) AND ($2 = '' OR province_key = $2)
		ORDER BY created_at, id`,
		string(filter.Kind), opportunity.Normalize(filter.Province),
	)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, e := range rows {
		if !filter.Matches(e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// ListClosingBetween returns entities whose deadline is within [from, to].
func (s *EntityStore) ListClosingBetween(ctx context.Context, from, to time.Time) ([]opportunity.Entity, error) {
	return s.query(ctx, "list closing", `
		SELECT payload FROM entities
		WHERE closes_at BETWEEN $1 AND $2
		ORDER BY closes_at, created_at, id`,
		from, to,
	)
}

// ListCreatedSince returns entities created at or after since.
func (s *EntityStore) ListCreatedSince(ctx context.Context, since time.Time) ([]opportunity.Entity, error) {
	return s.query(ctx, "list created", `
		SELECT payload FROM entities
		WHERE created_at >= $1
		ORDER BY created_at, id`,
		since,
	)
}

// Delete removes the given ids.
func (s *EntityStore) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM entities WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete entities: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *EntityStore) query(ctx context.Context, op, sql string, args ...any) ([]opportunity.Entity, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []opportunity.Entity
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		e, err := decodeEntity(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func decodeEntity(raw []byte) (opportunity.Entity, error) {
	var e opportunity.Entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return opportunity.Entity{}, fmt.Errorf("decode entity payload: %w", err)
	}
	return e, nil
}
