package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BhekumusaEric/apply4me-sub001/internal/opportunity"
	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
)

// EntityStore implements store.EntityRepository on SQLite.
type EntityStore struct {
	db *sql.DB
}

// Entities returns the entity store backed by d.
func (d *DB) Entities() *EntityStore { return &EntityStore{db: d.db} }

// Ping verifies the database handle is usable.
func (s *EntityStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// GetByKey loads the entity stored under key.
func (s *EntityStore) GetByKey(ctx context.Context, key opportunity.DedupKey) (opportunity.Entity, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM entities WHERE kind = ? AND name_key = ? AND scope_key = ?`,
		string(key.Kind), key.Name, key.Scope,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return opportunity.Entity{}, store.ErrNotFound
	}
	if err != nil {
		return opportunity.Entity{}, fmt.Errorf("get entity %s: %w", key, err)
	}
	return decodeEntity(raw)
}

// ListByScope returns every entity of kind within scope, oldest first.
func (s *EntityStore) ListByScope(ctx context.Context, kind opportunity.Kind, scope string) ([]opportunity.Entity, error) {
	return s.query(ctx, "list scope",
		`SELECT payload FROM entities WHERE kind = ? AND scope_key = ? ORDER BY created_at, id`,
		string(kind), scope,
	)
}

// Insert writes e unless its dedup key is already taken.
func (s *EntityStore) Insert(ctx context.Context, e opportunity.Entity) (bool, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("marshal entity: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (
			id, kind, name_key, scope_key, name, province_key,
			closes_at, deadline_status, payload, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (kind, name_key, scope_key) DO NOTHING`,
		e.ID, string(e.Key.Kind), e.Key.Name, e.Key.Scope, e.Name,
		opportunity.Normalize(e.Province), nullMillis(e.ClosesAt),
		string(e.DeadlineStatus), string(payload),
		millis(e.CreatedAt), millis(e.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert entity rows: %w", err)
	}
	return n == 1, nil
}

// Update rewrites the mutable columns of an existing entity.
func (s *EntityStore) Update(ctx context.Context, e opportunity.Entity) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE entities
		SET name = ?, province_key = ?, closes_at = ?, deadline_status = ?, payload = ?, updated_at = ?
		WHERE id = ?`,
		e.Name, opportunity.Normalize(e.Province), nullMillis(e.ClosesAt),
		string(e.DeadlineStatus), string(payload), millis(e.UpdatedAt), e.ID,
	)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// List returns entities matching filter ordered by creation time.
func (s *EntityStore) List(ctx context.Context, filter store.EntityFilter) ([]opportunity.Entity, error) {
	kind := string(filter.Kind)
	province := opportunity.Normalize(filter.Province)
	rows, err := s.query(ctx, "list entities",
		`SELECT payload FROM entities
		WHERE (? = '' OR kind = ?) AND (? = '' OR province_key = ?)
		ORDER BY created_at, id`,
		kind, kind, province, province,
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
	return s.query(ctx, "list closing",
		`SELECT payload FROM entities
		WHERE closes_at BETWEEN ? AND ?
		ORDER BY closes_at, created_at, id`,
		millis(from), millis(to),
	)
}

// ListCreatedSince returns entities created at or after since.
func (s *EntityStore) ListCreatedSince(ctx context.Context, since time.Time) ([]opportunity.Entity, error) {
	return s.query(ctx, "list created",
		`SELECT payload FROM entities WHERE created_at >= ? ORDER BY created_at, id`,
		millis(since),
	)
}

// Delete removes the given ids.
func (s *EntityStore) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	res, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete entities: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete entities rows: %w", err)
	}
	return int(n), nil
}

func (s *EntityStore) query(ctx context.Context, op, query string, args ...any) ([]opportunity.Entity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []opportunity.Entity
	for rows.Next() {
		var raw string
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

func decodeEntity(raw string) (opportunity.Entity, error) {
	var e opportunity.Entity
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return opportunity.Entity{}, fmt.Errorf("decode entity payload: %w", err)
	}
	return e, nil
}
