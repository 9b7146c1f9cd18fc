// Package store executes structured queries against MySQL. It is generic
// over the schema registry: one implementation serves every entity, with
// records passed around as maps keyed by column name.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/preparatoire/gpf/internal/query"
	"github.com/preparatoire/gpf/internal/schema"
)

// ErrNotFound is returned when a single-record lookup matches nothing
// visible under the caller's scope.
var ErrNotFound = errors.New("record not found")

// Record is one row, keyed by column name. Relation includes add nested
// Records / []Record under the relation name and counts under "_count".
type Record = map[string]any

// ListResult is the collection-endpoint response shape. TotalCount and
// Data always come from the same transaction.
type ListResult struct {
	TotalCount int64    `json:"totalCount"`
	Data       []Record `json:"data"`
}

// ScopeClause is an extra WHERE fragment injected by the authorization
// gate (tenant / ownership scoping). SQL uses ? placeholders.
type ScopeClause struct {
	SQL  string
	Args []any
}

// Store wraps the database pool. Transaction and pooling semantics are
// the driver's; the store adds no locking or retries of its own.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store { return &Store{db: db} }

// queryer is satisfied by both *sql.DB and *sql.Tx so relation loading
// can run inside or outside a transaction.
type queryer interface {
	QueryContext(ctx context.Context, q string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, q string, args ...any) *sql.Row
}

// FindMany runs the COUNT and the page SELECT inside one read
// transaction so totalCount stays consistent with the returned page even
// under concurrent writes.
func (s *Store) FindMany(ctx context.Context, e *schema.Entity, spec *query.Spec, scope []ScopeClause) (*ListResult, error) {
	cond, args := whereClause(spec.Conditions, spec.Search, scope)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM `%s` WHERE %s", e.Table, cond)
	if err := tx.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, err
	}

	dataSQL := fmt.Sprintf("SELECT %s FROM `%s` WHERE %s ORDER BY %s LIMIT ? OFFSET ?",
		columnList(e), e.Table, cond, orderClause(spec.Order))
	dataArgs := append(append([]any{}, args...), spec.Limit, spec.Offset)

	rows, err := tx.QueryContext(ctx, dataSQL, dataArgs...)
	if err != nil {
		return nil, err
	}
	recs, err := scanAll(e, rows)
	if err != nil {
		return nil, err
	}

	if err := loadIncludes(ctx, tx, e, recs, spec.Includes); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &ListResult{TotalCount: total, Data: recs}, nil
}

// FindFirst fetches one record by id under the given scope. A row that
// exists but falls outside the scope is indistinguishable from a missing
// one: both return ErrNotFound.
func (s *Store) FindFirst(ctx context.Context, e *schema.Entity, id string, includes []query.Include, scope []ScopeClause) (Record, error) {
	cond, args := whereClause([]query.Condition{{Field: "id", Op: query.OpEq, Value: id}}, nil, scope)
	q := fmt.Sprintf("SELECT %s FROM `%s` WHERE %s LIMIT 1", columnList(e), e.Table, cond)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	recs, err := scanAll(e, rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	if err := loadIncludes(ctx, s.db, e, recs[:1], includes); err != nil {
		return nil, err
	}
	return recs[0], nil
}

// Create inserts the parent row and any nested children (non-empty
// has-many arrays in the payload) in a single transaction. Empty or
// absent relation keys produce no child writes at all.
func (s *Store) Create(ctx context.Context, e *schema.Entity, payload map[string]any) (Record, error) {
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertRow(ctx, tx, e, id, payload); err != nil {
		return nil, err
	}

	for _, rel := range e.Relations {
		if rel.Cardinality != schema.HasMany {
			continue
		}
		children, ok := payload[rel.Name].([]any)
		if !ok || len(children) == 0 {
			continue
		}
		// The child's FK takes the parent's reference value, which is the
		// fresh id unless the relation joins on a business column.
		ref := any(id)
		if rel.Reference != "id" {
			ref = payload[rel.Reference]
		}
		target, _ := schema.Get(rel.Target)
		for _, raw := range children {
			child, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s: nested %s entries must be objects", e.Name, rel.Name)
			}
			child[rel.ForeignKey] = ref
			if err := insertRow(ctx, tx, target, uuid.NewString(), child); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.FindFirst(ctx, e, id, nil, nil)
}

// Update applies a partial merge: only the scalar fields present in the
// payload are written, plus updated_at. The fresh row is re-read after
// the write.
func (s *Store) Update(ctx context.Context, e *schema.Entity, id string, payload map[string]any) (Record, error) {
	sets := []string{"`updated_at` = ?"}
	args := []any{time.Now().UTC()}

	for _, f := range e.Fields {
		if f.Name == "id" || f.Name == "created_at" || f.Name == "updated_at" {
			continue
		}
		raw, present := payload[f.Name]
		if !present {
			continue
		}
		v, err := schema.Coerce(&f, raw)
		if err != nil {
			return nil, err
		}
		sets = append(sets, fmt.Sprintf("`%s` = ?", f.Name))
		args = append(args, v)
	}

	q := fmt.Sprintf("UPDATE `%s` SET %s WHERE `id` = ?", e.Table, strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, q, append(args, id)...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// RowsAffected is 0 both for a missing row and for a no-op write;
		// distinguish by re-reading below.
		if _, err := s.FindFirst(ctx, e, id, nil, nil); err != nil {
			return nil, err
		}
	}
	return s.FindFirst(ctx, e, id, nil, nil)
}

// Delete hard-deletes the row and returns it as it was, matching the
// upstream behavior of responding with the removed record.
func (s *Store) Delete(ctx context.Context, e *schema.Entity, id string) (Record, error) {
	rec, err := s.FindFirst(ctx, e, id, nil, nil)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("DELETE FROM `%s` WHERE `id` = ?", e.Table)
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return nil, err
	}
	return rec, nil
}

// insertRow writes one row with server-side id and timestamps. Relation
// keys in the payload are skipped; callers handle nesting.
func insertRow(ctx context.Context, tx *sql.Tx, e *schema.Entity, id string, payload map[string]any) error {
	now := time.Now().UTC()
	cols := []string{"`id`", "`created_at`", "`updated_at`"}
	args := []any{id, now, now}

	for _, f := range e.Fields {
		if f.Name == "id" || f.Name == "created_at" || f.Name == "updated_at" {
			continue
		}
		raw, present := payload[f.Name]
		if !present || raw == nil {
			continue
		}
		v, err := schema.Coerce(&f, raw)
		if err != nil {
			return err
		}
		cols = append(cols, fmt.Sprintf("`%s`", f.Name))
		args = append(args, v)
	}

	q := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES (%s)",
		e.Table, strings.Join(cols, ", "), placeholders(len(cols)))
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
