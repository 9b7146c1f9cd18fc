package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/preparatoire/gpf/internal/query"
	"github.com/preparatoire/gpf/internal/schema"
)

// whereClause renders filters, the search OR-group and scope clauses as
// one AND-joined condition. "1=1" keeps the SQL well-formed when nothing
// filters.
func whereClause(conds []query.Condition, search []query.Condition, scope []ScopeClause) (string, []any) {
	var parts []string
	var args []any

	for _, c := range conds {
		sqlPart, arg := conditionSQL(c)
		parts = append(parts, sqlPart)
		args = append(args, arg)
	}

	if len(search) > 0 {
		var or []string
		for _, c := range search {
			sqlPart, arg := conditionSQL(c)
			or = append(or, sqlPart)
			args = append(args, arg)
		}
		parts = append(parts, "("+strings.Join(or, " OR ")+")")
	}

	for _, sc := range scope {
		parts = append(parts, sc.SQL)
		args = append(args, sc.Args...)
	}

	if len(parts) == 0 {
		return "1=1", nil
	}
	return strings.Join(parts, " AND "), args
}

func conditionSQL(c query.Condition) (string, any) {
	switch c.Op {
	case query.OpContains:
		return fmt.Sprintf("LOWER(`%s`) LIKE ?", c.Field),
			"%" + strings.ToLower(fmt.Sprintf("%v", c.Value)) + "%"
	case query.OpGt:
		return fmt.Sprintf("`%s` > ?", c.Field), c.Value
	case query.OpGte:
		return fmt.Sprintf("`%s` >= ?", c.Field), c.Value
	case query.OpLt:
		return fmt.Sprintf("`%s` < ?", c.Field), c.Value
	case query.OpLte:
		return fmt.Sprintf("`%s` <= ?", c.Field), c.Value
	default:
		return fmt.Sprintf("`%s` = ?", c.Field), c.Value
	}
}

func orderClause(keys []query.SortKey) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("`%s` %s", k.Field, dir))
	}
	return strings.Join(parts, ", ")
}

func columnList(e *schema.Entity) string {
	cols := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		cols[i] = "`" + f.Name + "`"
	}
	return strings.Join(cols, ", ")
}

// scanAll reads every row into a Record, converting NULLs to nil and
// driver values to the field's Go representation.
func scanAll(e *schema.Entity, rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		dests := make([]any, len(e.Fields))
		for i, f := range e.Fields {
			switch f.Kind {
			case schema.Bool:
				dests[i] = new(sql.NullBool)
			case schema.Float:
				dests[i] = new(sql.NullFloat64)
			case schema.Time:
				dests[i] = new(sql.NullTime)
			default:
				dests[i] = new(sql.NullString)
			}
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		rec := Record{}
		for i, f := range e.Fields {
			switch d := dests[i].(type) {
			case *sql.NullBool:
				if d.Valid {
					rec[f.Name] = d.Bool
				} else {
					rec[f.Name] = nil
				}
			case *sql.NullFloat64:
				if d.Valid {
					rec[f.Name] = d.Float64
				} else {
					rec[f.Name] = nil
				}
			case *sql.NullTime:
				if d.Valid {
					rec[f.Name] = d.Time
				} else {
					rec[f.Name] = nil
				}
			case *sql.NullString:
				if d.Valid {
					rec[f.Name] = d.String
				} else {
					rec[f.Name] = nil
				}
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// loadIncludes attaches requested relations to the records. BelongsTo
// resolves through the record's own foreign key; HasMany selects the
// target rows pointing back at the record; `.count` includes only add an
// entry under "_count", matching the upstream response shape.
func loadIncludes(ctx context.Context, q queryer, e *schema.Entity, recs []Record, includes []query.Include) error {
	for _, inc := range includes {
		rel := e.Relation(inc.Relation)
		if rel == nil {
			continue // translator already validated; stay defensive against direct callers
		}
		target, _ := schema.Get(rel.Target)
		for _, rec := range recs {
			if inc.CountOnly {
				if err := attachCount(ctx, q, rel, target, rec); err != nil {
					return err
				}
				continue
			}
			if err := attachRelation(ctx, q, rel, target, rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func attachRelation(ctx context.Context, q queryer, rel *schema.Relation, target *schema.Entity, rec Record) error {
	if rel.Cardinality == schema.BelongsTo {
		fk, ok := rec[rel.ForeignKey].(string)
		if !ok || fk == "" {
			rec[rel.Name] = nil
			return nil
		}
		sqlStr := fmt.Sprintf("SELECT %s FROM `%s` WHERE `%s` = ? LIMIT 1",
			columnList(target), target.Table, rel.Reference)
		rows, err := q.QueryContext(ctx, sqlStr, fk)
		if err != nil {
			return err
		}
		children, err := scanAll(target, rows)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			rec[rel.Name] = children[0]
		} else {
			rec[rel.Name] = nil
		}
		return nil
	}

	ref, ok := rec[rel.Reference].(string)
	if !ok || ref == "" {
		rec[rel.Name] = []Record{}
		return nil
	}
	sqlStr := fmt.Sprintf("SELECT %s FROM `%s` WHERE `%s` = ? ORDER BY `created_at` DESC",
		columnList(target), target.Table, rel.ForeignKey)
	rows, err := q.QueryContext(ctx, sqlStr, ref)
	if err != nil {
		return err
	}
	children, err := scanAll(target, rows)
	if err != nil {
		return err
	}
	rec[rel.Name] = children
	return nil
}

func attachCount(ctx context.Context, q queryer, rel *schema.Relation, target *schema.Entity, rec Record) error {
	if rel.Cardinality != schema.HasMany {
		return fmt.Errorf("count include requires a has-many relation, got %s", rel.Name)
	}
	ref, ok := rec[rel.Reference].(string)
	if !ok || ref == "" {
		counts, ok := rec["_count"].(map[string]int64)
		if !ok {
			counts = map[string]int64{}
			rec["_count"] = counts
		}
		counts[rel.Name] = 0
		return nil
	}
	var n int64
	sqlStr := fmt.Sprintf("SELECT COUNT(*) FROM `%s` WHERE `%s` = ?", target.Table, rel.ForeignKey)
	if err := q.QueryRowContext(ctx, sqlStr, ref).Scan(&n); err != nil {
		return err
	}
	counts, ok := rec["_count"].(map[string]int64)
	if !ok {
		counts = map[string]int64{}
		rec["_count"] = counts
	}
	counts[rel.Name] = n
	return nil
}
