// Package query turns the raw query-string representation of a list or
// fetch request into a structured query the store can execute. Translate
// is a pure function of its inputs and carries no request state.
package query

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/preparatoire/gpf/internal/apperr"
	"github.com/preparatoire/gpf/internal/schema"
)

// Operator suffixes accepted on filter parameters.
type Op string

const (
	OpEq       Op = "eq"
	OpContains Op = "contains"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
)

// Condition is one field predicate. Value is already coerced to the
// field's kind.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// SortKey is one ordering directive.
type SortKey struct {
	Field string
	Desc  bool
}

// Include requests eager loading of one relation, or just its row count
// when CountOnly is set (the `.count` suffix).
type Include struct {
	Relation  string
	CountOnly bool
}

// Spec is the structured form of a list/fetch request: filters, an
// OR-group of search conditions, relation includes, pagination and
// ordering. Zero values for Search/Includes/Conditions simply mean
// "absent".
type Spec struct {
	Conditions []Condition
	Search     []Condition
	Includes   []Include
	Limit      int
	Offset     int
	Order      []SortKey
}

const (
	DefaultLimit  = 20
	DefaultOffset = 0
)

// parameters with reserved meaning; everything else is a field filter.
var reserved = map[string]bool{
	"limit":          true,
	"offset":         true,
	"order":          true,
	"searchTerm":     true,
	"searchTermKeys": true,
	"relations":      true,
}

type orderEntry struct {
	ID   string `json:"id"`
	Desc bool   `json:"desc"`
}

// Translate converts raw query parameters for the given entity into a
// Spec. Unknown fields, bad operators and un-coercible filter values are
// validation errors; malformed limit/offset fall back to their defaults.
func Translate(values url.Values, e *schema.Entity) (*Spec, error) {
	spec := &Spec{
		Limit:  intOrDefault(values.Get("limit"), DefaultLimit),
		Offset: intOrDefault(values.Get("offset"), DefaultOffset),
	}

	violations := map[string]string{}

	if raw := values.Get("order"); raw != "" {
		var entries []orderEntry
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			violations["order"] = "must be a JSON list of {id, desc}"
		} else {
			for _, o := range entries {
				if e.Field(o.ID) == nil {
					violations["order"] = fmt.Sprintf("unknown sort field %q", o.ID)
					break
				}
				spec.Order = append(spec.Order, SortKey{Field: o.ID, Desc: o.Desc})
			}
		}
	}
	if len(spec.Order) == 0 {
		spec.Order = []SortKey{{Field: "created_at", Desc: true}}
	}

	for _, rel := range listParam(values, "relations") {
		name, countOnly := strings.CutSuffix(rel, ".count")
		r := e.Relation(name)
		if r == nil {
			violations["relations"] = fmt.Sprintf("unknown relation %q", name)
			continue
		}
		if countOnly && r.Cardinality != schema.HasMany {
			violations["relations"] = fmt.Sprintf("%q is not countable", name)
			continue
		}
		spec.Includes = append(spec.Includes, Include{Relation: name, CountOnly: countOnly})
	}

	if term := values.Get("searchTerm"); term != "" {
		for _, key := range listParam(values, "searchTermKeys") {
			field, ok := strings.CutSuffix(key, ".contains")
			if !ok {
				violations["searchTermKeys"] = fmt.Sprintf("%q must use the .contains form", key)
				continue
			}
			f := e.Field(field)
			if f == nil || f.Kind != schema.String {
				violations["searchTermKeys"] = fmt.Sprintf("unknown search field %q", field)
				continue
			}
			spec.Search = append(spec.Search, Condition{Field: field, Op: OpContains, Value: term})
		}
	}

	for key, vals := range values {
		if reserved[key] || len(vals) == 0 {
			continue
		}
		cond, err := parseFilter(e, key, vals[0])
		if err != nil {
			violations[key] = err.Error()
			continue
		}
		spec.Conditions = append(spec.Conditions, *cond)
	}

	if len(violations) > 0 {
		return nil, &apperr.ValidationError{Violations: violations}
	}
	return spec, nil
}

// parseFilter handles both bare equality (`sex=F`) and operator-suffixed
// (`total_price.gte=10`) parameters. Filtering is only supported on the
// entity's own scalar fields, never across relations.
func parseFilter(e *schema.Entity, key, raw string) (*Condition, error) {
	field, op := key, OpEq
	if i := strings.LastIndex(key, "."); i > 0 {
		switch Op(key[i+1:]) {
		case OpContains, OpGt, OpGte, OpLt, OpLte:
			field, op = key[:i], Op(key[i+1:])
		}
	}

	f := e.Field(field)
	if f == nil {
		if e.Relation(field) != nil {
			return nil, fmt.Errorf("filtering on relation %q is not supported", field)
		}
		return nil, fmt.Errorf("unknown field %q", field)
	}

	switch op {
	case OpContains:
		if f.Kind != schema.String {
			return nil, fmt.Errorf("contains requires a string field")
		}
		return &Condition{Field: field, Op: op, Value: raw}, nil
	case OpGt, OpGte, OpLt, OpLte:
		if f.Kind != schema.Float && f.Kind != schema.Time {
			return nil, fmt.Errorf("%s requires a number or date field", op)
		}
	}

	v, err := schema.Coerce(f, raw)
	if err != nil {
		return nil, fmt.Errorf("must be a %s", f.Kind)
	}
	return &Condition{Field: field, Op: op, Value: v}, nil
}

// listParam accepts both repeated parameters and one comma-separated
// value, which is how the client SDK serializes string arrays.
func listParam(values url.Values, key string) []string {
	var out []string
	for _, raw := range values[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// intOrDefault mirrors the permissive UI behavior: anything that is not a
// non-negative integer falls back to the default instead of erroring.
func intOrDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
