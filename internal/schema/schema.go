// Package schema is the static entity registry. Each entity declares its
// scalar fields and its relations as explicit descriptors; the validation
// layer, the query translator and the store are all driven by these
// tables instead of per-entity code.
package schema

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Kind enumerates the primitive types a scalar field can hold.
type Kind int

const (
	String Kind = iota
	Bool
	Float
	Time
)

func (k Kind) String() string {
	switch k {
	case Bool:
		return "boolean"
	case Float:
		return "number"
	case Time:
		return "date"
	default:
		return "string"
	}
}

// Cardinality describes which side of a relation an entity is on.
type Cardinality int

const (
	// HasMany: the foreign key lives on the target entity and points back
	// at this entity's id.
	HasMany Cardinality = iota
	// BelongsTo: the foreign key is one of this entity's own columns and
	// points at the target entity's id.
	BelongsTo
)

// Field describes one scalar column of an entity.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	Nullable bool
}

// Relation is an explicit relation descriptor. Relation names are what
// clients pass in the `relations` query parameter; ForeignKey always
// names a column on the many side (see Cardinality). Reference names
// the column on the one side being pointed at, usually "id" but some
// upstream relations join on business columns like name_pharmacy.
type Relation struct {
	Name        string
	ForeignKey  string
	Target      string
	Reference   string
	Cardinality Cardinality
}

// Entity is one registered entity: its table, scalar fields and
// relations. The base columns id/created_at/updated_at are part of
// Fields for every entity.
type Entity struct {
	Name      string
	Table     string
	Fields    []Field
	Relations []Relation
}

// Field returns the scalar field with the given name, or nil.
func (e *Entity) Field(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// Relation returns the relation with the given name, or nil.
func (e *Entity) Relation(name string) *Relation {
	for i := range e.Relations {
		if e.Relations[i].Name == name {
			return &e.Relations[i]
		}
	}
	return nil
}

// Coerce converts a JSON- or query-decoded value into the Go type the
// field's kind expects. Strings are accepted for every kind since query
// parameters always arrive as text.
func Coerce(f *Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind {
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Bool:
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			b, err := strconv.ParseBool(t)
			if err == nil {
				return b, nil
			}
		}
	case Float:
		switch t := v.(type) {
		case float64:
			return t, nil
		case int:
			return float64(t), nil
		case string:
			n, err := strconv.ParseFloat(t, 64)
			if err == nil {
				return n, nil
			}
		}
	case Time:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
				if ts, err := time.Parse(layout, t); err == nil {
					return ts, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("field %s: expected %s", f.Name, f.Kind)
}

var registry = map[string]*Entity{}

// Get looks an entity up by name.
func Get(name string) (*Entity, bool) {
	e, ok := registry[name]
	return e, ok
}

// All returns every registered entity keyed by name.
func All() map[string]*Entity { return registry }

// register prepends the base columns and adds the entity to the registry.
// Table name equals entity name, matching the upstream schema.
func register(name string, fields []Field, relations []Relation) *Entity {
	base := []Field{
		{Name: "id", Kind: String},
		{Name: "created_at", Kind: Time},
		{Name: "updated_at", Kind: Time},
	}
	e := &Entity{
		Name:      name,
		Table:     name,
		Fields:    append(base, fields...),
		Relations: relations,
	}
	if _, dup := registry[name]; dup {
		panic("duplicate entity: " + name)
	}
	registry[name] = e
	return e
}

// req and opt are shorthands used by entities.go to keep the field tables
// readable.
func req(name string, k Kind) Field { return Field{Name: name, Kind: k, Required: true} }
func opt(name string, k Kind) Field { return Field{Name: name, Kind: k, Nullable: true} }

func hasMany(name, fk, target string) Relation {
	return Relation{Name: name, ForeignKey: fk, Target: target, Reference: "id", Cardinality: HasMany}
}

func belongsTo(name, fk, target string) Relation {
	return Relation{Name: name, ForeignKey: fk, Target: target, Reference: "id", Cardinality: BelongsTo}
}

// hasManyOn and belongsToOn declare relations that join on a column
// other than id, as several upstream relations do.
func hasManyOn(name, fk, target, ref string) Relation {
	return Relation{Name: name, ForeignKey: fk, Target: target, Reference: ref, Cardinality: HasMany}
}

func belongsToOn(name, fk, target, ref string) Relation {
	return Relation{Name: name, ForeignKey: fk, Target: target, Reference: ref, Cardinality: BelongsTo}
}

// validateRegistry is called from init in entities.go once all entities
// are registered; it panics on dangling relation descriptors so a broken
// registry cannot start serving.
func validateRegistry() {
	for _, e := range registry {
		for _, r := range e.Relations {
			target, ok := registry[r.Target]
			if !ok {
				panic(fmt.Sprintf("%s.%s: unknown target %s", e.Name, r.Name, r.Target))
			}
			many, one := e, target
			if r.Cardinality == HasMany {
				many, one = target, e
			}
			if many.Field(r.ForeignKey) == nil {
				panic(fmt.Sprintf("%s.%s: foreign key %s missing on %s",
					e.Name, r.Name, r.ForeignKey, many.Name))
			}
			if one.Field(r.Reference) == nil {
				panic(fmt.Sprintf("%s.%s: reference %s missing on %s",
					e.Name, r.Name, r.Reference, one.Name))
			}
		}
	}
}

// Names returns the sorted entity names; used by tests and diagnostics.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
