// Package validation checks request payloads against the schema registry
// before anything touches the database. Failures come back as a map of
// field-level messages, mirroring the upstream per-entity schemas.
package validation

import (
	"github.com/preparatoire/gpf/internal/schema"
)

// Violations maps a field name to a human-readable rejection message.
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// managed columns are server-side only and may not appear in payloads.
var managed = map[string]bool{"id": true, "created_at": true, "updated_at": true}

// Validate checks payload against the entity definition. With partial set
// (PUT), required-field presence is not enforced and only the provided
// keys are checked; nested relation arrays are accepted on create only.
func Validate(e *schema.Entity, payload map[string]any, partial bool) Violations {
	v := Violations{}

	if !partial {
		for _, f := range e.Fields {
			if !f.Required {
				continue
			}
			val, present := payload[f.Name]
			if !present || val == nil {
				v[f.Name] = "is required"
			}
		}
	}

	for key, val := range payload {
		if managed[key] {
			v[key] = "is managed by the server"
			continue
		}
		if f := e.Field(key); f != nil {
			if val == nil {
				if !f.Nullable && f.Required {
					v[key] = "must not be null"
				}
				continue
			}
			if _, err := schema.Coerce(f, val); err != nil {
				v[key] = "must be a " + f.Kind.String()
			}
			continue
		}
		if rel := e.Relation(key); rel != nil {
			if partial {
				v[key] = "nested writes are only allowed on create"
				continue
			}
			if rel.Cardinality != schema.HasMany {
				v[key] = "is not a nested-create relation"
				continue
			}
			if _, ok := val.([]any); !ok && val != nil {
				v[key] = "must be an array"
			}
			continue
		}
		v[key] = "is not a known field"
	}

	return v
}
