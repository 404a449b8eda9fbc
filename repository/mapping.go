package repository

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/uptrace/bun"
)

// Kind is the storage type of a column, used to coerce filter values.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindFloat
	KindBool
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Column binds one domain model field to one schema column.
type Column[M, S any] struct {
	// Name is the column name as declared on the schema.
	Name string
	Kind Kind
	// Generated columns are always written on insert; the schema's hooks fill them.
	Generated bool
	// Touch columns are written on every non-empty update.
	Touch bool
	// IsSet reports whether the model carries an explicit value for the field.
	IsSet func(M) bool
	// IsNull reports an explicit null. Create drops such fields; Update
	// writes them, clearing the column. Optional.
	IsNull func(M) bool
	// Apply copies the field from the model into the schema row.
	Apply func(dst *S, src M)
}

// Mapping declares the domain model <-> persistence schema pair for an entity.
type Mapping[M, S any] struct {
	Entity     string
	PrimaryKey string
	Columns    []Column[M, S]
	// Relations maps public relation names to relation fields on the schema.
	Relations map[string]string
	ToModel   func(*S) M
}

// Field describes a filterable attribute.
type Field struct {
	Name string
	Kind Kind
}

// Registry is the validated set of attributes filters may reference.
type Registry struct {
	fields map[string]Field
}

// NewRegistry builds a registry from fields. Later duplicates win.
func NewRegistry(fields ...Field) *Registry {
	r := &Registry{fields: make(map[string]Field, len(fields))}
	for _, f := range fields {
		r.fields[f.Name] = f
	}
	return r
}

// Lookup returns the field registered under name.
func (r *Registry) Lookup(name string) (Field, bool) {
	f, ok := r.fields[name]
	return f, ok
}

// Names returns the registered attribute names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.fields))
	for name := range r.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry returns the filter registry for the mapped columns.
func (m Mapping[M, S]) Registry() *Registry {
	fields := make([]Field, 0, len(m.Columns))
	for _, c := range m.Columns {
		fields = append(fields, Field{Name: c.Name, Kind: c.Kind})
	}
	return NewRegistry(fields...)
}

// Validate checks the mapping against the schema table bun derives for S.
// Mapped columns must be exactly the table's columns, the primary key must be
// mapped, and declared relations must exist on the schema.
func (m Mapping[M, S]) Validate(db *bun.DB) error {
	entity := m.Entity
	if entity == "" {
		return invalidMappingError(reflect.TypeFor[M]().Name(), "entity name is required")
	}
	if m.ToModel == nil {
		return invalidMappingError(entity, "ToModel is required")
	}

	seen := make(map[string]struct{}, len(m.Columns))
	for _, c := range m.Columns {
		if c.Name == "" {
			return invalidMappingError(entity, "column with empty name")
		}
		if _, dup := seen[c.Name]; dup {
			return invalidMappingError(entity, "duplicate column "+c.Name)
		}
		if c.IsSet == nil || c.Apply == nil {
			return invalidMappingError(entity, "column "+c.Name+" needs IsSet and Apply")
		}
		seen[c.Name] = struct{}{}
	}
	if _, ok := seen[m.PrimaryKey]; !ok {
		return invalidMappingError(entity, "primary key "+m.PrimaryKey+" is not mapped")
	}

	table := db.Table(reflect.TypeFor[S]())

	var missing []string
	for _, f := range table.Fields {
		if _, ok := seen[f.Name]; !ok {
			missing = append(missing, f.Name)
		}
		delete(seen, f.Name)
	}
	if len(missing) > 0 {
		return invalidMappingError(entity, "schema columns not mapped: "+strings.Join(missing, ", "))
	}
	if len(seen) > 0 {
		extra := make([]string, 0, len(seen))
		for name := range seen {
			extra = append(extra, name)
		}
		sort.Strings(extra)
		return invalidMappingError(entity, "mapped columns not on schema: "+strings.Join(extra, ", "))
	}

	for name, rel := range m.Relations {
		if _, ok := table.Relations[rel]; !ok {
			return invalidMappingError(entity, fmt.Sprintf("relation %s (%s) not declared on schema", name, rel))
		}
	}
	return nil
}

type writeMode int

const (
	forInsert writeMode = iota
	forUpdate
)

// assign copies the set fields of src into dst and returns the columns written.
func (m Mapping[M, S]) assign(dst *S, src M, mode writeMode) []string {
	cols := make([]string, 0, len(m.Columns))
	for _, c := range m.Columns {
		if mode == forUpdate && c.Name == m.PrimaryKey {
			continue
		}
		if c.IsSet(src) && !(mode == forInsert && c.IsNull != nil && c.IsNull(src)) {
			c.Apply(dst, src)
			cols = append(cols, c.Name)
			continue
		}
		if mode == forInsert && c.Generated {
			cols = append(cols, c.Name)
		}
	}
	if mode == forUpdate && len(cols) > 0 {
		for _, c := range m.Columns {
			if c.Touch && !slices.Contains(cols, c.Name) {
				cols = append(cols, c.Name)
			}
		}
	}
	return cols
}
