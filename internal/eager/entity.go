package eager

import (
	"eagerload/pkg/utils/coerce"
)

// Entity is one hydrated row that relations can be attached to.
type Entity interface {
	Field(name string) (any, bool)
	SetField(name string, value any)
}

// Record is the map-backed Entity the bundled stores hydrate into.
type Record map[string]any

func (r Record) Field(name string) (any, bool) {
	v, ok := r[name]
	return v, ok
}

func (r Record) SetField(name string, value any) {
	r[name] = value
}

// isNil reports a nil Entity, including a typed nil Record, which can be
// read but not written.
func isNil(e Entity) bool {
	if e == nil {
		return true
	}
	r, ok := e.(Record)
	return ok && r == nil
}

// Subject is what a level of the tree holds: either One entity or Many.
// The interface is sealed; One and Many are the only implementations.
type Subject interface {
	IsEmpty() bool
	Len() int
	Entities() []Entity
	Each(fn func(Entity) error) error
	emptyOf() Subject
}

// One wraps a single, possibly nil, entity.
type One struct {
	Entity Entity
}

func (o One) IsEmpty() bool { return isNil(o.Entity) }

func (o One) Len() int {
	if isNil(o.Entity) {
		return 0
	}
	return 1
}

func (o One) Entities() []Entity {
	if isNil(o.Entity) {
		return nil
	}
	return []Entity{o.Entity}
}

func (o One) Each(fn func(Entity) error) error {
	if isNil(o.Entity) {
		return nil
	}
	return fn(o.Entity)
}

func (o One) emptyOf() Subject { return One{} }

// Many is a homogeneous sequence of entities.
type Many []Entity

func (m Many) IsEmpty() bool { return len(m) == 0 }

func (m Many) Len() int { return len(m) }

func (m Many) Entities() []Entity { return m }

func (m Many) Each(fn func(Entity) error) error {
	for _, e := range m {
		if isNil(e) {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (m Many) emptyOf() Subject { return Many{} }

// Records wraps records as a Many subject.
func Records(rs ...Record) Many {
	out := make(Many, len(rs))
	for i, r := range rs {
		out[i] = r
	}
	return out
}

// Pluck returns the distinct, non-nil values of field across s, in first-seen
// order. Values are deduplicated by coerce.Key so 1 and int64(1) collapse.
func Pluck(s Subject, field string) []any {
	if s == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []any
	s.Each(func(e Entity) error {
		v, _ := e.Field(field)
		k, ok := coerce.Key(v)
		if !ok {
			return nil
		}
		if _, dup := seen[k]; dup {
			return nil
		}
		seen[k] = struct{}{}
		out = append(out, v)
		return nil
	})
	return out
}
