// Package relation describes how entity types are related and resolves a
// relation by owner type and name.
package relation

import (
	"errors"
	"fmt"
	"strings"

	"eagerload/pkg/fastjson"
)

// Kind is the shape of a relation.
type Kind string

const (
	OneToOne          Kind = "one_to_one"
	ManyToOne         Kind = "many_to_one"
	OneToMany         Kind = "one_to_many"
	ManyToManyThrough Kind = "many_to_many"
)

var (
	ErrUnsupportedKind = errors.New("unsupported relation type")
	ErrCompositeKey    = errors.New("relations with composite keys are not supported")
	ErrMissingKey      = errors.New("relation key column is not set")
)

// ToMany reports whether owners receive a list rather than a single entity.
func (k Kind) ToMany() bool {
	return k == OneToMany || k == ManyToManyThrough
}

// Columns is one or more key columns. In JSON it is either a string or an
// array of strings.
type Columns []string

func (c *Columns) UnmarshalJSON(data []byte) error {
	var one string
	if err := fastjson.Unmarshal(data, &one); err == nil {
		if one == "" {
			*c = nil
			return nil
		}
		*c = Columns{one}
		return nil
	}
	var many []string
	if err := fastjson.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("key columns must be a string or a list of strings: %w", err)
	}
	*c = Columns(many)
	return nil
}

func (c Columns) MarshalJSON() ([]byte, error) {
	if len(c) == 1 {
		return fastjson.Marshal(c[0])
	}
	return fastjson.Marshal([]string(c))
}

// Single returns the only column, or "" when c is empty or composite.
func (c Columns) Single() string {
	if len(c) != 1 {
		return ""
	}
	return c[0]
}

func (c Columns) String() string {
	return strings.Join(c, ",")
}

// Definition is one declared relation of an owner type.
//
// For ManyToManyThrough the owner's SourceField is matched against
// ThroughSourceField on the through type, and ThroughTargetField against
// TargetField on the target type.
type Definition struct {
	Name               string  `json:"-"`
	Kind               Kind    `json:"kind"`
	SourceField        Columns `json:"source"`
	TargetType         string  `json:"target"`
	TargetField        Columns `json:"target_field"`
	ThroughType        string  `json:"through,omitempty"`
	ThroughSourceField Columns `json:"through_source,omitempty"`
	ThroughTargetField Columns `json:"through_target,omitempty"`
}

// Validate reports structural problems the eager loader cannot handle:
// an unknown kind or a key that is not exactly one column.
func (d Definition) Validate() error {
	switch d.Kind {
	case OneToOne, ManyToOne, OneToMany:
		return checkSingle(d.SourceField, d.TargetField)
	case ManyToManyThrough:
		if d.ThroughType == "" {
			return fmt.Errorf("relation %q: many-to-many needs a through type", d.Name)
		}
		return checkSingle(d.SourceField, d.TargetField, d.ThroughSourceField, d.ThroughTargetField)
	default:
		return fmt.Errorf("%w `%s`", ErrUnsupportedKind, d.Kind)
	}
}

func checkSingle(cols ...Columns) error {
	for _, c := range cols {
		if len(c) > 1 {
			return fmt.Errorf("%w (%s)", ErrCompositeKey, c)
		}
		if len(c) == 0 || strings.TrimSpace(c[0]) == "" {
			return ErrMissingKey
		}
	}
	return nil
}

// Registry resolves a relation by owner type and relation name.
type Registry interface {
	Relation(ownerType, name string) (Definition, bool)
}
