package eager

import (
	"errors"
	"fmt"

	"eagerload/internal/relation"
)

var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrRelationNotFound    = errors.New("relation not found")
	ErrUnsupportedRelation = relation.ErrUnsupportedKind
	ErrCompositeKey        = relation.ErrCompositeKey
	ErrMissingKey          = relation.ErrMissingKey
	ErrMissingForeignKey   = errors.New("missing foreign key")
)

// LoadError names the relation path that broke. Err is one of the sentinels
// above (or wraps one), so errors.Is works on the kind.
type LoadError struct {
	Err   error
	Owner string
	Alias string
	Field string
	msg   string
}

func (e *LoadError) Error() string {
	switch {
	case e.msg != "":
		return e.msg
	case e.Alias != "" && e.Field != "":
		return fmt.Sprintf("eager load %q (field %q): %v", e.Alias, e.Field, e.Err)
	case e.Alias != "":
		return fmt.Sprintf("eager load %q: %v", e.Alias, e.Err)
	}
	return e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }

func invalidArgument(format string, args ...any) error {
	return &LoadError{Err: ErrInvalidArgument, msg: fmt.Sprintf(format, args...)}
}

func relationNotFound(owner, name, alias string) error {
	return &LoadError{
		Err: ErrRelationNotFound, Owner: owner, Alias: alias,
		msg: fmt.Sprintf("there is no defined relation for the model `%s` using alias `%s`", owner, name),
	}
}

func missingForeignKey(alias, field string) error {
	return &LoadError{Err: ErrMissingForeignKey, Alias: alias, Field: field}
}

// invalidDefinition wraps a relation.Definition.Validate failure.
func invalidDefinition(owner, alias string, err error) error {
	le := &LoadError{Err: err, Owner: owner, Alias: alias}
	switch {
	case errors.Is(err, ErrUnsupportedRelation):
		le.Err = ErrUnsupportedRelation
	case errors.Is(err, ErrCompositeKey):
		le.Err = ErrCompositeKey
	case errors.Is(err, ErrMissingKey):
		le.Err = ErrMissingKey
	}
	le.msg = fmt.Sprintf("eager load %q on `%s`: %v", alias, owner, err)
	return le
}
