package eager

import (
	"sort"
	"strings"
)

// Constraint customises the query of the last relation in a path. It may
// add conditions, ordering, columns, or declare nested relations with
// q.With.
type Constraint func(q *Query) error

// Relations maps a dotted relation path to its optional constraint.
type Relations map[string]Constraint

// Paths returns the keys in lexicographic order, so every prefix of a path
// comes before the path itself.
func (r Relations) Paths() []string {
	out := make([]string, 0, len(r))
	for p := range r {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ParseRelations normalises relation specs. Each argument may be a path
// string, a []string of paths, a Relations / map[string]Constraint, or a
// map[string]any whose values are nil or constraint funcs.
func ParseRelations(specs ...any) (Relations, error) {
	rels := make(Relations)

	add := func(path string, c Constraint) error {
		path = strings.TrimSpace(path)
		if path == "" {
			return invalidArgument("relation path can not be empty")
		}
		for _, seg := range strings.Split(path, ".") {
			if strings.TrimSpace(seg) == "" {
				return invalidArgument("relation path %q has an empty segment", path)
			}
		}
		rels[path] = c
		return nil
	}

	for _, spec := range specs {
		switch v := spec.(type) {
		case string:
			if err := add(v, nil); err != nil {
				return nil, err
			}
		case []string:
			for _, p := range v {
				if err := add(p, nil); err != nil {
					return nil, err
				}
			}
		case Relations:
			for p, c := range v {
				if err := add(p, c); err != nil {
					return nil, err
				}
			}
		case map[string]Constraint:
			for p, c := range v {
				if err := add(p, c); err != nil {
					return nil, err
				}
			}
		case map[string]any:
			for p, raw := range v {
				c, err := toConstraint(p, raw)
				if err != nil {
					return nil, err
				}
				if err := add(p, c); err != nil {
					return nil, err
				}
			}
		case nil:
			continue
		default:
			return nil, invalidArgument("unsupported relation spec of type %T", spec)
		}
	}

	if len(rels) == 0 {
		return nil, invalidArgument("arguments can not be empty")
	}
	return rels, nil
}

func toConstraint(path string, raw any) (Constraint, error) {
	switch c := raw.(type) {
	case nil:
		return nil, nil
	case Constraint:
		return c, nil
	case func(*Query) error:
		return c, nil
	case func(*Query):
		return func(q *Query) error {
			c(q)
			return nil
		}, nil
	default:
		return nil, invalidArgument("constraint for %q expects a func(*Query) error, `%T` given", path, raw)
	}
}
