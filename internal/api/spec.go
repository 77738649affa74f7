package api

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"eagerload/internal/eager"
	"eagerload/pkg/fastjson"
)

// Cond is one column comparison of a declarative constraint.
type Cond struct {
	Column string      `json:"column"`
	Op     string      `json:"op"`
	Value  interface{} `json:"value"`
}

// RelationSpec is the JSON form of a Constraint.
type RelationSpec struct {
	Where   []Cond   `json:"where,omitempty"`
	OrderBy string   `json:"order_by,omitempty"`
	Limit   int      `json:"limit,omitempty"`
	Columns []string `json:"columns,omitempty"`
	With    WithSpec `json:"with,omitempty"`
}

// WithSpec maps relation paths to optional specs. In JSON it is a path, a
// list of paths, or an object of path to spec (or null).
type WithSpec map[string]*RelationSpec

func (w *WithSpec) UnmarshalJSON(data []byte) error {
	if strings.TrimSpace(string(data)) == "null" {
		*w = nil
		return nil
	}
	var one string
	if err := fastjson.Unmarshal(data, &one); err == nil {
		*w = WithSpec{one: nil}
		return nil
	}
	var list []string
	if err := fastjson.Unmarshal(data, &list); err == nil {
		out := make(WithSpec, len(list))
		for _, p := range list {
			out[p] = nil
		}
		*w = out
		return nil
	}
	var obj map[string]*RelationSpec
	if err := fastjson.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("with must be a path, a list of paths or an object: %w", err)
	}
	*w = WithSpec(obj)
	return nil
}

var (
	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
	orderRe = regexp.MustCompile(`(?i)^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?(\s+(ASC|DESC))?$`)
)

var allowedOps = map[string]bool{
	"=": true, "!=": true, "<>": true, "<": true, "<=": true, ">": true, ">=": true,
	"IN": true, "NOT IN": true, "NULL": true, "NOT NULL": true,
}

// Validate rejects anything that would reach the store as raw SQL: only
// plain identifiers and a fixed operator set are accepted.
func (w WithSpec) Validate() error {
	for _, path := range w.paths() {
		spec := w[path]
		if spec == nil {
			continue
		}
		for _, c := range spec.Where {
			if !identRe.MatchString(c.Column) {
				return fmt.Errorf("%s: invalid where column %q", path, c.Column)
			}
			if !allowedOps[strings.ToUpper(strings.TrimSpace(c.Op))] {
				return fmt.Errorf("%s: invalid operator %q", path, c.Op)
			}
		}
		for _, col := range spec.Columns {
			if col != "*" && !identRe.MatchString(col) {
				return fmt.Errorf("%s: invalid column %q", path, col)
			}
		}
		if spec.OrderBy != "" {
			for _, part := range strings.Split(spec.OrderBy, ",") {
				if !orderRe.MatchString(strings.TrimSpace(part)) {
					return fmt.Errorf("%s: invalid order_by %q", path, spec.OrderBy)
				}
			}
		}
		if spec.Limit < 0 {
			return fmt.Errorf("%s: limit can not be negative", path)
		}
		if err := spec.With.Validate(); err != nil {
			return fmt.Errorf("%s.%w", path, err)
		}
	}
	return nil
}

// Relations converts w into engine relations. Nested "with" is
// declared from inside the constraint, so it runs once its parent level
// has been fetched.
func (w WithSpec) Relations() eager.Relations {
	rels := make(eager.Relations, len(w))
	for path, spec := range w {
		if spec == nil {
			rels[path] = nil
			continue
		}
		rels[path] = spec.constraint()
	}
	return rels
}

func (w WithSpec) paths() []string {
	out := make([]string, 0, len(w))
	for p := range w {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *RelationSpec) constraint() eager.Constraint {
	return func(q *eager.Query) error {
		for _, c := range s.Where {
			q.WhereCond(c.Column, strings.ToUpper(strings.TrimSpace(c.Op)), c.Value)
		}
		if len(s.Columns) > 0 {
			q.Columns(s.Columns...)
		}
		if s.OrderBy != "" {
			q.OrderBy(s.OrderBy)
		}
		if s.Limit > 0 {
			q.Limit(s.Limit)
		}
		if len(s.With) > 0 {
			return q.With(s.With.Relations())
		}
		return nil
	}
}
