package relation

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"eagerload/pkg/fastjson"
)

// Schema is an in-memory Registry. Relation names are case-insensitive.
type Schema struct {
	mu    sync.RWMutex
	types map[string]map[string]Definition
}

func NewSchema() *Schema {
	return &Schema{types: make(map[string]map[string]Definition)}
}

// Define registers def under owner, replacing any relation with the same name.
func (s *Schema) Define(owner string, def Definition) *Schema {
	s.mu.Lock()
	defer s.mu.Unlock()

	def.Name = strings.ToLower(def.Name)
	rels, ok := s.types[owner]
	if !ok {
		rels = make(map[string]Definition)
		s.types[owner] = rels
	}
	rels[def.Name] = def
	return s
}

// HasOne: owner.localKey = target.foreignKey, at most one target.
func (s *Schema) HasOne(owner, name, target, localKey, foreignKey string) *Schema {
	return s.Define(owner, Definition{
		Name: name, Kind: OneToOne,
		SourceField: Columns{localKey}, TargetType: target, TargetField: Columns{foreignKey},
	})
}

// BelongsTo: owner.foreignKey = target.ownerKey.
func (s *Schema) BelongsTo(owner, name, target, foreignKey, ownerKey string) *Schema {
	return s.Define(owner, Definition{
		Name: name, Kind: ManyToOne,
		SourceField: Columns{foreignKey}, TargetType: target, TargetField: Columns{ownerKey},
	})
}

// HasMany: owner.localKey = target.foreignKey, any number of targets.
func (s *Schema) HasMany(owner, name, target, localKey, foreignKey string) *Schema {
	return s.Define(owner, Definition{
		Name: name, Kind: OneToMany,
		SourceField: Columns{localKey}, TargetType: target, TargetField: Columns{foreignKey},
	})
}

// BelongsToMany links owner.localKey to pivot.pivotOwnerKey and
// pivot.pivotTargetKey to target.targetKey.
func (s *Schema) BelongsToMany(owner, name, target, pivot, localKey, pivotOwnerKey, pivotTargetKey, targetKey string) *Schema {
	return s.Define(owner, Definition{
		Name: name, Kind: ManyToManyThrough,
		SourceField: Columns{localKey}, TargetType: target, TargetField: Columns{targetKey},
		ThroughType: pivot, ThroughSourceField: Columns{pivotOwnerKey}, ThroughTargetField: Columns{pivotTargetKey},
	})
}

// Relation implements Registry.
func (s *Schema) Relation(ownerType, name string) (Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.types[ownerType][strings.ToLower(name)]
	return def, ok
}

// Types lists owner types in sorted order.
func (s *Schema) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.types))
	for t := range s.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// HasType reports whether name is an owner or a target type. Through types
// are join tables and are not reported.
func (s *Schema) HasType(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.types[name]; ok {
		return true
	}
	for _, rels := range s.types {
		for _, def := range rels {
			if def.TargetType == name {
				return true
			}
		}
	}
	return false
}

// Relations returns the relations of owner sorted by name.
func (s *Schema) Relations(owner string) []Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Definition, 0, len(s.types[owner]))
	for _, def := range s.types[owner] {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate runs Definition.Validate on every relation and checks that each
// target (and through) type is named somewhere. All problems are returned.
func (s *Schema) Validate() []error {
	var errs []error
	for _, owner := range s.Types() {
		for _, def := range s.Relations(owner) {
			if def.TargetType == "" {
				errs = append(errs, fmt.Errorf("%s.%s: missing target type", owner, def.Name))
				continue
			}
			if err := def.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s.%s: %w", owner, def.Name, err))
			}
		}
	}
	return errs
}

// MarshalJSON writes the file format read by LoadSchema.
func (s *Schema) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fastjson.Marshal(s.types)
}

// LoadSchema reads {"owner": {"relation": {kind, source, target, ...}}}.
func LoadSchema(r io.Reader) (*Schema, error) {
	var raw map[string]map[string]Definition
	if err := fastjson.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid relation schema: %w", err)
	}

	s := NewSchema()
	for owner, rels := range raw {
		for name, def := range rels {
			def.Name = name
			s.Define(owner, def)
		}
	}
	return s, nil
}

func LoadSchemaFile(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open relation schema: %w", err)
	}
	defer f.Close()
	return LoadSchema(f)
}
