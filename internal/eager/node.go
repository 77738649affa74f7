package eager

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"eagerload/internal/relation"
	"eagerload/pkg/metrics"
	"eagerload/pkg/utils/coerce"
)

// State is where a Node is in its lifecycle. A node leaves StateCreated
// exactly once.
type State int

const (
	StateCreated State = iota
	StateEmpty
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Node is one level of one relation path, e.g. "posts.comments".
type Node struct {
	alias      string
	attr       string
	owner      string
	def        relation.Definition
	constraint Constraint
	parent     *Node
	loader     *Loader

	mu       sync.Mutex
	state    State
	subject  Subject
	deferred map[string][]*Node
}

func newNode(l *Loader, alias, owner string, def relation.Definition, parent *Node, c Constraint) *Node {
	attr := def.Name
	if attr == "" {
		attr = alias[strings.LastIndexByte(alias, '.')+1:]
	}
	return &Node{
		alias:      alias,
		attr:       strings.ToLower(attr),
		owner:      owner,
		def:        def,
		constraint: c,
		parent:     parent,
		loader:     l,
		deferred:   make(map[string][]*Node),
	}
}

func (n *Node) Alias() string { return n.alias }

func (n *Node) Definition() relation.Definition { return n.def }

// Subject is the set of records fetched for this level, nil until loaded.
func (n *Node) Subject() Subject {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.subject
}

func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// DelayLoad queues child to run once the node at parentAlias has loaded.
func (n *Node) DelayLoad(child *Node, parentAlias string) {
	n.mu.Lock()
	n.deferred[parentAlias] = append(n.deferred[parentAlias], child)
	n.mu.Unlock()
}

func (n *Node) parentSubject() Subject {
	if n.parent == nil {
		return n.loader.subject
	}
	return n.parent.Subject()
}

// Load fetches this level for every owner in the parent subject, attaches
// the results and then runs the deferred children. Calling it again after
// it has run is a no-op.
func (n *Node) Load(ctx context.Context) error {
	if n.State() != StateCreated {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	parent := n.parentSubject()
	if parent == nil || parent.IsEmpty() {
		empty := Subject(Many{})
		if parent != nil {
			empty = parent.emptyOf()
		}
		n.finish(empty, StateEmpty, start)
		return n.dispatch(ctx)
	}

	src := n.def.SourceField.Single()
	n.loader.assocMu.RLock()
	keys := Pluck(parent, src)
	n.loader.assocMu.RUnlock()

	var (
		records []Entity
		groups  map[string][]Entity
		err     error
	)
	switch n.def.Kind {
	case relation.OneToOne, relation.ManyToOne, relation.OneToMany:
		records, groups, err = n.fetchDirect(ctx, keys)
	case relation.ManyToManyThrough:
		records, groups, err = n.fetchThrough(ctx, keys)
	default:
		return invalidDefinition(n.owner, n.alias, fmt.Errorf("%w: %q", relation.ErrUnsupportedKind, n.def.Kind))
	}
	if err != nil {
		return err
	}

	if err := n.associate(parent, src, groups); err != nil {
		return err
	}

	n.finish(Many(records), StateLoaded, start)
	n.loader.log.Debug("eager: relation loaded",
		"alias", n.alias,
		"kind", string(n.def.Kind),
		"keys", len(keys),
		"records", len(records),
	)
	return n.dispatch(ctx)
}

func (n *Node) finish(s Subject, st State, start time.Time) {
	n.mu.Lock()
	n.subject = s
	n.state = st
	n.mu.Unlock()
	metrics.ObserveNode(string(n.def.Kind), st.String(), time.Since(start))
}

func (n *Node) dispatch(ctx context.Context) error {
	n.mu.Lock()
	children := n.deferred[n.alias]
	delete(n.deferred, n.alias)
	n.mu.Unlock()

	for _, c := range children {
		if err := c.Load(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) constrain(q *Query) error {
	if n.constraint == nil {
		return nil
	}
	if err := n.constraint(q); err != nil {
		return fmt.Errorf("eager load %q: constraint: %w", n.alias, err)
	}
	return nil
}

func (n *Node) fetch(ctx context.Context, b QueryBuilder, table string, keys int) ([]Entity, error) {
	metrics.ObserveQuery(string(n.def.Kind), table, keys)
	rows, err := b.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("eager load %q: %w", n.alias, err)
	}
	return rows, nil
}

// fetchDirect covers the three kinds where the target carries the key.
func (n *Node) fetchDirect(ctx context.Context, keys []any) ([]Entity, map[string][]Entity, error) {
	exec := n.loader.exec
	target := n.def.TargetField.Single()

	b := exec.Query(n.def.TargetType)
	b.WhereIn(target, keys)
	if err := n.constrain(newQuery(ctx, b, exec, n.loader, n)); err != nil {
		return nil, nil, err
	}
	if len(keys) == 0 {
		return nil, nil, nil
	}

	records, err := n.fetch(ctx, b, n.def.TargetType, len(keys))
	if err != nil {
		return nil, nil, err
	}

	groups := make(map[string][]Entity)
	for _, rec := range records {
		v, _ := rec.Field(target)
		k, ok := coerce.Key(v)
		if !ok {
			return nil, nil, missingForeignKey(n.alias, target)
		}
		groups[k] = append(groups[k], rec)
	}
	return records, groups, nil
}

// fetchThrough reads the pivot rows first, then the targets they point to.
// Groups are keyed by the owner key and keep the target fetch order.
func (n *Node) fetchThrough(ctx context.Context, keys []any) ([]Entity, map[string][]Entity, error) {
	exec := n.loader.exec
	ts := n.def.ThroughSourceField.Single()
	tt := n.def.ThroughTargetField.Single()
	target := n.def.TargetField.Single()

	var pivots []Entity
	if len(keys) > 0 {
		pb := exec.Query(n.def.ThroughType)
		pb.WhereIn(ts, keys)
		pb.Columns(exec.QuoteIdentifier(ts), exec.QuoteIdentifier(tt))

		var err error
		if pivots, err = n.fetch(ctx, pb, n.def.ThroughType, len(keys)); err != nil {
			return nil, nil, err
		}
	}

	var refs []any
	owners := make(map[string][]string)
	seen := make(map[string]map[string]struct{})
	for _, p := range pivots {
		ov, _ := p.Field(ts)
		ownerKey, okOwner := coerce.Key(ov)
		if !okOwner {
			return nil, nil, missingForeignKey(n.alias, ts)
		}
		rv, _ := p.Field(tt)
		rk, okRef := coerce.Key(rv)
		if !okRef {
			return nil, nil, missingForeignKey(n.alias, tt)
		}
		if seen[rk] == nil {
			seen[rk] = make(map[string]struct{})
			refs = append(refs, rv)
		}
		if _, dup := seen[rk][ownerKey]; dup {
			continue
		}
		seen[rk][ownerKey] = struct{}{}
		owners[rk] = append(owners[rk], ownerKey)
	}

	b := exec.Query(n.def.TargetType)
	b.WhereIn(target, refs)
	if err := n.constrain(newQuery(ctx, b, exec, n.loader, n)); err != nil {
		return nil, nil, err
	}
	if len(refs) == 0 {
		return nil, nil, nil
	}

	records, err := n.fetch(ctx, b, n.def.TargetType, len(refs))
	if err != nil {
		return nil, nil, err
	}

	groups := make(map[string][]Entity)
	for _, rec := range records {
		v, _ := rec.Field(target)
		k, ok := coerce.Key(v)
		if !ok {
			return nil, nil, missingForeignKey(n.alias, target)
		}
		for _, owner := range owners[k] {
			groups[owner] = append(groups[owner], rec)
		}
	}
	return records, groups, nil
}

// associate writes the grouped records onto every owner. Owners without a
// match get nil for to-one relations and an empty list for to-many.
func (n *Node) associate(parent Subject, src string, groups map[string][]Entity) error {
	toMany := n.def.Kind.ToMany()

	n.loader.assocMu.Lock()
	defer n.loader.assocMu.Unlock()

	return parent.Each(func(e Entity) error {
		var matched []Entity
		v, _ := e.Field(src)
		if k, ok := coerce.Key(v); ok {
			matched = groups[k]
		}

		if toMany {
			list := make([]Entity, len(matched))
			copy(list, matched)
			e.SetField(n.attr, list)
			return nil
		}
		if len(matched) == 0 {
			e.SetField(n.attr, nil)
			return nil
		}
		e.SetField(n.attr, matched[0])
		return nil
	})
}
