package eager

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"eagerload/internal/relation"
)

// Loader holds the relation tree for one load call. It is built from
// paths first and executed afterwards; constraints may extend it while it
// executes.
type Loader struct {
	subject   Subject
	ownerType string
	registry  relation.Registry
	exec      Executor
	log       *slog.Logger
	parallel  bool

	mu    sync.Mutex
	nodes map[string]*Node
	order []string

	// guards reads of owner keys and writes of relation attributes on
	// entities shared by sibling branches
	assocMu sync.RWMutex
}

func (l *Loader) Subject() Subject { return l.subject }

func (l *Loader) OwnerType() string { return l.ownerType }

// Node returns the node at alias, or nil.
func (l *Loader) Node(alias string) *Node {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nodes[alias]
}

// Aliases lists every node of the tree in creation order.
func (l *Loader) Aliases() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.order...)
}

// Build adds the nodes for rels to the tree and returns the ones that did
// not exist yet, ancestors first. Paths are walked from segment offset;
// a nested build expects every segment before offset to be in the tree.
// Redeclaring an existing alias is a no-op, its first constraint stays.
func (l *Loader) Build(rels Relations, nested bool, offset int) ([]*Node, error) {
	if offset < 0 {
		return nil, invalidArgument("nesting offset can not be negative")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var created []*Node
	for _, path := range rels.Paths() {
		segs := strings.Split(path, ".")
		if nested && offset > 0 && offset < len(segs) {
			anchor := strings.Join(segs[:offset], ".")
			if _, ok := l.nodes[anchor]; !ok {
				return nil, invalidArgument("nested relation %q has no loaded parent %q", path, anchor)
			}
		}

		for i := offset; i < len(segs); i++ {
			alias := strings.Join(segs[:i+1], ".")
			if _, ok := l.nodes[alias]; ok {
				continue
			}

			owner := l.ownerType
			var parent *Node
			if i > 0 {
				parent = l.nodes[strings.Join(segs[:i], ".")]
				if parent == nil {
					return nil, invalidArgument("relation %q has no parent in the tree", alias)
				}
				owner = parent.def.TargetType
			}

			def, ok := l.registry.Relation(owner, segs[i])
			if !ok {
				return nil, relationNotFound(owner, segs[i], alias)
			}
			if err := def.Validate(); err != nil {
				return nil, invalidDefinition(owner, alias, err)
			}

			var c Constraint
			if i == len(segs)-1 {
				c = rels[path]
			}

			n := newNode(l, alias, owner, def, parent, c)
			l.nodes[alias] = n
			l.order = append(l.order, alias)
			created = append(created, n)
		}
	}
	return created, nil
}

// Execute loads nodes in order. With parallel branches enabled, nodes are
// split by their first path segment and each branch runs in its own
// goroutine; order inside a branch is kept.
func (l *Loader) Execute(ctx context.Context, nodes []*Node) error {
	if !l.parallel || len(nodes) < 2 {
		for _, n := range nodes {
			if err := n.Load(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	var roots []string
	branches := make(map[string][]*Node)
	for _, n := range nodes {
		root, _, _ := strings.Cut(n.alias, ".")
		if _, ok := branches[root]; !ok {
			roots = append(roots, root)
		}
		branches[root] = append(branches[root], n)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, root := range roots {
		branch := branches[root]
		g.Go(func() error {
			for _, n := range branch {
				if err := n.Load(gctx); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
