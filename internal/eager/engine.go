// Package eager loads relation paths such as "posts.comments" for a set of
// root entities with one batch query per relation level, and attaches the
// results to their owners.
package eager

import (
	"context"
	"log/slog"

	"eagerload/internal/relation"
	"eagerload/pkg/logger"
)

type Engine struct {
	registry relation.Registry
	exec     Executor
	log      *slog.Logger
	parallel bool
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithParallelBranches runs distinct top-level paths concurrently. The
// executor must then be safe for concurrent queries.
func WithParallelBranches(on bool) Option {
	return func(e *Engine) { e.parallel = on }
}

func New(reg relation.Registry, exec Executor, opts ...Option) *Engine {
	e := &Engine{registry: reg, exec: exec, log: logger.Log}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewLoader starts an empty tree over subject.
func (e *Engine) NewLoader(subject Subject, ownerType string) *Loader {
	return &Loader{
		subject:   subject,
		ownerType: ownerType,
		registry:  e.registry,
		exec:      e.exec,
		log:       e.log,
		parallel:  e.parallel,
		nodes:     make(map[string]*Node),
	}
}

// Load resolves specs against subject and attaches every relation. The
// returned Subject is subject itself, with the relation attributes set.
//
// A failure stops the load; attributes already attached by earlier
// relations stay in place.
func (e *Engine) Load(ctx context.Context, subject Subject, ownerType string, specs ...any) (Subject, error) {
	if subject == nil {
		return nil, invalidArgument("subject can not be nil")
	}
	if ownerType == "" {
		return nil, invalidArgument("owner type can not be empty")
	}
	rels, err := ParseRelations(specs...)
	if err != nil {
		return nil, err
	}

	l := e.NewLoader(subject, ownerType)
	nodes, err := l.Build(rels, false, 0)
	if err != nil {
		return nil, err
	}
	if err := l.Execute(ctx, nodes); err != nil {
		return nil, err
	}

	e.log.Debug("eager: load complete", "owner", ownerType, "roots", subject.Len(), "relations", l.Aliases())
	return subject, nil
}

// Plan resolves specs against the registry without querying and returns
// the aliases in execution order. Relations declared inside constraints
// are not part of the plan.
func (e *Engine) Plan(ownerType string, specs ...any) ([]string, error) {
	if ownerType == "" {
		return nil, invalidArgument("owner type can not be empty")
	}
	rels, err := ParseRelations(specs...)
	if err != nil {
		return nil, err
	}
	l := e.NewLoader(Many{}, ownerType)
	if _, err := l.Build(rels, false, 0); err != nil {
		return nil, err
	}
	return l.Aliases(), nil
}
