package scraper

import (
	"context"
	"maps"
	"scrapeflow/lib/engine"
	"slices"
)

// WorkflowFunc is a multi step routine over the scrapers of a module, it is
// always called with the module it is registered on.
type WorkflowFunc func(ctx context.Context, m *Module, args ...any) (any, error)

// Workflow is a WorkflowFunc with its module already bound.
type Workflow func(ctx context.Context, args ...any) (any, error)

// Module is a namespace of scrapers, workflows and nested modules. A module
// without an engine is detached, its scrapers cannot scrape until it is
// bound.
//
// Registration is not synchronized, modules are meant to be assembled
// before any of their scrapers run.
type Module struct {
	name      string
	engine    *engine.Engine
	scrapers  map[string]*Scraper
	modules   map[string]*Module
	workflows map[string]WorkflowFunc
}

// NewModule creates a detached module.
func NewModule(name string) *Module {
	return &Module{
		name:      name,
		scrapers:  map[string]*Scraper{},
		modules:   map[string]*Module{},
		workflows: map[string]WorkflowFunc{},
	}
}

// NewRoot creates the top level module of an engine.
func NewRoot(e *engine.Engine) *Module {
	m := NewModule("root")
	m.engine = e
	return m
}

func (m *Module) Name() string {
	return m.name
}

func (m *Module) Engine() *engine.Engine {
	return m.engine
}

// RegisterScraper stores a new scraper under name, it uses the module's
// engine (none while the module is detached).
func (m *Module) RegisterScraper(name string, builder Builder, opts ...Option) *Scraper {
	s := New(builder, opts...)
	s.engine = m.engine
	m.scrapers[name] = s
	return s
}

func (m *Module) RegisterWorkflow(name string, fn WorkflowFunc) {
	m.workflows[name] = fn
}

// LoadModule attaches child under name. When m is bound the stored module
// is a copy of child bound to m's engine, child itself is never modified so
// it can be loaded into any number of engines.
func (m *Module) LoadModule(name string, child *Module) *Module {
	if m.engine != nil {
		child = child.Bind(m.engine)
	}
	m.modules[name] = child
	return child
}

// Bind copies the module tree with every scraper (recursively) bound to e.
// Copied scrapers start with an empty history.
func (m *Module) Bind(e *engine.Engine) *Module {
	out := &Module{
		name:      m.name,
		engine:    e,
		scrapers:  make(map[string]*Scraper, len(m.scrapers)),
		modules:   make(map[string]*Module, len(m.modules)),
		workflows: maps.Clone(m.workflows),
	}
	for name, s := range m.scrapers {
		out.scrapers[name] = s.Bind(e)
	}
	for name, child := range m.modules {
		out.modules[name] = child.Bind(e)
	}
	return out
}

func (m *Module) Scraper(name string) (*Scraper, bool) {
	s, ok := m.scrapers[name]
	return s, ok
}

func (m *Module) Module(name string) (*Module, bool) {
	child, ok := m.modules[name]
	return child, ok
}

// Workflow returns the named workflow bound to m.
func (m *Module) Workflow(name string) (Workflow, bool) {
	fn, ok := m.workflows[name]
	if !ok {
		return nil, false
	}
	return func(ctx context.Context, args ...any) (any, error) {
		return fn(ctx, m, args...)
	}, true
}

type Listing struct {
	Scrapers  []string
	Modules   []string
	Workflows []string
}

// Names lists everything registered directly on m, sorted.
func (m *Module) Names() Listing {
	return Listing{
		Scrapers:  slices.Sorted(maps.Keys(m.scrapers)),
		Modules:   slices.Sorted(maps.Keys(m.modules)),
		Workflows: slices.Sorted(maps.Keys(m.workflows)),
	}
}

// Many creates an unregistered fan-out scraper on the module's engine.
func (m *Module) Many(builder Builder, mode Mode, opts ...Option) *Scraper {
	s := New(builder, append(slices.Clone(opts), WithMode(mode))...)
	s.engine = m.engine
	return s
}
