// Package appmodel is the in-memory application model that resource helpers
// such as pkg/memgraph register into.
//
// A Builder collects resources and their annotations during application
// definition. Build validates the model and returns an Application, which
// the orchestrator realizes: it allocates endpoint ports, publishes
// lifecycle events and starts one container per container resource.
//
// # Usage Example
//
//	b := appmodel.NewBuilder(appmodel.WithLogger(logger))
//	db := memgraph.Add(b, "memgraph", 0, 0)
//	memgraph.WithLab(db, nil, "")
//	app, err := b.Build()
package appmodel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"evalgo.org/mgapphost/internal/validation"
)

var (
	// ErrDuplicateResource is returned by Build when two resources share a name.
	ErrDuplicateResource = errors.New("duplicate resource name")

	// ErrInvalidResourceName is returned by Build for names that fail validation.
	ErrInvalidResourceName = errors.New("invalid resource name")

	// ErrDuplicateEndpoint is returned by Build when a resource declares the
	// same endpoint name twice.
	ErrDuplicateEndpoint = errors.New("duplicate endpoint name")

	// ErrInvalidPort is returned by Build for out-of-range ports.
	ErrInvalidPort = errors.New("invalid port")
)

// model is the state shared by a Builder and the Application built from it.
type model struct {
	mu          sync.RWMutex
	resources   []Resource
	byName      map[string]Resource
	singletons  map[string]Resource
	allocations *AllocationTable
	eventing    *Eventing
	logger      *zap.SugaredLogger
}

func (m *model) list() []Resource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Resource, len(m.resources))
	copy(out, m.resources)
	return out
}

func (m *model) lookup(name string) (Resource, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.byName[name]
	return r, ok
}

// Builder assembles the application model.
type Builder struct {
	m         *model
	validator *validation.Validator

	errMu sync.Mutex
	errs  *multierror.Error
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger handed to resources, callbacks and the
// orchestrator.
func WithLogger(logger *zap.SugaredLogger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.m.logger = logger
		}
	}
}

// NewBuilder creates an empty application builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		m: &model{
			byName:      make(map[string]Resource),
			singletons:  make(map[string]Resource),
			allocations: NewAllocationTable(),
			eventing:    NewEventing(),
			logger:      zap.NewNop().Sugar(),
		},
		validator: validation.New(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Resources returns every registered resource in registration order.
func (b *Builder) Resources() []Resource { return b.m.list() }

// Resource looks a resource up by name.
func (b *Builder) Resource(name string) (Resource, bool) { return b.m.lookup(name) }

// Eventing returns the lifecycle event dispatcher.
func (b *Builder) Eventing() *Eventing { return b.m.eventing }

// Allocations returns the endpoint allocation table.
func (b *Builder) Allocations() *AllocationTable { return b.m.allocations }

// Logger returns the model logger.
func (b *Builder) Logger() *zap.SugaredLogger { return b.m.logger }

// recordError remembers a registration problem; Build reports all of them.
func (b *Builder) recordError(err error) {
	b.errMu.Lock()
	defer b.errMu.Unlock()

	b.errs = multierror.Append(b.errs, err)
}

// register adds r to the model. Invalid or duplicate names are recorded
// and the resource is left out of the model.
func (b *Builder) register(r Resource) {
	if err := b.validator.ResourceName(r.Name()); err != nil {
		b.recordError(fmt.Errorf("%w %q: %w", ErrInvalidResourceName, r.Name(), err))
		return
	}

	b.m.mu.Lock()
	defer b.m.mu.Unlock()

	if _, exists := b.m.byName[r.Name()]; exists {
		b.recordError(fmt.Errorf("%w: %s", ErrDuplicateResource, r.Name()))
		return
	}

	r.base().attach(b.m)
	b.m.resources = append(b.m.resources, r)
	b.m.byName[r.Name()] = r
	b.m.logger.Debugw("Resource registered", "resource", r.Name())
}

// AddResource registers r and returns a builder for chaining annotations.
func AddResource[T Resource](b *Builder, r T) *ResourceBuilder[T] {
	b.register(r)
	return CreateResourceBuilder(b, r)
}

// CreateResourceBuilder wraps an already registered resource.
func CreateResourceBuilder[T Resource](b *Builder, r T) *ResourceBuilder[T] {
	return &ResourceBuilder[T]{builder: b, resource: r}
}

// GetOrAdd is the per-model singleton registry keyed by a type tag. It
// returns the resource registered under tag, or calls create, registers the
// result under tag and reports created=true.
func (b *Builder) GetOrAdd(tag string, create func() Resource) (r Resource, created bool) {
	b.m.mu.RLock()
	existing, ok := b.m.singletons[tag]
	b.m.mu.RUnlock()
	if ok {
		return existing, false
	}

	r = create()
	b.register(r)

	b.m.mu.Lock()
	defer b.m.mu.Unlock()

	b.m.singletons[tag] = r
	return r, true
}

// Build validates the model and returns the application.
func (b *Builder) Build() (*Application, error) {
	for _, r := range b.Resources() {
		b.validateEndpoints(r)
	}

	b.errMu.Lock()
	err := b.errs.ErrorOrNil()
	b.errMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("invalid application model: %w", err)
	}

	return &Application{m: b.m}, nil
}

func (b *Builder) validateEndpoints(r Resource) {
	seen := make(map[string]bool)
	for _, ep := range AnnotationsOf[*EndpointAnnotation](r) {
		if seen[ep.Name] {
			b.recordError(fmt.Errorf("%w: %s on %s", ErrDuplicateEndpoint, ep.Name, r.Name()))
		}
		seen[ep.Name] = true

		if err := b.validator.TargetPort(ep.TargetPort); err != nil {
			b.recordError(fmt.Errorf("%w: endpoint %s on %s: %w", ErrInvalidPort, ep.Name, r.Name(), err))
		}
		if err := b.validator.HostPort(ep.Port); err != nil {
			b.recordError(fmt.Errorf("%w: endpoint %s on %s: %w", ErrInvalidPort, ep.Name, r.Name(), err))
		}
	}
}

// Application is a validated application model.
type Application struct {
	m *model
}

// Resources returns every resource in registration order.
func (a *Application) Resources() []Resource { return a.m.list() }

// Resource looks a resource up by name.
func (a *Application) Resource(name string) (Resource, bool) { return a.m.lookup(name) }

// Eventing returns the lifecycle event dispatcher.
func (a *Application) Eventing() *Eventing { return a.m.eventing }

// Allocations returns the endpoint allocation table.
func (a *Application) Allocations() *AllocationTable { return a.m.allocations }

// Logger returns the model logger.
func (a *Application) Logger() *zap.SugaredLogger { return a.m.logger }
