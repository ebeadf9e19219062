package appmodel

import (
	"context"
	"sync"
)

// Resource is a named node in the application model. Every implementation
// embeds *BaseResource (usually through *ContainerResource), which carries
// the annotation list and the link to the owning model.
type Resource interface {
	// Name returns the resource name, unique within the model.
	Name() string

	// Annotations returns a snapshot of the attached annotations in
	// insertion order.
	Annotations() []Annotation

	// AddAnnotation appends an annotation.
	AddAnnotation(a Annotation)

	base() *BaseResource
}

// ResourceWithConnectionString is implemented by resources that other
// resources can connect to.
type ResourceWithConnectionString interface {
	Resource

	// ConnectionStringExpression returns the unresolved connection string.
	ConnectionStringExpression() *ReferenceExpression

	// GetConnectionString resolves the connection string. It returns ""
	// with a nil error while the underlying endpoints are not allocated.
	GetConnectionString(ctx context.Context) (string, error)
}

// Container is implemented by resources realized as containers.
type Container interface {
	Resource
	isContainer()
}

// BaseResource holds the state shared by every resource.
type BaseResource struct {
	name string

	mu          sync.RWMutex
	annotations []Annotation
	model       *model
}

// NewBaseResource creates a resource with no annotations.
func NewBaseResource(name string) *BaseResource {
	return &BaseResource{name: name}
}

func (r *BaseResource) Name() string { return r.name }

func (r *BaseResource) Annotations() []Annotation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Annotation, len(r.annotations))
	copy(out, r.annotations)
	return out
}

func (r *BaseResource) AddAnnotation(a Annotation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.annotations = append(r.annotations, a)
}

// removeAnnotations drops every annotation for which match returns true.
func (r *BaseResource) removeAnnotations(match func(Annotation) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.annotations[:0]
	for _, a := range r.annotations {
		if !match(a) {
			kept = append(kept, a)
		}
	}
	r.annotations = kept
}

func (r *BaseResource) base() *BaseResource { return r }

func (r *BaseResource) attach(m *model) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.model = m
}

func (r *BaseResource) allocations() *AllocationTable {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.model == nil {
		return nil
	}
	return r.model.allocations
}

// ContainerResource is a resource realized as a single container.
type ContainerResource struct {
	*BaseResource
}

// NewContainerResource creates an empty container resource.
func NewContainerResource(name string) *ContainerResource {
	return &ContainerResource{BaseResource: NewBaseResource(name)}
}

func (c *ContainerResource) isContainer() {}

// LastAnnotation returns the most recently added annotation of type T.
func LastAnnotation[T Annotation](r Resource) (T, bool) {
	all := r.Annotations()
	for i := len(all) - 1; i >= 0; i-- {
		if a, ok := all[i].(T); ok {
			return a, true
		}
	}
	var zero T
	return zero, false
}

// AnnotationsOf returns every annotation of type T in insertion order.
func AnnotationsOf[T Annotation](r Resource) []T {
	var out []T
	for _, a := range r.Annotations() {
		if t, ok := a.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// ResourceSource is anything that can list the resources of a model.
type ResourceSource interface {
	Resources() []Resource
}

// ResourcesOf returns the resources of type T in registration order.
func ResourcesOf[T Resource](src ResourceSource) []T {
	var out []T
	for _, r := range src.Resources() {
		if t, ok := r.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
