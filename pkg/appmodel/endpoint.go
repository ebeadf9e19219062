package appmodel

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// AllocatedEndpoint is the host-side view of an endpoint once the
// orchestrator has assigned it a port.
type AllocatedEndpoint struct {
	// Host is the address clients on the host machine use
	Host string `json:"host"`

	// ContainerHost is the address other containers use to reach the host
	ContainerHost string `json:"containerHost"`

	// Port is the allocated host port
	Port int `json:"port"`

	// TargetPort is the port inside the container
	TargetPort int `json:"targetPort"`

	Scheme string `json:"scheme"`
}

// URL renders scheme://host:port.
func (e AllocatedEndpoint) URL() string {
	return fmt.Sprintf("%s://%s:%d", e.Scheme, e.Host, e.Port)
}

// AllocationTable maps (resource, endpoint) handles to their allocations.
// The orchestrator writes it once per run; everything else only reads.
type AllocationTable struct {
	mu      sync.RWMutex
	entries map[string]AllocatedEndpoint
}

// NewAllocationTable returns an empty table.
func NewAllocationTable() *AllocationTable {
	return &AllocationTable{entries: make(map[string]AllocatedEndpoint)}
}

func allocationKey(resource, endpoint string) string {
	return resource + "/" + endpoint
}

// Allocate records the allocation for an endpoint, replacing any earlier one.
func (t *AllocationTable) Allocate(resource, endpoint string, alloc AllocatedEndpoint) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[allocationKey(resource, endpoint)] = alloc
}

// Lookup returns the allocation for an endpoint, if any.
func (t *AllocationTable) Lookup(resource, endpoint string) (AllocatedEndpoint, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	alloc, ok := t.entries[allocationKey(resource, endpoint)]
	return alloc, ok
}

// Reset forgets every allocation.
func (t *AllocationTable) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make(map[string]AllocatedEndpoint)
}

// Len returns the number of allocated endpoints.
func (t *AllocationTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.entries)
}

// EndpointProperty selects one part of an allocated endpoint.
type EndpointProperty string

const (
	EndpointHost          EndpointProperty = "host"
	EndpointContainerHost EndpointProperty = "containerHost"
	EndpointPort          EndpointProperty = "port"
	EndpointTargetPort    EndpointProperty = "targetPort"
	EndpointURL           EndpointProperty = "url"
)

// EndpointReference is a handle to a named endpoint of a resource. It does
// not own the allocation; it looks it up in the model's AllocationTable
// every time it is read.
type EndpointReference struct {
	owner Resource
	name  string
}

// NewEndpointReference creates a handle for endpoint name on owner.
func NewEndpointReference(owner Resource, name string) *EndpointReference {
	return &EndpointReference{owner: owner, name: name}
}

// Resource returns the resource that declares the endpoint.
func (e *EndpointReference) Resource() Resource { return e.owner }

// EndpointName returns the endpoint name.
func (e *EndpointReference) EndpointName() string { return e.name }

// Allocation returns the current allocation, if the endpoint has one.
func (e *EndpointReference) Allocation() (AllocatedEndpoint, bool) {
	table := e.owner.base().allocations()
	if table == nil {
		return AllocatedEndpoint{}, false
	}
	return table.Lookup(e.owner.Name(), e.name)
}

// IsAllocated reports whether the host has allocated this endpoint.
func (e *EndpointReference) IsAllocated() bool {
	_, ok := e.Allocation()
	return ok
}

// Host returns the allocated host, or "" before allocation.
func (e *EndpointReference) Host() string {
	alloc, _ := e.Allocation()
	return alloc.Host
}

// ContainerHost returns the host as seen from other containers, or "".
func (e *EndpointReference) ContainerHost() string {
	alloc, _ := e.Allocation()
	return alloc.ContainerHost
}

// Port returns the allocated host port, or 0 before allocation.
func (e *EndpointReference) Port() int {
	alloc, _ := e.Allocation()
	return alloc.Port
}

// URL returns the endpoint URL, or "" before allocation.
func (e *EndpointReference) URL() string {
	alloc, ok := e.Allocation()
	if !ok {
		return ""
	}
	return alloc.URL()
}

// Property returns a deferred value for one part of the endpoint.
func (e *EndpointReference) Property(p EndpointProperty) ValueProvider {
	return &endpointValue{ref: e, property: p}
}

type endpointValue struct {
	ref      *EndpointReference
	property EndpointProperty
}

func (v *endpointValue) GetValue(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	alloc, ok := v.ref.Allocation()
	if !ok {
		return "", false, nil
	}

	switch v.property {
	case EndpointHost:
		return alloc.Host, true, nil
	case EndpointContainerHost:
		return alloc.ContainerHost, true, nil
	case EndpointPort:
		return strconv.Itoa(alloc.Port), true, nil
	case EndpointTargetPort:
		return strconv.Itoa(alloc.TargetPort), true, nil
	case EndpointURL:
		return alloc.URL(), true, nil
	default:
		return "", false, fmt.Errorf("unknown endpoint property %q", v.property)
	}
}

func (v *endpointValue) ValueExpression() string {
	return fmt.Sprintf("{%s.bindings.%s.%s}", v.ref.owner.Name(), v.ref.name, v.property)
}
