package orchestration

import (
	"fmt"
	"net"
	"sync"
)

// PortAllocator hands out host ports for endpoints without a fixed port.
type PortAllocator interface {
	// Reserve marks a fixed port as taken so Allocate never returns it.
	Reserve(port int)

	// Allocate returns a port not returned or reserved before.
	Allocate() (int, error)
}

// FreePortAllocator asks the kernel for unused ports on the loopback
// interface. Thread-safe for concurrent access.
type FreePortAllocator struct {
	mu    sync.Mutex
	taken map[int]struct{}
}

// maxAllocateAttempts bounds retries when the kernel hands back a port that
// was already given out.
const maxAllocateAttempts = 32

// NewFreePortAllocator creates an allocator with no reserved ports.
func NewFreePortAllocator() *FreePortAllocator {
	return &FreePortAllocator{taken: make(map[int]struct{})}
}

// Reserve implements PortAllocator.
func (a *FreePortAllocator) Reserve(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.taken[port] = struct{}{}
}

// Allocate implements PortAllocator.
func (a *FreePortAllocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := 0; i < maxAllocateAttempts; i++ {
		port, err := freePort()
		if err != nil {
			return 0, err
		}
		if _, ok := a.taken[port]; ok {
			continue
		}
		a.taken[port] = struct{}{}
		return port, nil
	}

	return 0, fmt.Errorf("no free port after %d attempts", maxAllocateAttempts)
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to find free port: %w", err)
	}
	defer l.Close()

	return l.Addr().(*net.TCPAddr).Port, nil
}
