// Package health checks that started resources accept connections.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// DefaultConnectTimeout bounds a single bolt connection attempt.
const DefaultConnectTimeout = 5 * time.Second

// Prober performs one readiness check.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context) error

// Probe implements Prober.
func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }

// BoltProbe checks that a Memgraph instance answers on its bolt endpoint.
type BoltProbe struct {
	// URI is the connection string, e.g. bolt://localhost:7687
	URI string

	// ConnectTimeout bounds the socket connect (default: 5s)
	ConnectTimeout time.Duration
}

// NewBoltProbe creates a probe for a bolt connection string.
func NewBoltProbe(uri string) *BoltProbe {
	return &BoltProbe{URI: uri, ConnectTimeout: DefaultConnectTimeout}
}

// Probe opens a driver, verifies connectivity and closes it again.
func (p *BoltProbe) Probe(ctx context.Context) error {
	if p.URI == "" {
		return errors.New("bolt uri is empty")
	}

	timeout := p.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}

	driver, err := neo4j.NewDriverWithContext(p.URI, neo4j.NoAuth(), func(c *neo4j.Config) {
		c.SocketConnectTimeout = timeout
		c.MaxConnectionPoolSize = 1
	})
	if err != nil {
		return fmt.Errorf("invalid bolt uri %s: %w", p.URI, err)
	}
	defer driver.Close(context.WithoutCancel(ctx))

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("bolt endpoint %s not ready: %w", p.URI, err)
	}
	return nil
}

// WaitReady probes every interval until p succeeds or ctx is done. The
// first probe runs immediately. The last probe error is wrapped into the
// returned error when ctx expires.
func WaitReady(ctx context.Context, p Prober, interval time.Duration, logger *zap.SugaredLogger) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempt := 0
	for {
		attempt++
		err := p.Probe(ctx)
		if err == nil {
			logger.Infow("Resource ready", "attempts", attempt)
			return nil
		}
		logger.Debugw("Resource not ready yet", "attempt", attempt, "error", err)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("gave up after %d attempts: %w (last error: %v)", attempt, ctx.Err(), err)
		}
	}
}
