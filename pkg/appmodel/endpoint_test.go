package appmodel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointReference_BeforeAllocation(t *testing.T) {
	b := NewBuilder()
	r := AddResource(b, newTestResource("db")).WithEndpoint("tcp", 7687, 0).Resource()
	ref := NewEndpointReference(r, "tcp")

	assert.False(t, ref.IsAllocated())
	assert.Equal(t, "", ref.Host())
	assert.Equal(t, 0, ref.Port())
	assert.Equal(t, "", ref.URL())
	assert.Equal(t, "tcp", ref.EndpointName())
	assert.Same(t, r, ref.Resource())

	v, ok, err := ref.Property(EndpointHost).GetValue(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestEndpointReference_Unregistered(t *testing.T) {
	ref := NewEndpointReference(newTestResource("loose"), "tcp")
	assert.False(t, ref.IsAllocated())
}

func TestEndpointReference_AfterAllocation(t *testing.T) {
	b := NewBuilder()
	r := AddResource(b, newTestResource("db")).WithEndpoint("tcp", 7687, 0).Resource()
	ref := NewEndpointReference(r, "tcp")

	b.Allocations().Allocate("db", "tcp", AllocatedEndpoint{
		Host:          "localhost",
		ContainerHost: "host.docker.internal",
		Port:          41234,
		TargetPort:    7687,
		Scheme:        "tcp",
	})

	assert.True(t, ref.IsAllocated())
	assert.Equal(t, "localhost", ref.Host())
	assert.Equal(t, "host.docker.internal", ref.ContainerHost())
	assert.Equal(t, 41234, ref.Port())
	assert.Equal(t, "tcp://localhost:41234", ref.URL())

	ctx := context.Background()
	tests := []struct {
		property EndpointProperty
		want     string
	}{
		{EndpointHost, "localhost"},
		{EndpointContainerHost, "host.docker.internal"},
		{EndpointPort, "41234"},
		{EndpointTargetPort, "7687"},
		{EndpointURL, "tcp://localhost:41234"},
	}
	for _, tt := range tests {
		t.Run(string(tt.property), func(t *testing.T) {
			v, ok, err := ref.Property(tt.property).GetValue(ctx)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestEndpointValue_Cancelled(t *testing.T) {
	b := NewBuilder()
	r := AddResource(b, newTestResource("db")).Resource()
	ref := NewEndpointReference(r, "tcp")
	b.Allocations().Allocate("db", "tcp", AllocatedEndpoint{Host: "localhost", Port: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := ref.Property(EndpointHost).GetValue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
}

func TestEndpointValue_Expression(t *testing.T) {
	ref := NewEndpointReference(newTestResource("db"), "tcp")
	assert.Equal(t, "{db.bindings.tcp.host}", ref.Property(EndpointHost).ValueExpression())
	assert.Equal(t, "{db.bindings.tcp.port}", ref.Property(EndpointPort).ValueExpression())
}

func TestAllocationTable(t *testing.T) {
	table := NewAllocationTable()
	assert.Equal(t, 0, table.Len())

	table.Allocate("db", "tcp", AllocatedEndpoint{Port: 1})
	table.Allocate("db", "tcp", AllocatedEndpoint{Port: 2})
	table.Allocate("db", "logs", AllocatedEndpoint{Port: 3})

	alloc, ok := table.Lookup("db", "tcp")
	require.True(t, ok)
	assert.Equal(t, 2, alloc.Port)
	assert.Equal(t, 2, table.Len())

	table.Reset()
	_, ok = table.Lookup("db", "tcp")
	assert.False(t, ok)
}

func TestReferenceExpression(t *testing.T) {
	b := NewBuilder()
	r := AddResource(b, newTestResource("db")).Resource()
	ref := NewEndpointReference(r, "tcp")
	expr := NewReferenceExpression("bolt://{0}:{1}", ref.Property(EndpointHost), ref.Property(EndpointPort))

	assert.Equal(t, "bolt://{0}:{1}", expr.Format())
	assert.Len(t, expr.Values(), 2)
	assert.Equal(t, "bolt://{db.bindings.tcp.host}:{db.bindings.tcp.port}", expr.ValueExpression())

	_, ok, err := expr.GetValue(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	b.Allocations().Allocate("db", "tcp", AllocatedEndpoint{Host: "localhost", Port: 7000})
	v, ok, err := expr.GetValue(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bolt://localhost:7000", v)
}

func TestReferenceExpression_Literal(t *testing.T) {
	expr := NewReferenceExpression("{0}-{1}", Literal("a"), Literal("b"))
	v, ok, err := expr.GetValue(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a-b", v)
	assert.Equal(t, "a-b", expr.ValueExpression())
}
