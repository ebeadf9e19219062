package orchestration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/mgapphost/pkg/appmodel"
	"evalgo.org/mgapphost/pkg/memgraph"
)

// created records one ContainerCreate call.
type created struct {
	name    string
	config  *container.Config
	host    *container.HostConfig
	network *network.NetworkingConfig
}

// MockDockerClient is an in-memory DockerClient.
type MockDockerClient struct {
	mu sync.Mutex

	pulled          []string
	networks        []string
	removedNetworks []string
	volumes         []string
	removedVolumes  []string
	created         []created
	started         []string
	stopped         []string
	removed         []string

	startErr map[string]error
	pullErr  error
}

func NewMockDockerClient() *MockDockerClient {
	return &MockDockerClient{startErr: make(map[string]error)}
}

func (m *MockDockerClient) Ping(ctx context.Context) (types.Ping, error) {
	return types.Ping{APIVersion: "1.47"}, nil
}

func (m *MockDockerClient) ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pullErr != nil {
		return nil, m.pullErr
	}
	m.pulled = append(m.pulled, ref)
	return io.NopCloser(strings.NewReader(`{"status":"Downloaded"}`)), nil
}

func (m *MockDockerClient) NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.networks = append(m.networks, name)
	return network.CreateResponse{ID: "net-" + name}, nil
}

func (m *MockDockerClient) NetworkRemove(ctx context.Context, networkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removedNetworks = append(m.removedNetworks, networkID)
	return nil
}

func (m *MockDockerClient) VolumeCreate(ctx context.Context, options volume.CreateOptions) (volume.Volume, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.volumes = append(m.volumes, options.Name)
	return volume.Volume{Name: options.Name, Driver: options.Driver}, nil
}

func (m *MockDockerClient) VolumeRemove(ctx context.Context, volumeID string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removedVolumes = append(m.removedVolumes, volumeID)
	return nil
}

func (m *MockDockerClient) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
	networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.created = append(m.created, created{name: containerName, config: config, host: hostConfig, network: networkingConfig})
	return container.CreateResponse{ID: "id-" + containerName}, nil
}

func (m *MockDockerClient) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for prefix, err := range m.startErr {
		if strings.HasPrefix(containerID, "id-"+prefix+"-") {
			return err
		}
	}
	m.started = append(m.started, containerID)
	return nil
}

func (m *MockDockerClient) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopped = append(m.stopped, containerID)
	return nil
}

func (m *MockDockerClient) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removed = append(m.removed, containerID)
	return nil
}

func (m *MockDockerClient) Close() error { return nil }

func (m *MockDockerClient) container(resource string) (created, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.created {
		if c.config.Labels[LabelResource] == resource {
			return c, true
		}
	}
	return created{}, false
}

// seqPorts hands out increasing ports, skipping reserved ones.
type seqPorts struct {
	next  int
	taken map[int]bool
}

func newSeqPorts(start int) *seqPorts {
	return &seqPorts{next: start, taken: make(map[int]bool)}
}

func (s *seqPorts) Reserve(port int) { s.taken[port] = true }

func (s *seqPorts) Allocate() (int, error) {
	for s.taken[s.next] {
		s.next++
	}
	p := s.next
	s.taken[p] = true
	s.next++
	return p, nil
}

func buildApp(t *testing.T, dbPort int, withLab bool) (*appmodel.Application, *appmodel.ResourceBuilder[*memgraph.Resource]) {
	t.Helper()

	b := appmodel.NewBuilder()
	db := memgraph.WithDataVolume(memgraph.Add(b, "db", dbPort, 0), "", false)
	if withLab {
		memgraph.WithLab(db, nil, "")
	}

	app, err := b.Build()
	require.NoError(t, err)
	return app, db
}

func env(t *testing.T, c created) map[string]string {
	t.Helper()

	out := make(map[string]string)
	for _, kv := range c.config.Env {
		k, v, ok := strings.Cut(kv, "=")
		require.True(t, ok, kv)
		out[k] = v
	}
	return out
}

func TestOrchestrator_Run(t *testing.T) {
	app, db := buildApp(t, 0, true)
	cli := NewMockDockerClient()
	o := New(cli, newSeqPorts(40000), nil, Options{PullImages: true})
	ctx := context.Background()

	require.NoError(t, o.Run(ctx, app))
	assert.True(t, o.Running())
	assert.NotEmpty(t, o.RunID())

	// Network and volume
	require.Len(t, cli.networks, 1)
	assert.Equal(t, "mgapphost-"+o.RunID()[:8], cli.networks[0])
	assert.Equal(t, []string{"volume-db-data"}, cli.volumes)
	assert.ElementsMatch(t, []string{
		"docker.io/memgraph/memgraph:latest",
		"docker.io/memgraph/lab:latest",
	}, cli.pulled)

	// Database container
	dbc, ok := cli.container("db")
	require.True(t, ok)
	assert.Equal(t, "db-"+o.RunID()[:8], dbc.name)
	assert.Equal(t, "docker.io/memgraph/memgraph:latest", dbc.config.Image)
	assert.Contains(t, dbc.config.ExposedPorts, nat.Port("7687/tcp"))
	assert.Contains(t, dbc.config.ExposedPorts, nat.Port("7444/tcp"))
	assert.Equal(t, "40000", dbc.host.PortBindings[nat.Port("7687/tcp")][0].HostPort)
	assert.Equal(t, "40001", dbc.host.PortBindings[nat.Port("7444/tcp")][0].HostPort)
	assert.Equal(t, []string{HostGateway}, dbc.host.ExtraHosts)
	require.Len(t, dbc.host.Mounts, 1)
	assert.Equal(t, mount.Mount{
		Type:   mount.TypeVolume,
		Source: "volume-db-data",
		Target: "/var/lib/memgraph",
	}, dbc.host.Mounts[0])
	assert.Equal(t, []string{"db"}, dbc.network.EndpointsConfig[cli.networks[0]].Aliases)

	// Lab container sees the database through the host
	labc, ok := cli.container("db-lab")
	require.True(t, ok)
	assert.Equal(t, "docker.io/memgraph/lab:latest", labc.config.Image)
	assert.Equal(t, "40002", labc.host.PortBindings[nat.Port("3000/tcp")][0].HostPort)
	labEnv := env(t, labc)
	assert.Equal(t, "host.docker.internal", labEnv[memgraph.EnvQuickConnectHost])
	assert.Equal(t, "40000", labEnv[memgraph.EnvQuickConnectPort])

	// Connection string resolves after allocation
	cs, err := db.Resource().GetConnectionString(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bolt://localhost:40000", cs)

	states := o.States()
	require.Len(t, states, 2)
	for _, s := range states {
		assert.Equal(t, StateRunning, s.State)
	}
	labState, ok := o.State("db-lab")
	require.True(t, ok)
	assert.Equal(t, "40000", labState.Env[memgraph.EnvQuickConnectPort])
}

func TestOrchestrator_FixedPortsRespected(t *testing.T) {
	app, _ := buildApp(t, 40000, true)
	cli := NewMockDockerClient()
	o := New(cli, newSeqPorts(40000), nil, Options{})

	require.NoError(t, o.Run(context.Background(), app))

	dbc, _ := cli.container("db")
	assert.Equal(t, "40000", dbc.host.PortBindings[nat.Port("7687/tcp")][0].HostPort)
	// The fixed port is reserved, so the allocator skips it
	assert.Equal(t, "40001", dbc.host.PortBindings[nat.Port("7444/tcp")][0].HostPort)

	labc, _ := cli.container("db-lab")
	assert.Equal(t, "40000", env(t, labc)[memgraph.EnvQuickConnectPort])
	assert.Empty(t, cli.pulled)
}

func TestOrchestrator_CustomContainerHost(t *testing.T) {
	app, _ := buildApp(t, 0, true)
	cli := NewMockDockerClient()
	o := New(cli, newSeqPorts(41000), nil, Options{ContainerHost: "172.17.0.1", NetworkName: "graph-net"})

	require.NoError(t, o.Run(context.Background(), app))

	assert.Equal(t, []string{"graph-net"}, cli.networks)
	labc, _ := cli.container("db-lab")
	assert.Equal(t, "172.17.0.1", env(t, labc)[memgraph.EnvQuickConnectHost])
}

func TestOrchestrator_EventsFireOnce(t *testing.T) {
	b := appmodel.NewBuilder()
	memgraph.Add(b, "db", 0, 0)

	var order []string
	appmodel.Subscribe(b.Eventing(), func(ctx context.Context, e appmodel.BeforeStartEvent) error {
		order = append(order, e.EventName())
		return nil
	})
	appmodel.Subscribe(b.Eventing(), func(ctx context.Context, e appmodel.AfterEndpointsAllocatedEvent) error {
		order = append(order, e.EventName())
		return nil
	})
	appmodel.Subscribe(b.Eventing(), func(ctx context.Context, e appmodel.AfterResourcesCreatedEvent) error {
		order = append(order, e.EventName())
		return nil
	})

	app, err := b.Build()
	require.NoError(t, err)

	o := New(NewMockDockerClient(), newSeqPorts(42000), nil, Options{})
	ctx := context.Background()

	require.NoError(t, o.Run(ctx, app))
	assert.ErrorIs(t, o.Run(ctx, app), ErrAlreadyRunning)

	require.NoError(t, o.Stop(ctx))
	require.NoError(t, o.Run(ctx, app))

	assert.Equal(t, []string{"before-start", "after-endpoints-allocated", "after-resources-created"}, order)
}

func TestOrchestrator_RollbackOnStartFailure(t *testing.T) {
	app, db := buildApp(t, 0, true)
	cli := NewMockDockerClient()
	cli.startErr["db-lab"] = errors.New("port is already allocated")
	o := New(cli, newSeqPorts(43000), nil, Options{})
	ctx := context.Background()

	err := o.Run(ctx, app)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db-lab")
	assert.Contains(t, err.Error(), "port is already allocated")

	assert.False(t, o.Running())
	short := o.RunID()[:8]
	assert.Equal(t, []string{"id-db-lab-" + short, "id-db-" + short}, cli.removed)
	assert.Empty(t, cli.stopped)
	assert.Equal(t, []string{"net-mgapphost-" + short}, cli.removedNetworks)
	assert.Empty(t, cli.removedVolumes)

	cs, err := db.Resource().GetConnectionString(ctx)
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestOrchestrator_RollbackOnHandlerFailure(t *testing.T) {
	b := appmodel.NewBuilder()
	memgraph.Add(b, "db", 0, 0)
	appmodel.Subscribe(b.Eventing(), func(ctx context.Context, e appmodel.AfterEndpointsAllocatedEvent) error {
		return fmt.Errorf("boom")
	})
	app, err := b.Build()
	require.NoError(t, err)

	cli := NewMockDockerClient()
	o := New(cli, newSeqPorts(44000), nil, Options{})

	err = o.Run(context.Background(), app)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Empty(t, cli.networks)
	assert.Empty(t, cli.created)
	assert.Zero(t, app.Allocations().Len())
}

func TestOrchestrator_PullFailure(t *testing.T) {
	app, _ := buildApp(t, 0, false)
	cli := NewMockDockerClient()
	cli.pullErr = errors.New("manifest unknown")
	o := New(cli, newSeqPorts(45000), nil, Options{PullImages: true})

	err := o.Run(context.Background(), app)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memgraph/memgraph:latest")
	assert.Empty(t, cli.created)
	assert.Len(t, cli.removedNetworks, 1)
}

func TestOrchestrator_Stop(t *testing.T) {
	tests := []struct {
		name          string
		removeVolumes bool
		wantVolumes   []string
	}{
		{name: "keep volumes"},
		{name: "remove volumes", removeVolumes: true, wantVolumes: []string{"volume-db-data"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := buildApp(t, 0, true)
			cli := NewMockDockerClient()
			o := New(cli, newSeqPorts(46000), nil, Options{RemoveVolumes: tt.removeVolumes})
			ctx := context.Background()

			require.NoError(t, o.Run(ctx, app))
			require.NoError(t, o.Stop(ctx))

			short := o.RunID()[:8]
			assert.Equal(t, []string{"id-db-lab-" + short, "id-db-" + short}, cli.stopped)
			assert.Equal(t, []string{"id-db-lab-" + short, "id-db-" + short}, cli.removed)
			assert.Len(t, cli.removedNetworks, 1)
			assert.Equal(t, tt.wantVolumes, cli.removedVolumes)
			assert.False(t, o.Running())
			assert.Zero(t, app.Allocations().Len())

			for _, s := range o.States() {
				assert.Equal(t, StateStopped, s.State)
			}

			// A second stop is a no-op
			require.NoError(t, o.Stop(ctx))
			assert.Len(t, cli.removed, 2)
		})
	}
}

func TestOrchestrator_BindMount(t *testing.T) {
	b := appmodel.NewBuilder()
	memgraph.WithDataBindMount(memgraph.Add(b, "db", 0, 0), "/srv/memgraph", true)
	app, err := b.Build()
	require.NoError(t, err)

	cli := NewMockDockerClient()
	o := New(cli, newSeqPorts(47000), nil, Options{})
	require.NoError(t, o.Run(context.Background(), app))

	assert.Empty(t, cli.volumes)
	dbc, _ := cli.container("db")
	require.Len(t, dbc.host.Mounts, 1)
	assert.Equal(t, mount.TypeBind, dbc.host.Mounts[0].Type)
	assert.Equal(t, "/srv/memgraph", dbc.host.Mounts[0].Source)
	assert.True(t, dbc.host.Mounts[0].ReadOnly)
}

func TestOrchestrator_LastMountOnTargetWins(t *testing.T) {
	b := appmodel.NewBuilder()
	db := memgraph.WithDataVolume(memgraph.Add(b, "db", 0, 0), "", false)
	memgraph.WithDataBindMount(db, "/srv/memgraph", false)
	app, err := b.Build()
	require.NoError(t, err)

	cli := NewMockDockerClient()
	o := New(cli, newSeqPorts(47100), nil, Options{})
	require.NoError(t, o.Run(context.Background(), app))

	assert.Empty(t, cli.volumes)
	dbc, _ := cli.container("db")
	require.Len(t, dbc.host.Mounts, 1)
	assert.Equal(t, mount.TypeBind, dbc.host.Mounts[0].Type)
	assert.Equal(t, memgraph.DataPath, dbc.host.Mounts[0].Target)
}

func TestOrchestrator_RerunRefreshesLabEnvironment(t *testing.T) {
	app, db := buildApp(t, 0, true)
	cli := NewMockDockerClient()
	o := New(cli, newSeqPorts(40000), nil, Options{})
	ctx := context.Background()

	require.NoError(t, o.Run(ctx, app))
	firstPort := db.Resource().PrimaryEndpoint().Port()
	require.NoError(t, o.Stop(ctx))

	require.NoError(t, o.Run(ctx, app))
	secondPort := db.Resource().PrimaryEndpoint().Port()
	require.NotEqual(t, firstPort, secondPort)

	var labRuns []created
	for _, c := range cli.created {
		if c.config.Labels[LabelResource] == "db-lab" {
			labRuns = append(labRuns, c)
		}
	}
	require.Len(t, labRuns, 2)
	assert.Equal(t, strconv.Itoa(firstPort), env(t, labRuns[0])[memgraph.EnvQuickConnectPort])
	assert.Equal(t, strconv.Itoa(secondPort), env(t, labRuns[1])[memgraph.EnvQuickConnectPort])
}
