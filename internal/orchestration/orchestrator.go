// Package orchestration runs an application model as Docker containers on a
// single host: it allocates endpoint ports, fires the model's lifecycle
// events and creates the network, volumes and containers the resources ask
// for.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"evalgo.org/mgapphost/pkg/appmodel"
)

// ErrAlreadyRunning is returned by Run while a previous run is active.
var ErrAlreadyRunning = errors.New("application is already running")

const (
	// LabelRunID tags every object created by one run.
	LabelRunID = "org.evalgo.mgapphost.run"

	// LabelResource tags containers with the resource they realize.
	LabelResource = "org.evalgo.mgapphost.resource"

	// HostGateway lets containers reach ports published on the host.
	HostGateway = "host.docker.internal:host-gateway"

	// DefaultContainerHost is the host name containers use for the host.
	DefaultContainerHost = "host.docker.internal"

	// DefaultStopTimeout is the grace period for stopping containers.
	DefaultStopTimeout = 10 * time.Second
)

// Options contains orchestrator settings.
type Options struct {
	// ContainerHost is recorded as the container-side host of every endpoint
	ContainerHost string

	// NetworkName overrides the per-run network name
	NetworkName string

	// PullImages pulls images before creating containers
	PullImages bool

	// RemoveVolumes deletes named volumes on Stop
	RemoveVolumes bool

	// StopTimeout is how long containers get to stop gracefully
	StopTimeout time.Duration
}

// State is the lifecycle state of one container resource.
type State string

const (
	StateCreated State = "created"
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateFailed  State = "failed"
)

// ResourceState describes the container created for a resource.
type ResourceState struct {
	Name          string            `json:"name"`
	ContainerID   string            `json:"containerId"`
	ContainerName string            `json:"containerName"`
	Image         string            `json:"image"`
	Env           map[string]string `json:"env,omitempty"`
	State         State             `json:"state"`
}

// Orchestrator realizes an application model with a Docker daemon.
// Thread-safe for concurrent access.
type Orchestrator struct {
	client  DockerClient
	ports   PortAllocator
	logger  *zap.SugaredLogger
	options Options

	mu          sync.RWMutex
	running     bool
	runID       string
	app         *appmodel.Application
	networkID   string
	networkName string
	volumes     []string
	containers  []*ResourceState
}

// New creates an orchestrator. A nil ports uses a FreePortAllocator and a
// nil logger discards output.
func New(client DockerClient, ports PortAllocator, logger *zap.SugaredLogger, opts Options) *Orchestrator {
	if ports == nil {
		ports = NewFreePortAllocator()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.ContainerHost == "" {
		opts.ContainerHost = DefaultContainerHost
	}
	if opts.StopTimeout == 0 {
		opts.StopTimeout = DefaultStopTimeout
	}

	return &Orchestrator{
		client:  client,
		ports:   ports,
		logger:  logger,
		options: opts,
	}
}

// Run starts app. It fires BeforeStartEvent, allocates every endpoint,
// fires AfterEndpointsAllocatedEvent, creates the network, volumes and
// containers, then fires AfterResourcesCreatedEvent. On failure everything
// created so far is removed again.
func (o *Orchestrator) Run(ctx context.Context, app *appmodel.Application) (err error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.running = true
	o.app = app
	o.runID = uuid.NewString()
	o.networkID = ""
	o.networkName = o.options.NetworkName
	if o.networkName == "" {
		o.networkName = "mgapphost-" + o.shortID()
	}
	o.volumes = nil
	o.containers = nil
	log := o.logger.With("run_id", o.runID)
	o.mu.Unlock()

	defer func() {
		if err != nil {
			log.Errorw("Run failed, rolling back", "error", err)
			if rbErr := o.teardown(context.WithoutCancel(ctx), false); rbErr != nil {
				log.Warnw("Rollback incomplete", "error", rbErr)
			}
		}
	}()

	if err = app.Eventing().Publish(ctx, appmodel.BeforeStartEvent{App: app}); err != nil {
		return fmt.Errorf("before-start handlers failed: %w", err)
	}

	containers := appmodel.ResourcesOf[appmodel.Container](app)

	if err = o.allocateEndpoints(app, containers, log); err != nil {
		return err
	}

	if err = app.Eventing().Publish(ctx, appmodel.AfterEndpointsAllocatedEvent{App: app}); err != nil {
		return fmt.Errorf("after-endpoints-allocated handlers failed: %w", err)
	}

	if err = o.createNetwork(ctx, log); err != nil {
		return err
	}

	if err = o.createVolumes(ctx, containers, log); err != nil {
		return err
	}

	if o.options.PullImages {
		if err = o.pullImages(ctx, containers, log); err != nil {
			return err
		}
	}

	for _, r := range containers {
		if err = o.deployContainer(ctx, app, r, log); err != nil {
			return fmt.Errorf("failed to deploy %s: %w", r.Name(), err)
		}
	}

	if err = app.Eventing().Publish(ctx, appmodel.AfterResourcesCreatedEvent{App: app}); err != nil {
		return fmt.Errorf("after-resources-created handlers failed: %w", err)
	}

	log.Infow("Application started", "containers", len(containers), "network", o.networkName)
	return nil
}

// Stop stops and removes every container of the current run, then the
// network and, with Options.RemoveVolumes, the named volumes. Stop without
// an active run is a no-op.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.RLock()
	running := o.running
	o.mu.RUnlock()
	if !running {
		return nil
	}

	return o.teardown(ctx, true)
}

// Running reports whether a run is active.
func (o *Orchestrator) Running() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.running
}

// RunID returns the id of the current or last run.
func (o *Orchestrator) RunID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.runID
}

// States returns a copy of the container states in creation order.
func (o *Orchestrator) States() []ResourceState {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]ResourceState, 0, len(o.containers))
	for _, c := range o.containers {
		s := *c
		s.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			s.Env[k] = v
		}
		out = append(out, s)
	}
	return out
}

// State returns the state of the container created for resource name.
func (o *Orchestrator) State(name string) (ResourceState, bool) {
	for _, s := range o.States() {
		if s.Name == name {
			return s, true
		}
	}
	return ResourceState{}, false
}

func (o *Orchestrator) shortID() string {
	return o.runID[:8]
}

func (o *Orchestrator) labels(resource string) map[string]string {
	labels := map[string]string{LabelRunID: o.runID}
	if resource != "" {
		labels[LabelResource] = resource
	}
	return labels
}

// allocateEndpoints records a host port for every endpoint. Fixed ports are
// reserved first so the allocator never hands them out twice.
func (o *Orchestrator) allocateEndpoints(app *appmodel.Application, containers []appmodel.Container, log *zap.SugaredLogger) error {
	for _, r := range containers {
		for _, ep := range appmodel.AnnotationsOf[*appmodel.EndpointAnnotation](r) {
			if ep.Port != 0 {
				o.ports.Reserve(ep.Port)
			}
		}
	}

	for _, r := range containers {
		for _, ep := range appmodel.AnnotationsOf[*appmodel.EndpointAnnotation](r) {
			port := ep.Port
			if port == 0 {
				p, err := o.ports.Allocate()
				if err != nil {
					return fmt.Errorf("failed to allocate port for %s/%s: %w", r.Name(), ep.Name, err)
				}
				port = p
			}

			app.Allocations().Allocate(r.Name(), ep.Name, appmodel.AllocatedEndpoint{
				Host:          "localhost",
				ContainerHost: o.options.ContainerHost,
				Port:          port,
				TargetPort:    ep.TargetPort,
				Scheme:        ep.Scheme,
			})
			log.Debugw("Endpoint allocated", "resource", r.Name(), "endpoint", ep.Name, "port", port, "target_port", ep.TargetPort)
		}
	}

	return nil
}

func (o *Orchestrator) createNetwork(ctx context.Context, log *zap.SugaredLogger) error {
	resp, err := o.client.NetworkCreate(ctx, o.networkName, network.CreateOptions{
		Driver: "bridge",
		Labels: o.labels(""),
	})
	if err != nil {
		return fmt.Errorf("failed to create network %s: %w", o.networkName, err)
	}

	o.mu.Lock()
	o.networkID = resp.ID
	o.mu.Unlock()

	log.Infow("Network created", "network", o.networkName, "id", resp.ID)
	return nil
}

// createVolumes creates each named volume once. Existing volumes are reused
// by the daemon, so data survives between runs.
func (o *Orchestrator) createVolumes(ctx context.Context, containers []appmodel.Container, log *zap.SugaredLogger) error {
	seen := make(map[string]struct{})
	for _, r := range containers {
		for _, m := range effectiveMounts(r) {
			if m.Type != appmodel.MountTypeVolume {
				continue
			}
			if _, ok := seen[m.Source]; ok {
				continue
			}
			seen[m.Source] = struct{}{}

			vol, err := o.client.VolumeCreate(ctx, volume.CreateOptions{
				Name:   m.Source,
				Driver: "local",
				Labels: o.labels(r.Name()),
			})
			if err != nil {
				return fmt.Errorf("failed to create volume %s: %w", m.Source, err)
			}

			o.mu.Lock()
			o.volumes = append(o.volumes, vol.Name)
			o.mu.Unlock()

			log.Infow("Volume ready", "volume", vol.Name, "resource", r.Name())
		}
	}
	return nil
}

func (o *Orchestrator) pullImages(ctx context.Context, containers []appmodel.Container, log *zap.SugaredLogger) error {
	pulled := make(map[string]struct{})
	for _, r := range containers {
		img, ok := appmodel.LastAnnotation[*appmodel.ContainerImageAnnotation](r)
		if !ok {
			continue
		}
		ref := img.Reference()
		if _, ok := pulled[ref]; ok {
			continue
		}
		pulled[ref] = struct{}{}

		log.Infow("Pulling image", "image", ref)
		rc, err := o.client.ImagePull(ctx, ref, image.PullOptions{})
		if err != nil {
			return fmt.Errorf("failed to pull image %s: %w", ref, err)
		}
		// The pull only completes once the progress stream is drained
		_, err = io.Copy(io.Discard, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("failed to pull image %s: %w", ref, err)
		}
	}
	return nil
}

func (o *Orchestrator) deployContainer(ctx context.Context, app *appmodel.Application, r appmodel.Container, log *zap.SugaredLogger) error {
	img, ok := appmodel.LastAnnotation[*appmodel.ContainerImageAnnotation](r)
	if !ok {
		return fmt.Errorf("resource %s has no container image", r.Name())
	}

	env, err := appmodel.ResolveEnvironment(ctx, r, log)
	if err != nil {
		return err
	}

	state := &ResourceState{
		Name:          r.Name(),
		ContainerName: fmt.Sprintf("%s-%s", r.Name(), o.shortID()),
		Image:         img.Reference(),
		Env:           env,
	}

	containerConfig := o.buildContainerConfig(r, state)
	hostConfig := buildHostConfig(app, r)
	networkConfig := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			o.networkName: {Aliases: []string{r.Name()}},
		},
	}

	resp, err := o.client.ContainerCreate(ctx, containerConfig, hostConfig, networkConfig, nil, state.ContainerName)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	state.ContainerID = resp.ID
	state.State = StateCreated
	o.mu.Lock()
	o.containers = append(o.containers, state)
	o.mu.Unlock()

	if err := o.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		o.setState(state, StateFailed)
		return fmt.Errorf("failed to start container: %w", err)
	}
	o.setState(state, StateRunning)

	log.Infow("Container started",
		"resource", r.Name(),
		"container", state.ContainerName,
		"id", resp.ID,
		"image", state.Image)
	return nil
}

func (o *Orchestrator) setState(s *ResourceState, st State) {
	o.mu.Lock()
	s.State = st
	o.mu.Unlock()
}

// buildContainerConfig builds the Docker container.Config for a resource.
func (o *Orchestrator) buildContainerConfig(r appmodel.Container, state *ResourceState) *container.Config {
	config := &container.Config{
		Image:  state.Image,
		Env:    appmodel.EnvList(state.Env),
		Labels: o.labels(r.Name()),
	}

	endpoints := appmodel.AnnotationsOf[*appmodel.EndpointAnnotation](r)
	if len(endpoints) > 0 {
		config.ExposedPorts = make(nat.PortSet)
		for _, ep := range endpoints {
			config.ExposedPorts[containerPort(ep)] = struct{}{}
		}
	}

	return config
}

// buildHostConfig builds the Docker container.HostConfig for a resource from
// its allocated endpoints and mounts.
func buildHostConfig(app *appmodel.Application, r appmodel.Container) *container.HostConfig {
	hostConfig := &container.HostConfig{
		PortBindings: make(nat.PortMap),
		Mounts:       []mount.Mount{},
		ExtraHosts:   []string{HostGateway},
	}

	for _, ep := range appmodel.AnnotationsOf[*appmodel.EndpointAnnotation](r) {
		alloc, ok := app.Allocations().Lookup(r.Name(), ep.Name)
		if !ok {
			continue
		}
		hostConfig.PortBindings[containerPort(ep)] = []nat.PortBinding{
			{HostPort: strconv.Itoa(alloc.Port)},
		}
	}

	for _, m := range effectiveMounts(r) {
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:     mount.Type(m.Type),
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	return hostConfig
}

// effectiveMounts returns one mount per target path. A later mount replaces
// an earlier one on the same target but keeps its position.
func effectiveMounts(r appmodel.Container) []*appmodel.ContainerMountAnnotation {
	var out []*appmodel.ContainerMountAnnotation
	index := make(map[string]int)
	for _, m := range appmodel.AnnotationsOf[*appmodel.ContainerMountAnnotation](r) {
		if i, ok := index[m.Target]; ok {
			out[i] = m
			continue
		}
		index[m.Target] = len(out)
		out = append(out, m)
	}
	return out
}

func containerPort(ep *appmodel.EndpointAnnotation) nat.Port {
	protocol := ep.Protocol
	if protocol == "" {
		protocol = "tcp"
	}
	return nat.Port(fmt.Sprintf("%d/%s", ep.TargetPort, protocol))
}

// teardown removes what the current run created, containers in reverse
// creation order. graceful stops containers before removal and honours
// Options.RemoveVolumes; rollback skips both.
func (o *Orchestrator) teardown(ctx context.Context, graceful bool) error {
	o.mu.RLock()
	containers := make([]*ResourceState, len(o.containers))
	copy(containers, o.containers)
	networkID := o.networkID
	volumes := append([]string(nil), o.volumes...)
	app := o.app
	log := o.logger.With("run_id", o.runID)
	o.mu.RUnlock()

	var result *multierror.Error

	timeout := int(o.options.StopTimeout.Seconds())
	for i := len(containers) - 1; i >= 0; i-- {
		c := containers[i]
		if graceful {
			if err := o.client.ContainerStop(ctx, c.ContainerID, container.StopOptions{Timeout: &timeout}); err != nil {
				result = multierror.Append(result, fmt.Errorf("failed to stop %s: %w", c.ContainerName, err))
			}
		}
		if err := o.client.ContainerRemove(ctx, c.ContainerID, container.RemoveOptions{Force: true}); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to remove %s: %w", c.ContainerName, err))
			continue
		}
		o.setState(c, StateStopped)
		log.Infow("Container removed", "resource", c.Name, "container", c.ContainerName)
	}

	if networkID != "" {
		if err := o.client.NetworkRemove(ctx, networkID); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to remove network %s: %w", networkID, err))
		}
	}

	if graceful && o.options.RemoveVolumes {
		for _, v := range volumes {
			if err := o.client.VolumeRemove(ctx, v, false); err != nil {
				result = multierror.Append(result, fmt.Errorf("failed to remove volume %s: %w", v, err))
			}
		}
	}

	o.mu.Lock()
	o.running = false
	o.networkID = ""
	o.mu.Unlock()

	if app != nil {
		app.Allocations().Reset()
	}

	return result.ErrorOrNil()
}
