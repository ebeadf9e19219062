package appmodel

import "fmt"

// Annotation is a typed piece of metadata attached to a resource. The
// orchestrator and the manifest publisher read annotations when they
// realize a resource.
type Annotation interface{}

// EndpointAnnotation declares a network endpoint on a resource.
type EndpointAnnotation struct {
	// Name identifies the endpoint within its resource (e.g. "tcp", "http")
	Name string

	// Scheme is the URI scheme used when rendering the endpoint (tcp, http)
	Scheme string

	// Protocol is the transport protocol (tcp, udp)
	Protocol string

	// TargetPort is the port the process listens on inside the container
	TargetPort int

	// Port is the requested host port; zero lets the host pick one
	Port int

	// IsExternal marks endpoints meant for use outside the host
	IsExternal bool
}

// ContainerImageAnnotation names the image a container resource runs.
type ContainerImageAnnotation struct {
	Registry string
	Image    string
	Tag      string
}

// Reference renders the full image reference, e.g.
// docker.io/memgraph/memgraph:latest.
func (a *ContainerImageAnnotation) Reference() string {
	ref := a.Image
	if a.Registry != "" {
		ref = a.Registry + "/" + ref
	}
	if a.Tag != "" {
		ref = ref + ":" + a.Tag
	}
	return ref
}

// MountType distinguishes managed volumes from host bind mounts.
type MountType string

const (
	MountTypeVolume MountType = "volume"
	MountTypeBind   MountType = "bind"
)

// ContainerMountAnnotation mounts a volume or host path into a container.
type ContainerMountAnnotation struct {
	// Source is the volume name or the host path
	Source string

	// Target is the absolute path inside the container
	Target string

	Type     MountType
	ReadOnly bool
}

// String renders the mount the way docker -v does.
func (a *ContainerMountAnnotation) String() string {
	mode := "rw"
	if a.ReadOnly {
		mode = "ro"
	}
	return fmt.Sprintf("%s:%s:%s", a.Source, a.Target, mode)
}

// ManifestExclusionAnnotation keeps a resource out of the published manifest.
type ManifestExclusionAnnotation struct{}

// ConnectionStringRedirectAnnotation forwards connection-string queries of
// the annotated resource to another resource.
type ConnectionStringRedirectAnnotation struct {
	Resource ResourceWithConnectionString
}

// EnvironmentCallbackAnnotation contributes environment variables when a
// container is started or the manifest is published.
type EnvironmentCallbackAnnotation struct {
	Callback func(ec *EnvironmentContext) error
}
