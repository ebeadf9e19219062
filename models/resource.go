package models

import "fmt"

// SchemaContext is the JSON-LD context of every document.
const SchemaContext = "https://schema.org"

// Resource is the JSON-LD view of one application model resource, as served
// by the status API.
type Resource struct {
	Context              string            `json:"@context" jsonld:"@context"`
	Type                 string            `json:"@type" jsonld:"@type"`
	ID                   string            `json:"@id" jsonld:"@id"`
	Name                 string            `json:"name" jsonld:"name"`
	Kind                 string            `json:"additionalType" jsonld:"additionalType"`
	Image                string            `json:"executableName,omitempty" jsonld:"executableName"`
	Status               string            `json:"status" jsonld:"status"`
	ContainerID          string            `json:"identifier,omitempty" jsonld:"identifier"`
	ContainerName        string            `json:"alternateName,omitempty" jsonld:"alternateName"`
	ConnectionString     string            `json:"url,omitempty" jsonld:"url"`
	Endpoints            []Endpoint        `json:"endpoints,omitempty" jsonld:"endpoints"`
	Mounts               []Mount           `json:"mounts,omitempty" jsonld:"mounts"`
	Env                  map[string]string `json:"environment,omitempty" jsonld:"environment"`
	ExcludedFromManifest bool              `json:"excludedFromManifest" jsonld:"excludedFromManifest"`
}

// Endpoint is a network endpoint of a resource. HostPort is 0 until the
// endpoint is allocated.
type Endpoint struct {
	Name          string `json:"name" jsonld:"name"`
	Scheme        string `json:"scheme" jsonld:"scheme"`
	Protocol      string `json:"protocol" jsonld:"protocol"`
	HostPort      int    `json:"hostPort,omitempty" jsonld:"hostPort"`
	ContainerPort int    `json:"containerPort" jsonld:"containerPort"`
	URL           string `json:"url,omitempty" jsonld:"url"`
}

// Mount is a volume or bind mount of a resource.
type Mount struct {
	Type     string `json:"type" jsonld:"type"`
	Source   string `json:"source" jsonld:"source"`
	Target   string `json:"target" jsonld:"target"`
	ReadOnly bool   `json:"readOnly" jsonld:"readOnly"`
}

// Resource statuses before the orchestrator reports a container state.
const (
	StatusPending = "pending"
)

// ResourceID returns the stable @id of a resource.
func ResourceID(name string) string {
	return fmt.Sprintf("urn:mgapphost:resource:%s", name)
}

// NewResource creates a resource document with context, type and id set.
func NewResource(name, kind string) *Resource {
	return &Resource{
		Context: SchemaContext,
		Type:    "SoftwareApplication",
		ID:      ResourceID(name),
		Name:    name,
		Kind:    kind,
		Status:  StatusPending,
	}
}
