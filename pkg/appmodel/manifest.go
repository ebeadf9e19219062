package appmodel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ManifestSchema identifies the manifest format.
const ManifestSchema = "https://json.schemastore.org/aspire-8.0.json"

// Manifest is the portable description of an application model. It leaves
// out development-only resources.
type Manifest struct {
	Schema    string                      `json:"$schema" yaml:"$schema"`
	Resources map[string]ManifestResource `json:"resources" yaml:"resources"`
}

// ManifestResource describes one resource.
type ManifestResource struct {
	Type             string                     `json:"type" yaml:"type"`
	ConnectionString string                     `json:"connectionString,omitempty" yaml:"connectionString,omitempty"`
	Image            string                     `json:"image,omitempty" yaml:"image,omitempty"`
	BindMounts       []ManifestMount            `json:"bindMounts,omitempty" yaml:"bindMounts,omitempty"`
	Volumes          []ManifestMount            `json:"volumes,omitempty" yaml:"volumes,omitempty"`
	Env              map[string]string          `json:"env,omitempty" yaml:"env,omitempty"`
	Bindings         map[string]ManifestBinding `json:"bindings,omitempty" yaml:"bindings,omitempty"`
}

// ManifestMount describes a volume or bind mount.
type ManifestMount struct {
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Source   string `json:"source,omitempty" yaml:"source,omitempty"`
	Target   string `json:"target" yaml:"target"`
	ReadOnly bool   `json:"readOnly" yaml:"readOnly"`
}

// ManifestBinding describes an endpoint.
type ManifestBinding struct {
	Scheme     string `json:"scheme" yaml:"scheme"`
	Protocol   string `json:"protocol" yaml:"protocol"`
	Transport  string `json:"transport" yaml:"transport"`
	TargetPort int    `json:"targetPort" yaml:"targetPort"`
	Port       int    `json:"port,omitempty" yaml:"port,omitempty"`
	External   bool   `json:"external,omitempty" yaml:"external,omitempty"`
}

// PublishManifest describes every resource of app that is not excluded.
func PublishManifest(ctx context.Context, app *Application) (*Manifest, error) {
	m := &Manifest{
		Schema:    ManifestSchema,
		Resources: make(map[string]ManifestResource),
	}

	for _, r := range app.Resources() {
		if IsExcludedFromManifest(r) {
			continue
		}

		entry, err := manifestEntry(ctx, r, app)
		if err != nil {
			return nil, err
		}
		m.Resources[r.Name()] = entry
	}

	return m, nil
}

func manifestEntry(ctx context.Context, r Resource, app *Application) (ManifestResource, error) {
	entry := ManifestResource{Type: "value.v0"}

	if cs, ok := r.(ResourceWithConnectionString); ok {
		entry.ConnectionString = cs.ConnectionStringExpression().ValueExpression()
	}

	if _, ok := r.(Container); !ok {
		return entry, nil
	}

	entry.Type = "container.v0"
	if img, ok := LastAnnotation[*ContainerImageAnnotation](r); ok {
		entry.Image = img.Reference()
	}

	for _, mnt := range AnnotationsOf[*ContainerMountAnnotation](r) {
		switch mnt.Type {
		case MountTypeBind:
			entry.BindMounts = append(entry.BindMounts, ManifestMount{Source: mnt.Source, Target: mnt.Target, ReadOnly: mnt.ReadOnly})
		default:
			entry.Volumes = append(entry.Volumes, ManifestMount{Name: mnt.Source, Target: mnt.Target, ReadOnly: mnt.ReadOnly})
		}
	}

	raw, err := CollectEnvironment(ctx, r, ModePublish, app.Logger())
	if err != nil {
		return entry, err
	}
	if len(raw) > 0 {
		entry.Env = make(map[string]string, len(raw))
		for k, v := range raw {
			switch val := v.(type) {
			case ValueProvider:
				entry.Env[k] = val.ValueExpression()
			default:
				entry.Env[k] = fmt.Sprint(val)
			}
		}
	}

	endpoints := AnnotationsOf[*EndpointAnnotation](r)
	if len(endpoints) > 0 {
		entry.Bindings = make(map[string]ManifestBinding, len(endpoints))
		for _, ep := range endpoints {
			entry.Bindings[ep.Name] = ManifestBinding{
				Scheme:     ep.Scheme,
				Protocol:   ep.Protocol,
				Transport:  transportFor(ep),
				TargetPort: ep.TargetPort,
				Port:       ep.Port,
				External:   ep.IsExternal,
			}
		}
	}

	return entry, nil
}

func transportFor(ep *EndpointAnnotation) string {
	if ep.Scheme == "http" || ep.Scheme == "https" {
		return "http"
	}
	return ep.Protocol
}

// WriteJSON writes the manifest as indented JSON.
func (m *Manifest) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return nil
}

// WriteYAML writes the manifest as YAML.
func (m *Manifest) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return enc.Close()
}
