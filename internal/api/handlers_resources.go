package api

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"evalgo.org/mgapphost/internal/version"
	"evalgo.org/mgapphost/models"
	"evalgo.org/mgapphost/pkg/appmodel"
	"evalgo.org/mgapphost/pkg/memgraph"
)

const mimeApplicationYAML = "application/yaml"

// ResourcesResponse represents a list of resources.
type ResourcesResponse struct {
	Count     int                `json:"count"`
	Resources []*models.Resource `json:"resources"`
}

// healthCheck handles health check requests. It answers 503 while no run is
// active so load balancers and scripts can wait on it.
func (s *Server) healthCheck(c echo.Context) error {
	body := map[string]interface{}{
		"service":   "mgapphost",
		"version":   version.Version,
		"resources": len(s.app.Resources()),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	}

	if s.status == nil || !s.status.Running() {
		body["status"] = "unavailable"
		return c.JSON(http.StatusServiceUnavailable, body)
	}

	body["status"] = "healthy"
	body["run_id"] = s.status.RunID()
	return c.JSON(http.StatusOK, body)
}

func (s *Server) listResources(c echo.Context) error {
	ctx := c.Request().Context()

	resources := s.app.Resources()
	docs := make([]*models.Resource, 0, len(resources))
	for _, r := range resources {
		doc, err := s.resourceDocument(ctx, r)
		if err != nil {
			return InternalError("failed to describe resource "+r.Name(), err.Error())
		}
		docs = append(docs, doc)
	}

	return c.JSON(http.StatusOK, ResourcesResponse{
		Count:     len(docs),
		Resources: docs,
	})
}

func (s *Server) getResource(c echo.Context) error {
	name := c.Param("name")

	r, ok := s.app.Resource(name)
	if !ok {
		return NotFoundError("Resource", name)
	}

	doc, err := s.resourceDocument(c.Request().Context(), r)
	if err != nil {
		return InternalError("failed to describe resource "+name, err.Error())
	}

	return c.JSON(http.StatusOK, doc)
}

// getManifest renders the publish manifest; ?format=yaml switches encoding.
func (s *Server) getManifest(c echo.Context) error {
	m, err := appmodel.PublishManifest(c.Request().Context(), s.app)
	if err != nil {
		return InternalError("failed to build manifest", err.Error())
	}

	switch c.QueryParam("format") {
	case "", "json":
		return c.JSON(http.StatusOK, m)
	case "yaml":
		var buf bytes.Buffer
		if err := m.WriteYAML(&buf); err != nil {
			return InternalError("failed to encode manifest", err.Error())
		}
		return c.Blob(http.StatusOK, mimeApplicationYAML, buf.Bytes())
	default:
		return BadRequestError("Invalid format parameter", "format must be json or yaml. Got: "+c.QueryParam("format"))
	}
}

// resourceDocument builds the JSON-LD view of r from its annotations, the
// allocation table and the orchestrator state.
func (s *Server) resourceDocument(ctx context.Context, r appmodel.Resource) (*models.Resource, error) {
	doc := models.NewResource(r.Name(), resourceKind(r))
	doc.ExcludedFromManifest = appmodel.IsExcludedFromManifest(r)

	if img, ok := appmodel.LastAnnotation[*appmodel.ContainerImageAnnotation](r); ok {
		doc.Image = img.Reference()
	}

	for _, ep := range appmodel.AnnotationsOf[*appmodel.EndpointAnnotation](r) {
		protocol := ep.Protocol
		if protocol == "" {
			protocol = "tcp"
		}
		endpoint := models.Endpoint{
			Name:          ep.Name,
			Scheme:        ep.Scheme,
			Protocol:      protocol,
			HostPort:      ep.Port,
			ContainerPort: ep.TargetPort,
		}
		if alloc, ok := s.app.Allocations().Lookup(r.Name(), ep.Name); ok {
			endpoint.HostPort = alloc.Port
			endpoint.URL = alloc.URL()
		}
		doc.Endpoints = append(doc.Endpoints, endpoint)
	}

	for _, m := range appmodel.AnnotationsOf[*appmodel.ContainerMountAnnotation](r) {
		doc.Mounts = append(doc.Mounts, models.Mount{
			Type:     string(m.Type),
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	if cs, ok := r.(appmodel.ResourceWithConnectionString); ok {
		value, err := cs.GetConnectionString(ctx)
		if err != nil {
			return nil, err
		}
		doc.ConnectionString = value
	}

	if s.status != nil {
		if state, ok := s.status.State(r.Name()); ok {
			doc.Status = string(state.State)
			doc.ContainerID = state.ContainerID
			doc.ContainerName = state.ContainerName
			doc.Env = state.Env
		}
	}

	return doc, nil
}

func resourceKind(r appmodel.Resource) string {
	switch r.(type) {
	case *memgraph.Resource:
		return "memgraph"
	case *memgraph.LabResource:
		return "memgraph-lab"
	case appmodel.Container:
		return "container"
	default:
		return "resource"
	}
}
