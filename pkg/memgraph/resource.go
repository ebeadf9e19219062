// Package memgraph registers a Memgraph graph database, and optionally the
// Memgraph Lab web UI, into an appmodel application.
//
// # Usage Example
//
//	b := appmodel.NewBuilder()
//	db := memgraph.Add(b, "memgraph", 0, 0)
//	memgraph.WithDataVolume(db, "", false)
//	memgraph.WithLab(db, func(lab *appmodel.ResourceBuilder[*memgraph.LabResource]) {
//	    memgraph.WithHostPort(lab, 3000)
//	}, "")
//
// Once the orchestrator has allocated endpoints, the Lab container receives
// QUICK_CONNECT_MG_HOST and QUICK_CONNECT_MG_PORT pointing at the database.
package memgraph

import (
	"context"

	"evalgo.org/mgapphost/pkg/appmodel"
)

// Resource is a Memgraph database container.
type Resource struct {
	*appmodel.ContainerResource

	primary *appmodel.EndpointReference
}

// NewResource creates a Memgraph resource with its bolt endpoint handle.
func NewResource(name string) *Resource {
	r := &Resource{ContainerResource: appmodel.NewContainerResource(name)}
	r.primary = appmodel.NewEndpointReference(r, PrimaryEndpointName)
	return r
}

// PrimaryEndpoint returns the bolt endpoint.
func (r *Resource) PrimaryEndpoint() *appmodel.EndpointReference {
	return r.primary
}

// ConnectionStringExpression returns bolt://{host}:{port}, or the redirect
// target's expression when the resource carries a redirect annotation.
func (r *Resource) ConnectionStringExpression() *appmodel.ReferenceExpression {
	if redirect, ok := appmodel.LastAnnotation[*appmodel.ConnectionStringRedirectAnnotation](r); ok {
		return redirect.Resource.ConnectionStringExpression()
	}

	return appmodel.NewReferenceExpression("bolt://{0}:{1}",
		r.primary.Property(appmodel.EndpointHost),
		r.primary.Property(appmodel.EndpointPort),
	)
}

// GetConnectionString resolves the connection string. It returns "" while
// the bolt endpoint is not allocated and ctx.Err() if ctx is done.
func (r *Resource) GetConnectionString(ctx context.Context) (string, error) {
	if redirect, ok := appmodel.LastAnnotation[*appmodel.ConnectionStringRedirectAnnotation](r); ok {
		return redirect.Resource.GetConnectionString(ctx)
	}

	v, ok, err := r.ConnectionStringExpression().GetValue(ctx)
	if err != nil || !ok {
		return "", err
	}
	return v, nil
}

// LabResource is the Memgraph Lab web UI container.
type LabResource struct {
	*appmodel.ContainerResource

	primary *appmodel.EndpointReference
}

// NewLabResource creates a Memgraph Lab resource.
func NewLabResource(name string) *LabResource {
	return &LabResource{ContainerResource: appmodel.NewContainerResource(name)}
}

// PrimaryEndpoint returns the HTTP endpoint, creating the handle on first use.
func (l *LabResource) PrimaryEndpoint() *appmodel.EndpointReference {
	if l.primary == nil {
		l.primary = appmodel.NewEndpointReference(l, LabEndpointName)
	}
	return l.primary
}
