package memgraph

import (
	"context"

	"evalgo.org/mgapphost/pkg/appmodel"
)

// labSingletonTag keys the Lab resource in the model's singleton registry.
const labSingletonTag = "memgraph.lab"

// Add registers a Memgraph container named name. A port or logPort of 0
// lets the host assign an ephemeral port.
func Add(b *appmodel.Builder, name string, port, logPort int) *appmodel.ResourceBuilder[*Resource] {
	return appmodel.AddResource(b, NewResource(name)).
		WithEndpoint(PrimaryEndpointName, BoltPort, port).
		WithEndpoint(LogsEndpointName, LogsPort, logPort).
		WithImage(Image, Tag).
		WithImageRegistry(Registry)
}

// WithLab adds Memgraph Lab to the model. Only one Lab instance exists per
// model: later calls run configure against the existing instance and return.
// containerName defaults to "<db>-lab".
func WithLab(db *appmodel.ResourceBuilder[*Resource], configure func(*appmodel.ResourceBuilder[*LabResource]), containerName string) *appmodel.ResourceBuilder[*Resource] {
	b := db.ApplicationBuilder()

	if containerName == "" {
		containerName = db.Resource().Name() + "-lab"
	}

	res, created := b.GetOrAdd(labSingletonTag, func() appmodel.Resource {
		return NewLabResource(containerName)
	})
	lab := appmodel.CreateResourceBuilder(b, res.(*LabResource))

	if !created {
		if configure != nil {
			configure(lab)
		}
		return db
	}

	lab.WithImage(LabImage, LabTag).
		WithImageRegistry(Registry).
		WithHTTPEndpoint(LabEndpointName, LabPort, 0).
		ExcludeFromManifest()

	appmodel.Subscribe(b.Eventing(), func(ctx context.Context, e appmodel.AfterEndpointsAllocatedEvent) error {
		instances := appmodel.ResourcesOf[*Resource](b)
		if len(instances) == 0 {
			return nil
		}
		if len(instances) > 1 {
			b.Logger().Warnw("Multiple Memgraph resources found, Lab connects to the first one",
				"lab", lab.Resource().Name(),
				"target", instances[0].Name(),
				"count", len(instances))
		}

		endpoint := instances[0].PrimaryEndpoint()
		if !endpoint.IsAllocated() {
			return nil
		}

		// Deferred so a later run of the same model picks up its new ports.
		lab.WithEnvironmentValue(EnvQuickConnectHost, endpoint.Property(appmodel.EndpointContainerHost)).
			WithEnvironmentValue(EnvQuickConnectPort, endpoint.Property(appmodel.EndpointPort))
		return nil
	})

	if configure != nil {
		configure(lab)
	}

	return db
}

// WithDataVolume mounts a named volume at the Memgraph data directory. An
// empty name defaults to "volume-<db>-data".
func WithDataVolume(db *appmodel.ResourceBuilder[*Resource], name string, readOnly bool) *appmodel.ResourceBuilder[*Resource] {
	if name == "" {
		name = "volume-" + db.Resource().Name() + "-data"
	}
	return db.WithVolume(name, DataPath, readOnly)
}

// WithDataBindMount mounts a host directory at the Memgraph data directory.
func WithDataBindMount(db *appmodel.ResourceBuilder[*Resource], source string, readOnly bool) *appmodel.ResourceBuilder[*Resource] {
	return db.WithBindMount(source, DataPath, readOnly)
}

// WithHostPort pins the host port of the Lab HTTP endpoint. 0 restores an
// ephemeral port.
func WithHostPort(lab *appmodel.ResourceBuilder[*LabResource], port int) *appmodel.ResourceBuilder[*LabResource] {
	return lab.WithEndpointConfig(LabEndpointName, func(ep *appmodel.EndpointAnnotation) {
		ep.Port = port
	})
}

// WithMAGE switches the database to the image bundling the MAGE graph
// algorithm library.
func WithMAGE(db *appmodel.ResourceBuilder[*Resource]) *appmodel.ResourceBuilder[*Resource] {
	return db.WithImage(MAGEImage, MAGETag)
}
