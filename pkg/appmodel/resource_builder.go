package appmodel

import "fmt"

// ResourceBuilder layers annotations onto a registered resource.
type ResourceBuilder[T Resource] struct {
	builder  *Builder
	resource T
}

// Resource returns the wrapped resource.
func (rb *ResourceBuilder[T]) Resource() T { return rb.resource }

// ApplicationBuilder returns the builder the resource is registered with.
func (rb *ResourceBuilder[T]) ApplicationBuilder() *Builder { return rb.builder }

// WithAnnotation appends an arbitrary annotation.
func (rb *ResourceBuilder[T]) WithAnnotation(a Annotation) *ResourceBuilder[T] {
	rb.resource.AddAnnotation(a)
	return rb
}

// WithEndpoint declares a TCP endpoint. A port of 0 lets the host choose.
func (rb *ResourceBuilder[T]) WithEndpoint(name string, targetPort, port int) *ResourceBuilder[T] {
	return rb.WithAnnotation(&EndpointAnnotation{
		Name:       name,
		Scheme:     "tcp",
		Protocol:   "tcp",
		TargetPort: targetPort,
		Port:       port,
	})
}

// WithHTTPEndpoint declares an HTTP endpoint. A port of 0 lets the host choose.
func (rb *ResourceBuilder[T]) WithHTTPEndpoint(name string, targetPort, port int) *ResourceBuilder[T] {
	return rb.WithAnnotation(&EndpointAnnotation{
		Name:       name,
		Scheme:     "http",
		Protocol:   "tcp",
		TargetPort: targetPort,
		Port:       port,
	})
}

// WithEndpointConfig mutates an endpoint declared earlier. Configuring an
// unknown endpoint is recorded as a build error.
func (rb *ResourceBuilder[T]) WithEndpointConfig(name string, configure func(ep *EndpointAnnotation)) *ResourceBuilder[T] {
	for _, ep := range AnnotationsOf[*EndpointAnnotation](rb.resource) {
		if ep.Name == name {
			configure(ep)
			return rb
		}
	}
	rb.builder.recordError(fmt.Errorf("resource %s has no endpoint named %s", rb.resource.Name(), name))
	return rb
}

func (rb *ResourceBuilder[T]) image() *ContainerImageAnnotation {
	if a, ok := LastAnnotation[*ContainerImageAnnotation](rb.resource); ok {
		return a
	}
	a := &ContainerImageAnnotation{}
	rb.resource.AddAnnotation(a)
	return a
}

// WithImage sets the image name and tag. An empty tag keeps the current one
// or defaults to "latest".
func (rb *ResourceBuilder[T]) WithImage(image, tag string) *ResourceBuilder[T] {
	a := rb.image()
	a.Image = image
	if tag != "" {
		a.Tag = tag
	} else if a.Tag == "" {
		a.Tag = "latest"
	}
	return rb
}

// WithImageTag replaces the image tag.
func (rb *ResourceBuilder[T]) WithImageTag(tag string) *ResourceBuilder[T] {
	rb.image().Tag = tag
	return rb
}

// WithImageRegistry sets the registry the image is pulled from.
func (rb *ResourceBuilder[T]) WithImageRegistry(registry string) *ResourceBuilder[T] {
	rb.image().Registry = registry
	return rb
}

// WithVolume mounts a named volume at target.
func (rb *ResourceBuilder[T]) WithVolume(name, target string, readOnly bool) *ResourceBuilder[T] {
	if name != "" {
		if err := rb.builder.validator.VolumeName(name); err != nil {
			rb.builder.recordError(fmt.Errorf("volume %q on %s: %w", name, rb.resource.Name(), err))
		}
	}
	return rb.WithAnnotation(&ContainerMountAnnotation{
		Source:   name,
		Target:   target,
		Type:     MountTypeVolume,
		ReadOnly: readOnly,
	})
}

// WithBindMount mounts a host path at target.
func (rb *ResourceBuilder[T]) WithBindMount(source, target string, readOnly bool) *ResourceBuilder[T] {
	if source == "" {
		rb.builder.recordError(fmt.Errorf("bind mount on %s: source path is required", rb.resource.Name()))
	}
	return rb.WithAnnotation(&ContainerMountAnnotation{
		Source:   source,
		Target:   target,
		Type:     MountTypeBind,
		ReadOnly: readOnly,
	})
}

// WithEnvironment sets a literal environment variable.
func (rb *ResourceBuilder[T]) WithEnvironment(key, value string) *ResourceBuilder[T] {
	return rb.WithEnvironmentCallback(func(ec *EnvironmentContext) error {
		ec.Set(key, value)
		return nil
	})
}

// WithEnvironmentValue sets an environment variable resolved when the
// container starts.
func (rb *ResourceBuilder[T]) WithEnvironmentValue(key string, value ValueProvider) *ResourceBuilder[T] {
	return rb.WithEnvironmentCallback(func(ec *EnvironmentContext) error {
		ec.SetValue(key, value)
		return nil
	})
}

// WithEnvironmentCallback registers a callback that writes environment
// variables.
func (rb *ResourceBuilder[T]) WithEnvironmentCallback(callback func(ec *EnvironmentContext) error) *ResourceBuilder[T] {
	return rb.WithAnnotation(&EnvironmentCallbackAnnotation{Callback: callback})
}

// ExcludeFromManifest keeps the resource out of the published manifest.
func (rb *ResourceBuilder[T]) ExcludeFromManifest() *ResourceBuilder[T] {
	if _, ok := LastAnnotation[*ManifestExclusionAnnotation](rb.resource); ok {
		return rb
	}
	return rb.WithAnnotation(&ManifestExclusionAnnotation{})
}

// WithConnectionStringRedirection forwards connection-string queries to target.
func (rb *ResourceBuilder[T]) WithConnectionStringRedirection(target ResourceWithConnectionString) *ResourceBuilder[T] {
	return rb.WithAnnotation(&ConnectionStringRedirectAnnotation{Resource: target})
}

// IsExcludedFromManifest reports whether r carries a manifest exclusion.
func IsExcludedFromManifest(r Resource) bool {
	_, ok := LastAnnotation[*ManifestExclusionAnnotation](r)
	return ok
}
