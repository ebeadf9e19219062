package appmodel

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// ExecutionMode tells environment callbacks whether values are needed for a
// running container or for the published manifest.
type ExecutionMode int

const (
	ModeRun ExecutionMode = iota
	ModePublish
)

// EnvironmentContext is passed to environment callbacks. Callbacks write
// either a string or a ValueProvider into Env; later writes win.
type EnvironmentContext struct {
	Context context.Context
	Mode    ExecutionMode
	Env     map[string]interface{}
	Logger  *zap.SugaredLogger
}

// Set assigns a literal value.
func (ec *EnvironmentContext) Set(key, value string) {
	ec.Env[key] = value
}

// SetValue assigns a deferred value.
func (ec *EnvironmentContext) SetValue(key string, value ValueProvider) {
	ec.Env[key] = value
}

// CollectEnvironment runs every environment callback of r in registration
// order and returns the raw key/value map.
func CollectEnvironment(ctx context.Context, r Resource, mode ExecutionMode, logger *zap.SugaredLogger) (map[string]interface{}, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	ec := &EnvironmentContext{
		Context: ctx,
		Mode:    mode,
		Env:     make(map[string]interface{}),
		Logger:  logger,
	}

	for _, a := range AnnotationsOf[*EnvironmentCallbackAnnotation](r) {
		if err := a.Callback(ec); err != nil {
			return nil, fmt.Errorf("environment callback for %s: %w", r.Name(), err)
		}
	}

	return ec.Env, nil
}

// ResolveEnvironment evaluates the environment of r for a running container.
// Every deferred value must be resolvable at this point.
func ResolveEnvironment(ctx context.Context, r Resource, logger *zap.SugaredLogger) (map[string]string, error) {
	raw, err := CollectEnvironment(ctx, r, ModeRun, logger)
	if err != nil {
		return nil, err
	}

	env := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			env[key] = v
		case ValueProvider:
			s, ok, err := v.GetValue(ctx)
			if err != nil {
				return nil, fmt.Errorf("resolve %s on %s: %w", key, r.Name(), err)
			}
			if !ok {
				return nil, fmt.Errorf("value for %s on %s is not available yet", key, r.Name())
			}
			env[key] = s
		default:
			env[key] = fmt.Sprint(v)
		}
	}

	return env, nil
}

// EnvList renders an environment map as sorted KEY=VALUE pairs.
func EnvList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return out
}
