package appmodel

import (
	"context"
	"fmt"
	"strings"
)

// ValueProvider is a value that may only become known once the host has
// realized part of the model.
type ValueProvider interface {
	// GetValue returns the value and true once it is available. A false
	// result with a nil error means "not yet known".
	GetValue(ctx context.Context) (string, bool, error)

	// ValueExpression returns the placeholder written to the manifest.
	ValueExpression() string
}

// Literal is a ValueProvider that is always known.
type Literal string

func (l Literal) GetValue(context.Context) (string, bool, error) { return string(l), true, nil }

func (l Literal) ValueExpression() string { return string(l) }

// ReferenceExpression is a format string whose {0}, {1}, ... placeholders are
// filled from value providers.
type ReferenceExpression struct {
	format string
	values []ValueProvider
}

// NewReferenceExpression builds an expression such as
// NewReferenceExpression("bolt://{0}:{1}", host, port).
func NewReferenceExpression(format string, values ...ValueProvider) *ReferenceExpression {
	return &ReferenceExpression{format: format, values: values}
}

// Format returns the raw format string.
func (r *ReferenceExpression) Format() string { return r.format }

// Values returns the providers referenced by the format string.
func (r *ReferenceExpression) Values() []ValueProvider { return r.values }

// GetValue resolves every provider. It reports false when any of them is
// still unknown.
func (r *ReferenceExpression) GetValue(ctx context.Context) (string, bool, error) {
	resolved := make([]string, len(r.values))
	for i, v := range r.values {
		s, ok, err := v.GetValue(ctx)
		if err != nil {
			return "", false, err
		}
		if !ok {
			return "", false, nil
		}
		resolved[i] = s
	}
	return r.render(resolved), true, nil
}

// ValueExpression renders the expression with manifest placeholders.
func (r *ReferenceExpression) ValueExpression() string {
	exprs := make([]string, len(r.values))
	for i, v := range r.values {
		exprs[i] = v.ValueExpression()
	}
	return r.render(exprs)
}

func (r *ReferenceExpression) render(parts []string) string {
	if len(parts) == 0 {
		return r.format
	}
	pairs := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		pairs = append(pairs, fmt.Sprintf("{%d}", i), p)
	}
	return strings.NewReplacer(pairs...).Replace(r.format)
}
