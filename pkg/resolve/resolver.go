package resolve

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/trace"

	"github.com/appdock/appdock/pkg/model"
	"github.com/appdock/appdock/pkg/telemetry"
)

// Resolver resolves environment variables and connection strings for
// resources of a sealed graph against a live endpoint view.
type Resolver struct {
	graph     *model.Graph
	endpoints model.EndpointView
	log       *telemetry.Logger
	tracer    *telemetry.Tracer
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(log *telemetry.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// WithTracer enables spans around resolution passes.
func WithTracer(tracer *telemetry.Tracer) Option {
	return func(r *Resolver) { r.tracer = tracer }
}

// New creates a resolver over a sealed graph. endpoints is the live view of
// allocated endpoints, normally the lifecycle machine.
func New(graph *model.Graph, endpoints model.EndpointView, opts ...Option) *Resolver {
	r := &Resolver{
		graph:     graph,
		endpoints: endpoints,
		log:       telemetry.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnvironmentFor runs the resource's environment contributor callbacks, in
// declaration order, over a map private to this pass and returns the result.
// A contributor reading an endpoint the driver has not allocated yet fails
// the pass with an ENDPOINT_NOT_ALLOCATED resolution error; callers must
// start and allocate referenced resources first, the pass is not retried.
func (r *Resolver) EnvironmentFor(ctx context.Context, resource string) (env map[string]string, err error) {
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.StartResolveSpan(ctx, resource)
		defer func() {
			if err != nil {
				telemetry.RecordError(span, err)
			} else {
				telemetry.RecordSuccess(span)
			}
			span.End()
		}()
	}
	res, ok := r.graph.Resource(resource)
	if !ok {
		return nil, model.NewConfigError(
			fmt.Sprintf("unknown resource %q", resource), nil,
		).WithCode(model.ErrCodeUnknownReference).WithResource(resource)
	}

	env = make(map[string]string)
	ec := &model.EnvContext{Resource: res, Endpoints: r.endpoints}
	for _, contributor := range model.AnnotationsOf[model.EnvContributorAnnotation](res) {
		if contributor.Contribute == nil {
			continue
		}
		if err := contributor.Contribute(ctx, env, ec); err != nil {
			return nil, err
		}
	}
	r.log.WithResource(resource).Debugf("resolved %d environment entries", len(env))
	return env, nil
}

// ConnectionString resolves the resource's connection string.
//
// The literal form returns its value verbatim. The base form resolves the
// base resource's connection string and appends the suffix; a bare base
// string ends with the ";" field separator, so composition never duplicates
// or drops a separator. The template form expands against the referenced
// resource's allocated endpoint: before any endpoint is declared on the
// reference the format-only rendering is returned, and a declared but
// unallocated endpoint fails with ENDPOINT_NOT_ALLOCATED.
func (r *Resolver) ConnectionString(ctx context.Context, resource string) (string, error) {
	return r.connectionString(ctx, resource, 0)
}

func (r *Resolver) connectionString(ctx context.Context, resource string, depth int) (string, error) {
	if depth > len(r.graph.Resources()) {
		return "", model.NewConfigError(
			"connection string base chain does not terminate", nil,
		).WithCode(model.ErrCodeDependencyCycle).WithResource(resource)
	}
	res, ok := r.graph.Resource(resource)
	if !ok {
		return "", model.NewConfigError(
			fmt.Sprintf("unknown resource %q", resource), nil,
		).WithCode(model.ErrCodeUnknownReference).WithResource(resource)
	}
	cs, err := model.SingleAnnotationOf[model.ConnectionStringAnnotation](res)
	if err != nil {
		return "", err
	}

	switch {
	case cs.Literal != "":
		return cs.Literal, nil

	case cs.Base != "":
		if cs.Base == resource {
			return "", model.NewConfigError(
				"connection string cannot base on its own resource", nil,
			).WithCode(model.ErrCodeDependencyCycle).WithResource(resource)
		}
		base, err := r.connectionString(ctx, cs.Base, depth+1)
		if err != nil {
			return "", err
		}
		return base + cs.Suffix, nil

	case cs.Template != nil:
		return r.expandTemplate(res, cs)

	default:
		return "", model.NewConfigError(
			"connection string annotation has no literal, template, or base", nil,
		).WithResource(resource)
	}
}

// ConnectionStringExpression returns the resource's connection string
// without consulting allocations: the form a manifest can publish. Literals
// are verbatim, templates render format-only with credentials substituted,
// and based strings compose recursively.
func (r *Resolver) ConnectionStringExpression(resource string) (string, error) {
	return r.connectionStringExpression(resource, 0)
}

func (r *Resolver) connectionStringExpression(resource string, depth int) (string, error) {
	if depth > len(r.graph.Resources()) {
		return "", model.NewConfigError(
			"connection string base chain does not terminate", nil,
		).WithCode(model.ErrCodeDependencyCycle).WithResource(resource)
	}
	res, ok := r.graph.Resource(resource)
	if !ok {
		return "", model.NewConfigError(
			fmt.Sprintf("unknown resource %q", resource), nil,
		).WithCode(model.ErrCodeUnknownReference).WithResource(resource)
	}
	cs, err := model.SingleAnnotationOf[model.ConnectionStringAnnotation](res)
	if err != nil {
		return "", err
	}

	switch {
	case cs.Literal != "":
		return cs.Literal, nil
	case cs.Base != "":
		if cs.Base == resource {
			return "", model.NewConfigError(
				"connection string cannot base on its own resource", nil,
			).WithCode(model.ErrCodeDependencyCycle).WithResource(resource)
		}
		base, err := r.connectionStringExpression(cs.Base, depth+1)
		if err != nil {
			return "", err
		}
		return base + cs.Suffix, nil
	case cs.Template != nil:
		return cs.Template.Expand(map[string]string{
			model.PlaceholderUsername: cs.Username,
			model.PlaceholderPassword: cs.Password,
		}), nil
	default:
		return "", model.NewConfigError(
			"connection string annotation has no literal, template, or base", nil,
		).WithResource(resource)
	}
}

// expandTemplate expands a component template against the referenced
// resource's declared and allocated endpoint.
func (r *Resolver) expandTemplate(owner *model.Resource, cs model.ConnectionStringAnnotation) (string, error) {
	refName := cs.Ref
	if refName == "" {
		refName = owner.Name()
	}
	ref, ok := r.graph.Resource(refName)
	if !ok {
		return "", model.NewConfigError(
			fmt.Sprintf("unknown resource %q", refName), nil,
		).WithCode(model.ErrCodeUnknownReference).WithResource(owner.Name())
	}

	values := map[string]string{
		model.PlaceholderUsername: cs.Username,
		model.PlaceholderPassword: cs.Password,
	}

	declared := model.AnnotationsOf[model.EndpointAnnotation](ref)
	if len(declared) == 0 {
		// No endpoint declared yet: the format-only rendering, host and
		// port placeholders left intact.
		return cs.Template.Expand(values), nil
	}

	endpoint, err := pickEndpoint(ref, declared, cs.Endpoint)
	if err != nil {
		return "", err
	}
	alloc, err := r.endpoints.AllocatedEndpoint(refName, endpoint.Name)
	if err != nil {
		return "", err
	}

	values[model.PlaceholderHost] = alloc.Host
	values[model.PlaceholderPort] = strconv.Itoa(alloc.Port)
	values[model.PlaceholderScheme] = endpoint.Scheme
	return cs.Template.Expand(values), nil
}

// pickEndpoint selects the named endpoint, defaulting to a sole declared one.
func pickEndpoint(ref *model.Resource, declared []model.EndpointAnnotation, name string) (model.EndpointAnnotation, error) {
	if name == "" {
		if len(declared) == 1 {
			return declared[0], nil
		}
		return model.EndpointAnnotation{}, model.NewConfigError(
			fmt.Sprintf("resource %q declares %d endpoints, connection string must name one", ref.Name(), len(declared)), nil,
		).WithCode(model.ErrCodeAmbiguousAnnotation).WithResource(ref.Name())
	}
	for _, ep := range declared {
		if ep.Name == name {
			return ep, nil
		}
	}
	return model.EndpointAnnotation{}, model.NewConfigError(
		fmt.Sprintf("endpoint %q is not declared on resource %q", name, ref.Name()), nil,
	).WithCode(model.ErrCodeEndpointNotDeclared).WithResource(ref.Name())
}
