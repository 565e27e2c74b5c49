package model

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

// Annotation is a typed fact attached to a resource. Annotations are
// append-only on the builder side; once the graph is sealed the collection is
// read-only. Multiple annotations of the same type may coexist, in declaration
// order.
type Annotation interface {
	// AnnotationKind returns a stable identifier for the annotation type,
	// used in diagnostics and manifest export.
	AnnotationKind() string
}

// Referencer is implemented by annotations that reference other resources.
// Declared references become explicit dependency edges when the graph is
// sealed, so the graph can be traversed without executing callbacks.
type Referencer interface {
	Refs() []string
}

// AnnotationsOf returns all annotations of type T on r, in declaration order.
func AnnotationsOf[T Annotation](r *Resource) []T {
	var out []T
	for _, a := range r.annotations {
		if t, ok := a.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// SingleAnnotationOf returns the single annotation of type T on r. It fails
// with AMBIGUOUS_ANNOTATION if more than one exists and ANNOTATION_NOT_FOUND
// if none does.
func SingleAnnotationOf[T Annotation](r *Resource) (T, error) {
	var zero T
	all := AnnotationsOf[T](r)
	switch len(all) {
	case 0:
		return zero, NewConfigError(
			fmt.Sprintf("no %T annotation", zero), nil,
		).WithCode(ErrCodeAnnotationNotFound).WithResource(r.Name())
	case 1:
		return all[0], nil
	default:
		return zero, NewConfigError(
			fmt.Sprintf("%d %T annotations, expected exactly one", len(all), zero), nil,
		).WithCode(ErrCodeAmbiguousAnnotation).WithResource(r.Name())
	}
}

// Protocol is the transport protocol of a declared endpoint.
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

// EndpointAnnotation declares a named network entry point on a resource.
// The declared form carries the desired shape; the concrete host and port are
// bound later, exactly once, by the lifecycle driver.
type EndpointAnnotation struct {
	// Name is the logical endpoint name, unique per resource.
	Name string

	// Protocol is the transport protocol.
	Protocol Protocol

	// Scheme is the URI scheme used when composing addresses (http, tcp, ...).
	Scheme string

	// TargetPort is the port the resource listens on.
	TargetPort int

	// Port is the desired host port, 0 for driver-assigned.
	Port int

	// External marks the endpoint as reachable from outside the application.
	External bool

	// Proxied routes the endpoint through the reverse proxy resource.
	Proxied bool
}

// AnnotationKind implements Annotation.
func (EndpointAnnotation) AnnotationKind() string { return "endpoint" }

// AllocatedEndpoint is the concrete host/port bound to a declared endpoint by
// the lifecycle driver. Immutable after allocation.
type AllocatedEndpoint struct {
	// EndpointName is the logical name of the declared endpoint.
	EndpointName string

	// Host is the bound host.
	Host string

	// Port is the bound port.
	Port int
}

// Address returns the host:port form of the allocated endpoint.
func (a AllocatedEndpoint) Address() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// EndpointView is the resolution-time view of allocated endpoints. The
// lifecycle machine implements it; contributor callbacks consume it.
type EndpointView interface {
	// AllocatedEndpoint returns the allocation for the named endpoint of a
	// resource, or an ENDPOINT_NOT_ALLOCATED resolution error if the driver
	// has not bound it yet.
	AllocatedEndpoint(resource, endpoint string) (AllocatedEndpoint, error)
}

// EnvContext is passed to environment contributor callbacks during a
// resolution pass.
type EnvContext struct {
	// Resource is the resource being resolved.
	Resource *Resource

	// Endpoints is the live view of allocated endpoints.
	Endpoints EndpointView
}

// EnvContributorFunc adds or overwrites entries in the environment map of a
// resolution pass. The map is private to one pass. Implementations must be
// deterministic given the same allocated-endpoint inputs.
type EnvContributorFunc func(ctx context.Context, env map[string]string, ec *EnvContext) error

// EnvContributorAnnotation defers environment computation to resolution time.
type EnvContributorAnnotation struct {
	// Contribute is invoked during resolution with the accumulating map.
	Contribute EnvContributorFunc

	// References lists resources whose allocated endpoints Contribute reads.
	References []string
}

// AnnotationKind implements Annotation.
func (EnvContributorAnnotation) AnnotationKind() string { return "env-contributor" }

// Refs implements Referencer.
func (a EnvContributorAnnotation) Refs() []string { return a.References }

// ImageAnnotation references the container image of a resource. When
// BuildContext is set the image is built locally; otherwise it is a pull-only
// reference.
type ImageAnnotation struct {
	// Registry is the registry host, empty for the default registry.
	Registry string

	// Image is the repository name.
	Image string

	// Tag is the image tag, empty for "latest".
	Tag string

	// BuildContext is the local build context directory.
	BuildContext string

	// Dockerfile is the Dockerfile path relative to BuildContext.
	Dockerfile string
}

// AnnotationKind implements Annotation.
func (ImageAnnotation) AnnotationKind() string { return "image" }

// Ref returns the full image reference.
func (a ImageAnnotation) Ref() string {
	ref := a.Image
	if a.Registry != "" {
		ref = a.Registry + "/" + ref
	}
	tag := a.Tag
	if tag == "" {
		tag = "latest"
	}
	return ref + ":" + tag
}

// ConnectionStringAnnotation gives a resource the "produce a connection
// string" capability. Exactly one of Literal, Template, or Base is used:
//
//   - Literal is returned verbatim (externally hosted endpoints).
//   - Template is expanded against the referenced resource's allocated
//     endpoint plus the credential fields. Expansion is lazy; it fails with
//     ENDPOINT_NOT_ALLOCATED until the driver binds the endpoint.
//   - Base names another connection-string resource whose resolved value
//     prefixes this one, followed by Suffix (e.g. a database within a server).
type ConnectionStringAnnotation struct {
	// Literal is a fixed connection string.
	Literal string

	// Template is the component template, validated at declaration time.
	Template *Template

	// Ref is the resource whose endpoint the template reads. It may name the
	// owning resource itself.
	Ref string

	// Endpoint is the logical endpoint name on Ref.
	Endpoint string

	// Username substitutes the {username} placeholder.
	Username string

	// Password substitutes the {password} placeholder.
	Password string

	// Base is the resource whose connection string prefixes this one.
	Base string

	// Suffix is appended after the base connection string.
	Suffix string
}

// AnnotationKind implements Annotation.
func (ConnectionStringAnnotation) AnnotationKind() string { return "connection-string" }

// Refs implements Referencer.
func (a ConnectionStringAnnotation) Refs() []string {
	var refs []string
	if a.Ref != "" {
		refs = append(refs, a.Ref)
	}
	if a.Base != "" {
		refs = append(refs, a.Base)
	}
	return refs
}

// ManifestTypeAnnotation sets the versioned type string under which the
// resource is exported, e.g. "postgres.connection.v0". The version suffix is
// part of the external contract.
type ManifestTypeAnnotation struct {
	Type string
}

// AnnotationKind implements Annotation.
func (ManifestTypeAnnotation) AnnotationKind() string { return "manifest-type" }

// ManifestPublishAnnotation customizes the manifest entry of a resource at
// export time.
type ManifestPublishAnnotation struct {
	// Publish amends the entry map before serialization.
	Publish func(entry map[string]any) error
}

// AnnotationKind implements Annotation.
func (ManifestPublishAnnotation) AnnotationKind() string { return "manifest-publish" }
