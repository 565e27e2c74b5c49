package model

import (
	"fmt"
	"regexp"
)

// ResourceKind tags the kind of a resource node.
type ResourceKind string

const (
	// KindContainer is a containerized resource.
	KindContainer ResourceKind = "container"

	// KindExecutable is a locally executed process.
	KindExecutable ResourceKind = "executable"

	// KindConnectionString is a connection-string-only resource.
	KindConnectionString ResourceKind = "connection-string"

	// KindValueProvider supplies values (parameters, secrets) to others.
	KindValueProvider ResourceKind = "value-provider"
)

// Validate checks if the resource kind is valid.
func (k ResourceKind) Validate() error {
	switch k {
	case KindContainer, KindExecutable, KindConnectionString, KindValueProvider:
		return nil
	default:
		return fmt.Errorf("invalid resource kind: %s", k)
	}
}

var manifestTypeRe = regexp.MustCompile(`^[a-z0-9-]+(\.[a-z0-9-]+)*\.v[0-9]+$`)

// Resource is a named, typed node in the application graph. Identity is the
// name for the lifetime of the graph; resources never rename.
type Resource struct {
	name        string
	kind        ResourceKind
	annotations []Annotation
	refs        []string

	builder *Builder
}

// Name returns the unique, case-sensitive resource name.
func (r *Resource) Name() string { return r.name }

// Kind returns the resource kind tag.
func (r *Resource) Kind() ResourceKind { return r.kind }

// Annotations returns the ordered annotation collection.
func (r *Resource) Annotations() []Annotation {
	out := make([]Annotation, len(r.annotations))
	copy(out, r.annotations)
	return out
}

// AddAnnotation appends an annotation; it never replaces. Fails once the
// graph is sealed, and rejects a second endpoint with an already-used logical
// name.
func (r *Resource) AddAnnotation(a Annotation) error {
	if r.builder.sealed {
		return NewConfigError("graph is sealed", nil).
			WithCode(ErrCodeGraphSealed).WithResource(r.name)
	}
	if ep, ok := a.(EndpointAnnotation); ok {
		for _, existing := range AnnotationsOf[EndpointAnnotation](r) {
			if existing.Name == ep.Name {
				return NewConfigError(
					fmt.Sprintf("endpoint %q already declared", ep.Name), nil,
				).WithCode(ErrCodeDuplicateEndpoint).WithResource(r.name)
			}
		}
	}
	if mt, ok := a.(ManifestTypeAnnotation); ok {
		if !manifestTypeRe.MatchString(mt.Type) {
			return NewConfigError(
				fmt.Sprintf("manifest type %q does not match <family>[.<subfamily>].v<major>", mt.Type), nil,
			).WithCode(ErrCodeBadManifestType).WithResource(r.name)
		}
	}
	r.annotations = append(r.annotations, a)
	return nil
}

// AddReference declares an explicit dependency edge on another resource.
// Reference-carrying annotations add edges implicitly at seal time; this is
// for ordering-only dependencies.
func (r *Resource) AddReference(target string) error {
	if r.builder.sealed {
		return NewConfigError("graph is sealed", nil).
			WithCode(ErrCodeGraphSealed).WithResource(r.name)
	}
	for _, ref := range r.refs {
		if ref == target {
			return nil
		}
	}
	r.refs = append(r.refs, target)
	return nil
}

// References returns the explicitly declared dependency edges.
func (r *Resource) References() []string {
	out := make([]string, len(r.refs))
	copy(out, r.refs)
	return out
}
