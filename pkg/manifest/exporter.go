package manifest

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/appdock/appdock/pkg/model"
	"github.com/appdock/appdock/pkg/resolve"
	"github.com/appdock/appdock/pkg/telemetry"
)

//go:embed manifest.schema.json
var manifestSchema string

// Default manifest types per resource kind, overridable with a
// ManifestTypeAnnotation.
var defaultTypes = map[model.ResourceKind]string{
	model.KindContainer:        "container.v0",
	model.KindExecutable:       "executable.v0",
	model.KindConnectionString: "connection.v0",
	model.KindValueProvider:    "value.v0",
}

// Exporter renders a sealed graph into the deployment manifest. The manifest
// is a static document: connection strings appear in their format-only form
// and bindings carry the declared shape, never runtime allocations.
type Exporter struct {
	graph    *model.Graph
	resolver *resolve.Resolver
	log      *telemetry.Logger
	schema   *jsonschema.Schema
}

// NewExporter creates an exporter over a sealed graph.
func NewExporter(graph *model.Graph, log *telemetry.Logger) (*Exporter, error) {
	schema, err := jsonschema.CompileString("manifest.schema.json", manifestSchema)
	if err != nil {
		return nil, fmt.Errorf("compiling manifest schema: %w", err)
	}
	if log == nil {
		log = telemetry.Nop()
	}
	return &Exporter{
		graph:    graph,
		resolver: resolve.New(graph, nil),
		log:      log,
		schema:   schema,
	}, nil
}

// Export builds the manifest document, runs publish hooks, and validates the
// result against the embedded schema before returning it.
func (e *Exporter) Export() (map[string]any, error) {
	resources := make(map[string]any)
	for _, r := range e.graph.Resources() {
		entry, err := e.entryFor(r)
		if err != nil {
			return nil, err
		}
		resources[r.Name()] = entry
	}
	doc := map[string]any{"resources": resources}

	// The validator wants values shaped like json.Unmarshal output, so the
	// document is round-tripped before validation.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if err := e.schema.Validate(decoded); err != nil {
		return nil, model.NewConfigError("manifest failed schema validation", err)
	}
	e.log.Debugf("exported manifest with %d resources", len(resources))
	return doc, nil
}

// WriteJSON exports the manifest and writes it as indented JSON.
func (e *Exporter) WriteJSON(w io.Writer) error {
	doc, err := e.Export()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// entryFor renders one resource's manifest entry and applies its publish
// hooks in declaration order.
func (e *Exporter) entryFor(r *model.Resource) (map[string]any, error) {
	typ, err := e.typeFor(r)
	if err != nil {
		return nil, err
	}
	entry := map[string]any{
		"type": typ,
	}

	if img, err := model.SingleAnnotationOf[model.ImageAnnotation](r); err == nil {
		entry["image"] = img.Ref()
		if img.BuildContext != "" {
			build := map[string]any{"context": img.BuildContext}
			if img.Dockerfile != "" {
				build["dockerfile"] = img.Dockerfile
			}
			entry["build"] = build
		}
	} else if !model.IsCode(err, model.ErrCodeAnnotationNotFound) {
		return nil, err
	}

	if cs, err := e.resolver.ConnectionStringExpression(r.Name()); err == nil {
		entry["connectionString"] = cs
	} else if !model.IsCode(err, model.ErrCodeAnnotationNotFound) {
		return nil, err
	}

	if bindings := bindingsFor(r); len(bindings) > 0 {
		entry["bindings"] = bindings
	}

	if deps := e.graph.Dependencies(r.Name()); len(deps) > 0 {
		sort.Strings(deps)
		entry["dependencies"] = deps
	}

	for _, pub := range model.AnnotationsOf[model.ManifestPublishAnnotation](r) {
		if pub.Publish == nil {
			continue
		}
		if err := pub.Publish(entry); err != nil {
			return nil, model.NewConfigError("manifest publish hook", err).WithResource(r.Name())
		}
	}
	return entry, nil
}

// typeFor returns the manifest type: an explicit annotation wins over the
// kind default. The default only covers an absent annotation; an ambiguous
// one is an error.
func (e *Exporter) typeFor(r *model.Resource) (string, error) {
	t, err := model.SingleAnnotationOf[model.ManifestTypeAnnotation](r)
	if err == nil {
		return t.Type, nil
	}
	if !model.IsCode(err, model.ErrCodeAnnotationNotFound) {
		return "", err
	}
	return defaultTypes[r.Kind()], nil
}

// bindingsFor renders declared endpoints as manifest bindings.
func bindingsFor(r *model.Resource) map[string]any {
	bindings := make(map[string]any)
	for _, ep := range model.AnnotationsOf[model.EndpointAnnotation](r) {
		b := map[string]any{"protocol": string(ep.Protocol)}
		if ep.Scheme != "" {
			b["scheme"] = ep.Scheme
		}
		if ep.TargetPort != 0 {
			b["targetPort"] = ep.TargetPort
		}
		if ep.Port != 0 {
			b["port"] = ep.Port
		}
		if ep.External {
			b["external"] = true
		}
		bindings[ep.Name] = b
	}
	return bindings
}
