package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/appdock/appdock/pkg/model"
)

func sealGraph(t *testing.T, build func(b *model.Builder)) *model.Graph {
	t.Helper()
	b := model.NewBuilder()
	build(b)
	g, err := b.Seal()
	if err != nil {
		t.Fatalf("Expected no error sealing graph, got: %v", err)
	}
	return g
}

func addResource(t *testing.T, b *model.Builder, name string, kind model.ResourceKind, annotations ...model.Annotation) *model.Resource {
	t.Helper()
	r, err := b.AddResource(name, kind)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	for _, a := range annotations {
		if err := r.AddAnnotation(a); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
	}
	return r
}

func entryOf(t *testing.T, doc map[string]any, name string) map[string]any {
	t.Helper()
	resources, ok := doc["resources"].(map[string]any)
	if !ok {
		t.Fatalf("Expected resources object, got %T", doc["resources"])
	}
	entry, ok := resources[name].(map[string]any)
	if !ok {
		t.Fatalf("Expected entry for %q, got %v", name, resources[name])
	}
	return entry
}

func TestExportDefaultTypes(t *testing.T) {
	g := sealGraph(t, func(b *model.Builder) {
		addResource(t, b, "api", model.KindContainer,
			model.ImageAnnotation{Image: "acme/api", Tag: "v1"})
		addResource(t, b, "migrate", model.KindExecutable)
	})
	e, err := NewExporter(g, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	doc, err := e.Export()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got := entryOf(t, doc, "api")["type"]; got != "container.v0" {
		t.Errorf("Expected container.v0, got %v", got)
	}
	if got := entryOf(t, doc, "api")["image"]; got != "acme/api:v1" {
		t.Errorf("Expected image reference, got %v", got)
	}
	if got := entryOf(t, doc, "migrate")["type"]; got != "executable.v0" {
		t.Errorf("Expected executable.v0, got %v", got)
	}
}

func TestExportManifestTypeOverride(t *testing.T) {
	g := sealGraph(t, func(b *model.Builder) {
		addResource(t, b, "pg-conn", model.KindConnectionString,
			model.ManifestTypeAnnotation{Type: "postgres.connection.v0"},
			model.ConnectionStringAnnotation{Literal: "Host=db.internal;Port=5432;"},
		)
	})
	e, err := NewExporter(g, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	doc, err := e.Export()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	entry := entryOf(t, doc, "pg-conn")
	if entry["type"] != "postgres.connection.v0" {
		t.Errorf("Expected overridden type, got %v", entry["type"])
	}
	if entry["connectionString"] != "Host=db.internal;Port=5432;" {
		t.Errorf("Expected literal connection string, got %v", entry["connectionString"])
	}
}

func TestExportAmbiguousManifestTypeFails(t *testing.T) {
	g := sealGraph(t, func(b *model.Builder) {
		addResource(t, b, "db-conn", model.KindConnectionString,
			model.ManifestTypeAnnotation{Type: "postgres.connection.v0"},
			model.ManifestTypeAnnotation{Type: "mysql.connection.v0"},
			model.ConnectionStringAnnotation{Literal: "Host=db;Port=5432;"},
		)
	})
	e, err := NewExporter(g, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	_, err = e.Export()
	if err == nil {
		t.Fatal("Expected error for two manifest type annotations, got nil")
	}
	if !model.IsCode(err, model.ErrCodeAmbiguousAnnotation) {
		t.Errorf("Expected AMBIGUOUS_ANNOTATION, got: %v", err)
	}
}

func TestExportFormatOnlyConnectionString(t *testing.T) {
	tmpl := model.MustParseTemplate("Host={host};Port={port};Username={username};Password={password};")
	g := sealGraph(t, func(b *model.Builder) {
		addResource(t, b, "pg", model.KindContainer,
			model.EndpointAnnotation{Name: "tcp", Protocol: model.ProtocolTCP, TargetPort: 5432},
			model.ConnectionStringAnnotation{Template: tmpl, Username: "postgres", Password: "secret"},
		)
	})
	e, err := NewExporter(g, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	doc, err := e.Export()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	want := "Host={host};Port={port};Username=postgres;Password=secret;"
	if got := entryOf(t, doc, "pg")["connectionString"]; got != want {
		t.Errorf("Expected format-only connection string %q, got %v", want, got)
	}
}

func TestExportBindingsAndDependencies(t *testing.T) {
	g := sealGraph(t, func(b *model.Builder) {
		addResource(t, b, "pg", model.KindContainer,
			model.EndpointAnnotation{Name: "tcp", Protocol: model.ProtocolTCP, Scheme: "tcp", TargetPort: 5432})
		api := addResource(t, b, "api", model.KindContainer,
			model.EndpointAnnotation{Name: "http", Protocol: model.ProtocolTCP, Scheme: "http", TargetPort: 8080, External: true})
		if err := api.AddReference("pg"); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
	})
	e, err := NewExporter(g, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	doc, err := e.Export()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	entry := entryOf(t, doc, "api")
	bindings, ok := entry["bindings"].(map[string]any)
	if !ok {
		t.Fatalf("Expected bindings object, got %v", entry["bindings"])
	}
	http, ok := bindings["http"].(map[string]any)
	if !ok {
		t.Fatalf("Expected http binding, got %v", bindings)
	}
	if http["external"] != true || http["targetPort"] != 8080 {
		t.Errorf("Expected external binding on 8080, got %v", http)
	}

	deps, ok := entry["dependencies"].([]string)
	if !ok || len(deps) != 1 || deps[0] != "pg" {
		t.Errorf("Expected dependency on pg, got %v", entry["dependencies"])
	}
}

func TestExportPublishHook(t *testing.T) {
	g := sealGraph(t, func(b *model.Builder) {
		addResource(t, b, "api", model.KindContainer,
			model.ManifestPublishAnnotation{Publish: func(entry map[string]any) error {
				entry["type"] = "custom.api.v1"
				return nil
			}},
		)
	})
	e, err := NewExporter(g, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	doc, err := e.Export()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := entryOf(t, doc, "api")["type"]; got != "custom.api.v1" {
		t.Errorf("Expected publish hook to amend the entry, got %v", got)
	}
}

func TestExportPublishHookError(t *testing.T) {
	boom := errors.New("boom")
	g := sealGraph(t, func(b *model.Builder) {
		addResource(t, b, "api", model.KindContainer,
			model.ManifestPublishAnnotation{Publish: func(entry map[string]any) error {
				return boom
			}},
		)
	})
	e, err := NewExporter(g, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, err := e.Export(); !errors.Is(err, boom) {
		t.Errorf("Expected publish hook error surfaced, got: %v", err)
	}
}

func TestExportRejectsInvalidPublishResult(t *testing.T) {
	g := sealGraph(t, func(b *model.Builder) {
		addResource(t, b, "api", model.KindContainer,
			model.ManifestPublishAnnotation{Publish: func(entry map[string]any) error {
				entry["type"] = "NotAValidType"
				return nil
			}},
		)
	})
	e, err := NewExporter(g, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, err := e.Export(); err == nil {
		t.Error("Expected schema validation failure, got nil")
	}
}

func TestWriteJSON(t *testing.T) {
	g := sealGraph(t, func(b *model.Builder) {
		addResource(t, b, "api", model.KindContainer,
			model.ImageAnnotation{Image: "acme/api"})
	})
	e, err := NewExporter(g, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	var buf bytes.Buffer
	if err := e.WriteJSON(&buf); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	var round map[string]any
	if err := json.Unmarshal(buf.Bytes(), &round); err != nil {
		t.Fatalf("Expected valid JSON output, got: %v", err)
	}
	if _, ok := round["resources"]; !ok {
		t.Error("Expected resources key in output")
	}
}
