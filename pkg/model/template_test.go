package model

import "testing"

func TestParseTemplate(t *testing.T) {
	tmpl, err := ParseTemplate("Host={host};Port={port};Username={username};Password={password};")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	got := tmpl.Placeholders()
	want := []string{"host", "port", "username", "password"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d placeholders, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected placeholder %q at %d, got %q", want[i], i, got[i])
		}
	}
}

func TestParseTemplateUnknownPlaceholder(t *testing.T) {
	_, err := ParseTemplate("Host={hostname};")
	if err == nil {
		t.Fatal("Expected error for unknown placeholder, got nil")
	}
	if !IsCode(err, ErrCodeBadTemplate) {
		t.Errorf("Expected BAD_TEMPLATE, got: %v", err)
	}
}

func TestParseTemplateUnterminated(t *testing.T) {
	_, err := ParseTemplate("Host={host")
	if err == nil {
		t.Fatal("Expected error for unterminated placeholder, got nil")
	}
	if !IsCode(err, ErrCodeBadTemplate) {
		t.Errorf("Expected BAD_TEMPLATE, got: %v", err)
	}
}

func TestExpand(t *testing.T) {
	tmpl := MustParseTemplate("{scheme}://{host}:{port}")
	got := tmpl.Expand(map[string]string{
		"scheme": "http",
		"host":   "localhost",
		"port":   "8080",
	})
	if got != "http://localhost:8080" {
		t.Errorf("Expected expanded URL, got %q", got)
	}
}

func TestExpandLeavesMissingPlaceholders(t *testing.T) {
	tmpl := MustParseTemplate("Host={host};Port={port};Username={username};")
	got := tmpl.Expand(map[string]string{"username": "postgres"})
	if got != "Host={host};Port={port};Username=postgres;" {
		t.Errorf("Expected format-only rendering, got %q", got)
	}
}

func TestExpandRepeatedPlaceholder(t *testing.T) {
	tmpl := MustParseTemplate("{host}-{host}")
	if got := tmpl.Expand(map[string]string{"host": "a"}); got != "a-a" {
		t.Errorf("Expected both occurrences substituted, got %q", got)
	}
}
