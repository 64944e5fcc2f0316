package jobschema_test

import (
	"testing"

	"github.com/Strob0t/CodeForge/internal/adapter/jobschema"
)

func newValidator(t *testing.T) *jobschema.Validator {
	t.Helper()
	v, err := jobschema.New("")
	if err != nil {
		t.Fatalf("compile embedded schema: %v", err)
	}
	return v
}

func TestValidator_AcceptsWellFormedJob(t *testing.T) {
	v := newValidator(t)
	payload := []byte(`{
		"id": "job-1",
		"priority": 1,
		"code_deployment": {"kind": "SERVER_AVAILABLE_FOLDER", "paths": ["/tmp"]},
		"interpreter_deployment": {"kind": "SERVER_AVAILABLE_INTERPRETER", "interpreter_path": "/usr/bin/true"},
		"resource_requirement": {"cpu": 1},
		"spec": {"kind": "COMMAND", "args": ["true"]}
	}`)
	if err := v.Validate(payload); err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}
}

func TestValidator_RejectsMissingRequiredField(t *testing.T) {
	v := newValidator(t)
	payload := []byte(`{
		"priority": 1,
		"code_deployment": {"kind": "SERVER_AVAILABLE_FOLDER"},
		"interpreter_deployment": {"kind": "SERVER_AVAILABLE_INTERPRETER"},
		"spec": {"kind": "COMMAND"}
	}`)
	if err := v.Validate(payload); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestValidator_RejectsUnknownDeploymentKind(t *testing.T) {
	v := newValidator(t)
	payload := []byte(`{
		"id": "job-1",
		"priority": 1,
		"code_deployment": {"kind": "BOGUS_KIND"},
		"interpreter_deployment": {"kind": "SERVER_AVAILABLE_INTERPRETER"},
		"spec": {"kind": "COMMAND"}
	}`)
	if err := v.Validate(payload); err == nil {
		t.Fatal("expected error for unknown code deployment kind")
	}
}

func TestValidator_RejectsNegativeResourceComponent(t *testing.T) {
	v := newValidator(t)
	payload := []byte(`{
		"id": "job-1",
		"priority": 1,
		"code_deployment": {"kind": "SERVER_AVAILABLE_FOLDER", "paths": ["/tmp"]},
		"interpreter_deployment": {"kind": "SERVER_AVAILABLE_INTERPRETER", "interpreter_path": "/usr/bin/true"},
		"resource_requirement": {"cpu": -1},
		"spec": {"kind": "COMMAND", "args": ["true"]}
	}`)
	if err := v.Validate(payload); err == nil {
		t.Fatal("expected error for negative resource component")
	}
}

func TestValidator_RejectsInvalidJSON(t *testing.T) {
	v := newValidator(t)
	if err := v.Validate([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestValidator_RejectsNonPositivePriority(t *testing.T) {
	v := newValidator(t)
	payload := []byte(`{
		"id": "job-1",
		"priority": 0,
		"code_deployment": {"kind": "SERVER_AVAILABLE_FOLDER", "paths": ["/tmp"]},
		"interpreter_deployment": {"kind": "SERVER_AVAILABLE_INTERPRETER", "interpreter_path": "/usr/bin/true"},
		"spec": {"kind": "COMMAND", "args": ["true"]}
	}`)
	if err := v.Validate(payload); err == nil {
		t.Fatal("expected error for non-positive priority (exclusiveMinimum 0)")
	}
}

func TestValidator_OverridePathMissingFileErrors(t *testing.T) {
	if _, err := jobschema.New("/nonexistent/path/to/schema.json"); err == nil {
		t.Fatal("expected error reading a nonexistent override schema path")
	}
}
