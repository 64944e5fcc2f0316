// Package jobschema structurally validates submitted Job payloads against a
// JSON Schema before they reach the hand-written oneof/charset checks in
// internal/domain/job, mirroring how orchestrator-go validates manifests
// before they enter its flow store.
package jobschema

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator compiles the job schema once and validates arbitrary submitted
// payloads against it.
type Validator struct {
	schema *jsonschema.Schema
}

// New compiles the embedded job schema, or the schema at path if non-empty
// (operators can override it via Coordinator.JobSchemaPath without a
// rebuild).
func New(path string) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	source := jobSchemaJSON
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("jobschema: read %s: %w", path, err)
		}
		source = string(data)
	}

	if err := compiler.AddResource("job.json", strings.NewReader(source)); err != nil {
		return nil, fmt.Errorf("jobschema: add resource: %w", err)
	}
	schema, err := compiler.Compile("job.json")
	if err != nil {
		return nil, fmt.Errorf("jobschema: compile: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks data (a JSON-encoded Job) against the schema. A nil error
// means the structural shape is acceptable; callers still run
// job.Job.Validate for the deeper oneof/charset checks the schema cannot
// express precisely (e.g. "exactly one of these fields is set").
func (v *Validator) Validate(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("jobschema: invalid JSON: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("jobschema: %w", err)
	}
	return nil
}

const jobSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "job.json",
  "title": "Job",
  "type": "object",
  "required": ["id", "priority", "code_deployment", "interpreter_deployment", "spec"],
  "properties": {
    "id": {"type": "string", "pattern": "^[A-Za-z0-9._-]+$"},
    "name": {"type": "string"},
    "priority": {"type": "number", "exclusiveMinimum": 0},
    "interruption_probability_threshold": {"type": "number", "minimum": 0, "maximum": 1},
    "code_deployment": {
      "type": "object",
      "required": ["kind"],
      "properties": {
        "kind": {"enum": ["SERVER_AVAILABLE_FOLDER", "GIT_REPO_COMMIT", "GIT_REPO_BRANCH"]},
        "paths": {"type": "array", "items": {"type": "string"}},
        "repo_url": {"type": "string"},
        "ref": {"type": "string"},
        "subpath": {"type": "string"}
      }
    },
    "interpreter_deployment": {
      "type": "object",
      "required": ["kind"],
      "properties": {
        "kind": {"enum": ["SERVER_AVAILABLE_INTERPRETER", "CONTAINER_AT_DIGEST", "CONTAINER_AT_TAG", "SERVER_AVAILABLE_CONTAINER"]},
        "interpreter_path": {"type": "string"},
        "repository": {"type": "string"},
        "tag": {"type": "string"},
        "digest": {"type": "string"},
        "image_name": {"type": "string"}
      }
    },
    "environment_variables": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "resource_requirement": {
      "type": "object",
      "additionalProperties": {"type": "number", "minimum": 0}
    },
    "result_pickle_protocol_ceiling": {"type": "integer", "minimum": 0},
    "spec": {
      "type": "object",
      "required": ["kind"],
      "properties": {
        "kind": {"enum": ["COMMAND", "FUNCTION", "GRID"]},
        "args": {"type": "array", "items": {"type": "string"}},
        "function_module": {"type": "string"},
        "function_name": {"type": "string"},
        "grid_function_module": {"type": "string"},
        "grid_function_name": {"type": "string"}
      }
    }
  }
}`
