package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchema validates JSON-format configuration files before they
// are decoded, so typos surface as field-level errors instead of
// silently falling back to defaults.
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "filter": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "policy": {"enum": ["adaptive", "pattern"]},
        "initial_threshold_ms": {"type": "integer", "minimum": 1},
        "repeat_threshold_ms": {"type": "integer", "minimum": 1},
        "transition_delay_ms": {"type": "integer", "minimum": 1},
        "min_release_duration_ms": {"type": "integer", "minimum": 0}
      }
    },
    "capture": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "devices": {"type": "array", "items": {"type": "string"}},
        "grab": {"type": "boolean"}
      }
    },
    "logging": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level": {"enum": ["debug", "info", "warn", "error"]},
        "format": {"enum": ["text", "json"]},
        "output": {"type": "string"},
        "file_path": {"type": "string"},
        "max_size_mb": {"type": "integer", "minimum": 1},
        "max_backups": {"type": "integer", "minimum": 0},
        "max_age_days": {"type": "integer", "minimum": 0},
        "compress": {"type": "boolean"}
      }
    },
    "ipc": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "socket_path": {"type": "string"},
        "listen_addr": {"type": "string"},
        "max_connections": {"type": "integer", "minimum": 1}
      }
    },
    "stats": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "path": {"type": "string"},
        "flush_interval_sec": {"type": "integer", "minimum": 1}
      }
    },
    "metrics": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "listen_addr": {"type": "string"}
      }
    },
    "notify": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "blocked_threshold": {"type": "integer", "minimum": 1}
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("chatterd-config.json", strings.NewReader(configSchema)); err != nil {
		panic(fmt.Sprintf("config schema resource: %v", err))
	}
	s, err := c.Compile("chatterd-config.json")
	if err != nil {
		panic(fmt.Sprintf("config schema compile: %v", err))
	}
	return s
}

// ValidateJSONSchema checks a JSON config document against the schema.
func ValidateJSONSchema(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}
	return compiledSchema.Validate(v)
}
