package config

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONSchemaReflectsYAMLFields(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}

	// Field names come from the yaml tags, not the Go identifiers.
	text := string(data)
	for _, want := range []string{`"ops"`, `"orchestrator"`, `"logging"`, `"max_calls_per_turn"`, `"command_timeout"`} {
		if !strings.Contains(text, want) {
			t.Errorf("schema missing %s", want)
		}
	}
	if strings.Contains(text, `"MaxCallsPerTurn"`) {
		t.Error("schema should use yaml field names, not Go identifiers")
	}
}

func TestJSONSchemaIsStableAcrossCalls(t *testing.T) {
	first, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema: %v", err)
	}
	second, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema: %v", err)
	}
	if string(first) != string(second) {
		t.Error("JSONSchema should return the same document on every call")
	}
}
