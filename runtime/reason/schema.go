package reason

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// decisionSchema is the JSON Schema every model response must satisfy before
// it is decoded into a Decision. Validating the raw document catches shape
// drift (wrong types, missing fields) with a precise error instead of a
// zero-valued struct.
const decisionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "message": {"type": "string", "minLength": 1},
    "sender": {"enum": ["agent", "customer", "vendor", "logistics"]},
    "recipient": {"enum": ["agent", "customer", "vendor", "logistics"]},
    "logistic_details": {"type": "string"},
    "finished": {"type": "boolean"}
  },
  "required": ["message", "sender", "recipient", "finished"],
  "additionalProperties": true
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(decisionSchema))
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("decision.json", doc); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = c.Compile("decision.json")
	})
	return compiledSchema, schemaErr
}

// ParseDecision extracts and validates a Decision from raw model output.
// Models occasionally wrap the JSON in code fences or prose; the first
// top-level JSON object in the text is used.
func ParseDecision(raw string) (Decision, error) {
	doc := extractJSON(raw)
	if doc == "" {
		return Decision{}, fmt.Errorf("no JSON object in model output")
	}
	s, err := schema()
	if err != nil {
		return Decision{}, fmt.Errorf("compile decision schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
	if err != nil {
		return Decision{}, fmt.Errorf("decode model output: %w", err)
	}
	if err := s.Validate(inst); err != nil {
		return Decision{}, fmt.Errorf("model output failed schema validation: %w", err)
	}
	var d Decision
	if err := json.Unmarshal([]byte(doc), &d); err != nil {
		return Decision{}, fmt.Errorf("decode decision: %w", err)
	}
	return d, nil
}

// extractJSON returns the first balanced top-level JSON object in s, or "".
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
