package action

import (
	"encoding/json"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

const (
	ToolName        = "computer_action"
	ToolDescription = "Execute computer actions on the 1024x768 Ubuntu desktop: click, type, press keys, scroll, take screenshots or wait. " +
		"Press only one key or shortcut per key action, e.g. 'enter' or 'ctrl+c'. Prefer clicking UI elements over keyboard shortcuts " +
		"and use double_click to open applications and files."
)

// Batch is the structured output expected from JSON-mode backends.
type Batch struct {
	Actions   []Descriptor `json:"actions" jsonschema:"Computer actions to execute in order. Take action instead of waiting."`
	Reasoning string       `json:"reasoning,omitempty" jsonschema:"Brief explanation of the actions being taken"`
}

var (
	descriptorSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
		s, err := jsonschema.For[Descriptor](&jsonschema.ForOptions{})
		if err != nil {
			return nil, err
		}
		constrain(s)
		return s, nil
	})
	batchSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
		s, err := jsonschema.For[Batch](&jsonschema.ForOptions{})
		if err != nil {
			return nil, err
		}
		if actions := s.Properties["actions"]; actions != nil && actions.Items != nil {
			constrain(actions.Items)
		}
		return s, nil
	})
)

// constrain adds the enums reflection can't infer.
func constrain(s *jsonschema.Schema) {
	if p := s.Properties["action"]; p != nil {
		p.Enum = make([]any, 0, len(Types))
		for _, t := range Types {
			p.Enum = append(p.Enum, string(t))
		}
	}
	if p := s.Properties["scroll_direction"]; p != nil {
		p.Enum = []any{"up", "down", "left", "right"}
	}
	s.Required = []string{"action"}
}

// Schema is the JSON schema of a single action, used as tool parameters.
func Schema() (*jsonschema.Schema, error) {
	return descriptorSchema()
}

// BatchSchema is the JSON schema of a Batch.
func BatchSchema() (*jsonschema.Schema, error) {
	return batchSchema()
}

// SchemaMap renders a schema as the generic map most SDKs accept.
func SchemaMap(s *jsonschema.Schema) (map[string]any, error) {
	buf, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, err
	}
	if m["type"] == nil {
		m["type"] = "object"
	}
	return m, nil
}

// ParseBatch decodes and normalizes a Batch from model text.
func ParseBatch(data []byte) (Batch, error) {
	var raw struct {
		Actions   []map[string]any `json:"actions"`
		Reasoning string           `json:"reasoning"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Batch{}, err
	}
	b := Batch{Reasoning: raw.Reasoning}
	for _, a := range raw.Actions {
		b.Actions = append(b.Actions, Normalize(a))
	}
	return b, nil
}
