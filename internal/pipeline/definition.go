package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"vidflow/internal/stage"
)

// DefaultOutputField is the envelope field stage responses carry their
// payload under.
const DefaultOutputField = "Payload"

// Definition is the ordered, immutable stage chain.
type Definition struct {
	stages      []stage.Handler
	names       []string
	outputField string
}

// NewDefinition validates handlers and fixes their order. The chain must be
// non-empty and stage names must be unique and non-blank.
func NewDefinition(outputField string, handlers ...stage.Handler) (*Definition, error) {
	if len(handlers) == 0 {
		return nil, errors.New("pipeline definition requires at least one stage")
	}
	seen := make(map[string]struct{}, len(handlers))
	names := make([]string, 0, len(handlers))
	for i, handler := range handlers {
		if handler == nil {
			return nil, fmt.Errorf("pipeline stage %d is nil", i)
		}
		name := strings.TrimSpace(handler.Name())
		if name == "" {
			return nil, fmt.Errorf("pipeline stage %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate pipeline stage %q", name)
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	outputField = strings.TrimSpace(outputField)
	if outputField == "" {
		outputField = DefaultOutputField
	}
	stages := make([]stage.Handler, len(handlers))
	copy(stages, handlers)
	return &Definition{stages: stages, names: names, outputField: outputField}, nil
}

// Names returns the stage names in invocation order.
func (d *Definition) Names() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Len returns the number of stages.
func (d *Definition) Len() int { return len(d.stages) }

// OutputField returns the envelope field unwrapped between stages.
func (d *Definition) OutputField() string { return d.outputField }
