package stage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedOutput marks a stage response that is not valid JSON.
var ErrMalformedOutput = errors.New("malformed output")

// Payload is an opaque JSON document passed between stages.
type Payload json.RawMessage

// ObjectPayload encodes fields as a JSON object payload.
func ObjectPayload(fields map[string]any) (Payload, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return Payload(data), nil
}

// MustObjectPayload is ObjectPayload for literal inputs that cannot fail.
func MustObjectPayload(fields map[string]any) Payload {
	p, err := ObjectPayload(fields)
	if err != nil {
		panic(err)
	}
	return p
}

// MarshalJSON emits the payload verbatim, or null when empty.
func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return []byte(p), nil
}

// UnmarshalJSON stores a copy of data.
func (p *Payload) UnmarshalJSON(data []byte) error {
	if p == nil {
		return errors.New("stage.Payload: UnmarshalJSON on nil pointer")
	}
	*p = append((*p)[0:0], data...)
	return nil
}

// Valid reports whether the payload is a well-formed JSON document.
func (p Payload) Valid() bool {
	return len(bytes.TrimSpace(p)) > 0 && json.Valid(p)
}

// Decode unmarshals the payload into v.
func (p Payload) Decode(v any) error {
	if err := json.Unmarshal(p, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func (p Payload) String() string {
	if len(p) == 0 {
		return "null"
	}
	return string(p)
}

// Unwrap returns the value stored under field when the payload is a JSON
// object carrying it, and the payload itself otherwise. A payload that is not
// valid JSON fails with ErrMalformedOutput.
func (p Payload) Unwrap(field string) (Payload, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrMalformedOutput, excerpt(p, 120))
	}
	if field == "" {
		return p, nil
	}
	trimmed := bytes.TrimSpace(p)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return p, nil
	}
	var object map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &object); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	value, ok := object[field]
	if !ok {
		return p, nil
	}
	return Payload(value), nil
}

func excerpt(data []byte, limit int) string {
	text := string(bytes.TrimSpace(data))
	if text == "" {
		return "empty response"
	}
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}
