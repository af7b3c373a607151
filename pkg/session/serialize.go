package session

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// payload is the persisted representation of a session.
type payload struct {
	Attributes map[string]json.RawMessage `json:"attributes,omitempty"`
	FlashNew   []string                   `json:"flash_new,omitempty"`
	FlashOld   []string                   `json:"flash_old,omitempty"`
	Version    int                        `json:"version"`
}

// CurrentSerializationVersion is the version written by encode.
// Increment when making breaking changes to the format.
const CurrentSerializationVersion = 1

func encode(attrs map[string]any, flashNew, flashOld []string) ([]byte, error) {
	p := payload{
		Attributes: make(map[string]json.RawMessage, len(attrs)),
		FlashNew:   flashNew,
		FlashOld:   flashOld,
		Version:    CurrentSerializationVersion,
	}
	for k, v := range attrs {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("session: encode %q: %w", k, err)
		}
		p.Attributes[k] = raw
	}
	return json.Marshal(p)
}

// decode restores attributes. Numbers decode as json.Number so integer
// values keep their exact text.
func decode(data []byte) (map[string]any, []string, []string, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, nil, nil, fmt.Errorf("session: decode: %w", err)
	}
	if p.Version > CurrentSerializationVersion {
		return nil, nil, nil, fmt.Errorf("session: unsupported serialization version %d", p.Version)
	}
	attrs := make(map[string]any, len(p.Attributes))
	for k, raw := range p.Attributes {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, nil, fmt.Errorf("session: decode %q: %w", k, err)
		}
		attrs[k] = v
	}
	return attrs, p.FlashNew, p.FlashOld, nil
}
