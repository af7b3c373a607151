package signals

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// parse decodes the request payload into a signal map.
func (s *Store) parse() map[string]any {
	raw := s.rawPayload()
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		s.logger.Debug("ignoring malformed signals payload", "error", err)
		return map[string]any{}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}

func (s *Store) rawPayload() []byte {
	if s.req == nil {
		return nil
	}
	q := s.req.URL.Query()
	if q.Has(s.param) {
		return []byte(q.Get(s.param))
	}
	if s.req.Body == nil || s.req.Method == http.MethodGet || s.req.Method == http.MethodHead {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(s.req.Body, s.maxBody+1))
	if err != nil {
		s.logger.Debug("reading signals body failed", "error", err)
		return nil
	}
	if int64(len(body)) > s.maxBody {
		s.logger.Warn("signals body exceeds limit", "limit", s.maxBody)
		return nil
	}
	// Handlers may still want the body.
	s.req.Body = io.NopCloser(bytes.NewReader(body))
	return body
}

// lookup resolves a signal by exact name first, then as a dot path through
// nested objects.
func lookup(values map[string]any, path string) (any, bool) {
	if v, ok := values[path]; ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		return nil, false
	}
	var cur any = values
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
