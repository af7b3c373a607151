package signals

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vango-dev/datastar/internal/metrics"
)

// Rules maps signal paths to validator tags, e.g. "required,email".
type Rules map[string]string

var validate = validator.New()

// Validate checks the submitted signals against rules and returns the
// validated subset. Numbers are converted to int64 or float64 first so
// numeric tags compare values rather than lengths.
//
// Rules naming a local signal panic: local signals never reach the server.
func (s *Store) Validate(rules Rules) (map[string]any, error) {
	for path := range rules {
		root, _, _ := strings.Cut(path, ".")
		if IsLocal(root) {
			panic(fmt.Sprintf("signals: cannot validate local signal %q", path))
		}
	}

	values, err := s.All()
	if err != nil {
		return nil, err
	}

	data := make(map[string]any, len(rules))
	tags := make(map[string]any, len(rules))
	for path, tag := range rules {
		v, _ := lookup(values, path)
		data[path] = plain(v)
		tags[path] = tag
	}

	failed := validate.ValidateMap(data, tags)
	if len(failed) == 0 {
		return data, nil
	}

	metrics.RecordValidationFailure()
	fields := make(map[string][]string, len(failed))
	for path, e := range failed {
		err, ok := e.(error)
		if !ok {
			continue
		}
		fields[path] = messages(path, err)
	}
	return nil, &ValidationError{Fields: fields}
}

func messages(field string, err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, message(field, fe.Tag(), fe.Param()))
	}
	return out
}

func message(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address.", field)
	case "min", "gte":
		return fmt.Sprintf("The %s field must be at least %s.", field, param)
	case "max", "lte":
		return fmt.Sprintf("The %s field may not be greater than %s.", field, param)
	case "oneof":
		return fmt.Sprintf("The %s field must be one of: %s.", field, param)
	default:
		return fmt.Sprintf("The %s field failed the %s rule.", field, tag)
	}
}

// plain replaces json.Number values with int64 or float64.
func plain(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = plain(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = plain(x)
		}
		return out
	default:
		return v
	}
}
