package responder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"sort"

	"github.com/vango-dev/datastar/pkg/protocol"
	"github.com/vango-dev/datastar/pkg/signals"
)

// ErrorsSignal is the signal validation errors are pushed to. Forget
// resets it to an empty array instead of removing it.
const ErrorsSignal = "errors"

// Mapper is implemented by values that convert themselves to a signal map.
type Mapper interface {
	ToMap() map[string]any
}

// Signals patches the client's signals. values is a map, a Mapper, or
// anything that encodes to a JSON object. Locked entries are persisted in
// the session; a nil locked entry that is no longer stored is dropped.
func (r *Responder) Signals(values any) error {
	return r.patchSignals(values, false)
}

// SignalsIfMissing patches only signals the client does not have yet.
func (r *Responder) SignalsIfMissing(values any) error {
	return r.patchSignals(values, true)
}

// Signal patches one signal.
func (r *Responder) Signal(name string, value any) error {
	return r.patchSignals(map[string]any{name: value}, false)
}

func (r *Responder) patchSignals(values any, onlyIfMissing bool) error {
	if !r.reactive {
		return nil
	}
	m, err := toMap(values)
	if err != nil {
		return err
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()

	if err := r.storeLocked(m); err != nil {
		return err
	}
	if len(m) == 0 {
		return nil
	}
	return r.emitSignals(m, onlyIfMissing)
}

// storeLocked hands locked entries to the signal store and drops nil
// entries for locked signals that are already gone.
func (r *Responder) storeLocked(m map[string]any) error {
	locked := make(map[string]any)
	var stored map[string]any
	for name, v := range m {
		if !signals.IsLocked(name) {
			continue
		}
		if v == nil {
			if stored == nil {
				rec, err := r.store.LockedRecord()
				if err != nil {
					return err
				}
				stored = rec
			}
			if _, ok := stored[name]; !ok {
				delete(m, name)
				continue
			}
		}
		locked[name] = v
	}
	if len(locked) == 0 {
		return nil
	}
	return r.store.StoreLocked(locked)
}

func (r *Responder) emitSignals(m map[string]any, onlyIfMissing bool) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("responder: encode signals: %w", err)
	}
	return r.emit(protocol.PatchSignals(string(payload), onlyIfMissing))
}

// Forget removes signals from the client. nil names means every signal
// the request submitted. With includeLocked the locked names are also
// removed from the session record.
func (r *Responder) Forget(names []string, includeLocked bool) error {
	if !r.reactive {
		return nil
	}
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if names == nil {
		all, err := r.store.All()
		if err != nil {
			return err
		}
		for name := range all {
			names = append(names, name)
		}
		if includeLocked {
			rec, err := r.store.LockedRecord()
			if err != nil {
				return err
			}
			for name := range rec {
				if _, ok := all[name]; !ok {
					names = append(names, name)
				}
			}
		}
		sort.Strings(names)
	}
	if len(names) == 0 {
		return nil
	}

	patch := make(map[string]any, len(names))
	for _, name := range names {
		if name == ErrorsSignal {
			patch[name] = []any{}
			continue
		}
		patch[name] = nil
		if includeLocked && signals.IsLocked(name) {
			if err := r.store.DeleteLocked(name); err != nil {
				return err
			}
		}
	}
	return r.emitSignals(patch, false)
}

// ValidationErrors pushes the field messages of a *signals.ValidationError
// as the errors signal. Other errors are returned unchanged.
func (r *Responder) ValidationErrors(err error) error {
	var ve *signals.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	return r.Signal(ErrorsSignal, ve.Fields)
}

// DataSignals stores the locked entries of values for the page being
// rendered and returns the JSON for a data-signals attribute, escaped for
// use inside either quote style.
func (r *Responder) DataSignals(values any) (string, error) {
	m, err := toMap(values)
	if err != nil {
		return "", err
	}

	r.opMu.Lock()
	err = r.storeLocked(m)
	r.opMu.Unlock()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("responder: encode signals: %w", err)
	}
	return html.EscapeString(string(payload)), nil
}

// toMap converts values to a signal map.
func toMap(values any) (map[string]any, error) {
	switch v := values.(type) {
	case nil:
		return map[string]any{}, nil
	case Mapper:
		return unwrapValues(v.ToMap()), nil
	case map[string]any:
		return unwrapValues(v), nil
	}

	raw, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("responder: encode signals: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return nil, fmt.Errorf("responder: signals must encode to a JSON object, got %T", values)
	}
	return m, nil
}

// unwrapValues copies m, replacing Mapper values by their maps.
func unwrapValues(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if mv, ok := v.(Mapper); ok {
			out[k] = unwrapValues(mv.ToMap())
			continue
		}
		out[k] = v
	}
	return out
}
