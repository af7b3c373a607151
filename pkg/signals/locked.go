package signals

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/vango-dev/datastar/internal/metrics"
)

// recordAD binds sealed records to their purpose.
var recordAD = []byte("datastar.locked-signals")

type record struct {
	Signals   map[string]any `json:"signals"`
	Timestamp int64          `json:"timestamp"`
	SessionID string         `json:"session_id"`
}

// verify checks every submitted locked signal against the stored record.
// Without a record there is nothing to compare and the payload is accepted.
func (s *Store) verify(values map[string]any) error {
	names := lockedNames(values)
	if len(names) == 0 {
		return nil
	}
	if s.sess == nil || !s.sess.Has(RecordKey) {
		return nil
	}

	defer s.acquire()()
	stored, err := s.loadRecord()
	if err != nil {
		return err
	}
	for _, name := range names {
		want, ok := stored[name]
		if !ok {
			metrics.RecordTamper("unexpected")
			s.logger.Warn("unexpected locked signal", "signal", name, "session_id", s.sess.ID())
			return &TamperError{Name: name, Reason: "not set by the server", Err: ErrUnexpectedLockedSignal}
		}
		if !jsonEqual(want, values[name]) {
			metrics.RecordTamper("tampered")
			s.logger.Warn("locked signal tampered", "signal", name, "session_id", s.sess.ID())
			return &TamperError{Name: name, Reason: "value differs from the stored value", Err: ErrTamperedSignal}
		}
	}
	return nil
}

// StoreLocked records the locked entries of values. The first call in a
// fresh interaction replaces the record; later calls, and every call in a
// continuing interaction, merge into it. A nil value removes the entry.
// Non-locked names are ignored.
func (s *Store) StoreLocked(values map[string]any) error {
	locked := make(map[string]any)
	for name, v := range values {
		if IsLocked(name) {
			locked[name] = v
		}
	}
	if len(locked) == 0 {
		return nil
	}
	if err := s.ready(); err != nil {
		return err
	}

	defer s.acquire()()
	var rec map[string]any
	if s.interaction == InteractionFresh && !s.replaced {
		rec = make(map[string]any, len(locked))
	} else {
		var err error
		if rec, err = s.loadRecord(); err != nil {
			return err
		}
	}
	s.replaced = true

	for name, v := range locked {
		if v == nil {
			delete(rec, name)
		} else {
			rec[name] = v
		}
	}
	return s.saveRecord(rec)
}

// UpdateLocked upserts a single locked value. A nil value deletes it.
func (s *Store) UpdateLocked(name string, value any) error {
	if !IsLocked(name) {
		return fmt.Errorf("%w: %q", ErrNotLocked, name)
	}
	if value == nil {
		return s.DeleteLocked(name)
	}
	if err := s.ready(); err != nil {
		return err
	}
	defer s.acquire()()
	rec, err := s.loadRecord()
	if err != nil {
		return err
	}
	rec[name] = value
	return s.saveRecord(rec)
}

// DeleteLocked removes name from the record. Non-locked names are a no-op.
func (s *Store) DeleteLocked(name string) error {
	if !IsLocked(name) || s.sess == nil || !s.sess.Has(RecordKey) {
		return nil
	}
	if err := s.ready(); err != nil {
		return err
	}
	defer s.acquire()()
	rec, err := s.loadRecord()
	if err != nil {
		return err
	}
	if _, ok := rec[name]; !ok {
		return nil
	}
	delete(rec, name)
	return s.saveRecord(rec)
}

// LockedRecord returns a copy of the stored locked values.
func (s *Store) LockedRecord() (map[string]any, error) {
	if s.sess == nil || !s.sess.Has(RecordKey) {
		return map[string]any{}, nil
	}
	if s.enc == nil {
		return nil, ErrNoEncrypter
	}
	defer s.acquire()()
	return s.loadRecord()
}

func (s *Store) ready() error {
	if s.sess == nil {
		return ErrNoSession
	}
	if s.enc == nil {
		return ErrNoEncrypter
	}
	return nil
}

func (s *Store) loadRecord() (map[string]any, error) {
	raw, ok := s.sess.Get(RecordKey)
	if !ok {
		return map[string]any{}, nil
	}
	if s.enc == nil {
		return nil, ErrNoEncrypter
	}
	token, ok := raw.(string)
	if !ok {
		return nil, &TamperError{Reason: "stored record is not a token", Err: ErrTamperedSignal}
	}

	var rec record
	if err := s.enc.OpenJSON(token, recordAD, &rec); err != nil {
		metrics.RecordTamper("tampered")
		s.logger.Warn("locked record failed authentication", "session_id", s.sess.ID(), "error", err)
		return nil, &TamperError{Reason: "stored record failed authentication", Err: ErrTamperedSignal}
	}
	if rec.SessionID != s.sess.ID() {
		// Regenerate keeps attributes under a new ID; the record is rebound
		// on the next save.
		s.logger.Debug("locked record from previous session id", "stored", rec.SessionID, "session_id", s.sess.ID())
	}
	if rec.Signals == nil {
		rec.Signals = map[string]any{}
	}
	return rec.Signals, nil
}

func (s *Store) saveRecord(signals map[string]any) error {
	if len(signals) == 0 {
		s.sess.Forget(RecordKey)
		return nil
	}
	token, err := s.enc.SealJSON(record{
		Signals:   signals,
		Timestamp: time.Now().Unix(),
		SessionID: s.sess.ID(),
	}, recordAD)
	if err != nil {
		return fmt.Errorf("signals: seal record: %w", err)
	}
	s.sess.Put(RecordKey, token)
	return nil
}

func lockedNames(values map[string]any) []string {
	var names []string
	for name := range values {
		if IsLocked(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// jsonEqual compares two values by their JSON form, so 42, 42.0 and
// json.Number("42") are equal.
func jsonEqual(a, b any) bool {
	ca, errA := canonical(a)
	cb, errB := canonical(b)
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(ca, cb)
}

func canonical(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
