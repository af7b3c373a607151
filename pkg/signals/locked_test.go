package signals

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLocked_RoundTripAcrossRequests(t *testing.T) {
	f := newFixture(t)

	// Request 1: the server patches {count:3, userId_:42}.
	sess := f.open(t, "")
	first := f.newStore(datastarPost(`{}`), sess)
	if err := first.StoreLocked(map[string]any{"count": 3, "userId_": 42}); err != nil {
		t.Fatalf("StoreLocked() error: %v", err)
	}
	first.Release()
	f.save(t, sess)

	rec, err := f.newStore(pageGet(), sess).LockedRecord()
	if err != nil {
		t.Fatalf("LockedRecord() error: %v", err)
	}
	if len(rec) != 1 || !jsonEqual(rec["userId_"], 42) {
		t.Fatalf("record = %v, want only userId_=42", rec)
	}

	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"unchanged", `{"count":4,"userId_":42}`, nil},
		{"float form", `{"userId_":42.0}`, nil},
		{"deleted by client", `{"count":5}`, nil},
		{"tampered", `{"count":4,"userId_":43}`, ErrTamperedSignal},
		{"type change", `{"userId_":"42"}`, ErrTamperedSignal},
		{"unexpected", `{"role_":"admin"}`, ErrUnexpectedLockedSignal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := f.open(t, sess.ID())
			s := f.newStore(datastarPost(tt.body), next)
			defer s.Release()

			err := s.Verify()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Verify() = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				var te *TamperError
				if !errors.As(err, &te) {
					t.Fatalf("error %T is not a *TamperError", err)
				}
				if s.Has("count") {
					t.Fatal("values must not be readable after a tamper failure")
				}
			}
		})
	}
}

func TestLocked_TamperCodes(t *testing.T) {
	if got := (&TamperError{Err: ErrTamperedSignal}).Code(); got != "DS001" {
		t.Fatalf("tampered code = %s", got)
	}
	if got := (&TamperError{Err: ErrUnexpectedLockedSignal}).Code(); got != "DS002" {
		t.Fatalf("unexpected code = %s", got)
	}
}

func TestLocked_NoRecordSkipsValidation(t *testing.T) {
	f := newFixture(t)
	sess := f.open(t, "")

	s := f.newStore(datastarPost(`{"userId_":99}`), sess)
	if err := s.Verify(); err != nil {
		t.Fatalf("Verify() without record = %v, want nil", err)
	}
}

func TestLocked_CorruptRecordIsTampering(t *testing.T) {
	f := newFixture(t)
	sess := f.open(t, "")
	sess.Put(RecordKey, "garbage")

	s := f.newStore(datastarPost(`{"userId_":1}`), sess)
	if err := s.Verify(); !errors.Is(err, ErrTamperedSignal) {
		t.Fatalf("Verify() = %v, want ErrTamperedSignal", err)
	}
}

func TestLocked_RecordIsEncrypted(t *testing.T) {
	f := newFixture(t)
	sess := f.open(t, "")

	if err := f.newStore(pageGet(), sess).StoreLocked(map[string]any{"secret_": "s3cr3t"}); err != nil {
		t.Fatalf("StoreLocked() error: %v", err)
	}
	raw, _ := sess.Get(RecordKey)
	b, _ := json.Marshal(raw)
	if string(b) == "" || jsonContains(b, "s3cr3t") {
		t.Fatalf("record stored in the clear: %s", b)
	}
}

func jsonContains(b []byte, s string) bool {
	for i := 0; i+len(s) <= len(b); i++ {
		if string(b[i:i+len(s)]) == s {
			return true
		}
	}
	return false
}

func TestLocked_FreshReplacesThenMerges(t *testing.T) {
	f := newFixture(t)
	sess := f.open(t, "")

	if err := f.newStore(pageGet(), sess).StoreLocked(map[string]any{"old_": 1}); err != nil {
		t.Fatalf("StoreLocked() error: %v", err)
	}

	// A page reload starts a fresh interaction: the first store replaces.
	s := f.newStore(pageGet(), sess)
	if err := s.StoreLocked(map[string]any{"a_": 1}); err != nil {
		t.Fatalf("StoreLocked(a_) error: %v", err)
	}
	if err := s.StoreLocked(map[string]any{"b_": 2, "plain": 3}); err != nil {
		t.Fatalf("StoreLocked(b_) error: %v", err)
	}
	rec, err := s.LockedRecord()
	if err != nil {
		t.Fatalf("LockedRecord() error: %v", err)
	}
	if len(rec) != 2 || rec["old_"] != nil || rec["plain"] != nil {
		t.Fatalf("record = %v, want a_ and b_", rec)
	}

	// A continuing interaction merges.
	c := f.newStore(datastarPost(`{}`), sess)
	if err := c.StoreLocked(map[string]any{"c_": 3, "a_": nil}); err != nil {
		t.Fatalf("StoreLocked(c_) error: %v", err)
	}
	rec, _ = c.LockedRecord()
	if len(rec) != 2 || rec["b_"] == nil || rec["c_"] == nil {
		t.Fatalf("record = %v, want b_ and c_", rec)
	}
}

func TestLocked_UpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	sess := f.open(t, "")
	s := f.newStore(pageGet(), sess)

	if err := s.UpdateLocked("plain", 1); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("UpdateLocked(plain) = %v, want ErrNotLocked", err)
	}
	if err := s.UpdateLocked("n_", 1); err != nil {
		t.Fatalf("UpdateLocked() error: %v", err)
	}
	if err := s.UpdateLocked("m_", 2); err != nil {
		t.Fatalf("UpdateLocked() error: %v", err)
	}
	if err := s.DeleteLocked("n_"); err != nil {
		t.Fatalf("DeleteLocked() error: %v", err)
	}
	rec, _ := s.LockedRecord()
	if len(rec) != 1 || rec["m_"] == nil {
		t.Fatalf("record = %v, want m_ only", rec)
	}

	if err := s.UpdateLocked("m_", nil); err != nil {
		t.Fatalf("UpdateLocked(nil) error: %v", err)
	}
	if sess.Has(RecordKey) {
		t.Fatal("empty record should be removed from the session")
	}
}

func TestLocked_RequiresSessionAndEncrypter(t *testing.T) {
	f := newFixture(t)

	if err := NewStore(pageGet()).StoreLocked(map[string]any{"a_": 1}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("no session: %v", err)
	}
	sess := f.open(t, "")
	if err := NewStore(pageGet(), WithSession(sess)).StoreLocked(map[string]any{"a_": 1}); !errors.Is(err, ErrNoEncrypter) {
		t.Fatalf("no encrypter: %v", err)
	}
}

func TestLocked_SurvivesRegenerate(t *testing.T) {
	f := newFixture(t)
	sess := f.open(t, "")
	if err := f.newStore(pageGet(), sess).StoreLocked(map[string]any{"id_": 7}); err != nil {
		t.Fatalf("StoreLocked() error: %v", err)
	}
	if err := sess.Regenerate(context.Background(), true); err != nil {
		t.Fatalf("Regenerate() error: %v", err)
	}
	if err := f.newStore(datastarPost(`{"id_":7}`), sess).Verify(); err != nil {
		t.Fatalf("Verify() after regenerate = %v", err)
	}
}

func TestLocks_SerialisesSession(t *testing.T) {
	locks := NewLocks()
	f := newFixture(t)
	sess := f.open(t, "")

	first := NewStore(datastarPost(`{}`), WithSession(sess), WithEncrypter(f.enc), WithLocks(locks))
	if err := first.StoreLocked(map[string]any{"a_": 1}); err != nil {
		t.Fatalf("StoreLocked() error: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		second := NewStore(datastarPost(`{}`), WithSession(sess), WithEncrypter(f.enc), WithLocks(locks))
		defer second.Release()
		_, _ = second.LockedRecord()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second request acquired the session lock while held")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second request never acquired the lock")
	}
}

func TestLocks_UnpinLocksPerOperation(t *testing.T) {
	locks := NewLocks()
	f := newFixture(t)
	sess := f.open(t, "")

	first := NewStore(datastarPost(`{}`), WithSession(sess), WithEncrypter(f.enc), WithLocks(locks))
	if err := first.StoreLocked(map[string]any{"a_": 1}); err != nil {
		t.Fatalf("StoreLocked() error: %v", err)
	}
	if got := locks.Len(); got != 1 {
		t.Fatalf("Len() before Unpin = %d, want 1", got)
	}

	first.Unpin()
	if got := locks.Len(); got != 0 {
		t.Fatalf("Len() after Unpin = %d, want 0", got)
	}
	if err := first.UpdateLocked("a_", 2); err != nil {
		t.Fatalf("UpdateLocked() error: %v", err)
	}
	if got := locks.Len(); got != 0 {
		t.Fatalf("Len() after scoped UpdateLocked = %d, want 0", got)
	}

	second := NewStore(datastarPost(`{}`), WithSession(sess), WithEncrypter(f.enc), WithLocks(locks))
	defer second.Release()
	rec, err := second.LockedRecord()
	if err != nil {
		t.Fatalf("LockedRecord() error: %v", err)
	}
	if rec["a_"] != float64(2) {
		t.Fatalf("LockedRecord()[a_] = %v, want 2", rec["a_"])
	}
}

func TestLocks_ReleaseIsIdempotentAndCleansUp(t *testing.T) {
	locks := NewLocks()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Lock("s1")
			release()
			release()
		}()
	}
	wg.Wait()
	if n := locks.Len(); n != 0 {
		t.Fatalf("Len() = %d, want 0", n)
	}
}

func TestJSONEqual(t *testing.T) {
	if !jsonEqual(map[string]any{"a": 1, "b": []any{1, "x"}}, map[string]any{"b": []any{json.Number("1"), "x"}, "a": 1.0}) {
		t.Fatal("equivalent values compared unequal")
	}
	if jsonEqual(1, "1") {
		t.Fatal("number and string compared equal")
	}
}
