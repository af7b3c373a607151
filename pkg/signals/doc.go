// Package signals reads the client's reactive state from a Datastar request
// and protects "locked" signals against client-side tampering.
//
// # Signal Kinds
//
// The kind of a signal is derived from its name alone:
//
//	userId_   locked   (trailing underscore)
//	_open     local    (leading underscore; never sent to the server)
//	count     regular
//
// A name with both a leading and a trailing underscore is locked.
//
// # Locked Signals
//
// When the server patches a locked signal, its value is also written to an
// encrypted record in the session. On the next request every locked signal
// the client submits must match that record:
//
//   - same value: accepted
//   - different value: TamperError wrapping ErrTamperedSignal
//   - name unknown to an existing record: TamperError wrapping
//     ErrUnexpectedLockedSignal
//   - name missing from the request: accepted (the client deleted it)
//
// A record that cannot be decrypted is treated as tampering.
//
// # Known Limitation
//
// Locks serialises requests of one session within a single process. Two
// instances behind a load balancer can still interleave the
// read-validate-store sequence and lose a merge. The protocol assumes one
// active reactive view per session.
package signals
