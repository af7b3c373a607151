// Package session provides HTTP sessions with pluggable persistence and
// one-request flash data.
//
// # Session Storage
//
// The SessionStore interface defines the contract for session persistence:
//
//	store := session.NewMemoryStore()
//	// or
//	store := session.NewRedisStore(redisClient)
//	// or
//	store := session.NewPostgresStore(pool)
//	// or
//	store := session.NewBadgerStore(db)
//
// # Request Lifecycle
//
// Manager.Middleware loads the session named by the session cookie before the
// handler runs and saves it after the handler returns. Handlers reach the
// session through FromContext:
//
//	sess := session.FromContext(r.Context())
//	sess.Put("cart_id", 42)
//
// # Flash Data
//
// Flashed values live for exactly one following request. Every Save ages
// flash data: keys flashed in this request become "old" and are readable by
// the next request, keys that were already old are removed.
//
//	sess.Flash("status", "Profile saved")
//	// next request:
//	sess.String("status") // "Profile saved"
//
// Code that must persist the session early (before the end-of-request save)
// calls Keep on the keys it flashed so that the second Save does not expire
// them before the next request reads them.
package session
