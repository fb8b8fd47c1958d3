// Package store provides persistent storage for ep-private using SQLite.
//
// # Architecture
//
// The store package is interface-driven. Store combines several smaller
// interfaces so consumers can depend on only what they use:
//
//   - SessionStore: private sessions keyed by an opaque session hash
//   - LinkStore: single-use magic links and private users with their role
//   - AuditStore: the private audit log
//   - AccessRequestStore: member requests for profiles and tools
//   - JobStore: job listings managed through the admin token API
//
// SQLiteStore implements every interface in a single struct.
//
// # Session validity
//
// A session is valid when revoked_at IS NULL and expires_at is later than the
// caller's notion of now. GetActivePrivateSession applies both conditions in a
// single query so a session is never returned in an invalid state. Timestamps
// are stored as fixed-width UTC text, which makes the textual comparison
// equivalent to a time comparison.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrPrivateSessionNotFound: no valid session for a hash
//   - ErrMagicLinkUsed, ErrMagicLinkExpired: a link cannot be consumed
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests. Its exported error fields inject
// datastore failures:
//
//	s := store.NewMockStore()
//	s.GetSessionErr = store.ErrMockFailure
//
// Use NewSQLiteStore with a path under t.TempDir() for integration tests.
package store
