// Package database stores fingerprint records and the devices they identify.
//
// A device is a distinct fingerprint. Saving a record either creates the
// device or counts another visit of it, and reports the visit number so that
// callers can tell a returning device from a new one.
//
// Two backends share one implementation:
//   - SQLite via modernc.org/sqlite, a single CGO-free file in the data
//     directory with WAL enabled by default
//   - PostgreSQL via github.com/lib/pq, for stores shared between hosts
//
// Records are stored as JSON next to the columns needed for lookups, so a
// reloaded record has the same digests as the one that was saved.
package database
