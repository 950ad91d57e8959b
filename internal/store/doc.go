// Package store is a versioned record store with soft delete, on SQLite or
// PostgreSQL.
//
// Every target table lives in one records table. A record is one version
// of an entity:
//
//   - An entity is identified by its target plus the values of the target's
//     unique keys (ir.EntityKey).
//   - At most one version of an entity is active (is_active = 1). A partial
//     UNIQUE index on (table_name, entity_key) WHERE is_active = 1 enforces it.
//   - An update deactivates the current version (is_active = 0, valid_to =
//     now) and inserts version+1 under a NEW identifier.
//   - A delete deactivates the current version and inserts nothing.
//   - An insert whose entity already has an active version is reported as a
//     duplicate and writes nothing.
//
// The user fields of a version are stored as RFC 8785 canonical JSON in the
// data column. System columns (id, version, is_active, created_by, ...) are
// real columns and are never taken from submitted rows.
//
// # Database Configuration
//
// SQLite (the default, any DSN that is not a postgres:// URL):
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Single connection: SQLite allows one writer
//
// PostgreSQL (postgres:// or postgresql:// DSN) goes through the pgx
// database/sql driver.
//
// A Bulk call runs in one transaction. Row-level problems (missing keys,
// unknown identifiers, unique-key clashes) become per-row errors in the
// response; database failures abort the whole batch.
package store
