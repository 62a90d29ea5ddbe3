// Package repositories implements SQLite persistence for the discovery ledger.
//
// [RunRepository] records every finished session with its filter, outcome and collected tracks.
// Runs support soft deletes via deleted_at timestamps and are excluded from queries once deleted.
//
// Sequence numbers give runs a stable, human-readable ordering (run #3) independent of UUIDs.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
