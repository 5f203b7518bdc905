// Package ledger implements the generic append-only hash chain shared by the
// invoice ledger and the audit-event ledger.
//
// The chain mechanism exists exactly once: Service owns the
// read-compute-append sequence and full-chain verification, parameterized
// over the payload type. Each ledger instance supplies its own Store (a
// Postgres table in production, MemoryStore in tests) and its own Payload
// with a byte-stable canonical serialization.
//
// Chains are global per ledger type. Entries from different owners interleave
// in one chain ordered by creation; owner filtering happens only on reads.
package ledger
