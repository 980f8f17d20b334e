// Package simpledeposit provides a reusable library for depositing files
// into an archival backend and tracking, asynchronously, whether each
// deposit has actually become durable.
//
// It exposes a single Service interface that orchestrates package assembly
// (single files or zip containers), submission to a pluggable Archive
// backend, relationship recording between business objects, and an
// idempotent reconciliation pass that drains pending deposit records once
// the archive confirms or rejects them. Implementations of repositories
// (memory, Postgres) and archive backends (memory, S3) are provided under
// subpackages.
//
// Submission is fire-and-track: a successful deposit call returns archive
// deposit ids before any of them are durable. Durability is only observable
// through the reconciler, which transitions pending records to deposited or
// failed and fires events on the dispatcher's worker pool.
package simpledeposit
