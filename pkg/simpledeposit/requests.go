package simpledeposit

import (
	"io"
	"time"
)

// Request/Response DTOs

// DepositPackageRequest contains parameters for depositing an upload into a
// collection. Container uploads are unpacked into one entry per regular file.
type DepositPackageRequest struct {
	ParentID  string
	FileName  string
	Content   io.Reader
	Container bool
	MimeType  string
	Identity  Identity
}

// UpdateObjectRequest contains parameters for replacing the content of an
// existing business object. The business object id is preserved; a new
// deposit id is minted and the prior deposit record retained for history.
type UpdateObjectRequest struct {
	BusinessObjectID string
	FileName         string
	Content          io.Reader
	Container        bool
	MimeType         string
	Identity         Identity
}

// DepositResult is the fire-and-track outcome of a submission: tracking
// handles, not durability. EntryErrors carries per-entry submission failures
// of a partially successful batch, in which case DepositIDs is shorter than
// the package entry count.
type DepositResult struct {
	Package     *Package
	DepositIDs  []string
	EntryErrors []error
}

// ReconcileResult summarises one reconciliation pass.
type ReconcileResult struct {
	Polled       int
	Deposited    int
	Failed       int
	StillPending int
	// Errors holds transient poll failures; the records they belong to were
	// left pending for a later pass.
	Errors []error
}

// RetryPolicy bounds a caller's synchronous wait on reconciliation. The pass
// itself is idempotent and cheap to re-run; patience is caller policy, never
// reconciler state.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultRetryPolicy is suitable for request handlers that want to wait a
// little for confirmation before answering.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 10, Interval: 500 * time.Millisecond}
