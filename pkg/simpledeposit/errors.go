package simpledeposit

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrPackageNotFound indicates a package was not found
	ErrPackageNotFound = errors.New("package not found")

	// ErrDepositNotFound indicates a deposit record was not found
	ErrDepositNotFound = errors.New("deposit record not found")

	// ErrObjectNotFound indicates a business object was not found
	ErrObjectNotFound = errors.New("business object not found")

	// ErrEmptyPackage indicates a container upload produced no entries
	ErrEmptyPackage = errors.New("container produced no entries")

	// ErrNotDeposited indicates retrieval was attempted before the deposit
	// reached a terminal deposited state
	ErrNotDeposited = errors.New("deposit has not reached deposited state")

	// ErrAwaitTimeout indicates a bounded wait exhausted its attempts before
	// the observed records reached a terminal state. The records remain
	// pending and will still be resolved by a later reconcile pass.
	ErrAwaitTimeout = errors.New("deposits still pending after bounded wait")

	// ErrArchiveUnavailable indicates a transient archive backend failure;
	// pending records are left untouched for a later pass
	ErrArchiveUnavailable = errors.New("archive backend unavailable")
)

// ExtractionError reports a malformed or unreadable container upload. The
// whole deposit is aborted and nothing is persisted.
type ExtractionError struct {
	FileName string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.FileName, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// AuthorizationError reports a caller lacking depositor or administrator
// rights on the target collection. No submission is attempted.
type AuthorizationError struct {
	UserID       string
	CollectionID string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %s lacks depositor rights on collection %s", e.UserID, e.CollectionID)
}

// SubmissionError reports the archive backend rejecting one entry. The entry
// is skipped; prior entries in the same batch remain tracked.
type SubmissionError struct {
	BusinessObjectID string
	FileName         string
	Err              error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("archive submission failed for object %s (%s): %v", e.BusinessObjectID, e.FileName, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// RelationshipError reports edge recording failing after a successful
// submission. The deposit records it accompanies are not rolled back: the
// system favors a visible deposit with possibly incomplete relationships
// over losing the deposit.
type RelationshipError struct {
	SubjectID string
	Relation  RelationType
	ObjectID  string
	Err       error
}

func (e *RelationshipError) Error() string {
	return fmt.Sprintf("recording edge %s -[%s]-> %s failed: %v", e.SubjectID, e.Relation, e.ObjectID, e.Err)
}

func (e *RelationshipError) Unwrap() error {
	return e.Err
}

// PackageError represents an error related to package persistence
type PackageError struct {
	PackageID uuid.UUID
	Op        string
	Err       error
}

func (e *PackageError) Error() string {
	return fmt.Sprintf("package operation %s failed for package %s: %v", e.Op, e.PackageID, e.Err)
}

func (e *PackageError) Unwrap() error {
	return e.Err
}

// ArchiveError represents an error from the archive backend
type ArchiveError struct {
	DepositID string
	Op        string
	Err       error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive operation %s failed for deposit %s: %v", e.Op, e.DepositID, e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}
