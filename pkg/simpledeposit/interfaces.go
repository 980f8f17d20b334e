package simpledeposit

import (
	"context"

	"github.com/google/uuid"
)

// Archive is the narrow capability interface consumed from the archive
// backend. Any conforming implementation is interchangeable: an in-memory
// backend for tests, an S3-backed one for production.
//
// Submit hands one business object (plus its files) to the archive and
// returns an opaque deposit id. The archive is eventually consistent: a
// returned id carries no durability guarantee, durability is only observable
// via PollStatus.
type Archive interface {
	// Submit stores the object and returns an opaque deposit id. On error no
	// partial object is stored.
	Submit(ctx context.Context, obj *BusinessObject, parentID string) (string, error)

	// PollStatus returns the current state of a deposit. Idempotent and
	// side-effect free.
	PollStatus(ctx context.Context, depositID string) (DepositStatus, error)

	// Retrieve returns the archived object. Only valid once PollStatus
	// reports deposited.
	Retrieve(ctx context.Context, depositID string) (*BusinessObject, error)

	// ListDeposits returns the deposit ids the archive knows for a business
	// object id, oldest first.
	ListDeposits(ctx context.Context, businessObjectID string) ([]string, error)
}

// Repository defines the interface for deposit-side persistence: packages,
// deposit records, relationship edges and cached canonical objects.
type Repository interface {
	// Package operations
	CreatePackage(ctx context.Context, pkg *Package) error
	GetPackage(ctx context.Context, id uuid.UUID) (*Package, error)

	// Deposit record operations. Records are append-only per business object
	// id; UpdateDepositStatus transitions a record and reports whether it
	// changed anything, so that concurrent reconcile passes stay idempotent.
	CreateDepositRecord(ctx context.Context, rec *DepositRecord) error
	GetDepositRecord(ctx context.Context, depositID string) (*DepositRecord, error)
	ListPendingDeposits(ctx context.Context) ([]*DepositRecord, error)
	// ListDepositsByObject returns records for a business object, newest
	// first. A nil status means "latest regardless of status".
	ListDepositsByObject(ctx context.Context, businessObjectID string, status *DepositStatus) ([]*DepositRecord, error)
	// UpdateDepositStatus moves a pending record to a terminal status.
	// Returns false without error when the record is already terminal.
	UpdateDepositStatus(ctx context.Context, depositID string, status DepositStatus) (bool, error)

	// Relationship operations. (subject, relation, object) is a natural key;
	// CreateRelationship is a no-op for an edge that already exists.
	CreateRelationship(ctx context.Context, edge *RelationshipEdge) error
	ListRelationships(ctx context.Context, subjectID string, relation *RelationType) ([]*RelationshipEdge, error)
	HasRelationship(ctx context.Context, subjectID string, relation RelationType, objectID string) (bool, error)

	// Canonical object cache, refreshed by the reconciler once the archive
	// confirms durability.
	SaveBusinessObject(ctx context.Context, obj *BusinessObject) error
	GetBusinessObject(ctx context.Context, id string) (*BusinessObject, error)
}

// Authorizer decides whether an identity may deposit into a collection. The
// surrounding web stack owns authentication; this is the single check the
// submitter refuses to proceed without.
type Authorizer interface {
	CanDeposit(ctx context.Context, identity Identity, collectionID string) (bool, error)
}

// IDMinter mints stable business object identifiers at submission time for
// entries that do not reuse an existing id.
type IDMinter interface {
	MintID(ctx context.Context, objectType ObjectType) (string, error)
}
