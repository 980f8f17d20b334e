package simpledeposit

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the main interface for the simple-deposit library
type Service interface {
	// Deposit operations
	DepositPackage(ctx context.Context, req DepositPackageRequest) (*DepositResult, error)
	UpdateObject(ctx context.Context, req UpdateObjectRequest) (*DepositResult, error)

	// Deposit tracking
	ListDepositInfo(ctx context.Context, businessObjectID string, status *DepositStatus) ([]*DepositRecord, error)
	GetCurrentDeposit(ctx context.Context, businessObjectID string) (*DepositRecord, error)
	GetPackage(ctx context.Context, id uuid.UUID) (*Package, error)

	// Reconciliation. PollArchive runs one idempotent pass; AwaitTerminal
	// repeats passes under a caller-supplied retry policy.
	PollArchive(ctx context.Context) (*ReconcileResult, error)
	AwaitTerminal(ctx context.Context, depositIDs []string, policy RetryPolicy) error

	// Retrieval, valid once the deposit is terminal deposited
	RetrieveObject(ctx context.Context, depositID string) (*BusinessObject, error)
	GetCurrentObject(ctx context.Context, businessObjectID string) (*BusinessObject, error)

	// Relationship queries
	ListRelationships(ctx context.Context, subjectID string, relation *RelationType) ([]*RelationshipEdge, error)

	// Event integration
	AddListener(listener EventListener)
	Dispatcher() *Dispatcher
}
