package simpledeposit

import (
	"time"

	"github.com/google/uuid"
)

// DepositStatus is the domain type for deposit lifecycle states.
type DepositStatus string

// Deposit status constants (typed).
const (
	DepositStatusPending   DepositStatus = "pending"
	DepositStatusDeposited DepositStatus = "deposited"
	DepositStatusFailed    DepositStatus = "failed"
)

// IsTerminal reports whether no further status transition may occur.
func (s DepositStatus) IsTerminal() bool {
	return s == DepositStatusDeposited || s == DepositStatusFailed
}

// PackageType distinguishes a single-file upload from a container upload.
type PackageType string

// Package type constants (typed).
const (
	PackageTypeSimpleFile PackageType = "simple_file"
	PackageTypeContainer  PackageType = "container"
)

// ObjectType is the kind of business object tracked by a deposit record.
type ObjectType string

// Object type constants (typed).
const (
	ObjectTypeCollection   ObjectType = "collection"
	ObjectTypeDataItem     ObjectType = "data_item"
	ObjectTypeMetadataFile ObjectType = "metadata_file"
	ObjectTypePackage      ObjectType = "package"
)

// RelationType names a directed edge between two business objects.
type RelationType string

// Relation type constants (typed).
const (
	RelationAggregates     RelationType = "aggregates"
	RelationIsAggregatedBy RelationType = "is_aggregated_by"
	RelationAcceptsDeposit RelationType = "accepts_deposit"
	RelationIsDepositorFor RelationType = "is_depositor_for"
)

// Inverse returns the paired relation recorded alongside this one. Edges are
// always written as an obverse/inverse pair, never singly.
func (r RelationType) Inverse() RelationType {
	switch r {
	case RelationAggregates:
		return RelationIsAggregatedBy
	case RelationIsAggregatedBy:
		return RelationAggregates
	case RelationAcceptsDeposit:
		return RelationIsDepositorFor
	case RelationIsDepositorFor:
		return RelationAcceptsDeposit
	}
	return ""
}

// Package is the record of one deposit transaction: a named bundle of
// business-object entries extracted from a single upload. Immutable after
// creation and persisted independently of archive confirmation.
type Package struct {
	ID        uuid.UUID      `json:"id"`
	FileName  string         `json:"file_name"`
	Type      PackageType    `json:"type"`
	Entries   []PackageEntry `json:"entries"`
	CreatedAt time.Time      `json:"created_at"`
}

// PackageEntry maps one business object id to the file it originated from.
// RelativePath preserves the directory the entry occupied inside a container
// upload; directory structure never produces nested packages.
type PackageEntry struct {
	BusinessObjectID string `json:"business_object_id"`
	FileName         string `json:"file_name"`
	RelativePath     string `json:"relative_path,omitempty"`
	Size             int64  `json:"size"`
}

// DepositRecord tracks one object handed to the archive backend. Records are
// created pending at submission time, transitioned only by the reconciler,
// and never deleted: history per business object id is append-only, with the
// newest record reflecting current state.
type DepositRecord struct {
	DepositID        string        `json:"deposit_id"`
	BusinessObjectID string        `json:"business_object_id"`
	ParentDepositID  string        `json:"parent_deposit_id,omitempty"`
	PackageID        uuid.UUID     `json:"package_id"`
	ObjectType       ObjectType    `json:"object_type"`
	Status           DepositStatus `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// RelationshipEdge is one directed edge between two business objects.
// (SubjectID, Relation, ObjectID) is a natural key.
type RelationshipEdge struct {
	SubjectID string       `json:"subject_id"`
	Relation  RelationType `json:"relation"`
	ObjectID  string       `json:"object_id"`
	CreatedAt time.Time    `json:"created_at"`
}

// BusinessObject is the domain payload submitted to the archive. Its ID is
// stable and caller-meaningful: updates keep the ID and mint a new deposit id
// underneath it.
type BusinessObject struct {
	ID        string     `json:"id"`
	Type      ObjectType `json:"type"`
	Name      string     `json:"name,omitempty"`
	ParentID  string     `json:"parent_id,omitempty"`
	Files     []File     `json:"files,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// File is one payload file carried by a business object.
type File struct {
	Name         string `json:"name"`
	RelativePath string `json:"relative_path,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	Content      []byte `json:"content,omitempty"`
}

// Identity is the depositing principal. Authorization itself lives behind
// the Authorizer collaborator; administrators bypass depositor grants.
type Identity struct {
	UserID        string `json:"user_id"`
	Administrator bool   `json:"administrator"`
}
