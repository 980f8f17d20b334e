package simpledeposit

import (
	"context"
	"time"
)

// relationshipRecorder establishes the aggregation and depositor-rights
// edges implied by a submission. Edges go in as obverse/inverse pairs and
// are keyed naturally, so re-recording the same logical submission is a
// no-op rather than a duplicate.
type relationshipRecorder struct {
	repository Repository
}

// recordPair writes (subject, relation, object) and its inverse
// (object, relation.Inverse(), subject). The pair invariant is what matters:
// an edge is never created singly.
func (r *relationshipRecorder) recordPair(ctx context.Context, subjectID string, relation RelationType, objectID string) error {
	now := time.Now().UTC()

	obverse := &RelationshipEdge{SubjectID: subjectID, Relation: relation, ObjectID: objectID, CreatedAt: now}
	if err := r.repository.CreateRelationship(ctx, obverse); err != nil {
		return &RelationshipError{SubjectID: subjectID, Relation: relation, ObjectID: objectID, Err: err}
	}

	inverse := &RelationshipEdge{SubjectID: objectID, Relation: relation.Inverse(), ObjectID: subjectID, CreatedAt: now}
	if err := r.repository.CreateRelationship(ctx, inverse); err != nil {
		return &RelationshipError{SubjectID: objectID, Relation: relation.Inverse(), ObjectID: subjectID, Err: err}
	}

	return nil
}

// recordAggregation links a collection to a newly deposited member.
func (r *relationshipRecorder) recordAggregation(ctx context.Context, collectionID, memberID string) error {
	return r.recordPair(ctx, collectionID, RelationAggregates, memberID)
}

// recordDepositorRights marks the identity as a depositor for the
// collection. Recorded on first deposit; idempotent afterwards.
func (r *relationshipRecorder) recordDepositorRights(ctx context.Context, depositorID, collectionID string) error {
	return r.recordPair(ctx, depositorID, RelationIsDepositorFor, collectionID)
}

// RepositoryAuthorizer grants deposit rights from recorded relationship
// edges: administrators may deposit anywhere, everyone else needs an
// accepts-deposit grant on the target collection.
type RepositoryAuthorizer struct {
	repository Repository
}

// NewRepositoryAuthorizer creates an Authorizer backed by the relationship store
func NewRepositoryAuthorizer(repo Repository) *RepositoryAuthorizer {
	return &RepositoryAuthorizer{repository: repo}
}

// CanDeposit reports whether the identity holds depositor or administrator
// rights on the collection.
func (a *RepositoryAuthorizer) CanDeposit(ctx context.Context, identity Identity, collectionID string) (bool, error) {
	if identity.Administrator {
		return true, nil
	}
	return a.repository.HasRelationship(ctx, collectionID, RelationAcceptsDeposit, identity.UserID)
}
