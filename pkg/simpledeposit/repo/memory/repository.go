package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-deposit/pkg/simpledeposit"
)

type edgeKey struct {
	subjectID string
	relation  simpledeposit.RelationType
	objectID  string
}

// Repository implements simpledeposit.Repository using in-memory storage
type Repository struct {
	mu               sync.RWMutex
	packages         map[uuid.UUID]*simpledeposit.Package
	deposits         map[string]*simpledeposit.DepositRecord
	depositsByObject map[string][]string // business_object_id -> []deposit_id, oldest first
	depositOrder     []string            // insertion order across all records
	edges            map[edgeKey]*simpledeposit.RelationshipEdge
	objects          map[string]*simpledeposit.BusinessObject
}

// New creates a new in-memory repository
func New() simpledeposit.Repository {
	return &Repository{
		packages:         make(map[uuid.UUID]*simpledeposit.Package),
		deposits:         make(map[string]*simpledeposit.DepositRecord),
		depositsByObject: make(map[string][]string),
		edges:            make(map[edgeKey]*simpledeposit.RelationshipEdge),
		objects:          make(map[string]*simpledeposit.BusinessObject),
	}
}

// Package operations

func (r *Repository) CreatePackage(ctx context.Context, pkg *simpledeposit.Package) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Create a copy to avoid external modifications
	pkgCopy := *pkg
	pkgCopy.Entries = append([]simpledeposit.PackageEntry(nil), pkg.Entries...)
	r.packages[pkg.ID] = &pkgCopy

	return nil
}

func (r *Repository) GetPackage(ctx context.Context, id uuid.UUID) (*simpledeposit.Package, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pkg, exists := r.packages[id]
	if !exists {
		return nil, simpledeposit.ErrPackageNotFound
	}

	pkgCopy := *pkg
	pkgCopy.Entries = append([]simpledeposit.PackageEntry(nil), pkg.Entries...)
	return &pkgCopy, nil
}

// Deposit record operations

func (r *Repository) CreateDepositRecord(ctx context.Context, rec *simpledeposit.DepositRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	recCopy := *rec
	r.deposits[rec.DepositID] = &recCopy
	r.depositsByObject[rec.BusinessObjectID] = append(r.depositsByObject[rec.BusinessObjectID], rec.DepositID)
	r.depositOrder = append(r.depositOrder, rec.DepositID)

	return nil
}

func (r *Repository) GetDepositRecord(ctx context.Context, depositID string) (*simpledeposit.DepositRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.deposits[depositID]
	if !exists {
		return nil, simpledeposit.ErrDepositNotFound
	}
	recCopy := *rec
	return &recCopy, nil
}

func (r *Repository) ListPendingDeposits(ctx context.Context) ([]*simpledeposit.DepositRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Submission order, though consumers must not rely on completion order.
	var result []*simpledeposit.DepositRecord
	for _, id := range r.depositOrder {
		rec := r.deposits[id]
		if rec.Status == simpledeposit.DepositStatusPending {
			recCopy := *rec
			result = append(result, &recCopy)
		}
	}
	return result, nil
}

func (r *Repository) ListDepositsByObject(ctx context.Context, businessObjectID string, status *simpledeposit.DepositStatus) ([]*simpledeposit.DepositRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Newest first: the head of the list reflects current state. Insertion
	// order decides ties, since records created in one batch share a
	// timestamp.
	ids := r.depositsByObject[businessObjectID]
	var result []*simpledeposit.DepositRecord
	for i := len(ids) - 1; i >= 0; i-- {
		rec := r.deposits[ids[i]]
		if status != nil && rec.Status != *status {
			continue
		}
		recCopy := *rec
		result = append(result, &recCopy)
	}
	return result, nil
}

func (r *Repository) UpdateDepositStatus(ctx context.Context, depositID string, status simpledeposit.DepositStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.deposits[depositID]
	if !exists {
		return false, simpledeposit.ErrDepositNotFound
	}
	if rec.Status.IsTerminal() {
		// Already resolved by an earlier or concurrent pass.
		return false, nil
	}

	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	return true, nil
}

// Relationship operations

func (r *Repository) CreateRelationship(ctx context.Context, edge *simpledeposit.RelationshipEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := edgeKey{subjectID: edge.SubjectID, relation: edge.Relation, objectID: edge.ObjectID}
	if _, exists := r.edges[key]; exists {
		return nil
	}

	edgeCopy := *edge
	r.edges[key] = &edgeCopy
	return nil
}

func (r *Repository) ListRelationships(ctx context.Context, subjectID string, relation *simpledeposit.RelationType) ([]*simpledeposit.RelationshipEdge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simpledeposit.RelationshipEdge
	for key, edge := range r.edges {
		if key.subjectID != subjectID {
			continue
		}
		if relation != nil && key.relation != *relation {
			continue
		}
		edgeCopy := *edge
		result = append(result, &edgeCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Relation != result[j].Relation {
			return result[i].Relation < result[j].Relation
		}
		return result[i].ObjectID < result[j].ObjectID
	})
	return result, nil
}

func (r *Repository) HasRelationship(ctx context.Context, subjectID string, relation simpledeposit.RelationType, objectID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.edges[edgeKey{subjectID: subjectID, relation: relation, objectID: objectID}]
	return exists, nil
}

// Canonical object cache

func (r *Repository) SaveBusinessObject(ctx context.Context, obj *simpledeposit.BusinessObject) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	objCopy := *obj
	objCopy.Files = append([]simpledeposit.File(nil), obj.Files...)
	r.objects[obj.ID] = &objCopy
	return nil
}

func (r *Repository) GetBusinessObject(ctx context.Context, id string) (*simpledeposit.BusinessObject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obj, exists := r.objects[id]
	if !exists {
		return nil, simpledeposit.ErrObjectNotFound
	}
	objCopy := *obj
	objCopy.Files = append([]simpledeposit.File(nil), obj.Files...)
	return &objCopy, nil
}
