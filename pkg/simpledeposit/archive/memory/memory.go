package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-deposit/pkg/simpledeposit"
)

type deposit struct {
	object *simpledeposit.BusinessObject
	status simpledeposit.DepositStatus
	// polls remaining before a pending deposit settles
	settleAfter int
}

// Backend is an in-memory implementation of the simpledeposit.Archive
// interface. It simulates an eventually consistent archive: a submitted
// deposit reports pending for a configurable number of status polls before
// settling, and individual objects can be marked to fail or to error
// transiently.
type Backend struct {
	mu          sync.Mutex
	deposits    map[string]*deposit
	byObject    map[string][]string
	settleAfter int
	rejectIDs   map[string]bool
	failIDs     map[string]bool
	unavailable bool
}

// New creates an in-memory archive that settles deposits immediately on the
// first status poll.
func New() *Backend {
	return NewWithLatency(0)
}

// NewWithLatency creates an in-memory archive whose deposits report pending
// for settleAfter status polls before becoming durable.
func NewWithLatency(settleAfter int) *Backend {
	return &Backend{
		deposits:    make(map[string]*deposit),
		byObject:    make(map[string][]string),
		settleAfter: settleAfter,
		rejectIDs:   make(map[string]bool),
		failIDs:     make(map[string]bool),
	}
}

// RejectObject makes Submit fail outright for the given business object id.
func (b *Backend) RejectObject(businessObjectID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectIDs[businessObjectID] = true
}

// FailObject makes deposits of the given business object id settle to
// failed instead of deposited.
func (b *Backend) FailObject(businessObjectID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failIDs[businessObjectID] = true
}

// SetUnavailable toggles transient unavailability: status polls error until
// cleared, leaving pending records untouched.
func (b *Backend) SetUnavailable(unavailable bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unavailable = unavailable
}

// Submit stores the object and returns an opaque deposit id
func (b *Backend) Submit(ctx context.Context, obj *simpledeposit.BusinessObject, parentID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rejectIDs[obj.ID] {
		return "", errors.New("archive rejected object")
	}

	objCopy := *obj
	objCopy.Files = append([]simpledeposit.File(nil), obj.Files...)

	depositID := "deposit:" + uuid.NewString()
	b.deposits[depositID] = &deposit{
		object:      &objCopy,
		status:      simpledeposit.DepositStatusPending,
		settleAfter: b.settleAfter,
	}
	b.byObject[obj.ID] = append(b.byObject[obj.ID], depositID)

	return depositID, nil
}

// PollStatus returns the current state of a deposit
func (b *Backend) PollStatus(ctx context.Context, depositID string) (simpledeposit.DepositStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unavailable {
		return "", simpledeposit.ErrArchiveUnavailable
	}

	d, exists := b.deposits[depositID]
	if !exists {
		return "", errors.New("unknown deposit id")
	}

	if d.status == simpledeposit.DepositStatusPending {
		if d.settleAfter > 0 {
			d.settleAfter--
			return simpledeposit.DepositStatusPending, nil
		}
		if b.failIDs[d.object.ID] {
			d.status = simpledeposit.DepositStatusFailed
		} else {
			d.status = simpledeposit.DepositStatusDeposited
		}
	}

	return d.status, nil
}

// Retrieve returns the archived object once it is durable
func (b *Backend) Retrieve(ctx context.Context, depositID string) (*simpledeposit.BusinessObject, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, exists := b.deposits[depositID]
	if !exists {
		return nil, errors.New("unknown deposit id")
	}
	if d.status != simpledeposit.DepositStatusDeposited {
		return nil, simpledeposit.ErrNotDeposited
	}

	objCopy := *d.object
	objCopy.Files = append([]simpledeposit.File(nil), d.object.Files...)
	return &objCopy, nil
}

// ListDeposits returns the deposit ids known for a business object, oldest first
func (b *Backend) ListDeposits(ctx context.Context, businessObjectID string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]string(nil), b.byObject[businessObjectID]...), nil
}
