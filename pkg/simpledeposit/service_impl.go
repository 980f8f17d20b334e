package simpledeposit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// service implements the Service interface
type service struct {
	repository Repository
	archive    Archive
	authorizer Authorizer
	minter     IDMinter
	dispatcher *Dispatcher

	assembler assembler
	recorder  relationshipRecorder
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithArchive sets the archive backend for the service
func WithArchive(archive Archive) Option {
	return func(s *service) {
		s.archive = archive
	}
}

// WithAuthorizer sets the authorization collaborator
func WithAuthorizer(authorizer Authorizer) Option {
	return func(s *service) {
		s.authorizer = authorizer
	}
}

// WithIDMinter sets the identifier service used for fresh business ids
func WithIDMinter(minter IDMinter) Option {
	return func(s *service) {
		s.minter = minter
	}
}

// WithDispatcher sets the event dispatcher
func WithDispatcher(dispatcher *Dispatcher) Option {
	return func(s *service) {
		s.dispatcher = dispatcher
	}
}

// New creates a new service instance with the given options. A repository
// and an archive backend are required; the archive is an explicit dependency
// passed in at construction time, never an ambient singleton.
func New(options ...Option) (Service, error) {
	s := &service{}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.archive == nil {
		return nil, fmt.Errorf("archive backend is required")
	}
	if s.minter == nil {
		s.minter = NewUUIDMinter()
	}
	if s.authorizer == nil {
		s.authorizer = NewRepositoryAuthorizer(s.repository)
	}
	if s.dispatcher == nil {
		s.dispatcher = NewDispatcher()
	}

	s.assembler = assembler{minter: s.minter}
	s.recorder = relationshipRecorder{repository: s.repository}

	return s, nil
}

// Deposit operations

func (s *service) DepositPackage(ctx context.Context, req DepositPackageRequest) (*DepositResult, error) {
	ok, err := s.authorizer.CanDeposit(ctx, req.Identity, req.ParentID)
	if err != nil {
		return nil, fmt.Errorf("authorization check failed: %w", err)
	}
	if !ok {
		return nil, &AuthorizationError{UserID: req.Identity.UserID, CollectionID: req.ParentID}
	}

	pkg, payloads, err := s.assembler.assemble(ctx, req.FileName, req.Content, req.Container, req.MimeType)
	if err != nil {
		s.dispatcher.Fire(ValidationFailedEvent{FileName: req.FileName, Reason: err.Error()})
		return nil, err
	}
	if req.Container && len(pkg.Entries) == 0 {
		s.dispatcher.Fire(ValidationFailedEvent{FileName: req.FileName, Reason: ErrEmptyPackage.Error()})
		return nil, &ExtractionError{FileName: req.FileName, Err: ErrEmptyPackage}
	}

	return s.submit(ctx, req.Identity, req.ParentID, pkg, payloads)
}

func (s *service) UpdateObject(ctx context.Context, req UpdateObjectRequest) (*DepositResult, error) {
	// Updates target an existing business object: the parent collection for
	// authorization comes from its aggregation edge.
	parentID := ""
	edges, err := s.repository.ListRelationships(ctx, req.BusinessObjectID, relPtr(RelationIsAggregatedBy))
	if err != nil {
		return nil, fmt.Errorf("resolving parent collection: %w", err)
	}
	if len(edges) > 0 {
		parentID = edges[0].ObjectID
	}

	ok, err := s.authorizer.CanDeposit(ctx, req.Identity, parentID)
	if err != nil {
		return nil, fmt.Errorf("authorization check failed: %w", err)
	}
	if !ok {
		return nil, &AuthorizationError{UserID: req.Identity.UserID, CollectionID: parentID}
	}

	pkg, payloads, err := s.assembler.assemble(ctx, req.FileName, req.Content, req.Container, req.MimeType)
	if err != nil {
		s.dispatcher.Fire(ValidationFailedEvent{FileName: req.FileName, Reason: err.Error()})
		return nil, err
	}
	if req.Container && len(pkg.Entries) == 0 {
		s.dispatcher.Fire(ValidationFailedEvent{FileName: req.FileName, Reason: ErrEmptyPackage.Error()})
		return nil, &ExtractionError{FileName: req.FileName, Err: ErrEmptyPackage}
	}

	// Preserve the business object id: the update mints a new deposit id
	// underneath it while the id itself never changes. Container updates
	// additionally aggregate their fresh member ids under the existing
	// object, not under its parent collection.
	if req.Container {
		return s.submitContainerUpdate(ctx, req.Identity, req.BusinessObjectID, parentID, pkg, payloads)
	}

	payloads[0].entry.BusinessObjectID = req.BusinessObjectID
	pkg.Entries[0].BusinessObjectID = req.BusinessObjectID
	return s.submit(ctx, req.Identity, parentID, pkg, payloads)
}

// submitContainerUpdate replaces the content of an existing object with an
// exploded container. The object keeps its id and gains a fresh deposit
// record for the container itself, so its history grows with the update;
// the extracted members are minted fresh and aggregated under the object.
func (s *service) submitContainerUpdate(ctx context.Context, identity Identity, objectID, collectionID string, pkg *Package, payloads []*entryPayload) (*DepositResult, error) {
	if err := s.repository.CreatePackage(ctx, pkg); err != nil {
		return nil, &PackageError{PackageID: pkg.ID, Op: "create", Err: err}
	}

	collectionDepositID := ""
	if collectionID != "" {
		if cur, err := s.currentDeposit(ctx, collectionID); err == nil && cur != nil {
			collectionDepositID = cur.DepositID
		}
	}

	now := time.Now().UTC()

	// The container object travels first: its new deposit id is what the
	// member records hang under.
	containerObj := &BusinessObject{
		ID:        objectID,
		Type:      ObjectTypePackage,
		Name:      pkg.FileName,
		ParentID:  collectionID,
		CreatedAt: now,
	}
	containerDepositID, err := s.archive.Submit(ctx, containerObj, collectionID)
	if err != nil {
		return nil, &SubmissionError{BusinessObjectID: objectID, FileName: pkg.FileName, Err: err}
	}
	if err := s.repository.CreateDepositRecord(ctx, &DepositRecord{
		DepositID:        containerDepositID,
		BusinessObjectID: objectID,
		ParentDepositID:  collectionDepositID,
		PackageID:        pkg.ID,
		ObjectType:       ObjectTypePackage,
		Status:           DepositStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}); err != nil {
		return nil, fmt.Errorf("tracking deposit %s: %w", containerDepositID, err)
	}

	result := &DepositResult{Package: pkg, DepositIDs: []string{containerDepositID}}

	var submittedIDs []string
	for _, p := range payloads {
		obj := &BusinessObject{
			ID:        p.entry.BusinessObjectID,
			Type:      ObjectTypeDataItem,
			Name:      p.entry.FileName,
			ParentID:  objectID,
			Files:     []File{p.file},
			CreatedAt: now,
		}

		depositID, err := s.archive.Submit(ctx, obj, objectID)
		if err != nil {
			result.EntryErrors = append(result.EntryErrors, &SubmissionError{
				BusinessObjectID: p.entry.BusinessObjectID,
				FileName:         p.entry.FileName,
				Err:              err,
			})
			continue
		}

		rec := &DepositRecord{
			DepositID:        depositID,
			BusinessObjectID: p.entry.BusinessObjectID,
			ParentDepositID:  containerDepositID,
			PackageID:        pkg.ID,
			ObjectType:       ObjectTypeDataItem,
			Status:           DepositStatusPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.repository.CreateDepositRecord(ctx, rec); err != nil {
			return result, fmt.Errorf("tracking deposit %s: %w", depositID, err)
		}

		result.DepositIDs = append(result.DepositIDs, depositID)
		submittedIDs = append(submittedIDs, p.entry.BusinessObjectID)
	}

	var relErr error
	for _, memberID := range submittedIDs {
		if err := s.recorder.recordAggregation(ctx, objectID, memberID); err != nil {
			relErr = err
			break
		}
	}
	if relErr == nil && collectionID != "" {
		if err := s.recorder.recordDepositorRights(ctx, identity.UserID, collectionID); err != nil {
			relErr = err
		}
	}

	if len(result.EntryErrors) == 0 {
		s.dispatcher.Fire(DepositApprovedEvent{Package: pkg, DepositIDs: result.DepositIDs})
	}

	return result, relErr
}

// submit is the deposit submitter: one persisted Package, one archive
// submission plus pending deposit record per entry, relationship edges on
// success. Fire-and-track: the returned deposit ids are tracking handles,
// not durability.
func (s *service) submit(ctx context.Context, identity Identity, parentID string, pkg *Package, payloads []*entryPayload) (*DepositResult, error) {
	if err := s.repository.CreatePackage(ctx, pkg); err != nil {
		return nil, &PackageError{PackageID: pkg.ID, Op: "create", Err: err}
	}

	// The parent collection's current deposit links child records, when the
	// collection itself has been deposited.
	parentDepositID := ""
	if parentID != "" {
		if cur, err := s.currentDeposit(ctx, parentID); err == nil && cur != nil {
			parentDepositID = cur.DepositID
		}
	}

	result := &DepositResult{Package: pkg}
	now := time.Now().UTC()

	var submittedIDs []string
	for _, p := range payloads {
		obj := &BusinessObject{
			ID:        p.entry.BusinessObjectID,
			Type:      ObjectTypeDataItem,
			Name:      p.entry.FileName,
			ParentID:  parentID,
			Files:     []File{p.file},
			CreatedAt: now,
		}

		depositID, err := s.archive.Submit(ctx, obj, parentID)
		if err != nil {
			// The failed entry is skipped and reported; entries already
			// submitted stay tracked, so the id list comes back shorter
			// than the entry count.
			result.EntryErrors = append(result.EntryErrors, &SubmissionError{
				BusinessObjectID: p.entry.BusinessObjectID,
				FileName:         p.entry.FileName,
				Err:              err,
			})
			continue
		}

		rec := &DepositRecord{
			DepositID:        depositID,
			BusinessObjectID: p.entry.BusinessObjectID,
			ParentDepositID:  parentDepositID,
			PackageID:        pkg.ID,
			ObjectType:       ObjectTypeDataItem,
			Status:           DepositStatusPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.repository.CreateDepositRecord(ctx, rec); err != nil {
			return result, fmt.Errorf("tracking deposit %s: %w", depositID, err)
		}

		result.DepositIDs = append(result.DepositIDs, depositID)
		submittedIDs = append(submittedIDs, p.entry.BusinessObjectID)
	}

	// Relationship edges accompany whatever actually reached the archive.
	// A recording failure surfaces alongside the completed result: the
	// deposit records are never rolled back over an incomplete graph.
	var relErr error
	for _, objectID := range submittedIDs {
		if parentID == "" || parentID == objectID {
			continue
		}
		if err := s.recorder.recordAggregation(ctx, parentID, objectID); err != nil {
			relErr = err
			break
		}
	}
	if relErr == nil && parentID != "" && len(result.DepositIDs) > 0 {
		if err := s.recorder.recordDepositorRights(ctx, identity.UserID, parentID); err != nil {
			relErr = err
		}
	}

	if len(result.EntryErrors) == 0 && len(result.DepositIDs) > 0 {
		s.dispatcher.Fire(DepositApprovedEvent{Package: pkg, DepositIDs: result.DepositIDs})
	}

	return result, relErr
}

// Deposit tracking

func (s *service) ListDepositInfo(ctx context.Context, businessObjectID string, status *DepositStatus) ([]*DepositRecord, error) {
	return s.repository.ListDepositsByObject(ctx, businessObjectID, status)
}

func (s *service) GetCurrentDeposit(ctx context.Context, businessObjectID string) (*DepositRecord, error) {
	return s.currentDeposit(ctx, businessObjectID)
}

// currentDeposit returns the newest record for the object regardless of
// status, or nil when the object has never been submitted.
func (s *service) currentDeposit(ctx context.Context, businessObjectID string) (*DepositRecord, error) {
	records, err := s.repository.ListDepositsByObject(ctx, businessObjectID, nil)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (s *service) GetPackage(ctx context.Context, id uuid.UUID) (*Package, error) {
	return s.repository.GetPackage(ctx, id)
}

// Retrieval

func (s *service) RetrieveObject(ctx context.Context, depositID string) (*BusinessObject, error) {
	rec, err := s.repository.GetDepositRecord(ctx, depositID)
	if err != nil {
		return nil, err
	}
	if rec.Status != DepositStatusDeposited {
		return nil, &ArchiveError{DepositID: depositID, Op: "retrieve", Err: ErrNotDeposited}
	}

	obj, err := s.archive.Retrieve(ctx, depositID)
	if err != nil {
		return nil, &ArchiveError{DepositID: depositID, Op: "retrieve", Err: err}
	}
	return obj, nil
}

// GetCurrentObject returns the content of the most recent deposited record
// for the business object id. Older deposits stay in history but never serve
// current reads.
func (s *service) GetCurrentObject(ctx context.Context, businessObjectID string) (*BusinessObject, error) {
	deposited := DepositStatusDeposited
	records, err := s.repository.ListDepositsByObject(ctx, businessObjectID, &deposited)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrObjectNotFound
	}
	return s.RetrieveObject(ctx, records[0].DepositID)
}

// Relationship queries

func (s *service) ListRelationships(ctx context.Context, subjectID string, relation *RelationType) ([]*RelationshipEdge, error) {
	return s.repository.ListRelationships(ctx, subjectID, relation)
}

// Event integration

func (s *service) AddListener(listener EventListener) {
	s.dispatcher.AddListener(listener)
}

func (s *service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

func relPtr(r RelationType) *RelationType { return &r }
