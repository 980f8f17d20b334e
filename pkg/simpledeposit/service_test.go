package simpledeposit_test

import (
	"archive/zip"
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-deposit/pkg/simpledeposit"
	memoryarchive "github.com/tendant/simple-deposit/pkg/simpledeposit/archive/memory"
	"github.com/tendant/simple-deposit/pkg/simpledeposit/repo/memory"
)

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []simpledeposit.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []simpledeposit.Option{},
			expectError: true,
		},
		{
			name: "repository only should fail",
			options: []simpledeposit.Option{
				simpledeposit.WithRepository(memory.New()),
			},
			expectError: true,
		},
		{
			name: "repository and archive should succeed",
			options: []simpledeposit.Option{
				simpledeposit.WithRepository(memory.New()),
				simpledeposit.WithArchive(memoryarchive.New()),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := simpledeposit.New(tt.options...)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

type fixture struct {
	svc     simpledeposit.Service
	repo    simpledeposit.Repository
	archive *memoryarchive.Backend
}

// setupService builds a service on in-memory collaborators with a depositor
// grant for "alice" on collection "col-1".
func setupService(t *testing.T, opts ...simpledeposit.Option) *fixture {
	t.Helper()

	repo := memory.New()
	archive := memoryarchive.New()

	require.NoError(t, repo.CreateRelationship(context.Background(), &simpledeposit.RelationshipEdge{
		SubjectID: "col-1",
		Relation:  simpledeposit.RelationAcceptsDeposit,
		ObjectID:  "alice",
		CreatedAt: time.Now().UTC(),
	}))

	options := append([]simpledeposit.Option{
		simpledeposit.WithRepository(repo),
		simpledeposit.WithArchive(archive),
	}, opts...)

	svc, err := simpledeposit.New(options...)
	require.NoError(t, err)

	return &fixture{svc: svc, repo: repo, archive: archive}
}

func alice() simpledeposit.Identity {
	return simpledeposit.Identity{UserID: "alice"}
}

// buildZip writes a zip archive from name to content mappings.
func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDepositSingleFile(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	result, err := f.svc.DepositPackage(ctx, simpledeposit.DepositPackageRequest{
		ParentID: "col-1",
		FileName: "report.pdf",
		Content:  strings.NewReader("pdf bytes"),
		MimeType: "application/pdf",
		Identity: alice(),
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, simpledeposit.PackageTypeSimpleFile, result.Package.Type)
	require.Len(t, result.Package.Entries, 1)
	require.Len(t, result.DepositIDs, 1)
	assert.Empty(t, result.EntryErrors)
	assert.Equal(t, "report.pdf", result.Package.Entries[0].FileName)
	assert.NotEmpty(t, result.Package.Entries[0].BusinessObjectID)

	// The record starts pending; the archive has not confirmed anything yet.
	rec, err := f.repo.GetDepositRecord(ctx, result.DepositIDs[0])
	require.NoError(t, err)
	assert.Equal(t, simpledeposit.DepositStatusPending, rec.Status)
	assert.Equal(t, result.Package.ID, rec.PackageID)

	pkg, err := f.svc.GetPackage(ctx, result.Package.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Package.FileName, pkg.FileName)
}

func TestDepositContainer(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	data := buildZip(t, map[string]string{
		"a.txt":      "A",
		"docs/b.txt": "B",
	})

	result, err := f.svc.DepositPackage(ctx, simpledeposit.DepositPackageRequest{
		ParentID:  "col-1",
		FileName:  "bundle.zip",
		Content:   bytes.NewReader(data),
		Container: true,
		Identity:  alice(),
	})
	require.NoError(t, err)

	assert.Equal(t, simpledeposit.PackageTypeContainer, result.Package.Type)
	require.Len(t, result.Package.Entries, 2)
	require.Len(t, result.DepositIDs, 2)

	// Every entry gets its own business object id and pending record.
	seen := map[string]bool{}
	for _, entry := range result.Package.Entries {
		assert.False(t, seen[entry.BusinessObjectID], "business object ids must be distinct")
		seen[entry.BusinessObjectID] = true

		records, err := f.svc.ListDepositInfo(ctx, entry.BusinessObjectID, nil)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, simpledeposit.DepositStatusPending, records[0].Status)
	}

	// Directory structure is preserved as relative paths, not nesting.
	paths := map[string]string{}
	for _, entry := range result.Package.Entries {
		paths[entry.FileName] = entry.RelativePath
	}
	assert.Contains(t, paths, "a.txt")
	assert.Contains(t, paths, "b.txt")
	assert.Equal(t, "docs", paths["b.txt"])
}

func TestDepositEmptyContainer(t *testing.T) {
	f := setupService(t)

	data := buildZip(t, map[string]string{})
	result, err := f.svc.DepositPackage(context.Background(), simpledeposit.DepositPackageRequest{
		ParentID:  "col-1",
		FileName:  "empty.zip",
		Content:   bytes.NewReader(data),
		Container: true,
		Identity:  alice(),
	})
	assert.Nil(t, result)

	var extErr *simpledeposit.ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.ErrorIs(t, err, simpledeposit.ErrEmptyPackage)
}

func TestDepositCorruptContainer(t *testing.T) {
	f := setupService(t)

	result, err := f.svc.DepositPackage(context.Background(), simpledeposit.DepositPackageRequest{
		ParentID:  "col-1",
		FileName:  "broken.zip",
		Content:   strings.NewReader("this is not a zip"),
		Container: true,
		Identity:  alice(),
	})
	assert.Nil(t, result)

	var extErr *simpledeposit.ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, "broken.zip", extErr.FileName)
}

func TestDepositUnauthorized(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	result, err := f.svc.DepositPackage(ctx, simpledeposit.DepositPackageRequest{
		ParentID: "col-1",
		FileName: "report.pdf",
		Content:  strings.NewReader("pdf bytes"),
		Identity: simpledeposit.Identity{UserID: "mallory"},
	})
	assert.Nil(t, result)

	var authErr *simpledeposit.AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "mallory", authErr.UserID)
	assert.Equal(t, "col-1", authErr.CollectionID)

	// Denial leaves no trace: no deposit records, no edges for mallory.
	edges, err := f.repo.ListRelationships(ctx, "mallory", nil)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestDepositAdministratorBypassesGrants(t *testing.T) {
	f := setupService(t)

	result, err := f.svc.DepositPackage(context.Background(), simpledeposit.DepositPackageRequest{
		ParentID: "col-ungranted",
		FileName: "notes.txt",
		Content:  strings.NewReader("notes"),
		Identity: simpledeposit.Identity{UserID: "root", Administrator: true},
	})
	require.NoError(t, err)
	assert.Len(t, result.DepositIDs, 1)
}

func TestDepositPartialFailure(t *testing.T) {
	repo := memory.New()
	archive := memoryarchive.New()
	svc, err := simpledeposit.New(
		simpledeposit.WithRepository(repo),
		simpledeposit.WithArchive(archive),
		simpledeposit.WithIDMinter(&sequenceMinter{}),
	)
	require.NoError(t, err)

	// With the sequential minter, entry ids are predictable; reject the second.
	archive.RejectObject("data_item:2")

	data := buildZip(t, map[string]string{
		"a.txt": "A",
		"b.txt": "B",
		"c.txt": "C",
	})

	ctx := context.Background()
	result, err := svc.DepositPackage(ctx, simpledeposit.DepositPackageRequest{
		ParentID:  "col-1",
		FileName:  "bundle.zip",
		Content:   bytes.NewReader(data),
		Container: true,
		Identity:  simpledeposit.Identity{UserID: "root", Administrator: true},
	})
	require.NoError(t, err)

	// One entry was rejected; the other two stay tracked.
	require.Len(t, result.Package.Entries, 3)
	assert.Len(t, result.DepositIDs, 2)
	require.Len(t, result.EntryErrors, 1)

	var subErr *simpledeposit.SubmissionError
	require.ErrorAs(t, result.EntryErrors[0], &subErr)
	assert.Equal(t, "data_item:2", subErr.BusinessObjectID)

	// The rejected entry never got a deposit record.
	records, err := repo.ListDepositsByObject(ctx, "data_item:2", nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestUpdateObjectPreservesIdentity(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	first, err := f.svc.DepositPackage(ctx, simpledeposit.DepositPackageRequest{
		ParentID: "col-1",
		FileName: "draft.txt",
		Content:  strings.NewReader("v1"),
		Identity: alice(),
	})
	require.NoError(t, err)
	objectID := first.Package.Entries[0].BusinessObjectID

	second, err := f.svc.UpdateObject(ctx, simpledeposit.UpdateObjectRequest{
		BusinessObjectID: objectID,
		FileName:         "draft.txt",
		Content:          strings.NewReader("v2"),
		Identity:         alice(),
	})
	require.NoError(t, err)

	// Same business object id, fresh deposit id.
	assert.Equal(t, objectID, second.Package.Entries[0].BusinessObjectID)
	require.Len(t, second.DepositIDs, 1)
	assert.NotEqual(t, first.DepositIDs[0], second.DepositIDs[0])

	// History is append-only, newest first.
	records, err := f.svc.ListDepositInfo(ctx, objectID, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, second.DepositIDs[0], records[0].DepositID)
	assert.Equal(t, first.DepositIDs[0], records[1].DepositID)

	cur, err := f.svc.GetCurrentDeposit(ctx, objectID)
	require.NoError(t, err)
	assert.Equal(t, second.DepositIDs[0], cur.DepositID)
}

func TestUpdateObjectContainer(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	first, err := f.svc.DepositPackage(ctx, simpledeposit.DepositPackageRequest{
		ParentID: "col-1",
		FileName: "v1.txt",
		Content:  strings.NewReader("v1"),
		Identity: alice(),
	})
	require.NoError(t, err)
	objectID := first.Package.Entries[0].BusinessObjectID

	data := buildZip(t, map[string]string{
		"a.txt": "A",
		"b.txt": "B",
	})
	second, err := f.svc.UpdateObject(ctx, simpledeposit.UpdateObjectRequest{
		BusinessObjectID: objectID,
		FileName:         "v2.zip",
		Content:          bytes.NewReader(data),
		Container:        true,
		Identity:         alice(),
	})
	require.NoError(t, err)

	// The updated object keeps its id: its history gains a record for the
	// container deposit, newest first.
	records, err := f.svc.ListDepositInfo(ctx, objectID, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, simpledeposit.ObjectTypePackage, records[0].ObjectType)
	assert.Equal(t, first.DepositIDs[0], records[1].DepositID)
	assert.Contains(t, second.DepositIDs, records[0].DepositID)

	// Fresh member ids hang under the updated object, not its collection.
	require.Len(t, second.Package.Entries, 2)
	inv := simpledeposit.RelationIsAggregatedBy
	for _, entry := range second.Package.Entries {
		assert.NotEqual(t, objectID, entry.BusinessObjectID)

		parents, err := f.svc.ListRelationships(ctx, entry.BusinessObjectID, &inv)
		require.NoError(t, err)
		require.Len(t, parents, 1)
		assert.Equal(t, objectID, parents[0].ObjectID)

		memberRecords, err := f.svc.ListDepositInfo(ctx, entry.BusinessObjectID, nil)
		require.NoError(t, err)
		require.Len(t, memberRecords, 1)
		assert.Equal(t, records[0].DepositID, memberRecords[0].ParentDepositID)
	}

	agg := simpledeposit.RelationAggregates
	members, err := f.svc.ListRelationships(ctx, objectID, &agg)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestRetrieveRoundTrip(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	payload := "the exact bytes that went in"
	result, err := f.svc.DepositPackage(ctx, simpledeposit.DepositPackageRequest{
		ParentID: "col-1",
		FileName: "exact.bin",
		Content:  strings.NewReader(payload),
		Identity: alice(),
	})
	require.NoError(t, err)
	depositID := result.DepositIDs[0]

	// Retrieval before confirmation is refused.
	_, err = f.svc.RetrieveObject(ctx, depositID)
	assert.ErrorIs(t, err, simpledeposit.ErrNotDeposited)

	_, err = f.svc.PollArchive(ctx)
	require.NoError(t, err)

	obj, err := f.svc.RetrieveObject(ctx, depositID)
	require.NoError(t, err)
	require.Len(t, obj.Files, 1)
	assert.Equal(t, []byte(payload), obj.Files[0].Content)

	current, err := f.svc.GetCurrentObject(ctx, result.Package.Entries[0].BusinessObjectID)
	require.NoError(t, err)
	assert.Equal(t, []byte(payload), current.Files[0].Content)
}

func TestGetCurrentObjectUnknown(t *testing.T) {
	f := setupService(t)

	_, err := f.svc.GetCurrentObject(context.Background(), "never-deposited")
	assert.ErrorIs(t, err, simpledeposit.ErrObjectNotFound)
}

func TestDepositRecordsRelationships(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	result, err := f.svc.DepositPackage(ctx, simpledeposit.DepositPackageRequest{
		ParentID: "col-1",
		FileName: "member.txt",
		Content:  strings.NewReader("m"),
		Identity: alice(),
	})
	require.NoError(t, err)
	memberID := result.Package.Entries[0].BusinessObjectID

	// Aggregation pair.
	agg := simpledeposit.RelationAggregates
	edges, err := f.svc.ListRelationships(ctx, "col-1", &agg)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, memberID, edges[0].ObjectID)

	inv := simpledeposit.RelationIsAggregatedBy
	back, err := f.svc.ListRelationships(ctx, memberID, &inv)
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.Equal(t, "col-1", back[0].ObjectID)

	// Depositor rights pair.
	dep := simpledeposit.RelationIsDepositorFor
	rights, err := f.svc.ListRelationships(ctx, "alice", &dep)
	require.NoError(t, err)
	require.Len(t, rights, 1)
	assert.Equal(t, "col-1", rights[0].ObjectID)
}

func TestGetPackageNotFound(t *testing.T) {
	f := setupService(t)

	_, err := f.svc.GetPackage(context.Background(), uuid.New())
	assert.ErrorIs(t, err, simpledeposit.ErrPackageNotFound)
}

// sequenceMinter mints deterministic ids for tests that need to target a
// specific entry.
type sequenceMinter struct {
	n int
}

func (m *sequenceMinter) MintID(ctx context.Context, objectType simpledeposit.ObjectType) (string, error) {
	m.n++
	return string(objectType) + ":" + strconv.Itoa(m.n), nil
}
