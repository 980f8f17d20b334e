package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-deposit/pkg/simpledeposit"
	"github.com/tendant/simple-deposit/pkg/simpledeposit/repo/memory"
)

func newRecord(objectID, depositID string) *simpledeposit.DepositRecord {
	now := time.Now().UTC()
	return &simpledeposit.DepositRecord{
		DepositID:        depositID,
		BusinessObjectID: objectID,
		PackageID:        uuid.New(),
		ObjectType:       simpledeposit.ObjectTypeDataItem,
		Status:           simpledeposit.DepositStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestPackageRoundTrip(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	pkg := &simpledeposit.Package{
		ID:       uuid.New(),
		FileName: "bundle.zip",
		Type:     simpledeposit.PackageTypeContainer,
		Entries: []simpledeposit.PackageEntry{
			{BusinessObjectID: "obj-1", FileName: "a.txt", Size: 1},
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.CreatePackage(ctx, pkg))

	got, err := repo.GetPackage(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, pkg.FileName, got.FileName)
	require.Len(t, got.Entries, 1)

	// The stored package is isolated from caller mutation.
	got.Entries[0].FileName = "mutated"
	again, err := repo.GetPackage(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", again.Entries[0].FileName)

	_, err = repo.GetPackage(ctx, uuid.New())
	assert.ErrorIs(t, err, simpledeposit.ErrPackageNotFound)
}

func TestDepositHistoryNewestFirst(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	require.NoError(t, repo.CreateDepositRecord(ctx, newRecord("obj-1", "dep-1")))
	require.NoError(t, repo.CreateDepositRecord(ctx, newRecord("obj-1", "dep-2")))
	require.NoError(t, repo.CreateDepositRecord(ctx, newRecord("obj-1", "dep-3")))

	records, err := repo.ListDepositsByObject(ctx, "obj-1", nil)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "dep-3", records[0].DepositID)
	assert.Equal(t, "dep-2", records[1].DepositID)
	assert.Equal(t, "dep-1", records[2].DepositID)
}

func TestDepositStatusFilter(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	require.NoError(t, repo.CreateDepositRecord(ctx, newRecord("obj-1", "dep-1")))
	require.NoError(t, repo.CreateDepositRecord(ctx, newRecord("obj-1", "dep-2")))

	changed, err := repo.UpdateDepositStatus(ctx, "dep-1", simpledeposit.DepositStatusDeposited)
	require.NoError(t, err)
	assert.True(t, changed)

	deposited := simpledeposit.DepositStatusDeposited
	records, err := repo.ListDepositsByObject(ctx, "obj-1", &deposited)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "dep-1", records[0].DepositID)

	pending := simpledeposit.DepositStatusPending
	records, err = repo.ListDepositsByObject(ctx, "obj-1", &pending)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "dep-2", records[0].DepositID)
}

func TestUpdateDepositStatusConditional(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	require.NoError(t, repo.CreateDepositRecord(ctx, newRecord("obj-1", "dep-1")))

	changed, err := repo.UpdateDepositStatus(ctx, "dep-1", simpledeposit.DepositStatusDeposited)
	require.NoError(t, err)
	assert.True(t, changed)

	// Terminal records do not transition again.
	changed, err = repo.UpdateDepositStatus(ctx, "dep-1", simpledeposit.DepositStatusFailed)
	require.NoError(t, err)
	assert.False(t, changed)

	rec, err := repo.GetDepositRecord(ctx, "dep-1")
	require.NoError(t, err)
	assert.Equal(t, simpledeposit.DepositStatusDeposited, rec.Status)

	_, err = repo.UpdateDepositStatus(ctx, "missing", simpledeposit.DepositStatusDeposited)
	assert.ErrorIs(t, err, simpledeposit.ErrDepositNotFound)
}

func TestListPendingDeposits(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	require.NoError(t, repo.CreateDepositRecord(ctx, newRecord("obj-1", "dep-1")))
	require.NoError(t, repo.CreateDepositRecord(ctx, newRecord("obj-2", "dep-2")))

	_, err := repo.UpdateDepositStatus(ctx, "dep-1", simpledeposit.DepositStatusFailed)
	require.NoError(t, err)

	pending, err := repo.ListPendingDeposits(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "dep-2", pending[0].DepositID)
}

func TestRelationshipNaturalKey(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	edge := &simpledeposit.RelationshipEdge{
		SubjectID: "col-1",
		Relation:  simpledeposit.RelationAggregates,
		ObjectID:  "obj-1",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.CreateRelationship(ctx, edge))
	// Re-creating the same edge is a no-op, not an error.
	require.NoError(t, repo.CreateRelationship(ctx, edge))

	edges, err := repo.ListRelationships(ctx, "col-1", nil)
	require.NoError(t, err)
	assert.Len(t, edges, 1)

	ok, err := repo.HasRelationship(ctx, "col-1", simpledeposit.RelationAggregates, "obj-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.HasRelationship(ctx, "obj-1", simpledeposit.RelationAggregates, "col-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBusinessObjectCache(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	obj := &simpledeposit.BusinessObject{
		ID:    "obj-1",
		Type:  simpledeposit.ObjectTypeDataItem,
		Name:  "a.txt",
		Files: []simpledeposit.File{{Name: "a.txt", Content: []byte("A")}},
	}
	require.NoError(t, repo.SaveBusinessObject(ctx, obj))

	got, err := repo.GetBusinessObject(ctx, "obj-1")
	require.NoError(t, err)
	require.Len(t, got.Files, 1)
	assert.Equal(t, []byte("A"), got.Files[0].Content)

	// Saving again replaces the cached representation.
	obj.Name = "renamed.txt"
	require.NoError(t, repo.SaveBusinessObject(ctx, obj))
	got, err = repo.GetBusinessObject(ctx, "obj-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed.txt", got.Name)

	_, err = repo.GetBusinessObject(ctx, "missing")
	assert.ErrorIs(t, err, simpledeposit.ErrObjectNotFound)
}
