package record

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewbase/crewbase/internal/document"
)

func TestDelete_BlockedByArrayDependent(t *testing.T) {
	b := createTestBase(t)
	ctx := context.Background()

	empID, err := b.Create(ctx, "employees", document.Fields{"name": "Yamada"}, "")
	require.NoError(t, err)

	resID, err := b.Create(ctx, "work_results", document.Fields{
		"siteId":    "site-1",
		"date":      "2026-03-15",
		"workerIds": []any{empID},
	}, "")
	require.NoError(t, err)

	err = b.Delete(ctx, "employees", empID)
	require.Error(t, err)
	assert.True(t, IsDependentsExist(err))

	decl := DependentDecl(err)
	require.NotNil(t, decl)
	assert.Equal(t, "work_results", decl.Collection)

	// The block lifts once the referencing record is gone.
	require.NoError(t, b.Delete(ctx, "work_results", resID))
	require.NoError(t, b.Delete(ctx, "employees", empID))

	rec, ok, err := b.FetchOne(ctx, "employees", empID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "retired", rec.String("status"))
}

func TestDelete_BlockedByEqualsDependent(t *testing.T) {
	b := createTestBase(t)
	ctx := context.Background()

	empID, err := b.Create(ctx, "employees", document.Fields{"name": "Yamada"}, "")
	require.NoError(t, err)

	dayID, err := b.Create(ctx, "attendance_days", document.Fields{
		"employeeId": empID,
		"date":       "2026-03-15",
	}, "")
	require.NoError(t, err)

	err = b.Delete(ctx, "employees", empID)
	require.Error(t, err)
	assert.True(t, IsDependentsExist(err))

	decl := DependentDecl(err)
	require.NotNil(t, decl)
	assert.Equal(t, "attendance_days", decl.Collection)

	require.NoError(t, b.Delete(ctx, "attendance_days", dayID))
	require.NoError(t, b.Delete(ctx, "employees", empID))
}

func TestDelete_GuardIgnoresOtherRecords(t *testing.T) {
	b := createTestBase(t)
	ctx := context.Background()

	empID, err := b.Create(ctx, "employees", document.Fields{"name": "Yamada"}, "")
	require.NoError(t, err)
	otherID, err := b.Create(ctx, "employees", document.Fields{"name": "Suzuki"}, "")
	require.NoError(t, err)

	_, err = b.Create(ctx, "work_results", document.Fields{
		"siteId":    "site-1",
		"date":      "2026-03-15",
		"workerIds": []any{otherID},
	}, "")
	require.NoError(t, err)

	require.NoError(t, b.Delete(ctx, "employees", empID),
		"a reference to a different employee must not block")
}
