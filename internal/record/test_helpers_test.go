package record

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/crewbase/crewbase/internal/document"
	"github.com/crewbase/crewbase/internal/schema"
	"github.com/crewbase/crewbase/internal/store"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// testRegistry declares a small staffing universe covering every
// mechanism: autonumbering, soft delete, delete guards, compound keys,
// and embedded children with shadows.
func testRegistry(t *testing.T) schema.Registry {
	t.Helper()
	r := make(schema.Registry)

	specs := []*schema.CollectionSpec{
		{
			Name: "employees",
			Fields: []document.FieldDef{
				{Name: "code", Type: document.FieldString},
				{Name: "name", Type: document.FieldString, Required: true, Indexed: true},
				{Name: "kana", Type: document.FieldString, Indexed: true},
				{Name: "status", Type: document.FieldString, Default: "active"},
			},
			AutoNumber:   &schema.AutoNumber{Field: "code", Length: 4},
			SoftDelete:   &schema.SoftDelete{Field: "status", DeletedValue: "retired"},
			SearchFields: []string{"name", "kana"},
			HasMany: []schema.HasManyDecl{
				{Collection: "work_results", Field: "workerIds", Match: schema.MatchArrayContains},
				{Collection: "attendance_days", Field: "employeeId", Match: schema.MatchEquals},
			},
		},
		{
			Name: "sites",
			Fields: []document.FieldDef{
				{Name: "name", Type: document.FieldString, Required: true},
			},
		},
		{
			Name: "work_results",
			Fields: []document.FieldDef{
				{Name: "siteId", Type: document.FieldString},
				{Name: "date", Type: document.FieldDate},
				{Name: "workers", Type: document.FieldArray},
				{Name: "workerIds", Type: document.FieldArray},
			},
			Children: &schema.ChildSpec{
				Collection:  "work_details",
				ArrayField:  "workers",
				KeyField:    "employeeId",
				ParentField: "resultId",
			},
		},
		{
			Name: "work_details",
			Fields: []document.FieldDef{
				{Name: "resultId", Type: document.FieldString},
				{Name: "employeeId", Type: document.FieldString},
				{Name: "role", Type: document.FieldString, Indexed: true},
				{Name: "hours", Type: document.FieldDecimal},
				{Name: "state", Type: document.FieldMap},
			},
			SearchFields: []string{"role"},
		},
		{
			Name: "attendance_days",
			Fields: []document.FieldDef{
				{Name: "employeeId", Type: document.FieldString, Required: true},
				{Name: "date", Type: document.FieldDate, Required: true},
				{Name: "hours", Type: document.FieldDecimal},
			},
			Key: &schema.CompoundKey{Fields: []string{"employeeId", "date"}},
		},
		{
			Name: "invoices",
			Fields: []document.FieldDef{
				{Name: "code", Type: document.FieldString},
				{Name: "amount", Type: document.FieldDecimal},
			},
			AutoNumber: &schema.AutoNumber{Field: "code", Length: 2},
		},
	}
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			t.Fatalf("register %s: %v", spec.Name, err)
		}
	}
	return r
}

func createTestBase(t *testing.T, opts ...Option) *Base {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	opts = append([]Option{WithNow(func() time.Time { return testNow })}, opts...)
	return New(s, testRegistry(t), "tester", opts...)
}
