package compiler

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewbase/crewbase/internal/document"
	"github.com/crewbase/crewbase/internal/schema"
)

const employeesDecl = `
collections: employees: {
	autonumber: {field: "code", length: 4}
	softDelete: {field: "status", deleted_value: "retired"}
	search: ["name"]
	fields: {
		code: {type: "string"}
		name: {type: "string", required: true, indexed: true}
		status: {type: "string", default: "active"}
	}
}
`

func TestCompileSource_Employees(t *testing.T) {
	registry, err := CompileSource(employeesDecl)
	require.NoError(t, err)

	spec, err := registry.Lookup("employees")
	require.NoError(t, err)

	assert.Equal(t, "employees", spec.Name)
	require.Len(t, spec.Fields, 3)
	assert.Equal(t, "code", spec.Fields[0].Name)
	assert.Equal(t, document.FieldString, spec.Fields[0].Type)
	assert.True(t, spec.Fields[1].Required)
	assert.True(t, spec.Fields[1].Indexed)
	assert.Equal(t, "active", spec.Fields[2].Default)

	require.NotNil(t, spec.AutoNumber)
	assert.Equal(t, "code", spec.AutoNumber.Field)
	assert.Equal(t, 4, spec.AutoNumber.Length)

	require.NotNil(t, spec.SoftDelete)
	assert.Equal(t, "retired", spec.SoftDelete.DeletedValue)

	assert.Equal(t, []string{"name"}, spec.SearchFields)
	assert.Nil(t, spec.Key)
	assert.Nil(t, spec.Children)
}

func TestCompileSource_Golden(t *testing.T) {
	registry, err := CompileSource(employeesDecl)
	require.NoError(t, err)

	spec, err := registry.Lookup("employees")
	require.NoError(t, err)

	data, err := json.MarshalIndent(spec, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "employees_spec", data)
}

func TestCompileSource_SearchDefaultsToIndexedFields(t *testing.T) {
	registry, err := CompileSource(`
collections: sites: {
	fields: {
		name: {type: "string", indexed: true}
		address: {type: "string"}
	}
}
`)
	require.NoError(t, err)

	spec, err := registry.Lookup("sites")
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, spec.SearchFields)
}

func TestCompileSource_HasManyAndChildren(t *testing.T) {
	registry, err := CompileSource(`
collections: {
	employees: {
		fields: name: {type: "string"}
		hasMany: [
			{collection: "work_results", field: "workerIds", match: "array-contains"},
		]
	}
	work_results: {
		fields: {
			workers: {type: "array"}
			workerIds: {type: "array"}
		}
		children: {
			collection: "work_details"
			array_field: "workers"
			key_field: "employeeId"
			parent_field: "resultId"
		}
	}
	work_details: {
		fields: resultId: {type: "string"}
	}
}
`)
	require.NoError(t, err)

	emp, err := registry.Lookup("employees")
	require.NoError(t, err)
	require.Len(t, emp.HasMany, 1)
	assert.Equal(t, schema.MatchArrayContains, emp.HasMany[0].Match)

	wr, err := registry.Lookup("work_results")
	require.NoError(t, err)
	require.NotNil(t, wr.Children)
	assert.Equal(t, "work_details", wr.Children.Collection)
	assert.Equal(t, "res-1-emp-2", wr.Children.ShadowID("res-1", "emp-2"))
}

func TestCompileSource_HasManyDefaultsToEquals(t *testing.T) {
	registry, err := CompileSource(`
collections: {
	sites: {
		fields: name: {type: "string"}
		hasMany: [{collection: "work_results", field: "siteId"}]
	}
	work_results: {
		fields: siteId: {type: "string"}
	}
}
`)
	require.NoError(t, err)

	spec, err := registry.Lookup("sites")
	require.NoError(t, err)
	assert.Equal(t, schema.MatchEquals, spec.HasMany[0].Match)
}

func TestCompileSource_Errors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "missing collections",
			src:  `foo: {}`,
			want: "collections is required",
		},
		{
			name: "missing fields",
			src:  `collections: employees: {search: []}`,
			want: "fields is required",
		},
		{
			name: "unknown field type",
			src:  `collections: employees: fields: name: {type: "varchar"}`,
			want: `unknown field type "varchar"`,
		},
		{
			name: "reserved field name",
			src:  `collections: employees: fields: "_tokens": {type: "map"}`,
			want: "reserved",
		},
		{
			name: "autonumber over undeclared field",
			src: `collections: employees: {
	autonumber: {field: "code", length: 4}
	fields: name: {type: "string"}
}`,
			want: `undeclared field "code"`,
		},
		{
			name: "search over undeclared field",
			src: `collections: employees: {
	search: ["kana"]
	fields: name: {type: "string"}
}`,
			want: `undeclared field "kana"`,
		},
		{
			name: "compound key over undeclared field",
			src: `collections: attendance_days: {
	key: {fields: ["employeeId", "date"]}
	fields: employeeId: {type: "string"}
}`,
			want: `undeclared field "date"`,
		},
		{
			name: "hasMany against undeclared collection",
			src: `collections: employees: {
	fields: name: {type: "string"}
	hasMany: [{collection: "ghosts", field: "employeeId"}]
}`,
			want: `undeclared collection "ghosts"`,
		},
		{
			name: "children over non-array field",
			src: `collections: work_results: {
	fields: workers: {type: "string"}
	children: {
		collection: "work_details"
		array_field: "workers"
		key_field: "employeeId"
		parent_field: "resultId"
	}
}`,
			want: "must be an array",
		},
		{
			name: "default type mismatch",
			src:  `collections: employees: fields: name: {type: "int", default: "x"}`,
			want: "default does not match type",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CompileSource(tc.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestCompileError_FormatsPosition(t *testing.T) {
	_, err := CompileSource(`collections: employees: fields: name: {type: "varchar"}`)
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "employees.fields.name", ce.Field)
}
