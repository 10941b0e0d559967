package document

import (
	"testing"
)

func TestCoerce(t *testing.T) {
	cases := []struct {
		name    string
		typ     FieldType
		in      any
		want    any
		wantErr bool
	}{
		{"string", FieldString, "x", "x", false},
		{"string from int", FieldString, 3, nil, true},
		{"int from int64", FieldInt, int64(3), int64(3), false},
		{"int from json float", FieldInt, float64(3), int64(3), false},
		{"int from fractional float", FieldInt, 3.5, nil, true},
		{"decimal from int", FieldDecimal, int64(3), float64(3), false},
		{"decimal", FieldDecimal, 7.5, 7.5, false},
		{"bool", FieldBool, true, true, false},
		{"date", FieldDate, "2026-03-15", "2026-03-15", false},
		{"nil gets default", FieldInt, nil, int64(0), false},
		{"array", FieldArray, []any{"a"}, []any{"a"}, false},
		{"array from string", FieldArray, "a", nil, true},
		{"map", FieldMap, map[string]any{"k": "v"}, map[string]any{"k": "v"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Coerce(tc.typ, tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Coerce(%v, %v) succeeded, want error", tc.typ, tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce(%v, %v) failed: %v", tc.typ, tc.in, err)
			}
			switch want := tc.want.(type) {
			case []any:
				gotArr, ok := got.([]any)
				if !ok || len(gotArr) != len(want) {
					t.Errorf("got %v, want %v", got, want)
				}
			case map[string]any:
				gotMap, ok := got.(map[string]any)
				if !ok || len(gotMap) != len(want) {
					t.Errorf("got %v, want %v", got, want)
				}
			default:
				if got != tc.want {
					t.Errorf("got %v (%T), want %v (%T)", got, got, tc.want, tc.want)
				}
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	table := []FieldDef{
		{Name: "name", Type: FieldString, Required: true},
		{Name: "status", Type: FieldString, Default: "active"},
		{Name: "hours", Type: FieldDecimal},
	}

	out, err := ApplyDefaults(table, Fields{
		"name":       "Sato",
		"undeclared": "dropped",
	})
	if err != nil {
		t.Fatalf("ApplyDefaults() failed: %v", err)
	}

	if out["name"] != "Sato" {
		t.Errorf("name = %v, want Sato", out["name"])
	}
	if out["status"] != "active" {
		t.Errorf("status = %v, want declared default", out["status"])
	}
	if out["hours"] != float64(0) {
		t.Errorf("hours = %v, want type zero", out["hours"])
	}
	if _, ok := out["undeclared"]; ok {
		t.Error("undeclared field survived")
	}
}

func TestApplyDefaults_CoercionFailure(t *testing.T) {
	table := []FieldDef{{Name: "hours", Type: FieldDecimal}}

	if _, err := ApplyDefaults(table, Fields{"hours": "seven"}); err == nil {
		t.Fatal("ApplyDefaults() succeeded with mistyped value")
	}
}

func TestCoerceAll_PreservesReservedKeys(t *testing.T) {
	table := []FieldDef{{Name: "name", Type: FieldString}}

	out, err := CoerceAll(table, Fields{
		"name":      "Sato",
		TokensField: map[string]any{"sa": true},
		"dropped":   1,
	})
	if err != nil {
		t.Fatalf("CoerceAll() failed: %v", err)
	}
	if _, ok := out[TokensField]; !ok {
		t.Error("token map was dropped")
	}
	if _, ok := out["dropped"]; ok {
		t.Error("undeclared non-reserved field survived")
	}
}

func TestIsZero(t *testing.T) {
	cases := []struct {
		typ  FieldType
		v    any
		want bool
	}{
		{FieldString, "", true},
		{FieldString, "x", false},
		{FieldInt, int64(0), true},
		{FieldInt, int64(1), false},
		{FieldDecimal, float64(0), true},
		{FieldBool, false, true},
		{FieldBool, true, false},
		{FieldArray, []any{}, true},
		{FieldArray, []any{"a"}, false},
		{FieldMap, map[string]any{}, true},
	}
	for _, tc := range cases {
		if got := IsZero(tc.typ, tc.v); got != tc.want {
			t.Errorf("IsZero(%v, %v) = %v, want %v", tc.typ, tc.v, got, tc.want)
		}
	}
}

func TestFieldsClone(t *testing.T) {
	orig := Fields{"a": 1, "b": "x"}
	clone := orig.Clone()
	clone["a"] = 2

	if orig["a"] != 1 {
		t.Error("Clone() shares top-level storage with original")
	}
}
