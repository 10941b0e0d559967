// Package compiler turns CUE collection declarations into
// schema.CollectionSpec values.
//
// Declarations are written as one CUE struct per collection under a
// top-level "collections" field:
//
//	collections: employees: {
//		autonumber: {field: "code", length: 4}
//		softDelete: {field: "status", deleted_value: "retired"}
//		search: ["name", "kana"]
//		fields: {
//			code: {type: "string"}
//			name: {type: "string", required: true, indexed: true}
//		}
//		hasMany: [
//			{collection: "work_results", field: "workerIds", match: "array-contains"},
//		]
//	}
//
// Uses the CUE SDK's Go API directly (not a CLI subprocess). Errors
// carry CUE source positions where available.
package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/crewbase/crewbase/internal/document"
	"github.com/crewbase/crewbase/internal/schema"
)

// CompileError is a declaration error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileSource compiles CUE source text into a declaration registry.
func CompileSource(src string) (schema.Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(v)
}

// Compile parses a CUE value holding a top-level "collections" struct
// into a declaration registry. Declaration order of fields is
// preserved; it drives coercion order and search value order.
func Compile(v cue.Value) (schema.Registry, error) {
	colls := v.LookupPath(cue.ParsePath("collections"))
	if !colls.Exists() {
		return nil, &CompileError{
			Field:   "collections",
			Message: "collections is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := colls.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	registry := make(schema.Registry)
	for iter.Next() {
		name := iter.Label()
		spec, err := parseCollection(name, iter.Value())
		if err != nil {
			return nil, err
		}
		if err := registry.Register(spec); err != nil {
			return nil, &CompileError{Field: name, Message: err.Error(), Pos: iter.Value().Pos()}
		}
	}

	// Cross-collection checks after every declaration is known.
	for _, spec := range registry {
		for _, decl := range spec.HasMany {
			if _, ok := registry[decl.Collection]; !ok {
				return nil, &CompileError{
					Field:   spec.Name + ".hasMany",
					Message: fmt.Sprintf("references undeclared collection %q", decl.Collection),
				}
			}
		}
	}
	return registry, nil
}

func parseCollection(name string, v cue.Value) (*schema.CollectionSpec, error) {
	spec := &schema.CollectionSpec{Name: name}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{
			Field:   name + ".fields",
			Message: "fields is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		def, err := parseField(name, iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		spec.Fields = append(spec.Fields, def)
	}
	if len(spec.Fields) == 0 {
		return nil, &CompileError{
			Field:   name + ".fields",
			Message: "at least one field is required",
			Pos:     fieldsVal.Pos(),
		}
	}

	if spec.Key, err = parseKey(name, spec, v); err != nil {
		return nil, err
	}
	if spec.AutoNumber, err = parseAutoNumber(name, spec, v); err != nil {
		return nil, err
	}
	if spec.SoftDelete, err = parseSoftDelete(name, spec, v); err != nil {
		return nil, err
	}
	if spec.SearchFields, err = parseSearch(name, spec, v); err != nil {
		return nil, err
	}
	if spec.HasMany, err = parseHasMany(name, v); err != nil {
		return nil, err
	}
	if spec.Children, err = parseChildren(name, spec, v); err != nil {
		return nil, err
	}
	return spec, nil
}

func parseField(collection, name string, v cue.Value) (document.FieldDef, error) {
	if len(name) > 0 && name[0] == '_' {
		return document.FieldDef{}, &CompileError{
			Field:   collection + ".fields." + name,
			Message: "field names starting with underscore are reserved",
			Pos:     v.Pos(),
		}
	}

	typVal := v.LookupPath(cue.ParsePath("type"))
	if !typVal.Exists() {
		return document.FieldDef{}, &CompileError{
			Field:   collection + ".fields." + name,
			Message: "type is required",
			Pos:     v.Pos(),
		}
	}
	typ, err := typVal.String()
	if err != nil {
		return document.FieldDef{}, formatCUEError(err)
	}
	if !document.ValidFieldTypes[document.FieldType(typ)] {
		return document.FieldDef{}, &CompileError{
			Field:   collection + ".fields." + name,
			Message: fmt.Sprintf("unknown field type %q", typ),
			Pos:     typVal.Pos(),
		}
	}

	def := document.FieldDef{Name: name, Type: document.FieldType(typ)}
	if def.Required, err = optionalBool(v, "required"); err != nil {
		return document.FieldDef{}, err
	}
	if def.Indexed, err = optionalBool(v, "indexed"); err != nil {
		return document.FieldDef{}, err
	}

	if defVal := v.LookupPath(cue.ParsePath("default")); defVal.Exists() {
		var raw any
		if err := defVal.Decode(&raw); err != nil {
			return document.FieldDef{}, formatCUEError(err)
		}
		coerced, err := document.Coerce(def.Type, raw)
		if err != nil {
			return document.FieldDef{}, &CompileError{
				Field:   collection + ".fields." + name,
				Message: fmt.Sprintf("default does not match type %q: %v", typ, err),
				Pos:     defVal.Pos(),
			}
		}
		def.Default = coerced
	}
	return def, nil
}

func parseKey(collection string, spec *schema.CollectionSpec, v cue.Value) (*schema.CompoundKey, error) {
	keyVal := v.LookupPath(cue.ParsePath("key"))
	if !keyVal.Exists() {
		return nil, nil
	}
	var key schema.CompoundKey
	fieldsVal := keyVal.LookupPath(cue.ParsePath("fields"))
	if err := fieldsVal.Decode(&key.Fields); err != nil {
		return nil, formatCUEError(err)
	}
	if len(key.Fields) == 0 {
		return nil, &CompileError{
			Field:   collection + ".key",
			Message: "at least one key field is required",
			Pos:     keyVal.Pos(),
		}
	}
	for _, f := range key.Fields {
		if spec.Field(f) == nil {
			return nil, &CompileError{
				Field:   collection + ".key",
				Message: fmt.Sprintf("undeclared field %q", f),
				Pos:     keyVal.Pos(),
			}
		}
	}
	return &key, nil
}

func parseAutoNumber(collection string, spec *schema.CollectionSpec, v cue.Value) (*schema.AutoNumber, error) {
	anVal := v.LookupPath(cue.ParsePath("autonumber"))
	if !anVal.Exists() {
		return nil, nil
	}
	var an schema.AutoNumber
	field, err := anVal.LookupPath(cue.ParsePath("field")).String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	length, err := anVal.LookupPath(cue.ParsePath("length")).Int64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	an.Field, an.Length = field, int(length)

	if spec.Field(an.Field) == nil {
		return nil, &CompileError{
			Field:   collection + ".autonumber",
			Message: fmt.Sprintf("undeclared field %q", an.Field),
			Pos:     anVal.Pos(),
		}
	}
	if an.Length <= 0 {
		return nil, &CompileError{
			Field:   collection + ".autonumber",
			Message: "length must be positive",
			Pos:     anVal.Pos(),
		}
	}
	return &an, nil
}

func parseSoftDelete(collection string, spec *schema.CollectionSpec, v cue.Value) (*schema.SoftDelete, error) {
	sdVal := v.LookupPath(cue.ParsePath("softDelete"))
	if !sdVal.Exists() {
		return nil, nil
	}
	var sd schema.SoftDelete
	field, err := sdVal.LookupPath(cue.ParsePath("field")).String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	value, err := sdVal.LookupPath(cue.ParsePath("deleted_value")).String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	sd.Field, sd.DeletedValue = field, value

	if spec.Field(sd.Field) == nil {
		return nil, &CompileError{
			Field:   collection + ".softDelete",
			Message: fmt.Sprintf("undeclared field %q", sd.Field),
			Pos:     sdVal.Pos(),
		}
	}
	return &sd, nil
}

func parseSearch(collection string, spec *schema.CollectionSpec, v cue.Value) ([]string, error) {
	searchVal := v.LookupPath(cue.ParsePath("search"))
	if !searchVal.Exists() {
		// Fall back to fields marked indexed, in declaration order.
		var fields []string
		for _, def := range spec.Fields {
			if def.Indexed {
				fields = append(fields, def.Name)
			}
		}
		return fields, nil
	}
	var fields []string
	if err := searchVal.Decode(&fields); err != nil {
		return nil, formatCUEError(err)
	}
	for _, f := range fields {
		if spec.Field(f) == nil {
			return nil, &CompileError{
				Field:   collection + ".search",
				Message: fmt.Sprintf("undeclared field %q", f),
				Pos:     searchVal.Pos(),
			}
		}
	}
	return fields, nil
}

func parseHasMany(collection string, v cue.Value) ([]schema.HasManyDecl, error) {
	hmVal := v.LookupPath(cue.ParsePath("hasMany"))
	if !hmVal.Exists() {
		return nil, nil
	}
	list, err := hmVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var decls []schema.HasManyDecl
	for list.Next() {
		item := list.Value()
		var decl schema.HasManyDecl
		if err := item.Decode(&decl); err != nil {
			return nil, formatCUEError(err)
		}
		if decl.Match == "" {
			decl.Match = schema.MatchEquals
		}
		if !schema.ValidMatchModes[decl.Match] {
			return nil, &CompileError{
				Field:   collection + ".hasMany",
				Message: fmt.Sprintf("unknown match mode %q", decl.Match),
				Pos:     item.Pos(),
			}
		}
		if decl.Collection == "" || decl.Field == "" {
			return nil, &CompileError{
				Field:   collection + ".hasMany",
				Message: "collection and field are required",
				Pos:     item.Pos(),
			}
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

func parseChildren(collection string, spec *schema.CollectionSpec, v cue.Value) (*schema.ChildSpec, error) {
	chVal := v.LookupPath(cue.ParsePath("children"))
	if !chVal.Exists() {
		return nil, nil
	}
	var child schema.ChildSpec
	if err := chVal.Decode(&child); err != nil {
		return nil, formatCUEError(err)
	}
	if child.Collection == "" || child.ArrayField == "" || child.KeyField == "" || child.ParentField == "" {
		return nil, &CompileError{
			Field:   collection + ".children",
			Message: "collection, array_field, key_field, and parent_field are required",
			Pos:     chVal.Pos(),
		}
	}
	def := spec.Field(child.ArrayField)
	if def == nil {
		return nil, &CompileError{
			Field:   collection + ".children",
			Message: fmt.Sprintf("undeclared array field %q", child.ArrayField),
			Pos:     chVal.Pos(),
		}
	}
	if def.Type != document.FieldArray {
		return nil, &CompileError{
			Field:   collection + ".children",
			Message: fmt.Sprintf("field %q must be an array", child.ArrayField),
			Pos:     chVal.Pos(),
		}
	}
	return &child, nil
}

func optionalBool(v cue.Value, name string) (bool, error) {
	val := v.LookupPath(cue.ParsePath(name))
	if !val.Exists() {
		return false, nil
	}
	b, err := val.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
