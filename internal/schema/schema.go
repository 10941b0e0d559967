// Package schema holds the static collection declarations the record
// layer is driven by: field tables, autonumbering, soft delete, search
// fields, has-many guards, and embedded-child relations.
//
// Declarations are data, not behavior. They are written as CUE field
// tables and compiled by internal/compiler; entity-specific behavior
// (validation beyond the field table, related-record fetches) attaches
// separately as hooks in internal/record.
package schema

import (
	"fmt"
	"strings"

	"github.com/crewbase/crewbase/internal/document"
)

// MatchMode selects how a has-many probe matches dependents.
type MatchMode string

const (
	// MatchEquals matches dependents whose declared field equals the
	// record's identifier.
	MatchEquals MatchMode = "equals"

	// MatchArrayContains matches dependents whose declared array field
	// contains the record's identifier.
	MatchArrayContains MatchMode = "array-contains"
)

// ValidMatchModes defines the allowed match modes.
var ValidMatchModes = map[MatchMode]bool{
	MatchEquals:        true,
	MatchArrayContains: true,
}

// HasManyDecl blocks deletion of a record whose identifier is still
// referenced by at least one document in the declared collection.
type HasManyDecl struct {
	Collection string    `json:"collection"`
	Field      string    `json:"field"`
	Match      MatchMode `json:"match"`
}

// AutoNumber declares that creates against the collection draw a
// zero-padded sequential code from the counter service.
type AutoNumber struct {
	// Field receives the formatted code on the new record.
	Field string `json:"field"`

	// Length is the digit length of the formatted code. Exhaustion is a
	// terminal error, never a wrap.
	Length int `json:"length"`
}

// SoftDelete declares that deletion flips a status field instead of
// removing the document.
type SoftDelete struct {
	Field        string `json:"field"`
	DeletedValue string `json:"deleted_value"`
}

// CompoundKey declares a fixed identifier assembled from field values at
// create time, joined by "-". The embedded fields become immutable: an
// update that changes any of them is rejected.
type CompoundKey struct {
	Fields []string `json:"fields"`
}

// ID assembles the compound identifier from a field map.
func (k *CompoundKey) ID(fields document.Fields) (string, error) {
	parts := make([]string, 0, len(k.Fields))
	for _, f := range k.Fields {
		s, _ := fields[f].(string)
		if s == "" {
			return "", fmt.Errorf("compound key field %q is empty", f)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "-"), nil
}

// ChildSpec declares an embedded-child relation: a logical one-to-many
// persisted twice, as an array field on the parent and as independent
// shadow documents keyed "${parentId}-${childKey}".
type ChildSpec struct {
	// Collection names the shadow collection.
	Collection string `json:"collection"`

	// ArrayField is the parent field holding the embedded array.
	ArrayField string `json:"array_field"`

	// KeyField is the entry key within each array element.
	KeyField string `json:"key_field"`

	// ParentField is the shadow field holding the parent identifier.
	ParentField string `json:"parent_field"`
}

// ShadowID returns the shadow document key for one array entry.
func (c *ChildSpec) ShadowID(parentID, childKey string) string {
	return parentID + "-" + childKey
}

// CollectionSpec is the full static declaration of one entity type.
type CollectionSpec struct {
	// Name is the physical collection name.
	Name string `json:"name"`

	// Fields is the declared field table, in declaration order.
	Fields []document.FieldDef `json:"fields"`

	// Key, when set, derives fixed identifiers from field values.
	Key *CompoundKey `json:"key,omitempty"`

	// AutoNumber, when set, enables sequential code allocation.
	AutoNumber *AutoNumber `json:"autonumber,omitempty"`

	// SoftDelete, when set, turns deletes into a status flip.
	SoftDelete *SoftDelete `json:"soft_delete,omitempty"`

	// SearchFields lists the fields feeding the token map, in order.
	SearchFields []string `json:"search_fields,omitempty"`

	// HasMany lists the delete guards.
	HasMany []HasManyDecl `json:"has_many,omitempty"`

	// Children, when set, declares the embedded-child relation kept in
	// sync by fan-out reconciliation.
	Children *ChildSpec `json:"children,omitempty"`
}

// Field returns the declaration of a named field, or nil.
func (s *CollectionSpec) Field(name string) *document.FieldDef {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// SearchValues extracts the indexed field values of a field map in
// declaration order.
func (s *CollectionSpec) SearchValues(fields document.Fields) []string {
	vals := make([]string, 0, len(s.SearchFields))
	for _, name := range s.SearchFields {
		if v, ok := fields[name].(string); ok {
			vals = append(vals, v)
		}
	}
	return vals
}

// Registry maps collection names to their declarations.
type Registry map[string]*CollectionSpec

// Register adds a declaration. Duplicate names are an error: two
// declarations for one physical collection would disagree about
// coercion and guards.
func (r Registry) Register(spec *CollectionSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("collection declaration missing name")
	}
	if _, ok := r[spec.Name]; ok {
		return fmt.Errorf("duplicate collection declaration %q", spec.Name)
	}
	r[spec.Name] = spec
	return nil
}

// Lookup returns the declaration for a collection name.
func (r Registry) Lookup(name string) (*CollectionSpec, error) {
	spec, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", name)
	}
	return spec, nil
}
