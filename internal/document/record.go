package document

import "time"

// TokensField is the reserved body key holding the derived search token
// map. It is written by the record layer on every mutation and is never
// caller-supplied; reserved keys (leading underscore) are rejected as
// field names by the declaration compiler.
const TokensField = "_tokens"

// Record is one keyed document in one collection.
type Record struct {
	// ID is the document key. Immutable after create.
	ID string `json:"id"`

	// Fields is the document body, constrained by the collection's
	// field table.
	Fields Fields `json:"fields"`

	// CreatedAt and CreatedBy are stamped once at create and excluded
	// from every later write.
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`

	// UpdatedAt and UpdatedBy are re-stamped on every write.
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`

	// Seq is the store-assigned change sequence of the last write.
	// Feed consumers order deltas by it.
	Seq int64 `json:"seq"`
}

// String returns the string value of a field, or "" when absent or
// differently typed.
func (r Record) String(field string) string {
	s, _ := r.Fields[field].(string)
	return s
}

// Int returns the integer value of a field, or 0.
func (r Record) Int(field string) int64 {
	switch n := r.Fields[field].(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// Decimal returns the numeric value of a field, or 0.
func (r Record) Decimal(field string) float64 {
	switch n := r.Fields[field].(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// Array returns the array value of a field, or nil.
func (r Record) Array(field string) []any {
	a, _ := r.Fields[field].([]any)
	return a
}

// Map returns the map value of a field, or nil.
func (r Record) Map(field string) map[string]any {
	m, _ := r.Fields[field].(map[string]any)
	return m
}

// Tokens returns the derived search token map, or nil when the record
// has no indexed fields.
func (r Record) Tokens() map[string]any {
	return r.Map(TokensField)
}
