package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/crewbase/crewbase/internal/document"
)

type filterOp string

const (
	opEq            filterOp = "eq"
	opArrayContains filterOp = "array-contains"
	opToken         filterOp = "token"
)

// Filter constrains a collection scan. Filters combine with AND; the
// record layer never needs OR, joins, or ranges - point lookup plus
// token search is the whole query model.
type Filter struct {
	Field string
	Op    filterOp
	Value any
}

// Eq matches documents whose field equals the value.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: opEq, Value: value}
}

// ArrayContains matches documents whose array field contains the value.
func ArrayContains(field string, value any) Filter {
	return Filter{Field: field, Op: opArrayContains, Value: value}
}

// Token matches documents whose search token map contains the token.
func Token(tok string) Filter {
	return Filter{Field: document.TokensField, Op: opToken, Value: tok}
}

// jsonPath builds a SQLite JSON path for a top-level field name.
func jsonPath(field string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(field)
	return `$."` + escaped + `"`
}

// sql compiles one filter to a WHERE fragment plus bind arguments.
func (f Filter) sql() (string, []any) {
	switch f.Op {
	case opArrayContains:
		return "EXISTS (SELECT 1 FROM json_each(body, ?) WHERE json_each.value = ?)",
			[]any{jsonPath(f.Field), f.Value}
	case opToken:
		return "EXISTS (SELECT 1 FROM json_each(body, ?) WHERE json_each.key = ?)",
			[]any{jsonPath(f.Field), f.Value}
	default:
		return "json_extract(body, ?) = ?", []any{jsonPath(f.Field), f.Value}
	}
}

// Match evaluates a filter against an in-memory record. The feed
// projector uses this so a modified document that leaves the filtered
// set is seen leaving it, not silently retained.
func (f Filter) Match(rec document.Record) bool {
	switch f.Op {
	case opArrayContains:
		for _, v := range rec.Array(f.Field) {
			if looseEqual(v, f.Value) {
				return true
			}
		}
		return false
	case opToken:
		tok, _ := f.Value.(string)
		_, ok := rec.Tokens()[tok]
		return ok
	default:
		return looseEqual(rec.Fields[f.Field], f.Value)
	}
}

// Matches reports whether a record satisfies every filter.
func Matches(rec document.Record, filters ...Filter) bool {
	for _, f := range filters {
		if !f.Match(rec) {
			return false
		}
	}
	return true
}

// looseEqual compares field values across the numeric representations
// JSON decoding produces.
func looseEqual(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	return aok && bok && af == bf
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// querier abstracts *sql.DB and *sql.Tx so the read path is identical
// inside and outside transactions.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get returns a single document by collection and id.
// The second return reports existence; absence is not an error.
func (s *Store) Get(ctx context.Context, collection, id string) (document.Record, bool, error) {
	return getDocument(ctx, s.db, collection, id)
}

// Query returns every document in a collection matching all filters,
// ordered by change seq then id for deterministic results.
func (s *Store) Query(ctx context.Context, collection string, filters ...Filter) ([]document.Record, error) {
	return queryDocuments(ctx, s.db, collection, 0, filters)
}

// QueryLimit is Query with a row cap. The integrity guard uses limit 1
// as a bounded existence probe.
func (s *Store) QueryLimit(ctx context.Context, collection string, limit int, filters ...Filter) ([]document.Record, error) {
	return queryDocuments(ctx, s.db, collection, limit, filters)
}

func getDocument(ctx context.Context, q querier, collection, id string) (document.Record, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, body, created_at, created_by, updated_at, updated_by, seq
		FROM documents
		WHERE collection = ? AND id = ?
	`, collection, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return document.Record{}, false, nil
	}
	if err != nil {
		return document.Record{}, false, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return rec, true, nil
}

func queryDocuments(ctx context.Context, q querier, collection string, limit int, filters []Filter) ([]document.Record, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, body, created_at, created_by, updated_at, updated_by, seq
		FROM documents
		WHERE collection = ?
	`)
	args := []any{collection}
	for _, f := range filters {
		clause, clauseArgs := f.sql()
		sb.WriteString(" AND ")
		sb.WriteString(clause)
		args = append(args, clauseArgs...)
	}
	sb.WriteString(" ORDER BY seq ASC, id ASC")
	if limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []document.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return out, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (document.Record, error) {
	var (
		rec                  document.Record
		body                 string
		createdAt, updatedAt string
	)
	if err := row.Scan(&rec.ID, &body, &createdAt, &rec.CreatedBy, &updatedAt, &rec.UpdatedBy, &rec.Seq); err != nil {
		return document.Record{}, err
	}
	if err := json.Unmarshal([]byte(body), &rec.Fields); err != nil {
		return document.Record{}, fmt.Errorf("decode body: %w", err)
	}
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return document.Record{}, fmt.Errorf("decode created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return document.Record{}, fmt.Errorf("decode updated_at: %w", err)
	}
	return rec, nil
}
