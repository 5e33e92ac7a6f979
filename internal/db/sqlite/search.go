package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/kailas-cloud/metastore/internal/db"
	"github.com/kailas-cloud/metastore/query"
)

// Search runs op over the documents of the named collections. Every hit
// scores 1.0; missing collections contribute no hits.
func (e *Engine) Search(ctx context.Context, op *db.SearchOp) (*db.SearchResult, error) {
	start := time.Now()
	src := op.Source
	if src == nil {
		src = &query.SearchSource{}
	}

	where, args, err := collectionsClause(op.Indices)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	qw, qargs, err := compile(src.Query)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Index: strings.Join(op.Indices, ","), Err: err}
	}
	where += " AND (" + qw + ")"
	args = append(args, qargs...)

	var total int64
	if err := e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE "+where, args...).Scan(&total); err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	res := &db.SearchResult{
		Hits: db.SearchHits{
			Total: db.TotalHits{Value: total, Relation: "eq"},
			Hits:  []db.SearchHit{},
		},
	}
	size := src.EffectiveSize()
	if size > 0 && total > int64(src.From) {
		hits, err := e.fetchHits(ctx, where, args, src, size)
		if err != nil {
			return nil, &db.Error{Op: db.OpSearch, Err: err}
		}
		res.Hits.Hits = hits
	}
	if len(res.Hits.Hits) > 0 && len(src.Sort) == 0 {
		one := 1.0
		res.Hits.MaxScore = &one
	}
	res.Took = time.Since(start).Milliseconds()
	return res, nil
}

func (e *Engine) fetchHits(
	ctx context.Context, where string, args []any, src *query.SearchSource, size int,
) ([]db.SearchHit, error) {
	order := make([]string, 0, len(src.Sort)+1)
	for _, s := range src.Sort {
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		order = append(order, "json_extract(source, ?) "+dir)
		args = append(args, jsonPath(s.Field))
	}
	order = append(order, "rowid")
	args = append(args, size, src.From)

	rows, err := e.db.QueryContext(ctx,
		"SELECT collection, id, source FROM documents WHERE "+where+
			" ORDER BY "+strings.Join(order, ", ")+" LIMIT ? OFFSET ?",
		args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var hits []db.SearchHit
	for rows.Next() {
		var collection, id, source string
		if err := rows.Scan(&collection, &id, &source); err != nil {
			return nil, err
		}
		filtered, err := db.FilterSource([]byte(source), src.Source)
		if err != nil {
			return nil, err
		}
		hit := db.SearchHit{Index: collection, ID: id, Source: filtered}
		if len(src.Sort) == 0 {
			one := 1.0
			hit.Score = &one
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func collectionsClause(indices []string) (string, []any, error) {
	if len(indices) == 0 {
		return "", nil, fmt.Errorf("at least one index is required: %w", db.ErrIndexNotFound)
	}
	parts := make([]string, 0, len(indices))
	args := make([]any, 0, len(indices))
	for _, idx := range indices {
		if idx == "_all" {
			idx = "*"
		}
		parts = append(parts, "collection GLOB ?")
		args = append(args, globPattern(idx))
	}
	return "(" + strings.Join(parts, " OR ") + ")", args, nil
}

// globPattern quotes the GLOB metacharacters of an index expression so
// only '*' acts as a wildcard.
func globPattern(index string) string {
	var b strings.Builder
	for _, r := range index {
		switch r {
		case '?', '[', ']':
			b.WriteByte('[')
			b.WriteRune(r)
			b.WriteByte(']')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// compile translates a query tree into a SQL predicate over the documents table.
func compile(q query.Query) (string, []any, error) {
	switch v := q.(type) {
	case nil, *query.MatchAll:
		return "1", nil, nil
	case *query.Term:
		return "EXISTS (SELECT 1 FROM json_each(source, ?) WHERE value = ?)",
			[]any{jsonPath(v.Field), sqlValue(v.Value)}, nil
	case *query.Terms:
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(v.Values)), ", ")
		args := []any{jsonPath(v.Field)}
		for _, val := range v.Values {
			args = append(args, sqlValue(val))
		}
		return "EXISTS (SELECT 1 FROM json_each(source, ?) WHERE value IN (" + marks + "))", args, nil
	case *query.Match:
		return compileMatch(v)
	case *query.Range:
		return compileRange(v)
	case *query.Exists:
		return "EXISTS (SELECT 1 FROM json_each(source, ?) WHERE type != 'null')",
			[]any{jsonPath(v.Field)}, nil
	case *query.IDs:
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(v.Values)), ", ")
		args := make([]any, 0, len(v.Values))
		for _, id := range v.Values {
			args = append(args, id)
		}
		return "id IN (" + marks + ")", args, nil
	case *query.Bool:
		return compileBool(v)
	default:
		return "", nil, fmt.Errorf("query type %T: %w", q, db.ErrUnsupported)
	}
}

func compileBool(b *query.Bool) (string, []any, error) {
	var parts []string
	var args []any
	add := func(clauses []query.Query, negate bool) error {
		for _, c := range clauses {
			w, a, err := compile(c)
			if err != nil {
				return err
			}
			if negate {
				w = "NOT (" + w + ")"
			} else {
				w = "(" + w + ")"
			}
			parts = append(parts, w)
			args = append(args, a...)
		}
		return nil
	}
	if err := add(b.Must, false); err != nil {
		return "", nil, err
	}
	if err := add(b.Filter, false); err != nil {
		return "", nil, err
	}
	if err := add(b.MustNot, true); err != nil {
		return "", nil, err
	}

	// Should clauses only gate membership when nothing else is required.
	if len(b.Should) > 0 && len(b.Must) == 0 && len(b.Filter) == 0 {
		ors := make([]string, 0, len(b.Should))
		for _, c := range b.Should {
			w, a, err := compile(c)
			if err != nil {
				return "", nil, err
			}
			ors = append(ors, "("+w+")")
			args = append(args, a...)
		}
		parts = append(parts, "("+strings.Join(ors, " OR ")+")")
	}
	if len(parts) == 0 {
		return "1", nil, nil
	}
	return strings.Join(parts, " AND "), args, nil
}

func compileMatch(m *query.Match) (string, []any, error) {
	tokens := tokenize(m.Text)
	if len(tokens) == 0 {
		return "0", nil, nil
	}
	ors := make([]string, 0, len(tokens))
	args := []any{jsonPath(m.Field)}
	for _, tok := range tokens {
		ors = append(ors, `lower(CAST(value AS TEXT)) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(tok)+"%")
	}
	return "EXISTS (SELECT 1 FROM json_each(source, ?) WHERE " + strings.Join(ors, " OR ") + ")", args, nil
}

func compileRange(r *query.Range) (string, []any, error) {
	conds := []string{}
	args := []any{jsonPath(r.Field)}
	var typeGuard string
	bound := func(op string, v any) {
		if v == nil {
			return
		}
		conds = append(conds, "value "+op+" ?")
		args = append(args, sqlValue(v))
		if _, isText := v.(string); isText {
			typeGuard = "type = 'text'"
		} else {
			typeGuard = "type IN ('integer', 'real')"
		}
	}
	bound(">", r.GT)
	bound(">=", r.GTE)
	bound("<", r.LT)
	bound("<=", r.LTE)
	conds = append([]string{typeGuard}, conds...)
	return "EXISTS (SELECT 1 FROM json_each(source, ?) WHERE " + strings.Join(conds, " AND ") + ")", args, nil
}

// jsonPath builds a SQLite JSON path for a dotted field name.
func jsonPath(field string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range strings.Split(field, ".") {
		b.WriteString(`."`)
		b.WriteString(strings.ReplaceAll(seg, `"`, `\"`))
		b.WriteString(`"`)
	}
	return b.String()
}

func sqlValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
