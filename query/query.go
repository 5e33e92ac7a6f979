// Package query is the structured query description sent to the engine.
//
// A Query is a tree of clauses mirroring the engine's JSON query DSL:
// bool combinators over leaf clauses (term, terms, match, range, exists,
// ids, match_all). Values are plain Go values (string, bool, int64,
// float64); trees are treated as immutable once handed to a request.
package query

import (
	"errors"
	"fmt"
	"sort"
)

// Kind names a clause type as it appears in the JSON DSL.
type Kind string

// Supported clause kinds.
const (
	KindMatchAll Kind = "match_all"
	KindBool     Kind = "bool"
	KindTerm     Kind = "term"
	KindTerms    Kind = "terms"
	KindMatch    Kind = "match"
	KindRange    Kind = "range"
	KindExists   Kind = "exists"
	KindIDs      Kind = "ids"
)

// MaxClausesPerGroup is the maximum number of clauses in one bool group.
const MaxClausesPerGroup = 1024

// ErrInvalidQuery signals a malformed query tree or DSL document.
var ErrInvalidQuery = errors.New("invalid query")

// Query is a node of the query tree. The set of implementations is closed.
type Query interface {
	Kind() Kind
	validate() error
}

// MatchAll matches every document.
type MatchAll struct{}

// Kind implements Query.
func (*MatchAll) Kind() Kind { return KindMatchAll }

func (*MatchAll) validate() error { return nil }

// Term is an exact match on a single field value.
type Term struct {
	Field string
	Value any
}

// Kind implements Query.
func (*Term) Kind() Kind { return KindTerm }

func (q *Term) validate() error {
	if q.Field == "" {
		return fmt.Errorf("term: field is required: %w", ErrInvalidQuery)
	}
	return validateScalar("term", q.Field, q.Value)
}

// Terms matches documents whose field equals any of the values.
type Terms struct {
	Field  string
	Values []any
}

// Kind implements Query.
func (*Terms) Kind() Kind { return KindTerms }

func (q *Terms) validate() error {
	if q.Field == "" {
		return fmt.Errorf("terms: field is required: %w", ErrInvalidQuery)
	}
	if len(q.Values) == 0 {
		return fmt.Errorf("terms %q: at least one value is required: %w", q.Field, ErrInvalidQuery)
	}
	for _, v := range q.Values {
		if err := validateScalar("terms", q.Field, v); err != nil {
			return err
		}
	}
	return nil
}

// Match is a full-text match of any of the words in Text.
type Match struct {
	Field string
	Text  string
}

// Kind implements Query.
func (*Match) Kind() Kind { return KindMatch }

func (q *Match) validate() error {
	if q.Field == "" {
		return fmt.Errorf("match: field is required: %w", ErrInvalidQuery)
	}
	return nil
}

// Range bounds a field. Nil bounds are open.
type Range struct {
	Field string
	GT    any
	GTE   any
	LT    any
	LTE   any
}

// Kind implements Query.
func (*Range) Kind() Kind { return KindRange }

func (q *Range) validate() error {
	if q.Field == "" {
		return fmt.Errorf("range: field is required: %w", ErrInvalidQuery)
	}
	if q.GT == nil && q.GTE == nil && q.LT == nil && q.LTE == nil {
		return fmt.Errorf("range %q: at least one bound is required: %w", q.Field, ErrInvalidQuery)
	}
	if q.GT != nil && q.GTE != nil {
		return fmt.Errorf("range %q: cannot specify both gt and gte: %w", q.Field, ErrInvalidQuery)
	}
	if q.LT != nil && q.LTE != nil {
		return fmt.Errorf("range %q: cannot specify both lt and lte: %w", q.Field, ErrInvalidQuery)
	}
	for _, b := range []any{q.GT, q.GTE, q.LT, q.LTE} {
		if b == nil {
			continue
		}
		if err := validateScalar("range", q.Field, b); err != nil {
			return err
		}
	}
	return nil
}

// Exists matches documents with a non-null value for Field.
type Exists struct {
	Field string
}

// Kind implements Query.
func (*Exists) Kind() Kind { return KindExists }

func (q *Exists) validate() error {
	if q.Field == "" {
		return fmt.Errorf("exists: field is required: %w", ErrInvalidQuery)
	}
	return nil
}

// IDs matches documents by id.
type IDs struct {
	Values []string
}

// Kind implements Query.
func (*IDs) Kind() Kind { return KindIDs }

func (q *IDs) validate() error {
	if len(q.Values) == 0 {
		return fmt.Errorf("ids: at least one value is required: %w", ErrInvalidQuery)
	}
	return nil
}

// Bool combines clauses. Must and Should contribute to scoring, Filter and
// MustNot only restrict membership. When neither Must nor Filter is set at
// least one Should clause has to match.
type Bool struct {
	Must    []Query
	Filter  []Query
	Should  []Query
	MustNot []Query
}

// Kind implements Query.
func (*Bool) Kind() Kind { return KindBool }

func (q *Bool) validate() error {
	groups := []struct {
		name    string
		clauses []Query
	}{
		{"must", q.Must}, {"filter", q.Filter}, {"should", q.Should}, {"must_not", q.MustNot},
	}
	for _, g := range groups {
		if len(g.clauses) > MaxClausesPerGroup {
			return fmt.Errorf("bool: too many %s clauses (max %d): %w", g.name, MaxClausesPerGroup, ErrInvalidQuery)
		}
		for _, c := range g.clauses {
			if IsNil(c) {
				return fmt.Errorf("bool: nil %s clause: %w", g.name, ErrInvalidQuery)
			}
			if err := c.validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsEmpty reports whether the bool query has no clauses.
func (q *Bool) IsEmpty() bool {
	return len(q.Must) == 0 && len(q.Filter) == 0 && len(q.Should) == 0 && len(q.MustNot) == 0
}

// Clone returns a copy with its own clause slices. Clauses are shared.
func (q *Bool) Clone() *Bool {
	return &Bool{
		Must:    cloneClauses(q.Must),
		Filter:  cloneClauses(q.Filter),
		Should:  cloneClauses(q.Should),
		MustNot: cloneClauses(q.MustNot),
	}
}

func cloneClauses(in []Query) []Query {
	if in == nil {
		return nil
	}
	out := make([]Query, len(in))
	copy(out, in)
	return out
}

// Validate checks a query tree. A nil query, including a nil pointer of a
// clause type, is valid and means match all.
func Validate(q Query) error {
	if IsNil(q) {
		return nil
	}
	return q.validate()
}

// IsNil reports whether q is nil or a nil pointer of one of the clause
// types.
func IsNil(q Query) bool {
	switch v := q.(type) {
	case nil:
		return true
	case *MatchAll:
		return v == nil
	case *Bool:
		return v == nil
	case *Term:
		return v == nil
	case *Terms:
		return v == nil
	case *Match:
		return v == nil
	case *Range:
		return v == nil
	case *Exists:
		return v == nil
	case *IDs:
		return v == nil
	default:
		return false
	}
}

// Fields returns the sorted set of field names referenced by q.
func Fields(q Query) []string {
	seen := make(map[string]struct{})
	collectFields(q, seen)
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func collectFields(q Query, seen map[string]struct{}) {
	switch v := q.(type) {
	case *Term:
		seen[v.Field] = struct{}{}
	case *Terms:
		seen[v.Field] = struct{}{}
	case *Match:
		seen[v.Field] = struct{}{}
	case *Range:
		seen[v.Field] = struct{}{}
	case *Exists:
		seen[v.Field] = struct{}{}
	case *Bool:
		for _, group := range [][]Query{v.Must, v.Filter, v.Should, v.MustNot} {
			for _, c := range group {
				collectFields(c, seen)
			}
		}
	}
}

func validateScalar(kind, field string, v any) error {
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return nil
	default:
		return fmt.Errorf("%s %q: unsupported value type %T: %w", kind, field, v, ErrInvalidQuery)
	}
}
