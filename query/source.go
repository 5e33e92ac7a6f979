package query

import "fmt"

// DefaultSize is the number of hits returned when Size is unset.
const DefaultSize = 10

// SortField orders hits by a document field.
type SortField struct {
	Field string
	Desc  bool
}

// SourceFilter selects which parts of a stored document are returned.
// A zero SourceFilter returns the whole document.
type SourceFilter struct {
	Disabled bool
	Includes []string
	Excludes []string
}

// IsZero reports whether the filter returns the whole document.
func (f *SourceFilter) IsZero() bool {
	return f == nil || (!f.Disabled && len(f.Includes) == 0 && len(f.Excludes) == 0)
}

// SearchSource describes a search: the query plus paging, sorting and
// source projection.
type SearchSource struct {
	Query  Query
	From   int
	Size   *int
	Sort   []SortField
	Source *SourceFilter
}

// NewSearchSource returns a source for q with default paging. A nil clause
// pointer is stored as a nil query.
func NewSearchSource(q Query) *SearchSource {
	if IsNil(q) {
		q = nil
	}
	return &SearchSource{Query: q}
}

// WithSize returns a copy limited to n hits.
func (s *SearchSource) WithSize(n int) *SearchSource {
	c := s.Clone()
	c.Size = &n
	return c
}

// WithFrom returns a copy starting at offset n.
func (s *SearchSource) WithFrom(n int) *SearchSource {
	c := s.Clone()
	c.From = n
	return c
}

// WithSort returns a copy with an extra sort key.
func (s *SearchSource) WithSort(field string, desc bool) *SearchSource {
	c := s.Clone()
	c.Sort = append(c.Sort, SortField{Field: field, Desc: desc})
	return c
}

// WithQuery returns a copy with q as the query.
func (s *SearchSource) WithQuery(q Query) *SearchSource {
	c := s.Clone()
	if IsNil(q) {
		q = nil
	}
	c.Query = q
	return c
}

// EffectiveSize returns Size or DefaultSize when unset.
func (s *SearchSource) EffectiveSize() int {
	if s == nil || s.Size == nil {
		return DefaultSize
	}
	return *s.Size
}

// Clone returns a shallow copy with its own slices. The query tree is shared;
// a nil clause pointer becomes a nil query.
func (s *SearchSource) Clone() *SearchSource {
	if s == nil {
		return &SearchSource{}
	}
	c := *s
	if IsNil(c.Query) {
		c.Query = nil
	}
	if s.Size != nil {
		n := *s.Size
		c.Size = &n
	}
	if s.Sort != nil {
		c.Sort = append([]SortField(nil), s.Sort...)
	}
	if s.Source != nil {
		src := *s.Source
		src.Includes = append([]string(nil), s.Source.Includes...)
		src.Excludes = append([]string(nil), s.Source.Excludes...)
		c.Source = &src
	}
	return &c
}

// Validate checks paging bounds and the query tree.
func (s *SearchSource) Validate() error {
	if s == nil {
		return nil
	}
	if s.From < 0 {
		return fmt.Errorf("from must be non-negative, got %d: %w", s.From, ErrInvalidQuery)
	}
	if s.Size != nil && *s.Size < 0 {
		return fmt.Errorf("size must be non-negative, got %d: %w", *s.Size, ErrInvalidQuery)
	}
	for _, sf := range s.Sort {
		if sf.Field == "" {
			return fmt.Errorf("sort field is required: %w", ErrInvalidQuery)
		}
	}
	return Validate(s.Query)
}
