package metastore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/kailas-cloud/metastore/internal/db"
	"github.com/kailas-cloud/metastore/query"
)

// Hit is a typed search result.
type Hit[T any] struct {
	ID    string
	Item  T
	Score float64
}

// SearchBuilder is a fluent builder for typed search queries.
type SearchBuilder[T any] struct {
	idx *TypedIndex[T]

	must    []query.Query
	filters []query.Query
	sort    []query.SortField
	from    int
	limit   int
	tenant  string
}

// Match adds a full-text clause on field.
func (b *SearchBuilder[T]) Match(field, text string) *SearchBuilder[T] {
	b.must = append(b.must, &query.Match{Field: field, Text: text})
	return b
}

// Where adds an exact-match filter.
func (b *SearchBuilder[T]) Where(field string, value any) *SearchBuilder[T] {
	b.filters = append(b.filters, &query.Term{Field: field, Value: value})
	return b
}

// Between adds an inclusive numeric range filter. A nil bound is open.
func (b *SearchBuilder[T]) Between(field string, gte, lte any) *SearchBuilder[T] {
	b.filters = append(b.filters, &query.Range{Field: field, GTE: gte, LTE: lte})
	return b
}

// SortBy orders hits by field.
func (b *SearchBuilder[T]) SortBy(field string, desc bool) *SearchBuilder[T] {
	b.sort = append(b.sort, query.SortField{Field: field, Desc: desc})
	return b
}

// Offset skips the first n hits.
func (b *SearchBuilder[T]) Offset(n int) *SearchBuilder[T] {
	b.from = n
	return b
}

// Limit sets the maximum number of results.
func (b *SearchBuilder[T]) Limit(n int) *SearchBuilder[T] {
	b.limit = n
	return b
}

// Tenant sets the caller's tenant. Required when the client runs with
// multi-tenancy.
func (b *SearchBuilder[T]) Tenant(id string) *SearchBuilder[T] {
	b.tenant = id
	return b
}

// Source renders the builder state as a search source.
func (b *SearchBuilder[T]) Source() *query.SearchSource {
	var q query.Query
	switch {
	case len(b.must) == 0 && len(b.filters) == 0:
	case len(b.must) == 1 && len(b.filters) == 0:
		q = b.must[0]
	default:
		q = &query.Bool{Must: b.must, Filter: b.filters}
	}
	src := query.NewSearchSource(q)
	src.From = b.from
	src.Sort = slices.Clone(b.sort)
	if b.limit > 0 {
		src = src.WithSize(b.limit)
	}
	return src
}

// Do executes the search and returns typed hits plus the total match count.
func (b *SearchBuilder[T]) Do(ctx context.Context) ([]Hit[T], int64, error) {
	req, err := NewSearchDataObjectRequest(SearchInput{
		Indices:  []string{b.idx.name},
		Source:   b.Source(),
		TenantID: b.tenant,
	})
	if err != nil {
		return nil, 0, err
	}
	resp, err := b.idx.client.Search(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("search: %w", err)
	}
	return b.toHits(resp)
}

func (b *SearchBuilder[T]) toHits(resp *SearchDataObjectResponse) ([]Hit[T], int64, error) {
	if resp.Content() == nil {
		return []Hit[T]{}, 0, nil
	}
	var res db.SearchResult
	if err := resp.Content().Decode(&res); err != nil {
		return nil, 0, fmt.Errorf("search: decode hits: %w", err)
	}
	hits := make([]Hit[T], 0, len(res.Hits.Hits))
	for _, h := range res.Hits.Hits {
		var item T
		if len(h.Source) > 0 {
			if err := json.Unmarshal(h.Source, &item); err != nil {
				return nil, 0, fmt.Errorf("search: decode hit %s: %w", h.ID, err)
			}
		}
		b.idx.meta.setID(&item, h.ID)
		hit := Hit[T]{ID: h.ID, Item: item}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		hits = append(hits, hit)
	}
	return hits, res.Hits.Total.Value, nil
}
