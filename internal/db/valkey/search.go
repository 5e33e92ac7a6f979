package valkey

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/metastore/internal/db"
	"github.com/kailas-cloud/metastore/query"
)

const allIndices = "_all"

// Search runs FT.SEARCH against the index of each collection and
// concatenates the results in collection order. Collections without an
// index contribute no hits. Sorting is limited to one field within a single
// collection.
func (s *Store) Search(ctx context.Context, op *db.SearchOp) (*db.SearchResult, error) {
	if len(op.Indices) == 0 {
		return nil, &db.Error{Op: db.OpSearch, Err: db.ErrIndexNotFound}
	}
	target := strings.Join(op.Indices, ",")
	src := op.Source
	if src == nil {
		src = query.NewSearchSource(nil)
	}
	if err := src.Validate(); err != nil {
		return nil, &db.Error{Op: db.OpSearch, Index: target, Err: err}
	}
	start := time.Now()

	collections, err := s.resolveCollections(ctx, op.Indices)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Index: target, Err: err}
	}
	qs, err := buildQuery(src.Query)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Index: target, Err: err}
	}
	if len(src.Sort) > 1 || (len(src.Sort) == 1 && len(collections) > 1) {
		return nil, &db.Error{Op: db.OpSearch, Index: target,
			Err: fmt.Errorf("sort over %d fields and %d collections: %w", len(src.Sort), len(collections), db.ErrUnsupported)}
	}

	from, size := src.From, src.EffectiveSize()
	out := &db.SearchResult{Hits: db.SearchHits{
		Total: db.TotalHits{Relation: "eq"},
		Hits:  []db.SearchHit{},
	}}
	if len(collections) == 0 {
		out.Took = time.Since(start).Milliseconds()
		return out, nil
	}

	cmds := make(rueidis.Commands, 0, len(collections))
	for _, c := range collections {
		cmds = append(cmds, s.searchCmd(c, qs, from+size, src.Sort))
	}
	var hits []db.SearchHit
	for i, resp := range s.client.DoMulti(ctx, cmds...) {
		raw, err := resp.ToArray()
		if err != nil {
			if isRedisErr(err, "unknown index") || isRedisErr(err, "no such index") {
				continue
			}
			return nil, &db.Error{Op: db.OpSearch, Index: target, Err: err}
		}
		total, page, err := s.parseSearchResult(raw, collections[i], src.Source, len(src.Sort) == 0)
		if err != nil {
			return nil, &db.Error{Op: db.OpSearch, Index: target, Err: err}
		}
		out.Hits.Total.Value += total
		hits = append(hits, page...)
	}

	if from < len(hits) {
		hits = hits[from:min(len(hits), from+size)]
		out.Hits.Hits = hits
	}
	if len(out.Hits.Hits) > 0 && len(src.Sort) == 0 {
		one := 1.0
		out.Hits.MaxScore = &one
	}
	out.Took = time.Since(start).Milliseconds()
	return out, nil
}

func (s *Store) searchCmd(collection, qs string, limit int, sortBy []query.SortField) rueidis.Completed {
	args := []string{s.IndexName(collection), qs, "RETURN", "1", "$"}
	if len(sortBy) == 1 {
		dir := "ASC"
		if sortBy[0].Desc {
			dir = "DESC"
		}
		args = append(args, "SORTBY", attr(sortBy[0].Field), dir)
	}
	args = append(args, "LIMIT", "0", strconv.Itoa(limit), "DIALECT", "2")
	return s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
}

// resolveCollections expands "_all" and wildcard patterns against FT._LIST.
func (s *Store) resolveCollections(ctx context.Context, indices []string) ([]string, error) {
	var names []string
	seen := make(map[string]struct{}, len(indices))
	add := func(c string) {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			names = append(names, c)
		}
	}
	var known []string
	for _, idx := range indices {
		if idx != allIndices && !strings.Contains(idx, "*") {
			add(idx)
			continue
		}
		if known == nil {
			var err error
			if known, err = s.listCollections(ctx); err != nil {
				return nil, err
			}
		}
		pattern := idx
		if idx == allIndices {
			pattern = "*"
		}
		for _, c := range known {
			if ok, _ := path.Match(pattern, c); ok {
				add(c)
			}
		}
	}
	return names, nil
}

func (s *Store) listCollections(ctx context.Context) ([]string, error) {
	list, err := s.do(ctx, s.b().Arbitrary("FT._LIST").Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("list indices: %w", err)
	}
	prefix := s.prefix + "idx:"
	out := make([]string, 0, len(list))
	for _, name := range list {
		if c, ok := strings.CutPrefix(name, prefix); ok {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out, nil
}

// parseSearchResult decodes [total, key1, ["$", json1], key2, ...].
func (s *Store) parseSearchResult(
	raw []rueidis.RedisMessage, collection string, filter *query.SourceFilter, scored bool,
) (int64, []db.SearchHit, error) {
	if len(raw) == 0 {
		return 0, nil, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, nil, fmt.Errorf("parse total: %w", err)
	}

	hits := make([]db.SearchHit, 0, (len(raw)-1)/2)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		doc, ok := parseFieldPairs(fields)["$"]
		if !ok {
			continue
		}
		src, err := db.FilterSource([]byte(doc), filter)
		if err != nil {
			return 0, nil, err
		}
		hit := db.SearchHit{Index: collection, ID: s.idFromKey(collection, key), Source: src}
		if scored {
			one := 1.0
			hit.Score = &one
		}
		hits = append(hits, hit)
	}
	return total, hits, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}
