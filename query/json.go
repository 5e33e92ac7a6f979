package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// MarshalJSON renders {"match_all":{}}.
func (q *MatchAll) MarshalJSON() ([]byte, error) {
	return []byte(`{"match_all":{}}`), nil
}

// MarshalJSON renders {"term":{field:{"value":v}}}.
func (q *Term) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"term": map[string]any{q.Field: map[string]any{"value": q.Value}},
	})
}

// MarshalJSON renders {"terms":{field:[...]}}.
func (q *Terms) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"terms": map[string]any{q.Field: q.Values},
	})
}

// MarshalJSON renders {"match":{field:{"query":text}}}.
func (q *Match) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"match": map[string]any{q.Field: map[string]any{"query": q.Text}},
	})
}

// MarshalJSON renders {"range":{field:{bounds}}}.
func (q *Range) MarshalJSON() ([]byte, error) {
	bounds := make(map[string]any, 2)
	if q.GT != nil {
		bounds["gt"] = q.GT
	}
	if q.GTE != nil {
		bounds["gte"] = q.GTE
	}
	if q.LT != nil {
		bounds["lt"] = q.LT
	}
	if q.LTE != nil {
		bounds["lte"] = q.LTE
	}
	return json.Marshal(map[string]any{
		"range": map[string]any{q.Field: bounds},
	})
}

// MarshalJSON renders {"exists":{"field":f}}.
func (q *Exists) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"exists": map[string]string{"field": q.Field},
	})
}

// MarshalJSON renders {"ids":{"values":[...]}}.
func (q *IDs) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"ids": map[string][]string{"values": q.Values},
	})
}

type boolBody struct {
	Must    []Query `json:"must,omitempty"`
	Filter  []Query `json:"filter,omitempty"`
	Should  []Query `json:"should,omitempty"`
	MustNot []Query `json:"must_not,omitempty"`
}

// MarshalJSON renders {"bool":{...}} omitting empty groups.
func (q *Bool) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]boolBody{
		"bool": {Must: q.Must, Filter: q.Filter, Should: q.Should, MustNot: q.MustNot},
	})
}

type sourceJSON struct {
	Query  Query            `json:"query,omitempty"`
	From   int              `json:"from,omitempty"`
	Size   *int             `json:"size,omitempty"`
	Sort   []map[string]any `json:"sort,omitempty"`
	Source any              `json:"_source,omitempty"`
}

// MarshalJSON renders the search body in the engine DSL.
func (s *SearchSource) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	out := sourceJSON{Query: s.Query, From: s.From, Size: s.Size}
	for _, sf := range s.Sort {
		order := "asc"
		if sf.Desc {
			order = "desc"
		}
		out.Sort = append(out.Sort, map[string]any{sf.Field: map[string]string{"order": order}})
	}
	if s.Source != nil && !s.Source.IsZero() {
		if s.Source.Disabled {
			out.Source = false
		} else {
			out.Source = map[string][]string{
				"includes": nonNil(s.Source.Includes),
				"excludes": nonNil(s.Source.Excludes),
			}
		}
	}
	return json.Marshal(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Parse decodes a single query clause from the engine DSL.
func Parse(data []byte) (Query, error) {
	v, err := decode(data)
	if err != nil {
		return nil, err
	}
	q, err := parseClause(v)
	if err != nil {
		return nil, err
	}
	if err := q.validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// ParseSearchSource decodes a search body. An empty body means match all.
func ParseSearchSource(data []byte) (*SearchSource, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &SearchSource{}, nil
	}
	v, err := decode(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("search body must be an object: %w", ErrInvalidQuery)
	}

	src := &SearchSource{}
	for key, raw := range obj {
		switch key {
		case "query":
			q, err := parseClause(raw)
			if err != nil {
				return nil, err
			}
			src.Query = q
		case "from":
			n, err := toInt(key, raw)
			if err != nil {
				return nil, err
			}
			src.From = n
		case "size":
			n, err := toInt(key, raw)
			if err != nil {
				return nil, err
			}
			src.Size = &n
		case "sort":
			sorts, err := parseSort(raw)
			if err != nil {
				return nil, err
			}
			src.Sort = sorts
		case "_source":
			f, err := parseSourceFilter(raw)
			if err != nil {
				return nil, err
			}
			src.Source = f
		default:
			return nil, fmt.Errorf("unsupported search key %q: %w", key, ErrInvalidQuery)
		}
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	return src, nil
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode query: %v: %w", err, ErrInvalidQuery)
	}
	return normalize(v), nil
}

// normalize converts json.Number leaves to int64 or float64.
func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	default:
		return v
	}
}

func parseClause(v any) (Query, error) {
	obj, ok := v.(map[string]any)
	if !ok || len(obj) != 1 {
		return nil, fmt.Errorf("query clause must be an object with exactly one key: %w", ErrInvalidQuery)
	}
	for kind, body := range obj {
		switch Kind(kind) {
		case KindMatchAll:
			return &MatchAll{}, nil
		case KindBool:
			return parseBool(body)
		case KindTerm:
			field, inner, err := singleField(kind, body)
			if err != nil {
				return nil, err
			}
			return &Term{Field: field, Value: unwrapValue(inner, "value")}, nil
		case KindTerms:
			field, inner, err := singleField(kind, body)
			if err != nil {
				return nil, err
			}
			vals, ok := inner.([]any)
			if !ok {
				return nil, fmt.Errorf("terms %q: values must be an array: %w", field, ErrInvalidQuery)
			}
			return &Terms{Field: field, Values: vals}, nil
		case KindMatch:
			field, inner, err := singleField(kind, body)
			if err != nil {
				return nil, err
			}
			text, ok := unwrapValue(inner, "query").(string)
			if !ok {
				return nil, fmt.Errorf("match %q: query must be a string: %w", field, ErrInvalidQuery)
			}
			return &Match{Field: field, Text: text}, nil
		case KindRange:
			return parseRange(body)
		case KindExists:
			m, ok := body.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("exists: body must be an object: %w", ErrInvalidQuery)
			}
			field, _ := m["field"].(string)
			return &Exists{Field: field}, nil
		case KindIDs:
			m, ok := body.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("ids: body must be an object: %w", ErrInvalidQuery)
			}
			raw, _ := m["values"].([]any)
			ids := make([]string, 0, len(raw))
			for _, r := range raw {
				s, ok := r.(string)
				if !ok {
					return nil, fmt.Errorf("ids: values must be strings: %w", ErrInvalidQuery)
				}
				ids = append(ids, s)
			}
			return &IDs{Values: ids}, nil
		default:
			return nil, fmt.Errorf("unsupported query type %q: %w", kind, ErrInvalidQuery)
		}
	}
	return nil, ErrInvalidQuery
}

func parseBool(body any) (Query, error) {
	m, ok := body.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("bool: body must be an object: %w", ErrInvalidQuery)
	}
	b := &Bool{}
	// Deterministic iteration keeps error messages stable.
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		clauses, err := parseClauses(k, m[k])
		if err != nil {
			return nil, err
		}
		switch k {
		case "must":
			b.Must = clauses
		case "filter":
			b.Filter = clauses
		case "should":
			b.Should = clauses
		case "must_not":
			b.MustNot = clauses
		}
	}
	return b, nil
}

func parseClauses(group string, v any) ([]Query, error) {
	switch group {
	case "must", "filter", "should", "must_not":
	default:
		return nil, fmt.Errorf("bool: unsupported key %q: %w", group, ErrInvalidQuery)
	}
	items, ok := v.([]any)
	if !ok {
		items = []any{v}
	}
	out := make([]Query, 0, len(items))
	for _, it := range items {
		q, err := parseClause(it)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func parseRange(body any) (Query, error) {
	field, inner, err := singleField(string(KindRange), body)
	if err != nil {
		return nil, err
	}
	bounds, ok := inner.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("range %q: bounds must be an object: %w", field, ErrInvalidQuery)
	}
	r := &Range{Field: field}
	for k, v := range bounds {
		switch k {
		case "gt":
			r.GT = v
		case "gte":
			r.GTE = v
		case "lt":
			r.LT = v
		case "lte":
			r.LTE = v
		default:
			return nil, fmt.Errorf("range %q: unsupported bound %q: %w", field, k, ErrInvalidQuery)
		}
	}
	return r, nil
}

func parseSort(v any) ([]SortField, error) {
	items, ok := v.([]any)
	if !ok {
		items = []any{v}
	}
	out := make([]SortField, 0, len(items))
	for _, it := range items {
		switch t := it.(type) {
		case string:
			out = append(out, SortField{Field: t})
		case map[string]any:
			for field, spec := range t {
				sf := SortField{Field: field}
				switch o := spec.(type) {
				case string:
					sf.Desc = strings.EqualFold(o, "desc")
				case map[string]any:
					order, _ := o["order"].(string)
					sf.Desc = strings.EqualFold(order, "desc")
				}
				out = append(out, sf)
			}
		default:
			return nil, fmt.Errorf("sort: unsupported entry %T: %w", it, ErrInvalidQuery)
		}
	}
	return out, nil
}

func parseSourceFilter(v any) (*SourceFilter, error) {
	switch t := v.(type) {
	case bool:
		return &SourceFilter{Disabled: !t}, nil
	case string:
		return &SourceFilter{Includes: []string{t}}, nil
	case []any:
		inc, err := toStrings("_source", t)
		if err != nil {
			return nil, err
		}
		return &SourceFilter{Includes: inc}, nil
	case map[string]any:
		f := &SourceFilter{}
		if raw, ok := t["includes"].([]any); ok {
			inc, err := toStrings("_source.includes", raw)
			if err != nil {
				return nil, err
			}
			f.Includes = inc
		}
		if raw, ok := t["excludes"].([]any); ok {
			exc, err := toStrings("_source.excludes", raw)
			if err != nil {
				return nil, err
			}
			f.Excludes = exc
		}
		return f, nil
	default:
		return nil, fmt.Errorf("_source: unsupported value %T: %w", v, ErrInvalidQuery)
	}
}

func singleField(kind string, body any) (string, any, error) {
	m, ok := body.(map[string]any)
	if !ok || len(m) != 1 {
		return "", nil, fmt.Errorf("%s: body must name exactly one field: %w", kind, ErrInvalidQuery)
	}
	for f, v := range m {
		return f, v, nil
	}
	return "", nil, ErrInvalidQuery
}

// unwrapValue accepts both {"field": v} and {"field": {key: v}} forms.
func unwrapValue(v any, key string) any {
	if m, ok := v.(map[string]any); ok {
		return m[key]
	}
	return v
}

func toInt(key string, v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case float64:
		if n == math.Trunc(n) {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("%s must be an integer: %w", key, ErrInvalidQuery)
}

func toStrings(key string, in []any) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, v := range in {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s: values must be strings: %w", key, ErrInvalidQuery)
		}
		out = append(out, s)
	}
	return out, nil
}
