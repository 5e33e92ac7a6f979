package metastore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"testing"

	"github.com/kailas-cloud/metastore/async"
	"github.com/kailas-cloud/metastore/internal/db"
	"github.com/kailas-cloud/metastore/query"
)

func mustPut(t *testing.T, in PutInput) *PutDataObjectRequest {
	t.Helper()
	r, err := NewPutDataObjectRequest(in)
	if err != nil {
		t.Fatalf("NewPutDataObjectRequest: %v", err)
	}
	return r
}

func mustGet(t *testing.T, index, id string) *GetDataObjectRequest {
	t.Helper()
	r, err := NewGetDataObjectRequest(GetInput{Index: index, ID: id})
	if err != nil {
		t.Fatalf("NewGetDataObjectRequest: %v", err)
	}
	return r
}

func mustSearch(t *testing.T, in SearchInput) *SearchDataObjectRequest {
	t.Helper()
	r, err := NewSearchDataObjectRequest(in)
	if err != nil {
		t.Fatalf("NewSearchDataObjectRequest: %v", err)
	}
	return r
}

func int64Ptr(v int64) *int64 { return &v }

func TestWidgetsScenario(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	first, err := c.Put(ctx, mustPut(t, PutInput{
		Index: "widgets", ID: "1", DataObject: map[string]any{"name": "a"},
	}))
	if err != nil {
		t.Fatalf("first put: %v", err)
	}
	if first.ID() != "1" || first.Failed() {
		t.Fatalf("first put: id=%q failed=%v", first.ID(), first.Failed())
	}
	if first.Result() != ResultCreated {
		t.Errorf("result = %q, want created", first.Result())
	}

	_, err = c.Put(ctx, mustPut(t, PutInput{
		Index: "widgets", ID: "1", DataObject: map[string]any{"name": "a"},
	}))
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("second put: err = %v, want ErrVersionConflict", err)
	}
	if StatusOf(err) != http.StatusConflict {
		t.Errorf("status = %d, want 409", StatusOf(err))
	}
	if !errors.Is(err, db.ErrVersionConflict) {
		t.Error("engine cause should stay reachable")
	}

	if _, err := c.Put(ctx, mustPut(t, PutInput{
		Index: "widgets", ID: "1", DataObject: map[string]any{"name": "b"}, OverwriteIfExists: true,
	})); err != nil {
		t.Fatalf("overwrite put: %v", err)
	}

	got, err := c.Get(ctx, mustGet(t, "widgets", "1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Found() {
		t.Fatal("document not found")
	}
	if name := got.Source()["name"]; name != "b" {
		t.Errorf("name = %v, want b", name)
	}
	if got.Version() != 2 {
		t.Errorf("version = %d, want 2", got.Version())
	}
}

func TestPutGet_RoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	obj := map[string]any{
		"name":  "gear",
		"price": 12.5,
		"tags":  []any{"metal", "round"},
		"dims":  map[string]any{"w": float64(3), "h": float64(4)},
	}
	if _, err := c.Put(ctx, mustPut(t, PutInput{Index: "widgets", ID: "x", DataObject: obj})); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := c.Get(ctx, mustGet(t, "widgets", "x"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(got.Source(), obj) {
		t.Errorf("source = %v, want %v", got.Source(), obj)
	}
	// Parsed once, readable many times.
	if _, err := got.Content().Map(); err != nil {
		t.Fatalf("content map: %v", err)
	}
	if !reflect.DeepEqual(got.Source(), obj) {
		t.Error("second read differs")
	}
}

type gadget struct {
	Name string
}

func (g gadget) ToContent() ([]byte, error) {
	return json.Marshal(map[string]string{"gadget_name": g.Name})
}

func TestPut_ContentMarshaler(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if _, err := c.Put(ctx, mustPut(t, PutInput{Index: "gadgets", ID: "g", DataObject: gadget{Name: "probe"}})); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := c.Get(ctx, mustGet(t, "gadgets", "g"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Source()["gadget_name"] != "probe" {
		t.Errorf("source = %v", got.Source())
	}
}

func TestPut_SerializationFailure(t *testing.T) {
	e := &mockEngine{}
	c := newMockClient(t, e)

	tests := []struct {
		name string
		obj  any
	}{
		{"unmarshalable", map[string]any{"ch": make(chan int)}},
		{"not an object", json.RawMessage(`[1,2]`)},
		{"invalid json", []byte(`{"a":`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Put(context.Background(), mustPut(t, PutInput{Index: "widgets", ID: "1", DataObject: tt.obj}))
			if !errors.Is(err, ErrSerialization) {
				t.Fatalf("err = %v, want ErrSerialization", err)
			}
			if StatusOf(err) != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", StatusOf(err))
			}
		})
	}
	if n := e.calls.Load(); n != 0 {
		t.Errorf("engine calls = %d, want 0", n)
	}
}

func TestPut_MissingIndex(t *testing.T) {
	e := &mockEngine{}
	c := newMockClient(t, e)

	_, err := c.Put(context.Background(), mustPut(t, PutInput{ID: "1", DataObject: map[string]any{"a": 1}}))
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if e.calls.Load() != 0 {
		t.Error("engine must not be called")
	}
}

func TestPut_TranslatesToEngineWrite(t *testing.T) {
	var got *db.WriteOp
	e := &mockEngine{
		writeFn: func(_ context.Context, op *db.WriteOp) (*db.WriteResult, error) {
			got = op
			return &db.WriteResult{Index: op.Index, ID: "generated", Result: db.ResultCreated, Version: 1}, nil
		},
	}
	c := newMockClient(t, e)

	resp, err := c.Put(context.Background(), mustPut(t, PutInput{Index: "widgets", DataObject: map[string]any{"a": 1}}))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if got.OpType != db.OpTypeCreate || got.ID != "" || got.Refresh != db.RefreshImmediate {
		t.Errorf("op = %+v", got)
	}
	if string(got.Source) != `{"a":1}` {
		t.Errorf("source = %s", got.Source)
	}
	if resp.ID() != "generated" {
		t.Errorf("id = %q, want engine-assigned id", resp.ID())
	}
	if e.unelevated.Load() != 0 {
		t.Error("engine called without elevation")
	}
}

func TestGet_NilEngineResult(t *testing.T) {
	e := &mockEngine{
		getFn: func(context.Context, *db.GetOp) (*db.GetResult, error) { return nil, nil },
	}
	c := newMockClient(t, e)

	resp, err := c.Get(context.Background(), mustGet(t, "widgets", "1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.Content() != nil || resp.Source() != nil || resp.Found() {
		t.Errorf("want empty response, got content=%v found=%v", resp.Content(), resp.Found())
	}
	if resp.ID() != "1" {
		t.Errorf("id = %q, want 1", resp.ID())
	}
}

func TestGet_UnrenderableEngineResult(t *testing.T) {
	e := &mockEngine{
		getFn: func(context.Context, *db.GetOp) (*db.GetResult, error) {
			return &db.GetResult{Index: "widgets", ID: "1", Found: true, Source: json.RawMessage(`{"broken`)}, nil
		},
	}
	c := newMockClient(t, e)

	_, err := c.Get(context.Background(), mustGet(t, "widgets", "1"))
	if !errors.Is(err, ErrEngine) {
		t.Fatalf("err = %v, want ErrEngine", err)
	}
	if errors.Is(err, ErrSerialization) {
		t.Error("engine result failure reported as a payload serialization error")
	}
	if StatusOf(err) != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", StatusOf(err))
	}
}

func TestGet_Missing(t *testing.T) {
	c := newTestClient(t)
	resp, err := c.Get(context.Background(), mustGet(t, "widgets", "nope"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.Found() || resp.Source() != nil || resp.Version() != 0 {
		t.Errorf("missing document reported as found: %s", resp.Content())
	}
}

func TestGet_FetchSource(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	if _, err := c.Put(ctx, mustPut(t, PutInput{
		Index: "widgets", ID: "1", DataObject: map[string]any{"name": "a", "secret": "s"},
	})); err != nil {
		t.Fatalf("put: %v", err)
	}
	req, err := NewGetDataObjectRequest(GetInput{
		Index: "widgets", ID: "1", FetchSource: &query.SourceFilter{Excludes: []string{"secret"}},
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := c.Get(ctx, req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := resp.Source()["secret"]; ok {
		t.Errorf("excluded field returned: %v", resp.Source())
	}
}

func TestUpdate_TokensAndConflict(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	put, err := c.Put(ctx, mustPut(t, PutInput{Index: "widgets", ID: "1", DataObject: map[string]any{"n": 1}}))
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	req, err := NewUpdateDataObjectRequest(UpdateInput{
		Index: "widgets", ID: "1", DataObject: map[string]any{"n": 2},
		IfSeqNo: int64Ptr(put.SeqNo()), IfPrimaryTerm: int64Ptr(put.PrimaryTerm()),
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	upd, err := c.Update(ctx, req)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.Result() != ResultUpdated || upd.Version() != 2 {
		t.Errorf("update = %s", upd.Content())
	}

	// Same tokens again are stale now.
	_, err = c.Update(ctx, req)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale update: err = %v, want ErrVersionConflict", err)
	}
	if StatusOf(err) != http.StatusConflict {
		t.Errorf("status = %d, want 409", StatusOf(err))
	}
}

func TestUpdate_UnpairedTokensRejected(t *testing.T) {
	tests := []struct {
		name string
		in   UpdateInput
	}{
		{"seq only", UpdateInput{Index: "w", ID: "1", DataObject: map[string]any{}, IfSeqNo: int64Ptr(1)}},
		{"term only", UpdateInput{Index: "w", ID: "1", DataObject: map[string]any{}, IfPrimaryTerm: int64Ptr(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewUpdateDataObjectRequest(tt.in)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("err = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestUpdate_Missing(t *testing.T) {
	c := newTestClient(t)
	req, err := NewUpdateDataObjectRequest(UpdateInput{Index: "widgets", ID: "ghost", DataObject: map[string]any{"a": 1}})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	_, err = c.Update(context.Background(), req)
	if !errors.Is(err, ErrEngine) || !errors.Is(err, db.ErrDocumentNotFound) {
		t.Fatalf("err = %v, want ErrEngine wrapping document missing", err)
	}
	if StatusOf(err) != http.StatusNotFound {
		t.Errorf("status = %d, want 404", StatusOf(err))
	}
}

func TestUpdate_RetryOnlyWhenPositive(t *testing.T) {
	var got *db.UpdateOp
	e := &mockEngine{
		updateFn: func(_ context.Context, op *db.UpdateOp) (*db.WriteResult, error) {
			got = op
			return nil, nil
		},
	}
	c := newMockClient(t, e)
	req, err := NewUpdateDataObjectRequest(UpdateInput{Index: "w", ID: "1", DataObject: map[string]any{"a": 1}, RetryOnConflict: 3})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := c.Update(context.Background(), req)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.RetryOnConflict != 3 || got.IfSeqNo != nil || got.IfPrimaryTerm != nil {
		t.Errorf("op = %+v", got)
	}
	if resp.Content() != nil {
		t.Error("nil engine result should give nil content")
	}
}

func TestDelete(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	if _, err := c.Put(ctx, mustPut(t, PutInput{Index: "widgets", ID: "1", DataObject: map[string]any{"a": 1}})); err != nil {
		t.Fatalf("put: %v", err)
	}

	tests := []struct {
		id   string
		want Result
	}{
		{"1", ResultDeleted},
		{"1", ResultNotFound},
	}
	for _, tt := range tests {
		req, err := NewDeleteDataObjectRequest(DeleteInput{Index: "widgets", ID: tt.id})
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp, err := c.Delete(ctx, req)
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if resp.Result() != tt.want {
			t.Errorf("result = %q, want %q", resp.Result(), tt.want)
		}
	}
}

func TestBulk_PartialFailureScenario(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	put := mustPut(t, PutInput{ID: "1", DataObject: map[string]any{"name": "a"}})
	upd, err := NewUpdateDataObjectRequest(UpdateInput{ID: "2", DataObject: map[string]any{"name": "z"}})
	if err != nil {
		t.Fatalf("update request: %v", err)
	}
	del, err := NewDeleteDataObjectRequest(DeleteInput{ID: "3"})
	if err != nil {
		t.Fatalf("delete request: %v", err)
	}
	req, err := NewBulkDataObjectRequest(BulkInput{GlobalIndex: "widgets", Requests: []WriteRequest{put, upd, del}})
	if err != nil {
		t.Fatalf("bulk request: %v", err)
	}

	resp, err := c.Bulk(ctx, req)
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if resp.Len() != 3 {
		t.Fatalf("len = %d, want 3", resp.Len())
	}
	if resp.At(0).Failed() || !resp.At(1).Failed() || resp.At(2).Failed() {
		t.Errorf("failed flags = %v %v %v", resp.At(0).Failed(), resp.At(1).Failed(), resp.At(2).Failed())
	}
	if !resp.HasFailures() {
		t.Error("HasFailures = false, want true")
	}
	wantIDs := []string{"1", "2", "3"}
	for i, r := range resp.Responses() {
		if r.ID() != wantIDs[i] {
			t.Errorf("response %d id = %q, want %q", i, r.ID(), wantIDs[i])
		}
	}
	if _, ok := resp.At(0).(*PutDataObjectResponse); !ok {
		t.Errorf("response 0 is %T", resp.At(0))
	}
	u, ok := resp.At(1).(*UpdateDataObjectResponse)
	if !ok {
		t.Fatalf("response 1 is %T", resp.At(1))
	}
	if u.Status() != http.StatusNotFound || u.FailureReason() == "" {
		t.Errorf("update item status=%d reason=%q", u.Status(), u.FailureReason())
	}
	if d, ok := resp.At(2).(*DeleteDataObjectResponse); !ok || d.Result() != ResultNotFound {
		t.Errorf("response 2 = %T", resp.At(2))
	}

	var itemErr *ItemError
	if !errors.As(resp.Err(), &itemErr) || itemErr.Position != 1 {
		t.Errorf("Err() = %v", resp.Err())
	}

	// The unaffected put was applied.
	got, err := c.Get(ctx, mustGet(t, "widgets", "1"))
	if err != nil || !got.Found() {
		t.Fatalf("get after bulk: found=%v err=%v", got != nil && got.Found(), err)
	}
}

func TestBulk_AllSucceed(t *testing.T) {
	c := newTestClient(t)
	reqs := []WriteRequest{
		mustPut(t, PutInput{ID: "1", DataObject: map[string]any{"a": 1}}),
		mustPut(t, PutInput{Index: "gizmos", ID: "1", DataObject: map[string]any{"a": 2}, OverwriteIfExists: true}),
	}
	req, err := NewBulkDataObjectRequest(BulkInput{GlobalIndex: "widgets", Requests: reqs})
	if err != nil {
		t.Fatalf("bulk request: %v", err)
	}
	if req.Index() != "gizmos,widgets" {
		t.Errorf("index = %q", req.Index())
	}
	resp, err := c.Bulk(context.Background(), req)
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if resp.HasFailures() || resp.Err() != nil {
		t.Errorf("unexpected failures: %v", resp.Err())
	}
	if resp.Content() == nil {
		t.Error("content is nil")
	}
}

func TestSearch_TenantRequired(t *testing.T) {
	e := &mockEngine{}
	c := newMockClient(t, e, WithMultiTenancy(true))

	f := c.SearchDataObjectAsync(context.Background(), mustSearch(t, SearchInput{Indices: []string{"widgets"}}), async.Inline)
	_, err := f.Await(context.Background())
	if !errors.Is(err, ErrTenantRequired) {
		t.Fatalf("err = %v, want ErrTenantRequired", err)
	}
	if StatusOf(err) != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", StatusOf(err))
	}
	if n := e.calls.Load(); n != 0 {
		t.Errorf("engine calls = %d, want 0", n)
	}
}

func TestSearch_TenantFilterPreservesBoolQuery(t *testing.T) {
	var got *db.SearchOp
	e := &mockEngine{
		searchFn: func(_ context.Context, op *db.SearchOp) (*db.SearchResult, error) {
			got = op
			return &db.SearchResult{Hits: db.SearchHits{Hits: []db.SearchHit{}}}, nil
		},
	}
	c := newMockClient(t, e, WithMultiTenancy(true))

	orig := &query.Bool{
		Must:    []query.Query{&query.Match{Field: "name", Text: "gear"}},
		Should:  []query.Query{&query.Term{Field: "color", Value: "red"}},
		MustNot: []query.Query{&query.Term{Field: "archived", Value: true}},
		Filter:  []query.Query{&query.Range{Field: "price", GTE: 1}},
	}
	src := query.NewSearchSource(orig)
	req := mustSearch(t, SearchInput{Indices: []string{"widgets"}, Source: src, TenantID: "acme"})

	if _, err := c.Search(context.Background(), req); err != nil {
		t.Fatalf("search: %v", err)
	}
	b, ok := got.Source.Query.(*query.Bool)
	if !ok {
		t.Fatalf("effective query is %T", got.Source.Query)
	}
	if !reflect.DeepEqual(b.Must, orig.Must) || !reflect.DeepEqual(b.Should, orig.Should) ||
		!reflect.DeepEqual(b.MustNot, orig.MustNot) {
		t.Error("original clauses were altered")
	}
	if len(b.Filter) != 2 || !reflect.DeepEqual(b.Filter[0], orig.Filter[0]) {
		t.Fatalf("filter = %v", b.Filter)
	}
	if term, ok := b.Filter[1].(*query.Term); !ok || term.Field != query.TenantField || term.Value != "acme" {
		t.Errorf("tenant clause = %#v", b.Filter[1])
	}
	if len(orig.Filter) != 1 {
		t.Error("caller query was mutated")
	}
	if _, ok := req.Source().Query.(*query.Bool); !ok || len(req.Source().Query.(*query.Bool).Filter) != 1 {
		t.Error("request source was mutated")
	}
}

func TestSearch_NilQueryPointer(t *testing.T) {
	var got *db.SearchOp
	e := &mockEngine{
		searchFn: func(_ context.Context, op *db.SearchOp) (*db.SearchResult, error) {
			got = op
			return &db.SearchResult{Hits: db.SearchHits{Hits: []db.SearchHit{}}}, nil
		},
	}
	c := newMockClient(t, e, WithMultiTenancy(true))

	var q *query.Bool
	req := mustSearch(t, SearchInput{Indices: []string{"widgets"}, Source: query.NewSearchSource(q), TenantID: "acme"})
	if _, err := c.Search(context.Background(), req); err != nil {
		t.Fatalf("search: %v", err)
	}
	term, ok := got.Source.Query.(*query.Term)
	if !ok || term.Field != query.TenantField || term.Value != "acme" {
		t.Errorf("effective query = %#v, want bare tenant term", got.Source.Query)
	}

	_, err := NewSearchDataObjectRequest(SearchInput{
		Indices: []string{"widgets"},
		Source:  query.NewSearchSource(&query.Bool{Must: []query.Query{(*query.Term)(nil)}}),
	})
	if !errors.Is(err, ErrInvalidRequest) || !errors.Is(err, query.ErrInvalidQuery) {
		t.Fatalf("err = %v, want invalid query", err)
	}
	if StatusOf(err) != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", StatusOf(err))
	}
}

func TestSearch_TenantIsolation(t *testing.T) {
	c := newTestClient(t, WithMultiTenancy(true))
	ctx := context.Background()
	for _, d := range []struct{ id, tenant string }{{"1", "acme"}, {"2", "acme"}, {"3", "globex"}} {
		if _, err := c.Put(ctx, mustPut(t, PutInput{
			Index: "widgets", ID: d.id, DataObject: map[string]any{"tenant_id": d.tenant, "kind": "widget"},
		})); err != nil {
			t.Fatalf("put %s: %v", d.id, err)
		}
	}

	resp, err := c.Search(ctx, mustSearch(t, SearchInput{
		Indices:  []string{"widgets"},
		Source:   query.NewSearchSource(&query.Term{Field: "kind", Value: "widget"}),
		TenantID: "acme",
	}))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.TotalHits() != 2 {
		t.Errorf("total = %d, want 2", resp.TotalHits())
	}
	var res db.SearchResult
	if err := resp.Content().Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, h := range res.Hits.Hits {
		if h.ID == "3" {
			t.Error("foreign tenant document returned")
		}
	}
}

func TestSearch_WithoutTenancy(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	if _, err := c.Put(ctx, mustPut(t, PutInput{Index: "widgets", ID: "1", DataObject: map[string]any{"name": "a"}})); err != nil {
		t.Fatalf("put: %v", err)
	}
	resp, err := c.Search(ctx, mustSearch(t, SearchInput{Indices: []string{"widgets", "missing"}}))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.TotalHits() != 1 {
		t.Errorf("total = %d, want 1", resp.TotalHits())
	}
}

func TestSearch_EngineFault(t *testing.T) {
	boom := errors.New("shard failure")
	e := &mockEngine{
		searchFn: func(context.Context, *db.SearchOp) (*db.SearchResult, error) { return nil, boom },
	}
	c := newMockClient(t, e)
	_, err := c.Search(context.Background(), mustSearch(t, SearchInput{Indices: []string{"widgets"}}))
	if !errors.Is(err, ErrEngine) || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if StatusOf(err) != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", StatusOf(err))
	}
}

func TestAsync_PanicSurfacesAsError(t *testing.T) {
	e := &mockEngine{
		getFn: func(context.Context, *db.GetOp) (*db.GetResult, error) { panic("engine exploded") },
	}
	c := newMockClient(t, e)
	_, err := c.GetDataObjectAsync(context.Background(), mustGet(t, "widgets", "1"), async.Go).Await(context.Background())
	if !errors.Is(err, ErrEngine) {
		t.Fatalf("err = %v, want ErrEngine", err)
	}
}

func TestAsync_RejectedExecutor(t *testing.T) {
	e := &mockEngine{}
	c := newMockClient(t, e)
	rejecting := async.ExecutorFunc(func(func()) error { return errors.New("queue full") })

	_, err := c.DeleteDataObjectAsync(context.Background(), mustDelete(t, "widgets", "1"), rejecting).Await(context.Background())
	if err == nil {
		t.Fatal("expected submission failure")
	}
	if e.calls.Load() != 0 {
		t.Error("engine must not be called")
	}
}

func mustDelete(t *testing.T, index, id string) *DeleteDataObjectRequest {
	t.Helper()
	r, err := NewDeleteDataObjectRequest(DeleteInput{Index: index, ID: id})
	if err != nil {
		t.Fatalf("NewDeleteDataObjectRequest: %v", err)
	}
	return r
}

func TestAsync_NilRequest(t *testing.T) {
	c := newMockClient(t, &mockEngine{})
	_, err := c.PutDataObjectAsync(context.Background(), nil, nil).Await(context.Background())
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestEngineCallsRequireElevation(t *testing.T) {
	c := newTestClient(t)
	_, err := c.engine.Get(context.Background(), &db.GetOp{Index: "widgets", ID: "1"})
	if err == nil {
		t.Fatal("direct engine call without elevation should fail")
	}
}
