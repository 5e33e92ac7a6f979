// Package metastore stores and queries "data objects", JSON documents kept in
// a document engine, through one uniform contract: put, get, update, delete,
// bulk and search.
//
// Every operation is asynchronous. It takes a validated request and an
// executor, translates the request into an engine call, runs the call with
// elevated engine privileges on the executor and hands the typed response
// back through a future:
//
//	client, _ := metastore.New(ctx, metastore.WithValkey("localhost:6379", ""))
//	req, _ := metastore.NewPutDataObjectRequest(metastore.PutInput{
//	    Index: "widgets", ID: "1", DataObject: map[string]any{"name": "a"},
//	})
//	resp, err := client.PutDataObjectAsync(ctx, req, pool).Await(ctx)
//
// Synchronous wrappers (Put, Get, Update, Delete, Bulk, Search) await the
// future with the caller's context.
//
// Engines: an embedded SQLite database (default), Valkey with the JSON and
// search modules, or Elasticsearch.
//
// With WithMultiTenancy, every search must carry a tenant id and is
// restricted to documents whose tenant_id field matches it.
//
// # Typed API
//
//	type Widget struct {
//	    ID    string  `json:"-" metastore:"id"`
//	    Name  string  `json:"name"`
//	    Price float64 `json:"price"`
//	}
//
//	idx, _ := metastore.NewIndex[Widget](client, "widgets")
//	_, _ = idx.Upsert(ctx, Widget{ID: "1", Name: "gear", Price: 3})
//	hits, total, _ := idx.Search().Where("name", "gear").Limit(10).Do(ctx)
package metastore
