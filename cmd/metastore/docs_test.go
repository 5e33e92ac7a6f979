package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/metastore"
	"github.com/kailas-cloud/metastore/async"
	"github.com/kailas-cloud/metastore/internal/config"
)

func newTestApp(t *testing.T, tenancy bool) *app {
	t.Helper()
	cfg := config.Config{}
	cfg.Engine.Driver = config.DriverSQLite
	cfg.Tenancy.Enabled = tenancy
	cfg.ApplyDefaults()
	return &app{env: "test", cfg: cfg, logger: zap.NewNop()}
}

func newTestClient(t *testing.T, a *app) *metastore.Client {
	t.Helper()
	c, err := metastore.New(context.Background(), a.clientOptions(async.Inline, nil)...)
	if err != nil {
		t.Fatalf("metastore.New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func decodeOut(t *testing.T, out *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(out.Bytes(), &m); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	out.Reset()
	return m
}

func TestCommands_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, newTestApp(t, false))
	var out bytes.Buffer

	if err := runPut(ctx, c, &out, putArgs{index: "widgets", id: "1", data: []byte(`{"name":"a","size":2}`)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if m := decodeOut(t, &out); m["result"] != "created" {
		t.Errorf("put output = %v", m)
	}

	err := runPut(ctx, c, &out, putArgs{index: "widgets", id: "1", data: []byte(`{"name":"b"}`), create: true})
	if !errors.Is(err, metastore.ErrVersionConflict) {
		t.Fatalf("create over existing: got %v, want version conflict", err)
	}

	if err := runGet(ctx, c, &out, getArgs{index: "widgets", id: "1", excludes: []string{"size"}}); err != nil {
		t.Fatalf("get: %v", err)
	}
	src, _ := decodeOut(t, &out)["_source"].(map[string]any)
	if len(src) != 1 || src["name"] != "a" {
		t.Errorf("_source = %v, want only name", src)
	}

	if err := runSearch(ctx, c, &out, searchArgs{indices: []string{"widgets"}, size: -1}); err != nil {
		t.Fatalf("search: %v", err)
	}
	hits, _ := decodeOut(t, &out)["hits"].(map[string]any)
	if total, _ := hits["total"].(map[string]any); total["value"] != float64(1) {
		t.Errorf("search total = %v, want 1", hits["total"])
	}

	if err := runDelete(ctx, c, &out, "widgets", "1", ""); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if m := decodeOut(t, &out); m["result"] != "deleted" {
		t.Errorf("delete output = %v", m)
	}

	err = runGet(ctx, c, &out, getArgs{index: "widgets", id: "1"})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("get after delete: got %v, want not found", err)
	}
}

func TestRunSearch_RequiresTenantWithMultiTenancy(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, newTestApp(t, true))
	var out bytes.Buffer

	err := runSearch(ctx, c, &out, searchArgs{indices: []string{"widgets"}, size: -1})
	if !errors.Is(err, metastore.ErrTenantRequired) {
		t.Errorf("got %v, want ErrTenantRequired", err)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestRunSearch_InvalidBody(t *testing.T) {
	c := newTestClient(t, newTestApp(t, false))
	err := runSearch(context.Background(), c, &bytes.Buffer{}, searchArgs{
		indices: []string{"widgets"},
		body:    []byte(`{"aggs":{}}`),
		size:    -1,
	})
	if err == nil || !strings.Contains(err.Error(), "parse search body") {
		t.Errorf("got %v, want parse error", err)
	}
}

func TestReadData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		value string
		stdin string
		want  string
	}{
		{"inline", `{"a":1}`, "", `{"a":1}`},
		{"stdin", "-", `{"from":"stdin"}`, `{"from":"stdin"}`},
		{"file", "@" + path, "", `{"from":"file"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := readData(tc.value, strings.NewReader(tc.stdin))
			if err != nil {
				t.Fatalf("readData: %v", err)
			}
			if string(got) != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}

	if _, err := readData("@"+filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"serve": false, "put": false, "get": false, "delete": false, "search": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
	if f := root.PersistentFlags().Lookup("env"); f == nil {
		t.Error("missing --env flag")
	}
}

func TestClientOptions_RemoteDriversNeedAddresses(t *testing.T) {
	a := newTestApp(t, false)
	a.cfg.Engine.Driver = config.DriverValkey
	a.cfg.Engine.Valkey.Addrs = []string{"127.0.0.1:1"}
	a.cfg.Engine.ReadinessTimeout = 1

	// An unreachable server fails readiness instead of hanging.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := metastore.New(ctx, a.clientOptions(nil, nil)...); err == nil {
		t.Fatal("expected connection failure")
	}
}
