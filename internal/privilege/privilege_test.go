package privilege

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/metastore/internal/db"
)

func TestRun_Elevates(t *testing.T) {
	ctx := context.Background()
	if Elevated(ctx) {
		t.Fatal("background context must not be elevated")
	}
	got, err := Run(ctx, func(inner context.Context) (bool, error) {
		return Elevated(inner), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error("context inside Run should be elevated")
	}
	if Elevated(ctx) {
		t.Error("elevation leaked to caller context")
	}
}

func TestRun_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Run(context.Background(), func(context.Context) (int, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestRun_RecoversPanic(t *testing.T) {
	v, err := Run(context.Background(), func(context.Context) (int, error) { panic("nope") })
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}
	if v != 0 {
		t.Errorf("value = %d", v)
	}
}

type fakeEngine struct {
	db.Engine
	writes int
}

func (f *fakeEngine) Write(context.Context, *db.WriteOp) (*db.WriteResult, error) {
	f.writes++
	return &db.WriteResult{Result: db.ResultCreated}, nil
}

func (f *fakeEngine) Search(context.Context, *db.SearchOp) (*db.SearchResult, error) {
	return &db.SearchResult{}, nil
}

func TestGuard_RejectsUnelevated(t *testing.T) {
	fe := &fakeEngine{}
	g := Guard(fe)

	_, err := g.Write(context.Background(), &db.WriteOp{Index: "w", ID: "1"})
	if !errors.Is(err, ErrNotPrivileged) {
		t.Fatalf("expected ErrNotPrivileged, got %v", err)
	}
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpWrite || dbErr.ID != "1" {
		t.Errorf("db error = %+v", dbErr)
	}
	if fe.writes != 0 {
		t.Error("engine must not be called")
	}
}

func TestGuard_AllowsElevated(t *testing.T) {
	fe := &fakeEngine{}
	g := Guard(fe)

	res, err := Run(context.Background(), func(ctx context.Context) (*db.WriteResult, error) {
		return g.Write(ctx, &db.WriteOp{Index: "w"})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Result != db.ResultCreated || fe.writes != 1 {
		t.Errorf("res = %+v, writes = %d", res, fe.writes)
	}

	if _, err := Run(context.Background(), func(ctx context.Context) (*db.SearchResult, error) {
		return g.Search(ctx, &db.SearchOp{})
	}); err != nil {
		t.Errorf("search: %v", err)
	}
}

func TestGuard_Idempotent(t *testing.T) {
	g := Guard(&fakeEngine{})
	if Guard(g) != g {
		t.Error("guarding twice should return the same wrapper")
	}
}
