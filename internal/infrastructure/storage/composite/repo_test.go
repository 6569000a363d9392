package composite

import (
	"context"
	"errors"
	"testing"

	"tickerwatch/internal/application/port"
	"tickerwatch/internal/infrastructure/storage"
)

type failingKV struct{ storage.InMemoryKV }

func (f *failingKV) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errors.New("backend down")
}

func (f *failingKV) Set(ctx context.Context, key, value string) error {
	return errors.New("backend down")
}

func TestCompositeWritesAll(t *testing.T) {
	a, b := storage.NewInMemoryKV(), storage.NewInMemoryKV()
	repo := New(a, nil, b)
	ctx := context.Background()

	if err := repo.SetOrClear(ctx, port.KeyTickerList, []string{"BTC"}); err != nil {
		t.Fatalf("SetOrClear failed: %v", err)
	}
	for i, kv := range []*storage.InMemoryKV{a, b} {
		if _, ok, _ := kv.Get(ctx, port.KeyTickerList); !ok {
			t.Errorf("backend %d missing key", i)
		}
	}
}

func TestCompositeReadsFirstHit(t *testing.T) {
	a, b := storage.NewInMemoryKV(), storage.NewInMemoryKV()
	ctx := context.Background()
	_ = b.Set(ctx, "k", "from-b")

	repo := New(a, b)
	v, ok, err := repo.Get(ctx, "k")
	if err != nil || !ok || v != "from-b" {
		t.Errorf("expected from-b, got v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestCompositeSkipsFailingBackendOnRead(t *testing.T) {
	good := storage.NewInMemoryKV()
	ctx := context.Background()
	_ = good.Set(ctx, "k", "v")

	repo := New(&failingKV{}, good)
	v, ok, err := repo.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Errorf("expected v from healthy backend, got v=%q ok=%v err=%v", v, ok, err)
	}

	if err := repo.Set(ctx, "k", "v2"); err == nil {
		t.Error("expected first write error to surface")
	}
	if got, _, _ := good.Get(ctx, "k"); got != "v2" {
		t.Errorf("healthy backend should still be written, got %q", got)
	}
}
