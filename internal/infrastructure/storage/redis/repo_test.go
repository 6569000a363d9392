package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"tickerwatch/internal/application/port"
)

func newTestRepo(t *testing.T) (*Repo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := New(rdb, "tickerwatch", 0)
	t.Cleanup(func() { _ = repo.Close() })
	return repo, mr
}

func TestRedisRepoSetGet(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Set(ctx, port.KeyCoinMetadata, `{}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got, err := mr.Get("tickerwatch:" + port.KeyCoinMetadata); err != nil || got != `{}` {
		t.Errorf("expected prefixed key in redis, got %q err=%v", got, err)
	}

	v, ok, err := repo.Get(ctx, port.KeyCoinMetadata)
	if err != nil || !ok || v != `{}` {
		t.Errorf("Get: v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestRedisRepoGetMissing(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, ok, err := repo.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("expected miss")
	}
}

func TestRedisRepoSetOrClear(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SetOrClear(ctx, port.KeyTickerList, []string{"BTC"}); err != nil {
		t.Fatalf("SetOrClear failed: %v", err)
	}
	if !mr.Exists("tickerwatch:" + port.KeyTickerList) {
		t.Fatal("expected key to exist")
	}

	if err := repo.SetOrClear(ctx, port.KeyTickerList, nil); err != nil {
		t.Fatalf("SetOrClear(empty) failed: %v", err)
	}
	if mr.Exists("tickerwatch:" + port.KeyTickerList) {
		t.Error("expected key removed")
	}
}

func TestRedisRepoTTLOnlyOnMetadata(t *testing.T) {
	mr := miniredis.RunT(t)
	repo := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "tickerwatch", time.Hour)
	t.Cleanup(func() { _ = repo.Close() })
	ctx := context.Background()

	if err := repo.Set(ctx, port.KeyCoinMetadata, `{}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := repo.SetOrClear(ctx, port.KeyTickerList, []string{"BTC"}); err != nil {
		t.Fatalf("SetOrClear failed: %v", err)
	}

	if ttl := mr.TTL("tickerwatch:" + port.KeyCoinMetadata); ttl != time.Hour {
		t.Errorf("expected metadata ttl 1h, got %v", ttl)
	}
	if ttl := mr.TTL("tickerwatch:" + port.KeyTickerList); ttl != 0 {
		t.Errorf("ticker list must not expire, got ttl %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if _, ok, _ := repo.Get(ctx, port.KeyTickerList); !ok {
		t.Error("ticker list expired")
	}
	if _, ok, _ := repo.Get(ctx, port.KeyCoinMetadata); ok {
		t.Error("expected metadata cache to expire")
	}
}
