package kv

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available, skipping: %v", err)
	}
	client.FlushDB(ctx)
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestRedisStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return NewRedisStoreFromClient(newTestRedisClient(t))
	})
}

func TestRedisStore_InterfaceCompliance(t *testing.T) {
	var _ Store = (*RedisStore)(nil)
	var _ Store = (*MemoryStore)(nil)
}

func TestFormatScore(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1.5, "1.5"},
		{1700000000, "1700000000"},
		{-3, "-3"},
	}
	for _, tt := range tests {
		if got := formatScore(tt.in); got != tt.want {
			t.Fatalf("formatScore(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
