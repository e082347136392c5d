package lcd_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/scalarorg/ibc-tracker/pkg/clients/lcd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

type countingResolver struct {
	calls int
	base  string
	err   error
}

func (r *countingResolver) ResolveDenom(_ context.Context, _, _ string) (string, error) {
	r.calls++
	return r.base, r.err
}

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()
	container, err := startRedis(ctx)
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func startRedis(ctx context.Context) (container *tcredis.RedisContainer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("docker unavailable: %v", r)
		}
	}()
	return tcredis.Run(ctx, "redis:7")
}

func TestCachedResolverMemoisesSuccess(t *testing.T) {
	client := newRedisClient(t)
	next := &countingResolver{base: "uatom"}
	resolver := lcd.NewCachedResolver(next, client, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		base, err := resolver.ResolveDenom(ctx, "https://lcd.example/", "ibc/"+atomHash)
		require.NoError(t, err)
		assert.Equal(t, "uatom", base)
	}
	assert.Equal(t, 1, next.calls)

	ttl, err := client.TTL(ctx, "ibc_tracker:denom:https://lcd.example:"+atomHash).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestCachedResolverSkipsFailures(t *testing.T) {
	client := newRedisClient(t)
	next := &countingResolver{err: errors.New("gateway down")}
	resolver := lcd.NewCachedResolver(next, client, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := resolver.ResolveDenom(ctx, "https://lcd.example", atomHash)
		require.Error(t, err)
	}
	assert.Equal(t, 2, next.calls)
}

func TestCachedResolverFallsThroughWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	next := &countingResolver{base: "uosmo"}
	resolver := lcd.NewCachedResolver(next, client, time.Minute)

	base, err := resolver.ResolveDenom(context.Background(), "https://lcd.example", atomHash)
	require.NoError(t, err)
	assert.Equal(t, "uosmo", base)
	assert.Equal(t, 1, next.calls)
}
