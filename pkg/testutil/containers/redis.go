//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	platformredis "seisreg/internal/platform/redis"
)

// RedisContainer is a Redis server with a client dialed the same way the
// service dials its stream sink.
type RedisContainer struct {
	Container testcontainers.Container
	URL       string
	Client    *platformredis.Client
}

func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	rc := &RedisContainer{Container: container}

	if rc.URL, err = container.ConnectionString(ctx); err != nil {
		rc.abort(t, "failed to get redis connection string", err)
	}
	if rc.Client, err = platformredis.New(ctx, rc.URL); err != nil {
		rc.abort(t, "failed to connect to redis", err)
	}
	return rc
}

// FlushAll empties the database. Use between tests.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}

func (r *RedisContainer) abort(t *testing.T, msg string, err error) {
	t.Helper()
	_ = r.Container.Terminate(context.Background())
	t.Fatalf("%s: %v", msg, err)
}
