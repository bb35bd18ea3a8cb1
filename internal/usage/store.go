// AngelaMos | 2026
// store.go

package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/templates/access-control/internal/access"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

var ErrPurgeUnsupported = errors.New("usage store does not support purge")

// Purger is implemented by stores that need explicit garbage collection.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type Deps struct {
	Redis           redis.UniversalClient
	DB              *sqlx.DB
	JanitorInterval time.Duration
}

func NewStore(backend string, deps Deps) (access.CounterStore, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryStore(deps.JanitorInterval), nil
	case BackendRedis:
		if deps.Redis == nil {
			return nil, errors.New("redis usage store requires a redis client")
		}
		return NewRedisStore(deps.Redis), nil
	case BackendPostgres:
		if deps.DB == nil {
			return nil, errors.New("postgres usage store requires a database")
		}
		return NewPostgresStore(deps.DB), nil
	}
	return nil, fmt.Errorf("unknown usage store %q", backend)
}

// Purge runs one garbage-collection pass if the store supports it.
func Purge(ctx context.Context, store access.CounterStore) (int64, error) {
	p, ok := store.(Purger)
	if !ok {
		return 0, ErrPurgeUnsupported
	}
	return p.PurgeExpired(ctx)
}

// RunPurger purges on every tick until ctx is cancelled.
func RunPurger(
	ctx context.Context,
	p Purger,
	interval time.Duration,
	logger *slog.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := p.PurgeExpired(ctx)
			if err != nil {
				logger.Error("usage purge failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("usage counters purged", "removed", removed)
			}
		}
	}
}
