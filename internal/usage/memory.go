// AngelaMos | 2026
// memory.go

package usage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type counter struct {
	n         atomic.Int64
	expiresAt int64
}

func (c *counter) expired(now int64) bool {
	return c.expiresAt != 0 && now >= c.expiresAt
}

// MemoryStore keeps counters in process. Counters are lost on restart and
// not shared between replicas.
type MemoryStore struct {
	counters sync.Map
	now      func() time.Time
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewMemoryStore starts a janitor that sweeps expired counters every
// interval. A non-positive interval disables the janitor.
func NewMemoryStore(interval time.Duration) *MemoryStore {
	s := &MemoryStore{
		now:  time.Now,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	if interval <= 0 {
		close(s.done)
		return s
	}

	go s.janitor(interval)
	return s
}

func (s *MemoryStore) janitor(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.PurgeExpired(context.Background()) //nolint:errcheck // never fails
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	v, ok := s.counters.Load(key)
	if !ok {
		return 0, nil
	}
	c := v.(*counter) //nolint:errcheck // only *counter is stored
	if c.expired(s.now().UnixNano()) {
		return 0, nil
	}
	return c.n.Load(), nil
}

func (s *MemoryStore) Increment(
	_ context.Context,
	key string,
	ttl time.Duration,
) (int64, error) {
	for {
		now := s.now().UnixNano()

		fresh := &counter{}
		if ttl > 0 {
			fresh.expiresAt = now + int64(ttl)
		}

		v, _ := s.counters.LoadOrStore(key, fresh)
		c := v.(*counter) //nolint:errcheck // only *counter is stored

		if c.expired(now) {
			s.counters.CompareAndDelete(key, c)
			continue
		}

		return c.n.Add(1), nil
	}
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.counters.Delete(key)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// PurgeExpired drops expired counters and reports how many were removed.
func (s *MemoryStore) PurgeExpired(context.Context) (int64, error) {
	now := s.now().UnixNano()
	var removed int64

	s.counters.Range(func(key, value any) bool {
		c := value.(*counter) //nolint:errcheck // only *counter is stored
		if c.expired(now) && s.counters.CompareAndDelete(key, c) {
			removed++
		}
		return true
	})

	return removed, nil
}

// Close stops the janitor. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return nil
}
