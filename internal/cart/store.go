package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ariefcatur/go-table-checkout/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// Store persists carts per session. Load returns an empty cart for unknown sessions.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Cart, error)
	Save(ctx context.Context, sessionID string, c *Cart) error
	Delete(ctx context.Context, sessionID string) error
}

type RedisStore struct {
	Redis redis.Cmdable
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Cart, error) {
	raw, err := s.Redis.Get(ctx, fmt.Sprintf(redisx.KeyCart, sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", sessionID, err)
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", sessionID, err)
	}
	return fromSnapshot(snap)
}

// Save refreshes the TTL on every write so an active session never loses its cart.
func (s *RedisStore) Save(ctx context.Context, sessionID string, c *Cart) error {
	b, err := json.Marshal(c.snapshot())
	if err != nil {
		return err
	}
	return s.Redis.Set(ctx, fmt.Sprintf(redisx.KeyCart, sessionID), b, redisx.TTLCart).Err()
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.Redis.Del(ctx, fmt.Sprintf(redisx.KeyCart, sessionID)).Err()
}

// MemoryStore keeps carts in process; used by the CLI and tests.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string]snapshot)}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (*Cart, error) {
	s.mu.Lock()
	snap, ok := s.carts[sessionID]
	s.mu.Unlock()
	if !ok {
		return New(), nil
	}
	return fromSnapshot(snap)
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, c *Cart) error {
	snap := c.snapshot()
	s.mu.Lock()
	s.carts[sessionID] = snap
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.carts, sessionID)
	s.mu.Unlock()
	return nil
}
