package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ariefcatur/go-table-checkout/internal/cart"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
	"github.com/ariefcatur/go-table-checkout/internal/redisx"
	"github.com/redis/go-redis/v9"
)

const DefaultIdempotencyWindow = 5 * time.Minute

// IdempotencyKey identifies one cart submission: the same session, table and
// items within the same time window produce the same key.
func IdempotencyKey(sessionID string, draft orders.OrderDraft, now time.Time, window time.Duration) string {
	if window <= 0 {
		window = DefaultIdempotencyWindow
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n", sessionID, draft.TableNumber)
	for _, it := range cart.SortedItems(draft.Items) {
		fmt.Fprintf(h, "%s|%d|%d|%s\n", it.MenuItemID, it.Quantity, it.UnitPrice, it.SpecialRequests)
	}
	h.Write([]byte(strconv.FormatInt(now.UnixNano()/int64(window), 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// Guard claims idempotency keys so a duplicate submit finds the first order.
type Guard interface {
	// Claim returns the order id stored under key, or claimed=true when the
	// caller now owns key.
	Claim(ctx context.Context, key string) (orderID string, claimed bool, err error)
	Complete(ctx context.Context, key, orderID string) error
	Release(ctx context.Context, key string) error
}

type RedisGuard struct {
	Redis redis.Cmdable
	TTL   time.Duration
}

func (g *RedisGuard) ttl() time.Duration {
	if g.TTL <= 0 {
		return redisx.TTLIdempotency
	}
	return g.TTL
}

func (g *RedisGuard) Claim(ctx context.Context, key string) (string, bool, error) {
	return redisx.Claim(ctx, g.Redis, fmt.Sprintf(redisx.KeyIdemCheckout, key), g.ttl())
}

func (g *RedisGuard) Complete(ctx context.Context, key, orderID string) error {
	return g.Redis.Set(ctx, fmt.Sprintf(redisx.KeyIdemCheckout, key), orderID, g.ttl()).Err()
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	return g.Redis.Del(ctx, fmt.Sprintf(redisx.KeyIdemCheckout, key)).Err()
}

type MemoryGuard struct {
	mu   sync.Mutex
	keys map[string]string
}

func NewMemoryGuard() *MemoryGuard { return &MemoryGuard{keys: make(map[string]string)} }

func (g *MemoryGuard) Claim(_ context.Context, key string) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.keys[key]; ok {
		return id, false, nil
	}
	g.keys[key] = ""
	return "", true, nil
}

func (g *MemoryGuard) Complete(_ context.Context, key, orderID string) error {
	g.mu.Lock()
	g.keys[key] = orderID
	g.mu.Unlock()
	return nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	delete(g.keys, key)
	g.mu.Unlock()
	return nil
}
