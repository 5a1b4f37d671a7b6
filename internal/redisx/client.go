package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb redis.Cmdable, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Claim reserves key with an empty value. When the key already exists the
// stored value is returned with claimed=false.
func Claim(ctx context.Context, rdb redis.Cmdable, key string, ttl time.Duration) (existing string, claimed bool, err error) {
	ok, err := rdb.SetNX(ctx, key, "", ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	v, err := rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return "", false, nil
	}
	return v, false, err
}

// MarkSeen records id for service and reports whether this is the first sighting.
func MarkSeen(ctx context.Context, rdb redis.Cmdable, service, id string) (bool, error) {
	return rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, service, id), "1", TTLDedup).Result()
}

type cachedStatus struct {
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func CacheStatus(ctx context.Context, rdb redis.Cmdable, orderID, status string, updatedAt time.Time) error {
	b, err := json.Marshal(cachedStatus{Status: status, UpdatedAt: updatedAt})
	if err != nil {
		return err
	}
	return rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Err()
}

// CachedStatus returns the cached status, or "" when nothing is cached.
func CachedStatus(ctx context.Context, rdb redis.Cmdable, orderID string) (string, error) {
	s, err := rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var cs cachedStatus
	if err := json.Unmarshal([]byte(s), &cs); err != nil {
		return "", err
	}
	return cs.Status, nil
}

// ForgetStatus drops the cached status so the next read goes to the backend.
func ForgetStatus(ctx context.Context, rdb redis.Cmdable, orderID string) error {
	return rdb.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err()
}
