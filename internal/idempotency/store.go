// Package idempotency lets clients retry POST /api/orders safely. A response
// is recorded against the caller's Idempotency-Key and replayed for repeats,
// so a retried checkout never creates a second set of orders.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/cakery/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Record is a completed response kept for replay.
type Record struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
}

// Store reserves keys and keeps completed responses.
type Store interface {
	// Reserve claims key for an in-flight request. When the key already holds
	// a completed response it is returned with reserved=false. When another
	// request holds the key, Reserve returns ErrInProgress.
	Reserve(ctx context.Context, key, fingerprint string) (rec *Record, reserved bool, err error)
	// Complete stores the response for key.
	Complete(ctx context.Context, key string, rec Record) error
	// Release drops a reservation so the request may be retried.
	Release(ctx context.Context, key string) error
}

var (
	ErrInProgress = domain.Errorf(domain.ECONFLICT, "idempotency.reserve", "A request with this Idempotency-Key is still in progress")
	ErrKeyReused  = domain.Errorf(domain.EINVALID, "idempotency.reserve", "Idempotency-Key was already used for a different request")
)

const pendingMarker = "pending"

// RedisStore implements Store on Redis. Reservations are SET NX with a short
// TTL; completed responses replace them with a longer one.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	pendingTTL time.Duration
	recordTTL  time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore. recordTTL bounds how long a response can
// be replayed.
func NewRedisStore(client *redis.Client, recordTTL time.Duration) *RedisStore {
	if recordTTL <= 0 {
		recordTTL = 24 * time.Hour
	}
	return &RedisStore{
		client:     client,
		prefix:     "idempotency:",
		pendingTTL: time.Minute,
		recordTTL:  recordTTL,
	}
}

func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string) (*Record, bool, error) {
	const op = "idempotency.reserve"

	ok, err := s.client.SetNX(ctx, s.prefix+key, pendingMarker, s.pendingTTL).Result()
	if err != nil {
		return nil, false, domain.Unavailable(err, op, "Idempotency store unavailable")
	}
	if ok {
		return nil, true, nil
	}

	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// Released between SETNX and GET by the request holding it.
		return nil, false, ErrInProgress
	}
	if err != nil {
		return nil, false, domain.Unavailable(err, op, "Idempotency store unavailable")
	}
	if string(data) == pendingMarker {
		return nil, false, ErrInProgress
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, domain.Internal(err, op, "corrupt idempotency record")
	}
	if rec.Fingerprint != fingerprint {
		return nil, false, ErrKeyReused
	}
	return &rec, false, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, s.recordTTL).Err(); err != nil {
		return domain.Unavailable(err, "idempotency.complete", "Idempotency store unavailable")
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return domain.Unavailable(err, "idempotency.release", "Idempotency store unavailable")
	}
	return nil
}

// NewRedisClient parses a redis:// URL into a client and pings it.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
