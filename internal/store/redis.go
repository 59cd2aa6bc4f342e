package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jeenglish/speaking-backend/internal/usage"
)

// Redis keeps the whole ledger marshaled under a single key. It retains the
// document-store semantics of the JSONBin backend: Load reads the full
// ledger, Save replaces it.
type Redis struct {
	client *redis.Client
	key    string
}

func NewRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = "usage:ledger"
	}
	return &Redis{client: client, key: key}
}

func (r *Redis) Load(ctx context.Context) (usage.Ledger, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return make(usage.Ledger), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	var l usage.Ledger
	if err := json.Unmarshal([]byte(val), &l); err != nil {
		return nil, fmt.Errorf("parse ledger document: %w", err)
	}
	if l == nil {
		l = make(usage.Ledger)
	}
	return l, nil
}

func (r *Redis) Save(ctx context.Context, l usage.Ledger) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}
