package preset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	backend "github.com/redis/go-redis/v9"
)

// RedisStore keeps one JSON value per preset under prefix+"data:"+id, plus a
// set of known IDs under prefix+"index".
type RedisStore struct {
	client *backend.Client
	prefix string
}

type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// DefaultRedisPrefix namespaces preset keys.
const DefaultRedisPrefix = "midipreset:"

// NewRedisStore connects to the server at address.
func NewRedisStore(address, password string, db int, opts ...RedisOption) *RedisStore {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(client, opts...)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: DefaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return s.prefix + "data:" + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

func (s *RedisStore) List(ctx context.Context) ([]Preset, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("preset: list index: %w", err)
	}
	if len(ids) == 0 {
		return []Preset{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("preset: load presets: %w", err)
	}

	presets := make([]Preset, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// indexed but expired or deleted behind our back
			continue
		}
		var p Preset
		if err := json.Unmarshal([]byte(str), &p); err != nil {
			return nil, fmt.Errorf("preset: decode %q: %w", ids[i], err)
		}
		presets = append(presets, p)
	}
	sortByID(presets)
	return presets, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Preset, error) {
	val, err := s.client.Get(ctx, s.key(id)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return Preset{}, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return Preset{}, fmt.Errorf("preset: load %q: %w", id, err)
	}

	var p Preset
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return Preset{}, fmt.Errorf("preset: decode %q: %w", id, err)
	}
	return p, nil
}

func (s *RedisStore) Save(ctx context.Context, p Preset) error {
	if err := checkPreset(p); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("preset: encode %q: %w", p.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(p.ID), data, 0)
	pipe.SAdd(ctx, s.indexKey(), p.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("preset: save %q: %w", p.ID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.key(id))
	pipe.SRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("preset: delete %q: %w", id, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return nil
}
