package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/plotlink/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces plot snapshot keys.
const DefaultPrefix = "plotlink:plot:"

// Store implements ports.PlotStore using Redis.
// Snapshots are JSON values; a ZSET scored by expiry indexes the plot IDs.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for snapshots.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for snapshots.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client exposes the underlying client so a Locker can share the connection pool.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(plotID string) string {
	return s.prefix + plotID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the snapshot to Redis.
func (s *Store) Save(ctx context.Context, plotID string, snap *domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(plotID), data, s.ttl)

	// Score = expiry time so List can prune lazily; no TTL scores far in the future.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  score,
		Member: plotID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the snapshot from Redis.
func (s *Store) Load(ctx context.Context, plotID string) (*domain.Snapshot, error) {
	val, err := s.client.Get(ctx, s.key(plotID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrPlotNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes the snapshot and its index entry.
func (s *Store) Delete(ctx context.Context, plotID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(plotID))
	pipe.ZRem(ctx, s.indexKey(), plotID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// List returns indexed plots, pruning entries whose TTL has passed.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired plots: %w", err)
	}

	plots, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list plots: %w", err)
	}
	return plots, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
