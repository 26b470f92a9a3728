package config

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clusterkit/clusterkit/internal/logger"
)

const (
	// ConfigKeyPrefix namespaces this client's keys in a shared Redis.
	ConfigKeyPrefix = "clusterkit:config"
	// ConfigChannel is the pub/sub channel a SaveConfig+PublishReload pair
	// notifies watchers on.
	ConfigChannel = "clusterkit:config:reload"
)

// RedisStore persists and hot-reloads a Config through Redis pub/sub, for
// deployments that want central config distribution without a
// config-management system. It is an operational convenience layered
// over Config, not a replacement for it.
type RedisStore struct {
	client   *redis.Client
	cfg      *RedisConfig
	pubsub   *redis.PubSub
	reloadCh chan *Config
	closeCh  chan struct{}
}

// NewRedisStore connects to Redis per cfg and verifies the connection.
func NewRedisStore(cfg *RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.Database,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client:   client,
		cfg:      cfg,
		reloadCh: make(chan *Config, 10),
		closeCh:  make(chan struct{}),
	}, nil
}

// SaveConfig persists cfg and its update timestamp to Redis.
func (s *RedisStore) SaveConfig(ctx context.Context, cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	key := fmt.Sprintf("%s:main", ConfigKeyPrefix)
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save config to Redis: %w", err)
	}

	timestampKey := fmt.Sprintf("%s:timestamp", ConfigKeyPrefix)
	if err := s.client.Set(ctx, timestampKey, time.Now().Unix(), 0).Err(); err != nil {
		return fmt.Errorf("failed to save timestamp: %w", err)
	}

	return nil
}

// LoadConfig reads the current persisted Config from Redis.
func (s *RedisStore) LoadConfig(ctx context.Context) (*Config, error) {
	key := fmt.Sprintf("%s:main", ConfigKeyPrefix)

	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("config not found in Redis")
	} else if err != nil {
		return nil, fmt.Errorf("failed to load config from Redis: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// PublishReload notifies any watcher that a new config was saved.
func (s *RedisStore) PublishReload(ctx context.Context) error {
	return s.client.Publish(ctx, ConfigChannel, "reload").Err()
}

// WatchConfigChanges subscribes to the reload channel and emits freshly
// loaded configs on the returned channel as they arrive.
func (s *RedisStore) WatchConfigChanges(ctx context.Context) (<-chan *Config, error) {
	s.pubsub = s.client.Subscribe(ctx, ConfigChannel)

	if _, err := s.pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe to config channel: %w", err)
	}

	go s.watchLoop(ctx)

	return s.reloadCh, nil
}

func (s *RedisStore) watchLoop(ctx context.Context) {
	ch := s.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closeCh:
			return
		case msg := <-ch:
			if msg == nil {
				continue
			}

			newCfg, err := s.LoadConfig(ctx)
			if err != nil {
				logger.Warn("redisstore: failed to load config after reload notification", "error", err)
				continue
			}

			select {
			case s.reloadCh <- newCfg:
			default:
				logger.Warn("redisstore: reload channel full, dropping update")
			}
		}
	}
}

// GetConfigTimestamp returns the last config update timestamp, or 0 if
// none has been saved yet.
func (s *RedisStore) GetConfigTimestamp(ctx context.Context) (int64, error) {
	key := fmt.Sprintf("%s:timestamp", ConfigKeyPrefix)

	result, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("failed to get timestamp: %w", err)
	}

	return result, nil
}

// Health checks the Redis connection.
func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the pub/sub subscription and the Redis client.
func (s *RedisStore) Close() error {
	close(s.closeCh)

	if s.pubsub != nil {
		if err := s.pubsub.Close(); err != nil {
			return err
		}
	}

	close(s.reloadCh)

	return s.client.Close()
}

// Stats returns the underlying Redis client pool statistics.
func (s *RedisStore) Stats() *redis.PoolStats {
	return s.client.PoolStats()
}
