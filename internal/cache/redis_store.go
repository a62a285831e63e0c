package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	backendRedis = "redis"

	// RedisKeyPrefix 隔离本服务写入的键，方便与其他业务共用实例。
	RedisKeyPrefix = "mirror:"
)

// redisStore 将条目整体编码为 JSON，并借助 Redis 原生过期时间实现 TTL。
type redisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore 基于已建立的 redis.Client 构建缓存后端。
func NewRedisStore(client *redis.Client) (Store, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	return &redisStore{client: client, now: time.Now}, nil
}

// DialRedis 创建客户端并 Ping 一次，尽早暴露连接问题。
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (s *redisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, RedisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(backendRedis).Inc()
			return nil, ErrNotFound
		}
		CacheErrors.WithLabelValues(backendRedis, "get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues(backendRedis, "get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis 过期精度为秒级，这里再按条目自身时间校验一次。
	if entry.Expired(s.now()) {
		_ = s.Delete(ctx, key)
		CacheMisses.WithLabelValues(backendRedis).Inc()
		return nil, ErrNotFound
	}

	CacheHits.WithLabelValues(backendRedis).Inc()
	return &entry, nil
}

func (s *redisStore) Put(ctx context.Context, entry Entry) error {
	if entry.Key == "" {
		return errors.New("cache key required")
	}
	ttl := entry.TTL(s.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "put").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.client.Set(ctx, RedisKeyPrefix+entry.Key, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues(backendRedis, "put").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, RedisKeyPrefix+key).Err(); err != nil {
		CacheErrors.WithLabelValues(backendRedis, "delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
