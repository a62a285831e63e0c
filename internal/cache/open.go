package cache

import (
	"context"
	"fmt"

	"github.com/erispulse/repo-mirror/internal/config"
)

// Open 按 CacheBackend 构建缓存后端，返回的 closer 用于关闭底层连接。
func Open(ctx context.Context, cfg config.GlobalConfig) (Store, func() error, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendDisk, "":
		store, err := NewStore(cfg.StoragePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	case config.CacheBackendRedis:
		client, err := DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		store, err := NewRedisStore(client)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cache backend: %s", cfg.CacheBackend)
	}
}
