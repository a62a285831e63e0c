package cache

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Store 负责按规范上游 URL 读写缓存响应。
type Store interface {
	// Get 返回未过期的缓存条目。不存在或已过期时返回 ErrNotFound，过期条目由实现顺带清理。
	Get(ctx context.Context, key string) (*Entry, error)

	// Put 写入或覆盖条目，ExpiresAt 决定其生存期。已经过期的条目直接忽略。
	Put(ctx context.Context, entry Entry) error

	// Delete 删除条目，键不存在时不视为错误。
	Delete(ctx context.Context, key string) error
}

// Entry 表示一份缓存的上游响应。
type Entry struct {
	Key        string      `json:"key"`
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body,omitempty"`
	StoredAt   time.Time   `json:"stored_at"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

// Expired 报告条目在 now 时刻是否已失效。
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TTL 返回距离过期的剩余时间，已过期时为 0。
func (e Entry) TTL(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// ErrNotFound 表示缓存不存在或已过期。
var ErrNotFound = errors.New("cache entry not found")

// ErrInvalidEntry 表示缓存内容损坏，无法解码。
var ErrInvalidEntry = errors.New("invalid cache entry")
