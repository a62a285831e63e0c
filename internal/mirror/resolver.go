package mirror

import (
	"context"
	"net/http"
	"strings"

	"github.com/erispulse/repo-mirror/internal/upstream"
)

// Fetcher 是 upstream.Fetcher 的最小抽象，便于在测试中替换。
type Fetcher interface {
	Fetch(ctx context.Context, url string, directive upstream.Directive) (*upstream.Response, error)
}

// Resolver 将入站路径映射到上游仓库，并在 404 时尝试追加归档后缀。
type Resolver struct {
	fetcher   Fetcher
	base      string
	suffix    string
	directive upstream.Directive
}

// NewResolver 构建 Resolver；base 不应以 / 结尾，suffix 形如 ".zip"。
func NewResolver(fetcher Fetcher, base, suffix string, directive upstream.Directive) *Resolver {
	return &Resolver{
		fetcher:   fetcher,
		base:      strings.TrimRight(base, "/"),
		suffix:    suffix,
		directive: directive,
	}
}

// URLFor 返回 path 对应的主上游地址。
func (r *Resolver) URLFor(path string) string {
	return r.base + path
}

// Resolve 先请求 base+path；若上游恰好返回 404 且 path 不以归档后缀结尾，
// 则改为请求 base+path+suffix，并无条件采用其结果（不会继续追加后缀）。
func (r *Resolver) Resolve(ctx context.Context, path string) (*upstream.Response, error) {
	primary := r.URLFor(path)
	resp, err := r.fetcher.Fetch(ctx, primary, r.directive)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusNotFound || strings.HasSuffix(path, r.suffix) {
		return resp, nil
	}

	fallback, err := r.fetcher.Fetch(ctx, primary+r.suffix, r.directive)
	if err != nil {
		return nil, err
	}
	if fallback.StatusCode == http.StatusNotFound {
		FallbackTotal.WithLabelValues("not_found").Inc()
	} else {
		FallbackTotal.WithLabelValues("resolved").Inc()
	}
	return fallback, nil
}
