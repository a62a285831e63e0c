// Package upstream issues outbound GET requests to the raw-content host and
// applies a caching directive on top of the injected cache.Store: a fresh
// stored response short-circuits the network, a successful response is
// written back under its URL with the directive's TTL.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/erispulse/repo-mirror/internal/cache"
)

// ErrUpstreamUnavailable wraps transport-level failures (DNS, timeout, reset).
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ErrBodyTooLarge is returned when an upstream body exceeds the fetcher's cap.
var ErrBodyTooLarge = errors.New("upstream body too large")

// DefaultMaxBodyBytes caps buffered upstream bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 256 << 20

// Directive is the caching hint attached to a fetch.
type Directive struct {
	// CacheEverything stores the response regardless of upstream Cache-Control.
	CacheEverything bool
	TTL             time.Duration
}

// Cacheable reports whether the directive reads and writes the store.
func (d Directive) Cacheable() bool {
	return d.CacheEverything && d.TTL > 0
}

// Response is a fully buffered upstream response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	CacheHit   bool
}

// WithContentType returns a copy whose Content-Type is replaced, keeping
// status and body.
func (r *Response) WithContentType(contentType string) *Response {
	cloned := *r
	cloned.Header = r.Header.Clone()
	if cloned.Header == nil {
		cloned.Header = http.Header{}
	}
	cloned.Header.Set("Content-Type", contentType)
	return &cloned
}

// Fetcher performs cached upstream GETs.
type Fetcher struct {
	client  *http.Client
	store   cache.Store
	logger  *logrus.Logger
	now     func() time.Time
	maxBody int64
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithMaxBodyBytes overrides DefaultMaxBodyBytes; n <= 0 keeps the default.
func WithMaxBodyBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBody = n
		}
	}
}

// NewFetcher builds a Fetcher. store may be nil, in which case every fetch
// goes to the network.
func NewFetcher(client *http.Client, store cache.Store, logger *logrus.Logger, opts ...Option) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &Fetcher{
		client:  client,
		store:   store,
		logger:  logger,
		now:     time.Now,
		maxBody: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the response for url, consulting the store first when the
// directive allows it. Non-2xx upstream statuses are returned as ordinary
// responses; only transport failures produce an error.
func (f *Fetcher) Fetch(ctx context.Context, url string, directive Directive) (*Response, error) {
	useCache := directive.Cacheable() && f.store != nil

	if useCache {
		entry, err := f.store.Get(ctx, url)
		switch {
		case err == nil:
			return &Response{
				URL:        url,
				StatusCode: entry.StatusCode,
				Header:     entry.Header,
				Body:       entry.Body,
				CacheHit:   true,
			}, nil
		case errors.Is(err, cache.ErrNotFound):
			// miss, continue
		default:
			f.warn(err, url, "cache_get_failed")
		}
	}

	resp, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}

	if useCache && isCacheableStatus(resp.StatusCode) {
		now := f.now()
		entry := cache.Entry{
			Key:        url,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       resp.Body,
			StoredAt:   now,
			ExpiresAt:  now.Add(directive.TTL),
		}
		if err := f.store.Put(ctx, entry); err != nil {
			f.warn(err, url, "cache_put_failed")
		}
	}

	return resp, nil
}

func (f *Fetcher) get(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		RequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.ContentLength > f.maxBody {
		RequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: content-length %d exceeds %d", ErrBodyTooLarge, resp.ContentLength, f.maxBody)
	}

	// 多读一个字节用于判断是否超限（分块传输时没有 Content-Length）。
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	RequestDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		RequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstreamUnavailable, err)
	}
	if int64(len(body)) > f.maxBody {
		RequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrBodyTooLarge, f.maxBody)
	}
	RequestsTotal.WithLabelValues(statusClass(resp.StatusCode)).Inc()

	return &Response{
		URL:        url,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (f *Fetcher) warn(err error, url, msg string) {
	if f.logger == nil {
		return
	}
	f.logger.WithError(err).WithFields(logrus.Fields{
		"action":   "upstream_fetch",
		"upstream": url,
	}).Warn(msg)
}

func isCacheableStatus(status int) bool {
	return status >= 200 && status < 300
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}
