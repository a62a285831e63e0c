package cache

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	backendDisk = "disk"

	bodySuffix = ".body"
	metaSuffix = ".meta"
)

// NewStore 以 basePath 为根目录构建磁盘缓存，整站复用一份实例。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{
		basePath: abs,
		locks:    make(map[string]*entryLock),
		now:      time.Now,
	}, nil
}

// fileStore 将每个条目拆成正文文件与 JSON 元数据文件。元数据最后落盘，
// 因此只要元数据存在，正文就一定完整。entryLock 避免同一键并发写入。
type fileStore struct {
	basePath string
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// fileMeta 是 .meta 文件的内容，正文单独存放。
type fileMeta struct {
	Key        string              `json:"key"`
	StatusCode int                 `json:"status_code"`
	Header     map[string][]string `json:"header"`
	StoredAt   time.Time           `json:"stored_at"`
	ExpiresAt  time.Time           `json:"expires_at"`
}

func (s *fileStore) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bodyPath, metaPath := s.entryPath(key)

	raw, err := os.ReadFile(metaPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			CacheMisses.WithLabelValues(backendDisk).Inc()
			return nil, ErrNotFound
		}
		CacheErrors.WithLabelValues(backendDisk, "get").Inc()
		return nil, err
	}

	var meta fileMeta
	if err := json.Unmarshal(raw, &meta); err != nil || meta.Key != key {
		CacheErrors.WithLabelValues(backendDisk, "get").Inc()
		return nil, fmt.Errorf("%w: %s", ErrInvalidEntry, metaPath)
	}

	entry := Entry{
		Key:        meta.Key,
		StatusCode: meta.StatusCode,
		Header:     meta.Header,
		StoredAt:   meta.StoredAt,
		ExpiresAt:  meta.ExpiresAt,
	}
	if entry.Expired(s.now()) {
		_ = s.Delete(ctx, key)
		CacheMisses.WithLabelValues(backendDisk).Inc()
		return nil, ErrNotFound
	}

	body, err := os.ReadFile(bodyPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			CacheMisses.WithLabelValues(backendDisk).Inc()
			return nil, ErrNotFound
		}
		CacheErrors.WithLabelValues(backendDisk, "get").Inc()
		return nil, err
	}
	entry.Body = body

	CacheHits.WithLabelValues(backendDisk).Inc()
	return &entry, nil
}

func (s *fileStore) Put(ctx context.Context, entry Entry) error {
	if entry.Key == "" {
		return errors.New("cache key required")
	}
	if entry.Expired(s.now()) {
		return nil
	}

	unlock := s.lockEntry(entry.Key)
	defer unlock()

	bodyPath, metaPath := s.entryPath(entry.Key)
	if err := os.MkdirAll(filepath.Dir(bodyPath), 0o755); err != nil {
		CacheErrors.WithLabelValues(backendDisk, "put").Inc()
		return err
	}

	meta, err := json.Marshal(fileMeta{
		Key:        entry.Key,
		StatusCode: entry.StatusCode,
		Header:     entry.Header,
		StoredAt:   entry.StoredAt,
		ExpiresAt:  entry.ExpiresAt,
	})
	if err != nil {
		CacheErrors.WithLabelValues(backendDisk, "put").Inc()
		return fmt.Errorf("marshal cache meta: %w", err)
	}

	// 先移除旧元数据，写入中途失败时读者只会看到未命中。
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		CacheErrors.WithLabelValues(backendDisk, "put").Inc()
		return err
	}
	if err := writeAtomic(ctx, bodyPath, bytes.NewReader(entry.Body)); err != nil {
		CacheErrors.WithLabelValues(backendDisk, "put").Inc()
		return err
	}
	if err := writeAtomic(ctx, metaPath, bytes.NewReader(meta)); err != nil {
		CacheErrors.WithLabelValues(backendDisk, "put").Inc()
		return err
	}
	return nil
}

func (s *fileStore) Delete(ctx context.Context, key string) error {
	unlock := s.lockEntry(key)
	defer unlock()

	bodyPath, metaPath := s.entryPath(key)
	for _, p := range []string{metaPath, bodyPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			CacheErrors.WithLabelValues(backendDisk, "delete").Inc()
			return err
		}
	}
	return nil
}

func (s *fileStore) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// entryPath 将任意 URL 键散列为 <base>/<ab>/<sha1> 形式，避免路径穿越与超长文件名。
func (s *fileStore) entryPath(key string) (string, string) {
	sum := sha1.Sum([]byte(key))
	name := hex.EncodeToString(sum[:])
	stem := filepath.Join(s.basePath, name[:2], name)
	return stem + bodySuffix, stem + metaSuffix
}

func writeAtomic(ctx context.Context, target string, body io.Reader) error {
	tempFile, err := os.CreateTemp(filepath.Dir(target), ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, target); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
