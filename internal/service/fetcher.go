package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"go.uber.org/zap"
)

const maxAssetBytes = 32 << 20

// AssetFetcher reads map assets from http(s) URLs or from files under a base
// directory. Successful reads are cached so every map session does not
// refetch the same static asset.
type AssetFetcher struct {
	client  *http.Client
	baseDir string
	cache   gcache.Cache
	logger  *zap.SugaredLogger
}

// NewAssetFetcher creates a fetcher resolving relative paths against baseDir.
func NewAssetFetcher(baseDir string, ttl time.Duration, logger *zap.SugaredLogger) *AssetFetcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	cache := gcache.New(32).LRU()
	if ttl > 0 {
		cache = cache.Expiration(ttl)
	}
	return &AssetFetcher{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseDir: baseDir,
		cache:   cache.Build(),
		logger:  logger,
	}
}

// Fetch returns the bytes of source.
func (f *AssetFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	if cached, err := f.cache.Get(source); err == nil {
		return cached.([]byte), nil
	}

	var (
		data []byte
		err  error
	)
	if isRemote(source) {
		data, err = f.fetchRemote(ctx, source)
	} else {
		data, err = f.readFile(source)
	}
	if err != nil {
		return nil, err
	}

	f.cache.Set(source, data)
	f.logger.Debugw("map asset fetched", "source", source, "bytes", len(data))
	return data, nil
}

// Invalidate drops source from the cache so the next Fetch rereads it.
func (f *AssetFetcher) Invalidate(source string) {
	f.cache.Remove(source)
}

func (f *AssetFetcher) fetchRemote(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes))
}

func (f *AssetFetcher) readFile(source string) ([]byte, error) {
	path, err := f.resolve(source)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// resolve maps source to a path inside baseDir. Absolute paths are used
// as-is only when no base directory is configured.
func (f *AssetFetcher) resolve(source string) (string, error) {
	if f.baseDir == "" {
		return filepath.Clean(source), nil
	}
	rel := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(source, "/")))
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("asset path %q escapes %s", source, f.baseDir)
	}
	return filepath.Join(f.baseDir, rel), nil
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
