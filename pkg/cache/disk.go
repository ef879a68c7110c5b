package cache

import (
	"bufio"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ShoshinNikita/nlargest/nlargest"
	"github.com/ShoshinNikita/nlargest/pkg/metrics"
	"github.com/ShoshinNikita/nlargest/pkg/misc"
	"github.com/ShoshinNikita/nlargest/pkg/rlog"
)

const (
	entryExt = ".gz"
	tempExt  = ".tmp"
	locksDir = ".locks"
)

// DiskCache stores remote files as gzip files named after the SHA-256 of their urls.
// A cache file is visible only after it has been completely downloaded and synced.
type DiskCache struct {
	absDir string
}

func NewDiskCache(dir string) (*DiskCache, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("couldn't get absolute path: %w", err)
	}
	if err := checkNotFile(absDir); err != nil {
		return nil, err
	}
	return &DiskCache{
		absDir: absDir,
	}, nil
}

// Dir returns the absolute path of the cache directory.
func (c *DiskCache) Dir() string {
	return c.absDir
}

// Key returns the lowercase hex SHA-256 digest of url.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// GetFilepath returns the absolute path of the cache file associated with url.
// The file may not exist.
func (c *DiskCache) GetFilepath(url string) string {
	return c.entryPath(Key(url))
}

// Has reports whether url is cached.
func (c *DiskCache) Has(url string) (bool, error) {
	_, err := os.Stat(c.GetFilepath(url))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Open returns the compressed content of the cache file. If url is not cached,
// it returns [nlargest.ErrCacheMiss].
func (c *DiskCache) Open(url string) (io.ReadCloser, error) {
	file, err := os.Open(c.GetFilepath(url))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nlargest.ErrCacheMiss
		}
		return nil, err
	}
	return file, nil
}

// WriteFromFetch makes sure that url is cached and returns the path of the cache file.
// The network is not used if the file is already cached and forceRefresh is false.
// If the download fails, the previous cache file (if any) remains untouched.
func (c *DiskCache) WriteFromFetch(
	ctx context.Context, url string, chunkSize int64, forceRefresh bool, fetcher nlargest.Fetcher,
) (path string, err error) {

	key := Key(url)
	path = c.entryPath(key)

	if err := c.prepareDir(); err != nil {
		metrics.CacheErrors.Inc()
		return "", err
	}

	unlock, err := c.lock(ctx, key)
	if err != nil {
		metrics.CacheErrors.Inc()
		return "", err
	}
	defer unlock()

	if !forceRefresh {
		ok, err := c.Has(url)
		if err != nil {
			metrics.CacheErrors.Inc()
			return "", fmt.Errorf("couldn't check cache file: %w", err)
		}
		if ok {
			metrics.CacheHits.Inc()
			rlog.Debugf("cache hit for %q: %q", url, path)
			return path, nil
		}
	}
	metrics.CacheMisses.Inc()

	rlog.Infof("download %q with chunks of %s", url, misc.FormatFileSize(chunkSize))

	written, err := c.writeAtomic(key, path, fetcher.Chunks(ctx, url, chunkSize))
	if err != nil {
		return "", err
	}

	rlog.Infof("%q was cached, downloaded %s", url, misc.FormatFileSize(written))

	return path, nil
}

// writeAtomic writes chunks to a temporary file and moves it to path only after all
// chunks have been written and synced. The temporary file is removed on any error.
func (c *DiskCache) writeAtomic(key, path string, chunks iter.Seq2[[]byte, error]) (written int64, err error) {
	tempPath := filepath.Join(c.absDir, "."+key+"."+uuid.NewString()+tempExt)

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("couldn't create file: %w", err)
	}
	defer func() {
		if err != nil {
			file.Close()
			if rmErr := os.Remove(tempPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				rlog.Errorf("couldn't remove temp file %q: %s", tempPath, rmErr)
			}
		}
	}()

	bw := bufio.NewWriterSize(file, 64<<10)
	gw := gzip.NewWriter(bw)

	for chunk, fetchErr := range chunks {
		if fetchErr != nil {
			return written, fetchErr
		}
		if _, err := gw.Write(chunk); err != nil {
			return written, fmt.Errorf("couldn't write file: %w", err)
		}
		written += int64(len(chunk))
	}

	if err := gw.Close(); err != nil {
		return written, fmt.Errorf("couldn't finish gzip stream: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return written, fmt.Errorf("couldn't flush file: %w", err)
	}
	if err := file.Sync(); err != nil {
		return written, fmt.Errorf("couldn't sync file: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("couldn't close file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return written, fmt.Errorf("couldn't rename temp file: %w", err)
	}
	if err := syncDir(c.absDir); err != nil {
		rlog.Warnf("couldn't sync cache dir: %s", err)
	}
	return written, nil
}

// Remove removes the cache file associated with url. It is not an error if
// the file doesn't exist.
func (c *DiskCache) Remove(ctx context.Context, url string) error {
	key := Key(url)

	if _, err := os.Stat(c.absDir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	unlock, err := c.lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	err = os.Remove(c.entryPath(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		metrics.CacheErrors.Inc()
		return fmt.Errorf("couldn't remove cache file: %w", err)
	}
	if err == nil {
		metrics.CacheRemovedFiles.Inc()
	}
	return nil
}

func (c *DiskCache) entryPath(key string) string {
	return filepath.Join(c.absDir, key+entryExt)
}

// prepareDir creates the cache directory if it doesn't exist.
func (c *DiskCache) prepareDir() error {
	if err := checkNotFile(c.absDir); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(c.absDir, locksDir), 0o755); err != nil {
		return fmt.Errorf("couldn't create cache dir %q: %w", c.absDir, err)
	}
	return nil
}

// lock acquires an exclusive lock for the cache file associated with key. The lock
// is shared between processes.
func (c *DiskCache) lock(ctx context.Context, key string) (unlock func(), err error) {
	lockPath := filepath.Join(c.absDir, locksDir, key+".lock")
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("couldn't create locks dir: %w", err)
	}

	release, err := lockFile(ctx, lockPath)
	if err != nil {
		return nil, fmt.Errorf("couldn't lock cache file: %w", err)
	}
	return func() {
		if err := release(); err != nil {
			rlog.Errorf("couldn't unlock %q: %s", lockPath, err)
		}
	}, nil
}

// checkNotFile returns [nlargest.ErrNotADirectory] if path exists and is not a directory.
func checkNotFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("couldn't check %q: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %q is a file, cache path must be a directory", nlargest.ErrNotADirectory, path)
	}
	return nil
}
