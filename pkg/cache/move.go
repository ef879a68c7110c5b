package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ShoshinNikita/nlargest/pkg/rlog"
)

// MoveTo moves all cache files to dir and returns a cache for the new directory.
// dir is created if needed. If dir is a file, [nlargest.ErrNotADirectory] is returned
// before any file is moved.
func (c *DiskCache) MoveTo(ctx context.Context, dir string) (_ *DiskCache, movedFiles int, err error) {
	target, err := NewDiskCache(dir)
	if err != nil {
		return nil, 0, err
	}
	if err := target.prepareDir(); err != nil {
		return nil, 0, err
	}
	if target.absDir == c.absDir {
		return target, 0, nil
	}

	entries, _, err := Cleaner{dir: c.absDir}.loadAllFiles()
	if err != nil {
		return nil, 0, fmt.Errorf("couldn't load cache files: %w", err)
	}

	for _, entry := range entries {
		name := filepath.Base(entry.path)

		unlock, err := c.lock(ctx, strings.TrimSuffix(name, entryExt))
		if err != nil {
			return nil, movedFiles, err
		}
		err = moveFile(entry.path, filepath.Join(target.absDir, name))
		unlock()
		if err != nil {
			return nil, movedFiles, fmt.Errorf("couldn't move %q: %w", entry.path, err)
		}
		movedFiles++
	}

	if err := syncDir(target.absDir); err != nil {
		rlog.Warnf("couldn't sync cache dir: %s", err)
	}

	rlog.Infof("moved %d cached files from %q to %q", movedFiles, c.absDir, target.absDir)

	return target, movedFiles, nil
}

// moveFile renames src to dst. Across file systems it copies the file and
// removes src.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !isCrossDeviceError(err) {
		return err
	}

	rlog.Debugf("%q and %q are on different devices, copy the file", src, dst)

	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tempPath := filepath.Join(filepath.Dir(dst), "."+uuid.NewString()+tempExt)
	out, err := os.OpenFile(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("couldn't copy file: %w", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("couldn't sync file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("couldn't close file: %w", err)
	}
	return os.Rename(tempPath, dst)
}
