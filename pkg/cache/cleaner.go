package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ShoshinNikita/nlargest/pkg/metrics"
	"github.com/ShoshinNikita/nlargest/pkg/rlog"
)

// staleTempFileAge is the age after which temp files of interrupted downloads
// are removed by every cleanup.
const staleTempFileAge = 24 * time.Hour

// Cleaner can be used to remove old files and control the total size of cache.
// Zero maxFileAge and maxTotalFileSize mean that all files should be removed.
type Cleaner struct {
	dir              string
	maxFileAge       time.Duration
	maxTotalFileSize int64 // in bytes
}

type fileInfo struct {
	path    string
	modTime time.Time
	size    int64
}

type CleanupStats struct {
	RemovedFiles int
	CleanedSpace int64
}

func NewCleaner(c *DiskCache, maxFileAge time.Duration, maxTotalFileSize int64) Cleaner {
	return Cleaner{
		dir:              c.absDir,
		maxFileAge:       maxFileAge,
		maxTotalFileSize: maxTotalFileSize,
	}
}

// Cleanup removes cache files according to the limits. It returns an error
// if any file couldn't be removed.
func (c Cleaner) Cleanup(now time.Time) (CleanupStats, error) {
	entries, tempFiles, err := c.loadAllFiles()
	if err != nil {
		return CleanupStats{}, fmt.Errorf("couldn't load cache files: %w", err)
	}

	filesToRemove := c.getFilesToRemove(entries, now)
	for _, file := range tempFiles {
		if file.modTime.Before(now.Add(-staleTempFileAge)) {
			filesToRemove = append(filesToRemove, file)
		}
	}
	if len(filesToRemove) == 0 {
		rlog.Debug("no cached files to remove")
		return CleanupStats{}, nil
	}

	rlog.Debugf("should remove %d cached files", len(filesToRemove))

	removedFiles, cleanedSpace, errs := c.removeFiles(filesToRemove)
	metrics.CacheRemovedFiles.Add(float64(removedFiles))

	return CleanupStats{
		RemovedFiles: removedFiles,
		CleanedSpace: cleanedSpace,
	}, errors.Join(errs...)
}

// loadAllFiles returns cache entries and temp files. A missing directory
// has no files.
func (c Cleaner) loadAllFiles() (entries, tempFiles []fileInfo, err error) {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	for _, e := range dirEntries {
		if !e.Type().IsRegular() {
			continue
		}

		name := e.Name()
		isEntry := strings.HasSuffix(name, entryExt)
		isTemp := strings.HasSuffix(name, tempExt)
		if !isEntry && !isTemp {
			continue
		}

		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Removed or renamed concurrently.
				continue
			}
			return nil, nil, err
		}
		file := fileInfo{
			path:    filepath.Join(c.dir, name),
			modTime: info.ModTime(),
			size:    info.Size(),
		}
		if isEntry {
			entries = append(entries, file)
		} else {
			tempFiles = append(tempFiles, file)
		}
	}
	return entries, tempFiles, nil
}

func (c Cleaner) getFilesToRemove(files []fileInfo, now time.Time) []fileInfo {
	if c.maxFileAge == 0 && c.maxTotalFileSize == 0 {
		return files
	}

	var (
		oldFiles             []fileInfo
		activeFiles          []fileInfo
		activeFilesTotalSize int64
	)
	for _, file := range files {
		if c.maxFileAge > 0 && file.modTime.Before(now.Add(-c.maxFileAge)) {
			oldFiles = append(oldFiles, file)
		} else {
			activeFiles = append(activeFiles, file)
			activeFilesTotalSize += file.size
		}
	}
	if c.maxTotalFileSize == 0 || activeFilesTotalSize < c.maxTotalFileSize {
		// Should remove only old files.
		return oldFiles
	}

	// Remove old files first.
	slices.SortStableFunc(activeFiles, func(a, b fileInfo) int {
		return a.modTime.Compare(b.modTime)
	})

	var index int
	for i, file := range activeFiles {
		activeFilesTotalSize -= file.size
		if activeFilesTotalSize < c.maxTotalFileSize {
			// Other files satisfy the size limit.
			index = i + 1
			break
		}
	}
	if index == 0 {
		// Impossible, just in case, remove all files.
		index = len(activeFiles)
	}

	return append(oldFiles, activeFiles[:index]...)
}

func (c Cleaner) removeFiles(files []fileInfo) (removedFiles int, cleanedSpace int64, errs []error) {
	for _, file := range files {
		err := os.Remove(file.path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			errs = append(errs, fmt.Errorf("couldn't remove file %q from cache: %w", file.path, err))
			continue
		}
		removedFiles++
		cleanedSpace += file.size
	}
	return removedFiles, cleanedSpace, errs
}
