package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/ShoshinNikita/nlargest/fetcher"
	"github.com/ShoshinNikita/nlargest/nlargest"
	"github.com/ShoshinNikita/nlargest/pkg/cache"
	"github.com/ShoshinNikita/nlargest/pkg/metrics"
	"github.com/ShoshinNikita/nlargest/pkg/misc"
	"github.com/ShoshinNikita/nlargest/pkg/rlog"
	"github.com/ShoshinNikita/nlargest/records"
	"github.com/ShoshinNikita/nlargest/topn"
)

type App struct {
	cfg nlargest.Config

	settingsPath string
	settings     nlargest.Settings

	cache   *cache.DiskCache
	fetcher nlargest.Fetcher
}

func NewApp(cfg nlargest.Config) *App {
	return &App{
		cfg: cfg,
	}
}

// Prepare loads the settings file and prepares all components required by the command.
func (a *App) Prepare() (err error) {
	if a.cfg.Command == nlargest.CommandVersion {
		return nil
	}

	a.settingsPath = a.cfg.Env.SettingsFile
	if a.settingsPath == "" {
		a.settingsPath, err = nlargest.DefaultSettingsPath()
		if err != nil {
			return err
		}
	}

	a.settings, err = nlargest.LoadSettings(a.settingsPath)
	if err != nil {
		var configErr *nlargest.ConfigError
		if a.cfg.Command == nlargest.CommandSetCacheDir && errors.As(err, &configErr) {
			// set-cache-dir re-initializes the config, there is just nothing to move.
			rlog.Warnf("ignore invalid config: %s", err)
			return nil
		}
		return err
	}
	rlog.Debugf("loaded config %q, cache path: %q", a.settingsPath, a.settings.CachePath)

	a.cache, err = cache.NewDiskCache(a.settings.CachePath)
	if err != nil {
		err = fmt.Errorf("couldn't prepare cache: %w", err)
		if a.cfg.Command == nlargest.CommandSetCacheDir {
			rlog.Warn(err)
			return nil
		}
		return &nlargest.ConfigError{Path: a.settingsPath, Err: err}
	}

	a.fetcher = fetcher.NewFetcher(fetcher.Options{
		Timeout:   a.cfg.Env.HTTPTimeout,
		UserAgent: a.cfg.Env.UserAgent,
	})

	return nil
}

// Run executes the configured command. Command output is written to w.
func (a *App) Run(ctx context.Context, w io.Writer) error {
	switch a.cfg.Command {
	case nlargest.CommandGet:
		return a.Get(ctx, w, a.cfg.Get)
	case nlargest.CommandSetCacheDir:
		return a.SetCacheDir(ctx, w, a.cfg.SetCacheDir.Path)
	case nlargest.CommandClearCache:
		return a.ClearCache(w, a.cfg.ClearCache)
	case nlargest.CommandVersion:
		a.cfg.BuildInfo.Print(w)
		return nil
	default:
		return fmt.Errorf("unknown command %q", a.cfg.Command)
	}
}

// Get writes the ids of the N largest numbers of the remote file to w, one per line.
// Nothing is written if any step fails.
func (a *App) Get(ctx context.Context, w io.Writer, opts nlargest.GetConfig) error {
	if _, err := fetcher.ParseURL(opts.URL); err != nil {
		return err
	}

	forceRefresh := opts.RefreshCache || opts.NoCache
	path, err := a.cache.WriteFromFetch(ctx, opts.URL, opts.ChunkSize, forceRefresh, a.fetcher)
	if err != nil {
		return fmt.Errorf("couldn't get remote file: %w", err)
	}

	result, err := selectFromFile(path, opts.N)
	if err != nil {
		return fmt.Errorf("couldn't process file %q: %w", path, err)
	}

	bw := bufio.NewWriter(w)
	for _, rec := range result {
		bw.WriteString(rec.ID)
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("couldn't write result: %w", err)
	}

	if opts.NoCache {
		if err := a.cache.Remove(ctx, opts.URL); err != nil {
			return fmt.Errorf("couldn't remove cached file: %w", err)
		}
		rlog.Debugf("removed cached file %q", path)
	}
	return nil
}

func selectFromFile(path string, n int) ([]nlargest.Record, error) {
	stream, err := records.Open(path)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	now := time.Now()

	result, err := topn.Select(stream.All(), n)
	if err != nil {
		return nil, err
	}

	dur := time.Since(now)
	metrics.SelectDuration.Observe(dur.Seconds())
	rlog.Infof("selected %d of %s records in %s", len(result), misc.FormatCount(int64(stream.Count())), dur)

	return result, nil
}

// SetCacheDir moves all cached files to dir and saves it as the new cache path.
func (a *App) SetCacheDir(ctx context.Context, w io.Writer, dir string) error {
	if !filepath.IsAbs(dir) {
		return fmt.Errorf("cache path must be absolute, got %q", dir)
	}

	src := a.cache
	if src == nil {
		// Nothing to move.
		var err error
		src, err = cache.NewDiskCache(dir)
		if err != nil {
			return err
		}
	}

	newCache, movedFiles, err := src.MoveTo(ctx, dir)
	if err != nil {
		return fmt.Errorf("couldn't move cache: %w", err)
	}

	settings := a.settings
	settings.CachePath = newCache.Dir()
	if err := nlargest.SaveSettings(a.settingsPath, settings); err != nil {
		return fmt.Errorf("couldn't save config: %w", err)
	}
	a.settings = settings
	a.cache = newCache

	fmt.Fprintf(w, "Cache set to path %s (moved %d files)\n", newCache.Dir(), movedFiles)
	return nil
}

// ClearCache removes cached files. Without limits all files are removed.
func (a *App) ClearCache(w io.Writer, opts nlargest.ClearCacheConfig) error {
	stats, err := cache.NewCleaner(a.cache, opts.MaxAge, opts.MaxSize.Bytes()).Cleanup(time.Now())

	fmt.Fprintf(w, "Removed %d files (%s)\n", stats.RemovedFiles, misc.FormatFileSize(stats.CleanedSpace))

	if err != nil {
		return fmt.Errorf("couldn't clear cache: %w", err)
	}
	return nil
}
