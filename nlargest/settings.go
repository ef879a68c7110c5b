package nlargest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings is the persisted part of the configuration.
type Settings struct {
	CachePath string `yaml:"cache_path"`
}

// DefaultSettingsPath returns "<user config dir>/nlargest/config.yaml".
func DefaultSettingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("couldn't get user config dir: %w", err)
	}
	return filepath.Join(dir, "nlargest", "config.yaml"), nil
}

// DefaultCachePath returns "<user cache dir>/nlargest".
func DefaultCachePath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("couldn't get user cache dir: %w", err)
	}
	return filepath.Join(dir, "nlargest"), nil
}

// LoadSettings reads settings from path. If the file doesn't exist, it is created
// with the default cache path.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cachePath, err := DefaultCachePath()
		if err != nil {
			return Settings{}, err
		}
		s := Settings{CachePath: cachePath}
		if err := SaveSettings(path, s); err != nil {
			return Settings{}, fmt.Errorf("couldn't create default config: %w", err)
		}
		return s, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("couldn't read config: %w", err)
	}

	var s Settings
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("config is empty")
		}
		return Settings{}, &ConfigError{Path: path, Err: err}
	}
	if err := s.Validate(); err != nil {
		return Settings{}, &ConfigError{Path: path, Err: err}
	}
	return s, nil
}

func (s Settings) Validate() error {
	if s.CachePath == "" {
		return errors.New("cache_path not found")
	}
	if !filepath.IsAbs(s.CachePath) {
		return fmt.Errorf("cache_path %q is not absolute", s.CachePath)
	}
	return nil
}

// SaveSettings atomically replaces the settings file.
func SaveSettings(path string, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("couldn't encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("couldn't create dir %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("couldn't create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("couldn't write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("couldn't close config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("couldn't rename config: %w", err)
	}
	return nil
}
