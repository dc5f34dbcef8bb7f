package smartaccess

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrInvalidSettings indicates out-of-range tuning values.
var ErrInvalidSettings = errors.New("invalid smart access settings")

// Settings are the admin-tunable anomaly knobs.
type Settings struct {
	// Threshold is the cosine similarity below which an event is flagged.
	Threshold float64 `json:"threshold"`

	// BaselineDays is the distinct-day count required before scoring.
	BaselineDays int `json:"baseline_days"`
}

// DefaultSettings returns the shipped defaults.
func DefaultSettings() Settings {
	return Settings{Threshold: 0.85, BaselineDays: 30}
}

// Validate checks settings ranges. Cosine similarity lives in [-1, 1].
func (s Settings) Validate() error {
	if s.Threshold < -1 || s.Threshold > 1 {
		return fmt.Errorf("%w: threshold must be within [-1, 1], got %g", ErrInvalidSettings, s.Threshold)
	}
	if s.BaselineDays < 1 {
		return fmt.Errorf("%w: baseline days must be at least 1, got %d", ErrInvalidSettings, s.BaselineDays)
	}
	return nil
}

// SettingsStore is a file-backed settings holder safe for concurrent use.
//
// Updates persist to disk; external edits to the file are picked up by
// Watch. A missing or unreadable file falls back to the given defaults.
type SettingsStore struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	current Settings
}

// NewSettingsStore creates a store backed by path, loading the file when it
// exists and falling back to defaults otherwise.
func NewSettingsStore(path string, defaults Settings, logger *zap.Logger) (*SettingsStore, error) {
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &SettingsStore{
		path:    path,
		logger:  logger,
		current: defaults,
	}
	if path != "" {
		if err := s.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading settings: %w", err)
		}
	}
	return s, nil
}

// Get returns the current settings.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update validates, persists, and applies new settings.
func (s *SettingsStore) Update(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path != "" {
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding settings: %w", err)
		}
		if err := os.WriteFile(s.path, data, 0o600); err != nil {
			return fmt.Errorf("writing settings: %w", err)
		}
	}
	s.current = settings
	return nil
}

// load reads settings from disk, keeping the current value on invalid
// content.
func (s *SettingsStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("decoding settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = settings
	s.mu.Unlock()
	return nil
}

// Watch reloads settings when the backing file changes, until the watcher
// is closed via the returned function. Reload failures keep the previous
// settings and log a warning.
func (s *SettingsStore) Watch() (func() error, error) {
	if s.path == "" {
		return func() error { return nil }, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating settings watcher: %w", err)
	}

	// Watch the directory: editors and atomic writers replace the file,
	// which drops a watch set on the file itself.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching settings dir: %w", err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := s.load(); err != nil {
					s.logger.Warn("settings reload failed, keeping previous values",
						zap.String("path", s.path), zap.Error(err))
					continue
				}
				s.logger.Info("settings reloaded", zap.String("path", s.path))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("settings watcher error", zap.Error(err))
			}
		}
	}()

	return watcher.Close, nil
}
