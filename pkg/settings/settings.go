// Package settings persists the provider configuration between runs. It is
// the single piece of state the application keeps on disk.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/germanamz/taskbot/pkg/engine"
)

// ErrNotConfigured is returned by Load when nothing has been saved yet.
var ErrNotConfigured = errors.New("settings: provider not configured")

// Store loads and saves the provider configuration.
type Store interface {
	Load() (engine.ProviderConfig, error)
	Save(cfg engine.ProviderConfig) error
}

// FileStore keeps the configuration as a JSON file. Reads and writes take an
// advisory lock on a sibling ".lock" file so concurrent processes never see a
// half-written file.
type FileStore struct {
	path string
	lock *flock.Flock
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store backed by path. The file need not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the settings file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the configuration. A missing file yields ErrNotConfigured.
func (s *FileStore) Load() (engine.ProviderConfig, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return engine.ProviderConfig{}, fmt.Errorf("settings: create dir: %w", err)
	}
	if err := s.lock.RLock(); err != nil {
		return engine.ProviderConfig{}, fmt.Errorf("settings: lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return engine.ProviderConfig{}, ErrNotConfigured
	}
	if err != nil {
		return engine.ProviderConfig{}, fmt.Errorf("settings: read: %w", err)
	}

	var cfg engine.ProviderConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return engine.ProviderConfig{}, fmt.Errorf("settings: decode %s: %w", s.path, err)
	}

	if cfg.IsZero() {
		return engine.ProviderConfig{}, ErrNotConfigured
	}

	return cfg, nil
}

// Save writes the configuration atomically (temp file plus rename).
func (s *FileStore) Save(cfg engine.ProviderConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("settings: create dir: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("settings: lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("settings: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("settings: replace: %w", err)
	}

	return nil
}

// MemoryStore is an in-process Store for callers that keep the settings
// somewhere other than a file, such as an embedding program or a test.
type MemoryStore struct {
	mu  sync.Mutex
	cfg engine.ProviderConfig
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a store pre-populated with cfg.
func NewMemoryStore(cfg engine.ProviderConfig) *MemoryStore {
	return &MemoryStore{cfg: cfg}
}

func (m *MemoryStore) Load() (engine.ProviderConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.IsZero() {
		return engine.ProviderConfig{}, ErrNotConfigured
	}
	return m.cfg, nil
}

func (m *MemoryStore) Save(cfg engine.ProviderConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cfg = cfg
	return nil
}
