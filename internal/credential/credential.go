// Package credential persists the single follow-up API credential between runs.
package credential

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// fileFormat is the on-disk layout.
type fileFormat struct {
	APIKey string `yaml:"api_key"`
}

// Store reads and writes the credential file. It is safe for concurrent use.
type Store struct {
	path string

	mu   sync.Mutex
	last string
}

// NewStore creates a store backed by path. An empty path disables persistence.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load returns the persisted credential, or "" when none was saved.
func (s *Store) Load() (string, error) {
	if s.path == "" {
		return "", nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading credential file: %w", err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("parsing credential file: %w", err)
	}

	s.mu.Lock()
	s.last = f.APIKey
	s.mu.Unlock()
	return f.APIKey, nil
}

// Save writes credential to the file. Writing the value already stored is a no-op.
func (s *Store) Save(credential string) error {
	if s.path == "" || credential == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if credential == s.last {
		return nil
	}

	data, err := yaml.Marshal(fileFormat{APIKey: credential})
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating credential dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing credential file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing credential file: %w", err)
	}
	s.last = credential
	return nil
}

// Resolve picks the configured credential, falling back to the persisted one.
func (s *Store) Resolve(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	return s.Load()
}
