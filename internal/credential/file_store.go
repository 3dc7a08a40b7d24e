package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/domain"
)

// FileStore persists credentials as a YAML document on disk. Every call reads
// the file again, so processes sharing the path observe each other's writes.
type FileStore struct {
	logger *slog.Logger
	path   string
	mu     sync.Mutex
}

// validateStorePath validates that the store path is safe
func validateStorePath(path string) error {
	cleanPath := filepath.Clean(path)

	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if segment == ".." {
			return fmt.Errorf("invalid credential store path: path traversal not allowed")
		}
	}

	if !filepath.IsAbs(cleanPath) {
		return fmt.Errorf("invalid credential store path: must be absolute path")
	}

	return nil
}

// NewFileStore creates a file-backed store at path. The file is created on the
// first Put.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if err := validateStorePath(path); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &FileStore{
		path:   filepath.Clean(path),
		logger: logger.With("component", "credential_store", "backend", "file"),
	}, nil
}

// Path returns the location of the credential file.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns the stored token for kind.
func (s *FileStore) Get(_ context.Context, kind Kind) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		s.unavailable("read", err)
		return "", false
	}

	v := entries[kind.Key()]
	return v, v != ""
}

// Put stores the access token and, when supplied, the refresh token.
func (s *FileStore) Put(_ context.Context, access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		// A corrupt document is replaced rather than blocking login.
		s.unavailable("read", err)
		entries = make(map[string]string)
	}

	entries[Access.Key()] = access
	if refresh != "" {
		entries[Refresh.Key()] = refresh
	}

	if err := s.save(entries); err != nil {
		s.unavailable("write", err)
	}
}

// Clear removes both tokens.
func (s *FileStore) Clear(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.unavailable("clear", err)
	}
}

func (s *FileStore) load() (map[string]string, error) {
	entries := make(map[string]string)

	data, err := os.ReadFile(s.path) //nolint:gosec // Path is validated by validateStorePath
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse credential file: %w", err)
	}
	if entries == nil {
		entries = make(map[string]string)
	}

	return entries, nil
}

// save writes to a temporary file in the same directory and renames it over
// the target, so readers never see a partial document.
func (s *FileStore) save(entries map[string]string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temporary credential file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set credential file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}

	return nil
}

func (s *FileStore) unavailable(op string, cause error) {
	err := domain.NewStorageUnavailableError("CREDENTIAL_FILE_"+strings.ToUpper(op), "Credential file unavailable", cause)
	s.logger.Warn("credential storage unavailable, treating as absent",
		"op", op,
		"path", s.path,
		"error", err,
	)
}
