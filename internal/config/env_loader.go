package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvLoader loads environment variables from .env files.
type EnvLoader struct {
	loaded  map[string]string
	logger  *slog.Logger
	baseDir string
}

// NewEnvLoader creates a new environment loader.
func NewEnvLoader(baseDir string, logger *slog.Logger) *EnvLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnvLoader{
		baseDir: baseDir,
		logger:  logger,
		loaded:  make(map[string]string),
	}
}

// LoadEnvFiles loads .env files in priority order, last one wins:
// .env.defaults, .env.{environment}, .env.local, .env. Variables already set
// in the process environment are never overwritten.
func (l *EnvLoader) LoadEnvFiles(environment string) error {
	envFiles := []string{
		".env.defaults",
		fmt.Sprintf(".env.%s", environment),
		".env.local",
		".env",
	}

	for _, filename := range envFiles {
		path := filepath.Join(l.baseDir, filename)
		if err := l.loadEnvFile(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("failed to load env file", "file", filename, "error", err)
		}
	}

	for key, value := range l.loaded {
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set environment variable %s: %w", key, err)
		}
	}

	return nil
}

// loadEnvFile parses a single dotenv file.
func (l *EnvLoader) loadEnvFile(path string) error {
	file, err := os.Open(path) // #nosec G304 -- path is built from a fixed file list
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	v := viper.New()
	v.SetConfigType("env")
	if err := v.ReadConfig(file); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	for _, key := range v.AllKeys() {
		l.loaded[strings.ToUpper(key)] = os.ExpandEnv(v.GetString(key))
	}

	return nil
}

// GetLoadedVars returns all loaded environment variables.
func (l *EnvLoader) GetLoadedVars() map[string]string {
	result := make(map[string]string, len(l.loaded))
	for k, v := range l.loaded {
		result[k] = v
	}
	return result
}

// AutoLoadEnv loads env files for the environment named by ENVIRONMENT,
// defaulting to development.
func AutoLoadEnv(baseDir string, logger *slog.Logger) error {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	return NewEnvLoader(baseDir, logger).LoadEnvFiles(env)
}
