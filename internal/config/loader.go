package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024

	// EnvPrefix marks environment overrides. A double underscore nests:
	// LEXFLOW_GENERATION__MODEL sets generation.model.
	EnvPrefix = "LEXFLOW_"
)

// DefaultPath returns ~/.config/lexflow/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "lexflow", "config.yaml"), nil
}

// AllowedDirs returns the directories config files may be read from.
func AllowedDirs() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return []string{filepath.Join(home, ".config", "lexflow"), "/etc/lexflow"}, nil
}

// Load reads the YAML file at path (or the default path when empty), then
// applies environment overrides, defaults and validation.
//
// Precedence, highest first: LEXFLOW_ environment variables, the file,
// built-in defaults. A missing file is not an error.
//
// The file must live under one of AllowedDirs, be no larger than 1MB and
// carry 0600 or 0400 permissions.
func Load(path string) (*Config, error) {
	dirs, err := AllowedDirs()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path, dirs)
}

// LoadFrom is Load with an explicit directory allow-list.
func LoadFrom(path string, allowedDirs []string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := validateConfigPath(path, allowedDirs); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	content, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(content)
}

// Parse builds a Config from YAML content plus environment overrides.
func Parse(content []byte) (*Config, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := base()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps LEXFLOW_CACHE__REDIS__ADDR to cache.redis.addr.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// readConfigFile returns nil content when the file does not exist.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	// Stat the open descriptor so the checks apply to what is read.
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func validateConfigPath(path string, allowedDirs []string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	// Paths that do not exist yet are checked as written.
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		absPath = resolved
	}

	for _, dir := range allowedDirs {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			dir = resolved
		}
		rel, err := filepath.Rel(dir, absPath)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in one of %s", strings.Join(allowedDirs, ", "))
}

func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// EnsureConfigDir creates ~/.config/lexflow with 0700 permissions.
func EnsureConfigDir() error {
	p, err := DefaultPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return nil
}
