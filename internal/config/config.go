// Package config reads and writes the hydration configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"golang.org/x/text/language"

	"hydration/internal/domain"
)

// Repository types.
const (
	RepositoryMemory   = "memory"
	RepositorySQLite   = "sqlite"
	RepositoryPostgres = "postgres"
)

// Config represents the main configuration for hydration.
type Config struct {
	Locale      string           `toml:"locale"`       // BCP 47 tag, e.g. "en-US"
	Timezone    string           `toml:"timezone"`     // IANA name or "Local"
	LogLevel    string           `toml:"log_level"`    // debug, info, warn or error
	DefaultUnit string           `toml:"default_unit"` // used until a preference is stored
	HTTP        HTTPConfig       `toml:"http"`
	Repository  RepositoryConfig `toml:"repository"`
}

// HTTPConfig holds the settings for the serve command.
type HTTPConfig struct {
	Addr           string   `toml:"addr"`
	WebDir         string   `toml:"web_dir,omitempty"`
	PasswordHash   string   `toml:"password_hash,omitempty"` // bcrypt; empty disables basic auth
	AllowedOrigins []string `toml:"allowed_origins,omitempty"`
}

// RepositoryConfig selects the health-data store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RepositoryConfig struct {
	Type string `toml:"type"`           // "memory", "sqlite" or "postgres"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
	DSN  string `toml:"dsn,omitempty"`  // only used for type=postgres
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Locale:      "en-US",
		Timezone:    "Local",
		LogLevel:    "info",
		DefaultUnit: string(domain.FluidOunceUS),
		HTTP:        HTTPConfig{Addr: ":8080"},
		Repository: RepositoryConfig{
			Type: RepositorySQLite,
			Path: filepath.Join(xdg.DataHome, "hydration", "hydration.db"),
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/hydration/config.toml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "hydration", "config.toml")
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader. Keys missing from the
// input keep their defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads path if it exists, falls back to Default otherwise, applies
// environment overrides and validates the result.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg, err := ReadFromFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from HYDRATION_ADDR, DATABASE_URL,
// HYDRATION_REPOSITORY and HYDRATION_LOG_LEVEL. A DATABASE_URL without an
// explicit repository type selects postgres.
func (c *Config) ApplyEnv(getenv func(string) string) {
	env := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fallback
	}

	c.HTTP.Addr = env("HYDRATION_ADDR", c.HTTP.Addr)
	c.LogLevel = env("HYDRATION_LOG_LEVEL", c.LogLevel)
	if dsn := getenv("DATABASE_URL"); dsn != "" {
		c.Repository.DSN = dsn
		c.Repository.Type = RepositoryPostgres
	}
	c.Repository.Type = env("HYDRATION_REPOSITORY", c.Repository.Type)
}

// Validate checks every field that is parsed later.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Language(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.Unit(); err != nil {
		return err
	}
	switch c.Repository.Type {
	case RepositoryMemory:
	case RepositorySQLite:
		if c.Repository.Path == "" {
			return errors.New("repository.path is required for sqlite")
		}
	case RepositoryPostgres:
		if c.Repository.DSN == "" {
			return errors.New("repository.dsn (or DATABASE_URL) is required for postgres")
		}
	default:
		return fmt.Errorf("unknown repository type %q", c.Repository.Type)
	}
	return nil
}

// Location resolves Timezone. Empty and "Local" mean the system zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

// Language parses Locale.
func (c *Config) Language() (language.Tag, error) {
	if c.Locale == "" {
		return language.AmericanEnglish, nil
	}
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return language.Und, fmt.Errorf("locale: %w", err)
	}
	return tag, nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(strings.ToLower(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Unit parses DefaultUnit.
func (c *Config) Unit() (domain.Unit, error) {
	if c.DefaultUnit == "" {
		return domain.FluidOunceUS, nil
	}
	u, err := domain.ParseUnit(c.DefaultUnit)
	if err != nil {
		return "", fmt.Errorf("default_unit: %w", err)
	}
	return u, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
