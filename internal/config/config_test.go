package config

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydration/internal/domain"
)

func noEnv(string) string { return "" }

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestReadKeepsDefaults(t *testing.T) {
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(`
locale = "de-DE"

[repository]
type = "memory"
`))
	require.NoError(t, err)

	assert.Equal(t, "de-DE", cfg.Locale)
	assert.Equal(t, RepositoryMemory, cfg.Repository.Type)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestReadInvalid(t *testing.T) {
	m := &Manager{}
	_, err := m.Read(strings.NewReader("locale = "))
	assert.Error(t, err)
}

func TestWriteReadRoundTrip(t *testing.T) {
	m := &Manager{}
	cfg := Default()
	cfg.HTTP.AllowedOrigins = []string{"http://localhost:5173"}
	cfg.Repository = RepositoryConfig{Type: RepositoryPostgres, DSN: "postgres://localhost/hydration"}

	var buf bytes.Buffer
	require.NoError(t, m.Write(&buf, cfg))
	got, err := m.Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, cfg.Repository.Type, got.Repository.Type)
	assert.Equal(t, cfg.Repository.DSN, got.Repository.DSN)
	assert.Equal(t, cfg.HTTP, got.HTTP)
	assert.Equal(t, cfg.Locale, got.Locale)
}

func TestInitAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hydration", "config.toml")
	cfg := Default()
	cfg.Repository = RepositoryConfig{Type: RepositoryMemory}
	cfg.Timezone = "UTC"

	require.NoError(t, Init(path, cfg))
	assert.Error(t, Init(path, cfg), "second init must not overwrite")

	got, err := Load(path, noEnv)
	require.NoError(t, err)
	assert.Equal(t, RepositoryMemory, got.Repository.Type)
	assert.Equal(t, "UTC", got.Timezone)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "absent.toml"), noEnv)
	require.NoError(t, err)
	assert.Equal(t, RepositorySQLite, got.Repository.Type)
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		wantType string
		wantAddr string
		wantLvl  string
	}{
		{
			name:     "no overrides",
			wantType: RepositorySQLite,
			wantAddr: ":8080",
			wantLvl:  "info",
		},
		{
			name:     "database url selects postgres",
			env:      map[string]string{"DATABASE_URL": "postgres://db/h"},
			wantType: RepositoryPostgres,
			wantAddr: ":8080",
			wantLvl:  "info",
		},
		{
			name:     "explicit repository wins",
			env:      map[string]string{"DATABASE_URL": "postgres://db/h", "HYDRATION_REPOSITORY": "memory"},
			wantType: RepositoryMemory,
			wantAddr: ":8080",
			wantLvl:  "info",
		},
		{
			name:     "addr and level",
			env:      map[string]string{"HYDRATION_ADDR": ":9000", "HYDRATION_LOG_LEVEL": "debug"},
			wantType: RepositorySQLite,
			wantAddr: ":9000",
			wantLvl:  "debug",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.ApplyEnv(envMap(tt.env))
			assert.Equal(t, tt.wantType, cfg.Repository.Type)
			assert.Equal(t, tt.wantAddr, cfg.HTTP.Addr)
			assert.Equal(t, tt.wantLvl, cfg.LogLevel)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown repository", func(c *Config) { c.Repository.Type = "redis" }},
		{"sqlite without path", func(c *Config) { c.Repository.Path = "" }},
		{"postgres without dsn", func(c *Config) { c.Repository = RepositoryConfig{Type: RepositoryPostgres} }},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"bad locale", func(c *Config) { c.Locale = "!!" }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad unit", func(c *Config) { c.DefaultUnit = "bucket" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParsedFields(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "WARN"
	cfg.DefaultUnit = "ml"

	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	u, err := cfg.Unit()
	require.NoError(t, err)
	assert.Equal(t, domain.Milliliter, u)
}
