package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamtop/beamtop/internal/errors"
)

func TestSplitNode(t *testing.T) {
	tests := []struct {
		name     string
		node     string
		wantName string
		wantHost string
		wantErr  bool
	}{
		{"full form", "demo@myhost", "demo", "myhost", false},
		{"fqdn host", "demo@db.example.com", "demo", "db.example.com", false},
		{"bare name defaults host", "demo", "demo", "localhost", false},
		{"empty", "", "", "", true},
		{"missing name", "@myhost", "", "", true},
		{"missing host", "demo@", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, host, err := SplitNode(tt.node)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantHost, host)
		})
	}
}

func TestFinalize(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Finalize("demo@myhost"))
	assert.Equal(t, "demo", cfg.NodeName)
	assert.Equal(t, "myhost", cfg.NodeHost)
	assert.Equal(t, time.Second, cfg.Interval)
	assert.Greater(t, cfg.History, 0, "history capacity gets a default")
}

func TestFinalizeKeepsExplicitSettings(t *testing.T) {
	cfg := &Config{Interval: 5 * time.Second, History: 42}
	require.NoError(t, cfg.Finalize("demo@myhost"))
	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.Equal(t, 42, cfg.History)
}

func TestResolveCookieFlagWins(t *testing.T) {
	cfg := &Config{Cookie: "monster", CookieFile: "/nonexistent"}
	cookie, err := cfg.ResolveCookie()
	require.NoError(t, err)
	assert.Equal(t, "monster", cookie)
}

func TestResolveCookieFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookie")
	require.NoError(t, os.WriteFile(path, []byte("monster\n"), 0o600))

	cfg := &Config{CookieFile: path}
	cookie, err := cfg.ResolveCookie()
	require.NoError(t, err)
	assert.Equal(t, "monster", cookie, "trailing newline is trimmed")
}

func TestResolveCookieMissingFileErrors(t *testing.T) {
	cfg := &Config{CookieFile: filepath.Join(t.TempDir(), "missing")}
	_, err := cfg.ResolveCookie()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestResolveCookieHomeFallback(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, DefaultCookieFile), []byte("secret"), 0o600))

	cfg := &Config{}
	cookie, err := cfg.ResolveCookie()
	require.NoError(t, err)
	assert.Equal(t, "secret", cookie)
}

func TestResolveCookieNothingFound(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := &Config{}
	cookie, err := cfg.ResolveCookie()
	require.NoError(t, err)
	assert.Empty(t, cookie, "caller should prompt interactively")
}

func TestLoadGlobalConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, GlobalConfigDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	yaml := "interval: 2s\nhistory: 90\nmsacc: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, GlobalConfigFile), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Interval)
	assert.Equal(t, 90, cfg.History)
	assert.True(t, cfg.MSAcc)
}

func TestLoadMissingConfigUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Interval)
}

func TestLoadInvalidYAML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, GlobalConfigDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, GlobalConfigFile), []byte("interval: [broken"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}
