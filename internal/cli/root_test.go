package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"dev", "dev"},
		{"", ""},
		{"1.2.3", "v1.2.3"},
		{"v1.2.3", "v1.2.3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatVersion(tt.in))
	}
}

func TestBuildConfigLayersFlagsOverFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	require.NoError(t, rootCmd.ParseFlags([]string{
		"--cookie", "monster",
		"--interval", "3s",
		"--port", "9100",
	}))

	cfg, err := buildConfig(rootCmd, "demo@myhost")
	require.NoError(t, err)

	assert.Equal(t, "monster", cfg.Cookie)
	assert.Equal(t, 3*time.Second, cfg.Interval)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "demo", cfg.NodeName)
	assert.Equal(t, "myhost", cfg.NodeHost)
}

func TestBuildConfigRejectsBadNode(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := buildConfig(rootCmd, "@nohost")
	assert.Error(t, err)
}

func TestRootCommandRequiresNodeArg(t *testing.T) {
	err := rootCmd.Args(rootCmd, []string{})
	assert.Error(t, err)

	err = rootCmd.Args(rootCmd, []string{"demo@myhost"})
	assert.NoError(t, err)
}
