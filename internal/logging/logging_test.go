package logging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupReturnsLoggerForFileConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Level:         "debug",
		FilePath:      filepath.Join(dir, "service.log"),
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("hello", "key", "value")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]bool{
		"debug":   true,
		"info":    true,
		"warn":    true,
		"warning": true,
		"error":   true,
		"bogus":   true, // falls back to info, never errors
	}
	for level := range cases {
		_ = parseLevel(level)
	}
}

func TestDebugConfigOverridesLevel(t *testing.T) {
	cfg := DebugConfig()
	require.Equal(t, "debug", cfg.Level)
}
