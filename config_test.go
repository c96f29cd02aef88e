package berth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(`
name: api
stop_timeout: 5s
log_level: debug
strict_operations: false
`))
	require.NoError(t, err)

	assert.Equal(t, "api", cfg.Name)
	assert.Equal(t, 5*time.Second, cfg.StopTimeout)
	assert.False(t, cfg.StrictOperations)

	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = LoadConfig(strings.NewReader("name: worker\n"))
	require.NoError(t, err)
	assert.Equal(t, "worker", cfg.Name)
	assert.Equal(t, 30*time.Second, cfg.StopTimeout)
	assert.True(t, cfg.StrictOperations)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "nmae: typo\n"},
		{"negative timeout", "stop_timeout: -1s\n"},
		{"bad level", "log_level: loud\n"},
		{"bad duration", "stop_timeout: soon\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "warn"

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestBuilder_UsesConfiguredName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Name = "configured"

	s := mustBuild(t, NewBuilder(WithConfig(cfg)), nil)
	assert.Equal(t, "configured", s.ID())

	generated := mustBuild(t, NewBuilder(), nil)
	assert.Len(t, generated.ID(), 36)

	b := NewBuilder()
	mustBuild(t, b, nil)

	_, err := b.Build(nil)
	assert.ErrorIs(t, err, ErrIllegalState)

	bad := DefaultConfig()
	bad.StopTimeout = -time.Second

	_, err = NewBuilder(WithConfig(bad)).Build(nil)
	assert.Error(t, err)
}
