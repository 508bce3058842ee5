package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/civium/matchd/internal/logging"
)

func TestConfig_Defaults(t *testing.T) {
	var cfg logging.Config
	cfg.ApplyDefaults()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  logging.Config
		wantErr bool
	}{
		{name: "valid json", config: logging.Config{Level: "debug", Format: "json"}},
		{name: "valid console", config: logging.Config{Level: "warn", Format: "console"}},
		{name: "unknown level", config: logging.Config{Level: "loud", Format: "json"}, wantErr: true},
		{name: "unknown format", config: logging.Config{Level: "info", Format: "xml"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, logging.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	logger, err := logging.New(logging.Config{Level: "debug", Format: "console"})
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = logging.New(logging.Config{Level: "error", Format: "json"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = logging.New(logging.Config{Level: "nope"})
	assert.ErrorIs(t, err, logging.ErrInvalidConfig)
}
