package observability

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureLogger(t *testing.T) {
	tests := []struct {
		name      string
		config    LoggerConfig
		wantLevel logrus.Level
		wantJSON  bool
	}{
		{
			name:      "debug level",
			config:    LoggerConfig{Level: LogLevelDebug, Format: LogFormatText},
			wantLevel: logrus.DebugLevel,
		},
		{
			name:      "upper case level",
			config:    LoggerConfig{Level: "WARN", Format: LogFormatText},
			wantLevel: logrus.WarnLevel,
		},
		{
			name:      "error level json",
			config:    LoggerConfig{Level: LogLevelError, Format: LogFormatJSON},
			wantLevel: logrus.ErrorLevel,
			wantJSON:  true,
		},
		{
			name:      "default level for invalid",
			config:    LoggerConfig{Level: "invalid"},
			wantLevel: logrus.InfoLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := ConfigureLogger(tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, logger.Level)

			_, isJSON := logger.Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.wantJSON, isJSON)
		})
	}
}

func TestConfigureLoggerWithFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ycheck.log")

	logger, err := ConfigureLogger(LoggerConfig{
		Level:      LogLevelInfo,
		Format:     LogFormatText,
		OutputPath: path,
	})
	require.NoError(t, err)

	logger.Info("test message")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "test message")
}

func TestConfigureLoggerBadOutputPath(t *testing.T) {
	_, err := ConfigureLogger(LoggerConfig{OutputPath: filepath.Join(t.TempDir(), "missing", "x.log")})
	require.Error(t, err)
}

func TestRunID(t *testing.T) {
	id1 := GenerateRunID()
	id2 := GenerateRunID()

	assert.Len(t, id1, 36)
	assert.NotEqual(t, id1, id2)

	ctx := context.Background()
	assert.Empty(t, GetRunID(ctx))

	ctx = WithRunID(ctx, id1)
	assert.Equal(t, id1, GetRunID(ctx))
}

func TestRunScopedLogger(t *testing.T) {
	base, hook := test.NewNullLogger()

	RunScopedLogger(base, context.Background()).Info("no run")
	require.NotNil(t, hook.LastEntry())
	assert.NotContains(t, hook.LastEntry().Data, "run_id")

	ctx := WithRunID(context.Background(), "run-1")
	RunScopedLogger(base, ctx).Info("with run")
	assert.Equal(t, "run-1", hook.LastEntry().Data["run_id"])
}

func TestLoggerFromContext(t *testing.T) {
	defaultLogger := logrus.New()

	//nolint:staticcheck // nil context is handled explicitly.
	logger := LoggerFromContext(nil, defaultLogger)
	assert.Equal(t, defaultLogger, logger)

	ctx := context.Background()
	assert.Equal(t, defaultLogger, LoggerFromContext(ctx, defaultLogger))

	ctxLogger := logrus.New()
	ctx = WithLogger(ctx, ctxLogger)
	assert.Equal(t, ctxLogger, LoggerFromContext(ctx, defaultLogger))
}

func TestIsValidLogLevel(t *testing.T) {
	assert.True(t, IsValidLogLevel("debug"))
	assert.True(t, IsValidLogLevel("info"))
	assert.True(t, IsValidLogLevel("warn"))
	assert.True(t, IsValidLogLevel("error"))
	assert.True(t, IsValidLogLevel("DEBUG"))
	assert.False(t, IsValidLogLevel("invalid"))
	assert.False(t, IsValidLogLevel(""))
}

func TestIsValidLogFormat(t *testing.T) {
	assert.True(t, IsValidLogFormat("text"))
	assert.True(t, IsValidLogFormat("json"))
	assert.True(t, IsValidLogFormat("TEXT"))
	assert.False(t, IsValidLogFormat("invalid"))
	assert.False(t, IsValidLogFormat(""))
}

func TestDefaultLogger(t *testing.T) {
	logger := DefaultLogger()
	assert.Equal(t, logrus.InfoLevel, logger.Level)
	assert.Equal(t, io.Writer(os.Stderr), logger.Out)
}

func TestLoggerConfigApplyDefaults(t *testing.T) {
	config := LoggerConfig{}
	config.ApplyDefaults()

	assert.Equal(t, LogLevelInfo, config.Level)
	assert.Equal(t, LogFormatText, config.Format)
}

func TestWriteTextfile(t *testing.T) {
	EventsDispatchedTotal.WithLabelValues("test", "simple").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(EventsDispatchedTotal.WithLabelValues("test", "simple")), 1.0)

	path := filepath.Join(t.TempDir(), "ycheck.prom")
	require.NoError(t, WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "ycheck_events_dispatched_total")
}
