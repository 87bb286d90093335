package log_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulake/shapeld/log"
)

func TestGetLevel(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input   string
		want    slog.Level
		wantErr error
	}{
		"error":         {input: "error", want: slog.LevelError},
		"warn":          {input: "warn", want: slog.LevelWarn},
		"warning alias": {input: "warning", want: slog.LevelWarn},
		"info":          {input: "info", want: slog.LevelInfo},
		"debug":         {input: "debug", want: slog.LevelDebug},
		"mixed case":    {input: "InFo", want: slog.LevelInfo},
		"unknown":       {input: "trace", wantErr: log.ErrUnknownLogLevel},
		"empty":         {input: "", wantErr: log.ErrUnknownLogLevel},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := log.GetLevel(tc.input)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetFormat(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input   string
		want    log.Format
		wantErr error
	}{
		"json":    {input: "json", want: log.FormatJSON},
		"logfmt":  {input: "logfmt", want: log.FormatLogfmt},
		"text":    {input: "TEXT", want: log.FormatText},
		"unknown": {input: "xml", wantErr: log.ErrUnknownLogFormat},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := log.GetFormat(tc.input)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNewHandlerFromStrings(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	handler, err := log.NewHandlerFromStrings(&buf, "info", "json")
	require.NoError(t, err)

	logger := slog.New(handler)
	logger.Info("hello", slog.String("key", "value"))

	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"key":"value"`)
}

func TestConfigNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := log.NewConfig()
	cfg.Format = "json"

	logger, err := cfg.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("ready")
	assert.Contains(t, buf.String(), `"msg":"ready"`)

	logger.Debug("hidden")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewHandlerFromStringsInvalid(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	_, err := log.NewHandlerFromStrings(&buf, "nope", "json")
	require.ErrorIs(t, err, log.ErrInvalidArgument)

	_, err = log.NewHandlerFromStrings(&buf, "info", "nope")
	require.ErrorIs(t, err, log.ErrInvalidArgument)
}
