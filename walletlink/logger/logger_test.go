package logger

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/push-wallet-link/walletlink/config"
)

func TestNewVariants(t *testing.T) {
	t.Run("json format logs expected fields", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newWithWriter(&buf, int(zerolog.InfoLevel), "json", false)

		logger.Info().Str("key", "value").Msg("json_test")

		require.Contains(t, buf.String(), `"message":"json_test"`)
		require.Contains(t, buf.String(), `"key":"value"`)
	})

	t.Run("console format logs human readable output", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newWithWriter(&buf, int(zerolog.DebugLevel), "console", false)

		logger.Debug().Str("env", "test").Msg("console_log")

		out := stripANSI(buf.String())
		require.Contains(t, out, "console_log")
		require.Contains(t, out, "env=test")
	})

	t.Run("level filters lower events", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newWithWriter(&buf, int(zerolog.WarnLevel), "json", false)

		logger.Info().Msg("hidden")
		logger.Warn().Msg("shown")

		require.NotContains(t, buf.String(), "hidden")
		require.Contains(t, buf.String(), "shown")
	})

	t.Run("sampler drops repeated events", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newWithWriter(&buf, int(zerolog.InfoLevel), "json", true)

		for i := 0; i < 10; i++ {
			logger.Info().Msg("sampled")
		}

		lines := strings.Count(strings.TrimSpace(buf.String()), "\n") + 1
		require.Equal(t, 2, lines)
	})
}

func TestInit(t *testing.T) {
	logger := Init(config.Config{LogLevel: int(zerolog.ErrorLevel), LogFormat: "json"})
	require.Equal(t, zerolog.ErrorLevel, logger.GetLevel())
}

func stripANSI(s string) string {
	return regexp.MustCompile(`\x1b\[[0-9;]*m`).ReplaceAllString(s, "")
}
