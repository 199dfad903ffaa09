package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushchain/push-wallet-link/walletlink/config"
)

// New returns a logger writing to stderr, keeping stdout free for command output.
// Any format other than "json" is rendered for the console. With logSampler
// only one in five events is kept.
func New(logLevel int, logFormat string, logSampler bool) zerolog.Logger {
	return newWithWriter(os.Stderr, logLevel, logFormat, logSampler)
}

// Init builds the process logger from the loaded config.
func Init(cfg config.Config) zerolog.Logger {
	return New(cfg.LogLevel, cfg.LogFormat, cfg.LogSampler)
}

func newWithWriter(out io.Writer, logLevel int, logFormat string, logSampler bool) zerolog.Logger {
	if logFormat != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(out).Level(zerolog.Level(logLevel)).With().Timestamp().Logger()
	if !logSampler {
		return l
	}
	return l.Sample(&zerolog.BasicSampler{N: 5})
}
