// Package observability holds the process-wide CLI logger.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by commands. It is a no-op until
// InitCLILogger runs so library code never sees nil.
var CLILogger = zap.NewNop()

// InitCLILogger installs a console logger on stderr.
//
// level is a zap level name ("debug", "info", "warn", "error"); verbose
// forces debug.
func InitCLILogger(name, level string, verbose bool) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encCfg.TimeKey = ""
	if lvl > zapcore.DebugLevel {
		encCfg.CallerKey = ""
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		lvl,
	)
	CLILogger = zap.New(core).Named(name)
	return nil
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", level)
	}
	return lvl, nil
}

// Sync flushes the CLI logger. Errors from syncing a terminal are ignored.
func Sync() {
	_ = CLILogger.Sync()
}
