package log

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger provides centralized logging for the entire application
type Logger struct {
	logger *slog.Logger
	closer io.Closer
}

var globalLogger *Logger

// init creates the global logger with console output by default
func init() {
	level := slog.LevelInfo
	if isatty.IsTerminal(os.Stdout.Fd()) {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	globalLogger = &Logger{
		logger: slog.New(handler),
	}
}

// SetFileOutput configures the logger to write to the specified file.
// Output rotates at 10MB, keeping three compressed backups.
func SetFileOutput(filename string) error {
	rotator := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		Compress:   true,
	}

	handler := slog.NewTextHandler(rotator, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format to match old format
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   slog.TimeKey,
					Value: slog.StringValue(a.Value.Time().Format("2006/01/02 15:04:05.000000")),
				}
			}
			return a
		},
	})

	if globalLogger != nil && globalLogger.closer != nil {
		globalLogger.closer.Close()
	}

	globalLogger = &Logger{
		logger: slog.New(handler),
		closer: rotator,
	}
	return nil
}

// Standard logging methods
func Debug(msg string, args ...any) {
	if globalLogger != nil {
		globalLogger.logger.Debug(msg, args...)
	}
}

func Info(msg string, args ...any) {
	if globalLogger != nil {
		globalLogger.logger.Info(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if globalLogger != nil {
		globalLogger.logger.Warn(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if globalLogger != nil {
		globalLogger.logger.Error(msg, args...)
	}
}

// Close closes the logger's file output
func Close() {
	if globalLogger != nil && globalLogger.closer != nil {
		globalLogger.closer.Close()
	}
}
