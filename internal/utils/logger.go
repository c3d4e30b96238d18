package utils

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerOptions controls the console logger.
type LoggerOptions struct {
	Level  zap.AtomicLevel
	Output io.Writer
	// Colored forces colored level names; nil detects a terminal on Output.
	Colored *bool
}

// NewApplicationLogger constructs a zap logger configured for human-readable console output.
func NewApplicationLogger(options LoggerOptions) *zap.Logger {
	output := options.Output
	if output == nil {
		output = os.Stderr
	}
	level := options.Level
	if level == (zap.AtomicLevel{}) {
		level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = ""
	encoderConfig.NameKey = ""
	encoderConfig.CallerKey = ""
	encoderConfig.StacktraceKey = ""
	encoderConfig.MessageKey = "message"
	encoderConfig.LevelKey = ""
	if colored := isColored(options.Colored, output); colored {
		encoderConfig.LevelKey = "level"
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(output), level)
	return zap.New(core)
}

func isColored(forced *bool, output io.Writer) bool {
	if forced != nil {
		return *forced
	}
	file, isFile := output.(*os.File)
	if !isFile {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
