// Package logging builds the process logger.
package logging

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is warn, or debug when verbose.
func Level(verbose bool) zapcore.Level {
	if verbose {
		return zapcore.DebugLevel
	}
	return zapcore.WarnLevel
}

// New returns a console-encoded logger writing to w. Output uses the zap
// production encoder keys so lines stay greppable.
func New(w io.Writer, verbose bool) *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(zapcore.AddSync(w)), Level(verbose))
	return zap.New(core, zap.ErrorOutput(zapcore.AddSync(w)))
}
