// Package debuglog sets up the loggers used across a debug session: logrus
// for the session controller and a zap logger, carried in the context, for
// the engines.
package debuglog

import (
	"context"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/solo-io/go-utils/contextutils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	// Level is a logrus level name. Empty means info.
	Level string
	// SpoolURL, when set, also ships every engine log entry to that url.
	SpoolURL string
	// Out is where logrus writes. Nil keeps the current output.
	Out io.Writer
	// Verbose overrides Level with trace, which also dumps every engine event.
	Verbose bool
}

func (o Options) level() (log.Level, error) {
	if o.Verbose {
		return log.TraceLevel, nil
	}
	if o.Level == "" {
		return log.InfoLevel, nil
	}
	return log.ParseLevel(o.Level)
}

// zapLevel maps a logrus level onto the closest zap level.
func zapLevel(l log.Level) zapcore.Level {
	switch l {
	case log.PanicLevel:
		return zapcore.PanicLevel
	case log.FatalLevel:
		return zapcore.FatalLevel
	case log.ErrorLevel:
		return zapcore.ErrorLevel
	case log.WarnLevel:
		return zapcore.WarnLevel
	case log.InfoLevel:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// NewLogger builds the engine logger: console output, plus the spool when configured.
func NewLogger(opts Options) (*zap.SugaredLogger, error) {
	level, err := opts.level()
	if err != nil {
		return nil, err
	}
	cores := []zapcore.Core{ConsoleCore(zapLevel(level))}
	if opts.SpoolURL != "" {
		cores = append(cores, SpoolCore(opts.SpoolURL))
	}
	return zap.New(zapcore.NewTee(cores...)).Sugar(), nil
}

// Setup configures logrus and returns ctx carrying the engine logger.
func Setup(ctx context.Context, opts Options) (context.Context, error) {
	level, err := opts.level()
	if err != nil {
		return ctx, err
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{})
	if opts.Out != nil {
		log.SetOutput(opts.Out)
	}

	logger, err := NewLogger(opts)
	if err != nil {
		return ctx, err
	}
	return contextutils.WithLogger(contextutils.WithExistingLogger(ctx, logger), "squash"), nil
}
