// Package runlog builds the run event logger.
//
// Every pipeline event is one JSON line appended to the run's log file, shaped
// {"ts": <epoch seconds>, "event": "<name>", ...fields}. With verbose on, events
// are mirrored to stdout with bulky payload fields (full prompts, completions,
// diffs, staged sources) dropped so the console stays scannable while the file
// keeps everything.
package runlog

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fields elided from the console mirror. The JSONL file always gets them.
var elidedFields = map[string]struct{}{
	"prompt":      {},
	"completion":  {},
	"diff":        {},
	"java_source": {},
}

// New opens (or appends to) the JSONL event log at path and returns the logger
// plus a close func that flushes and releases the file.
func New(path string, verbose bool) (*zap.Logger, func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	var mirror zapcore.WriteSyncer
	if verbose {
		mirror = zapcore.Lock(os.Stdout)
	}
	logger := build(zapcore.AddSync(f), mirror)
	closeFn := func() {
		_ = logger.Sync()
		_ = f.Close()
	}
	return logger, closeFn, nil
}

func build(sink, mirror zapcore.WriteSyncer) *zap.Logger {
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), sink, zapcore.DebugLevel)
	if mirror == nil {
		return zap.New(fileCore)
	}
	console := mirrorCore{Core: zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), mirror, zapcore.DebugLevel)}
	return zap.New(zapcore.NewTee(fileCore, console))
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		MessageKey:     "event",
		LevelKey:       zapcore.OmitKey,
		NameKey:        zapcore.OmitKey,
		CallerKey:      zapcore.OmitKey,
		FunctionKey:    zapcore.OmitKey,
		StacktraceKey:  zapcore.OmitKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.EpochTimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
	}
}

// mirrorCore wraps the console core and drops the elided fields on every write.
type mirrorCore struct {
	zapcore.Core
}

func (c mirrorCore) With(fields []zapcore.Field) zapcore.Core {
	return mirrorCore{Core: c.Core.With(keep(fields))}
}

func (c mirrorCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c mirrorCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, keep(fields))
}

func keep(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, 0, len(fields))
	for _, f := range fields {
		if _, skip := elidedFields[f.Key]; skip {
			continue
		}
		out = append(out, f)
	}
	return out
}
