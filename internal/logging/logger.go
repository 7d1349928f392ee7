// Package logging is the log sink the core emits structured events through
// (spec §1: "the core emits structured events through a log sink
// interface"). Grounded verbatim on internal/infra/logger/logger.go's shape:
// a level enum, an append-mode file logger, and an io.Writer implementation
// so third-party libraries (echo, golang-migrate) can be redirected into it.
package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func ParseLevel(lvl string) Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is the log sink. One instance is constructed at program entry and
// passed down explicitly to every component that needs it (Design Notes:
// ambient singletons become explicit dependencies).
type Logger struct {
	fileLogger    *log.Logger
	level         Level
	includeStdout bool
}

func New(filePath string, level Level, includeStdout bool) (*Logger, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Logger{fileLogger: log.New(f, "", 0), level: level, includeStdout: includeStdout}, nil
}

func (l *Logger) log(lvl Level, prefix, format string, v ...interface{}) {
	if lvl < l.level {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	full := fmt.Sprintf("%s [%s] %s", timestamp, prefix, fmt.Sprintf(format, v...))
	l.fileLogger.Println(full)
	if l.includeStdout && lvl >= LevelInfo {
		fmt.Println(full)
	}
}

func (l *Logger) Debug(f string, v ...any) { l.log(LevelDebug, "DEBUG", f, v...) }
func (l *Logger) Info(f string, v ...any)  { l.log(LevelInfo, "INFO", f, v...) }
func (l *Logger) Warn(f string, v ...any)  { l.log(LevelWarn, "WARN", f, v...) }
func (l *Logger) Error(f string, v ...any) { l.log(LevelError, "ERROR", f, v...) }
func (l *Logger) Fatal(f string, v ...any) { l.log(LevelFatal, "FATAL", f, v...); os.Exit(1) }

// Write implements io.Writer so third-party loggers (echo's middleware,
// golang-migrate) can be redirected into this sink.
func (l *Logger) Write(p []byte) (int, error) {
	if msg := strings.TrimSpace(string(p)); msg != "" {
		l.Info("%s", msg)
	}
	return len(p), nil
}

// Progress logs the aggregate download progress in human-readable form. The
// coordinator calls it each time it recomputes speed (every
// coordinator.Config.SpeedInterval), not on the session-snapshot cadence;
// grounded on internal/engine/downloader.go's renderCLIProgress but using
// go-humanize instead of hand-rolled MB/s formatting.
func (l *Logger) Progress(sessionID string, downloaded, total int64, speedBps float64) {
	if total >= 0 {
		l.Info("session %s: %s / %s (%s/s)", sessionID,
			humanize.Bytes(uint64(downloaded)), humanize.Bytes(uint64(total)),
			humanize.Bytes(uint64(speedBps)))
		return
	}
	l.Info("session %s: %s (%s/s)", sessionID, humanize.Bytes(uint64(downloaded)), humanize.Bytes(uint64(speedBps)))
}
