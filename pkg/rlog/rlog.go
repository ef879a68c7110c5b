package rlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) MarshalText() (text []byte, err error) {
	return []byte(l), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	v := Level(text)
	if valid := []Level{LevelDebug, LevelInfo, LevelWarn, LevelError}; !slices.Contains(valid, v) {
		return fmt.Errorf("valid values: %v", valid)
	}
	*l = v
	return nil
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var (
	level  = new(slog.LevelVar)
	logger atomic.Pointer[slog.Logger]
)

func init() {
	SetOutput(os.Stderr)
}

// SetOutput replaces the log destination. Colors are used only for terminals.
func SetOutput(w io.Writer) {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !term.IsTerminal(int(f.Fd()))
	}
	handler := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    noColor,
	})
	logger.Store(slog.New(handler))
}

func SetLevel(l Level) {
	level.Set(l.slogLevel())
}

func Enabled(l Level) bool {
	return logger.Load().Enabled(context.Background(), l.slogLevel())
}

func log(l slog.Level, msg func() string) {
	lg := logger.Load()
	if !lg.Enabled(context.Background(), l) {
		return
	}
	lg.Log(context.Background(), l, msg())
}

func Debug(v ...any) { log(slog.LevelDebug, func() string { return fmt.Sprint(v...) }) }
func Debugf(format string, v ...any) {
	log(slog.LevelDebug, func() string { return fmt.Sprintf(format, v...) })
}

func Info(v ...any) { log(slog.LevelInfo, func() string { return fmt.Sprint(v...) }) }
func Infof(format string, v ...any) {
	log(slog.LevelInfo, func() string { return fmt.Sprintf(format, v...) })
}

func Warn(v ...any) { log(slog.LevelWarn, func() string { return fmt.Sprint(v...) }) }
func Warnf(format string, v ...any) {
	log(slog.LevelWarn, func() string { return fmt.Sprintf(format, v...) })
}

func Error(v ...any) { log(slog.LevelError, func() string { return fmt.Sprint(v...) }) }
func Errorf(format string, v ...any) {
	log(slog.LevelError, func() string { return fmt.Sprintf(format, v...) })
}
