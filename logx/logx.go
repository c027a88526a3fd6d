package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var callerOnce sync.Once

// shortCaller prints file:line without the directory, padded for alignment.
func shortCaller(pc uintptr, file string, line int) string {
	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			short = file[i+1:]
			break
		}
	}
	return fmt.Sprintf("%-20s", fmt.Sprintf("%s:%d", short, line))
}

// NewLogger returns a zerolog logger writing console output to stderr at info level.
func NewLogger() zerolog.Logger {
	logger, _ := New(os.Stderr, "")
	return logger
}

// New returns a console logger writing to out at the named level; empty means info.
func New(out io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	callerOnce.Do(func() {
		zerolog.CallerMarshalFunc = shortCaller
	})
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(lvl).With().Timestamp().Caller().Logger(), nil
}

// ParseLevel maps a level name to a zerolog level; empty means info.
func ParseLevel(level string) (zerolog.Level, error) {
	level = strings.TrimSpace(strings.ToLower(level))
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("logx: %w", err)
	}
	return lvl, nil
}
