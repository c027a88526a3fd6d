package logx

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		want    zerolog.Level
		wantErr bool
	}{
		{name: "default", level: "", want: zerolog.InfoLevel},
		{name: "debug", level: "debug", want: zerolog.DebugLevel},
		{name: "upper", level: " WARN ", want: zerolog.WarnLevel},
		{name: "unknown", level: "loud", want: zerolog.InfoLevel, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error: got %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_FiltersByLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(buf, "warn")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestNew_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := &bytes.Buffer{}
			logger, err := New(buf, "info")
			if err != nil {
				t.Errorf("New: %v", err)
				return
			}
			logger.Info().Msg("hello")
			out := buf.String()
			if !strings.Contains(out, "hello") || strings.Contains(out, "/logx/") {
				t.Errorf("unexpected output: %q", out)
			}
		}()
	}
	wg.Wait()
}
