package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
)

func init() {
	logOutput = io.Discard
}

func runCmd(t *testing.T, cmd string, args ...string) string {
	t.Helper()
	out := &bytes.Buffer{}
	if err := run(context.Background(), cmd, args, out); err != nil {
		t.Fatalf("%s %v: %v", cmd, args, err)
	}
	return out.String()
}

func TestCLIFlow(t *testing.T) {
	dir := t.TempDir()
	snapshot := filepath.Join(t.TempDir(), "snap", "kv.zst")

	runCmd(t, "set", "--dir", dir, "--key", "person", "--value", `{"name":"Joe"}`)
	runCmd(t, "set", "--dir", dir, "--key", "person", "--value", `{"name":"Bill"}`, "--meta", `{"by":"cli"}`)

	var view itemView
	if err := json.Unmarshal([]byte(runCmd(t, "get", "--dir", dir, "--key", "person", "--seq", "0")), &view); err != nil {
		t.Fatalf("decode get: %v", err)
	}
	if view.Sequence != 0 || string(view.Value) != `{"name":"Joe"}` {
		t.Fatalf("get seq 0: got %+v", view)
	}

	history := strings.Split(strings.TrimSpace(runCmd(t, "history", "--dir", dir, "--key", "person")), "\n")
	if len(history) != 2 {
		t.Fatalf("history: got %d lines", len(history))
	}
	if got := strings.TrimSpace(runCmd(t, "count", "--dir", dir)); got != "1" {
		t.Fatalf("count: got %v", got)
	}

	runCmd(t, "truncate", "--dir", dir, "--optimize", "compact")
	history = strings.Split(strings.TrimSpace(runCmd(t, "history", "--dir", dir, "--key", "person", "--optimize", "compact")), "\n")
	if len(history) != 1 {
		t.Fatalf("history after truncate: got %d lines", len(history))
	}

	runCmd(t, "export", "--dir", dir, "--dest", snapshot)
	other := t.TempDir()
	if out := runCmd(t, "import", "--dir", other, "--src", snapshot); !strings.Contains(out, "imported 1 versions") {
		t.Fatalf("import: got %q", out)
	}
	if err := json.Unmarshal([]byte(runCmd(t, "get", "--dir", other, "--key", "person")), &view); err != nil {
		t.Fatalf("decode get: %v", err)
	}
	if string(view.Value) != `{"name":"Bill"}` || view.Sequence != 1 || view.Pointer.Meta["by"] != "cli" {
		t.Fatalf("imported get: got %+v", view)
	}

	runCmd(t, "remove", "--dir", dir, "--key", "person")
	runCmd(t, "clear", "--dir", dir)
	if got := strings.TrimSpace(runCmd(t, "count", "--dir", dir)); got != "0" {
		t.Fatalf("count after clear: got %v", got)
	}
}

func TestCLIErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cmd  string
		args []string
	}{
		{name: "unknown", cmd: "compact"},
		{name: "missing dir", cmd: "count"},
		{name: "missing key", cmd: "get", args: []string{"--dir", t.TempDir()}},
		{name: "bad value", cmd: "set", args: []string{"--dir", t.TempDir(), "--key", "k", "--value", "{"}},
		{name: "not found", cmd: "get", args: []string{"--dir", t.TempDir(), "--key", "k"}},
		{name: "remote dir", cmd: "count", args: []string{"--dir", "gs://bucket/kv"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := run(ctx, tt.cmd, tt.args, io.Discard); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
