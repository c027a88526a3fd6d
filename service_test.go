package kvvs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/viant/kvvs/index"
	"github.com/viant/kvvs/storage"
)

type person struct {
	Name string `json:"name"`
}

func TestService_Items(t *testing.T) {
	ctx := context.Background()
	for _, mode := range []string{"speed", "compact"} {
		t.Run(mode, func(t *testing.T) {
			srv, err := Open(ctx, &Config{Dir: t.TempDir(), Optimize: mode, CacheMax: 2}, zerolog.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer srv.Close()

			if _, err := srv.SetItem(ctx, "person", person{Name: "Joe"}, nil); err != nil {
				t.Fatalf("SetItem: %v", err)
			}
			if _, err := srv.SetItem(ctx, "person", person{Name: "Bill"}, storage.Metadata{"by": "admin"}); err != nil {
				t.Fatalf("SetItem: %v", err)
			}
			var got person
			found, err := srv.GetItem(ctx, "person", &got)
			if err != nil || !found || got.Name != "Bill" {
				t.Fatalf("GetItem: got %+v, %v, %v", got, found, err)
			}
			found, err = srv.GetItem(ctx, "person", &got, storage.ExactSequence(0))
			if err != nil || !found || got.Name != "Joe" {
				t.Fatalf("GetItem seq 0: got %+v, %v, %v", got, found, err)
			}
			item, err := srv.GetItemRecord(ctx, "person")
			if err != nil || item == nil || item.Pointer.Meta["by"] != "admin" {
				t.Fatalf("GetItemRecord: got %+v, %v", item, err)
			}

			if _, err := srv.RemoveItem(ctx, "person", nil); err != nil {
				t.Fatalf("RemoveItem: %v", err)
			}
			found, err = srv.GetItem(ctx, "person", &got)
			if err != nil || found {
				t.Fatalf("GetItem after remove: found %v, %v", found, err)
			}
			history, err := srv.GetHistory(ctx, "person", nil)
			if err != nil || len(history) != 3 {
				t.Fatalf("GetHistory: got %d, %v", len(history), err)
			}
			count, err := srv.Count(ctx)
			if err != nil || count != 1 {
				t.Fatalf("Count: got %d, %v", count, err)
			}
			if err := srv.Clear(ctx); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if count, _ = srv.Count(ctx); count != 0 {
				t.Fatalf("Count after clear: got %d", count)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "full",
			content: "dir: /tmp/kv\noptimize: compact\ncacheMax: 10\ncacheStep: 2\nhash: false\ndigest: highway\nlogLevel: debug\n",
			check: func(t *testing.T, cfg *Config) {
				mode, _ := index.ParseMode(cfg.Optimize)
				if cfg.Dir != "/tmp/kv" || mode != index.ModeCompact || cfg.CacheMax != 10 || cfg.CacheStep != 2 {
					t.Fatalf("unexpected config %+v", cfg)
				}
				if cfg.Hash == nil || *cfg.Hash {
					t.Fatalf("hash: got %v", cfg.Hash)
				}
			},
		},
		{
			name:    "home dir",
			content: "dir: ~/kv\n",
			check: func(t *testing.T, cfg *Config) {
				home, _ := os.UserHomeDir()
				if cfg.Dir != filepath.Join(home, "kv") {
					t.Fatalf("dir: got %v", cfg.Dir)
				}
			},
		},
		{name: "bad mode", content: "optimize: fastest\n", wantErr: true},
		{name: "bad digest", content: "digest: md5\n", wantErr: true},
		{name: "bad yaml", content: "dir: [\n", wantErr: true},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "config"+string(rune('a'+i))+".yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			cfg, err := LoadConfig(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error: got %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	tests := []struct {
		name     string
		location string
		want     string
		wantErr  bool
	}{
		{name: "plain", location: "/var/kv", want: "/var/kv"},
		{name: "home", location: "~/kv", want: filepath.Join(home, "kv")},
		{name: "file url", location: "file://~/kv", want: "file://" + filepath.ToSlash(filepath.Join(home, "kv"))},
		{name: "remote", location: "gs://bucket/kv", want: "gs://bucket/kv"},
		{name: "other user", location: "~bob/kv", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandPath(tt.location)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error: got %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
	if IsLocal("s3://bucket/x") || !IsLocal("/tmp/x") || !IsLocal("file:///tmp/x") {
		t.Fatalf("IsLocal mismatch")
	}
}
