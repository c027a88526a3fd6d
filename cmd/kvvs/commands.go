package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/kvvs"
	"github.com/viant/kvvs/logx"
	"github.com/viant/kvvs/storage"
	"github.com/viant/kvvs/store"
)

var errUsage = errors.New("usage")

var logOutput io.Writer = os.Stderr

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: kvvs <command> [options]")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  set       Append a JSON value (--key, --value, --meta)")
	fmt.Fprintln(w, "  get       Print a version of a key (--key, --seq)")
	fmt.Fprintln(w, "  history   Print all versions of a key, newest first")
	fmt.Fprintln(w, "  remove    Mark a key deleted, keeping its history")
	fmt.Fprintln(w, "  count     Print the number of keys")
	fmt.Fprintln(w, "  clear     Delete all data")
	fmt.Fprintln(w, "  truncate  Drop old versions (--key, --min-seq)")
	fmt.Fprintln(w, "  export    Write a snapshot to a URL (--dest)")
	fmt.Fprintln(w, "  import    Load a snapshot from a URL into an empty store (--src)")
	fmt.Fprintln(w, "  stats     Print store statistics")
}

// storeFlags are shared by every command.
type storeFlags struct {
	config   *string
	dir      *string
	optimize *string
	digest   *string
	raw      *bool
	logLevel *string
}

func newFlags(name string) (*flag.FlagSet, *storeFlags) {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	return flags, &storeFlags{
		config:   flags.String("config", "", "config yaml (optional)"),
		dir:      flags.String("dir", "", "store directory (overrides config)"),
		optimize: flags.String("optimize", "", "index layout: speed|compact"),
		digest:   flags.String("digest", "", "key digest: sha3|highway|none"),
		raw:      flags.Bool("raw-keys", false, "use keys as file names without hashing"),
		logLevel: flags.String("log-level", "", "log level (default info)"),
	}
}

func (f *storeFlags) open(ctx context.Context) (*kvvs.Service, error) {
	cfg := &kvvs.Config{}
	if *f.config != "" {
		loaded, err := kvvs.LoadConfig(*f.config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if *f.dir != "" {
		dir, err := kvvs.ExpandPath(*f.dir)
		if err != nil {
			return nil, err
		}
		cfg.Dir = dir
	}
	if *f.optimize != "" {
		cfg.Optimize = *f.optimize
	}
	if *f.digest != "" {
		cfg.Digest = *f.digest
	}
	if *f.raw {
		hash := false
		cfg.Hash = &hash
	}
	if *f.logLevel != "" {
		cfg.LogLevel = *f.logLevel
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("--dir or a config with dir is required")
	}
	if !kvvs.IsLocal(cfg.Dir) {
		return nil, fmt.Errorf("store dir must be local: %v", cfg.Dir)
	}
	logger, err := logx.New(logOutput, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return kvvs.Open(ctx, cfg, logger)
}

func run(ctx context.Context, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "set":
		return setCmd(ctx, args, out)
	case "get":
		return getCmd(ctx, args, out)
	case "history":
		return historyCmd(ctx, args, out)
	case "remove":
		return removeCmd(ctx, args, out)
	case "count":
		return countCmd(ctx, args, out)
	case "clear":
		return clearCmd(ctx, args)
	case "truncate":
		return truncateCmd(ctx, args, out)
	case "export":
		return exportCmd(ctx, args, out)
	case "import":
		return importCmd(ctx, args, out)
	case "stats":
		return statsCmd(ctx, args, out)
	}
	return errUsage
}

func withService(ctx context.Context, sf *storeFlags, fn func(srv *kvvs.Service) error) error {
	srv, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()
	return fn(srv)
}

func parseMeta(value string) (storage.Metadata, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	var meta storage.Metadata
	if err := json.Unmarshal([]byte(value), &meta); err != nil {
		return nil, fmt.Errorf("invalid --meta: %w", err)
	}
	return meta, nil
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	return enc.Encode(v)
}

// itemView is the printed form of a version.
type itemView struct {
	Sequence  uint64           `json:"sequence"`
	Timestamp int64            `json:"timestamp"`
	Deleted   bool             `json:"deleted,omitempty"`
	Value     json.RawMessage  `json:"value,omitempty"`
	Pointer   *storage.Pointer `json:"pointer"`
}

func newItemView(item *store.Item) *itemView {
	return &itemView{
		Sequence:  item.Record.Sequence,
		Timestamp: item.Record.Timestamp,
		Deleted:   item.Deleted(),
		Value:     item.Record.Value,
		Pointer:   item.Pointer,
	}
}

func setCmd(ctx context.Context, args []string, out io.Writer) error {
	flags, sf := newFlags("set")
	key := flags.String("key", "", "key (required)")
	value := flags.String("value", "", "JSON value (required)")
	meta := flags.String("meta", "", "JSON object merged into the pointer")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *key == "" || *value == "" {
		return fmt.Errorf("--key and --value are required")
	}
	metadata, err := parseMeta(*meta)
	if err != nil {
		return err
	}
	return withService(ctx, sf, func(srv *kvvs.Service) error {
		ptr, err := srv.Store().SetRaw(ctx, *key, json.RawMessage(*value), metadata)
		if err != nil {
			return err
		}
		return printJSON(out, ptr)
	})
}

func getCmd(ctx context.Context, args []string, out io.Writer) error {
	flags, sf := newFlags("get")
	key := flags.String("key", "", "key (required)")
	seq := flags.Int64("seq", -1, "exact sequence (default latest)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return fmt.Errorf("--key is required")
	}
	selector := storage.Latest()
	if *seq >= 0 {
		selector = storage.ExactSequence(uint64(*seq))
	}
	return withService(ctx, sf, func(srv *kvvs.Service) error {
		item, err := srv.GetItemRecord(ctx, *key, selector)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("%v: not found", *key)
		}
		return printJSON(out, newItemView(item))
	})
}

func historyCmd(ctx context.Context, args []string, out io.Writer) error {
	flags, sf := newFlags("history")
	key := flags.String("key", "", "key (required)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return fmt.Errorf("--key is required")
	}
	return withService(ctx, sf, func(srv *kvvs.Service) error {
		items, err := srv.GetHistory(ctx, *key, nil)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := printJSON(out, newItemView(item)); err != nil {
				return err
			}
		}
		return nil
	})
}

func removeCmd(ctx context.Context, args []string, out io.Writer) error {
	flags, sf := newFlags("remove")
	key := flags.String("key", "", "key (required)")
	meta := flags.String("meta", "", "JSON object merged into the pointer")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return fmt.Errorf("--key is required")
	}
	metadata, err := parseMeta(*meta)
	if err != nil {
		return err
	}
	return withService(ctx, sf, func(srv *kvvs.Service) error {
		ptr, err := srv.RemoveItem(ctx, *key, metadata)
		if err != nil {
			return err
		}
		return printJSON(out, ptr)
	})
}

func countCmd(ctx context.Context, args []string, out io.Writer) error {
	flags, sf := newFlags("count")
	if err := flags.Parse(args); err != nil {
		return err
	}
	return withService(ctx, sf, func(srv *kvvs.Service) error {
		count, err := srv.Count(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, count)
		return err
	})
}

func clearCmd(ctx context.Context, args []string) error {
	flags, sf := newFlags("clear")
	if err := flags.Parse(args); err != nil {
		return err
	}
	return withService(ctx, sf, func(srv *kvvs.Service) error {
		return srv.Clear(ctx)
	})
}

func truncateCmd(ctx context.Context, args []string, out io.Writer) error {
	flags, sf := newFlags("truncate")
	key := flags.String("key", "", "comma-separated keys to truncate (default all)")
	minSeq := flags.Int64("min-seq", -1, "keep versions with sequence >= n (default latest only)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	var opts []store.TruncateOption
	for _, k := range strings.Split(*key, ",") {
		if k = strings.TrimSpace(k); k != "" {
			opts = append(opts, store.WithKey(k))
		}
	}
	if *minSeq >= 0 {
		opts = append(opts, store.WithMinSequence(uint64(*minSeq)))
	}
	return withService(ctx, sf, func(srv *kvvs.Service) error {
		stats, err := srv.Truncate(ctx, opts...)
		if err != nil {
			return err
		}
		return printJSON(out, stats)
	})
}

func exportCmd(ctx context.Context, args []string, out io.Writer) error {
	flags, sf := newFlags("export")
	dest := flags.String("dest", "", "snapshot URL: local path, file://, gs://, s3:// (required)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *dest == "" {
		return fmt.Errorf("--dest is required")
	}
	location, err := kvvs.ExpandPath(*dest)
	if err != nil {
		return err
	}
	return withService(ctx, sf, func(srv *kvvs.Service) error {
		buffer := &bytes.Buffer{}
		count, err := srv.Export(ctx, buffer)
		if err != nil {
			return err
		}
		fs := afs.New()
		if err := fs.Upload(ctx, location, file.DefaultFileOsMode, buffer); err != nil {
			return fmt.Errorf("upload %v: %w", location, err)
		}
		_, err = fmt.Fprintf(out, "exported %d versions to %s\n", count, location)
		return err
	})
}

func importCmd(ctx context.Context, args []string, out io.Writer) error {
	flags, sf := newFlags("import")
	src := flags.String("src", "", "snapshot URL (required)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *src == "" {
		return fmt.Errorf("--src is required")
	}
	location, err := kvvs.ExpandPath(*src)
	if err != nil {
		return err
	}
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, location)
	if err != nil {
		return fmt.Errorf("download %v: %w", location, err)
	}
	return withService(ctx, sf, func(srv *kvvs.Service) error {
		count, err := srv.Import(ctx, bytes.NewReader(data))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "imported %d versions from %s\n", count, location)
		return err
	})
}

func statsCmd(ctx context.Context, args []string, out io.Writer) error {
	flags, sf := newFlags("stats")
	if err := flags.Parse(args); err != nil {
		return err
	}
	return withService(ctx, sf, func(srv *kvvs.Service) error {
		stats, err := srv.Store().Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, stats)
	})
}
