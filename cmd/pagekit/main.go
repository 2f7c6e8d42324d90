// Command pagekit wires a buffer pool and a hash index over a local
// data directory and runs a handful of inserts/gets as a manual smoke
// test of the storage stack.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/pagekit-db/pagekit/internal/alias/bx"
	"github.com/pagekit-db/pagekit/internal/bufferpool"
	"github.com/pagekit-db/pagekit/internal/config"
	"github.com/pagekit-db/pagekit/internal/hashindex"
	"github.com/pagekit-db/pagekit/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("pagekit: load config", "err", err)
		os.Exit(1)
	}

	dm, err := storage.NewFileManager(cfg.Storage.DataDir, cfg.Storage.BaseName)
	if err != nil {
		slog.Error("pagekit: open data dir", "err", err)
		os.Exit(1)
	}

	pool := bufferpool.NewPool(dm, cfg.Pool.Size)

	int64Codec := hashindex.Codec[int64]{
		Size:   8,
		Encode: func(v int64, b []byte) { bx.PutU64(b, uint64(v)) },
		Decode: func(b []byte) int64 { return int64(bx.U64(b)) },
	}
	cmp := func(a, b int64) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
	hash := func(k int64) uint64 { return uint64(k) }

	tbl, err := hashindex.New(pool, cmp, hash, int64Codec, int64Codec, cfg.HashIndex.NumBuckets)
	if err != nil {
		slog.Error("pagekit: create table", "err", err)
		os.Exit(1)
	}

	for i := int64(0); i < 8; i++ {
		if _, err := tbl.Insert(i, i*i); err != nil {
			slog.Error("pagekit: insert", "key", i, "err", err)
			os.Exit(1)
		}
	}

	for i := int64(0); i < 8; i++ {
		values, found := tbl.GetValue(i)
		fmt.Printf("key=%d found=%v values=%v\n", i, found, values)
	}

	slog.Info("pagekit: done", "size", tbl.GetSize())
}
