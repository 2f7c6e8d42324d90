// Package util holds small OS-level helpers shared by the storage layer.
package util

import (
	"log/slog"
	"os"
)

// CloseFile closes f, logging rather than propagating a close error —
// used in defer position where the caller already has the data it needs.
func CloseFile(f *os.File) {
	if err := f.Close(); err != nil {
		slog.Error("util: close file failed", "path", f.Name(), "err", err)
	}
}
