package scan

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	apperrors "github.com/huanfeng/corehub/internal/errors"
)

// DiskUsage describes the filesystem holding a path, in bytes.
type DiskUsage struct {
	Total     uint64
	Free      uint64
	Available uint64
}

// Usage reports disk usage for the filesystem holding path.
func Usage(path string) (*DiskUsage, error) {
	return getDiskUsage(path)
}

// EnsureSpace creates dir when missing and fails with a FILESYSTEM error
// when fewer than need bytes are available there. Filesystems that cannot
// report usage are assumed to have room.
func EnsureSpace(dir string, need uint64) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "MKDIR_FAILED", "failed to create directory").
			WithContext("dir", dir)
	}
	usage, err := getDiskUsage(dir)
	if err != nil {
		return nil
	}
	if usage.Available < need {
		return apperrors.NewFileSystemError("INSUFFICIENT_SPACE",
			fmt.Sprintf("need %s, %s available", humanize.IBytes(need), humanize.IBytes(usage.Available))).
			WithContext("dir", dir)
	}
	return nil
}
