//go:build !windows

package scan

import (
	"fmt"
	"path/filepath"
	"syscall"
)

func getDiskUsage(path string) (*DiskUsage, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(absPath, &stat); err != nil {
		return nil, fmt.Errorf("failed to get disk statistics: %w", err)
	}

	bsize := uint64(stat.Bsize)
	return &DiskUsage{
		Total:     uint64(stat.Blocks) * bsize,
		Free:      uint64(stat.Bfree) * bsize,
		Available: uint64(stat.Bavail) * bsize,
	}, nil
}
