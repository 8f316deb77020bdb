//go:build windows

package scan

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/windows"
)

func getDiskUsage(path string) (*DiskUsage, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	pathPtr, err := windows.UTF16PtrFromString(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to convert path to UTF-16: %w", err)
	}

	var available, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &available, &total, &free); err != nil {
		return nil, fmt.Errorf("GetDiskFreeSpaceEx failed: %w", err)
	}
	return &DiskUsage{Total: total, Free: free, Available: available}, nil
}
