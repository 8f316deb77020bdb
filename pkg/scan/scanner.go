// Package scan walks local directories for game files and fingerprints them.
package scan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/huanfeng/corehub/pkg/utils"
)

// Scanner finds files by extension under a root directory.
type Scanner struct {
	Recursive       bool
	FollowSymlinks  bool
	ExcludePatterns []string
}

// NewScanner returns a recursive scanner that skips hidden files.
func NewScanner() *Scanner {
	return &Scanner{
		Recursive:       true,
		ExcludePatterns: []string{".*"},
	}
}

// ScanResult is what a scan found.
type ScanResult struct {
	Files  []string
	Errors []error
}

// Scan collects every file under root whose extension (without the dot,
// case-insensitive) is in extensions. An empty extensions list matches
// nothing.
func (s *Scanner) Scan(root string, extensions []string) (*ScanResult, error) {
	result := &ScanResult{}
	if len(extensions) == 0 {
		return result, nil
	}

	wanted := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		wanted[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("error accessing %s: %w", path, err))
			return nil
		}

		if info.IsDir() {
			if path != root && (!s.Recursive || s.excluded(path)) {
				return filepath.SkipDir
			}
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 && !s.FollowSymlinks {
			return nil
		}
		if s.excluded(path) {
			return nil
		}

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
		if wanted[ext] {
			result.Files = append(result.Files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking directory: %w", err)
	}

	return result, nil
}

func (s *Scanner) excluded(path string) bool {
	name := filepath.Base(path)
	for _, pattern := range s.ExcludePatterns {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

// FindAllFiles scans root with the default scanner.
func FindAllFiles(root string, extensions []string) ([]string, error) {
	result, err := NewScanner().Scan(root, extensions)
	if err != nil {
		return nil, err
	}
	return result.Files, nil
}

// SHA256 returns the lowercase hex digest of the file at path.
func SHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileSize returns the size of the file at path in bytes.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// FileInfo is the fingerprint of one file.
type FileInfo struct {
	Path   string
	Size   int64
	SHA256 string
}

// ChunkSize is how many files HashFiles fingerprints between progress
// reports.
const ChunkSize = 100

// HashFiles fingerprints paths chunk by chunk, hashing each chunk with up
// to workers goroutines. progress, when set, is called before each chunk
// and once at the end. Results are in the order of paths.
func HashFiles(ctx context.Context, paths []string, workers int, progress func(current, total int)) ([]FileInfo, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]FileInfo, len(paths))

	for start := 0; start < len(paths); start += ChunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if progress != nil {
			progress(start, len(paths))
		}

		end := min(start+ChunkSize, len(paths))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i := start; i < end; i++ {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				size, err := FileSize(paths[i])
				if err != nil {
					return err
				}
				sum, err := SHA256(paths[i])
				if err != nil {
					return err
				}
				out[i] = FileInfo{Path: paths[i], Size: size, SHA256: sum}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	if progress != nil {
		progress(len(paths), len(paths))
	}
	return out, nil
}

// RemoveFiles deletes every non-empty path, logging the ones that cannot be
// removed.
func RemoveFiles(paths []string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			utils.Warn("failed to remove %s: %v", p, err)
		}
	}
}
