package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/internal/i18n"
	"github.com/huanfeng/corehub/pkg/scan"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage downloaded files",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove downloaded release files",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.Paths.DownloadsDir
		var (
			files int
			freed int64
		)
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				if size, err := scan.FileSize(path); err == nil {
					files++
					freed += size
				}
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "CACHE_SCAN", i18n.T("cmd.cache.errScan")).
				WithContext("dir", dir)
		}

		entries, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			return apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "CACHE_READ", i18n.T("cmd.cache.errScan")).
				WithContext("dir", dir)
		}
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
				return apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "CACHE_REMOVE", i18n.T("cmd.cache.errRemove")).
					WithContext("path", e.Name())
			}
		}

		fmt.Println(i18n.Tf("cmd.cache.clear.done", "Count", files, "Size", humanize.IBytes(uint64(freed))))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
