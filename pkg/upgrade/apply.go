// Package upgrade downloads a binary release, verifies it and hands it to
// the host for installation.
package upgrade

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/pkg/client"
	"github.com/huanfeng/corehub/pkg/remote"
	"github.com/huanfeng/corehub/pkg/scan"
	"github.com/huanfeng/corehub/pkg/schema"
	"github.com/huanfeng/corehub/pkg/utils"
)

// Upgrader installs a verified binary.
type Upgrader interface {
	// VerifySignature checks the detached signature of the file at path.
	VerifySignature(path string, signature []byte) (bool, error)
	// Upgrade replaces the running binary. It may not return.
	Upgrade(name, path string, signature []byte) error
}

// VerifyFile checks the file at path against the size and sha256 the
// release declares.
func VerifyFile(path string, f schema.File) error {
	size, err := scan.FileSize(path)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "STAT_FAILED", "cannot read downloaded file").
			WithContext("path", path)
	}
	if size != f.Size {
		return apperrors.NewIntegrityError("SIZE_MISMATCH",
			fmt.Sprintf("file size mismatch: expected %d, got %d", f.Size, size)).
			WithContext("path", path)
	}

	sum, err := scan.SHA256(path)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "HASH_FAILED", "cannot hash downloaded file").
			WithContext("path", path)
	}
	if !strings.EqualFold(sum, f.SHA256) {
		return apperrors.NewIntegrityError("HASH_MISMATCH", "file sha256 mismatch").
			WithContext("path", path).
			WithContext("expected", strings.ToLower(f.SHA256)).
			WithContext("actual", sum)
	}
	return nil
}

func decodeSignature(f schema.File) ([]byte, error) {
	if f.Signature == "" {
		return nil, nil
	}
	sig, err := base64.StdEncoding.DecodeString(f.Signature)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeIntegrity, "BAD_SIGNATURE", "signature is not valid base64")
	}
	return sig, nil
}

// Apply downloads every file of release into destDir, verifies them unless
// force is set, and passes the single file of the release to up.Upgrade.
// It reports whether Upgrade was called and returned. Downloads are removed
// again when the release is rejected.
func Apply(ctx context.Context, transport client.Transport, destDir string, b *remote.Binary,
	release *schema.Release, force bool, up Upgrader) (bool, error) {
	urls := make([]string, len(release.Files))
	for i, f := range release.Files {
		u, err := b.FileURL(f)
		if err != nil {
			return false, err
		}
		urls[i] = u
	}
	if err := client.CheckDistinctNames(urls); err != nil {
		return false, err
	}

	paths := make([]string, len(release.Files))
	handedOff := false
	defer func() {
		if !handedOff {
			scan.RemoveFiles(paths)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for i := range release.Files {
		g.Go(func() error {
			utils.Debug("downloading %s", urls[i])
			p, err := transport.Download(gctx, urls[i], destDir)
			if err != nil {
				return err
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	if !force {
		for i, f := range release.Files {
			if err := VerifyFile(paths[i], f); err != nil {
				return false, err
			}
			sig, err := decodeSignature(f)
			if err != nil {
				return false, err
			}
			if sig == nil {
				continue
			}
			ok, err := up.VerifySignature(paths[i], sig)
			if err != nil {
				return false, apperrors.WrapError(err, apperrors.ErrorTypeIntegrity, "BAD_SIGNATURE", "signature could not be verified").
					WithContext("path", paths[i])
			}
			if !ok {
				return false, apperrors.NewIntegrityError("BAD_SIGNATURE", "signature does not match").
					WithContext("path", paths[i])
			}
		}
	}

	if len(paths) != 1 {
		return false, apperrors.NewError(apperrors.ErrorTypeValidation, "FILE_COUNT",
			fmt.Sprintf("expected exactly one file in release %s, found %d", release.Version, len(paths)))
	}

	// A forced upgrade carries no signature.
	var sig []byte
	if !force {
		var err error
		if sig, err = decodeSignature(release.Files[0]); err != nil {
			return false, err
		}
	}

	utils.Info("upgrading %s to %s", b.Name, release.Version)
	handedOff = true
	if err := up.Upgrade(b.Name, paths[0], sig); err != nil {
		return false, err
	}
	return true, nil
}
