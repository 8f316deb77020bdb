package upgrade

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/pkg/utils"
)

// Host upgrades the binary installed at InstallPath. Signatures are
// ed25519 over the whole file.
type Host struct {
	PublicKey   ed25519.PublicKey
	InstallPath string
}

// NewHost decodes a base64 ed25519 public key. An empty key is allowed;
// VerifySignature then fails for every signed file.
func NewHost(publicKey, installPath string) (*Host, error) {
	h := &Host{InstallPath: installPath}
	if publicKey == "" {
		return h, nil
	}
	key, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return nil, apperrors.NewConfigurationError("BAD_PUBLIC_KEY", "upgrade.public_key is not a base64 ed25519 public key")
	}
	h.PublicKey = key
	return h, nil
}

func (h *Host) VerifySignature(path string, signature []byte) (bool, error) {
	if len(h.PublicKey) == 0 {
		return false, apperrors.NewConfigurationError("NO_PUBLIC_KEY", "no public key configured to verify signatures")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(h.PublicKey, data, signature), nil
}

// Upgrade copies path next to InstallPath and renames it into place.
func (h *Host) Upgrade(name, path string, _ []byte) error {
	if h.InstallPath == "" {
		return apperrors.NewConfigurationError("NO_INSTALL_PATH", "paths.install_path is not set")
	}
	dir := filepath.Dir(h.InstallPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "MKDIR_FAILED", "cannot create install directory")
	}

	staging := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(h.InstallPath), uuid.NewString()))
	if err := copyExecutable(path, staging); err != nil {
		os.Remove(staging)
		return apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "STAGE_FAILED", "cannot stage new binary").
			WithContext("path", staging)
	}
	if err := os.Rename(staging, h.InstallPath); err != nil {
		os.Remove(staging)
		return apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "REPLACE_FAILED", "cannot replace installed binary").
			WithContext("path", h.InstallPath)
	}

	utils.Info("installed %s at %s", name, h.InstallPath)
	return nil
}

func copyExecutable(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, 0755)
}
