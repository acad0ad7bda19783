package update

import (
	"crypto/sha1" //nolint:gosec // feeds may only publish SHA1
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// errIntegrity marks a package whose size or digest does not match the feed.
var errIntegrity = errors.New("integrity check failed")

// verifyPackage checks the file at path against the size and digest
// published for info. SHA256 is preferred; SHA1 is used only when it is the
// sole digest available.
func verifyPackage(path string, info *UpdateInfo) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	h256 := sha256.New()
	h1 := sha1.New() //nolint:gosec
	size, err := io.Copy(io.MultiWriter(h256, h1), f)
	if err != nil {
		return err
	}

	if want := info.Size(); want > 0 && size != want {
		return fmt.Errorf("%w: size is %d bytes, expected %d", errIntegrity, size, want)
	}

	switch {
	case info.SHA256() != "":
		if got := hex.EncodeToString(h256.Sum(nil)); !strings.EqualFold(got, info.SHA256()) {
			return fmt.Errorf("%w: sha256 is %s, expected %s", errIntegrity, got, strings.ToLower(info.SHA256()))
		}
	case info.SHA1() != "":
		if got := hex.EncodeToString(h1.Sum(nil)); !strings.EqualFold(got, info.SHA1()) {
			return fmt.Errorf("%w: sha1 is %s, expected %s", errIntegrity, got, strings.ToLower(info.SHA1()))
		}
	}
	return nil
}
