package yolo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// VerifyChecksum hashes the file at path and compares it to the hex digest want.
func VerifyChecksum(path, want string) error {
	want = strings.TrimSpace(want)
	if want == "" {
		return fmt.Errorf("checksum for %s missing", path)
	}
	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()

	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(sum, want) {
		return fmt.Errorf("sha256 mismatch for %s: expected %s got %s", path, want, sum)
	}
	return nil
}
