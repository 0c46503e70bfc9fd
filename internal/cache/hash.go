package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/rotisserie/eris"
)

// chunkSize bounds memory used while hashing large gazettes.
const chunkSize = 64 << 10

// HashFile returns the hex SHA-256 of the file's current bytes.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "cache: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	h := sha256.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, chunkSize)); err != nil {
		return "", eris.Wrapf(err, "cache: hash %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
