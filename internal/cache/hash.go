package cache

import (
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/opencontainers/go-digest"
)

// Key computes the cache key for a (source text, ABI descriptor) pair.
// Same source and same ABI always map to the same key; any difference in
// either yields a different key. The entry directory is named by the
// encoded (hex) form of the digest.
func Key(source, abi []byte) digest.Digest {
	buf := make([]byte, 0, len(source)+len(abi))
	buf = append(buf, source...)
	buf = append(buf, abi...)

	return digest.FromBytes(buf)
}

// ChecksumFile returns the content checksum of a file. Checksums are only
// compared for equality, never relied on cryptographically, so a fast
// non-cryptographic hash is used.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to checksum %s: %w", path, err)
	}

	return fmt.Sprintf("%016x", h.Sum64()), nil
}
