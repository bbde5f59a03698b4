package serialization

import (
	"crypto/sha256"
	"fmt"
	"io"
)

// checksum is the SHA-256 of a .born data section.
type checksum [ChecksumSize]byte

func sumBytes(data []byte) checksum {
	return sha256.Sum256(data)
}

func sumReader(r io.Reader) (checksum, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return checksum{}, err
	}
	var sum checksum
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

func (c checksum) verify(stored checksum) error {
	if c != stored {
		return fmt.Errorf("%w: stored %x, computed %x", ErrChecksumMismatch, stored[:8], c[:8])
	}
	return nil
}
