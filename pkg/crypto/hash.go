package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// FingerprintSize is the number of hash bytes kept in a frame fingerprint.
const FingerprintSize = 8

// Fingerprint returns a short hex digest of an encoded frame, used to
// correlate logged and stored sessions without recording the graphs.
func Fingerprint(frame []byte) string {
	sum := blake2b.Sum256(frame)
	return hex.EncodeToString(sum[:FingerprintSize])
}

// NewSeed draws a seed for the session random source from crypto/rand.
func NewSeed() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:]) &^ (1 << 63)), nil
}
