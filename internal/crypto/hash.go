package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

func Sha256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// Sha256Hex returns the lower-case hex rendering of sha256(data), always 64 characters.
func Sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return Hex32(h)
}

func Hex32(h [32]byte) string {
	return hex.EncodeToString(h[:])
}
