package consensus

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

func blake2b256(b []byte) [32]byte {
	return blake2b.Sum256(b)
}

// DataHash is the code hash of a deployed binary referenced with a data hash type.
func DataHash(code []byte) [32]byte {
	return blake2b256(code)
}

// HashHex renders a 32-byte hash as lowercase hex.
func HashHex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}
