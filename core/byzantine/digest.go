package byzantine

import (
	"crypto/sha256"
	"encoding/hex"
)

// digestOf fingerprints a proposal value. Any phase message whose digest
// does not match the slot's digest is dropped, which is what protects the
// protocol against an equivocating primary.
func digestOf(value []byte) string {
	sum := sha256.Sum256(value)
	return hex.EncodeToString(sum[:])
}
