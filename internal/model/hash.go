package model

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content addressing. Version suffix enables future
// algorithm migration without ambiguity against old hashes.
const (
	domainContent = "presswork/content/v1"
)

// ContentHash computes the content hash for an item's raw bytes.
// Format: SHA256(domain + 0x00 + data), hex encoded. The null separator
// prevents domain/data boundary ambiguity.
func ContentHash(data []byte) string {
	h := sha256.New()
	h.Write([]byte(domainContent))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
