package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// IdentityHash returns the first 16 hex characters of the SHA-256 digest of
// identity. Raw client addresses are never persisted.
func IdentityHash(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])[:16]
}

// BaseName strips the extension and any path components from an uploaded
// filename, falling back to "icon" when nothing usable remains.
func BaseName(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimSpace(base)
	if base == "" || base == "." {
		return "icon"
	}
	return base
}

// OutputFilename joins a derived base name with the artifact extension.
func OutputFilename(originalFilename, ext string) string {
	return BaseName(originalFilename) + "." + strings.TrimPrefix(ext, ".")
}
