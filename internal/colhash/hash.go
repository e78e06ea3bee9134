// Package colhash derives stable physical column identifiers from
// ABCD XML field paths.
package colhash

import (
	"crypto/sha1"
	"encoding/hex"
)

// Hash returns the 40-character lowercase hex SHA-1 digest of path's
// UTF-8 bytes. The result is used verbatim as a quoted column name, so
// it must never collide for two distinct paths in the same
// dictionary — collisions are a fatal schema-construction error,
// detected by store.Manager.InitTemporarySchema, not by this function.
func Hash(path string) string {
	sum := sha1.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}
