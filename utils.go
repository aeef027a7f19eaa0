package filepulse

import (
	"path"
)

// DigestLength is the length of a hex-encoded 256-bit digest.
const DigestLength = 64

// IsValidDigest validates that a string is a content digest the store can
// address. It checks that the digest:
//   - is exactly DigestLength characters long
//   - contains only lowercase hexadecimal characters
//
// Anything else is rejected before it is turned into a storage path, so a
// digest can never carry separators, dots or other traversal material.
func IsValidDigest(d string) bool {
	if len(d) != DigestLength {
		return false
	}

	for i := 0; i < len(d); i++ {
		c := d[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}

// BlobPath returns the storage path of a digest, partitioned by its first
// two bytes so no directory holds more than 256 children at each level.
// The digest must already be valid.
func BlobPath(digest string) string {
	return path.Join(digest[0:2], digest[2:4], digest)
}
