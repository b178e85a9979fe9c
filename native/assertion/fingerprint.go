package assertion

import (
	"encoding/binary"

	"lukechampine.com/blake3"
)

// fingerprintDomain separates assertion content hashes from any other BLAKE3
// use in the system.
const fingerprintDomain = "veritynet/assertion/v1"

// Fingerprint derives the opaque 32-byte content fingerprint from canonical
// parts. Parts are length-delimited so no two distinct part sequences share
// an image.
func Fingerprint(parts ...[]byte) [32]byte {
	h := blake3.New(32, nil)
	h.Write([]byte(fingerprintDomain))
	var length [8]byte
	for _, part := range parts {
		binary.BigEndian.PutUint64(length[:], uint64(len(part)))
		h.Write(length[:])
		h.Write(part)
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}
