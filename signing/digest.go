package signing

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Digest fingerprints the content of doc so a signature can be tied to the
// exact version that was presented.
func Digest(doc Document) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	for _, part := range []string{doc.ID, doc.Title, doc.SummaryShort, doc.SummaryFull} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
