package store

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest is the BLAKE3 keyed hash of a response's canonical JSON.
type Digest [32]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// responseDomainKey is "sdxstore.response" zero-padded to 32 bytes.
// Changing it changes every stored digest.
var responseDomainKey = [32]byte{
	's', 'd', 'x', 's', 't', 'o', 'r', 'e', '.', 'r', 'e', 's', 'p', 'o', 'n', 's',
	'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// digestResponse hashes canonical response bytes.
func digestResponse(canonical []byte) Digest {
	// NewKeyed only fails for keys that are not 32 bytes long.
	hasher, err := blake3.NewKeyed(responseDomainKey[:])
	if err != nil {
		panic("store: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write(canonical)
	var d Digest
	copy(d[:], hasher.Sum(nil))
	return d
}
