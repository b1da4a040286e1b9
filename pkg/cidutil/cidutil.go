package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ContentID returns a CIDv1 string using the "raw" multicodec and a sha2-256 multihash
func ContentID(data []byte) (string, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}

// Matches reports whether data hashes to the given content id.
// The id may use any multibase encoding and any hash function multihash supports.
func Matches(data []byte, id string) (bool, error) {
	want, err := cid.Decode(id)
	if err != nil {
		return false, fmt.Errorf("invalid content id %q: %w", id, err)
	}
	got, err := want.Prefix().Sum(data)
	if err != nil {
		return false, fmt.Errorf("failed to hash content: %w", err)
	}
	return got.Equals(want), nil
}
