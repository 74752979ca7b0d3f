package schema

import (
	"crypto/sha512"
	"encoding/hex"

	"github.com/anand-gl/jsoncanonicalizer"
	"github.com/driftline/driftline-internal/internal/common/apperrors"
	"github.com/driftline/driftline-internal/pkg/types"
)

// Fingerprint returns the content hash of a snapshot. The snapshot is
// canonicalized (fields sorted by name at every level), serialized, JSON
// normalized and SHA-512 hashed, so two snapshots with the same field set
// in any enumeration order yield the same hash, and any field rename,
// retype or add/remove changes it. Pure function; no storage or network
// side effects.
func Fingerprint(s Snapshot) (types.Hash, apperrors.Error) {
	sz, err := s.Canonical().Serialize()
	if err != nil {
		return "", err
	}
	// Normalize the JSON, so 2 equivalent representations yield the same hash
	nsz, e := jsoncanonicalizer.Transform(sz)
	if e != nil {
		return "", ErrSerialization.Err(e)
	}
	return types.Hash(HexEncodedSHA512(nsz)), nil
}

// HexEncodedSHA512 returns the hex-encoded SHA-512 hash of the given bytes.
func HexEncodedSHA512(b []byte) string {
	hash := sha512.Sum512(b)
	return hex.EncodeToString(hash[:])
}
