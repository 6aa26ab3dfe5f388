// Package canonical derives the tamper-evident digests the engine anchors:
// the content hash of a record projection and the anchor identifier.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	anchorerrors "github.com/pushchain/credential-anchor/anchorClient/errors"
)

// HashLength is the length of a hex encoded content hash.
const HashLength = sha256.Size * 2

// Marshal returns the canonical JSON encoding of a projection: object keys
// sorted at every depth, no insignificant whitespace, no HTML escaping.
func Marshal(projection map[string]interface{}) ([]byte, error) {
	if projection == nil {
		projection = map[string]interface{}{}
	}

	first, err := encode(projection)
	if err != nil {
		return nil, anchorerrors.NewEncodingError("projection is not serializable", err)
	}

	// Re-decode into generic values so nested structs lose their field order
	// and come back out as key-sorted maps.
	dec := json.NewDecoder(bytes.NewReader(first))
	dec.UseNumber()
	var tree interface{}
	if err := dec.Decode(&tree); err != nil {
		return nil, anchorerrors.NewEncodingError("projection is not serializable", err)
	}

	out, err := encode(tree)
	if err != nil {
		return nil, anchorerrors.NewEncodingError("projection is not serializable", err)
	}
	return out, nil
}

// Hash returns the lowercase hex SHA-256 of the canonical projection.
func Hash(projection map[string]interface{}) (string, error) {
	data, err := Marshal(projection)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// HashBytes returns the lowercase hex SHA-256 of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsHash reports whether s looks like a content hash produced by Hash.
func IsHash(s string) bool {
	if len(s) != HashLength {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// HashToBytes32 converts a content hash into the bytes32 form stored on chain.
func HashToBytes32(hash string) ([32]byte, error) {
	var out [32]byte
	if !IsHash(hash) {
		return out, anchorerrors.NewValidationError("", "content_hash", "content hash must be 64 lowercase hex characters")
	}
	raw, err := hex.DecodeString(hash)
	if err != nil {
		return out, anchorerrors.NewValidationError("", "content_hash", err.Error())
	}
	copy(out[:], raw)
	return out, nil
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
