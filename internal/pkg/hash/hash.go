// Package hash produces deterministic content fingerprints used as cache key
// components. The digest is not a security primitive.
package hash

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
)

// Content returns a stable hex fingerprint of any serializable value.
//
// The value is canonicalized by marshalling to JSON, decoding back into
// generic maps and re-marshalling; encoding/json-compatible marshallers emit
// map keys in sorted order, so two inputs that differ only in map key order
// hash identically. An explicit null field stays distinct from an absent one.
// Unserializable values fall back to their fmt representation rather than
// failing, since a weaker key only costs a cache miss.
func Content(data interface{}) string {
	canonical, err := canonicalize(data)
	if err != nil {
		canonical = []byte(fmt.Sprintf("%#v", data))
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(canonical))
}

func canonicalize(data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	return json.Marshal(generic)
}
