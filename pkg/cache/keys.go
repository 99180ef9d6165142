package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// GenerateKey derives the cache key for (namespace, arguments) per spec
// §4.1: key = namespace + ":" + hex(sha256(canonicalJSON(arguments))).
//
// encoding/json already satisfies the canonicalization requirement for our
// purposes: it marshals map keys in sorted order and emits no insignificant
// whitespace, so equivalent argument values (including map[string]any built
// from unordered sources) produce byte-identical output across processes.
func GenerateKey(namespace string, arguments any) (key string, keyHash [32]byte) {
	data, err := json.Marshal(arguments)
	if err != nil {
		data = []byte("null")
	}
	keyHash = sha256.Sum256(data)
	return namespace + ":" + hex.EncodeToString(keyHash[:]), keyHash
}

// HexKey returns the on-disk filename stem for a key hash (§4.1: "the
// hex-encoded hash is the on-disk filename").
func HexKey(keyHash [32]byte) string {
	return hex.EncodeToString(keyHash[:])
}
