package eventstore

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/codeready-toolchain/research-mcp/pkg/corerr"
)

// marshalForEncryption serializes a sanitized message to the plaintext
// bytes that get sealed into an Envelope.
func marshalForEncryption(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindEncryptionFailure, "failed to marshal message for encryption", err)
	}
	return data, nil
}

// unmarshalDecrypted is the inverse of marshalForEncryption, applied to
// recovered plaintext during replay.
func unmarshalDecrypted(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, corerr.Wrap(corerr.KindDecryptionFailure, "failed to unmarshal decrypted message", err)
	}
	return v, nil
}

// envelopeEncryptedKey marks a stored message as an encryption envelope so
// it round-trips through the generic `any` Message field and the disk
// record's json.RawMessage-free encoding alike.
const envelopeEncryptedKey = "__envelope__"

// envelopeAsJSONRPC wraps an Envelope into the same shape stored messages
// normally take, so byID/byStream treat encrypted and plaintext records
// uniformly.
func envelopeAsJSONRPC(env *Envelope) any {
	return map[string]any{
		envelopeEncryptedKey: true,
		"iv":                 env.IV,
		"encryptedData":      env.EncryptedData,
		"authTag":            env.AuthTag,
		"algorithm":          env.Algorithm,
	}
}

func isEnvelope(message any) bool {
	m, ok := message.(map[string]any)
	if !ok {
		return false
	}
	flag, _ := m[envelopeEncryptedKey].(bool)
	return flag
}

// envelopeFromJSONRPC recovers an *Envelope from a stored message,
// whether it arrived as a map[string]any (in-memory) or was round-tripped
// through JSON (loaded from disk, where it's often json.RawMessage-backed
// through the `any` field already decoded into map[string]any by
// encoding/json).
func envelopeFromJSONRPC(message any) (*Envelope, error) {
	m, ok := message.(map[string]any)
	if !ok {
		return nil, errors.New("stored message is not an encryption envelope")
	}
	env := &Envelope{}
	env.IV, _ = m["iv"].(string)
	env.EncryptedData, _ = m["encryptedData"].(string)
	env.AuthTag, _ = m["authTag"].(string)
	env.Algorithm, _ = m["algorithm"].(string)
	return env, nil
}

func readDirSafe(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func removeFile(path string) error {
	err := os.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
