package eventstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/codeready-toolchain/research-mcp/pkg/corerr"
)

// ivSize is the length of the random per-envelope IV used as the GCM nonce.
// It is larger than GCM's standard 12-byte nonce, so the cipher is built
// with cipher.NewGCMWithNonceSize.
const ivSize = 16

// KeyProvider resolves the AES-256 key used for event encryption. Declared
// as an interface so the key can come from configuration, a secrets
// manager, or a test fixture without the store caring which.
type KeyProvider interface {
	Key() ([]byte, error)
}

// StaticKeyProvider returns a fixed 32-byte key, decoded once at
// construction from a 64-character hex string (spec §6:
// event_store_encryption_key).
type StaticKeyProvider struct {
	key []byte
}

// NewStaticKeyProvider decodes hexKey (64 hex chars = 32 bytes). An invalid
// length is a fatal configuration error (spec §7 KindInvalidEncryptionKeyLen).
func NewStaticKeyProvider(hexKey string) (*StaticKeyProvider, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindInvalidEncryptionKeyLen, "encryption key is not valid hex", err)
	}
	if len(key) != 32 {
		return nil, corerr.New(corerr.KindInvalidEncryptionKeyLen,
			fmt.Sprintf("encryption key must decode to 32 bytes, got %d", len(key)))
	}
	return &StaticKeyProvider{key: key}, nil
}

func (p *StaticKeyProvider) Key() ([]byte, error) { return p.key, nil }

// Envelope is the on-disk/wire shape of an encrypted message (spec §6).
type Envelope struct {
	IV             string `json:"iv"`
	EncryptedData  string `json:"encryptedData"`
	AuthTag        string `json:"authTag"`
	Algorithm      string `json:"algorithm"`
}

const algorithmAESGCM = "aes-256-gcm"

// Encrypt produces an Envelope for plaintext using a fresh random IV.
// Encryption failures are fatal for the store operation per spec §4.2 step
// 2 — callers must never fall back to storing plaintext on error.
func Encrypt(plaintext []byte, keyProvider KeyProvider) (*Envelope, error) {
	key, err := keyProvider.Key()
	if err != nil {
		return nil, corerr.Wrap(corerr.KindEncryptionFailure, "failed to resolve encryption key", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindEncryptionFailure, "failed to construct AES cipher", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindEncryptionFailure, "failed to construct GCM mode", err)
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, corerr.Wrap(corerr.KindEncryptionFailure, "failed to generate IV", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	return &Envelope{
		IV:            hex.EncodeToString(iv),
		EncryptedData: hex.EncodeToString(ciphertext),
		AuthTag:       hex.EncodeToString(tag),
		Algorithm:     algorithmAESGCM,
	}, nil
}

// Decrypt recovers plaintext from an Envelope.
func Decrypt(env *Envelope, keyProvider KeyProvider) ([]byte, error) {
	if env.Algorithm != algorithmAESGCM {
		return nil, corerr.New(corerr.KindDecryptionFailure, "unsupported encryption algorithm: "+env.Algorithm)
	}
	key, err := keyProvider.Key()
	if err != nil {
		return nil, corerr.Wrap(corerr.KindDecryptionFailure, "failed to resolve encryption key", err)
	}
	iv, err := hex.DecodeString(env.IV)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindDecryptionFailure, "invalid IV encoding", err)
	}
	ciphertext, err := hex.DecodeString(env.EncryptedData)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindDecryptionFailure, "invalid ciphertext encoding", err)
	}
	tag, err := hex.DecodeString(env.AuthTag)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindDecryptionFailure, "invalid auth tag encoding", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindDecryptionFailure, "failed to construct AES cipher", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindDecryptionFailure, "failed to construct GCM mode", err)
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindDecryptionFailure, "authentication failed", err)
	}
	return plaintext, nil
}
