// Package cryptoutil provides the cryptographic helpers the streaming
// platform relies on: symmetric sealing for wallet session material,
// content digests, and key derivation from operator passphrases.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/scrypt"
	"golang.org/x/crypto/sha3"
)

// KeySize is the AES key length in bytes. Only AES-256 is supported.
const KeySize = 32

var (
	// ErrInvalidKey is returned when a key is not KeySize bytes long.
	ErrInvalidKey = errors.New("cryptoutil: key must be 32 bytes")
	// ErrCiphertextShort is returned when a sealed payload is too short to
	// contain a nonce.
	ErrCiphertextShort = errors.New("cryptoutil: ciphertext shorter than nonce")
)

// Encrypt seals plaintext with AES-256-GCM. The random nonce is prepended to
// the returned ciphertext.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a payload produced by Encrypt.
func Decrypt(key, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, ErrCiphertextShort
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("open ciphertext: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// SHA256Hex returns the hex-encoded SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Keccak256Hex returns the hex-encoded legacy Keccak-256 digest of data.
// Content identifiers use Keccak so they line up with on-chain hashes.
func Keccak256Hex(data []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DeriveKey stretches a passphrase into an AES-256 key using scrypt with
// interactive-login parameters. The salt must be stable per installation.
func DeriveKey(passphrase, salt []byte) ([]byte, error) {
	if len(salt) == 0 {
		return nil, errors.New("cryptoutil: salt is required")
	}
	return scrypt.Key(passphrase, salt, 1<<15, 8, 1, KeySize)
}

// ModuleInfo describes the crypto module build, mirroring what the platform
// reports to diagnostics surfaces.
type ModuleInfo struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Arch     string `json:"arch"`
}

// Info reports the module identity and host platform.
func Info() ModuleInfo {
	return ModuleInfo{
		Name:     "stream_layer_crypto",
		Version:  "1.0.0",
		Platform: runtime.GOOS,
		Arch:     runtime.GOARCH,
	}
}
