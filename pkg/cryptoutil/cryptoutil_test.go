package cryptoutil

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := DeriveKey([]byte("operator-passphrase"), []byte("install-salt"))
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	plaintext := []byte("wallet session material")

	sealed, err := Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatal("ciphertext leaks plaintext")
	}

	opened, err := Decrypt(key, sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	key, _ := DeriveKey([]byte("right"), []byte("salt"))
	other, _ := DeriveKey([]byte("wrong"), []byte("salt"))

	sealed, err := Encrypt(key, []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := Decrypt(other, sealed); err == nil {
		t.Fatal("expected authentication failure with wrong key")
	}
}

func TestEncryptRejectsShortKey(t *testing.T) {
	if _, err := Encrypt([]byte("short"), []byte("x")); err != ErrInvalidKey {
		t.Fatalf("err = %v, want ErrInvalidKey", err)
	}
}

func TestDigestsAreStable(t *testing.T) {
	data := []byte("featured-content-v1")
	if got := SHA256Hex(data); got != SHA256Hex(data) {
		t.Fatal("sha256 not deterministic")
	}
	if got := Keccak256Hex(data); got != Keccak256Hex(data) {
		t.Fatal("keccak256 not deterministic")
	}
	if SHA256Hex(data) == Keccak256Hex(data) {
		t.Fatal("sha256 and keccak256 should differ")
	}
	if len(SHA256Hex(data)) != 64 || len(Keccak256Hex(data)) != 64 {
		t.Fatal("digest length should be 32 bytes hex encoded")
	}
}

func TestInfoReportsIdentity(t *testing.T) {
	info := Info()
	if info.Name != "stream_layer_crypto" || info.Version == "" {
		t.Fatalf("unexpected module info: %+v", info)
	}
	if info.Platform == "" || info.Arch == "" {
		t.Fatalf("platform/arch missing: %+v", info)
	}
}
