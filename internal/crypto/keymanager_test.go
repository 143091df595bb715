package crypto

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptSecret("gsk_live_abc123", "passw0rd")
	if err != nil {
		t.Fatalf("EncryptSecret: %v", err)
	}

	got, err := DecryptSecret(blob, "passw0rd")
	if err != nil {
		t.Fatalf("DecryptSecret: %v", err)
	}
	if got != "gsk_live_abc123" {
		t.Errorf("decrypted = %q, want original secret", got)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptSecret("gsk_live_abc123", "passw0rd")
	if err != nil {
		t.Fatalf("EncryptSecret: %v", err)
	}
	if _, err := DecryptSecret(blob, "wrong"); err == nil {
		t.Fatal("expected decryption failure with wrong password")
	}
}

func TestEncryptRejectsEmptyInputs(t *testing.T) {
	if _, err := EncryptSecret("", "passw0rd"); err == nil {
		t.Error("expected error for empty secret")
	}
	if _, err := EncryptSecret("secret", ""); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestLoadSecretPrefersRawValue(t *testing.T) {
	got, err := LoadSecret(SecretConfig{RawSecret: "inline"})
	if err != nil {
		t.Fatalf("LoadSecret: %v", err)
	}
	if got != "inline" {
		t.Errorf("secret = %q, want inline", got)
	}
}

func TestLoadSecretFromEncryptedFile(t *testing.T) {
	blob, err := EncryptSecret("from-disk", "passw0rd")
	if err != nil {
		t.Fatalf("EncryptSecret: %v", err)
	}
	path := filepath.Join(t.TempDir(), "secret.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("write secret file: %v", err)
	}

	got, err := LoadSecret(SecretConfig{EncryptedPath: path, Password: "passw0rd"})
	if err != nil {
		t.Fatalf("LoadSecret: %v", err)
	}
	if got != "from-disk" {
		t.Errorf("secret = %q, want from-disk", got)
	}
}

func TestLoadSecretNoSource(t *testing.T) {
	if _, err := LoadSecret(SecretConfig{}); err == nil {
		t.Fatal("expected error when no source is configured")
	}
}
