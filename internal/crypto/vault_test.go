package crypto

import "testing"

func TestVault_RoundTrip(t *testing.T) {
	v, err := NewVault("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	secret := "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	blob, err := v.Encrypt(secret)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if blob == secret {
		t.Fatal("ciphertext equals plaintext")
	}

	got, err := v.Decrypt(blob)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != secret {
		t.Fatalf("roundtrip=%q want=%q", got, secret)
	}
}

func TestVault_FreshSaltPerEncrypt(t *testing.T) {
	v, err := NewVault("pw")
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	first, err := v.Encrypt("secret")
	if err != nil {
		t.Fatalf("first Encrypt: %v", err)
	}
	second, err := v.Encrypt("secret")
	if err != nil {
		t.Fatalf("second Encrypt: %v", err)
	}
	if first == second {
		t.Fatal("identical blobs for repeated encryptions")
	}
}

func TestVault_WrongPassword(t *testing.T) {
	v, err := NewVault("right")
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	blob, err := v.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	wrong, err := NewVault("wrong")
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	if _, err := wrong.Decrypt(blob); err == nil {
		t.Fatal("expected decryption failure with wrong password")
	}
}

func TestVault_EmptyPassword(t *testing.T) {
	if _, err := NewVault(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestVault_GarbageBlob(t *testing.T) {
	v, err := NewVault("pw")
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	if _, err := v.Decrypt("not-base64!!"); err == nil {
		t.Fatal("expected error for malformed blob")
	}
}
