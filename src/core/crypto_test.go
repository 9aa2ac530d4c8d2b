package main

import (
	"encoding/hex"
	"testing"
)

func TestSignAndVerify(t *testing.T) {
	key, err := GenerateNodeKey()
	if err != nil {
		t.Fatalf("GenerateNodeKey failed: %v", err)
	}

	data := []byte(`{"from":"a","to":"b","value":100}`)
	signature, err := SignData(key, data)
	if err != nil {
		t.Fatalf("SignData failed: %v", err)
	}
	if len(signature) != 64 {
		t.Fatalf("Expected 64-byte signature, got %d", len(signature))
	}

	publicKeyHex := PublicKeyHex(&key.PublicKey)
	signatureHex := hex.EncodeToString(signature)

	if !VerifySignature(publicKeyHex, data, signatureHex) {
		t.Error("Valid signature did not verify")
	}

	t.Run("tampered data fails", func(t *testing.T) {
		if VerifySignature(publicKeyHex, []byte(`{"value":999}`), signatureHex) {
			t.Error("Tampered data verified")
		}
	})

	t.Run("wrong key fails", func(t *testing.T) {
		otherKey, err := GenerateNodeKey()
		if err != nil {
			t.Fatalf("GenerateNodeKey failed: %v", err)
		}
		if VerifySignature(PublicKeyHex(&otherKey.PublicKey), data, signatureHex) {
			t.Error("Signature verified under the wrong key")
		}
	})

	t.Run("garbage inputs fail closed", func(t *testing.T) {
		if VerifySignature("", data, signatureHex) {
			t.Error("Empty public key verified")
		}
		if VerifySignature("zzzz", data, signatureHex) {
			t.Error("Non-hex public key verified")
		}
		if VerifySignature(publicKeyHex, data, "") {
			t.Error("Empty signature verified")
		}
		if VerifySignature(publicKeyHex, data, "abcd") {
			t.Error("Truncated signature verified")
		}
	})
}

func TestAddressFromPublicKey(t *testing.T) {
	key, err := GenerateNodeKey()
	if err != nil {
		t.Fatalf("GenerateNodeKey failed: %v", err)
	}

	addr := AddressFromPublicKey(&key.PublicKey)
	if !IsValidAddress(addr) {
		t.Errorf("Derived address not canonical: %s", addr)
	}
	// Derivation is deterministic
	if again := AddressFromPublicKey(&key.PublicKey); again != addr {
		t.Errorf("Address derivation not deterministic: %s vs %s", addr, again)
	}
}
