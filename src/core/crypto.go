package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// GenerateNodeKey creates a fresh ECDSA P-256 key pair for the node.
func GenerateNodeKey() (*ecdsa.PrivateKey, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return privateKey, nil
}

// AddressFromPublicKey derives the node's canonical address: the first 20
// bytes of the SHA-256 hash of the uncompressed public key.
func AddressFromPublicKey(publicKey *ecdsa.PublicKey) Address {
	publicKeyBytes := elliptic.Marshal(publicKey.Curve, publicKey.X, publicKey.Y)
	hash := sha256.Sum256(publicKeyBytes)
	return Address("0x" + hex.EncodeToString(hash[:20]))
}

// SignData signs data with the given private key. The signature is the
// 64-byte r||s form with each component padded to 32 bytes for P-256.
func SignData(privateKey *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	hash := sha256.Sum256(data)

	r, s, err := ecdsa.Sign(rand.Reader, privateKey, hash[:])
	if err != nil {
		return nil, err
	}

	signature := make([]byte, 64)
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	copy(signature[32-len(rBytes):32], rBytes)
	copy(signature[64-len(sBytes):64], sBytes)

	return signature, nil
}

// PublicKeyHex returns the hex-encoded public key in uncompressed format
// (65 bytes: 0x04 || X || Y).
func PublicKeyHex(publicKey *ecdsa.PublicKey) string {
	publicKeyBytes := elliptic.Marshal(publicKey.Curve, publicKey.X, publicKey.Y)
	return hex.EncodeToString(publicKeyBytes)
}

// VerifySignature verifies an ECDSA P-256 signature over data.
// publicKeyHex: hex-encoded uncompressed public key
// signatureHex: hex-encoded 64-byte r||s signature
func VerifySignature(publicKeyHex string, data []byte, signatureHex string) bool {
	if publicKeyHex == "" || signatureHex == "" {
		return false
	}

	publicKeyBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		logger.Debug("Failed to decode public key hex", "error", err)
		return false
	}

	x, y := elliptic.Unmarshal(elliptic.P256(), publicKeyBytes)
	if x == nil {
		logger.Debug("Failed to unmarshal public key")
		return false
	}

	publicKey := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     x,
		Y:     y,
	}

	signatureBytes, err := hex.DecodeString(signatureHex)
	if err != nil {
		logger.Debug("Failed to decode signature hex", "error", err)
		return false
	}

	if len(signatureBytes) != 64 {
		logger.Debug("Invalid signature length", "expected", 64, "got", len(signatureBytes))
		return false
	}

	r := new(big.Int).SetBytes(signatureBytes[:32])
	s := new(big.Int).SetBytes(signatureBytes[32:])

	hash := sha256.Sum256(data)
	return ecdsa.Verify(publicKey, hash[:], r, s)
}
