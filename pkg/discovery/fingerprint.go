package discovery

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NodeIDFromCertificate derives a node id from a certificate's public key.
//
// The id is the first 64 bits (16 hex chars) of SHA-256(public key DER), so
// it stays stable across certificate renewals with the same key.
func NodeIDFromCertificate(cert *x509.Certificate) (string, error) {
	pubKeyDER, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	return NodeIDFromPublicKeyBytes(pubKeyDER), nil
}

// NodeIDFromPublicKeyBytes derives a node id from raw public key DER bytes.
func NodeIDFromPublicKeyBytes(pubKeyDER []byte) string {
	hash := sha256.Sum256(pubKeyDER)
	return hex.EncodeToString(hash[:8])
}

// RandomNodeID returns a node id for nodes without a certificate.
func RandomNodeID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}

// ValidateID checks if an ID string is a valid 64-bit fingerprint (16 hex chars).
func ValidateID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	return isHexString(id)
}

func isHexString(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return !('0' <= r && r <= '9' || 'a' <= r && r <= 'f')
	}) < 0
}
