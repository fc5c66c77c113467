package discovery

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
)

// Fingerprint returns the first 64 bits of SHA-256 over the certificate DER,
// hex encoded.
func Fingerprint(cert *x509.Certificate) string {
	return FingerprintFromDER(cert.Raw)
}

// FingerprintFromDER is Fingerprint over raw DER bytes.
func FingerprintFromDER(der []byte) string {
	hash := sha256.Sum256(der)
	return hex.EncodeToString(hash[:8])
}

// ValidateFingerprint checks that s is 16 lowercase hex characters.
func ValidateFingerprint(s string) bool {
	if len(s) != FingerprintLength {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
