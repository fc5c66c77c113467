package cert

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// PEM encoding/decoding errors.
var (
	ErrInvalidPEM      = errors.New("invalid PEM data")
	ErrInvalidKey      = errors.New("invalid private key")
	ErrNoCertificate   = errors.New("no certificate found")
	ErrPasswordNeeded  = errors.New("private key is encrypted and no password callback is set")
	ErrBadPassword     = errors.New("private key decryption failed")
	ErrKeyMismatch     = errors.New("private key does not match certificate")
	ErrUnsupportedType = errors.New("unsupported key type")
)

// PasswordFunc returns the passphrase protecting a private key file.
type PasswordFunc func() ([]byte, error)

// EncodeCertPEM encodes an X.509 certificate to PEM format.
func EncodeCertPEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: cert.Raw,
	})
}

// DecodeCertPEM decodes the first PEM-encoded X.509 certificate in data.
func DecodeCertPEM(data []byte) (*x509.Certificate, error) {
	chain, err := DecodeCertChainPEM(data)
	if err != nil {
		return nil, err
	}
	return chain[0], nil
}

// DecodeCertChainPEM decodes every CERTIFICATE block in data, leaf first.
// Blocks of other types are skipped.
func DecodeCertChainPEM(data []byte) ([]*x509.Certificate, error) {
	var chain []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPEM, err)
		}
		chain = append(chain, c)
	}
	if len(chain) == 0 {
		return nil, ErrNoCertificate
	}
	return chain, nil
}

// EncodeKeyPEM encodes a private key as an unencrypted PKCS#8 PEM block.
func EncodeKeyPEM(key crypto.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: der,
	}), nil
}

// EncodeEncryptedKeyPEM encodes an ECDSA key as a legacy password protected
// "EC PRIVATE KEY" block (AES-256-CBC), the format produced by
// `openssl ec -aes256`.
func EncodeEncryptedKeyPEM(key *ecdsa.PrivateKey, password []byte) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}
	//nolint:staticcheck // legacy PEM encryption is what key files in the wild use
	block, err := x509.EncryptPEMBlock(randReader, "EC PRIVATE KEY", der, password, x509.PEMCipherAES256)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(block), nil
}

// DecodeKeyPEM decodes the first private key block in data. Encrypted blocks
// are decrypted with the passphrase returned by password.
func DecodeKeyPEM(data []byte, password PasswordFunc) (crypto.PrivateKey, error) {
	var block *pem.Block
	for {
		block, data = pem.Decode(data)
		if block == nil {
			return nil, ErrInvalidPEM
		}
		if strings.HasSuffix(block.Type, "PRIVATE KEY") {
			break
		}
	}

	der := block.Bytes
	//nolint:staticcheck // see EncodeEncryptedKeyPEM
	if x509.IsEncryptedPEMBlock(block) {
		if password == nil {
			return nil, ErrPasswordNeeded
		}
		pw, err := password()
		if err != nil {
			return nil, fmt.Errorf("password callback: %w", err)
		}
		//nolint:staticcheck // see EncodeEncryptedKeyPEM
		der, err = x509.DecryptPEMBlock(block, pw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPassword, err)
		}
	}

	switch block.Type {
	case "EC PRIVATE KEY":
		k, err := x509.ParseECPrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return k, nil
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return k, nil
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return k, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, block.Type)
	}
}

// MarshalKeyDER returns the PKCS#8 DER form of key.
func MarshalKeyDER(key crypto.PrivateKey) ([]byte, error) {
	return x509.MarshalPKCS8PrivateKey(key)
}

// CheckKeyPair reports whether key is the private half of leaf's public key.
func CheckKeyPair(leaf *x509.Certificate, key crypto.PrivateKey) error {
	type publicKeyer interface {
		Public() crypto.PublicKey
	}
	type equaler interface {
		Equal(crypto.PublicKey) bool
	}

	switch key.(type) {
	case *ecdsa.PrivateKey, *rsa.PrivateKey, ed25519.PrivateKey:
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, key)
	}

	pub, ok := leaf.PublicKey.(equaler)
	if !ok || !pub.Equal(key.(publicKeyer).Public()) {
		return ErrKeyMismatch
	}
	return nil
}

// WriteCertFile writes a certificate chain to a PEM file.
func WriteCertFile(path string, chain ...*x509.Certificate) error {
	var data []byte
	for _, c := range chain {
		data = append(data, EncodeCertPEM(c)...)
	}
	return os.WriteFile(path, data, 0644)
}

// ReadCertFile reads a certificate chain from a PEM file.
func ReadCertFile(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeCertChainPEM(data)
}

// WriteKeyFile writes a private key to a PEM file with restricted permissions.
func WriteKeyFile(path string, key crypto.PrivateKey) error {
	data, err := EncodeKeyPEM(key)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ReadKeyFile reads a private key from a PEM file, asking password for the
// passphrase when the key is encrypted.
func ReadKeyFile(path string, password PasswordFunc) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeKeyPEM(data, password)
}
