package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"path/filepath"
	"time"
)

var randReader = rand.Reader

// DefaultValidity is the lifetime of generated certificates.
const DefaultValidity = 365 * 24 * time.Hour

// SelfSignedOptions controls GenerateSelfSigned.
type SelfSignedOptions struct {
	// CommonName defaults to "localhost".
	CommonName string

	// Hosts are added as DNS or IP subject alternative names.
	Hosts []string

	// Validity defaults to DefaultValidity.
	Validity time.Duration

	// IsCA marks the certificate as a CA so it can sign client certificates.
	IsCA bool

	// Parent and ParentKey sign the certificate instead of self-signing.
	Parent    *x509.Certificate
	ParentKey *ecdsa.PrivateKey
}

// GenerateSelfSigned creates an ECDSA P-256 key and a certificate for it.
func GenerateSelfSigned(opts SelfSignedOptions) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), randReader)
	if err != nil {
		return nil, nil, err
	}

	serial, err := rand.Int(randReader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, err
	}

	cn := opts.CommonName
	if cn == "" {
		cn = "localhost"
	}
	validity := opts.Validity
	if validity == 0 {
		validity = DefaultValidity
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	if opts.IsCA {
		template.IsCA = true
		template.KeyUsage |= x509.KeyUsageCertSign
	}
	for _, h := range opts.Hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	parent, signer := template, key
	if opts.Parent != nil && opts.ParentKey != nil {
		parent, signer = opts.Parent, opts.ParentKey
	}

	der, err := x509.CreateCertificate(randReader, template, parent, &key.PublicKey, signer)
	if err != nil {
		return nil, nil, err
	}
	c, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, err
	}
	return c, key, nil
}

// GenerateSelfSignedFiles writes a fresh self-signed certificate and key for
// hosts into dir as server.crt and server.key.
func GenerateSelfSignedFiles(dir string, hosts ...string) (certPath, keyPath string, err error) {
	c, key, err := GenerateSelfSigned(SelfSignedOptions{Hosts: hosts})
	if err != nil {
		return "", "", err
	}

	certPath = filepath.Join(dir, "server.crt")
	keyPath = filepath.Join(dir, "server.key")
	if err := WriteCertFile(certPath, c); err != nil {
		return "", "", err
	}
	if err := WriteKeyFile(keyPath, key); err != nil {
		return "", "", err
	}
	return certPath, keyPath, nil
}
