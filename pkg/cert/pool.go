package cert

import (
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoCAs is returned when a CA file or directory yields no certificates.
var ErrNoCAs = errors.New("no CAs found")

// LoadCAs builds a pool from caFile and every PEM file below caPath.
// Either may be empty; when both are empty LoadCAs returns (nil, nil).
func LoadCAs(caFile, caPath string) (*x509.CertPool, error) {
	if caFile == "" && caPath == "" {
		return nil, nil
	}

	pool := x509.NewCertPool()
	count := 0

	if caFile != "" {
		n, err := addPEMFile(pool, caFile)
		if err != nil {
			return nil, err
		}
		count += n
	}

	if caPath != "" {
		err := filepath.Walk(caPath, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			n, err := addPEMFile(pool, path)
			if err != nil {
				// Non-PEM files in a hashed CA directory are common.
				if errors.Is(err, ErrNoCertificate) || errors.Is(err, ErrInvalidPEM) {
					return nil
				}
				return err
			}
			count += n
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("load CA path %s: %w", caPath, err)
		}
	}

	if count == 0 {
		return nil, ErrNoCAs
	}
	return pool, nil
}

func addPEMFile(pool *x509.CertPool, path string) (int, error) {
	certs, err := ReadCertFile(path)
	if err != nil {
		return 0, fmt.Errorf("load CA file %s: %w", path, err)
	}
	for _, c := range certs {
		pool.AddCert(c)
	}
	return len(certs), nil
}
