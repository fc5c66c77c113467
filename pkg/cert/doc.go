// Package cert loads and generates the certificate material a TLS listener
// needs: PEM private keys (optionally password protected), certificate chains
// and CA pools.
package cert
