package discovery

import (
	"errors"
	"time"
)

const (
	// ServiceType is the default DNS-SD service type.
	ServiceType = "_tlsock._tcp"

	// Domain is the mDNS domain.
	Domain = "local."
)

// TXT record keys.
const (
	TXTKeyProtocol    = "proto"
	TXTKeyID          = "id"
	TXTKeyFamily      = "fam"
	TXTKeyFingerprint = "fp"
)

const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTRecordSize is the maximum total TXT record size.
	MaxTXTRecordSize = 400

	// FingerprintLength is the length of a certificate fingerprint (16 hex
	// chars = 64 bits).
	FingerprintLength = 16

	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 10 * time.Second
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
	ErrAlreadyExists       = errors.New("service already exists")
	ErrNotBound            = errors.New("listener is not bound")
)

// ServiceInfo describes one announced listener.
type ServiceInfo struct {
	// ID is the listener ID and keys the announcement.
	ID string

	// Instance is the DNS-SD instance name.
	Instance string

	// Service and Domain default to ServiceType and Domain.
	Service string
	Domain  string

	Port        uint16
	Protocol    string
	Family      string
	Fingerprint string
}

// Service is a browsed listener.
type Service struct {
	Instance  string
	Host      string
	Port      uint16
	Addresses []string

	Protocol    string
	ID          string
	Family      string
	Fingerprint string
}
