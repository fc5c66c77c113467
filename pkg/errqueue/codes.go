package errqueue

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock reports that a non-blocking operation could not make progress
// right now.
var ErrWouldBlock = errors.New("operation would block")

// Code classes, stored in the top byte of Entry.Code.
const (
	ClassGeneric uint32 = 0x01 << 24
	ClassErrno   uint32 = 0x02 << 24
	ClassAlert   uint32 = 0x03 << 24
	ClassRecord  uint32 = 0x04 << 24
	ClassX509    uint32 = 0x05 << 24
	ClassMisuse  uint32 = 0x06 << 24

	classMask uint32 = 0xff << 24
)

// x509 codes beyond the InvalidReason range.
const (
	codeUnknownAuthority uint32 = 0x100
	codeHostname         uint32 = 0x101
)

// CodeOf classifies err.
func CodeOf(err error) uint32 {
	var (
		alert   tls.AlertError
		record  tls.RecordHeaderError
		invalid x509.CertificateInvalidError
		unknown x509.UnknownAuthorityError
		host    x509.HostnameError
		errno   unix.Errno
	)
	switch {
	case errors.As(err, &alert):
		return ClassAlert | uint32(alert)
	case errors.As(err, &record):
		return ClassRecord | uint32(record.RecordHeader[0])
	case errors.As(err, &invalid):
		return ClassX509 | uint32(invalid.Reason)
	case errors.As(err, &unknown):
		return ClassX509 | codeUnknownAuthority
	case errors.As(err, &host):
		return ClassX509 | codeHostname
	case errors.As(err, &errno):
		return ClassErrno | uint32(errno)
	}
	return ClassGeneric
}

// IsWouldBlock reports whether err means "no data or capacity right now".
func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock) ||
		errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.EWOULDBLOCK) ||
		errors.Is(err, os.ErrDeadlineExceeded)
}

// IsRetryable reports whether an operation failing with err may be retried:
// would-block, interrupted, or no buffer space.
func IsRetryable(err error) bool {
	return IsWouldBlock(err) ||
		errors.Is(err, unix.EINTR) ||
		errors.Is(err, unix.ENOBUFS)
}

var (
	stringsOnce  sync.Once
	classNames   map[uint32]string
	x509Reasons  map[uint32]string
	recordTypes  map[uint32]string
)

// LoadErrorStrings builds the process-wide description tables. It runs at
// most once; Describe calls it on first use.
func LoadErrorStrings() {
	stringsOnce.Do(func() {
		classNames = map[uint32]string{
			ClassGeneric: "generic",
			ClassErrno:   "system",
			ClassAlert:   "alert",
			ClassRecord:  "record",
			ClassX509:    "x509",
			ClassMisuse:  "misuse",
		}
		x509Reasons = map[uint32]string{
			uint32(x509.NotAuthorizedToSign):           "not authorized to sign",
			uint32(x509.Expired):                       "certificate expired",
			uint32(x509.CANotAuthorizedForThisName):    "CA not authorized for name",
			uint32(x509.TooManyIntermediates):          "too many intermediates",
			uint32(x509.IncompatibleUsage):             "incompatible key usage",
			uint32(x509.NameMismatch):                  "issuer name mismatch",
			uint32(x509.NameConstraintsWithoutSANs):    "name constraints without SANs",
			uint32(x509.UnconstrainedName):             "unconstrained name",
			uint32(x509.TooManyConstraints):            "too many constraints",
			uint32(x509.CANotAuthorizedForExtKeyUsage): "CA not authorized for ext key usage",
			codeUnknownAuthority:                       "unknown authority",
			codeHostname:                               "hostname mismatch",
		}
		recordTypes = map[uint32]string{
			0x16: "handshake record where data was expected",
			0x47: "plaintext HTTP request",
			0x43: "plaintext HTTP CONNECT",
		}
	})
}

// Describe renders code as "<class>: <reason>".
func Describe(code uint32) string {
	LoadErrorStrings()

	class := code & classMask
	low := code &^ classMask
	name, ok := classNames[class]
	if !ok {
		return fmt.Sprintf("unknown(%#x)", code)
	}

	switch class {
	case ClassAlert:
		return name + ": " + tls.AlertError(uint8(low)).Error()
	case ClassErrno:
		return name + ": " + unix.Errno(low).Error()
	case ClassX509:
		if reason, ok := x509Reasons[low]; ok {
			return name + ": " + reason
		}
	case ClassRecord:
		if reason, ok := recordTypes[low]; ok {
			return name + ": " + reason
		}
		return fmt.Sprintf("%s: bad record header (first byte %#02x)", name, low)
	}
	return name
}
