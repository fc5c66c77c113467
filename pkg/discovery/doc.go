// Package discovery announces bound TLS listeners over mDNS/DNS-SD and
// browses for them.
//
// Each announced listener is one service instance of type _tlsock._tcp
// (configurable). TXT records carry:
//
//   - proto: the protocol the host serves on the listener
//   - id: the listener ID
//   - fam: the address family (IPv4, IPv6)
//   - fp: the first 64 bits of SHA-256 over the server certificate, hex
//     encoded, so clients can pin the certificate they expect
//
// Announcer tracks which listeners are announced and withdraws them when
// they close. MDNSAdvertiser and MDNSBrowser implement the wire side with
// zeroconf.
package discovery
