// Package config loads the host configuration file and turns it into the
// listener requests and TLS material overrides the transport package
// consumes.
//
// The file has two sections. server: holds the defaults shared by every
// listener (host, port, backlog, mDNS and protocol log settings, and any
// tls_* key). listeners: lists the sockets to open; each entry may override
// any tls_* key for itself.
//
//	server:
//	  host: "*"
//	  port: "4433"
//	  tls_key_file: /etc/tlsock/server.key
//	  tls_cert_file: /etc/tlsock/server.crt
//	listeners:
//	  - protocol: echo
//	  - protocol: admin
//	    port: "4434"
//	    tls_verify_mode: peer|fail_if_no_peer_cert
//	    tls_ca_file: /etc/tlsock/clients.pem
//
// Function-valued keys (tls_password_callback, tls_error_callback) name a
// function registered in a Registry by the host program.
package config
