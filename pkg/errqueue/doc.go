// Package errqueue drains and classifies errors reported by the TLS binding.
//
// The binding does not hand errors back to stream code directly. Every
// library call records what went wrong on the connection's Queue, and the
// caller drains the queue right after the call, before issuing the next one,
// so each error is attributed to the operation that produced it.
//
// # Draining
//
//	n, err := sess.Read(buf)
//	if entries := adapter.Drain("read"); len(entries) > 0 {
//	    // advisory: the observer has already seen them
//	}
//	if err := adapter.DrainFatal("ssl_accept"); err != nil {
//	    return err // *FatalError carrying op, caller file:line and entries
//	}
//
// An Observer registered on the Adapter sees every non-empty drain, fatal or
// not, before the result propagates. It cannot change the outcome.
//
// # Codes
//
// Entries carry a 32-bit code whose top byte is the class (alert, record,
// x509, errno, generic). Describe renders a code using a table that is built
// once per process.
package errqueue
