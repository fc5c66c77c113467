// Package server is a minimal host for tlsock listeners.
//
// It builds listeners from a host configuration, binds them (or adopts
// descriptors inherited from a restarting parent), and runs one accept
// loop per listener. Every accepted connection is served by its own
// goroutine calling the Handler; the connection is closed when the
// handler returns.
//
// Example usage:
//
//	cfg, _ := config.Load("tlsock.yaml")
//	srv, err := server.New(server.Options{
//		Config:  cfg,
//		Handler: echo,
//	})
//	if err := srv.Start(ctx); err != nil {
//		return err
//	}
//	defer srv.Stop()
//
// # Graceful restart
//
// Restart starts a new copy of the running executable and hands it the
// listening descriptors as extra files (fd 3 onwards), announcing their
// count in TLSOCK_LISTEN_FDS. The child reconnects each listener in
// configuration order instead of binding, so no pending connection is
// refused while the parent drains.
package server
