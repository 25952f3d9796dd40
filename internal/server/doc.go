// Package server exposes a discovery session over HTTP and WebSocket.
//
// # Endpoints
//
//	POST /api/discover   start a discovery cycle (202 Accepted)
//	GET  /api/gateways   latest published result
//	GET  /api/state      "idle" or "discovering"
//	GET  /ws             WebSocket stream of results
//	GET  /metrics        Prometheus metrics (when a registry is given)
//
// A WebSocket client receives the latest result as soon as it connects and
// every result published afterwards. Sending the text message "discover"
// starts a cycle.
//
// # Usage Example
//
//	srv, err := server.New(&server.Config{Addr: ":8080"}, session, reg)
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx) // blocks until SIGINT/SIGTERM
//
// # TLS
//
// When both CertPath and KeyPath are set the server speaks HTTPS (and WSS)
// with TLS 1.2 or newer.
package server
