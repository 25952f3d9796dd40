// Package discovery finds lettin gateways on the local network.
//
// A Session broadcasts a discover request to 255.255.255.255:7000 from local
// port 6000, collects every response that arrives during a fixed window and
// publishes the result on a replay-one stream.
//
// # Discovery Cycle
//
//  1. Clear the previous accumulation and pick a random transaction id
//  2. Build {"Tid":tid,"Cmd":1,"Token":token} and split it into 450-byte fragments
//  3. Send every fragment concurrently; failures are logged, never retried
//  4. Wait the collection window (2 seconds by default)
//  5. Publish the collected gateways and return to idle
//
// If the request cannot be built, or no fragment could be sent, an empty
// result is published immediately.
//
// # Usage Example
//
//	transport, err := discovery.ListenUDP(discovery.DefaultLocalPort)
//	if err != nil {
//	    return err
//	}
//	defer transport.Close()
//
//	session := discovery.NewSession(transport, discovery.DefaultConfig())
//	if err := session.Start(); err != nil {
//	    return err
//	}
//	defer session.Stop()
//
//	for _, gw := range session.Discover(ctx) {
//	    fmt.Println(gw)
//	}
//
// # Result Stream
//
// Results keeps the most recent result. Subscribe replays it immediately and
// then delivers each new one. A slow subscriber only ever sees the newest
// unread result.
//
// # Network Requirements
//
// - UDP port 6000 must be free locally
// - Gateways must be on the same broadcast domain
// - Firewall must allow UDP 7000 outbound and 6000 inbound
//
// Gateways that advertise _lettin._udp over mDNS can also be listed with
// Browser, which needs multicast on UDP 5353.
package discovery
