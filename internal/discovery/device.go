package discovery

import (
	"fmt"
	"net"
	"time"
)

// Gateway is one responder to a discovery broadcast
type Gateway struct {
	// Name is Obj.Name from the response body (empty if the body did not parse)
	Name string `json:"name"`

	// MAC is the 8-byte gateway identity as 16 lowercase hex characters
	MAC string `json:"mac"`

	// Addr is the source address of the response datagram (e.g., "192.168.1.20:7000")
	Addr string `json:"addr,omitempty"`

	// DiscoveredAt is when the response arrived
	DiscoveredAt time.Time `json:"discovered_at"`
}

// String returns a human-readable string representation of the gateway
func (g *Gateway) String() string {
	name := g.Name
	if name == "" {
		name = "(unnamed)"
	}
	if g.Addr == "" {
		return fmt.Sprintf("Gateway %s [%s]", name, g.MAC)
	}
	return fmt.Sprintf("Gateway %s [%s] at %s", name, g.MAC, g.Addr)
}

// IP returns the host part of Addr, or Addr itself if it carries no port
func (g *Gateway) IP() string {
	host, _, err := net.SplitHostPort(g.Addr)
	if err != nil {
		return g.Addr
	}
	return host
}

// key identifies exact duplicates: same identity and same name
func (g *Gateway) key() string {
	return g.MAC + "\x00" + g.Name
}

// Dedup drops records whose MAC and name both match an earlier record.
// Records sharing a MAC but reporting different names are all kept.
func Dedup(gateways []*Gateway) []*Gateway {
	seen := make(map[string]struct{}, len(gateways))
	out := make([]*Gateway, 0, len(gateways))
	for _, g := range gateways {
		k := g.key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, g)
	}
	return out
}
