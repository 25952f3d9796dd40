package config

import (
	"strings"
	"time"

	"github.com/lettin/lettin/internal/discovery"
	"github.com/lettin/lettin/internal/protocol"
)

// Registry represents the entire user configuration file.
// It stores discovery preferences and what is known about each gateway.
type Registry struct {
	Version     int                 `yaml:"version"`
	Gateways    map[string]*Gateway `yaml:"gateways,omitempty"` // Keyed by lowercase MAC
	Preferences *Preferences        `yaml:"preferences,omitempty"`
}

// Gateway represents what was last seen of one gateway
type Gateway struct {
	Nickname  string    `yaml:"nickname,omitempty"`   // User-friendly name
	Name      string    `yaml:"name,omitempty"`       // Name reported by the gateway
	LastIP    string    `yaml:"last_ip,omitempty"`    // Last known IP address
	LastSeen  time.Time `yaml:"last_seen,omitempty"`  // Last discovery time
	SeenCount int       `yaml:"seen_count,omitempty"` // Number of cycles the gateway answered
}

// Preferences represents discovery and service settings
type Preferences struct {
	BroadcastAddr    string        `yaml:"broadcast_addr"`
	RemotePort       int           `yaml:"remote_port"`
	LocalPort        int           `yaml:"local_port"`
	Window           time.Duration `yaml:"window"`
	Token            string        `yaml:"token"`
	MatchTransaction bool          `yaml:"match_transaction"`
	HTTPAddr         string        `yaml:"http_addr,omitempty"`    // Listen address of `lettin serve`
	NATSURL          string        `yaml:"nats_url,omitempty"`     // Empty disables result forwarding
	NATSSubject      string        `yaml:"nats_subject,omitempty"` // Subject results are published on
}

// DefaultHTTPAddr is the default listen address of the HTTP front end
const DefaultHTTPAddr = ":8080"

// DefaultPreferences returns the stock gateway settings
func DefaultPreferences() *Preferences {
	return &Preferences{
		BroadcastAddr: discovery.DefaultBroadcastAddr,
		RemotePort:    discovery.DefaultRemotePort,
		LocalPort:     discovery.DefaultLocalPort,
		Window:        discovery.DefaultWindow,
		Token:         protocol.DefaultToken,
		HTTPAddr:      DefaultHTTPAddr,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     1,
		Gateways:    make(map[string]*Gateway),
		Preferences: DefaultPreferences(),
	}
}

// SessionConfig converts the preferences into a discovery session config
func (p *Preferences) SessionConfig() discovery.Config {
	return discovery.Config{
		BroadcastAddr:    p.BroadcastAddr,
		RemotePort:       p.RemotePort,
		Window:           p.Window,
		Token:            p.Token,
		MatchTransaction: p.MatchTransaction,
	}
}

// fillDefaults replaces zero values left out of a hand-edited file
func (p *Preferences) fillDefaults() {
	def := DefaultPreferences()
	if p.BroadcastAddr == "" {
		p.BroadcastAddr = def.BroadcastAddr
	}
	if p.RemotePort == 0 {
		p.RemotePort = def.RemotePort
	}
	if p.LocalPort == 0 {
		p.LocalPort = def.LocalPort
	}
	if p.Window <= 0 {
		p.Window = def.Window
	}
	if p.Token == "" {
		p.Token = def.Token
	}
	if p.HTTPAddr == "" {
		p.HTTPAddr = def.HTTPAddr
	}
}

// GetGateway retrieves gateway metadata by MAC.
// Returns nil if the gateway doesn't exist in the registry.
func (r *Registry) GetGateway(mac string) *Gateway {
	return r.Gateways[strings.ToLower(mac)]
}

// EnsureGateway ensures a gateway entry exists in the registry.
// Returns the gateway entry (existing or newly created).
func (r *Registry) EnsureGateway(mac string) *Gateway {
	if r.Gateways == nil {
		r.Gateways = make(map[string]*Gateway)
	}

	mac = strings.ToLower(mac)
	if gw, exists := r.Gateways[mac]; exists {
		return gw
	}

	gw := &Gateway{}
	r.Gateways[mac] = gw
	return gw
}

// SetGatewayNickname sets a user-friendly nickname for a gateway.
func (r *Registry) SetGatewayNickname(mac, nickname string) {
	r.EnsureGateway(mac).Nickname = nickname
}

// RecordResult updates last-seen data from one discovery result.
// A MAC reported with several names counts once per result.
func (r *Registry) RecordResult(result []*discovery.Gateway) {
	counted := make(map[string]bool, len(result))
	for _, found := range result {
		if found.MAC == "" {
			continue
		}
		gw := r.EnsureGateway(found.MAC)
		if found.Name != "" {
			gw.Name = found.Name
		}
		if ip := found.IP(); ip != "" {
			gw.LastIP = ip
		}
		if found.DiscoveredAt.After(gw.LastSeen) {
			gw.LastSeen = found.DiscoveredAt
		}
		if !counted[found.MAC] {
			gw.SeenCount++
			counted[found.MAC] = true
		}
	}
}

// DisplayName returns the nickname, falling back to the reported name
func (g *Gateway) DisplayName() string {
	if g.Nickname != "" {
		return g.Nickname
	}
	return g.Name
}
