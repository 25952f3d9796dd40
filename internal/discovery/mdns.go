package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type lettin gateways (and the simulator) advertise
	ServiceType = "_lettin._udp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultBrowseTimeout is the default duration of an mDNS browse
	DefaultBrowseTimeout = 3 * time.Second
)

// TXT record keys
const (
	txtMAC  = "mac"
	txtName = "name"
)

// Browser finds gateways that advertise themselves over mDNS.
// It complements the broadcast Session for networks that drop broadcasts.
type Browser struct {
	// Timeout is how long to browse
	Timeout time.Duration
}

// NewBrowser creates a browser with default settings
func NewBrowser() *Browser {
	return &Browser{
		Timeout: DefaultBrowseTimeout,
	}
}

// Browse collects advertised gateways until the timeout or ctx ends
func (b *Browser) Browse(ctx context.Context) ([]*Gateway, error) {
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu       sync.Mutex
		gateways = make([]*Gateway, 0)
		done     = make(chan struct{})
	)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		defer close(done)
		for entry := range entries {
			if gw := parseServiceEntry(entry); gw != nil {
				mu.Lock()
				gateways = append(gateways, gw)
				mu.Unlock()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	// the resolver closes entries once ctx ends
	select {
	case <-done:
	case <-time.After(time.Second):
	}

	mu.Lock()
	defer mu.Unlock()
	return Dedup(gateways), nil
}

// parseServiceEntry converts a zeroconf entry into a Gateway.
// Returns nil when the entry carries no identity or address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Gateway {
	txt := make(map[string]string)
	for _, record := range entry.Text {
		parts := strings.SplitN(record, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else {
			txt[parts[0]] = ""
		}
	}

	mac := strings.ToLower(txt[txtMAC])
	if mac == "" {
		return nil
	}

	var ip net.IP
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0]
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0]
	}
	if ip == nil {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultRemotePort
	}

	name := txt[txtName]
	if name == "" {
		name = entry.Instance
	}

	return &Gateway{
		Name:         name,
		MAC:          mac,
		Addr:         net.JoinHostPort(ip.String(), strconv.Itoa(port)),
		DiscoveredAt: time.Now(),
	}
}

// Advertise registers a gateway under ServiceType until the returned
// server is shut down.
func Advertise(instance string, port int, mac, name string) (*zeroconf.Server, error) {
	txt := []string{txtMAC + "=" + mac, txtName + "=" + name}
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	return server, nil
}
