package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantMAC  string
		wantName string
		wantAddr string
	}{
		{
			name: "gateway with IPv4",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "lettin-hall"},
				Port:          7000,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.4.16")},
				Text:          []string{"mac=001A2B3C4D5E6F70", "name=Hall"},
			},
			wantMAC:  "001a2b3c4d5e6f70",
			wantName: "Hall",
			wantAddr: "192.168.4.16:7000",
		},
		{
			name: "no port defaults to the gateway port",
			entry: &zeroconf.ServiceEntry{
				AddrIPv4: []net.IP{net.ParseIP("10.0.0.5")},
				Text:     []string{"mac=0102030405060708", "name=Porch"},
			},
			wantMAC:  "0102030405060708",
			wantName: "Porch",
			wantAddr: "10.0.0.5:7000",
		},
		{
			name: "instance name used when TXT name is missing",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "lettin-attic"},
				Port:          7000,
				AddrIPv6:      []net.IP{net.ParseIP("fe80::1")},
				Text:          []string{"mac=0102030405060708", "flag"},
			},
			wantMAC:  "0102030405060708",
			wantName: "lettin-attic",
			wantAddr: "[fe80::1]:7000",
		},
		{
			name: "missing mac",
			entry: &zeroconf.ServiceEntry{
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.1")},
				Text:     []string{"name=Hall"},
			},
			wantNil: true,
		},
		{
			name: "missing address",
			entry: &zeroconf.ServiceEntry{
				Text: []string{"mac=0102030405060708"},
			},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseServiceEntry(tt.entry)
			if tt.wantNil {
				if got != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("parseServiceEntry() = nil, want gateway")
			}
			if got.MAC != tt.wantMAC {
				t.Errorf("MAC = %v, want %v", got.MAC, tt.wantMAC)
			}
			if got.Name != tt.wantName {
				t.Errorf("Name = %v, want %v", got.Name, tt.wantName)
			}
			if got.Addr != tt.wantAddr {
				t.Errorf("Addr = %v, want %v", got.Addr, tt.wantAddr)
			}
		})
	}
}

func TestNewBrowser(t *testing.T) {
	b := NewBrowser()
	if b.Timeout != DefaultBrowseTimeout {
		t.Errorf("Timeout = %v, want %v", b.Timeout, DefaultBrowseTimeout)
	}
}
