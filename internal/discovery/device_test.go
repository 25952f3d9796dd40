package discovery

import (
	"testing"
	"time"
)

func TestGateway_String(t *testing.T) {
	tests := []struct {
		name     string
		gateway  *Gateway
		expected string
	}{
		{
			name:     "named with address",
			gateway:  &Gateway{Name: "Hall", MAC: "0102030405060708", Addr: "192.168.1.20:7000"},
			expected: "Gateway Hall [0102030405060708] at 192.168.1.20:7000",
		},
		{
			name:     "unnamed without address",
			gateway:  &Gateway{MAC: "0102030405060708"},
			expected: "Gateway (unnamed) [0102030405060708]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.gateway.String(); got != tt.expected {
				t.Errorf("Gateway.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGateway_IP(t *testing.T) {
	tests := []struct {
		addr     string
		expected string
	}{
		{"192.168.1.20:7000", "192.168.1.20"},
		{"10.0.0.5", "10.0.0.5"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			g := &Gateway{Addr: tt.addr}
			if got := g.IP(); got != tt.expected {
				t.Errorf("Gateway.IP() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDedup(t *testing.T) {
	now := time.Now()
	a := &Gateway{Name: "Hall", MAC: "0102030405060708", DiscoveredAt: now}
	aAgain := &Gateway{Name: "Hall", MAC: "0102030405060708", DiscoveredAt: now.Add(time.Millisecond)}
	aRenamed := &Gateway{Name: "Kitchen", MAC: "0102030405060708"}
	b := &Gateway{Name: "Hall", MAC: "1112131415161718"}

	got := Dedup([]*Gateway{a, aAgain, aRenamed, b})

	want := []*Gateway{a, aRenamed, b}
	if len(got) != len(want) {
		t.Fatalf("Dedup() returned %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Dedup()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDedup_Empty(t *testing.T) {
	if got := Dedup(nil); len(got) != 0 {
		t.Errorf("Dedup(nil) = %v, want empty", got)
	}
}
