// Package discoverytest provides an in-memory discovery.Transport for tests.
package discoverytest

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/lettin/lettin/internal/discovery"
	"github.com/lettin/lettin/internal/protocol"
)

// GatewayAddr is the default source address of injected responses
var GatewayAddr = &net.UDPAddr{IP: net.IPv4(192, 168, 1, 20), Port: 7000}

// Transport records sends and delivers injected datagrams
type Transport struct {
	// SendErr, if set, decides the outcome of each send
	SendErr func(frame []byte) error

	// OnSend, if set, runs after every successful send
	OnSend func(frame []byte)

	mu   sync.Mutex
	sent [][]byte
	dsts []*net.UDPAddr

	in        chan discovery.Datagram
	closeOnce sync.Once
}

// NewTransport creates an open in-memory transport
func NewTransport() *Transport {
	return &Transport{in: make(chan discovery.Datagram, 64)}
}

func (t *Transport) Send(ctx context.Context, data []byte, dst *net.UDPAddr) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.SendErr != nil {
		if err := t.SendErr(data); err != nil {
			return err
		}
	}

	t.mu.Lock()
	t.sent = append(t.sent, append([]byte(nil), data...))
	t.dsts = append(t.dsts, dst)
	t.mu.Unlock()

	if t.OnSend != nil {
		t.OnSend(data)
	}
	return nil
}

func (t *Transport) Datagrams() <-chan discovery.Datagram {
	return t.in
}

func (t *Transport) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4zero, Port: discovery.DefaultLocalPort}
}

func (t *Transport) Close() error {
	t.closeOnce.Do(func() { close(t.in) })
	return nil
}

// Sent returns copies of every successfully sent frame
func (t *Transport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.sent...)
}

// Destinations returns the destination of every successful send
func (t *Transport) Destinations() []*net.UDPAddr {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*net.UDPAddr(nil), t.dsts...)
}

// Inject delivers payload as if it arrived from src (GatewayAddr when nil)
func (t *Transport) Inject(payload []byte, src net.Addr) {
	if src == nil {
		src = GatewayAddr
	}
	t.in <- discovery.Datagram{Payload: payload, Source: src, ReceivedAt: time.Now()}
}

// Response builds a well-formed gateway reply for tid
func Response(identity [protocol.AddressSize]byte, name string, tid uint16) []byte {
	body, err := protocol.BuildGatewayBody(name, identity, tid)
	if err != nil {
		panic(err)
	}
	return protocol.EncodeResponse(identity, protocol.CommandDiscover, tid, 0, body)
}

// RequestTID extracts the transaction id from a sent request frame
func RequestTID(frame []byte) uint16 {
	f, err := protocol.DecodeFrame(frame)
	if err != nil {
		return 0
	}
	return f.TransactionID
}
