package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/lettin/lettin/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultLocalPort is the UDP port the transport binds; every send uses it as source port
	DefaultLocalPort = 6000

	// maxDatagramSize is the largest UDP payload over IPv4
	maxDatagramSize = 65507

	// datagramBuffer is the depth of the inbound channel
	datagramBuffer = 64
)

// Datagram is one inbound UDP payload with its source address
type Datagram struct {
	Payload    []byte
	Source     net.Addr
	ReceivedAt time.Time
}

// Transport moves raw datagrams between the session and the network.
// Send failures are returned to the caller and never retried.
type Transport interface {
	Send(ctx context.Context, data []byte, dst *net.UDPAddr) error
	// Datagrams is closed once the transport is closed
	Datagrams() <-chan Datagram
	LocalAddr() net.Addr
	Close() error
}

// UDPTransport is a Transport backed by one UDP socket bound on all interfaces
type UDPTransport struct {
	conn      *net.UDPConn
	datagrams chan Datagram

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// ListenUDP binds 0.0.0.0:port and starts the read loop.
// Port 0 picks an ephemeral port.
func ListenUDP(port int) (*UDPTransport, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to bind UDP port %d: %w", port, err)
	}
	return NewUDPTransport(conn), nil
}

// NewUDPTransport wraps an already bound socket and starts the read loop
func NewUDPTransport(conn *net.UDPConn) *UDPTransport {
	t := &UDPTransport{
		conn:      conn,
		datagrams: make(chan Datagram, datagramBuffer),
		done:      make(chan struct{}),
	}

	t.wg.Add(1)
	go t.readLoop()

	logging.Debug("UDP transport listening", zap.String("addr", conn.LocalAddr().String()))
	return t
}

// Send writes one datagram to dst. A context deadline becomes the write deadline.
func (t *UDPTransport) Send(ctx context.Context, data []byte, dst *net.UDPAddr) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if _, err := t.conn.WriteToUDP(data, dst); err != nil {
		return fmt.Errorf("send to %s: %w", dst, err)
	}

	logging.LogDatagram("sent", dst.String(), data)
	return nil
}

// Datagrams returns the inbound stream
func (t *UDPTransport) Datagrams() <-chan Datagram {
	return t.datagrams
}

// LocalAddr returns the bound socket address
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Close stops the read loop, releases the socket and ends the inbound stream
func (t *UDPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
		t.wg.Wait()
	})
	return err
}

func (t *UDPTransport) readLoop() {
	defer t.wg.Done()
	defer close(t.datagrams)

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Warn("UDP read error", zap.Error(err))
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		logging.LogDatagram("received", addr.String(), payload)

		select {
		case t.datagrams <- Datagram{Payload: payload, Source: addr, ReceivedAt: time.Now()}:
		case <-t.done:
			return
		}
	}
}
