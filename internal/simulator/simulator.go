// Package simulator answers lettin discovery requests like a gateway would.
//
// It binds the gateway port, reassembles request fragments, checks the
// command and token and replies to the request's source with the gateway
// identity and name. While running it can also advertise itself over mDNS.
package simulator

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/lettin/lettin/internal/discovery"
	"github.com/lettin/lettin/internal/logging"
	"github.com/lettin/lettin/internal/protocol"
	"go.uber.org/zap"
)

// ErrTokenMismatch is returned for requests carrying a different token
var ErrTokenMismatch = errors.New("token mismatch")

// StatusOK is the status word of a successful reply
const StatusOK uint16 = 0

// Config describes the simulated gateway
type Config struct {
	// Port to listen on (discovery.DefaultRemotePort when zero)
	Port int

	// Identity is the 8-byte gateway identity
	Identity [protocol.AddressSize]byte

	// Names are reported one reply each; several names reproduce a gateway
	// answering the same request more than once.
	Names []string

	// Token is the shared secret requests must carry
	Token string

	// Advertise registers the simulator over mDNS
	Advertise bool
}

// Simulator is a fake gateway on a UDP socket
type Simulator struct {
	cfg         Config
	reassembler *protocol.Reassembler

	conn *net.UDPConn
	mdns *zeroconf.Server

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// New creates a simulator; call Start to bind it
func New(cfg Config) *Simulator {
	if cfg.Port == 0 {
		cfg.Port = discovery.DefaultRemotePort
	}
	if cfg.Token == "" {
		cfg.Token = protocol.DefaultToken
	}
	if len(cfg.Names) == 0 {
		cfg.Names = []string{"lettin-simulator"}
	}
	return &Simulator{
		cfg:         cfg,
		reassembler: protocol.NewReassembler(),
		done:        make(chan struct{}),
	}
}

// Start binds the port, starts answering and optionally advertises over mDNS.
// Port -1 picks an ephemeral port.
func (s *Simulator) Start() error {
	port := s.cfg.Port
	if port < 0 {
		port = 0
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return fmt.Errorf("failed to bind UDP port %d: %w", port, err)
	}
	s.conn = conn

	mac := s.MAC()
	if s.cfg.Advertise {
		bound := conn.LocalAddr().(*net.UDPAddr).Port
		server, err := discovery.Advertise("lettin-"+mac, bound, mac, s.cfg.Names[0])
		if err != nil {
			_ = conn.Close()
			return err
		}
		s.mdns = server
	}

	s.wg.Add(1)
	go s.serve()

	logging.Info("Simulator listening",
		zap.String("addr", conn.LocalAddr().String()),
		zap.String("mac", mac),
		zap.Strings("names", s.cfg.Names),
		zap.Bool("mdns", s.mdns != nil),
	)
	return nil
}

// Addr returns the bound address
func (s *Simulator) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// MAC returns the identity as lowercase hex
func (s *Simulator) MAC() string {
	return (&protocol.Response{Identity: s.cfg.Identity}).MAC()
}

// Close stops answering and withdraws the mDNS record
func (s *Simulator) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.mdns != nil {
			s.mdns.Shutdown()
		}
		if s.conn != nil {
			err = s.conn.Close()
		}
		s.wg.Wait()
	})
	return err
}

func (s *Simulator) serve() {
	defer s.wg.Done()

	buf := make([]byte, 65507)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Warn("Simulator read error", zap.Error(err))
			continue
		}

		logging.LogDatagram("received", addr.String(), buf[:n])

		replies, err := s.Handle(buf[:n])
		if err != nil {
			logging.Info("Ignoring request", zap.String("from", addr.String()), zap.Error(err))
			continue
		}
		for _, reply := range replies {
			if _, err := s.conn.WriteToUDP(reply, addr); err != nil {
				logging.Warn("Failed to send reply", zap.String("to", addr.String()), zap.Error(err))
				continue
			}
			logging.LogDatagram("sent", addr.String(), reply)
		}
	}
}

// Handle processes one request frame and returns the replies to send.
// No replies and no error means the request is still incomplete.
func (s *Simulator) Handle(data []byte) ([][]byte, error) {
	f, err := protocol.DecodeFrame(data)
	if err != nil {
		return nil, err
	}
	if !f.IsBroadcast() && f.Address != s.cfg.Identity {
		return nil, fmt.Errorf("frame addressed to %x", f.Address)
	}

	payload, complete, err := s.reassembler.Add(f)
	if err != nil {
		return nil, err
	}
	if !complete {
		logging.Debug("Fragment stored",
			zap.Uint16("tid", f.TransactionID),
			zap.Uint16("index", f.Index),
			zap.Uint16("count", f.Count))
		return nil, nil
	}

	req, err := protocol.ParseDiscoverRequest(payload)
	if err != nil {
		return nil, err
	}
	if req.Token != s.cfg.Token {
		return nil, ErrTokenMismatch
	}

	replies := make([][]byte, 0, len(s.cfg.Names))
	for _, name := range s.cfg.Names {
		body, err := protocol.BuildGatewayBody(name, s.cfg.Identity, f.TransactionID)
		if err != nil {
			return nil, err
		}
		replies = append(replies, protocol.EncodeResponse(s.cfg.Identity, f.Tag, f.TransactionID, StatusOK, body))
	}

	logging.Debug("Answering discover request",
		zap.Int("tid", req.Tid),
		zap.Int("replies", len(replies)))
	return replies, nil
}
