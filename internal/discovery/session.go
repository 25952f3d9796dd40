package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lettin/lettin/internal/logging"
	"github.com/lettin/lettin/internal/metrics"
	"github.com/lettin/lettin/internal/protocol"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBroadcastAddr is the limited broadcast address requests go to
	DefaultBroadcastAddr = "255.255.255.255"

	// DefaultRemotePort is the port gateways listen on
	DefaultRemotePort = 7000

	// DefaultWindow is how long a cycle collects responses
	DefaultWindow = 2 * time.Second
)

// Cycle results reported to metrics
const (
	resultOK          = "ok"
	resultEmpty       = "empty"
	resultBuildFailed = "build_failed"
	resultSendFailed  = "send_failed"
)

// ErrSessionStarted is returned by Start on a session that is already running
var ErrSessionStarted = errors.New("session already started")

// Config controls a discovery session
type Config struct {
	// BroadcastAddr is the IPv4 destination of discovery requests
	BroadcastAddr string

	// RemotePort is the destination port of discovery requests
	RemotePort int

	// Window is how long responses are collected after the last send
	Window time.Duration

	// Token is the shared secret embedded in every request
	Token string

	// MatchTransaction drops responses whose body Tid differs from the open cycle
	MatchTransaction bool
}

// DefaultConfig returns the stock gateway settings
func DefaultConfig() Config {
	return Config{
		BroadcastAddr: DefaultBroadcastAddr,
		RemotePort:    DefaultRemotePort,
		Window:        DefaultWindow,
		Token:         protocol.DefaultToken,
	}
}

// State is the session's observable discovery state
type State int32

const (
	StateIdle State = iota
	StateDiscovering
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	default:
		return "unknown"
	}
}

// Option customizes a Session
type Option func(*Session)

// WithMetrics records discovery traffic on m
func WithMetrics(m *metrics.Discovery) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithTransactionIDs replaces the random transaction id source
func WithTransactionIDs(next func() uint16) Option {
	return func(s *Session) {
		s.nextTID = next
	}
}

// Session runs discovery cycles over a Transport and publishes their results.
// One listener goroutine drains the transport for the session's lifetime.
type Session struct {
	transport Transport
	cfg       Config
	metrics   *metrics.Discovery
	nextTID   func() uint16
	results   *Results

	state atomic.Int32

	mu         sync.Mutex
	collected  []*Gateway
	windowOpen bool
	tid        uint16
	generation uint64

	started atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSession creates an idle session. Zero Config fields take their defaults.
func NewSession(transport Transport, cfg Config, opts ...Option) *Session {
	def := DefaultConfig()
	if cfg.BroadcastAddr == "" {
		cfg.BroadcastAddr = def.BroadcastAddr
	}
	if cfg.RemotePort == 0 {
		cfg.RemotePort = def.RemotePort
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Token == "" {
		cfg.Token = def.Token
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		transport: transport,
		cfg:       cfg,
		nextTID:   protocol.NewTransactionID,
		results:   NewResults(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective session configuration
func (s *Session) Config() Config {
	return s.cfg
}

// Results returns the session's result stream
func (s *Session) Results() *Results {
	return s.results
}

// State reports whether a cycle is in progress
func (s *Session) State() State {
	return State(s.state.Load())
}

// Start launches the listener goroutine
func (s *Session) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrSessionStarted
	}

	s.wg.Add(1)
	go s.listen()

	logging.Info("Discovery session started",
		zap.Stringer("local", s.transport.LocalAddr()),
		zap.String("broadcast", s.cfg.BroadcastAddr),
		zap.Int("remote_port", s.cfg.RemotePort))
	return nil
}

// Stop ends the listener, cuts any open collection window short and closes
// the result stream. The transport is left to its owner.
func (s *Session) Stop() {
	s.cancel()
	s.wg.Wait()
	s.results.Close()
	logging.Info("Discovery session stopped")
}

// StartDiscovery runs one cycle in the background and returns immediately.
// The result arrives on the result stream.
func (s *Session) StartDiscovery() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Discover(s.ctx)
	}()
}

// Discover runs one cycle and returns the published result.
// ctx bounds the sends only; the collection window ends early when the session stops.
func (s *Session) Discover(ctx context.Context) []*Gateway {
	started := time.Now()
	s.state.Store(int32(StateDiscovering))
	defer s.state.Store(int32(StateIdle))

	tid := s.nextTID()
	gen := s.openWindow(tid)

	log := logging.GetLogger().With(
		zap.String("cycle", uuid.NewString()),
		zap.Uint16("tid", tid))

	payload, err := protocol.BuildDiscoverRequest(tid, s.cfg.Token)
	if err != nil {
		log.Error("Failed to build discover request", zap.Error(err))
		return s.finish(gen, resultBuildFailed, started)
	}

	dst, err := s.destination()
	if err != nil {
		log.Error("Invalid broadcast destination", zap.Error(err))
		return s.finish(gen, resultBuildFailed, started)
	}

	frames := protocol.EncodeFragments(payload, protocol.CommandDiscover, tid)
	log.Debug("Sending discover request",
		zap.Stringer("dst", dst),
		zap.Int("fragments", len(frames)),
		zap.ByteString("payload", payload))

	if sent := s.sendAll(ctx, log, frames, dst); sent == 0 {
		log.Warn("No fragment could be sent")
		return s.finish(gen, resultSendFailed, started)
	}

	timer := time.NewTimer(s.cfg.Window)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.ctx.Done():
		log.Debug("Collection window cut short by stop")
	}

	result := s.finish(gen, resultOK, started)
	log.Info("Discovery cycle complete", zap.Int("gateways", len(result)))
	return result
}

// sendAll sends every fragment concurrently and returns how many succeeded.
// A failed fragment never aborts its siblings.
func (s *Session) sendAll(ctx context.Context, log *zap.Logger, frames [][]byte, dst *net.UDPAddr) int {
	var (
		g    errgroup.Group
		sent atomic.Int32
	)
	for i, frame := range frames {
		g.Go(func() error {
			err := s.transport.Send(ctx, frame, dst)
			s.metrics.FragmentSent(err)
			if err != nil {
				log.Warn("Failed to send fragment", zap.Int("index", i), zap.Error(err))
				return fmt.Errorf("fragment %d: %w", i, err)
			}
			sent.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Debug("Some fragments failed", zap.Error(err))
	}
	return int(sent.Load())
}

func (s *Session) destination() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp4", net.JoinHostPort(s.cfg.BroadcastAddr, strconv.Itoa(s.cfg.RemotePort)))
}

// openWindow clears the accumulation and starts collecting for tid
func (s *Session) openWindow(tid uint16) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.collected = nil
	s.windowOpen = true
	s.tid = tid
	return s.generation
}

// finish closes the window opened as gen (unless a newer cycle owns it),
// publishes the deduplicated accumulation and records the cycle.
func (s *Session) finish(gen uint64, outcome string, started time.Time) []*Gateway {
	s.mu.Lock()
	var result []*Gateway
	if outcome == resultOK {
		result = Dedup(s.collected)
	} else {
		result = []*Gateway{}
	}
	if s.generation == gen {
		s.windowOpen = false
		s.collected = nil
	}
	s.mu.Unlock()

	if outcome == resultOK && len(result) == 0 {
		outcome = resultEmpty
	}
	s.metrics.CycleDone(outcome, len(result), time.Since(started).Seconds())
	s.results.Publish(result)
	return result
}

func (s *Session) listen() {
	defer s.wg.Done()

	in := s.transport.Datagrams()
	for {
		select {
		case <-s.ctx.Done():
			return
		case d, ok := <-in:
			if !ok {
				logging.Debug("Transport stream ended")
				return
			}
			s.handleDatagram(d)
		}
	}
}

// handleDatagram turns one inbound datagram into a gateway record
func (s *Session) handleDatagram(d Datagram) {
	s.metrics.Received()

	source := ""
	if d.Source != nil {
		source = d.Source.String()
	}

	resp, err := protocol.DecodeResponse(d.Payload)
	if err != nil {
		s.metrics.Dropped("malformed")
		logging.Warn("Dropping malformed datagram", zap.String("from", source), zap.Error(err))
		return
	}

	body, err := resp.ParseBody()
	if err != nil {
		logging.Debug("Response body is not valid JSON", zap.String("from", source), zap.Error(err))
	}

	mac := resp.MAC()
	if resp.Identity == ([protocol.AddressSize]byte{}) && body.Mac != "" {
		mac = strings.ToLower(body.Mac)
	}

	receivedAt := d.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	gw := &Gateway{
		Name:         body.Name(),
		MAC:          mac,
		Addr:         source,
		DiscoveredAt: receivedAt,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.windowOpen {
		s.metrics.Dropped("window_closed")
		logging.Debug("Response outside collection window", zap.Stringer("gateway", gw))
		return
	}
	if s.cfg.MatchTransaction && body.Tid != nil && *body.Tid != int(s.tid) {
		s.metrics.Dropped("stale_transaction")
		logging.Debug("Response for another transaction",
			zap.Stringer("gateway", gw), zap.Int("tid", *body.Tid), zap.Uint16("open", s.tid))
		return
	}

	s.collected = append(s.collected, gw)
	logging.Debug("Gateway responded", zap.Stringer("gateway", gw))
}
