// Package integration forwards discovery results to external systems.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lettin/lettin/internal/discovery"
	"github.com/lettin/lettin/internal/logging"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubject is the NATS subject results are published on
const DefaultSubject = "lettin.gateways"

// Publisher is the subset of *nats.Conn the forwarder needs
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Event is the message published for each discovery result
type Event struct {
	ID          string               `json:"id"`
	Count       int                  `json:"count"`
	Gateways    []*discovery.Gateway `json:"gateways"`
	PublishedAt time.Time            `json:"published_at"`
}

// Connect opens a NATS connection that keeps reconnecting in the background
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("lettin"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logging.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	logging.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))
	return nc, nil
}

// Forwarder publishes every discovery result as an Event
type Forwarder struct {
	pub     Publisher
	subject string
	now     func() time.Time
}

// NewForwarder creates a forwarder; an empty subject means DefaultSubject
func NewForwarder(pub Publisher, subject string) *Forwarder {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Forwarder{pub: pub, subject: subject, now: time.Now}
}

// Forward publishes one result
func (f *Forwarder) Forward(result []*discovery.Gateway) error {
	if result == nil {
		result = []*discovery.Gateway{}
	}
	event := Event{
		ID:          uuid.NewString(),
		Count:       len(result),
		Gateways:    result,
		PublishedAt: f.now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal result event: %w", err)
	}
	if err := f.pub.Publish(f.subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", f.subject, err)
	}

	logging.Debug("Result forwarded",
		zap.String("subject", f.subject),
		zap.String("event", event.ID),
		zap.Int("gateways", event.Count))
	return nil
}

// Run forwards results until ctx ends or the stream closes.
// Publish failures are logged and do not stop forwarding.
func (f *Forwarder) Run(ctx context.Context, results *discovery.Results) {
	sub := results.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-sub.C:
			if !ok {
				return
			}
			if err := f.Forward(result); err != nil {
				logging.Warn("Failed to forward result", zap.Error(err))
			}
		}
	}
}
