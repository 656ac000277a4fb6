package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/clawcontrol/clawcontrol/internal/actionable"
)

// NATSRelay publishes actionable events to a NATS subject derived from
// the event's relayKey, fulfilling actionable.Relay. Grounded on the
// domain-stack's nats.go entry (contributed by vinayprograms-agent):
// ClawControl's own dispatch/ingestion paths stay poll/lease-driven; NATS
// is used only for this one optional fan-out hop.
type NATSRelay struct {
	conn *nats.Conn
	subjectPrefix string
}

// NewNATSRelay connects to url and returns a NATSRelay. It always dials
// url; NewRelay is the constructor that falls back to the in-process relay
// when url is empty, so callers should prefer it.
func NewNATSRelay(url, subjectPrefix string) (*NATSRelay, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("bus: connect nats: %w", err)
	}
	return &NATSRelay{conn: conn, subjectPrefix: subjectPrefix}, nil
}

// NewRelay returns a NATSRelay when url is non-empty, otherwise the
// in-process fallback — falls back to the in-process
// bus.EventPublisher when NATS isn't configured.
func NewRelay(url, subjectPrefix string) (actionable.Relay, error) {
	if url == "" {
		return &inProcessRelay{pub: NewInProcess(), subjectPrefix: subjectPrefix}, nil
	}
	return NewNATSRelay(url, subjectPrefix)
}

func (r *NATSRelay) subject(e actionable.Event) string {
	key := e.RelayKey
	if key == "" {
		key = "unscoped"
	}
	return r.subjectPrefix + "." + key
}

// Publish implements actionable.Relay.
func (r *NATSRelay) Publish(ctx context.Context, e actionable.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("bus: marshal actionable event: %w", err)
	}
	if err := r.conn.Publish(r.subject(e), payload); err != nil {
		return fmt.Errorf("bus: publish to nats: %w", err)
	}
	return nil
}

func (r *NATSRelay) Close() {
	r.conn.Close()
}

// inProcessRelay adapts the in-process EventPublisher to actionable.Relay
// for single-instance deployments with no NATS address configured.
type inProcessRelay struct {
	pub *InProcess
	subjectPrefix string
}

func (r *inProcessRelay) Publish(ctx context.Context, e actionable.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("bus: marshal actionable event: %w", err)
	}
	key := e.RelayKey
	if key == "" {
		key = "unscoped"
	}
	return r.pub.Publish(ctx, Event{Subject: r.subjectPrefix + "." + key, Payload: payload})
}
