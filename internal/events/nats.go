package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Bus is a NATS connection carrying approval events. The daemon publishes
// every committed state change on it; the watch command tails it. One Bus
// can serve either role, or both.
type Bus struct {
	conn *nats.Conn
}

var _ Publisher = (*Bus)(nil)
var _ Subscriber = (*Bus)(nil)

// DialNATS connects to the bus. Reconnection is unbounded with a one second
// wait; extra options (disconnect handlers and the like) are appended.
func DialNATS(url string, opts ...nats.Option) (*Bus, error) {
	base := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &Bus{conn: nc}, nil
}

// Publish JSON-encodes the event onto its topic.
func (b *Bus) Publish(_ context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return b.conn.Publish(topic, data)
}

// Subscribe tails every topic matching the pattern: "*" matches one segment
// and ">" the rest, so "approvals.request.*" or "approvals.>". Messages
// arrive on the returned channel until cancel is called, which also closes
// it. A slow consumer loses messages rather than stalling the connection.
func (b *Bus) Subscribe(pattern string) (<-chan Message, func(), error) {
	raw := make(chan *nats.Msg, 64)
	sub, err := b.conn.ChanSubscribe(pattern, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", pattern, err)
	}
	// Flush so the subscription is registered on the server before returning;
	// events published over other connections are routed from here on.
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	out := make(chan Message, 64)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				select {
				case out <- Message{Topic: msg.Subject, Data: msg.Data}:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			close(done)
		})
	}
	return out, cancel, nil
}

func (b *Bus) Close() error {
	b.conn.Close()
	return nil
}
