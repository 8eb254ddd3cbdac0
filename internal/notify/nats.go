package notify

import (
	"context"
	"fmt"

	"github.com/civora/approvals/internal/events"
)

// SubjectPrefix is the NATS subject prefix for outbound notifications.
// The delivery service (mail, in-portal inbox) subscribes to
// "approvals.notify.>" and fans out per recipient.
const SubjectPrefix = "approvals.notify."

// Bus publishes notifications onto the event bus.
type Bus struct {
	publisher events.Publisher
}

// NewBus wraps an event publisher as a notification sink.
func NewBus(p events.Publisher) *Bus {
	return &Bus{publisher: p}
}

func (b *Bus) Notify(ctx context.Context, n Notification) error {
	if n.RecipientID == "" {
		return fmt.Errorf("notification has no recipient")
	}
	return b.publisher.Publish(ctx, SubjectPrefix+n.RecipientID, n)
}

// Close is a no-op; the underlying publisher is owned by the caller.
func (b *Bus) Close() error { return nil }
