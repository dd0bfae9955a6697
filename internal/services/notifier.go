package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"blocktix/models"

	pubnub "github.com/pubnub/go/v7"
)

// MarketplaceChannel carries notifications every client listens to.
const MarketplaceChannel = "marketplace"

// UserChannel is the private channel of identity.
func UserChannel(identity string) string {
	return fmt.Sprintf("user-%s", models.NormalizeIdentity(identity))
}

const defaultNotifyTimeout = 5 * time.Second

// PubNubNotifier pushes notifications over PubNub. Delivery is best effort:
// publishes run in the background with a bounded timeout, and failures are
// logged and never fail the operation that triggered them.
type PubNubNotifier struct {
	publish func(ctx context.Context, channel string, message any) error
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return &PubNubNotifier{
		publish: func(ctx context.Context, channel string, message any) error {
			_, _, err := pn.PublishWithContext(ctx).
				Channel(channel).
				Message(message).
				Execute()
			return err
		},
		timeout: defaultNotifyTimeout,
	}
}

// NewPubNub builds a client from keys. It returns nil when no publish key is
// configured.
func NewPubNub(publishKey, subscribeKey, secretKey, userID string) *pubnub.PubNub {
	if publishKey == "" {
		return nil
	}
	cfg := pubnub.NewConfigWithUserId(pubnub.UserId(userID))
	cfg.PublishKey = publishKey
	cfg.SubscribeKey = subscribeKey
	cfg.SecretKey = secretKey
	return pubnub.NewPubNub(cfg)
}

// Notify sends msg to recipient's channel, or to MarketplaceChannel when
// recipient is empty. It returns without waiting for PubNub. The publish
// outlives a cancelled ctx but not the notifier's timeout.
func (n *PubNubNotifier) Notify(ctx context.Context, recipient string, msg models.Notification) {
	channel := MarketplaceChannel
	if recipient != "" {
		channel = UserChannel(recipient)
	}

	timeout := n.timeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer cancel()

		if err := n.publish(ctx, channel, msg); err != nil {
			slog.Warn("Failed to publish notification", "channel", channel, "type", msg.Type, "error", err)
		}
	}()
}

// Wait blocks until every pending publish has finished or timed out.
func (n *PubNubNotifier) Wait() {
	n.wg.Wait()
}

// LogNotifier writes notifications to the log. Used when PubNub is not configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, recipient string, msg models.Notification) {
	slog.Debug("Notification", "recipient", recipient, "type", msg.Type, "event_id", msg.EventID, "tickets", msg.TicketIDs)
}
