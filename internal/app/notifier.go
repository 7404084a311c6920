/**
 * @description
 * Fire-and-forget notifications emitted after a KYC or profile transition has
 * committed. The outbox notifier persists each event to event_outbox; the
 * OutboxDispatcher later publishes it to RabbitMQ.
 *
 * @notes
 * - Notify never returns an error. A failed enqueue is logged and counted, and the
 *   transition that triggered it still succeeds.
 */

package app

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/transfa/kyc-service/internal/store"
)

const defaultNotifyTimeout = 5 * time.Second

// Notification is a single event to deliver to downstream consumers.
type Notification struct {
	RoutingKey string
	Payload    interface{}
}

// Notifier delivers notifications. Implementations must not block the caller on
// downstream failures.
type Notifier interface {
	Notify(ctx context.Context, notification Notification)
}

// OutboxNotifier writes notifications to the transactional outbox.
type OutboxNotifier struct {
	repo     store.Repository
	exchange string
	timeout  time.Duration
}

func NewOutboxNotifier(repo store.Repository, exchange string) *OutboxNotifier {
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = "kyc_events"
	}
	return &OutboxNotifier{repo: repo, exchange: exchange, timeout: defaultNotifyTimeout}
}

func (n *OutboxNotifier) Notify(ctx context.Context, notification Notification) {
	// The request context may already be cancelled once the response is written.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	if err := n.repo.EnqueueEvent(notifyCtx, n.exchange, notification.RoutingKey, notification.Payload); err != nil {
		notificationFailuresTotal.WithLabelValues(notification.RoutingKey).Inc()
		log.Printf("level=warn component=notifier msg=\"failed to enqueue notification\" routing_key=%s err=%v", notification.RoutingKey, err)
	}
}
