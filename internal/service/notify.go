package service

import (
	"context"
)

// Routing keys on the dispatch exchange.
const (
	RoutingKeyOfferPrefix    = "offer."
	RoutingKeyBlockThreshold = "provider.block_threshold"
)

// Publisher sends a JSON event under a routing key.
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, v interface{}) error
}

// QueueNotifier publishes offers and suspension signals to the message bus.
// Provider apps subscribe to offer.<provider_id>.
type QueueNotifier struct {
	pub Publisher
}

// NewQueueNotifier wraps a publisher.
func NewQueueNotifier(pub Publisher) *QueueNotifier {
	return &QueueNotifier{pub: pub}
}

func (n *QueueNotifier) BroadcastOffer(ctx context.Context, offer Offer) error {
	return n.pub.PublishJSON(ctx, RoutingKeyOfferPrefix+offer.ProviderID, offer)
}

func (n *QueueNotifier) SignalBlockThreshold(ctx context.Context, signal SuspensionSignal) error {
	return n.pub.PublishJSON(ctx, RoutingKeyBlockThreshold, signal)
}
