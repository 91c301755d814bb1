// ABOUTME: In-memory fan-out broadcaster for recorded messages
// ABOUTME: Publishes stored messages to per-conversation and firehose subscribers

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/relay-gateway/internal/store"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// KeyAll subscribes to every conversation.
	KeyAll = ""
)

// Broadcaster provides in-memory pub/sub for recorded messages. Subscribers
// register for one phone number, or for KeyAll to receive everything. This
// powers the live stream without polling the store.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *store.Message // phoneNumber -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *store.Message),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for messages on the given phone number,
// or every conversation when phoneNumber is KeyAll. Returns a channel that
// receives messages and a subscription ID for later unsubscription. The
// subscription is automatically cleaned up when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, phoneNumber string) (<-chan *store.Message, string) {
	subID := uuid.New().String()
	ch := make(chan *store.Message, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[phoneNumber]; !ok {
		b.subscribers[phoneNumber] = make(map[string]chan *store.Message)
	}
	b.subscribers[phoneNumber][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"phone", phoneNumber,
		"sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(phoneNumber, subID)
	}()

	return ch, subID
}

// Publish sends a message to the subscribers of its phone number and to all
// firehose subscribers. Non-blocking: messages are dropped for subscribers
// whose channels are full.
func (b *Broadcaster) Publish(msg *store.Message) {
	b.mu.RLock()
	var targets []chan *store.Message
	for _, ch := range b.subscribers[msg.PhoneNumber] {
		targets = append(targets, ch)
	}
	if msg.PhoneNumber != KeyAll {
		for _, ch := range b.subscribers[KeyAll] {
			targets = append(targets, ch)
		}
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- msg:
			// Sent
		default:
			// Subscriber channel full, drop the message for this subscriber
			b.logger.Debug("dropped message for slow subscriber",
				"phone", msg.PhoneNumber,
				"message_id", msg.ID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(phoneNumber, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[phoneNumber]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, phoneNumber)
	}

	b.logger.Debug("subscriber removed",
		"phone", phoneNumber,
		"sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for phone, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, phone)
	}

	b.logger.Debug("broadcaster closed")
}
