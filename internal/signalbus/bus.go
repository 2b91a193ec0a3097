package signalbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/blackroad-os/edge-router/pkg/models"
)

// subscriberQueueDepth bounds each subscriber's fan-out channel. A
// subscriber that cannot keep up is disconnected after one full channel,
// per spec.md §5's backpressure rule.
const subscriberQueueDepth = 64

// Handler is invoked synchronously for every published signal. The audit
// store registers a Handler to append signals durably before Bus.Publish
// returns (spec.md §4.5: "the audit store (synchronous append)").
type Handler func(models.Signal)

// Bus is the in-process publish/subscribe hub described in spec.md §4.5.
// Synchronous Handlers (the audit store) run inline on Publish; room
// subscribers (WebSocket fan-out) receive signals over bounded channels
// and are disconnected if they fall behind.
type Bus struct {
	mu          sync.RWMutex
	handlers    []Handler
	rooms       map[string]map[chan models.Signal]struct{}
	natsConn    *nats.Conn
}

// NewBus constructs a Bus. If natsURL is non-empty, every published signal
// is also sent on the `signals.<type>` NATS subject (spec.md §3.1 DOMAIN
// STACK WIRING); a connection failure is logged and otherwise ignored —
// the in-process bus and audit store remain the durable path.
func NewBus(natsURL string) *Bus {
	b := &Bus{
		rooms: make(map[string]map[chan models.Signal]struct{}),
	}
	if natsURL != "" {
		conn, err := nats.Connect(natsURL)
		if err != nil {
			log.Warn().Err(err).Str("url", natsURL).Msg("signalbus: nats connect failed, continuing without external fan-out")
		} else {
			b.natsConn = conn
		}
	}
	return b
}

// Subscribe registers a synchronous Handler invoked on every Publish, in
// registration order, before Publish returns.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish runs every synchronous handler, fans out to room subscribers,
// and (if configured) publishes to NATS. Per spec.md §8 invariant 5, the
// synchronous handlers (notably the audit append) complete before Publish
// returns, so the caller's HTTP response is guaranteed to follow the
// signal's durable append.
func (b *Bus) Publish(ctx context.Context, room string, s models.Signal) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(s)
	}

	b.fanOut(room, s)

	if b.natsConn != nil {
		subject := "signals." + string(s.Type)
		if data, err := json.Marshal(s); err == nil {
			if err := b.natsConn.Publish(subject, data); err != nil {
				log.Debug().Err(err).Str("subject", subject).Msg("signalbus: nats publish failed")
			}
		}
	}
}

// fanOut delivers s to every subscriber channel in room. A subscriber
// whose channel is full is dropped and its channel closed, per spec.md
// §5's "slow subscribers are disconnected after one full channel".
func (b *Bus) fanOut(room string, s models.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.rooms[room]
	if !ok {
		return
	}
	for ch := range subs {
		select {
		case ch <- s:
		default:
			delete(subs, ch)
			close(ch)
		}
	}
}

// JoinRoom registers a new bounded subscriber channel for room (one of the
// whitelisted rooms enforced by the gateway's WebSocket handler) and
// returns it along with a leave function.
func (b *Bus) JoinRoom(room string) (<-chan models.Signal, func()) {
	ch := make(chan models.Signal, subscriberQueueDepth)

	b.mu.Lock()
	subs, ok := b.rooms[room]
	if !ok {
		subs = make(map[chan models.Signal]struct{})
		b.rooms[room] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	leave := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.rooms[room]; ok {
			if _, present := subs[ch]; present {
				delete(subs, ch)
				close(ch)
			}
		}
	}
	return ch, leave
}

// Close releases the NATS connection, if any.
func (b *Bus) Close() {
	if b.natsConn != nil {
		b.natsConn.Close()
	}
}
