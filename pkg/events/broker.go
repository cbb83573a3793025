package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// catchupLimit bounds how many missed events a single catchup query returns.
// Beyond this, the subscriber is told to fall back to a full REST reload
// rather than paginating catchup requests.
const catchupLimit = 200

// listenTimeout bounds how long a LISTEN command may block when a broker
// subscribes to a new channel for its first subscriber.
const listenTimeout = 10 * time.Second

// CatchupEvent is one row returned by a catchup query.
type CatchupEvent struct {
	ID      int64
	Payload []byte
}

// CatchupQuerier looks up events missed since a given id, for SSE reconnects.
type CatchupQuerier interface {
	GetCatchupEvents(ctx context.Context, channel string, sinceID int64, limit int) ([]CatchupEvent, error)
}

// subscriber is one open SSE connection's delivery channel.
type subscriber struct {
	id string
	ch chan []byte
}

// Broker fans out NOTIFY payloads to local SSE subscribers and drives
// dynamic LISTEN/UNLISTEN on the shared NotifyListener as subscriber counts
// on a channel go from zero to nonzero and back.
type Broker struct {
	subscribers map[string]map[string]*subscriber // channel -> subscriber id -> subscriber
	mu          sync.RWMutex

	catchupQuerier CatchupQuerier

	listener   *NotifyListener
	listenerMu sync.RWMutex
}

// NewBroker creates a Broker. catchupQuerier may be nil if catchup is not needed.
func NewBroker(catchupQuerier CatchupQuerier) *Broker {
	return &Broker{
		subscribers:    make(map[string]map[string]*subscriber),
		catchupQuerier: catchupQuerier,
	}
}

// SetListener wires the NotifyListener used for dynamic LISTEN/UNLISTEN.
// Called once during startup after both Broker and NotifyListener exist.
func (b *Broker) SetListener(l *NotifyListener) {
	b.listenerMu.Lock()
	defer b.listenerMu.Unlock()
	b.listener = l
}

// Subscribe registers a new SSE subscriber for channel and returns its
// delivery channel plus an unsubscribe func the caller must invoke (typically
// deferred) when the client disconnects. Stored events with an id above
// lastEventID are synchronously delivered onto the returned channel before
// Subscribe returns, closing the gap between catchup and live LISTEN. A
// first-time subscriber (lastEventID 0) therefore receives the stored history,
// ending with the current status, before live events.
func (b *Broker) Subscribe(ctx context.Context, channel string, lastEventID int64) (<-chan []byte, func(), error) {
	sub := &subscriber{id: uuid.New().String(), ch: make(chan []byte, 64)}

	b.mu.Lock()
	needsListen := false
	if _, exists := b.subscribers[channel]; !exists {
		b.subscribers[channel] = make(map[string]*subscriber)
		needsListen = true
	}
	b.subscribers[channel][sub.id] = sub
	b.mu.Unlock()

	if needsListen {
		b.listenerMu.RLock()
		l := b.listener
		b.listenerMu.RUnlock()
		if l != nil {
			listenCtx, cancel := context.WithTimeout(context.Background(), listenTimeout)
			err := l.Subscribe(listenCtx, channel)
			cancel()
			if err != nil {
				b.removeSubscriber(channel, sub.id)
				return nil, nil, err
			}
		}
	}

	b.deliverCatchup(ctx, sub, channel, lastEventID)

	unsubscribe := func() { b.unsubscribe(channel, sub.id) }
	return sub.ch, unsubscribe, nil
}

// Broadcast implements Broadcaster: delivers a NOTIFY payload to every local
// subscriber of channel. Never blocks on a slow subscriber — a full delivery
// channel drops the message rather than stalling the receive loop.
func (b *Broker) Broadcast(channel string, payload []byte) {
	b.mu.RLock()
	subs := b.subscribers[channel]
	snapshot := make([]*subscriber, 0, len(subs))
	for _, s := range subs {
		snapshot = append(snapshot, s)
	}
	b.mu.RUnlock()

	for _, s := range snapshot {
		select {
		case s.ch <- payload:
		default:
			slog.Warn("dropping event for slow SSE subscriber", "channel", channel, "subscriber", s.id)
		}
	}
}

// SubscriberCount reports how many local subscribers are attached to channel.
func (b *Broker) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[channel])
}

func (b *Broker) unsubscribe(channel, subID string) {
	b.mu.Lock()
	lastSubscriber := false
	if subs, exists := b.subscribers[channel]; exists {
		delete(subs, subID)
		if len(subs) == 0 {
			delete(b.subscribers, channel)
			lastSubscriber = true
		}
	}
	b.mu.Unlock()

	if !lastSubscriber {
		return
	}
	b.listenerMu.RLock()
	l := b.listener
	b.listenerMu.RUnlock()
	if l == nil {
		return
	}
	// Re-check before UNLISTEN: a rapid unsubscribe/resubscribe cycle may
	// have already re-added the channel by the time this goroutine runs.
	go func() {
		b.mu.RLock()
		_, resubscribed := b.subscribers[channel]
		b.mu.RUnlock()
		if resubscribed {
			return
		}
		if err := l.Unsubscribe(context.Background(), channel); err != nil {
			slog.Error("unlisten failed", "channel", channel, "error", err)
		}
	}()
}

func (b *Broker) removeSubscriber(channel, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, exists := b.subscribers[channel]; exists {
		delete(subs, subID)
		if len(subs) == 0 {
			delete(b.subscribers, channel)
		}
	}
}

// deliverCatchup sends missed events (id > lastEventID) onto sub.ch in order.
func (b *Broker) deliverCatchup(ctx context.Context, sub *subscriber, channel string, lastEventID int64) {
	if b.catchupQuerier == nil {
		return
	}
	evts, err := b.catchupQuerier.GetCatchupEvents(ctx, channel, lastEventID, catchupLimit+1)
	if err != nil {
		slog.Error("catchup query failed", "channel", channel, "error", err)
		return
	}

	hasMore := len(evts) > catchupLimit
	if hasMore {
		evts = evts[:catchupLimit]
	}
	for _, e := range evts {
		select {
		case sub.ch <- e.Payload:
		case <-ctx.Done():
			return
		}
	}
	if hasMore {
		overflow, _ := json.Marshal(map[string]any{"type": "catchup.overflow", "has_more": true})
		select {
		case sub.ch <- overflow:
		case <-ctx.Done():
		}
	}
}
