// Package events implements the process-wide fan-out bus feeding SSE
// subscribers: log events, status changes, driver content refreshes and a
// periodic heartbeat.
package events

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Channel names are path-shaped; a subscriber receives every message whose
// channel starts with one of its prefixes.
const (
	ChannelStatus           = "dns/status"
	ChannelInfo             = "dns/info"
	ChannelLogEvent         = "dns/log/event"
	ChannelLogRefresh       = "dns/log/"
	ChannelCacheRefresh     = "dns/cache/"
	ChannelBlacklistRefresh = "dns/blacklist/"
	ChannelWhitelistRefresh = "dns/whitelist/"
	ChannelHeartbeat        = "system/heartbeat"
)

// HeartbeatInterval is how often the bus pings subscribers.
const HeartbeatInterval = 30 * time.Second

// clientBuffer bounds the per-subscriber queue. A subscriber that cannot
// drain it in time is dropped, like any other failed send.
const clientBuffer = 64

// Message is one bus event as delivered to subscribers (and serialized
// verbatim onto the SSE stream).
type Message struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Subscription is a live subscriber handle. Receive from C until it closes;
// call the bus's Unsubscribe with ID when done.
type Subscription struct {
	ID string
	C  <-chan Message
}

type subscriber struct {
	prefixes []string
	ch       chan Message
}

// Bus multiplexes messages to subscribers by channel prefix. Sends never
// block: a subscriber with a full queue is disconnected and its channel
// closed.
type Bus struct {
	mu      sync.Mutex
	clients map[string]*subscriber
	logger  *slog.Logger

	stop chan struct{}
	once sync.Once
}

// NewBus creates a bus and starts its heartbeat timer.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		clients: map[string]*subscriber{},
		logger:  logger,
		stop:    make(chan struct{}),
	}
	go b.heartbeatLoop()
	return b
}

func (b *Bus) heartbeatLoop() {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.Publish(ChannelHeartbeat, map[string]any{"ping": "pong", "timestamp": time.Now().UnixMilli()})
		case <-b.stop:
			return
		}
	}
}

// Subscribe registers a client for every channel matching one of the
// prefixes. An empty prefix list subscribes to everything.
func (b *Bus) Subscribe(prefixes []string) Subscription {
	id := uuid.New().String()
	sub := &subscriber{prefixes: prefixes, ch: make(chan Message, clientBuffer)}

	b.mu.Lock()
	b.clients[id] = sub
	b.mu.Unlock()

	return Subscription{ID: id, C: sub.ch}
}

// Unsubscribe removes a client and closes its channel. Safe to call twice.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.clients[id]; ok {
		delete(b.clients, id)
		close(sub.ch)
	}
}

// Publish delivers a message to every matching subscriber, dropping
// subscribers whose queue is full.
func (b *Bus) Publish(channel string, data any) {
	msg := Message{Type: channel, Data: data, Timestamp: time.Now()}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.clients {
		if !matches(sub.prefixes, channel) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// Dead or hopelessly slow client: disconnect it.
			delete(b.clients, id)
			close(sub.ch)
			b.logger.Debug("event subscriber dropped", "id", id, "channel", channel)
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close stops the heartbeat and disconnects every subscriber.
func (b *Bus) Close() error {
	b.once.Do(func() { close(b.stop) })
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.clients {
		delete(b.clients, id)
		close(sub.ch)
	}
	return nil
}

func matches(prefixes []string, channel string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(channel, p) {
			return true
		}
	}
	return false
}
