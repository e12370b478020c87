package activitypub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventType enumerates the cross-process events the EventBus fans out,
// per spec.md §4.7.
type EventType string

const (
	EventNoteCreated   EventType = "note.created"
	EventNoteUpdated   EventType = "note.updated"
	EventNoteDeleted   EventType = "note.deleted"
	EventFollowCreated EventType = "follow.created"
	EventFollowAccepted EventType = "follow.accepted"
	EventFollowRemoved EventType = "follow.removed"
	EventReactionAdded EventType = "reaction.added"
	EventReactionRemoved EventType = "reaction.removed"
	EventNotification  EventType = "notification"
	EventMessage       EventType = "message"
)

// Channel names the EventBus publishes and subscribes on, per spec.md §4.7.
const (
	ChannelNotes           = "notes"
	ChannelTimelineGlobal  = "timeline:global"
	ChannelTimelineLocal   = "timeline:local"
	ChannelNotifications   = "notifications"
	ChannelFollows         = "follows"
	ChannelReactions       = "reactions"
	ChannelMessaging       = "messaging"
)

var globalEventBus *EventBus
var globalEventBusMu sync.RWMutex

// SetGlobalEventBus installs the process-wide EventBus singleton, set
// once at startup by app.App.Start when federation is enabled.
func SetGlobalEventBus(bus *EventBus) {
	globalEventBusMu.Lock()
	defer globalEventBusMu.Unlock()
	globalEventBus = bus
}

// GlobalEventBus returns the process-wide EventBus singleton, or nil if
// federation is disabled and none was installed.
func GlobalEventBus() *EventBus {
	globalEventBusMu.RLock()
	defer globalEventBusMu.RUnlock()
	return globalEventBus
}

// PublishEvent publishes to the global EventBus if one is installed; a
// no-op otherwise, so callers needn't special-case federation-disabled
// deployments.
func PublishEvent(channel string, eventType EventType, payload any) {
	bus := GlobalEventBus()
	if bus == nil {
		return
	}
	if err := bus.Publish(channel, eventType, payload); err != nil {
		log.Printf("EventBus: failed to publish %s on %s: %v", eventType, channel, err)
	}
}

// UserChannel returns the per-account channel name for targeted delivery
// (notifications, DMs), e.g. "user:<accountId>".
func UserChannel(accountID string) string {
	return "user:" + accountID
}

// Event is the payload carried on every EventBus channel. OriginID
// identifies the process that published it, so a process's own Redis
// relay can recognize and skip its own publishes (already delivered to
// local subscribers directly by Publish, before the Redis round trip).
type Event struct {
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
	OriginID  string          `json:"originId"`
}

// EventBus fans events out to in-process subscribers immediately (so a
// publisher observes its own events without a network round trip) and,
// when a Redis URL is configured, across processes via pub/sub.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event

	instanceID  string
	redisClient *redis.Client
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewEventBus constructs an EventBus. An empty redisURL disables
// cross-process fan-out; the bus still does local broadcast, which is
// sufficient for a single-node deployment or tests.
func NewEventBus(redisURL string) *EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	bus := &EventBus{
		subscribers: make(map[string][]chan Event),
		instanceID:  uuid.New().String(),
		ctx:         ctx,
		cancel:      cancel,
	}

	if redisURL == "" {
		return bus
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("EventBus: invalid redis URL, falling back to local-only broadcast: %v", err)
		return bus
	}

	bus.redisClient = redis.NewClient(opts)
	return bus
}

// Close stops the EventBus's Redis subscription loops and the Redis
// client, if one was configured.
func (b *EventBus) Close() error {
	b.cancel()
	if b.redisClient != nil {
		return b.redisClient.Close()
	}
	return nil
}

// Publish fans an event out to local subscribers of channel immediately,
// and — when Redis is configured — publishes it for other processes.
func (b *EventBus) Publish(channel string, eventType EventType, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := Event{Type: eventType, Payload: body, CreatedAt: time.Now(), OriginID: b.instanceID}
	b.broadcastLocal(channel, event)

	if b.redisClient == nil {
		return nil
	}

	encoded, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.redisClient.Publish(b.ctx, channel, encoded).Err()
}

// broadcastLocal delivers event to every in-process subscriber of
// channel without blocking on a slow or closed subscriber.
func (b *EventBus) broadcastLocal(channel string, event Event) {
	// The read lock is held across the non-blocking sends so an
	// unsubscribe cannot close a channel while it is being sent on.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[channel] {
		select {
		case ch <- event:
		default:
			log.Printf("EventBus: subscriber channel for %s is full, dropping event", channel)
		}
	}
}

// Subscribe registers a buffered channel for channel's local events and,
// when Redis is configured, starts a goroutine relaying that channel's
// remote publishes into the same local subscriber set. The returned
// func unsubscribes and releases the channel.
func (b *EventBus) Subscribe(channel string) (<-chan Event, func()) {
	ch := make(chan Event, 32)

	b.mu.Lock()
	b.subscribers[channel] = append(b.subscribers[channel], ch)
	first := len(b.subscribers[channel]) == 1
	b.mu.Unlock()

	if first && b.redisClient != nil {
		go b.relayRedisChannel(channel)
	}

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[channel]
		for i, c := range subs {
			if c == ch {
				b.subscribers[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}

	return ch, unsubscribe
}

// relayRedisChannel subscribes to channel on Redis and broadcasts every
// message it receives to this process's local subscribers, so remote
// publishes reach local subscribers the same way local publishes do.
func (b *EventBus) relayRedisChannel(channel string) {
	pubsub := b.redisClient.Subscribe(b.ctx, channel)
	defer pubsub.Close()

	msgs := pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("EventBus: failed to decode event on %s: %v", channel, err)
				continue
			}
			if event.OriginID == b.instanceID {
				// Already delivered to local subscribers by Publish
				// before the Redis round trip; skip the echo.
				continue
			}
			b.broadcastLocal(channel, event)
		}
	}
}
