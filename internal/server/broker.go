package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Event is the payload delivered to a team's connected clients, over SSE
// or the puzzle websocket.
type Event struct {
	Type       string `json:"type"` // correct | wrong | eureka | unlock | hint | reset
	PuzzleID   string `json:"puzzleId,omitempty"`
	PuzzleName string `json:"puzzleName,omitempty"`
	EurekaID   string `json:"eurekaId,omitempty"`
	HintID     string `json:"hintId,omitempty"`
	Text       string `json:"text,omitempty"`
	Feedback   string `json:"feedback,omitempty"`
}

const eventChannelPrefix = "events:"

// Broker is the Notifier: an in-process pub/sub keyed by team ID. With a
// redis client attached, publishes go through redis pub/sub instead so
// events reach subscribers on every instance; Run feeds them back into
// the local fan-out.
type Broker struct {
	rdb    *redis.Client
	logger *slog.Logger

	mu         sync.RWMutex
	subs       map[string]map[chan []byte]struct{}
	eurekaHook func(teamID, eurekaID string)
}

// NotifyEurekas registers a callback invoked for every eureka event that
// arrives over the redis bridge. Hint timers live alongside the websocket
// session, which may be on a different instance than the one that handled
// the guess; the hook lets that instance's scheduler reschedule too. Set
// once at wiring time, before Run.
func (b *Broker) NotifyEurekas(fn func(teamID, eurekaID string)) {
	b.eurekaHook = fn
}

func NewBroker(rdb *redis.Client, logger *slog.Logger) *Broker {
	return &Broker{
		rdb:    rdb,
		logger: logger,
		subs:   make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel that receives JSON-encoded events for the
// given team.
func (b *Broker) Subscribe(teamID string) chan []byte {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	if b.subs[teamID] == nil {
		b.subs[teamID] = make(map[chan []byte]struct{})
	}
	b.subs[teamID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel from the team's subscribers.
func (b *Broker) Unsubscribe(teamID string, ch chan []byte) {
	b.mu.Lock()
	delete(b.subs[teamID], ch)
	if len(b.subs[teamID]) == 0 {
		delete(b.subs, teamID)
	}
	b.mu.Unlock()
}

// Push sends an event to all of the team's subscribers. Delivery is
// fire-and-forget: no acknowledgement, slow subscribers are skipped.
func (b *Broker) Push(teamID string, event Event) {
	data, _ := json.Marshal(event)
	if b.rdb != nil {
		if err := b.rdb.Publish(context.Background(), eventChannelPrefix+teamID, data).Err(); err != nil {
			b.logger.Error("publishing event", "team", teamID, "error", err)
		}
		return
	}
	b.deliver(teamID, data)
}

func (b *Broker) deliver(teamID string, data []byte) {
	b.mu.RLock()
	for ch := range b.subs[teamID] {
		select {
		case ch <- data:
		default:
			// Drop if subscriber is slow.
		}
	}
	b.mu.RUnlock()
}

// Run pumps redis-published events into the local fan-out until ctx is
// cancelled. Without redis it just blocks; local delivery is synchronous.
func (b *Broker) Run(ctx context.Context) error {
	if b.rdb == nil {
		<-ctx.Done()
		return nil
	}

	pubsub := b.rdb.PSubscribe(ctx, eventChannelPrefix+"*")
	defer pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return nil
			}
			teamID := strings.TrimPrefix(msg.Channel, eventChannelPrefix)
			b.dispatch(teamID, []byte(msg.Payload))
		}
	}
}

// dispatch handles one event that arrived over the bridge: fan it out to
// local subscribers and, for eureka discoveries, poke the hook so this
// instance's hint timers reschedule as well. The handling instance also
// calls the scheduler directly; rescheduling only ever moves a hint
// earlier, so the duplicate call is a no-op.
func (b *Broker) dispatch(teamID string, data []byte) {
	if b.eurekaHook != nil {
		var e Event
		if err := json.Unmarshal(data, &e); err == nil && e.Type == "eureka" && e.EurekaID != "" {
			b.eurekaHook(teamID, e.EurekaID)
		}
	}
	b.deliver(teamID, data)
}
