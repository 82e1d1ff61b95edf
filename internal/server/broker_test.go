package server

import (
	"encoding/json"
	"testing"
)

func TestBrokerPushReachesSubscribers(t *testing.T) {
	b := NewBroker(nil, testLogger())

	ch1 := b.Subscribe("t1")
	ch2 := b.Subscribe("t1")
	other := b.Subscribe("t2")

	b.Push("t1", Event{Type: "unlock", PuzzleID: "p3"})

	for i, ch := range []chan []byte{ch1, ch2} {
		select {
		case data := <-ch:
			var e Event
			if err := json.Unmarshal(data, &e); err != nil {
				t.Fatalf("sub %d: bad payload: %v", i, err)
			}
			if e.Type != "unlock" || e.PuzzleID != "p3" {
				t.Errorf("sub %d: event = %+v", i, e)
			}
		default:
			t.Fatalf("sub %d: no event delivered", i)
		}
	}

	select {
	case <-other:
		t.Error("event leaked to another team's subscriber")
	default:
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := NewBroker(nil, testLogger())

	ch := b.Subscribe("t1")
	b.Unsubscribe("t1", ch)
	b.Push("t1", Event{Type: "wrong"})

	select {
	case <-ch:
		t.Error("event delivered after unsubscribe")
	default:
	}
}

func TestBrokerDispatchInvokesEurekaHook(t *testing.T) {
	b := NewBroker(nil, testLogger())

	var gotTeam, gotEureka string
	b.NotifyEurekas(func(teamID, eurekaID string) {
		gotTeam, gotEureka = teamID, eurekaID
	})
	ch := b.Subscribe("t1")

	payload, _ := json.Marshal(Event{Type: "eureka", PuzzleID: "p2", EurekaID: "e1"})
	b.dispatch("t1", payload)

	if gotTeam != "t1" || gotEureka != "e1" {
		t.Errorf("hook saw (%q, %q), want (t1, e1)", gotTeam, gotEureka)
	}
	// Fan-out still happens alongside the hook.
	select {
	case <-ch:
	default:
		t.Error("eureka event not delivered to subscriber")
	}

	// Non-eureka events leave the hook alone.
	gotEureka = ""
	payload, _ = json.Marshal(Event{Type: "unlock", PuzzleID: "p3"})
	b.dispatch("t1", payload)
	if gotEureka != "" {
		t.Errorf("hook invoked for unlock event")
	}
}

func TestBrokerDropsWhenSubscriberFull(t *testing.T) {
	b := NewBroker(nil, testLogger())
	ch := b.Subscribe("t1")

	// Past the channel's buffer the broker must drop, not block.
	for i := 0; i < 40; i++ {
		b.Push("t1", Event{Type: "wrong"})
	}

	if got := len(ch); got != cap(ch) {
		t.Errorf("buffered %d events, want a full buffer of %d", got, cap(ch))
	}
}
