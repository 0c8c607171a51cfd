package ws

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func newTestClient(id string, topics ...string) *Client {
	return &Client{ID: id, Topics: topics, Send: make(chan []byte, 4)}
}

func TestHub_RegisterAndBroadcast(t *testing.T) {
	h := NewHub(zerolog.Nop())
	doc := newTestClient("doc-1", "doctor")
	pat := newTestClient("pat-1", "patient")
	h.Register(doc)
	h.Register(pat)

	if h.ClientCount() != 2 {
		t.Errorf("expected 2 clients, got %d", h.ClientCount())
	}
	if h.TopicCount("doctor") != 1 {
		t.Errorf("expected 1 doctor subscriber, got %d", h.TopicCount("doctor"))
	}

	h.Broadcast("doctor", NewCaseEvent("case-1", "Asha Rao", "High", "summary"))

	select {
	case raw := <-doc.Send:
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Type != "newCase" || ev.CaseID != "case-1" || ev.RiskLevel != "High" {
			t.Errorf("unexpected event: %+v", ev)
		}
		if ev.Timestamp.IsZero() {
			t.Error("timestamp must be set")
		}
	default:
		t.Fatal("doctor client received nothing")
	}

	select {
	case <-pat.Send:
		t.Error("patient client should not receive doctor events")
	default:
	}
}

func TestHub_Unregister(t *testing.T) {
	h := NewHub(zerolog.Nop())
	doc := newTestClient("doc-1", "doctor")
	h.Register(doc)
	h.Unregister(doc)

	if h.ClientCount() != 0 || h.TopicCount("doctor") != 0 {
		t.Error("client not fully removed")
	}
	if _, open := <-doc.Send; open {
		t.Error("send channel should be closed")
	}

	// Second unregister is a no-op, not a double close.
	h.Unregister(doc)
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	h := NewHub(zerolog.Nop())
	doc := newTestClient("doc-1", "doctor")
	h.Register(doc)

	h.ProcessMessage(doc, ClientMessage{Action: "subscribe", Topics: []string{"urgent"}})
	if h.TopicCount("urgent") != 1 {
		t.Error("subscribe did not take effect")
	}

	h.ProcessMessage(doc, ClientMessage{Action: "unsubscribe", Topics: []string{"urgent"}})
	if h.TopicCount("urgent") != 0 {
		t.Error("unsubscribe did not take effect")
	}
	if h.TopicCount("doctor") != 1 {
		t.Error("original topic must survive unrelated unsubscribe")
	}
}

func TestHub_BroadcastSkipsFullBuffer(t *testing.T) {
	h := NewHub(zerolog.Nop())
	slow := &Client{ID: "slow", Topics: []string{"doctor"}, Send: make(chan []byte)}
	fast := newTestClient("fast", "doctor")
	h.Register(slow)
	h.Register(fast)

	// slow has no buffer and no reader; Broadcast must not block on it.
	h.Broadcast("doctor", NewCaseEvent("c", "p", "Low", "s"))

	select {
	case <-fast.Send:
	default:
		t.Error("fast client should still receive the event")
	}
}

func TestHub_BroadcastUnknownTopic(t *testing.T) {
	h := NewHub(zerolog.Nop())
	h.Broadcast("nobody-listens", Event{Type: "newCase"})
}
