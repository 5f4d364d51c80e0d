package middleware

import (
	"strconv"
	"testing"

	tele "gopkg.in/telebot.v4"
)

// dedupContext carries a fixed update through the middleware and records
// callback acknowledgements.
type dedupContext struct {
	tele.Context
	upd       tele.Update
	responded int
}

func (d *dedupContext) Update() tele.Update { return d.upd }

func (d *dedupContext) Respond(resp ...*tele.CallbackResponse) error {
	d.responded++
	return nil
}

func TestGateSeen(t *testing.T) {
	g := NewGate(10)
	if g.Seen("a") {
		t.Fatal("first insertion reported as seen")
	}
	if !g.Seen("a") {
		t.Fatal("second insertion not reported as seen")
	}
	if g.Seen("b") {
		t.Fatal("distinct key reported as seen")
	}
}

func TestGateEvictsOldestAtCapacity(t *testing.T) {
	g := NewGate(3)
	for i := 0; i < 3; i++ {
		g.Seen(strconv.Itoa(i))
	}
	// Inserting a 4th key evicts "0".
	if g.Seen("3") {
		t.Fatal("new key reported as seen")
	}
	if g.Len() != 3 {
		t.Fatalf("len = %d, want 3", g.Len())
	}
	if g.Seen("0") {
		t.Fatal("evicted key still reported as seen")
	}
	// "1" was evicted when "0" was re-inserted above.
	if g.Seen("1") {
		t.Fatal("key should have been evicted")
	}
	if !g.Seen("3") {
		t.Fatal("recent key lost")
	}
}

func TestGateReset(t *testing.T) {
	g := NewGate(5)
	g.Seen("x")
	g.Reset()
	if g.Len() != 0 {
		t.Fatalf("len after reset = %d", g.Len())
	}
	if g.Seen("x") {
		t.Fatal("reset gate still remembers key")
	}
}

func TestDedupMiddlewareDropsRedeliveredMessage(t *testing.T) {
	mw, msgGate, _ := DedupMiddleware(DedupOptions{Capacity: 8})
	calls := 0
	h := mw(func(c tele.Context) error {
		calls++
		return nil
	})

	c := &dedupContext{upd: tele.Update{
		ID:      7,
		Message: &tele.Message{ID: 42, Chat: &tele.Chat{ID: 5}},
	}}
	if err := h(c); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls after first delivery = %d", calls)
	}

	// Long-poll redelivery of the same update.
	if err := h(c); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if calls != 1 {
		t.Fatalf("redelivered message reached the handler, calls = %d", calls)
	}
	if msgGate.Len() != 1 {
		t.Fatalf("gate len = %d, want 1", msgGate.Len())
	}

	// A different message in the same chat passes through.
	c2 := &dedupContext{upd: tele.Update{
		ID:      8,
		Message: &tele.Message{ID: 43, Chat: &tele.Chat{ID: 5}},
	}}
	if err := h(c2); err != nil {
		t.Fatalf("distinct message: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestDedupMiddlewareAcknowledgesDuplicateCallback(t *testing.T) {
	mw, _, cbGate := DedupMiddleware(DedupOptions{Capacity: 8})
	calls := 0
	h := mw(func(c tele.Context) error {
		calls++
		return nil
	})

	c := &dedupContext{upd: tele.Update{
		ID:       9,
		Callback: &tele.Callback{ID: "cb-1"},
	}}
	if err := h(c); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if calls != 1 || c.responded != 0 {
		t.Fatalf("first delivery: calls=%d responded=%d", calls, c.responded)
	}

	if err := h(c); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if calls != 1 {
		t.Fatalf("duplicate callback reached the handler, calls = %d", calls)
	}
	if c.responded != 1 {
		t.Fatalf("duplicate callback not acknowledged, responded = %d", c.responded)
	}
	if cbGate.Len() != 1 {
		t.Fatalf("gate len = %d, want 1", cbGate.Len())
	}
}
