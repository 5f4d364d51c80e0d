package middleware

import (
	"strconv"
	"sync"

	"giftpool/core/logger"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// Gate is a bounded first-in-first-out set of processed keys.
// When the set is full the oldest key is evicted.
type Gate struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string
	head     int
}

// NewGate creates a Gate holding at most capacity keys.
func NewGate(capacity int) *Gate {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Gate{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
		order:    make([]string, 0, capacity),
	}
}

// Seen reports whether key was already recorded and records it otherwise.
func (g *Gate) Seen(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[key]; ok {
		return true
	}
	if len(g.seen) >= g.capacity {
		oldest := g.order[g.head]
		delete(g.seen, oldest)
		g.order[g.head] = key
		g.head = (g.head + 1) % g.capacity
	} else {
		g.order = append(g.order, key)
	}
	g.seen[key] = struct{}{}
	return false
}

// Len returns the number of keys currently tracked.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// Reset forgets all recorded keys.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = make(map[string]struct{}, g.capacity)
	g.order = g.order[:0]
	g.head = 0
}

// DedupOptions configures the duplicate-update gate.
type DedupOptions struct {
	Capacity int
}

// DedupMiddleware drops updates already processed once. Messages are keyed
// by chat and message id, callbacks by the Telegram callback id. Telegram
// redelivers updates after long-poll restarts; without this gate a redelivery
// would mutate state twice.
func DedupMiddleware(opts DedupOptions) (tele.MiddlewareFunc, *Gate, *Gate) {
	msgGate := NewGate(opts.Capacity)
	cbGate := NewGate(opts.Capacity)
	mw := func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			upd := c.Update()
			switch {
			case upd.Callback != nil:
				if upd.Callback.ID != "" && cbGate.Seen(upd.Callback.ID) {
					logDuplicate(c, "callback", upd.Callback.ID)
					// Acknowledge so the client stops the spinner, then drop.
					_ = c.Respond(&tele.CallbackResponse{})
					return nil
				}
			case upd.Message != nil:
				key := messageKey(upd.Message)
				if msgGate.Seen(key) {
					logDuplicate(c, "message", key)
					return nil
				}
			}
			return next(c)
		}
	}
	return mw, msgGate, cbGate
}

func messageKey(m *tele.Message) string {
	chatID := int64(0)
	if m.Chat != nil {
		chatID = m.Chat.ID
	}
	return strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(m.ID)
}

func logDuplicate(c tele.Context, kind, key string) {
	if logger.TG == nil {
		return
	}
	logger.TG.Warn("update dropped",
		slog.String("event", "tg.dedup"),
		slog.String("status", "duplicate"),
		slog.String("kind", kind),
		slog.String("key", logger.SanitizeLimit(key, 64)),
		slog.Int("update_id", c.Update().ID),
	)
}
