package query

import (
	"sync"
	"time"

	"github.com/jadedragon942/dbharbor/dialect"
	"github.com/jadedragon942/dbharbor/result"
)

// DefaultHistorySize is how many invocations a gateway remembers unless
// WithHistory says otherwise.
const DefaultHistorySize = 50

// HistoryEntry records one finished invocation.
type HistoryEntry struct {
	At        time.Time
	Engine    dialect.Kind
	Statement string
	Kind      result.StatementKind
	Duration  time.Duration
	Rows      int
	Err       error
}

func (e HistoryEntry) Succeeded() bool {
	return e.Err == nil
}

// history keeps the last size entries, oldest first.
type history struct {
	mu      sync.Mutex
	size    int
	entries []HistoryEntry
}

func (h *history) add(e HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.size <= 0 {
		return
	}
	if len(h.entries) >= h.size {
		n := copy(h.entries, h.entries[len(h.entries)-h.size+1:])
		h.entries = h.entries[:n]
	}
	h.entries = append(h.entries, e)
}

func (h *history) list() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryEntry, len(h.entries))
	for i, e := range h.entries {
		out[len(out)-1-i] = e
	}
	return out
}

func (h *history) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}

// WithHistory sets how many invocations the gateway remembers. Zero turns
// the history off.
func WithHistory(size int) Option {
	return func(g *Gateway) {
		g.history.size = size
	}
}

// History returns the remembered invocations, newest first.
func (g *Gateway) History() []HistoryEntry {
	return g.history.list()
}

func (g *Gateway) ClearHistory() {
	g.history.clear()
}
