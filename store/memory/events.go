package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/authshield"
)

// Events is an in-memory authshield.EventLog.
type Events struct {
	mu     sync.RWMutex
	events []*authshield.SecurityEvent
}

// NewEvents returns an empty log.
func NewEvents() *Events {
	return &Events{}
}

func (l *Events) Append(_ context.Context, ev *authshield.SecurityEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := *ev
	l.events = append(l.events, &c)
	return nil
}

// Query returns matches newest first.
func (l *Events) Query(_ context.Context, f authshield.EventFilter) ([]*authshield.SecurityEvent, int, error) {
	l.mu.RLock()
	matches := make([]*authshield.SecurityEvent, 0)
	for _, ev := range l.events {
		if f.Matches(ev) {
			c := *ev
			matches = append(matches, &c)
		}
	}
	l.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return page(matches, f.Limit, f.Offset), len(matches), nil
}

func (l *Events) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.events[:0]
	var n int64
	for _, ev := range l.events {
		if ev.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, ev)
	}
	for i := len(kept); i < len(l.events); i++ {
		l.events[i] = nil
	}
	l.events = kept
	return n, nil
}

// All returns every stored event in append order.
func (l *Events) All() []*authshield.SecurityEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*authshield.SecurityEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Count returns the number of stored events of typ.
func (l *Events) Count(typ authshield.EventType) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}
