package testutil

import (
	"sync"
	"time"

	"colorbet/config"
	"colorbet/services"
)

// Epoch is a whole-second UTC instant; SQLite compares times as text, so
// tests keep to whole seconds in one zone.
var Epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Config returns the default configuration.
func Config() *config.Config {
	cfg := &config.Config{}
	config.SetDefaults(cfg)
	return cfg
}

// Recorder is a Publisher that keeps every event.
type Recorder struct {
	mu     sync.Mutex
	events []services.Event
}

func (r *Recorder) Publish(ev services.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *Recorder) Events() []services.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]services.Event(nil), r.events...)
}
