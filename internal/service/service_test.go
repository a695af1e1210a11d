package service

import (
	"sync"
	"testing"
	"time"

	"github.com/lfglabs-dev/unbound.md/internal/config"
	"github.com/lfglabs-dev/unbound.md/internal/pricing"
	"github.com/lfglabs-dev/unbound.md/internal/store"
)

type recordedEvent struct {
	Event string
	Data  map[string]any
}

// recordingDispatcher captures dispatched events for assertions.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (d *recordingDispatcher) Dispatch(event string, data map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, recordedEvent{Event: event, Data: data})
}

func (d *recordingDispatcher) names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.events))
	for i, e := range d.events {
		out[i] = e.Event
	}
	return out
}

type testEnv struct {
	svc        *Service
	store      *store.SQLiteStore
	dispatcher *recordingDispatcher
	clock      *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	cfg := &config.Config{
		ProofDeadline:   72 * time.Hour,
		ChallengeWindow: 24 * time.Hour,
	}
	oracle := pricing.NewOracle(pricing.DefaultFees(), db)
	dispatcher := &recordingDispatcher{}
	clock := &fakeClock{now: time.Now().UTC()}

	svc := New(db, oracle, dispatcher, cfg)
	svc.now = clock.Now

	return &testEnv{svc: svc, store: db, dispatcher: dispatcher, clock: clock}
}
