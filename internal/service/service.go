// Package service implements the broker's core operations: the deal engine,
// the commitment ledger, the agent registry and webhook subscriptions.
package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/lfglabs-dev/unbound.md/internal/config"
	"github.com/lfglabs-dev/unbound.md/internal/pricing"
	"github.com/lfglabs-dev/unbound.md/internal/store"
)

// Dispatcher delivers event notifications. Dispatch must return immediately;
// delivery failures never surface here.
type Dispatcher interface {
	Dispatch(event string, data map[string]any)
}

// Service wires the store, the pricing oracle and the webhook dispatcher.
type Service struct {
	store      store.Store
	oracle     *pricing.Oracle
	dispatcher Dispatcher
	cfg        *config.Config
	now        func() time.Time
}

// New creates a service. dispatcher may be nil, which disables notifications.
func New(st store.Store, oracle *pricing.Oracle, dispatcher Dispatcher, cfg *config.Config) *Service {
	return &Service{
		store:      st,
		oracle:     oracle,
		dispatcher: dispatcher,
		cfg:        cfg,
		now:        time.Now,
	}
}

// dispatch fires a notification without ever blocking or failing the caller.
func (s *Service) dispatch(event string, data map[string]any) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Dispatch(event, data)
}

func newID(prefix string) string {
	return prefix + "_" + uuid.New().String()[:8]
}
