package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-marketsync/core"
)

// Router maps event types to handler functions for one adapter. The table
// is built once at adapter construction; adding an event type is a
// registration, not a code-flow edit.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]core.EventHandler
}

func NewRouter() *Router {
	return &Router{handlers: map[string]core.EventHandler{}}
}

func (r *Router) Register(eventType string, handler core.EventHandler) error {
	if r == nil {
		return fmt.Errorf("dispatch: router is nil")
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return fmt.Errorf("dispatch: event type is required")
	}
	if handler == nil {
		return fmt.Errorf("dispatch: handler is nil for %q", eventType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[eventType]; exists {
		return fmt.Errorf("dispatch: handler already registered for %q", eventType)
	}
	r.handlers[eventType] = handler
	return nil
}

// MustRegister panics on duplicate registration; adapters call it from
// constructors where a duplicate is a programming error.
func (r *Router) MustRegister(eventType string, handler core.EventHandler) {
	if err := r.Register(eventType, handler); err != nil {
		panic(err)
	}
}

func (r *Router) EventTypes() []string {
	r.mu.RLock()
	types := make([]string, 0, len(r.handlers))
	for eventType := range r.handlers {
		types = append(types, eventType)
	}
	r.mu.RUnlock()
	sort.Strings(types)
	return types
}

// Dispatch runs the handler registered for the event type. An unregistered
// type yields an unhandled outcome without touching state; handler errors
// and panics are converted into failed outcomes so no failure escapes the
// dispatch boundary.
func (r *Router) Dispatch(ctx context.Context, event core.Event) (outcome core.Outcome) {
	if r == nil {
		return core.Outcome{
			Status: core.OutcomeFailed,
			Err:    core.NewDownstreamError("dispatch: router is nil", nil, nil),
		}
	}
	r.mu.RLock()
	handler, ok := r.handlers[strings.TrimSpace(event.Type)]
	r.mu.RUnlock()
	if !ok {
		return core.Outcome{
			Status:  core.OutcomeUnhandled,
			Message: fmt.Sprintf("no handler registered for %q", event.Type),
		}
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			outcome = core.Outcome{
				Status:  core.OutcomeFailed,
				Message: "handler panicked",
				Err: core.NewDownstreamError(
					fmt.Sprintf("dispatch: handler for %q panicked: %v", event.Type, recovered),
					nil,
					map[string]any{"marketplace": string(event.Marketplace), "event_type": event.Type},
				),
			}
		}
	}()

	result, err := handler(ctx, event)
	if err != nil {
		return core.Outcome{
			Status:  core.OutcomeFailed,
			Message: result.Message,
			Err:     core.MapError(err),
		}
	}
	if result.Status == "" {
		result.Status = core.OutcomeProcessed
	}
	return result
}
