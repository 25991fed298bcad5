package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-marketsync/core"
)

func TestRouterDispatchProcessed(t *testing.T) {
	router := NewRouter()
	var seen core.Event
	router.MustRegister("order.new", func(_ context.Context, event core.Event) (core.Outcome, error) {
		seen = event
		return core.Outcome{Status: core.OutcomeProcessed, Message: "order stored"}, nil
	})

	outcome := router.Dispatch(context.Background(), core.Event{
		Marketplace: core.MarketplaceOzon,
		Type:        "order.new",
		Data:        map[string]any{"posting_number": "123-0001"},
	})

	if outcome.Status != core.OutcomeProcessed {
		t.Fatalf("expected processed outcome, got %q", outcome.Status)
	}
	if seen.Type != "order.new" {
		t.Fatalf("handler did not receive the event, got type %q", seen.Type)
	}
}

func TestRouterDispatchUnknownType(t *testing.T) {
	router := NewRouter()
	router.MustRegister("order.new", func(context.Context, core.Event) (core.Outcome, error) {
		return core.Outcome{Status: core.OutcomeProcessed}, nil
	})

	outcome := router.Dispatch(context.Background(), core.Event{Type: "order.telemetry"})
	if outcome.Status != core.OutcomeUnhandled {
		t.Fatalf("expected unhandled outcome, got %q", outcome.Status)
	}
	if outcome.Err != nil {
		t.Fatalf("unhandled outcome must not carry an error, got %v", outcome.Err)
	}
}

func TestRouterDispatchHandlerError(t *testing.T) {
	router := NewRouter()
	router.MustRegister("order.cancelled", func(context.Context, core.Event) (core.Outcome, error) {
		return core.Outcome{}, errors.New("order store unavailable")
	})

	outcome := router.Dispatch(context.Background(), core.Event{Type: "order.cancelled"})
	if outcome.Status != core.OutcomeFailed {
		t.Fatalf("expected failed outcome, got %q", outcome.Status)
	}
	if outcome.Err == nil {
		t.Fatal("expected the handler error to surface on the outcome")
	}
	if !outcome.Retryable() {
		t.Fatal("failed outcome with error should be retryable")
	}
}

func TestRouterDispatchRecoversPanic(t *testing.T) {
	router := NewRouter()
	router.MustRegister("order.delivered", func(context.Context, core.Event) (core.Outcome, error) {
		panic("nil order line")
	})

	outcome := router.Dispatch(context.Background(), core.Event{Type: "order.delivered"})
	if outcome.Status != core.OutcomeFailed {
		t.Fatalf("expected failed outcome after panic, got %q", outcome.Status)
	}
	if outcome.Err == nil {
		t.Fatal("expected a panic to be converted into an error")
	}
}

func TestRouterRegisterValidation(t *testing.T) {
	router := NewRouter()
	handler := func(context.Context, core.Event) (core.Outcome, error) {
		return core.Outcome{Status: core.OutcomeProcessed}, nil
	}

	if err := router.Register("", handler); err == nil {
		t.Fatal("expected empty event type to be rejected")
	}
	if err := router.Register("order.new", nil); err == nil {
		t.Fatal("expected nil handler to be rejected")
	}
	if err := router.Register("order.new", handler); err != nil {
		t.Fatalf("first registration should succeed: %v", err)
	}
	if err := router.Register("order.new", handler); err == nil {
		t.Fatal("expected duplicate registration to be rejected")
	}
}

func TestRouterEventTypesSorted(t *testing.T) {
	router := NewRouter()
	handler := func(context.Context, core.Event) (core.Outcome, error) {
		return core.Outcome{Status: core.OutcomeProcessed}, nil
	}
	router.MustRegister("product.price_changed", handler)
	router.MustRegister("fbs.stock_changed", handler)
	router.MustRegister("order.new", handler)

	types := router.EventTypes()
	want := []string{"fbs.stock_changed", "order.new", "product.price_changed"}
	if len(types) != len(want) {
		t.Fatalf("expected %d types, got %d", len(want), len(types))
	}
	for i, eventType := range want {
		if types[i] != eventType {
			t.Fatalf("expected %q at index %d, got %q", eventType, i, types[i])
		}
	}
}
