package pazarama

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/store/memory"
	"github.com/shopspring/decimal"
)

func newTestAdapter(t *testing.T) (*Adapter, *memory.StateStore) {
	t.Helper()
	store := memory.NewStateStore()
	adapter := New(core.MarketplaceConfig{Enabled: true}, store, memory.NewCatalog(store), nil)
	return adapter, store
}

func event(eventType string, data map[string]any) core.Event {
	return core.Event{
		Marketplace: core.MarketplacePazarama,
		Type:        eventType,
		Data:        data,
		ReceivedAt:  time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestOrderCreatedFromInlinePayload(t *testing.T) {
	adapter, store := newTestAdapter(t)
	ctx := context.Background()

	payload := map[string]any{
		"order_id":     "PZ-300",
		"total_amount": "350.00",
		"currency":     "TRY",
		"items": []any{
			map[string]any{"offer_code": "SKU-A", "quantity": float64(2), "unit_price": "100.00"},
			map[string]any{"offer_code": "SKU-B", "quantity": float64(1), "unit_price": "150.00"},
		},
	}

	outcome := adapter.Handle(ctx, event("order_created", payload))
	if outcome.Status != core.OutcomeProcessed {
		t.Fatalf("expected processed, got %q: %v", outcome.Status, outcome.Err)
	}

	order, err := store.GetOrder(ctx, core.MarketplacePazarama, "PZ-300")
	if err != nil {
		t.Fatal(err)
	}
	if len(order.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(order.Lines))
	}
	if !order.Total.Equal(decimal.RequireFromString("350")) {
		t.Fatalf("expected total 350, got %s", order.Total)
	}

	// redelivery keeps the original row
	outcome = adapter.Handle(ctx, event("order_created", payload))
	if outcome.Status != core.OutcomeProcessed {
		t.Fatalf("expected redelivery success, got %q", outcome.Status)
	}
}

func TestPaymentCompletedMapsToPaid(t *testing.T) {
	adapter, store := newTestAdapter(t)
	ctx := context.Background()

	adapter.Handle(ctx, event("order_created", map[string]any{"order_id": "PZ-301"}))
	outcome := adapter.Handle(ctx, event("payment_completed", map[string]any{"order_id": "PZ-301"}))
	if outcome.Status != core.OutcomeProcessed {
		t.Fatalf("expected processed, got %q: %v", outcome.Status, outcome.Err)
	}

	order, err := store.GetOrder(ctx, core.MarketplacePazarama, "PZ-301")
	if err != nil {
		t.Fatal(err)
	}
	if order.Status != core.OrderStatusPaid {
		t.Fatalf("expected paid status, got %q", order.Status)
	}
}

func TestInventoryUpdatedAppliesStockAndPrice(t *testing.T) {
	adapter, store := newTestAdapter(t)
	ctx := context.Background()

	outcome := adapter.Handle(ctx, event("inventory_updated", map[string]any{
		"offer_code": "SKU-C",
		"quantity":   float64(12),
		"price":      "44.90",
	}))
	if outcome.Status != core.OutcomeProcessed {
		t.Fatalf("expected processed, got %q: %v", outcome.Status, outcome.Err)
	}

	if qty, _ := store.CurrentStock(ctx, core.MarketplacePazarama, "SKU-C"); qty != 12 {
		t.Fatalf("expected stock 12, got %d", qty)
	}
	price, _ := store.CurrentPrice(ctx, core.MarketplacePazarama, "SKU-C")
	if !price.Equal(decimal.RequireFromString("44.90")) {
		t.Fatalf("expected price 44.90, got %s", price)
	}

	outcome = adapter.Handle(ctx, event("inventory_updated", map[string]any{"offer_code": "SKU-C"}))
	if outcome.Status != core.OutcomeFailed || !core.IsMissingField(outcome.Err) {
		t.Fatalf("expected missing-field failure without values, got %q %v", outcome.Status, outcome.Err)
	}
}

func TestProductApprovalStates(t *testing.T) {
	adapter, store := newTestAdapter(t)
	ctx := context.Background()

	outcome := adapter.Handle(ctx, event("product_rejected", map[string]any{
		"product_code":  "SKU-D",
		"reject_reason": "missing images",
	}))
	if outcome.Status != core.OutcomeProcessed {
		t.Fatalf("expected processed, got %q: %v", outcome.Status, outcome.Err)
	}

	state, err := store.GetListing(ctx, core.MarketplacePazarama, "SKU-D")
	if err != nil {
		t.Fatal(err)
	}
	if state.Status != core.ListingStatusRejected || state.Reason != "missing images" {
		t.Fatalf("unexpected listing state: %+v", state)
	}
}
