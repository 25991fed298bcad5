package shared

import (
	"testing"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/shopspring/decimal"
)

func TestRequireStringMissingField(t *testing.T) {
	data := map[string]any{"order": map[string]any{"number": "A-100"}}

	value, err := RequireString(data, "order_id", "order.number", "orderNumber")
	if err != nil {
		t.Fatalf("expected value at nested path: %v", err)
	}
	if value != "A-100" {
		t.Fatalf("expected A-100, got %q", value)
	}

	_, err = RequireString(data, "offer_id", "sku", "offer_id")
	if err == nil {
		t.Fatal("expected missing field error")
	}
	if !core.IsMissingField(err) {
		t.Fatalf("expected missing-field text code, got %v", err)
	}
}

func TestRequireDecimalCoercesStringAmounts(t *testing.T) {
	data := map[string]any{"price": "149.90"}

	price, err := RequireDecimal(data, "price", "price")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("149.90")) {
		t.Fatalf("expected 149.90, got %s", price)
	}
}

func TestParseTimeFallsBackToNow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	parsed := ParseTime("2025-05-30T08:15:00Z", now)
	if parsed.Equal(now) {
		t.Fatal("expected RFC3339 value to parse")
	}
	if ParseTime("yesterday-ish", now) != now {
		t.Fatal("expected unparseable value to fall back to now")
	}
	if ParseTime("", now) != now {
		t.Fatal("expected empty value to fall back to now")
	}
}

func TestOrderLines(t *testing.T) {
	items := []any{
		map[string]any{"sku": "SKU-1", "quantity": float64(2), "price": "10.00"},
		map[string]any{"sku": "SKU-2"},
	}

	lines, err := OrderLines(items, []string{"sku"}, []string{"quantity"}, []string{"price"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Quantity != 2 || !lines[0].UnitPrice.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("unexpected first line: %+v", lines[0])
	}
	if lines[1].Quantity != 1 || !lines[1].UnitPrice.IsZero() {
		t.Fatalf("expected defaults on second line: %+v", lines[1])
	}

	_, err = OrderLines([]any{map[string]any{"quantity": float64(1)}}, []string{"sku"}, nil, nil)
	if !core.IsMissingField(err) {
		t.Fatalf("expected missing offer id to fail, got %v", err)
	}

	_, err = OrderLines(nil, []string{"sku"}, nil, nil)
	if !core.IsMissingField(err) {
		t.Fatalf("expected empty items to fail, got %v", err)
	}
}
