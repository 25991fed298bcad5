package shared

import (
	"strings"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/normalize"
	"github.com/shopspring/decimal"
)

// RequireString extracts the first non-empty string at any of the candidate
// paths, or returns a missing-field error naming the logical field.
func RequireString(data map[string]any, field string, paths ...string) (string, error) {
	value := normalize.ExtractString(data, paths...)
	if strings.TrimSpace(value) == "" {
		return "", core.NewMissingFieldError(field, nil)
	}
	return strings.TrimSpace(value), nil
}

func RequireInt(data map[string]any, field string, paths ...string) (int64, error) {
	value, ok := normalize.ExtractInt(data, paths...)
	if !ok {
		return 0, core.NewMissingFieldError(field, nil)
	}
	return value, nil
}

func RequireDecimal(data map[string]any, field string, paths ...string) (decimal.Decimal, error) {
	value, ok := normalize.ExtractDecimal(data, paths...)
	if !ok {
		return decimal.Decimal{}, core.NewMissingFieldError(field, nil)
	}
	return value, nil
}

func RequireSlice(data map[string]any, field string, paths ...string) ([]any, error) {
	items, ok := normalize.ExtractSlice(data, paths...)
	if !ok || len(items) == 0 {
		return nil, core.NewMissingFieldError(field, nil)
	}
	return items, nil
}

func OptionalString(data map[string]any, paths ...string) string {
	return strings.TrimSpace(normalize.ExtractString(data, paths...))
}

func OptionalInt(data map[string]any, fallback int64, paths ...string) int64 {
	if value, ok := normalize.ExtractInt(data, paths...); ok {
		return value
	}
	return fallback
}

func OptionalDecimal(data map[string]any, fallback decimal.Decimal, paths ...string) decimal.Decimal {
	if value, ok := normalize.ExtractDecimal(data, paths...); ok {
		return value
	}
	return fallback
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime accepts the timestamp shapes marketplaces actually send. A value
// that parses under none of the known layouts falls back to now, which keeps
// an odd timestamp from failing an otherwise valid event.
func ParseTime(value string, now time.Time) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return now
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return now
}

// OrderLines converts a loose slice of payload line items into order lines.
// Each entry must resolve an offer identifier; quantity defaults to one and
// price to zero when absent.
func OrderLines(items []any, offerPaths, qtyPaths, pricePaths []string) ([]core.OrderLine, error) {
	lines := make([]core.OrderLine, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		offerID := OptionalString(entry, offerPaths...)
		if offerID == "" {
			return nil, core.NewMissingFieldError("line.offer_id", nil)
		}
		qty := OptionalInt(entry, 1, qtyPaths...)
		price := OptionalDecimal(entry, decimal.Zero, pricePaths...)
		lines = append(lines, core.OrderLine{
			OfferID:   offerID,
			Quantity:  int(qty),
			UnitPrice: price,
		})
	}
	if len(lines) == 0 {
		return nil, core.NewMissingFieldError("lines", nil)
	}
	return lines, nil
}
