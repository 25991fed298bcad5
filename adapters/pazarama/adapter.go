package pazarama

import (
	"context"

	"github.com/goliatone/go-marketsync/adapters/shared"
	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/normalize"
	"github.com/goliatone/go-marketsync/signature"
	"github.com/shopspring/decimal"
)

const SignatureHeader = "X-Pazarama-Signature"

// Adapter handles Pazarama notifications: JSON payloads typed by a
// snake_case `event_type`, signed with a hex HMAC over the raw body. Unlike
// Ozon and Hepsiburada the order payload arrives complete, so there is no
// detail fetch.
type Adapter struct {
	*shared.Base
	deps shared.StateDeps
}

var _ core.Adapter = (*Adapter)(nil)

func New(
	cfg core.MarketplaceConfig,
	store core.StateStore,
	catalog core.CatalogBridge,
	logger core.Logger,
) *Adapter {
	header := cfg.SignatureHeader
	if header == "" {
		header = SignatureHeader
	}
	base := shared.NewBase(
		core.MarketplacePazarama,
		signature.HeaderHMACVerifier{
			Header:   header,
			Secret:   cfg.Secret,
			Encoding: signature.EncodingHex,
			Require:  cfg.RequireSignature,
		},
		normalize.Normalizer{
			Marketplace: core.MarketplacePazarama,
			TypePaths:   []string{"event_type", "eventType"},
		},
		logger,
	)
	a := &Adapter{
		Base: base,
		deps: shared.StateDeps{Store: store, Catalog: catalog, Logger: base.Logger()},
	}

	a.On("order_created", a.handleOrderCreated)
	a.On("order_updated", a.handleOrderUpdated)
	a.On("order_cancelled", a.statusHandler("cancelled"))
	a.On("payment_completed", a.statusHandler("payment_completed"))
	a.On("product_approved", a.listingHandler(core.ListingStatusActive))
	a.On("product_rejected", a.listingHandler(core.ListingStatusRejected))
	a.On("inventory_updated", a.handleInventoryUpdated)
	return a
}

// handleOrderCreated builds the order straight from the payload; Pazarama
// sends the full order inline.
func (a *Adapter) handleOrderCreated(ctx context.Context, event core.Event) (core.Outcome, error) {
	orderID, err := shared.RequireString(event.Data, "order_id", "order_id", "order_number")
	if err != nil {
		return core.Outcome{}, err
	}
	order := core.MarketplaceOrder{
		Marketplace:        core.MarketplacePazarama,
		MarketplaceOrderID: orderID,
		Status:             core.OrderStatusCreated,
		RawStatus:          shared.OptionalString(event.Data, "status"),
		Total:              shared.OptionalDecimal(event.Data, decimal.Zero, "total_amount", "total"),
		Currency:           shared.OptionalString(event.Data, "currency"),
		CreatedAt:          event.ReceivedAt,
	}
	if items, ok := normalize.ExtractSlice(event.Data, "items", "lines"); ok {
		lines, err := shared.OrderLines(items,
			[]string{"offer_code", "sku", "product_code"},
			[]string{"quantity", "qty"},
			[]string{"unit_price", "price"},
		)
		if err != nil {
			return core.Outcome{}, err
		}
		order.Lines = lines
	}
	_, existed, err := a.deps.Store.CreateOrder(ctx, order)
	if err != nil {
		return core.Outcome{}, core.NewDownstreamError("recording order", err, nil)
	}
	msg := "order created"
	if existed {
		msg = "order already exists"
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: msg}, nil
}

func (a *Adapter) handleOrderUpdated(ctx context.Context, event core.Event) (core.Outcome, error) {
	orderID, err := shared.RequireString(event.Data, "order_id", "order_id", "order_number")
	if err != nil {
		return core.Outcome{}, err
	}
	rawStatus, err := shared.RequireString(event.Data, "status", "new_status", "status")
	if err != nil {
		return core.Outcome{}, err
	}
	if err := shared.UpsertOrderStatus(ctx, a.deps.Store, core.MarketplacePazarama, orderID, rawStatus, event.ReceivedAt); err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "order status applied"}, nil
}

func (a *Adapter) statusHandler(rawStatus string) core.EventHandler {
	return func(ctx context.Context, event core.Event) (core.Outcome, error) {
		orderID, err := shared.RequireString(event.Data, "order_id", "order_id", "order_number")
		if err != nil {
			return core.Outcome{}, err
		}
		if err := shared.UpsertOrderStatus(ctx, a.deps.Store, core.MarketplacePazarama, orderID, rawStatus, event.ReceivedAt); err != nil {
			return core.Outcome{}, err
		}
		return core.Outcome{Status: core.OutcomeProcessed, Message: "order status applied"}, nil
	}
}

func (a *Adapter) listingHandler(status core.ListingStatus) core.EventHandler {
	return func(ctx context.Context, event core.Event) (core.Outcome, error) {
		offerID, err := shared.RequireString(event.Data, "product_code", "product_code", "offer_code", "sku")
		if err != nil {
			return core.Outcome{}, err
		}
		state := core.ListingState{
			Marketplace: core.MarketplacePazarama,
			OfferID:     offerID,
			Status:      status,
			Title:       shared.OptionalString(event.Data, "product_name", "title"),
			Reason:      shared.OptionalString(event.Data, "reject_reason", "reason"),
			UpdatedAt:   event.ReceivedAt,
		}
		if err := a.deps.Store.UpsertListing(ctx, state); err != nil {
			return core.Outcome{}, core.NewDownstreamError("recording listing state", err, nil)
		}
		return core.Outcome{Status: core.OutcomeProcessed, Message: "listing state applied"}, nil
	}
}

// handleInventoryUpdated applies absolute stock and, when present, price in
// a single event; Pazarama batches both into one notification.
func (a *Adapter) handleInventoryUpdated(ctx context.Context, event core.Event) (core.Outcome, error) {
	offerID, err := shared.RequireString(event.Data, "offer_code", "offer_code", "product_code", "sku")
	if err != nil {
		return core.Outcome{}, err
	}
	qty, hasQty := normalize.ExtractInt(event.Data, "quantity", "stock")
	price, hasPrice := normalize.ExtractDecimal(event.Data, "price", "list_price")
	if !hasQty && !hasPrice {
		return core.Outcome{}, core.NewMissingFieldError("quantity", nil)
	}
	if hasQty {
		if qty < 0 {
			qty = 0
		}
		if err := a.deps.ApplyStock(ctx, core.MarketplacePazarama, offerID, qty, event.Type); err != nil {
			return core.Outcome{}, err
		}
	}
	if hasPrice {
		if err := a.deps.ApplyPrice(ctx, core.MarketplacePazarama, offerID, price, event.Type); err != nil {
			return core.Outcome{}, err
		}
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "inventory recorded"}, nil
}
