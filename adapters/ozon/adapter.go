package ozon

import (
	"context"

	"github.com/goliatone/go-marketsync/adapters/shared"
	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/normalize"
	"github.com/goliatone/go-marketsync/signature"
	"github.com/shopspring/decimal"
)

const SignatureHeader = "X-Ozon-Signature"

// Adapter handles Ozon push notifications: JSON payloads typed by
// `event_type`, signed with a hex HMAC over the raw body.
type Adapter struct {
	*shared.Base
	deps   shared.StateDeps
	client core.APIClient
	cfg    core.MarketplaceConfig
}

var _ core.Adapter = (*Adapter)(nil)

func New(
	cfg core.MarketplaceConfig,
	store core.StateStore,
	catalog core.CatalogBridge,
	client core.APIClient,
	logger core.Logger,
) *Adapter {
	header := cfg.SignatureHeader
	if header == "" {
		header = SignatureHeader
	}
	base := shared.NewBase(
		core.MarketplaceOzon,
		signature.HeaderHMACVerifier{
			Header:   header,
			Secret:   cfg.Secret,
			Encoding: signature.EncodingHex,
			Require:  cfg.RequireSignature,
		},
		normalize.Normalizer{
			Marketplace: core.MarketplaceOzon,
			TypePaths:   []string{"event_type", "eventType"},
		},
		logger,
	)
	a := &Adapter{
		Base:   base,
		deps:   shared.StateDeps{Store: store, Catalog: catalog, Logger: base.Logger()},
		client: client,
		cfg:    cfg,
	}

	a.On("order.new", a.handleOrderNew)
	a.On("order.status_changed", a.handleOrderStatus)
	a.On("order.cancelled", a.statusHandler("cancelled"))
	a.On("order.delivered", a.statusHandler("delivered"))
	a.On("product.price_changed", a.handlePriceChanged)
	a.On("product.stock_changed", a.handleStockChanged)
	a.On("fbs.stock_changed", a.handleStockChanged)
	a.On("product.moderated", a.listingHandler(core.ListingStatusActive))
	a.On("product.blocked", a.listingHandler(core.ListingStatusSuspended))
	a.On("product.unblocked", a.listingHandler(core.ListingStatusActive))
	a.On("promotion.started", a.handlePromotionStarted)
	a.On("promotion.ended", a.handlePromotionEnded)
	a.On("return.created", a.handleReturnCreated)
	a.On("return.approved", a.handleReturnApproved)
	return a
}

// handleOrderNew receives a partial payload carrying only the posting
// number; the full order is fetched from the seller API. All or nothing: a
// fetch failure writes no partial row.
func (a *Adapter) handleOrderNew(ctx context.Context, event core.Event) (core.Outcome, error) {
	orderID, err := shared.RequireString(event.Data, "posting_number", "posting_number", "order_id")
	if err != nil {
		return core.Outcome{}, err
	}
	_, existed, err := shared.FetchAndCreateOrder(
		ctx, a.client, a.deps.Store,
		core.MarketplaceOzon, orderID,
		a.cfg.OrderFetchTimeout, event.ReceivedAt,
	)
	if err != nil {
		return core.Outcome{}, err
	}
	msg := "order created"
	if existed {
		msg = "order already exists"
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: msg}, nil
}

func (a *Adapter) handleOrderStatus(ctx context.Context, event core.Event) (core.Outcome, error) {
	orderID, err := shared.RequireString(event.Data, "posting_number", "posting_number", "order_id")
	if err != nil {
		return core.Outcome{}, err
	}
	rawStatus, err := shared.RequireString(event.Data, "status", "new_status", "status")
	if err != nil {
		return core.Outcome{}, err
	}
	if err := shared.UpsertOrderStatus(ctx, a.deps.Store, core.MarketplaceOzon, orderID, rawStatus, event.ReceivedAt); err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "order status applied"}, nil
}

// statusHandler covers the dedicated lifecycle events that imply a fixed
// status rather than carrying one.
func (a *Adapter) statusHandler(rawStatus string) core.EventHandler {
	return func(ctx context.Context, event core.Event) (core.Outcome, error) {
		orderID, err := shared.RequireString(event.Data, "posting_number", "posting_number", "order_id")
		if err != nil {
			return core.Outcome{}, err
		}
		if err := shared.UpsertOrderStatus(ctx, a.deps.Store, core.MarketplaceOzon, orderID, rawStatus, event.ReceivedAt); err != nil {
			return core.Outcome{}, err
		}
		return core.Outcome{Status: core.OutcomeProcessed, Message: "order status applied"}, nil
	}
}

func (a *Adapter) handlePriceChanged(ctx context.Context, event core.Event) (core.Outcome, error) {
	offerID, err := shared.RequireString(event.Data, "offer_id", "offer_id", "product_id")
	if err != nil {
		return core.Outcome{}, err
	}
	price, err := shared.RequireDecimal(event.Data, "new_price", "new_price", "price")
	if err != nil {
		return core.Outcome{}, err
	}
	if err := a.deps.ApplyPrice(ctx, core.MarketplaceOzon, offerID, price, event.Type); err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "price recorded"}, nil
}

func (a *Adapter) handleStockChanged(ctx context.Context, event core.Event) (core.Outcome, error) {
	offerID, err := shared.RequireString(event.Data, "offer_id", "offer_id", "product_id")
	if err != nil {
		return core.Outcome{}, err
	}
	qty, err := shared.RequireInt(event.Data, "new_stock", "new_stock", "stock", "present")
	if err != nil {
		return core.Outcome{}, err
	}
	if qty < 0 {
		qty = 0
	}
	if err := a.deps.ApplyStock(ctx, core.MarketplaceOzon, offerID, qty, event.Type); err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "stock recorded"}, nil
}

func (a *Adapter) listingHandler(status core.ListingStatus) core.EventHandler {
	return func(ctx context.Context, event core.Event) (core.Outcome, error) {
		offerID, err := shared.RequireString(event.Data, "offer_id", "offer_id", "product_id")
		if err != nil {
			return core.Outcome{}, err
		}
		state := core.ListingState{
			Marketplace: core.MarketplaceOzon,
			OfferID:     offerID,
			Status:      status,
			Reason:      shared.OptionalString(event.Data, "reason", "comment"),
			UpdatedAt:   event.ReceivedAt,
		}
		if err := a.deps.Store.UpsertListing(ctx, state); err != nil {
			return core.Outcome{}, core.NewDownstreamError("recording listing state", err, nil)
		}
		return core.Outcome{Status: core.OutcomeProcessed, Message: "listing state applied"}, nil
	}
}

func (a *Adapter) handlePromotionStarted(ctx context.Context, event core.Event) (core.Outcome, error) {
	campaignID, err := shared.RequireString(event.Data, "action_id", "action_id", "promotion_id", "campaign_id")
	if err != nil {
		return core.Outcome{}, err
	}
	record := core.CampaignRecord{
		Marketplace:  core.MarketplaceOzon,
		CampaignID:   campaignID,
		Name:         shared.OptionalString(event.Data, "title", "name"),
		DiscountRate: shared.OptionalDecimal(event.Data, decimal.Zero, "discount_rate", "discount_percent"),
		OfferID:      shared.OptionalString(event.Data, "offer_id", "product_id"),
		BasePrice:    shared.OptionalDecimal(event.Data, decimal.Zero, "base_price", "old_price"),
		StartsAt:     shared.ParseTime(shared.OptionalString(event.Data, "date_start", "starts_at"), event.ReceivedAt),
		EndsAt:       shared.ParseTime(shared.OptionalString(event.Data, "date_end", "ends_at"), event.ReceivedAt),
		CreatedAt:    event.ReceivedAt,
	}
	if err := a.deps.StartCampaign(ctx, record); err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "campaign recorded"}, nil
}

func (a *Adapter) handlePromotionEnded(ctx context.Context, event core.Event) (core.Outcome, error) {
	campaignID, err := shared.RequireString(event.Data, "action_id", "action_id", "promotion_id", "campaign_id")
	if err != nil {
		return core.Outcome{}, err
	}
	offerID := shared.OptionalString(event.Data, "offer_id", "product_id")
	basePrice := shared.OptionalDecimal(event.Data, decimal.Zero, "base_price", "old_price")
	if err := a.deps.EndCampaign(ctx, core.MarketplaceOzon, campaignID, offerID, basePrice); err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "campaign ended"}, nil
}

func (a *Adapter) handleReturnCreated(ctx context.Context, event core.Event) (core.Outcome, error) {
	returnID, err := shared.RequireString(event.Data, "return_id", "return_id", "id")
	if err != nil {
		return core.Outcome{}, err
	}
	record := core.CaseRecord{
		Marketplace: core.MarketplaceOzon,
		Kind:        core.CaseKindReturn,
		CaseID:      returnID,
		OrderID:     shared.OptionalString(event.Data, "posting_number", "order_id"),
		OfferID:     shared.OptionalString(event.Data, "offer_id", "product_id"),
		Reason:      shared.OptionalString(event.Data, "return_reason", "reason"),
		Status:      "open",
		OpenedAt:    event.ReceivedAt,
	}
	if _, _, err := a.deps.Store.OpenCase(ctx, record); err != nil {
		return core.Outcome{}, core.NewDownstreamError("recording return", err, nil)
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "return recorded"}, nil
}

func (a *Adapter) handleReturnApproved(ctx context.Context, event core.Event) (core.Outcome, error) {
	returnID, err := shared.RequireString(event.Data, "return_id", "return_id", "id")
	if err != nil {
		return core.Outcome{}, err
	}
	err = a.deps.Store.UpdateCaseStatus(ctx, core.MarketplaceOzon, core.CaseKindReturn, returnID, "approved")
	if err != nil {
		return core.Outcome{}, core.NewDownstreamError("updating return status", err, nil)
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "return approved"}, nil
}
