package hepsiburada

import (
	"context"

	"github.com/goliatone/go-marketsync/adapters/shared"
	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/normalize"
	"github.com/goliatone/go-marketsync/signature"
	"github.com/shopspring/decimal"
)

const SignatureHeader = "X-Hepsiburada-Signature"

// Adapter handles Hepsiburada merchant notifications: JSON payloads typed
// by a camelCase `eventType`, signed with a base64 HMAC over the raw body.
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
		core.MarketplaceHepsiburada,
		signature.HeaderHMACVerifier{
			Header:   header,
			Secret:   cfg.Secret,
			Encoding: signature.EncodingBase64,
			Require:  cfg.RequireSignature,
		},
		normalize.Normalizer{
			Marketplace: core.MarketplaceHepsiburada,
			TypePaths:   []string{"eventType", "event_type"},
		},
		logger,
	)
	a := &Adapter{
		Base:   base,
		deps:   shared.StateDeps{Store: store, Catalog: catalog, Logger: base.Logger()},
		client: client,
		cfg:    cfg,
	}

	a.On("order.created", a.handleOrderCreated)
	a.On("order.updated", a.handleOrderUpdated)
	a.On("order.cancelled", a.statusHandler("cancelled"))
	a.On("order.shipped", a.statusHandler("shipped"))
	a.On("order.delivered", a.statusHandler("delivered"))
	a.On("product.approved", a.listingHandler(core.ListingStatusActive))
	a.On("product.rejected", a.listingHandler(core.ListingStatusRejected))
	a.On("listing.active", a.listingHandler(core.ListingStatusActive))
	a.On("listing.inactive", a.listingHandler(core.ListingStatusInactive))
	a.On("product.price_changed", a.handlePriceChanged)
	a.On("product.stock_changed", a.handleStockChanged)
	a.On("campaign.started", a.handleCampaignStarted)
	a.On("campaign.ended", a.handleCampaignEnded)
	a.On("claim.created", a.handleClaimCreated)
	a.On("claim.resolved", a.handleClaimResolved)
	a.On("review.received", a.handleReview)
	return a
}

// handleOrderCreated receives only the order number; the full order comes
// from the merchant API. A fetch failure leaves no partial row behind.
func (a *Adapter) handleOrderCreated(ctx context.Context, event core.Event) (core.Outcome, error) {
	orderNumber, err := shared.RequireString(event.Data, "orderNumber", "orderNumber", "order_number")
	if err != nil {
		return core.Outcome{}, err
	}
	_, existed, err := shared.FetchAndCreateOrder(
		ctx, a.client, a.deps.Store,
		core.MarketplaceHepsiburada, orderNumber,
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

func (a *Adapter) handleOrderUpdated(ctx context.Context, event core.Event) (core.Outcome, error) {
	orderNumber, err := shared.RequireString(event.Data, "orderNumber", "orderNumber", "order_number")
	if err != nil {
		return core.Outcome{}, err
	}
	rawStatus, err := shared.RequireString(event.Data, "status", "status", "newStatus")
	if err != nil {
		return core.Outcome{}, err
	}
	if err := shared.UpsertOrderStatus(ctx, a.deps.Store, core.MarketplaceHepsiburada, orderNumber, rawStatus, event.ReceivedAt); err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "order status applied"}, nil
}

func (a *Adapter) statusHandler(rawStatus string) core.EventHandler {
	return func(ctx context.Context, event core.Event) (core.Outcome, error) {
		orderNumber, err := shared.RequireString(event.Data, "orderNumber", "orderNumber", "order_number")
		if err != nil {
			return core.Outcome{}, err
		}
		if err := shared.UpsertOrderStatus(ctx, a.deps.Store, core.MarketplaceHepsiburada, orderNumber, rawStatus, event.ReceivedAt); err != nil {
			return core.Outcome{}, err
		}
		return core.Outcome{Status: core.OutcomeProcessed, Message: "order status applied"}, nil
	}
}

func (a *Adapter) listingHandler(status core.ListingStatus) core.EventHandler {
	return func(ctx context.Context, event core.Event) (core.Outcome, error) {
		sku, err := shared.RequireString(event.Data, "merchantSku", "merchantSku", "sku", "listingId")
		if err != nil {
			return core.Outcome{}, err
		}
		state := core.ListingState{
			Marketplace: core.MarketplaceHepsiburada,
			OfferID:     sku,
			Status:      status,
			Title:       shared.OptionalString(event.Data, "productName", "title"),
			Reason:      shared.OptionalString(event.Data, "rejectReason", "reason"),
			UpdatedAt:   event.ReceivedAt,
		}
		if err := a.deps.Store.UpsertListing(ctx, state); err != nil {
			return core.Outcome{}, core.NewDownstreamError("recording listing state", err, nil)
		}
		return core.Outcome{Status: core.OutcomeProcessed, Message: "listing state applied"}, nil
	}
}

func (a *Adapter) handlePriceChanged(ctx context.Context, event core.Event) (core.Outcome, error) {
	sku, err := shared.RequireString(event.Data, "merchantSku", "merchantSku", "sku")
	if err != nil {
		return core.Outcome{}, err
	}
	price, err := shared.RequireDecimal(event.Data, "newPrice", "newPrice", "price")
	if err != nil {
		return core.Outcome{}, err
	}
	if err := a.deps.ApplyPrice(ctx, core.MarketplaceHepsiburada, sku, price, event.Type); err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "price recorded"}, nil
}

func (a *Adapter) handleStockChanged(ctx context.Context, event core.Event) (core.Outcome, error) {
	sku, err := shared.RequireString(event.Data, "merchantSku", "merchantSku", "sku")
	if err != nil {
		return core.Outcome{}, err
	}
	qty, err := shared.RequireInt(event.Data, "newStock", "newStock", "stock", "availableStock")
	if err != nil {
		return core.Outcome{}, err
	}
	if qty < 0 {
		qty = 0
	}
	if err := a.deps.ApplyStock(ctx, core.MarketplaceHepsiburada, sku, qty, event.Type); err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "stock recorded"}, nil
}

// handleCampaignStarted derives the absolute discounted price from the
// percentage rate so a redelivered campaign event never compounds.
func (a *Adapter) handleCampaignStarted(ctx context.Context, event core.Event) (core.Outcome, error) {
	campaignID, err := shared.RequireString(event.Data, "campaignId", "campaignId", "campaign_id")
	if err != nil {
		return core.Outcome{}, err
	}
	rate, err := shared.RequireDecimal(event.Data, "discountRate", "discountRate", "discount_rate")
	if err != nil {
		return core.Outcome{}, err
	}
	record := core.CampaignRecord{
		Marketplace:  core.MarketplaceHepsiburada,
		CampaignID:   campaignID,
		Name:         shared.OptionalString(event.Data, "campaignName", "name"),
		DiscountRate: rate,
		OfferID:      shared.OptionalString(event.Data, "merchantSku", "sku"),
		BasePrice:    shared.OptionalDecimal(event.Data, decimal.Zero, "basePrice", "listPrice"),
		StartsAt:     shared.ParseTime(shared.OptionalString(event.Data, "startDate", "startsAt"), event.ReceivedAt),
		EndsAt:       shared.ParseTime(shared.OptionalString(event.Data, "endDate", "endsAt"), event.ReceivedAt),
		CreatedAt:    event.ReceivedAt,
	}
	if err := a.deps.StartCampaign(ctx, record); err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "campaign recorded"}, nil
}

func (a *Adapter) handleCampaignEnded(ctx context.Context, event core.Event) (core.Outcome, error) {
	campaignID, err := shared.RequireString(event.Data, "campaignId", "campaignId", "campaign_id")
	if err != nil {
		return core.Outcome{}, err
	}
	offerID := shared.OptionalString(event.Data, "merchantSku", "sku")
	basePrice := shared.OptionalDecimal(event.Data, decimal.Zero, "basePrice", "listPrice")
	if err := a.deps.EndCampaign(ctx, core.MarketplaceHepsiburada, campaignID, offerID, basePrice); err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "campaign ended"}, nil
}

func (a *Adapter) handleClaimCreated(ctx context.Context, event core.Event) (core.Outcome, error) {
	claimID, err := shared.RequireString(event.Data, "claimId", "claimId", "claim_id")
	if err != nil {
		return core.Outcome{}, err
	}
	record := core.CaseRecord{
		Marketplace: core.MarketplaceHepsiburada,
		Kind:        core.CaseKindClaim,
		CaseID:      claimID,
		OrderID:     shared.OptionalString(event.Data, "orderNumber", "order_number"),
		OfferID:     shared.OptionalString(event.Data, "merchantSku", "sku"),
		Reason:      shared.OptionalString(event.Data, "claimReason", "reason"),
		Status:      "open",
		OpenedAt:    event.ReceivedAt,
	}
	if _, _, err := a.deps.Store.OpenCase(ctx, record); err != nil {
		return core.Outcome{}, core.NewDownstreamError("recording claim", err, nil)
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "claim recorded"}, nil
}

func (a *Adapter) handleClaimResolved(ctx context.Context, event core.Event) (core.Outcome, error) {
	claimID, err := shared.RequireString(event.Data, "claimId", "claimId", "claim_id")
	if err != nil {
		return core.Outcome{}, err
	}
	err = a.deps.Store.UpdateCaseStatus(ctx, core.MarketplaceHepsiburada, core.CaseKindClaim, claimID, "resolved")
	if err != nil {
		return core.Outcome{}, core.NewDownstreamError("resolving claim", err, nil)
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "claim resolved"}, nil
}

func (a *Adapter) handleReview(ctx context.Context, event core.Event) (core.Outcome, error) {
	reviewID, err := shared.RequireString(event.Data, "reviewId", "reviewId", "review_id")
	if err != nil {
		return core.Outcome{}, err
	}
	record := core.FeedbackRecord{
		Marketplace: core.MarketplaceHepsiburada,
		FeedbackID:  reviewID,
		OfferID:     shared.OptionalString(event.Data, "merchantSku", "sku"),
		Score:       int(shared.OptionalInt(event.Data, 0, "rating", "score")),
		Comment:     shared.OptionalString(event.Data, "comment", "text"),
		ReceivedAt:  event.ReceivedAt,
	}
	if _, _, err := a.deps.Store.SaveFeedback(ctx, record); err != nil {
		return core.Outcome{}, core.NewDownstreamError("recording review", err, nil)
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "review recorded"}, nil
}
