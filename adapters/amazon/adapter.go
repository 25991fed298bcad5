package amazon

import (
	"context"

	"github.com/goliatone/go-marketsync/adapters/shared"
	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/normalize"
	"github.com/goliatone/go-marketsync/signature"
	"github.com/shopspring/decimal"
)

const SignatureHeader = "X-Amz-Signature"

// Adapter handles Amazon SP notifications: JSON payloads typed by
// `notificationType`, authenticated with a shared verification token rather
// than a payload signature. REPORT_PROCESSING_FINISHED arrives on the same
// subscription but carries nothing this module applies, so it stays
// unregistered and flows through as unhandled.
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
		core.MarketplaceAmazon,
		signature.HeaderTokenVerifier{
			Header:  header,
			Token:   cfg.Secret,
			Require: cfg.RequireSignature,
		},
		normalize.Normalizer{
			Marketplace: core.MarketplaceAmazon,
			TypePaths:   []string{"notificationType", "NotificationType"},
		},
		logger,
	)
	a := &Adapter{
		Base: base,
		deps: shared.StateDeps{Store: store, Catalog: catalog, Logger: base.Logger()},
	}

	a.On("ORDER_STATUS_CHANGE", a.handleOrderStatusChange)
	a.On("ANY_OFFER_CHANGED", a.handleOfferChanged)
	a.On("FBA_INVENTORY_LEVEL", a.handleInventoryLevel)
	a.On("PRICING_HEALTH", a.handlePricingHealth)
	a.On("FEE_PROMOTION", a.handleFeePromotion)
	return a
}

func (a *Adapter) handleOrderStatusChange(ctx context.Context, event core.Event) (core.Outcome, error) {
	orderID, err := shared.RequireString(event.Data, "amazonOrderId",
		"payload.amazonOrderId", "payload.AmazonOrderId", "amazonOrderId")
	if err != nil {
		return core.Outcome{}, err
	}
	rawStatus, err := shared.RequireString(event.Data, "orderStatus",
		"payload.orderStatus", "payload.OrderStatus", "orderStatus")
	if err != nil {
		return core.Outcome{}, err
	}
	if err := shared.UpsertOrderStatus(ctx, a.deps.Store, core.MarketplaceAmazon, orderID, rawStatus, event.ReceivedAt); err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "order status applied"}, nil
}

func (a *Adapter) handleOfferChanged(ctx context.Context, event core.Event) (core.Outcome, error) {
	offerID, err := shared.RequireString(event.Data, "asin",
		"payload.offerChangeTrigger.asin", "payload.asin", "asin", "sellerSku")
	if err != nil {
		return core.Outcome{}, err
	}
	price, err := shared.RequireDecimal(event.Data, "listingPrice",
		"payload.summary.listingPrice", "payload.listingPrice", "listingPrice")
	if err != nil {
		return core.Outcome{}, err
	}
	if err := a.deps.ApplyPrice(ctx, core.MarketplaceAmazon, offerID, price, event.Type); err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "price recorded"}, nil
}

func (a *Adapter) handleInventoryLevel(ctx context.Context, event core.Event) (core.Outcome, error) {
	sku, err := shared.RequireString(event.Data, "sellerSku",
		"payload.sellerSku", "payload.SellerSku", "sellerSku")
	if err != nil {
		return core.Outcome{}, err
	}
	qty, err := shared.RequireInt(event.Data, "fulfillableQuantity",
		"payload.fulfillableQuantity", "payload.quantity", "fulfillableQuantity")
	if err != nil {
		return core.Outcome{}, err
	}
	if qty < 0 {
		qty = 0
	}
	if err := a.deps.ApplyStock(ctx, core.MarketplaceAmazon, sku, qty, event.Type); err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "stock recorded"}, nil
}

// handlePricingHealth annotates the listing with the reported pricing issue;
// Amazon suppresses the offer until the issue clears.
func (a *Adapter) handlePricingHealth(ctx context.Context, event core.Event) (core.Outcome, error) {
	sku, err := shared.RequireString(event.Data, "sellerSku",
		"payload.sellerSku", "payload.merchantOffer.sellerSku", "sellerSku")
	if err != nil {
		return core.Outcome{}, err
	}
	state := core.ListingState{
		Marketplace: core.MarketplaceAmazon,
		OfferID:     sku,
		Status:      core.ListingStatusSuspended,
		Reason:      shared.OptionalString(event.Data, "payload.issueType", "issueType"),
		UpdatedAt:   event.ReceivedAt,
	}
	if err := a.deps.Store.UpsertListing(ctx, state); err != nil {
		return core.Outcome{}, core.NewDownstreamError("recording listing state", err, nil)
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "pricing health recorded"}, nil
}

func (a *Adapter) handleFeePromotion(ctx context.Context, event core.Event) (core.Outcome, error) {
	promotionID, err := shared.RequireString(event.Data, "feePromotionId",
		"payload.feePromotionType", "payload.promotionId", "feePromotionId")
	if err != nil {
		return core.Outcome{}, err
	}
	record := core.CampaignRecord{
		Marketplace:  core.MarketplaceAmazon,
		CampaignID:   promotionID,
		Name:         shared.OptionalString(event.Data, "payload.description", "description"),
		DiscountRate: shared.OptionalDecimal(event.Data, decimal.Zero, "payload.discountRate", "discountRate"),
		StartsAt:     shared.ParseTime(shared.OptionalString(event.Data, "payload.effectiveFromDate"), event.ReceivedAt),
		EndsAt:       shared.ParseTime(shared.OptionalString(event.Data, "payload.effectiveThroughDate"), event.ReceivedAt),
		CreatedAt:    event.ReceivedAt,
	}
	if err := a.deps.StartCampaign(ctx, record); err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "fee promotion recorded"}, nil
}
