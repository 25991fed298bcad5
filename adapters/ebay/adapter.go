package ebay

import (
	"context"

	"github.com/goliatone/go-marketsync/adapters/shared"
	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/normalize"
	"github.com/goliatone/go-marketsync/signature"
	"github.com/shopspring/decimal"
)

// Adapter handles eBay Trading platform notifications: XML documents whose
// root element names the event. The Trading notification feed defines no
// signing scheme, so verification is a no-op.
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
	base := shared.NewBase(
		core.MarketplaceEbay,
		signature.NoopVerifier{},
		normalize.Normalizer{
			Marketplace:   core.MarketplaceEbay,
			TypePaths:     []string{"NotificationEventName"},
			XMLRootAsType: true,
		},
		logger,
	)
	a := &Adapter{
		Base: base,
		deps: shared.StateDeps{Store: store, Catalog: catalog, Logger: base.Logger()},
	}

	a.On("ItemSold", a.handleSale)
	a.On("FixedPriceTransaction", a.handleSale)
	a.On("BestOfferAccepted", a.handleSale)
	a.On("BestOfferPlaced", a.handleBestOfferPlaced)
	a.On("ItemListed", a.listingHandler(core.ListingStatusActive))
	a.On("ItemRevised", a.handleItemRevised)
	a.On("ItemEnded", a.listingHandler(core.ListingStatusEnded))
	a.On("ItemUnsold", a.listingHandler(core.ListingStatusEnded))
	a.On("ItemMarkedShipped", a.orderStatusHandler("shipped"))
	a.On("ItemMarkedPaid", a.orderStatusHandler("paid"))
	a.On("FeedbackLeft", a.handleFeedback)
	a.On("FeedbackReceived", a.handleFeedback)
	a.On("DisputeOpened", a.handleDisputeOpened)
	a.On("DisputeClosed", a.handleDisputeClosed)
	a.On("ReturnCreated", a.handleReturnCreated)
	a.On("ReturnClosed", a.handleReturnClosed)
	return a
}

// handleSale decrements stock by the purchased quantity, clamped at zero,
// and records an order row when the notification carries a transaction id.
// The transaction id doubles as a delivery claim, so a redelivered sale
// never decrements twice. Notifications without one have no delivery
// identity and apply on every dispatch.
func (a *Adapter) handleSale(ctx context.Context, event core.Event) (core.Outcome, error) {
	itemID, err := shared.RequireString(event.Data, "item_id", "Item.ItemID", "ItemID")
	if err != nil {
		return core.Outcome{}, err
	}
	qty := shared.OptionalInt(event.Data, 1, "Transaction.QuantityPurchased", "QuantityPurchased")
	if qty < 1 {
		qty = 1
	}

	orderID := shared.OptionalString(event.Data,
		"Transaction.OrderLineItemID", "Transaction.TransactionID", "OrderLineItemID")
	deliveryID := ""
	if orderID != "" {
		deliveryID = "sale:" + orderID
		claimed, err := a.deps.Store.ClaimDelivery(ctx, core.MarketplaceEbay, deliveryID)
		if err != nil {
			return core.Outcome{}, core.NewDownstreamError("claiming sale delivery", err, nil)
		}
		if !claimed {
			return core.Outcome{Status: core.OutcomeProcessed, Message: "duplicate sale delivery ignored"}, nil
		}

		// The order row goes in before the decrement so a failure here
		// leaves no state behind; the released claim lets the redelivery
		// retry from scratch.
		price := shared.OptionalDecimal(event.Data, decimal.Zero,
			"Transaction.TransactionPrice", "Transaction.AmountPaid")
		order := core.MarketplaceOrder{
			Marketplace:        core.MarketplaceEbay,
			MarketplaceOrderID: orderID,
			Status:             core.OrderStatusCreated,
			RawStatus:          event.Type,
			Total:              price.Mul(decimal.NewFromInt(qty)),
			Currency:           shared.OptionalString(event.Data, "Transaction.TransactionPrice.@currencyID"),
			Lines: []core.OrderLine{{
				OfferID:   itemID,
				Quantity:  int(qty),
				UnitPrice: price,
			}},
			CreatedAt: event.ReceivedAt,
		}
		if _, _, err := a.deps.Store.CreateOrder(ctx, order); err != nil {
			a.releaseClaim(ctx, deliveryID)
			return core.Outcome{}, core.NewDownstreamError("recording sale order", err, nil)
		}
	}

	remaining, err := a.deps.Store.DecrementStock(ctx, core.MarketplaceEbay, itemID, qty, event.Type)
	if err != nil {
		if deliveryID != "" {
			a.releaseClaim(ctx, deliveryID)
		}
		return core.Outcome{}, core.NewDownstreamError("decrementing stock", err, map[string]any{
			"marketplace": string(core.MarketplaceEbay),
			"offer_id":    itemID,
		})
	}
	// The decrement committed; the claim stays even if the catalog push
	// fails, since re-running the handler would decrement again.
	if err := a.deps.PropagateStock(ctx, core.MarketplaceEbay, itemID, remaining); err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "sale applied"}, nil
}

func (a *Adapter) releaseClaim(ctx context.Context, deliveryID string) {
	if err := a.deps.Store.ReleaseDelivery(ctx, core.MarketplaceEbay, deliveryID); err != nil {
		a.Logger().Error("releasing sale delivery claim", "delivery_id", deliveryID, "error", err)
	}
}

// handleBestOfferPlaced only annotates the listing; stock moves when the
// offer is accepted.
func (a *Adapter) handleBestOfferPlaced(ctx context.Context, event core.Event) (core.Outcome, error) {
	itemID, err := shared.RequireString(event.Data, "item_id", "Item.ItemID", "ItemID")
	if err != nil {
		return core.Outcome{}, err
	}
	state := core.ListingState{
		Marketplace: core.MarketplaceEbay,
		OfferID:     itemID,
		Status:      core.ListingStatusActive,
		Title:       shared.OptionalString(event.Data, "Item.Title"),
		Reason:      "best offer placed",
		UpdatedAt:   event.ReceivedAt,
	}
	if err := a.deps.Store.UpsertListing(ctx, state); err != nil {
		return core.Outcome{}, core.NewDownstreamError("recording listing state", err, nil)
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "best offer noted"}, nil
}

func (a *Adapter) listingHandler(status core.ListingStatus) core.EventHandler {
	return func(ctx context.Context, event core.Event) (core.Outcome, error) {
		itemID, err := shared.RequireString(event.Data, "item_id", "Item.ItemID", "ItemID")
		if err != nil {
			return core.Outcome{}, err
		}
		state := core.ListingState{
			Marketplace: core.MarketplaceEbay,
			OfferID:     itemID,
			Status:      status,
			Title:       shared.OptionalString(event.Data, "Item.Title"),
			Reason:      shared.OptionalString(event.Data, "Item.EndingReason", "EndingReason"),
			UpdatedAt:   event.ReceivedAt,
		}
		if err := a.deps.Store.UpsertListing(ctx, state); err != nil {
			return core.Outcome{}, core.NewDownstreamError("recording listing state", err, nil)
		}
		return core.Outcome{Status: core.OutcomeProcessed, Message: "listing state applied"}, nil
	}
}

// handleItemRevised refreshes the listing and applies revised price or
// quantity when the revision carries them.
func (a *Adapter) handleItemRevised(ctx context.Context, event core.Event) (core.Outcome, error) {
	itemID, err := shared.RequireString(event.Data, "item_id", "Item.ItemID", "ItemID")
	if err != nil {
		return core.Outcome{}, err
	}
	state := core.ListingState{
		Marketplace: core.MarketplaceEbay,
		OfferID:     itemID,
		Status:      core.ListingStatusActive,
		Title:       shared.OptionalString(event.Data, "Item.Title"),
		UpdatedAt:   event.ReceivedAt,
	}
	if err := a.deps.Store.UpsertListing(ctx, state); err != nil {
		return core.Outcome{}, core.NewDownstreamError("recording listing state", err, nil)
	}
	if price, ok := normalize.ExtractDecimal(event.Data, "Item.StartPrice", "Item.BuyItNowPrice"); ok {
		if err := a.deps.ApplyPrice(ctx, core.MarketplaceEbay, itemID, price, event.Type); err != nil {
			return core.Outcome{}, err
		}
	}
	if qty, ok := normalize.ExtractInt(event.Data, "Item.Quantity"); ok {
		if qty < 0 {
			qty = 0
		}
		if err := a.deps.ApplyStock(ctx, core.MarketplaceEbay, itemID, qty, event.Type); err != nil {
			return core.Outcome{}, err
		}
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "revision applied"}, nil
}

func (a *Adapter) orderStatusHandler(rawStatus string) core.EventHandler {
	return func(ctx context.Context, event core.Event) (core.Outcome, error) {
		orderID, err := shared.RequireString(event.Data, "order_id",
			"Transaction.OrderLineItemID", "OrderLineItemID", "Transaction.TransactionID")
		if err != nil {
			return core.Outcome{}, err
		}
		if err := shared.UpsertOrderStatus(ctx, a.deps.Store, core.MarketplaceEbay, orderID, rawStatus, event.ReceivedAt); err != nil {
			return core.Outcome{}, err
		}
		return core.Outcome{Status: core.OutcomeProcessed, Message: "order status applied"}, nil
	}
}

func (a *Adapter) handleFeedback(ctx context.Context, event core.Event) (core.Outcome, error) {
	feedbackID, err := shared.RequireString(event.Data, "feedback_id",
		"FeedbackDetail.FeedbackID", "Feedback.FeedbackID", "FeedbackID")
	if err != nil {
		return core.Outcome{}, err
	}
	record := core.FeedbackRecord{
		Marketplace: core.MarketplaceEbay,
		FeedbackID:  feedbackID,
		OfferID:     shared.OptionalString(event.Data, "FeedbackDetail.ItemID", "Item.ItemID"),
		Score:       int(shared.OptionalInt(event.Data, 0, "FeedbackDetail.FeedbackScore", "FeedbackScore")),
		Comment:     shared.OptionalString(event.Data, "FeedbackDetail.CommentText", "CommentText"),
		ReceivedAt:  event.ReceivedAt,
	}
	if _, _, err := a.deps.Store.SaveFeedback(ctx, record); err != nil {
		return core.Outcome{}, core.NewDownstreamError("recording feedback", err, nil)
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "feedback recorded"}, nil
}

func (a *Adapter) handleDisputeOpened(ctx context.Context, event core.Event) (core.Outcome, error) {
	disputeID, err := shared.RequireString(event.Data, "dispute_id", "Dispute.DisputeID", "DisputeID")
	if err != nil {
		return core.Outcome{}, err
	}
	record := core.CaseRecord{
		Marketplace: core.MarketplaceEbay,
		Kind:        core.CaseKindDispute,
		CaseID:      disputeID,
		OrderID:     shared.OptionalString(event.Data, "Dispute.OrderLineItemID", "Dispute.TransactionID"),
		OfferID:     shared.OptionalString(event.Data, "Dispute.Item.ItemID", "Item.ItemID"),
		Reason:      shared.OptionalString(event.Data, "Dispute.DisputeReason", "DisputeReason"),
		Status:      "open",
		OpenedAt:    event.ReceivedAt,
	}
	if _, _, err := a.deps.Store.OpenCase(ctx, record); err != nil {
		return core.Outcome{}, core.NewDownstreamError("recording dispute", err, nil)
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "dispute recorded"}, nil
}

func (a *Adapter) handleDisputeClosed(ctx context.Context, event core.Event) (core.Outcome, error) {
	disputeID, err := shared.RequireString(event.Data, "dispute_id", "Dispute.DisputeID", "DisputeID")
	if err != nil {
		return core.Outcome{}, err
	}
	err = a.deps.Store.UpdateCaseStatus(ctx, core.MarketplaceEbay, core.CaseKindDispute, disputeID, "closed")
	if err != nil {
		return core.Outcome{}, core.NewDownstreamError("closing dispute", err, nil)
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "dispute closed"}, nil
}

func (a *Adapter) handleReturnCreated(ctx context.Context, event core.Event) (core.Outcome, error) {
	returnID, err := shared.RequireString(event.Data, "return_id", "Return.ReturnID", "ReturnID")
	if err != nil {
		return core.Outcome{}, err
	}
	record := core.CaseRecord{
		Marketplace: core.MarketplaceEbay,
		Kind:        core.CaseKindReturn,
		CaseID:      returnID,
		OrderID:     shared.OptionalString(event.Data, "Return.OrderLineItemID"),
		OfferID:     shared.OptionalString(event.Data, "Return.ItemID", "Item.ItemID"),
		Reason:      shared.OptionalString(event.Data, "Return.ReturnReason", "ReturnReason"),
		Status:      "open",
		OpenedAt:    event.ReceivedAt,
	}
	if _, _, err := a.deps.Store.OpenCase(ctx, record); err != nil {
		return core.Outcome{}, core.NewDownstreamError("recording return", err, nil)
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "return recorded"}, nil
}

func (a *Adapter) handleReturnClosed(ctx context.Context, event core.Event) (core.Outcome, error) {
	returnID, err := shared.RequireString(event.Data, "return_id", "Return.ReturnID", "ReturnID")
	if err != nil {
		return core.Outcome{}, err
	}
	err = a.deps.Store.UpdateCaseStatus(ctx, core.MarketplaceEbay, core.CaseKindReturn, returnID, "closed")
	if err != nil {
		return core.Outcome{}, core.NewDownstreamError("closing return", err, nil)
	}
	return core.Outcome{Status: core.OutcomeProcessed, Message: "return closed"}, nil
}
