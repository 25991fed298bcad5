package shared

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/shopspring/decimal"
)

// StateDeps bundles the collaborators handler functions mutate. Catalog is
// optional; without it changes are recorded locally and not propagated.
type StateDeps struct {
	Store   core.StateStore
	Catalog core.CatalogBridge
	Logger  core.Logger
}

// ApplyStock records the absolute stock value and propagates it to the host
// catalog when the offer maps to a local product. A propagation failure is a
// downstream error; the local history row is already written at that point.
func (d StateDeps) ApplyStock(ctx context.Context, marketplace core.Marketplace, offerID string, qty int64, reason string) error {
	if _, err := d.Store.SetStock(ctx, marketplace, offerID, qty, reason); err != nil {
		return core.NewDownstreamError("recording stock change", err, map[string]any{
			"marketplace": string(marketplace),
			"offer_id":    offerID,
		})
	}
	return d.PropagateStock(ctx, marketplace, offerID, qty)
}

// ApplyPrice records the absolute price and propagates it like ApplyStock.
func (d StateDeps) ApplyPrice(ctx context.Context, marketplace core.Marketplace, offerID string, price decimal.Decimal, reason string) error {
	if _, err := d.Store.SetPrice(ctx, marketplace, offerID, price, reason); err != nil {
		return core.NewDownstreamError("recording price change", err, map[string]any{
			"marketplace": string(marketplace),
			"offer_id":    offerID,
		})
	}
	if d.Catalog == nil {
		return nil
	}
	productID, found, err := d.Catalog.ResolveLocalProduct(ctx, marketplace, offerID)
	if err != nil {
		return core.NewDownstreamError("resolving local product", err, nil)
	}
	if !found {
		d.debug("offer has no local mapping", marketplace, offerID)
		return nil
	}
	if err := d.Catalog.SetPrice(ctx, productID, price); err != nil {
		return core.NewDownstreamError("propagating price to catalog", err, map[string]any{
			"product_id": productID,
		})
	}
	return nil
}

// PropagateStock pushes an already-recorded stock level to the host catalog.
// Callers that commit local state first use it to keep a failed catalog push
// from re-running the local mutation.
func (d StateDeps) PropagateStock(ctx context.Context, marketplace core.Marketplace, offerID string, qty int64) error {
	if d.Catalog == nil {
		return nil
	}
	productID, found, err := d.Catalog.ResolveLocalProduct(ctx, marketplace, offerID)
	if err != nil {
		return core.NewDownstreamError("resolving local product", err, nil)
	}
	if !found {
		d.debug("offer has no local mapping", marketplace, offerID)
		return nil
	}
	if err := d.Catalog.SetStock(ctx, productID, qty); err != nil {
		return core.NewDownstreamError("propagating stock to catalog", err, map[string]any{
			"product_id": productID,
		})
	}
	return nil
}

func (d StateDeps) debug(msg string, marketplace core.Marketplace, offerID string) {
	if d.Logger == nil {
		return
	}
	d.Logger.Debug(msg, "marketplace", string(marketplace), "offer_id", offerID)
}

// UpsertOrderStatus applies a status change, creating a minimal order row
// when the status event arrives before the creation event. Last write wins.
func UpsertOrderStatus(
	ctx context.Context,
	store core.OrderStore,
	marketplace core.Marketplace,
	orderID string,
	rawStatus string,
	now time.Time,
) error {
	status := core.CanonicalOrderStatus(rawStatus)
	err := store.UpdateOrderStatus(ctx, marketplace, orderID, status, rawStatus)
	if errors.Is(err, core.ErrOrderNotFound) {
		_, _, err = store.CreateOrder(ctx, core.MarketplaceOrder{
			Marketplace:        marketplace,
			MarketplaceOrderID: orderID,
			Status:             status,
			RawStatus:          rawStatus,
			CreatedAt:          now,
		})
	}
	if err != nil {
		return core.NewDownstreamError("applying order status", err, map[string]any{
			"marketplace": string(marketplace),
			"order_id":    orderID,
			"status":      rawStatus,
		})
	}
	return nil
}

// StartCampaign stores the campaign with its absolute derived price and,
// when the campaign targets a specific offer, applies that price. Storing
// the derived value instead of the rate keeps a redelivered campaign event
// from compounding the discount.
func (d StateDeps) StartCampaign(ctx context.Context, record core.CampaignRecord) error {
	if record.BasePrice.IsZero() {
		// A redelivery must derive from the base recorded the first time,
		// not from the current price, which already carries the discount.
		existing, err := d.Store.GetCampaign(ctx, record.Marketplace, record.CampaignID)
		if err == nil && !existing.BasePrice.IsZero() {
			record.BasePrice = existing.BasePrice
		}
	}
	if record.OfferID != "" && record.BasePrice.IsZero() {
		current, err := d.Store.CurrentPrice(ctx, record.Marketplace, record.OfferID)
		if err == nil {
			record.BasePrice = current
		}
	}
	record.CampaignPrice = core.CampaignPrice(record.BasePrice, record.DiscountRate)
	if record.Status == "" {
		record.Status = "active"
	}
	if _, err := d.Store.UpsertCampaign(ctx, record); err != nil {
		return core.NewDownstreamError("recording campaign", err, map[string]any{
			"marketplace": string(record.Marketplace),
			"campaign_id": record.CampaignID,
		})
	}
	if record.OfferID == "" || record.BasePrice.IsZero() {
		return nil
	}
	return d.ApplyPrice(ctx, record.Marketplace, record.OfferID, record.CampaignPrice, "campaign "+record.CampaignID)
}

// EndCampaign marks the campaign ended and restores the base price when one
// was recorded for a specific offer.
func (d StateDeps) EndCampaign(ctx context.Context, marketplace core.Marketplace, campaignID, offerID string, basePrice decimal.Decimal) error {
	if err := d.Store.EndCampaign(ctx, marketplace, campaignID); err != nil {
		return core.NewDownstreamError("ending campaign", err, map[string]any{
			"marketplace": string(marketplace),
			"campaign_id": campaignID,
		})
	}
	if offerID == "" || basePrice.IsZero() {
		return nil
	}
	return d.ApplyPrice(ctx, marketplace, offerID, basePrice, "campaign "+campaignID+" ended")
}

// FetchAndCreateOrder pulls full order details from the marketplace API and
// creates the order row. All-or-nothing: if the fetch fails no partial row
// is written and the caller gets a retryable downstream error.
func FetchAndCreateOrder(
	ctx context.Context,
	client core.APIClient,
	store core.OrderStore,
	marketplace core.Marketplace,
	orderID string,
	timeout time.Duration,
	now time.Time,
) (core.MarketplaceOrder, bool, error) {
	if client == nil {
		return core.MarketplaceOrder{}, false, core.NewDownstreamError(
			"order detail fetch is not configured",
			nil,
			map[string]any{"marketplace": string(marketplace), "order_id": orderID},
		)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	details, err := client.GetOrderDetails(fetchCtx, orderID)
	if err != nil {
		return core.MarketplaceOrder{}, false, core.NewDownstreamError(
			"fetching order details",
			err,
			map[string]any{"marketplace": string(marketplace), "order_id": orderID},
		)
	}
	order := core.MarketplaceOrder{
		Marketplace:        marketplace,
		MarketplaceOrderID: orderID,
		Status:             core.CanonicalOrderStatus(details.Status),
		RawStatus:          details.Status,
		Total:              details.Total,
		Currency:           details.Currency,
		Lines:              details.Lines,
		CreatedAt:          now,
	}
	if !details.CreatedAt.IsZero() {
		order.CreatedAt = details.CreatedAt
	}
	return store.CreateOrder(ctx, order)
}
