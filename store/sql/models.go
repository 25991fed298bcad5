package sqlstore

import (
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type orderRecord struct {
	bun.BaseModel `bun:"table:market_orders,alias:mo"`

	ID                 string           `bun:"id,pk"`
	Marketplace        string           `bun:"marketplace,notnull"`
	MarketplaceOrderID string           `bun:"marketplace_order_id,notnull"`
	Status             string           `bun:"status,notnull"`
	RawStatus          string           `bun:"raw_status"`
	Total              string           `bun:"total,notnull"`
	Currency           string           `bun:"currency"`
	Lines              []orderLineEntry `bun:"lines,type:jsonb"`
	CreatedAt          time.Time        `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time        `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type orderLineEntry struct {
	OfferID   string `json:"offer_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

func newOrderRecord(order core.MarketplaceOrder, now time.Time) *orderRecord {
	lines := make([]orderLineEntry, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineEntry{
			OfferID:   line.OfferID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.String(),
		})
	}
	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &orderRecord{
		ID:                 order.ID,
		Marketplace:        string(order.Marketplace),
		MarketplaceOrderID: order.MarketplaceOrderID,
		Status:             string(order.Status),
		RawStatus:          order.RawStatus,
		Total:              order.Total.String(),
		Currency:           order.Currency,
		Lines:              lines,
		CreatedAt:          createdAt,
		UpdatedAt:          now,
	}
}

func (r *orderRecord) toDomain() core.MarketplaceOrder {
	if r == nil {
		return core.MarketplaceOrder{}
	}
	lines := make([]core.OrderLine, 0, len(r.Lines))
	for _, line := range r.Lines {
		lines = append(lines, core.OrderLine{
			OfferID:   line.OfferID,
			Quantity:  line.Quantity,
			UnitPrice: parseDecimal(line.UnitPrice),
		})
	}
	return core.MarketplaceOrder{
		ID:                 r.ID,
		Marketplace:        core.Marketplace(r.Marketplace),
		MarketplaceOrderID: r.MarketplaceOrderID,
		Status:             core.OrderStatus(r.Status),
		RawStatus:          r.RawStatus,
		Total:              parseDecimal(r.Total),
		Currency:           r.Currency,
		Lines:              lines,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

type inventoryLevelRecord struct {
	bun.BaseModel `bun:"table:market_inventory_levels,alias:mil"`

	ID          string    `bun:"id,pk"`
	Marketplace string    `bun:"marketplace,notnull"`
	OfferID     string    `bun:"offer_id,notnull"`
	Stock       int64     `bun:"stock,notnull"`
	Price       string    `bun:"price,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type changeRecord struct {
	bun.BaseModel `bun:"table:market_change_records,alias:mcr"`

	ID          string    `bun:"id,pk"`
	Marketplace string    `bun:"marketplace,notnull"`
	OfferID     string    `bun:"offer_id,notnull"`
	Kind        string    `bun:"kind,notnull"`
	OldValue    string    `bun:"old_value,notnull"`
	NewValue    string    `bun:"new_value,notnull"`
	Reason      string    `bun:"reason"`
	RecordedAt  time.Time `bun:"recorded_at,nullzero,notnull,default:current_timestamp"`
}

func (r *changeRecord) toDomain() core.ChangeRecord {
	if r == nil {
		return core.ChangeRecord{}
	}
	return core.ChangeRecord{
		ID:          r.ID,
		Marketplace: core.Marketplace(r.Marketplace),
		OfferID:     r.OfferID,
		Kind:        core.ChangeKind(r.Kind),
		OldValue:    parseDecimal(r.OldValue),
		NewValue:    parseDecimal(r.NewValue),
		Reason:      r.Reason,
		RecordedAt:  r.RecordedAt,
	}
}

type listingRecord struct {
	bun.BaseModel `bun:"table:market_listings,alias:mls"`

	ID          string    `bun:"id,pk"`
	Marketplace string    `bun:"marketplace,notnull"`
	OfferID     string    `bun:"offer_id,notnull"`
	Status      string    `bun:"status,notnull"`
	Title       string    `bun:"title"`
	Reason      string    `bun:"reason"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *listingRecord) toDomain() core.ListingState {
	if r == nil {
		return core.ListingState{}
	}
	return core.ListingState{
		Marketplace: core.Marketplace(r.Marketplace),
		OfferID:     r.OfferID,
		Status:      core.ListingStatus(r.Status),
		Title:       r.Title,
		Reason:      r.Reason,
		UpdatedAt:   r.UpdatedAt,
	}
}

type caseRecordRow struct {
	bun.BaseModel `bun:"table:market_cases,alias:mcs"`

	ID          string    `bun:"id,pk"`
	Marketplace string    `bun:"marketplace,notnull"`
	Kind        string    `bun:"kind,notnull"`
	CaseID      string    `bun:"case_id,notnull"`
	OrderID     string    `bun:"order_id"`
	OfferID     string    `bun:"offer_id"`
	Reason      string    `bun:"reason"`
	Status      string    `bun:"status,notnull"`
	OpenedAt    time.Time `bun:"opened_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *caseRecordRow) toDomain() core.CaseRecord {
	if r == nil {
		return core.CaseRecord{}
	}
	return core.CaseRecord{
		ID:          r.ID,
		Marketplace: core.Marketplace(r.Marketplace),
		Kind:        core.CaseKind(r.Kind),
		CaseID:      r.CaseID,
		OrderID:     r.OrderID,
		OfferID:     r.OfferID,
		Reason:      r.Reason,
		Status:      r.Status,
		OpenedAt:    r.OpenedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type feedbackRecordRow struct {
	bun.BaseModel `bun:"table:market_feedback,alias:mfb"`

	ID          string    `bun:"id,pk"`
	Marketplace string    `bun:"marketplace,notnull"`
	FeedbackID  string    `bun:"feedback_id,notnull"`
	OfferID     string    `bun:"offer_id"`
	Score       int       `bun:"score"`
	Comment     string    `bun:"comment"`
	ReceivedAt  time.Time `bun:"received_at,nullzero,notnull,default:current_timestamp"`
}

func (r *feedbackRecordRow) toDomain() core.FeedbackRecord {
	if r == nil {
		return core.FeedbackRecord{}
	}
	return core.FeedbackRecord{
		ID:          r.ID,
		Marketplace: core.Marketplace(r.Marketplace),
		FeedbackID:  r.FeedbackID,
		OfferID:     r.OfferID,
		Score:       r.Score,
		Comment:     r.Comment,
		ReceivedAt:  r.ReceivedAt,
	}
}

type campaignRecordRow struct {
	bun.BaseModel `bun:"table:market_campaigns,alias:mcp"`

	ID            string    `bun:"id,pk"`
	Marketplace   string    `bun:"marketplace,notnull"`
	CampaignID    string    `bun:"campaign_id,notnull"`
	Name          string    `bun:"name"`
	DiscountRate  string    `bun:"discount_rate,notnull"`
	OfferID       string    `bun:"offer_id"`
	BasePrice     string    `bun:"base_price,notnull"`
	CampaignPrice string    `bun:"campaign_price,notnull"`
	Status        string    `bun:"status,notnull"`
	StartsAt      time.Time `bun:"starts_at,nullzero"`
	EndsAt        time.Time `bun:"ends_at,nullzero"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r *campaignRecordRow) toDomain() core.CampaignRecord {
	if r == nil {
		return core.CampaignRecord{}
	}
	return core.CampaignRecord{
		ID:            r.ID,
		Marketplace:   core.Marketplace(r.Marketplace),
		CampaignID:    r.CampaignID,
		Name:          r.Name,
		DiscountRate:  parseDecimal(r.DiscountRate),
		OfferID:       r.OfferID,
		BasePrice:     parseDecimal(r.BasePrice),
		CampaignPrice: parseDecimal(r.CampaignPrice),
		Status:        r.Status,
		StartsAt:      r.StartsAt,
		EndsAt:        r.EndsAt,
		CreatedAt:     r.CreatedAt,
	}
}

type mappingRecord struct {
	bun.BaseModel `bun:"table:market_product_mappings,alias:mpm"`

	ID             string `bun:"id,pk"`
	Marketplace    string `bun:"marketplace,notnull"`
	OfferID        string `bun:"offer_id,notnull"`
	LocalProductID string `bun:"local_product_id,notnull"`
}

type webhookEventRecord struct {
	bun.BaseModel `bun:"table:market_webhook_events,alias:mwe"`

	ID          string    `bun:"id,pk"`
	Marketplace string    `bun:"marketplace,notnull"`
	EventType   string    `bun:"event_type"`
	RawPayload  []byte    `bun:"raw_payload"`
	Status      string    `bun:"status,notnull"`
	Error       string    `bun:"error"`
	ReceivedAt  time.Time `bun:"received_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *webhookEventRecord) toDomain() core.WebhookEvent {
	if r == nil {
		return core.WebhookEvent{}
	}
	return core.WebhookEvent{
		ID:          r.ID,
		Marketplace: core.Marketplace(r.Marketplace),
		EventType:   r.EventType,
		RawPayload:  append([]byte(nil), r.RawPayload...),
		Status:      core.EventStatus(r.Status),
		Error:       r.Error,
		ReceivedAt:  r.ReceivedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type deliveryClaimRecord struct {
	bun.BaseModel `bun:"table:market_delivery_claims,alias:mdc"`

	ID          string    `bun:"id,pk"`
	Marketplace string    `bun:"marketplace,notnull"`
	DeliveryID  string    `bun:"delivery_id,notnull"`
	ClaimedAt   time.Time `bun:"claimed_at,nullzero,notnull,default:current_timestamp"`
}

type notificationStatRecord struct {
	bun.BaseModel `bun:"table:market_notification_stats,alias:mns"`

	ID          string    `bun:"id,pk"`
	Marketplace string    `bun:"marketplace,notnull"`
	EventType   string    `bun:"event_type,notnull"`
	Status      string    `bun:"status,notnull"`
	Count       int64     `bun:"count,notnull"`
	WindowStart time.Time `bun:"window_start,notnull"`
}

func parseDecimal(value string) decimal.Decimal {
	if value == "" {
		return decimal.Zero
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return parsed
}
