package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidMarketplace     = errors.New("core: invalid marketplace")
	ErrInvalidEventStatus     = errors.New("core: invalid event status transition")
	ErrOrderNotFound          = errors.New("core: marketplace order not found")
	ErrCampaignNotFound       = errors.New("core: campaign not found")
	ErrMappingNotFound        = errors.New("core: product mapping not found")
	ErrEventNotFound          = errors.New("core: webhook event not found")
	ErrEventImmutable         = errors.New("core: webhook event is terminal")
	ErrUnsupportedMarketplace = errors.New("core: marketplace not registered")
)

type Marketplace string

const (
	MarketplaceEbay        Marketplace = "ebay"
	MarketplaceOzon        Marketplace = "ozon"
	MarketplaceHepsiburada Marketplace = "hepsiburada"
	MarketplacePazarama    Marketplace = "pazarama"
	MarketplaceAmazon      Marketplace = "amazon"
)

func ParseMarketplace(name string) (Marketplace, error) {
	switch Marketplace(strings.TrimSpace(strings.ToLower(name))) {
	case MarketplaceEbay:
		return MarketplaceEbay, nil
	case MarketplaceOzon:
		return MarketplaceOzon, nil
	case MarketplaceHepsiburada:
		return MarketplaceHepsiburada, nil
	case MarketplacePazarama:
		return MarketplacePazarama, nil
	case MarketplaceAmazon:
		return MarketplaceAmazon, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMarketplace, name)
	}
}

type EventStatus string

const (
	EventStatusReceived   EventStatus = "received"
	EventStatusVerified   EventStatus = "verified"
	EventStatusDispatched EventStatus = "dispatched"
	EventStatusProcessed  EventStatus = "processed"
	EventStatusFailed     EventStatus = "failed"
)

// WebhookEvent is the canonical envelope every marketplace notification is
// normalized into. Once the event reaches a terminal status it is retained
// unchanged for audit and replay.
type WebhookEvent struct {
	ID          string
	Marketplace Marketplace
	EventType   string
	RawPayload  []byte
	Status      EventStatus
	Error       string
	ReceivedAt  time.Time
	UpdatedAt   time.Time
}

func (e *WebhookEvent) TransitionTo(status EventStatus, reason string, now time.Time) error {
	if e == nil {
		return nil
	}
	if e.Status == EventStatusProcessed || e.Status == EventStatusFailed {
		return fmt.Errorf("%w: %s", ErrEventImmutable, e.Status)
	}
	if !eventTransitionAllowed(e.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidEventStatus, e.Status, status)
	}
	e.Status = status
	e.UpdatedAt = now
	if strings.TrimSpace(reason) != "" {
		e.Error = strings.TrimSpace(reason)
	}
	return nil
}

func eventTransitionAllowed(current, next EventStatus) bool {
	allowed := map[EventStatus]map[EventStatus]struct{}{
		EventStatusReceived: {
			EventStatusVerified:   {},
			EventStatusDispatched: {},
			EventStatusProcessed:  {},
			EventStatusFailed:     {},
		},
		EventStatusVerified: {
			EventStatusDispatched: {},
			EventStatusProcessed:  {},
			EventStatusFailed:     {},
		},
		EventStatusDispatched: {
			EventStatusProcessed: {},
			EventStatusFailed:    {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusReturned  OrderStatus = "returned"
	OrderStatusUnknown   OrderStatus = "unknown"
)

// CanonicalOrderStatus maps a marketplace-specific status string into the
// canonical set. Unrecognized statuses map to OrderStatusUnknown; the raw
// value is preserved on the order row.
func CanonicalOrderStatus(raw string) OrderStatus {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "new", "created", "awaiting_packaging", "open", "pending":
		return OrderStatusCreated
	case "paid", "payment_completed", "awaiting_deliver", "awaiting_delivery":
		return OrderStatusPaid
	case "shipped", "delivering", "in_transit":
		return OrderStatusShipped
	case "delivered", "completed":
		return OrderStatusDelivered
	case "cancelled", "canceled":
		return OrderStatusCancelled
	case "returned", "refunded":
		return OrderStatusReturned
	default:
		return OrderStatusUnknown
	}
}

type OrderLine struct {
	OfferID   string
	Quantity  int
	UnitPrice decimal.Decimal
}

// MarketplaceOrder is unique per (marketplace, marketplace_order_id) and is
// never physically deleted; cancellation is a status value.
type MarketplaceOrder struct {
	ID                 string
	Marketplace        Marketplace
	MarketplaceOrderID string
	Status             OrderStatus
	RawStatus          string
	Total              decimal.Decimal
	Currency           string
	Lines              []OrderLine
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ProductMapping resolves a marketplace offer to at most one local product.
// Mappings are created out-of-band and only read by this module.
type ProductMapping struct {
	Marketplace    Marketplace
	OfferID        string
	LocalProductID string
}

type ChangeKind string

const (
	ChangeKindStock ChangeKind = "stock"
	ChangeKindPrice ChangeKind = "price"
)

// ChangeRecord is one append-only stock or price history entry. Records are
// immutable once written; the current value is the latest record.
type ChangeRecord struct {
	ID          string
	Marketplace Marketplace
	OfferID     string
	Kind        ChangeKind
	OldValue    decimal.Decimal
	NewValue    decimal.Decimal
	Reason      string
	RecordedAt  time.Time
}

type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusInactive  ListingStatus = "inactive"
	ListingStatusEnded     ListingStatus = "ended"
	ListingStatusRejected  ListingStatus = "rejected"
	ListingStatusSuspended ListingStatus = "suspended"
)

type ListingState struct {
	Marketplace Marketplace
	OfferID     string
	Status      ListingStatus
	Title       string
	Reason      string
	UpdatedAt   time.Time
}

type CaseKind string

const (
	CaseKindDispute CaseKind = "dispute"
	CaseKindReturn  CaseKind = "return"
	CaseKindClaim   CaseKind = "claim"
)

// CaseRecord covers disputes, returns and claims, which share a lifecycle:
// opened with a reason, later closed or resolved.
type CaseRecord struct {
	ID          string
	Marketplace Marketplace
	Kind        CaseKind
	CaseID      string
	OrderID     string
	OfferID     string
	Reason      string
	Status      string
	OpenedAt    time.Time
	UpdatedAt   time.Time
}

type FeedbackRecord struct {
	ID          string
	Marketplace Marketplace
	FeedbackID  string
	OfferID     string
	Score       int
	Comment     string
	ReceivedAt  time.Time
}

// CampaignRecord stores a percentage campaign together with the absolute
// derived price so redelivery recomputes instead of compounding.
type CampaignRecord struct {
	ID            string
	Marketplace   Marketplace
	CampaignID    string
	Name          string
	DiscountRate  decimal.Decimal
	OfferID       string
	BasePrice     decimal.Decimal
	CampaignPrice decimal.Decimal
	Status        string
	StartsAt      time.Time
	EndsAt        time.Time
	CreatedAt     time.Time
}

const (
	StatSuccess   = "success"
	StatFailed    = "failed"
	StatUnhandled = "unhandled"
)

// NotificationStat is an increment-only counter bucketed by hour.
type NotificationStat struct {
	Marketplace Marketplace
	EventType   string
	Status      string
	Count       int64
	WindowStart time.Time
}

// StatWindow truncates a timestamp to the stat bucket boundary.
func StatWindow(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// OrderDetails is the shape returned by marketplace API clients when a
// webhook payload only carries an order identifier.
type OrderDetails struct {
	MarketplaceOrderID string
	Status             string
	Total              decimal.Decimal
	Currency           string
	Lines              []OrderLine
	CreatedAt          time.Time
}

// CampaignPrice derives the absolute discounted price from a base price and
// a percentage rate. The result is what gets stored; applying the same
// campaign event again yields the same value.
func CampaignPrice(base decimal.Decimal, rate decimal.Decimal) decimal.Decimal {
	if rate.IsNegative() || base.IsNegative() {
		return base
	}
	hundred := decimal.NewFromInt(100)
	if rate.GreaterThan(hundred) {
		rate = hundred
	}
	return base.Mul(hundred.Sub(rate)).Div(hundred).Round(2)
}
