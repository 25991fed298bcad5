package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/shopspring/decimal"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// WebhookRequest carries one raw marketplace delivery through the pipeline.
// Body and headers are treated as opaque until the adapter parses them.
type WebhookRequest struct {
	Marketplace string
	Headers     map[string]string
	ContentType string
	Body        []byte
	Metadata    map[string]any
	ReceivedAt  time.Time
}

// WebhookResult is the HTTP-ready outcome the entrypoint translates into a
// response status for the sending marketplace.
type WebhookResult struct {
	Accepted   bool
	StatusCode int
	EventID    string
	EventType  string
	Outcome    string
	Metadata   map[string]any
}

// Event is the parsed form of a delivery: the extracted event type plus the
// payload as a loose object graph. Handlers read only the fields they need.
type Event struct {
	Marketplace Marketplace
	Type        string
	Data        map[string]any
	ReceivedAt  time.Time
}

type OutcomeStatus string

const (
	OutcomeProcessed OutcomeStatus = "processed"
	OutcomeUnhandled OutcomeStatus = "unhandled"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome is the structured result of dispatching one event to a handler.
type Outcome struct {
	Status  OutcomeStatus
	Message string
	Err     error
}

func (o Outcome) Retryable() bool {
	return o.Status == OutcomeFailed && o.Err != nil
}

type EventHandler func(ctx context.Context, event Event) (Outcome, error)

// Adapter is the per-marketplace capability set. Concrete adapters compose a
// signature verifier, a payload normalizer and a handler table registered at
// construction time.
type Adapter interface {
	ID() Marketplace
	VerifySignature(ctx context.Context, req WebhookRequest) (bool, error)
	ParseEvent(req WebhookRequest) (Event, error)
	Handle(ctx context.Context, event Event) Outcome
	EventTypes() []string
}

type Registry interface {
	Register(adapter Adapter) error
	Resolve(name string) (Adapter, error)
	ListSupported() []string
}

// OrderStore applies idempotent order mutations. Create is an upsert by
// (marketplace, marketplace_order_id); a duplicate insert is a no-op success.
type OrderStore interface {
	CreateOrder(ctx context.Context, order MarketplaceOrder) (MarketplaceOrder, bool, error)
	GetOrder(ctx context.Context, marketplace Marketplace, orderID string) (MarketplaceOrder, error)
	UpdateOrderStatus(ctx context.Context, marketplace Marketplace, orderID string, status OrderStatus, rawStatus string) error
}

// InventoryStore holds current stock/price per offer plus the append-only
// change history. SetStock/SetPrice store the absolute value from the event;
// DecrementStock must clamp at zero inside a single atomic statement.
type InventoryStore interface {
	SetStock(ctx context.Context, marketplace Marketplace, offerID string, qty int64, reason string) (ChangeRecord, error)
	SetPrice(ctx context.Context, marketplace Marketplace, offerID string, price decimal.Decimal, reason string) (ChangeRecord, error)
	DecrementStock(ctx context.Context, marketplace Marketplace, offerID string, qty int64, reason string) (int64, error)
	CurrentStock(ctx context.Context, marketplace Marketplace, offerID string) (int64, error)
	CurrentPrice(ctx context.Context, marketplace Marketplace, offerID string) (decimal.Decimal, error)
	History(ctx context.Context, marketplace Marketplace, offerID string, kind ChangeKind) ([]ChangeRecord, error)
}

type ListingStore interface {
	UpsertListing(ctx context.Context, state ListingState) error
	GetListing(ctx context.Context, marketplace Marketplace, offerID string) (ListingState, error)
}

type CaseStore interface {
	OpenCase(ctx context.Context, record CaseRecord) (CaseRecord, bool, error)
	UpdateCaseStatus(ctx context.Context, marketplace Marketplace, kind CaseKind, caseID string, status string) error
}

type FeedbackStore interface {
	SaveFeedback(ctx context.Context, record FeedbackRecord) (FeedbackRecord, bool, error)
}

type CampaignStore interface {
	UpsertCampaign(ctx context.Context, record CampaignRecord) (CampaignRecord, error)
	GetCampaign(ctx context.Context, marketplace Marketplace, campaignID string) (CampaignRecord, error)
	EndCampaign(ctx context.Context, marketplace Marketplace, campaignID string) error
}

type MappingStore interface {
	ResolveMapping(ctx context.Context, marketplace Marketplace, offerID string) (ProductMapping, error)
}

// DeliveryStore dedupes deliveries whose handlers mutate non-idempotent
// state. ClaimDelivery is first-writer-wins per (marketplace, delivery_id);
// ReleaseDelivery gives the claim back when the handler failed before
// committing anything, so a redelivery can retry.
type DeliveryStore interface {
	ClaimDelivery(ctx context.Context, marketplace Marketplace, deliveryID string) (bool, error)
	ReleaseDelivery(ctx context.Context, marketplace Marketplace, deliveryID string) error
}

// EventLog persists the webhook envelope for audit and replay.
type EventLog interface {
	Append(ctx context.Context, event WebhookEvent) (WebhookEvent, error)
	MarkStatus(ctx context.Context, id string, status EventStatus, reason string) error
	Get(ctx context.Context, id string) (WebhookEvent, error)
	Query(ctx context.Context, q EventQuery) ([]WebhookEvent, error)
}

type EventQuery struct {
	Marketplace Marketplace
	EventType   string
	Statuses    []EventStatus
	Since       time.Time
	Until       time.Time
	Limit       int
}

// StatsRecorder increments per-(marketplace, event_type, status) counters.
// Recording failures must never change a handler outcome.
type StatsRecorder interface {
	Increment(ctx context.Context, marketplace Marketplace, eventType string, status string) error
	Snapshot(ctx context.Context, marketplace Marketplace, since time.Time) ([]NotificationStat, error)
}

// StateStore aggregates the storage facets an adapter needs.
type StateStore interface {
	OrderStore
	InventoryStore
	ListingStore
	CaseStore
	FeedbackStore
	CampaignStore
	MappingStore
	DeliveryStore
}

// CatalogBridge is the host catalog surface consumed by handlers that affect
// sellable inventory.
type CatalogBridge interface {
	ResolveLocalProduct(ctx context.Context, marketplace Marketplace, offerID string) (string, bool, error)
	SetStock(ctx context.Context, productID string, qty int64) error
	SetPrice(ctx context.Context, productID string, price decimal.Decimal) error
}

// APIClient fetches full order details when a webhook payload is partial.
// Implementations are external collaborators; calls must honor ctx deadlines.
type APIClient interface {
	GetOrderDetails(ctx context.Context, marketplaceOrderID string) (OrderDetails, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}
