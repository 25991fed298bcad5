package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StateStore is the in-memory core.StateStore. It backs unit tests and
// local development; the SQL store is the durable implementation.
type StateStore struct {
	mu        sync.Mutex
	orders    map[string]core.MarketplaceOrder
	stock     map[string]int64
	prices    map[string]decimal.Decimal
	history   []core.ChangeRecord
	listings  map[string]core.ListingState
	cases     map[string]core.CaseRecord
	feedback  map[string]core.FeedbackRecord
	campaigns map[string]core.CampaignRecord
	mappings  map[string]core.ProductMapping
	claims    map[string]struct{}
	now       func() time.Time
}

var _ core.StateStore = (*StateStore)(nil)

func NewStateStore() *StateStore {
	return &StateStore{
		orders:    map[string]core.MarketplaceOrder{},
		stock:     map[string]int64{},
		prices:    map[string]decimal.Decimal{},
		listings:  map[string]core.ListingState{},
		cases:     map[string]core.CaseRecord{},
		feedback:  map[string]core.FeedbackRecord{},
		campaigns: map[string]core.CampaignRecord{},
		mappings:  map[string]core.ProductMapping{},
		claims:    map[string]struct{}{},
		now:       time.Now,
	}
}

func offerKey(marketplace core.Marketplace, offerID string) string {
	return string(marketplace) + "/" + offerID
}

func (s *StateStore) CreateOrder(_ context.Context, order core.MarketplaceOrder) (core.MarketplaceOrder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := offerKey(order.Marketplace, order.MarketplaceOrderID)
	if existing, ok := s.orders[key]; ok {
		return existing, true, nil
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now()
	}
	order.UpdatedAt = order.CreatedAt
	s.orders[key] = order
	return order, false, nil
}

func (s *StateStore) GetOrder(_ context.Context, marketplace core.Marketplace, orderID string) (core.MarketplaceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[offerKey(marketplace, orderID)]
	if !ok {
		return core.MarketplaceOrder{}, fmt.Errorf("%w: %s/%s", core.ErrOrderNotFound, marketplace, orderID)
	}
	return order, nil
}

func (s *StateStore) UpdateOrderStatus(_ context.Context, marketplace core.Marketplace, orderID string, status core.OrderStatus, rawStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := offerKey(marketplace, orderID)
	order, ok := s.orders[key]
	if !ok {
		return fmt.Errorf("%w: %s/%s", core.ErrOrderNotFound, marketplace, orderID)
	}
	order.Status = status
	order.RawStatus = rawStatus
	order.UpdatedAt = s.now()
	s.orders[key] = order
	return nil
}

func (s *StateStore) SetStock(_ context.Context, marketplace core.Marketplace, offerID string, qty int64, reason string) (core.ChangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := offerKey(marketplace, offerID)
	record := core.ChangeRecord{
		ID:          uuid.NewString(),
		Marketplace: marketplace,
		OfferID:     offerID,
		Kind:        core.ChangeKindStock,
		OldValue:    decimal.NewFromInt(s.stock[key]),
		NewValue:    decimal.NewFromInt(qty),
		Reason:      reason,
		RecordedAt:  s.now(),
	}
	s.stock[key] = qty
	s.history = append(s.history, record)
	return record, nil
}

func (s *StateStore) SetPrice(_ context.Context, marketplace core.Marketplace, offerID string, price decimal.Decimal, reason string) (core.ChangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := offerKey(marketplace, offerID)
	record := core.ChangeRecord{
		ID:          uuid.NewString(),
		Marketplace: marketplace,
		OfferID:     offerID,
		Kind:        core.ChangeKindPrice,
		OldValue:    s.prices[key],
		NewValue:    price,
		Reason:      reason,
		RecordedAt:  s.now(),
	}
	s.prices[key] = price
	s.history = append(s.history, record)
	return record, nil
}

func (s *StateStore) DecrementStock(_ context.Context, marketplace core.Marketplace, offerID string, qty int64, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := offerKey(marketplace, offerID)
	current := s.stock[key]
	remaining := current - qty
	if remaining < 0 {
		remaining = 0
	}
	s.history = append(s.history, core.ChangeRecord{
		ID:          uuid.NewString(),
		Marketplace: marketplace,
		OfferID:     offerID,
		Kind:        core.ChangeKindStock,
		OldValue:    decimal.NewFromInt(current),
		NewValue:    decimal.NewFromInt(remaining),
		Reason:      reason,
		RecordedAt:  s.now(),
	})
	s.stock[key] = remaining
	return remaining, nil
}

func (s *StateStore) CurrentStock(_ context.Context, marketplace core.Marketplace, offerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[offerKey(marketplace, offerID)], nil
}

func (s *StateStore) CurrentPrice(_ context.Context, marketplace core.Marketplace, offerID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prices[offerKey(marketplace, offerID)], nil
}

func (s *StateStore) History(_ context.Context, marketplace core.Marketplace, offerID string, kind core.ChangeKind) ([]core.ChangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.ChangeRecord
	for _, record := range s.history {
		if record.Marketplace == marketplace && record.OfferID == offerID && record.Kind == kind {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *StateStore) UpsertListing(_ context.Context, state core.ListingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[offerKey(state.Marketplace, state.OfferID)] = state
	return nil
}

func (s *StateStore) GetListing(_ context.Context, marketplace core.Marketplace, offerID string) (core.ListingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.listings[offerKey(marketplace, offerID)]
	if !ok {
		return core.ListingState{}, fmt.Errorf("memory: listing not found: %s/%s", marketplace, offerID)
	}
	return state, nil
}

func caseKey(marketplace core.Marketplace, kind core.CaseKind, caseID string) string {
	return string(marketplace) + "/" + string(kind) + "/" + caseID
}

func (s *StateStore) OpenCase(_ context.Context, record core.CaseRecord) (core.CaseRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := caseKey(record.Marketplace, record.Kind, record.CaseID)
	if existing, ok := s.cases[key]; ok {
		return existing, true, nil
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.OpenedAt.IsZero() {
		record.OpenedAt = s.now()
	}
	record.UpdatedAt = record.OpenedAt
	s.cases[key] = record
	return record, false, nil
}

func (s *StateStore) UpdateCaseStatus(_ context.Context, marketplace core.Marketplace, kind core.CaseKind, caseID string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := caseKey(marketplace, kind, caseID)
	record, ok := s.cases[key]
	if !ok {
		// status arrived before the open event; keep the late data
		record = core.CaseRecord{
			ID:          uuid.NewString(),
			Marketplace: marketplace,
			Kind:        kind,
			CaseID:      caseID,
			OpenedAt:    s.now(),
		}
	}
	record.Status = status
	record.UpdatedAt = s.now()
	s.cases[key] = record
	return nil
}

func (s *StateStore) SaveFeedback(_ context.Context, record core.FeedbackRecord) (core.FeedbackRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := offerKey(record.Marketplace, record.FeedbackID)
	if existing, ok := s.feedback[key]; ok {
		return existing, true, nil
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.ReceivedAt.IsZero() {
		record.ReceivedAt = s.now()
	}
	s.feedback[key] = record
	return record, false, nil
}

func (s *StateStore) UpsertCampaign(_ context.Context, record core.CampaignRecord) (core.CampaignRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := offerKey(record.Marketplace, record.CampaignID)
	if existing, ok := s.campaigns[key]; ok {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	s.campaigns[key] = record
	return record, nil
}

func (s *StateStore) GetCampaign(_ context.Context, marketplace core.Marketplace, campaignID string) (core.CampaignRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.campaigns[offerKey(marketplace, campaignID)]
	if !ok {
		return core.CampaignRecord{}, fmt.Errorf("%w: %s/%s", core.ErrCampaignNotFound, marketplace, campaignID)
	}
	return record, nil
}

func (s *StateStore) EndCampaign(_ context.Context, marketplace core.Marketplace, campaignID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := offerKey(marketplace, campaignID)
	record, ok := s.campaigns[key]
	if !ok {
		return nil
	}
	record.Status = "ended"
	s.campaigns[key] = record
	return nil
}

func (s *StateStore) ResolveMapping(_ context.Context, marketplace core.Marketplace, offerID string) (core.ProductMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mapping, ok := s.mappings[offerKey(marketplace, offerID)]
	if !ok {
		return core.ProductMapping{}, fmt.Errorf("%w: %s/%s", core.ErrMappingNotFound, marketplace, offerID)
	}
	return mapping, nil
}

func (s *StateStore) ClaimDelivery(_ context.Context, marketplace core.Marketplace, deliveryID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := offerKey(marketplace, deliveryID)
	if _, ok := s.claims[key]; ok {
		return false, nil
	}
	s.claims[key] = struct{}{}
	return true, nil
}

func (s *StateStore) ReleaseDelivery(_ context.Context, marketplace core.Marketplace, deliveryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, offerKey(marketplace, deliveryID))
	return nil
}

// AddMapping seeds an offer-to-product mapping for tests and local setups.
func (s *StateStore) AddMapping(mapping core.ProductMapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[offerKey(mapping.Marketplace, mapping.OfferID)] = mapping
}

// Campaign returns the stored campaign record, for assertions.
func (s *StateStore) Campaign(marketplace core.Marketplace, campaignID string) (core.CampaignRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.campaigns[offerKey(marketplace, campaignID)]
	return record, ok
}

// Case returns the stored case record, for assertions.
func (s *StateStore) Case(marketplace core.Marketplace, kind core.CaseKind, caseID string) (core.CaseRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.cases[caseKey(marketplace, kind, caseID)]
	return record, ok
}

// Catalog is an in-memory core.CatalogBridge keyed off a mapping store. It
// records the applied stock and price values for assertions.
type Catalog struct {
	mu       sync.Mutex
	mappings core.MappingStore
	Stocks   map[string]int64
	Prices   map[string]decimal.Decimal
	Err      error
}

var _ core.CatalogBridge = (*Catalog)(nil)

func NewCatalog(mappings core.MappingStore) *Catalog {
	return &Catalog{
		mappings: mappings,
		Stocks:   map[string]int64{},
		Prices:   map[string]decimal.Decimal{},
	}
}

func (c *Catalog) ResolveLocalProduct(ctx context.Context, marketplace core.Marketplace, offerID string) (string, bool, error) {
	if c.Err != nil {
		return "", false, c.Err
	}
	mapping, err := c.mappings.ResolveMapping(ctx, marketplace, offerID)
	if err != nil {
		return "", false, nil
	}
	return mapping.LocalProductID, true, nil
}

func (c *Catalog) SetStock(_ context.Context, productID string, qty int64) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Stocks[productID] = qty
	return nil
}

func (c *Catalog) SetPrice(_ context.Context, productID string, price decimal.Decimal) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Prices[productID] = price
	return nil
}
