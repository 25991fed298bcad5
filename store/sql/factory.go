package sqlstore

import (
	"context"
	"fmt"

	"github.com/goliatone/go-marketsync/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the SQL-backed store set and exposes it both
// facet by facet and as an aggregate core.StateStore.
type RepositoryFactory struct {
	db *bun.DB

	orderStore     *OrderStore
	inventoryStore *InventoryStore
	listingStore   *ListingStore
	caseStore      *CaseStore
	feedbackStore  *FeedbackStore
	campaignStore  *CampaignStore
	mappingStore   *MappingStore
	deliveryStore  *DeliveryClaimStore
	eventLogStore  *EventLogStore
	statStore      *StatStore

	mappings core.MappingStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.orderStore != nil && f.eventLogStore != nil {
		return nil
	}
	return f.initStores()
}

// WithMappingCache wraps mapping resolution in a read-through cache.
// Call after BuildStores.
func (f *RepositoryFactory) WithMappingCache(cacheService repositorycache.CacheService) error {
	if f == nil || f.mappingStore == nil {
		return fmt.Errorf("sqlstore: factory stores are not built")
	}
	cached, err := NewCachedMappingStore(f.mappingStore, cacheService)
	if err != nil {
		return err
	}
	f.mappings = cached
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) OrderStore() *OrderStore {
	if f == nil {
		return nil
	}
	return f.orderStore
}

func (f *RepositoryFactory) InventoryStore() *InventoryStore {
	if f == nil {
		return nil
	}
	return f.inventoryStore
}

func (f *RepositoryFactory) ListingStore() *ListingStore {
	if f == nil {
		return nil
	}
	return f.listingStore
}

func (f *RepositoryFactory) CaseStore() *CaseStore {
	if f == nil {
		return nil
	}
	return f.caseStore
}

func (f *RepositoryFactory) FeedbackStore() *FeedbackStore {
	if f == nil {
		return nil
	}
	return f.feedbackStore
}

func (f *RepositoryFactory) CampaignStore() *CampaignStore {
	if f == nil {
		return nil
	}
	return f.campaignStore
}

func (f *RepositoryFactory) MappingStore() *MappingStore {
	if f == nil {
		return nil
	}
	return f.mappingStore
}

func (f *RepositoryFactory) DeliveryStore() *DeliveryClaimStore {
	if f == nil {
		return nil
	}
	return f.deliveryStore
}

func (f *RepositoryFactory) EventLog() core.EventLog {
	if f == nil {
		return nil
	}
	return f.eventLogStore
}

func (f *RepositoryFactory) StatsRecorder() core.StatsRecorder {
	if f == nil {
		return nil
	}
	return f.statStore
}

// StateStore returns the aggregate storage surface adapters consume.
func (f *RepositoryFactory) StateStore() core.StateStore {
	if f == nil || f.orderStore == nil {
		return nil
	}
	mappings := f.mappings
	if mappings == nil {
		mappings = f.mappingStore
	}
	return &compositeStateStore{
		OrderStore:         f.orderStore,
		InventoryStore:     f.inventoryStore,
		ListingStore:       f.listingStore,
		CaseStore:          f.caseStore,
		FeedbackStore:      f.feedbackStore,
		CampaignStore:      f.campaignStore,
		DeliveryClaimStore: f.deliveryStore,
		mappings:           mappings,
	}
}

type compositeStateStore struct {
	*OrderStore
	*InventoryStore
	*ListingStore
	*CaseStore
	*FeedbackStore
	*CampaignStore
	*DeliveryClaimStore
	mappings core.MappingStore
}

var _ core.StateStore = (*compositeStateStore)(nil)

func (s *compositeStateStore) ResolveMapping(ctx context.Context, marketplace core.Marketplace, offerID string) (core.ProductMapping, error) {
	if s == nil || s.mappings == nil {
		return core.ProductMapping{}, fmt.Errorf("sqlstore: mapping store is not configured")
	}
	return s.mappings.ResolveMapping(ctx, marketplace, offerID)
}

func (f *RepositoryFactory) initStores() error {
	orderStore, err := NewOrderStore(f.db)
	if err != nil {
		return err
	}
	f.orderStore = orderStore
	inventoryStore, err := NewInventoryStore(f.db)
	if err != nil {
		return err
	}
	f.inventoryStore = inventoryStore
	listingStore, err := NewListingStore(f.db)
	if err != nil {
		return err
	}
	f.listingStore = listingStore
	caseStore, err := NewCaseStore(f.db)
	if err != nil {
		return err
	}
	f.caseStore = caseStore
	feedbackStore, err := NewFeedbackStore(f.db)
	if err != nil {
		return err
	}
	f.feedbackStore = feedbackStore
	campaignStore, err := NewCampaignStore(f.db)
	if err != nil {
		return err
	}
	f.campaignStore = campaignStore
	mappingStore, err := NewMappingStore(f.db)
	if err != nil {
		return err
	}
	f.mappingStore = mappingStore
	deliveryStore, err := NewDeliveryClaimStore(f.db)
	if err != nil {
		return err
	}
	f.deliveryStore = deliveryStore
	eventLogStore, err := NewEventLogStore(f.db)
	if err != nil {
		return err
	}
	f.eventLogStore = eventLogStore
	statStore, err := NewStatStore(f.db)
	if err != nil {
		return err
	}
	f.statStore = statStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
