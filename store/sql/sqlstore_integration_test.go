package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/goliatone/go-marketsync/core"
	marketmigrations "github.com/goliatone/go-marketsync/migrations"
	sqlstore "github.com/goliatone/go-marketsync/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-marketsync-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:marketsync-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = marketmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != marketmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, marketmigrations.WithValidationTargets(marketmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("build stores: %v", err)
	}
	return factory, cleanup
}

func TestOpen_SQLiteRoundTrip(t *testing.T) {
	dsn := fmt.Sprintf("file:open-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := sqlstore.Open(sqlstore.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	filesystems, err := marketmigrations.Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	for _, entry := range filesystems {
		if entry.Dialect != marketmigrations.DialectSQLite {
			continue
		}
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob: %v", globErr)
		}
		for _, name := range matches {
			content, readErr := fs.ReadFile(entry.FS, name)
			if readErr != nil {
				t.Fatalf("read %s: %v", name, readErr)
			}
			if _, execErr := db.Exec(string(content)); execErr != nil {
				t.Fatalf("apply %s: %v", name, execErr)
			}
		}
	}

	factory, err := sqlstore.NewRepositoryFactoryFromDB(db)
	if err != nil {
		t.Fatalf("factory from db: %v", err)
	}
	if _, err := factory.InventoryStore().SetStock(context.Background(), "ozon", "OZ-1", 3, "seed"); err != nil {
		t.Fatalf("set stock: %v", err)
	}

	if _, err := sqlstore.Open("mysql", "dsn"); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"market_orders",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "market_orders" {
		t.Fatalf("expected market_orders table, got %q", tableName)
	}
}

func TestOrderStore_CreateIsIdempotentPerMarketplaceOrder(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()
	store := factory.OrderStore()

	first, deduped, err := store.CreateOrder(ctx, core.MarketplaceOrder{
		Marketplace:        "ozon",
		MarketplaceOrderID: "ORD-100",
		Status:             core.OrderStatusCreated,
		Total:              decimal.RequireFromString("149.90"),
		Currency:           "TRY",
		Lines: []core.OrderLine{
			{OfferID: "OZ-1", Quantity: 2, UnitPrice: decimal.RequireFromString("74.95")},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if deduped {
		t.Fatal("first create must not dedupe")
	}
	if first.ID == "" {
		t.Fatal("expected generated order id")
	}

	second, deduped, err := store.CreateOrder(ctx, core.MarketplaceOrder{
		Marketplace:        "ozon",
		MarketplaceOrderID: "ORD-100",
		Status:             core.OrderStatusCreated,
		Total:              decimal.RequireFromString("999.00"),
	})
	if err != nil {
		t.Fatalf("redelivered create: %v", err)
	}
	if !deduped {
		t.Fatal("expected redelivery to dedupe")
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing row back, got %s want %s", second.ID, first.ID)
	}
	if !second.Total.Equal(first.Total) {
		t.Fatalf("redelivery must not overwrite total, got %s", second.Total)
	}
	if len(second.Lines) != 1 || second.Lines[0].Quantity != 2 {
		t.Fatalf("expected stored lines to survive round trip, got %+v", second.Lines)
	}

	fetched, err := store.GetOrder(ctx, "ozon", "ORD-100")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if fetched.ID != first.ID {
		t.Fatalf("expected stored row, got %s want %s", fetched.ID, first.ID)
	}
	if _, err := store.GetOrder(ctx, "ozon", "ORD-404"); !errors.Is(err, core.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderStore_UpdateStatusMissingOrder(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()

	err := factory.OrderStore().UpdateOrderStatus(context.Background(), "ozon", "missing", core.OrderStatusShipped, "delivering")
	if !errors.Is(err, core.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestInventoryStore_DecrementClampsAtZero(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()
	store := factory.InventoryStore()

	if _, err := store.SetStock(ctx, "ebay", "ITEM-1", 10, "initial"); err != nil {
		t.Fatalf("set stock: %v", err)
	}

	remaining, err := store.DecrementStock(ctx, "ebay", "ITEM-1", 3, "sale")
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if remaining != 7 {
		t.Fatalf("expected 7 remaining, got %d", remaining)
	}

	remaining, err = store.DecrementStock(ctx, "ebay", "ITEM-1", 100, "oversell")
	if err != nil {
		t.Fatalf("oversell decrement: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected clamp at zero, got %d", remaining)
	}

	history, err := store.History(ctx, "ebay", "ITEM-1", core.ChangeKindStock)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 stock change rows, got %d", len(history))
	}
}

func TestInventoryStore_PriceHistoryAndDefaults(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()
	store := factory.InventoryStore()

	stock, err := store.CurrentStock(ctx, "ozon", "unknown")
	if err != nil {
		t.Fatalf("current stock for unknown offer: %v", err)
	}
	if stock != 0 {
		t.Fatalf("expected zero default stock, got %d", stock)
	}

	if _, err := store.SetPrice(ctx, "ozon", "OZ-2", decimal.RequireFromString("42.50"), "price event"); err != nil {
		t.Fatalf("set price: %v", err)
	}
	price, err := store.CurrentPrice(ctx, "ozon", "OZ-2")
	if err != nil {
		t.Fatalf("current price: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("42.50")) {
		t.Fatalf("expected 42.50, got %s", price)
	}
}

func TestCaseStore_StatusBeforeOpenKeepsLateData(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()
	store := factory.CaseStore()

	if err := store.UpdateCaseStatus(ctx, "hepsiburada", core.CaseKindClaim, "CLAIM-5", "resolved"); err != nil {
		t.Fatalf("status before open: %v", err)
	}

	record, deduped, err := store.OpenCase(ctx, core.CaseRecord{
		Marketplace: "hepsiburada",
		Kind:        core.CaseKindClaim,
		CaseID:      "CLAIM-5",
		Reason:      "damaged item",
	})
	if err != nil {
		t.Fatalf("open after status: %v", err)
	}
	if !deduped {
		t.Fatal("expected open to dedupe against the late-created row")
	}
	if record.Status != "resolved" {
		t.Fatalf("expected resolved status to survive, got %q", record.Status)
	}
}

func TestFeedbackStore_SaveIsIdempotent(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()
	store := factory.FeedbackStore()

	first, deduped, err := store.SaveFeedback(ctx, core.FeedbackRecord{
		Marketplace: "ebay",
		FeedbackID:  "FB-1",
		Score:       5,
		Comment:     "great seller",
	})
	if err != nil {
		t.Fatalf("save feedback: %v", err)
	}
	if deduped {
		t.Fatal("first save must not dedupe")
	}

	second, deduped, err := store.SaveFeedback(ctx, core.FeedbackRecord{
		Marketplace: "ebay",
		FeedbackID:  "FB-1",
		Score:       1,
	})
	if err != nil {
		t.Fatalf("redelivered save: %v", err)
	}
	if !deduped {
		t.Fatal("expected redelivery to dedupe")
	}
	if second.ID != first.ID || second.Score != 5 {
		t.Fatalf("expected original feedback back, got %+v", second)
	}
}

func TestCampaignStore_UpsertAndEnd(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()
	store := factory.CampaignStore()

	record, err := store.UpsertCampaign(ctx, core.CampaignRecord{
		Marketplace:   "ozon",
		CampaignID:    "ACT-1",
		DiscountRate:  decimal.RequireFromString("25"),
		OfferID:       "OZ-1",
		BasePrice:     decimal.RequireFromString("200"),
		CampaignPrice: decimal.RequireFromString("150"),
	})
	if err != nil {
		t.Fatalf("upsert campaign: %v", err)
	}
	if record.Status != "active" {
		t.Fatalf("expected default active status, got %q", record.Status)
	}

	// redelivery recomputes the same absolute price
	record, err = store.UpsertCampaign(ctx, core.CampaignRecord{
		Marketplace:   "ozon",
		CampaignID:    "ACT-1",
		DiscountRate:  decimal.RequireFromString("25"),
		OfferID:       "OZ-1",
		BasePrice:     decimal.RequireFromString("200"),
		CampaignPrice: decimal.RequireFromString("150"),
	})
	if err != nil {
		t.Fatalf("redelivered upsert: %v", err)
	}
	if !record.CampaignPrice.Equal(decimal.RequireFromString("150")) {
		t.Fatalf("expected stable campaign price, got %s", record.CampaignPrice)
	}

	if err := store.EndCampaign(ctx, "ozon", "ACT-1"); err != nil {
		t.Fatalf("end campaign: %v", err)
	}
}

func TestCampaignStore_GetCampaign(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()
	store := factory.CampaignStore()

	if _, err := store.UpsertCampaign(ctx, core.CampaignRecord{
		Marketplace: "ozon",
		CampaignID:  "ACT-2",
		BasePrice:   decimal.RequireFromString("200"),
	}); err != nil {
		t.Fatalf("upsert campaign: %v", err)
	}

	record, err := store.GetCampaign(ctx, "ozon", "ACT-2")
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if !record.BasePrice.Equal(decimal.RequireFromString("200")) {
		t.Fatalf("expected base price 200, got %s", record.BasePrice)
	}

	if _, err := store.GetCampaign(ctx, "ozon", "ACT-404"); !errors.Is(err, core.ErrCampaignNotFound) {
		t.Fatalf("expected ErrCampaignNotFound, got %v", err)
	}
}

func TestDeliveryClaimStore_FirstWriterWins(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()
	store := factory.DeliveryStore()

	claimed, err := store.ClaimDelivery(ctx, "ebay", "sale:27669042001")
	if err != nil || !claimed {
		t.Fatalf("first claim: claimed=%v err=%v", claimed, err)
	}
	claimed, err = store.ClaimDelivery(ctx, "ebay", "sale:27669042001")
	if err != nil || claimed {
		t.Fatalf("duplicate claim must lose: claimed=%v err=%v", claimed, err)
	}

	if err := store.ReleaseDelivery(ctx, "ebay", "sale:27669042001"); err != nil {
		t.Fatalf("release: %v", err)
	}
	claimed, err = store.ClaimDelivery(ctx, "ebay", "sale:27669042001")
	if err != nil || !claimed {
		t.Fatalf("claim after release: claimed=%v err=%v", claimed, err)
	}
}

func TestMappingStore_ResolveMissing(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()
	store := factory.MappingStore()

	if _, err := store.ResolveMapping(ctx, "ozon", "missing"); !errors.Is(err, core.ErrMappingNotFound) {
		t.Fatalf("expected ErrMappingNotFound, got %v", err)
	}

	if err := store.AddMapping(ctx, core.ProductMapping{
		Marketplace:    "ozon",
		OfferID:        "OZ-1",
		LocalProductID: "prod-9",
	}); err != nil {
		t.Fatalf("add mapping: %v", err)
	}
	mapping, err := store.ResolveMapping(ctx, "ozon", "OZ-1")
	if err != nil {
		t.Fatalf("resolve mapping: %v", err)
	}
	if mapping.LocalProductID != "prod-9" {
		t.Fatalf("expected prod-9, got %q", mapping.LocalProductID)
	}
}

func TestEventLogStore_TerminalStatusIsImmutable(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()
	log := factory.EventLog()

	event, err := log.Append(ctx, core.WebhookEvent{
		Marketplace: "pazarama",
		EventType:   "order_created",
		RawPayload:  []byte(`{"event_type":"order_created"}`),
		Status:      core.EventStatusVerified,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := log.MarkStatus(ctx, event.ID, core.EventStatusProcessed, ""); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if err := log.MarkStatus(ctx, event.ID, core.EventStatusFailed, "late failure"); !errors.Is(err, core.ErrEventImmutable) {
		t.Fatalf("expected ErrEventImmutable, got %v", err)
	}

	stored, err := log.Get(ctx, event.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != core.EventStatusProcessed {
		t.Fatalf("expected processed status, got %q", stored.Status)
	}
	if _, err := log.Get(ctx, "no-such-event"); !errors.Is(err, core.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestEventLogStore_QueryFilters(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()
	log := factory.EventLog()

	base := time.Now().UTC().Add(-time.Hour)
	for i, eventType := range []string{"order_created", "order_created", "inventory_updated"} {
		if _, err := log.Append(ctx, core.WebhookEvent{
			Marketplace: "pazarama",
			EventType:   eventType,
			Status:      core.EventStatusProcessed,
			ReceivedAt:  base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if _, err := log.Append(ctx, core.WebhookEvent{
		Marketplace: "ozon",
		EventType:   "order.new",
		Status:      core.EventStatusFailed,
		ReceivedAt:  base,
	}); err != nil {
		t.Fatalf("append ozon: %v", err)
	}

	events, err := log.Query(ctx, core.EventQuery{
		Marketplace: "pazarama",
		EventType:   "order_created",
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if !events[0].ReceivedAt.Before(events[1].ReceivedAt) {
		t.Fatal("expected receipt-order results")
	}

	failed, err := log.Query(ctx, core.EventQuery{
		Statuses: []core.EventStatus{core.EventStatusFailed},
		Limit:    10,
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(failed) != 1 || failed[0].Marketplace != "ozon" {
		t.Fatalf("expected the ozon failure, got %+v", failed)
	}
}

func TestStatStore_IncrementAccumulatesWithinWindow(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()
	stats := factory.StatsRecorder()

	for i := 0; i < 3; i++ {
		if err := stats.Increment(ctx, "ozon", "order.new", "success"); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	if err := stats.Increment(ctx, "ozon", "order.new", "failed"); err != nil {
		t.Fatalf("increment failed bucket: %v", err)
	}

	snapshot, err := stats.Snapshot(ctx, "ozon", time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 stat rows, got %d", len(snapshot))
	}
	counts := map[string]int64{}
	for _, stat := range snapshot {
		counts[stat.Status] = stat.Count
	}
	if counts["success"] != 3 || counts["failed"] != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestStateStore_AggregateSatisfiesAdapterSurface(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()

	var state core.StateStore = factory.StateStore()
	if state == nil {
		t.Fatal("expected aggregate state store")
	}

	if err := factory.MappingStore().AddMapping(ctx, core.ProductMapping{
		Marketplace:    "ebay",
		OfferID:        "ITEM-1",
		LocalProductID: "prod-1",
	}); err != nil {
		t.Fatalf("add mapping: %v", err)
	}
	mapping, err := state.ResolveMapping(ctx, "ebay", "ITEM-1")
	if err != nil {
		t.Fatalf("resolve through aggregate: %v", err)
	}
	if mapping.LocalProductID != "prod-1" {
		t.Fatalf("expected prod-1, got %q", mapping.LocalProductID)
	}

	if _, err := state.SetStock(ctx, "ebay", "ITEM-1", 4, "seed"); err != nil {
		t.Fatalf("set stock through aggregate: %v", err)
	}
	if err := state.UpsertListing(ctx, core.ListingState{
		Marketplace: "ebay",
		OfferID:     "ITEM-1",
		Status:      core.ListingStatusActive,
	}); err != nil {
		t.Fatalf("upsert listing through aggregate: %v", err)
	}
	listing, err := state.GetListing(ctx, "ebay", "ITEM-1")
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if listing.Status != core.ListingStatusActive {
		t.Fatalf("expected active listing, got %q", listing.Status)
	}
}
