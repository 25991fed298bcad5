package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ListingStore keeps the latest known listing state per offer.
type ListingStore struct {
	db *bun.DB
}

var _ core.ListingStore = (*ListingStore)(nil)

func NewListingStore(db *bun.DB) (*ListingStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &ListingStore{db: db}, nil
}

func (s *ListingStore) UpsertListing(ctx context.Context, state core.ListingState) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: listing store is not configured")
	}
	record := &listingRecord{
		ID:          uuid.NewString(),
		Marketplace: string(state.Marketplace),
		OfferID:     strings.TrimSpace(state.OfferID),
		Status:      string(state.Status),
		Title:       state.Title,
		Reason:      state.Reason,
		UpdatedAt:   state.UpdatedAt,
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (marketplace, offer_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("title = EXCLUDED.title").
		Set("reason = EXCLUDED.reason").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *ListingStore) GetListing(ctx context.Context, marketplace core.Marketplace, offerID string) (core.ListingState, error) {
	if s == nil || s.db == nil {
		return core.ListingState{}, fmt.Errorf("sqlstore: listing store is not configured")
	}
	record := &listingRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.marketplace = ?", string(marketplace)).
		Where("?TableAlias.offer_id = ?", strings.TrimSpace(offerID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.ListingState{}, fmt.Errorf("sqlstore: listing not found: %s/%s", marketplace, offerID)
		}
		return core.ListingState{}, err
	}
	return record.toDomain(), nil
}

// CaseStore persists disputes, returns and claims. OpenCase is idempotent
// per (marketplace, kind, case_id).
type CaseStore struct {
	db *bun.DB
}

var _ core.CaseStore = (*CaseStore)(nil)

func NewCaseStore(db *bun.DB) (*CaseStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &CaseStore{db: db}, nil
}

func (s *CaseStore) OpenCase(ctx context.Context, record core.CaseRecord) (core.CaseRecord, bool, error) {
	if s == nil || s.db == nil {
		return core.CaseRecord{}, false, fmt.Errorf("sqlstore: case store is not configured")
	}
	now := time.Now().UTC()
	row := &caseRecordRow{
		ID:          uuid.NewString(),
		Marketplace: string(record.Marketplace),
		Kind:        string(record.Kind),
		CaseID:      strings.TrimSpace(record.CaseID),
		OrderID:     record.OrderID,
		OfferID:     record.OfferID,
		Reason:      record.Reason,
		Status:      record.Status,
		OpenedAt:    record.OpenedAt,
		UpdatedAt:   now,
	}
	if row.Status == "" {
		row.Status = "open"
	}
	if row.OpenedAt.IsZero() {
		row.OpenedAt = now
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.getCase(ctx, record.Marketplace, record.Kind, record.CaseID)
			if getErr != nil {
				return core.CaseRecord{}, false, getErr
			}
			return existing.toDomain(), true, nil
		}
		return core.CaseRecord{}, false, err
	}
	return row.toDomain(), false, nil
}

func (s *CaseStore) UpdateCaseStatus(ctx context.Context, marketplace core.Marketplace, kind core.CaseKind, caseID string, status string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: case store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*caseRecordRow)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("marketplace = ?", string(marketplace)).
		Where("kind = ?", string(kind)).
		Where("case_id = ?", strings.TrimSpace(caseID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	// status arrived before the open event; keep the late data
	_, _, err = s.OpenCase(ctx, core.CaseRecord{
		Marketplace: marketplace,
		Kind:        kind,
		CaseID:      caseID,
		Status:      status,
	})
	return err
}

func (s *CaseStore) getCase(ctx context.Context, marketplace core.Marketplace, kind core.CaseKind, caseID string) (*caseRecordRow, error) {
	row := &caseRecordRow{}
	err := s.db.NewSelect().
		Model(row).
		Where("?TableAlias.marketplace = ?", string(marketplace)).
		Where("?TableAlias.kind = ?", string(kind)).
		Where("?TableAlias.case_id = ?", strings.TrimSpace(caseID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// FeedbackStore persists buyer feedback, idempotent per
// (marketplace, feedback_id).
type FeedbackStore struct {
	db *bun.DB
}

var _ core.FeedbackStore = (*FeedbackStore)(nil)

func NewFeedbackStore(db *bun.DB) (*FeedbackStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &FeedbackStore{db: db}, nil
}

func (s *FeedbackStore) SaveFeedback(ctx context.Context, record core.FeedbackRecord) (core.FeedbackRecord, bool, error) {
	if s == nil || s.db == nil {
		return core.FeedbackRecord{}, false, fmt.Errorf("sqlstore: feedback store is not configured")
	}
	row := &feedbackRecordRow{
		ID:          uuid.NewString(),
		Marketplace: string(record.Marketplace),
		FeedbackID:  strings.TrimSpace(record.FeedbackID),
		OfferID:     record.OfferID,
		Score:       record.Score,
		Comment:     record.Comment,
		ReceivedAt:  record.ReceivedAt,
	}
	if row.ReceivedAt.IsZero() {
		row.ReceivedAt = time.Now().UTC()
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing := &feedbackRecordRow{}
			getErr := s.db.NewSelect().
				Model(existing).
				Where("?TableAlias.marketplace = ?", string(record.Marketplace)).
				Where("?TableAlias.feedback_id = ?", strings.TrimSpace(record.FeedbackID)).
				Limit(1).
				Scan(ctx)
			if getErr != nil {
				return core.FeedbackRecord{}, false, getErr
			}
			return existing.toDomain(), true, nil
		}
		return core.FeedbackRecord{}, false, err
	}
	return row.toDomain(), false, nil
}

// CampaignStore keeps one row per campaign with the absolute derived price.
type CampaignStore struct {
	db *bun.DB
}

var _ core.CampaignStore = (*CampaignStore)(nil)

func NewCampaignStore(db *bun.DB) (*CampaignStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &CampaignStore{db: db}, nil
}

func (s *CampaignStore) UpsertCampaign(ctx context.Context, record core.CampaignRecord) (core.CampaignRecord, error) {
	if s == nil || s.db == nil {
		return core.CampaignRecord{}, fmt.Errorf("sqlstore: campaign store is not configured")
	}
	now := time.Now().UTC()
	row := &campaignRecordRow{
		ID:            uuid.NewString(),
		Marketplace:   string(record.Marketplace),
		CampaignID:    strings.TrimSpace(record.CampaignID),
		Name:          record.Name,
		DiscountRate:  record.DiscountRate.String(),
		OfferID:       record.OfferID,
		BasePrice:     record.BasePrice.String(),
		CampaignPrice: record.CampaignPrice.String(),
		Status:        record.Status,
		StartsAt:      record.StartsAt,
		EndsAt:        record.EndsAt,
		CreatedAt:     now,
	}
	if row.Status == "" {
		row.Status = "active"
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (marketplace, campaign_id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("discount_rate = EXCLUDED.discount_rate").
		Set("offer_id = EXCLUDED.offer_id").
		Set("base_price = EXCLUDED.base_price").
		Set("campaign_price = EXCLUDED.campaign_price").
		Set("status = EXCLUDED.status").
		Set("starts_at = EXCLUDED.starts_at").
		Set("ends_at = EXCLUDED.ends_at").
		Exec(ctx)
	if err != nil {
		return core.CampaignRecord{}, err
	}
	return row.toDomain(), nil
}

func (s *CampaignStore) GetCampaign(ctx context.Context, marketplace core.Marketplace, campaignID string) (core.CampaignRecord, error) {
	if s == nil || s.db == nil {
		return core.CampaignRecord{}, fmt.Errorf("sqlstore: campaign store is not configured")
	}
	row := &campaignRecordRow{}
	err := s.db.NewSelect().
		Model(row).
		Where("?TableAlias.marketplace = ?", string(marketplace)).
		Where("?TableAlias.campaign_id = ?", strings.TrimSpace(campaignID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.CampaignRecord{}, fmt.Errorf("%w: %s/%s", core.ErrCampaignNotFound, marketplace, campaignID)
		}
		return core.CampaignRecord{}, err
	}
	return row.toDomain(), nil
}

func (s *CampaignStore) EndCampaign(ctx context.Context, marketplace core.Marketplace, campaignID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: campaign store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model((*campaignRecordRow)(nil)).
		Set("status = ?", "ended").
		Where("marketplace = ?", string(marketplace)).
		Where("campaign_id = ?", strings.TrimSpace(campaignID)).
		Exec(ctx)
	return err
}

// MappingStore resolves marketplace offers to local products. Mappings are
// written out-of-band; this module only reads them.
type MappingStore struct {
	db *bun.DB
}

var _ core.MappingStore = (*MappingStore)(nil)

func NewMappingStore(db *bun.DB) (*MappingStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &MappingStore{db: db}, nil
}

func (s *MappingStore) ResolveMapping(ctx context.Context, marketplace core.Marketplace, offerID string) (core.ProductMapping, error) {
	if s == nil || s.db == nil {
		return core.ProductMapping{}, fmt.Errorf("sqlstore: mapping store is not configured")
	}
	record := &mappingRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.marketplace = ?", string(marketplace)).
		Where("?TableAlias.offer_id = ?", strings.TrimSpace(offerID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.ProductMapping{}, fmt.Errorf("%w: %s/%s", core.ErrMappingNotFound, marketplace, offerID)
		}
		return core.ProductMapping{}, err
	}
	return core.ProductMapping{
		Marketplace:    core.Marketplace(record.Marketplace),
		OfferID:        record.OfferID,
		LocalProductID: record.LocalProductID,
	}, nil
}

// AddMapping seeds a mapping row, used by integration tests and setup
// tooling.
func (s *MappingStore) AddMapping(ctx context.Context, mapping core.ProductMapping) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: mapping store is not configured")
	}
	record := &mappingRecord{
		ID:             uuid.NewString(),
		Marketplace:    string(mapping.Marketplace),
		OfferID:        strings.TrimSpace(mapping.OfferID),
		LocalProductID: strings.TrimSpace(mapping.LocalProductID),
	}
	_, err := s.db.NewInsert().Model(record).Exec(ctx)
	return err
}
