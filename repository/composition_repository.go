package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"fermata/logger"
	"fermata/model"
	"fermata/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned when the target row does not exist.
var ErrNotFound = errors.New("record not found")

// CompositionRepository defines the metadata operations consumed by the
// moderation queue and the upload pipeline.
type CompositionRepository interface {
	// ListPendingCompositions returns every composition still awaiting a
	// moderation decision, annotated with composer names and usage counts.
	ListPendingCompositions(ctx context.Context) ([]model.CompositionSummary, error)
	// SetApproval sets one composition's approval state. nil means back to
	// pending.
	SetApproval(ctx context.Context, compositionID int64, approved *bool) error
	// SetApprovalMany applies the same transition to every id in a single
	// transaction: either all rows change or none do.
	SetApprovalMany(ctx context.Context, compositionIDs []int64, approved *bool) error
	// CreateUploadSlot issues a presigned write location for one upload
	// attempt, scoped to (composition, file name).
	CreateUploadSlot(ctx context.Context, compositionID int64, fileName, mediaType string) (*model.UploadSlot, error)
	// RecordAsset materializes the asset record after a confirmed transfer.
	RecordAsset(ctx context.Context, compositionID int64, name string, assetType model.AssetType, objectKey, url string) (*model.Asset, error)
	// FindAssetBySlot returns the asset occupying (composition, type), or
	// ErrNotFound when the slot is empty.
	FindAssetBySlot(ctx context.Context, compositionID int64, assetType model.AssetType) (*model.Asset, error)
	// DeleteAsset removes the asset record and its underlying object.
	DeleteAsset(ctx context.Context, assetID int64) error
}

// gormCompositionRepository implements CompositionRepository for MySQL via GORM.
type gormCompositionRepository struct {
	db         *gorm.DB
	store      storage.AssetStore
	slotExpiry time.Duration
}

// NewGormCompositionRepository creates a new repository backed by db and store.
func NewGormCompositionRepository(db *gorm.DB, store storage.AssetStore, slotExpiry time.Duration) CompositionRepository {
	return &gormCompositionRepository{db: db, store: store, slotExpiry: slotExpiry}
}

func (r *gormCompositionRepository) ListPendingCompositions(ctx context.Context) ([]model.CompositionSummary, error) {
	var comps []model.Composition
	err := r.db.WithContext(ctx).
		Preload("Composers").
		Where("approved IS NULL").
		Order("id ASC").
		Find(&comps).Error
	if err != nil {
		return nil, repoErr("ListPendingCompositions", err)
	}

	ids := make([]int64, 0, len(comps))
	for _, c := range comps {
		ids = append(ids, c.ID)
	}

	listCounts, err := r.usageCounts(ctx, "list_compositions", ids)
	if err != nil {
		return nil, repoErr("ListPendingCompositions", err)
	}
	userCounts, err := r.usageCounts(ctx, "user_compositions", ids)
	if err != nil {
		return nil, repoErr("ListPendingCompositions", err)
	}

	summaries := make([]model.CompositionSummary, 0, len(comps))
	for _, c := range comps {
		names := make([]string, 0, len(c.Composers))
		for _, composer := range c.Composers {
			names = append(names, composer.Name)
		}
		summaries = append(summaries, model.CompositionSummary{
			ID:        c.ID,
			Name:      c.Name,
			Composers: names,
			ListCount: listCounts[c.ID],
			UserCount: userCounts[c.ID],
		})
	}
	return summaries, nil
}

// usageCounts counts join-table references per composition id.
func (r *gormCompositionRepository) usageCounts(ctx context.Context, table string, ids []int64) (map[int64]int64, error) {
	counts := make(map[int64]int64, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}

	type row struct {
		CompositionID int64
		N             int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Table(table).
		Select("composition_id, COUNT(*) AS n").
		Where("composition_id IN ?", ids).
		Group("composition_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", table, err)
	}
	for _, rw := range rows {
		counts[rw.CompositionID] = rw.N
	}
	return counts, nil
}

func (r *gormCompositionRepository) SetApproval(ctx context.Context, compositionID int64, approved *bool) error {
	return r.SetApprovalMany(ctx, []int64{compositionID}, approved)
}

// SetApprovalMany runs in one transaction and verifies every id exists before
// updating, so a batch either fully applies or fully fails. Re-applying the
// value a row already holds is a no-op success, which keeps undo idempotent.
func (r *gormCompositionRepository) SetApprovalMany(ctx context.Context, compositionIDs []int64, approved *bool) error {
	if len(compositionIDs) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var found int64
		if err := tx.Model(&model.Composition{}).
			Where("id IN ?", compositionIDs).
			Count(&found).Error; err != nil {
			return err
		}
		if found != int64(len(compositionIDs)) {
			return fmt.Errorf("expected %d compositions, found %d", len(compositionIDs), found)
		}

		return tx.Model(&model.Composition{}).
			Where("id IN ?", compositionIDs).
			Update("approved", approved).Error
	})
	if err != nil {
		return repoErr("SetApprovalMany", err)
	}
	return nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_\-\.]`)

// sanitizeFilename keeps object keys printable and bounded.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if len(name) > 100 {
		name = name[len(name)-100:]
	}
	if name == "" {
		name = "unnamed"
	}
	return name
}

func (r *gormCompositionRepository) CreateUploadSlot(ctx context.Context, compositionID int64, fileName, mediaType string) (*model.UploadSlot, error) {
	var comp model.Composition
	if err := r.db.WithContext(ctx).First(&comp, compositionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repoErr("CreateUploadSlot", ErrNotFound)
		}
		return nil, repoErr("CreateUploadSlot", err)
	}

	objectKey := fmt.Sprintf("compositions/%d/%s-%s",
		compositionID, uuid.NewString()[:8], sanitizeFilename(fileName))

	uploadURL, err := r.store.PresignPut(ctx, objectKey, r.slotExpiry)
	if err != nil {
		return nil, repoErr("CreateUploadSlot", err)
	}

	return &model.UploadSlot{
		UploadURL:  uploadURL,
		DurableURL: r.store.DurableURL(objectKey),
		ObjectKey:  objectKey,
		ExpiresAt:  time.Now().Add(r.slotExpiry),
	}, nil
}

func (r *gormCompositionRepository) RecordAsset(ctx context.Context, compositionID int64, name string, assetType model.AssetType, objectKey, url string) (*model.Asset, error) {
	asset := &model.Asset{
		CompositionID: compositionID,
		Type:          assetType,
		Name:          name,
		URL:           url,
		ObjectKey:     objectKey,
	}
	if err := r.db.WithContext(ctx).Create(asset).Error; err != nil {
		return nil, repoErr("RecordAsset", err)
	}
	logger.Info("Asset recorded",
		logger.Int64("assetId", asset.ID),
		logger.Int64("compositionId", compositionID),
		logger.String("type", string(assetType)))
	return asset, nil
}

func (r *gormCompositionRepository) FindAssetBySlot(ctx context.Context, compositionID int64, assetType model.AssetType) (*model.Asset, error) {
	var asset model.Asset
	err := r.db.WithContext(ctx).
		Where("composition_id = ? AND type = ?", compositionID, assetType).
		First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repoErr("FindAssetBySlot", ErrNotFound)
		}
		return nil, repoErr("FindAssetBySlot", err)
	}
	return &asset, nil
}

// DeleteAsset removes the record first, then the stored object. An object
// left behind by a failed removal is unreferenced and picked up by the GC
// sweep, the same path orphaned uploads take.
func (r *gormCompositionRepository) DeleteAsset(ctx context.Context, assetID int64) error {
	var asset model.Asset
	if err := r.db.WithContext(ctx).First(&asset, assetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repoErr("DeleteAsset", ErrNotFound)
		}
		return repoErr("DeleteAsset", err)
	}

	if err := r.db.WithContext(ctx).Delete(&model.Asset{}, assetID).Error; err != nil {
		return repoErr("DeleteAsset", err)
	}

	if err := r.store.Remove(ctx, asset.ObjectKey); err != nil {
		logger.Warn("Asset record deleted but object removal failed, leaving object for GC",
			logger.Int64("assetId", assetID),
			logger.String("objectKey", asset.ObjectKey),
			logger.ErrorField(err))
	}
	return nil
}
