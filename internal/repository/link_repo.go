package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/leehj825/ResaleHubBackend/internal/model"
)

// ==================== 接口定义 ====================

// MarketplaceLinkRepository 发布状态仓储接口
// 核心约束：每个 (listing_id, marketplace) 只允许一条记录，任何写入都走 Upsert
type MarketplaceLinkRepository interface {
	// GetByPair 查状态行，找不到返回 gorm.ErrRecordNotFound
	GetByPair(ctx context.Context, listingID int64, marketplace string) (*model.MarketplaceLink, error)
	// Upsert 载入或新建状态行，应用 mutate 后持久化
	Upsert(ctx context.Context, listingID int64, marketplace string, mutate func(link *model.MarketplaceLink)) (*model.MarketplaceLink, error)
	// ListForListing 返回商品的全部状态行
	ListForListing(ctx context.Context, listingID int64) ([]model.MarketplaceLink, error)
	// DeleteByPair 显式断开（唯一的删除路径）
	DeleteByPair(ctx context.Context, listingID int64, marketplace string) error

	// Transaction 在一个事务中执行 fn，fn 返回错误则整体回滚（库存对账批次用）
	Transaction(ctx context.Context, fn func(txRepo MarketplaceLinkRepository) error) error
}

// ==================== 仓储实现 ====================

type linkRepo struct {
	db *gorm.DB
}

// NewMarketplaceLinkRepository 创建发布状态仓储
func NewMarketplaceLinkRepository(db *gorm.DB) MarketplaceLinkRepository {
	return &linkRepo{db: db}
}

func (r *linkRepo) GetByPair(ctx context.Context, listingID int64, marketplace string) (*model.MarketplaceLink, error) {
	var link model.MarketplaceLink
	if err := r.db.WithContext(ctx).
		Where("listing_id = ? AND marketplace = ?", listingID, marketplace).
		First(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *linkRepo) Upsert(ctx context.Context, listingID int64, marketplace string, mutate func(link *model.MarketplaceLink)) (*model.MarketplaceLink, error) {
	var link model.MarketplaceLink
	err := r.db.WithContext(ctx).
		Where("listing_id = ? AND marketplace = ?", listingID, marketplace).
		First(&link).Error
	if err == gorm.ErrRecordNotFound {
		link = model.MarketplaceLink{
			ListingID:   listingID,
			Marketplace: marketplace,
			Status:      model.LinkStatusPending,
		}
	} else if err != nil {
		return nil, err
	}

	mutate(&link)

	if err := r.db.WithContext(ctx).Save(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *linkRepo) ListForListing(ctx context.Context, listingID int64) ([]model.MarketplaceLink, error) {
	var links []model.MarketplaceLink
	err := r.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("id ASC").
		Find(&links).Error
	return links, err
}

func (r *linkRepo) DeleteByPair(ctx context.Context, listingID int64, marketplace string) error {
	// 物理删除：软删行会占用 (listing_id, marketplace) 唯一索引，挡住后续 Upsert
	return r.db.WithContext(ctx).
		Where("listing_id = ? AND marketplace = ?", listingID, marketplace).
		Unscoped().
		Delete(&model.MarketplaceLink{}).Error
}

func (r *linkRepo) Transaction(ctx context.Context, fn func(txRepo MarketplaceLinkRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&linkRepo{db: tx})
	})
}
