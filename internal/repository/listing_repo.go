package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/leehj825/ResaleHubBackend/internal/model"
)

// ==================== 接口定义 ====================

// ListingRepository 商品仓储接口
// 商品的增删改由独立的 CRUD 服务负责，发布链路只消费这里的读取/回写能力
type ListingRepository interface {
	// GetOwnedByID 按 id+owner 查商品，找不到返回 gorm.ErrRecordNotFound
	GetOwnedByID(ctx context.Context, id, ownerID int64) (*model.Listing, error)
	// GetByOwnerAndSku 按 owner+sku 反查本地商品（库存对账用）
	GetByOwnerAndSku(ctx context.Context, ownerID int64, sku string) (*model.Listing, error)
	// UpdateSku 回写净化后的 SKU
	UpdateSku(ctx context.Context, id int64, sku string) error
	// ListImages 按 SortOrder 升序返回商品图片
	ListImages(ctx context.Context, listingID int64) ([]model.ListingImage, error)
}

// ==================== 仓储实现 ====================

type listingRepo struct {
	db *gorm.DB
}

// NewListingRepository 创建商品仓储
func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepo{db: db}
}

func (r *listingRepo) GetOwnedByID(ctx context.Context, id, ownerID int64) (*model.Listing, error) {
	var listing model.Listing
	if err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *listingRepo) GetByOwnerAndSku(ctx context.Context, ownerID int64, sku string) (*model.Listing, error) {
	var listing model.Listing
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND sku = ?", ownerID, sku).
		First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *listingRepo) UpdateSku(ctx context.Context, id int64, sku string) error {
	return r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("id = ?", id).
		Update("sku", sku).Error
}

func (r *listingRepo) ListImages(ctx context.Context, listingID int64) ([]model.ListingImage, error) {
	var images []model.ListingImage
	err := r.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("sort_order ASC, id ASC").
		Find(&images).Error
	return images, err
}
