package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/leehj825/ResaleHubBackend/internal/model"
)

// ==================== 接口定义 ====================

// MarketplaceAccountRepository 市场账号仓储接口
type MarketplaceAccountRepository interface {
	// GetByUserAndMarketplace 查账号，找不到返回 gorm.ErrRecordNotFound
	GetByUserAndMarketplace(ctx context.Context, userID int64, marketplace string) (*model.MarketplaceAccount, error)
	// SaveOrUpdate 按 (user_id, marketplace) 幂等保存
	SaveOrUpdate(ctx context.Context, account *model.MarketplaceAccount) error
	// UpdateToken 只更新 token 三件套（刷新成功后的原子落库）
	UpdateToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error
	// Delete 解绑账号
	Delete(ctx context.Context, userID int64, marketplace string) error
	// FindExpiring 找出 deadline 前过期且有 refresh_token 的 eBay 账号（保活任务用）
	FindExpiring(ctx context.Context, deadline time.Time) ([]model.MarketplaceAccount, error)
}

// ==================== 仓储实现 ====================

type accountRepo struct {
	db *gorm.DB
}

// NewMarketplaceAccountRepository 创建市场账号仓储
func NewMarketplaceAccountRepository(db *gorm.DB) MarketplaceAccountRepository {
	return &accountRepo{db: db}
}

func (r *accountRepo) GetByUserAndMarketplace(ctx context.Context, userID int64, marketplace string) (*model.MarketplaceAccount, error) {
	var account model.MarketplaceAccount
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND marketplace = ?", userID, marketplace).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepo) SaveOrUpdate(ctx context.Context, account *model.MarketplaceAccount) error {
	if account.ID != 0 {
		return r.db.WithContext(ctx).Save(account).Error
	}

	// 先查后写，保证 (user_id, marketplace) 单行
	var existing model.MarketplaceAccount
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND marketplace = ?", account.UserID, account.Marketplace).
		First(&existing).Error
	if err == nil {
		account.ID = existing.ID
		account.CreatedAt = existing.CreatedAt
		return r.db.WithContext(ctx).Save(account).Error
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *accountRepo) UpdateToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.MarketplaceAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"access_token":     accessToken,
			"refresh_token":    refreshToken,
			"token_expires_at": expiresAt,
		}).Error
}

func (r *accountRepo) Delete(ctx context.Context, userID int64, marketplace string) error {
	// 物理删除：软删行会继续占用 (user_id, marketplace) 唯一索引，挡住重新绑定；
	// 凭证数据也不应该以软删形式留存
	return r.db.WithContext(ctx).
		Where("user_id = ? AND marketplace = ?", userID, marketplace).
		Unscoped().
		Delete(&model.MarketplaceAccount{}).Error
}

func (r *accountRepo) FindExpiring(ctx context.Context, deadline time.Time) ([]model.MarketplaceAccount, error) {
	var accounts []model.MarketplaceAccount
	err := r.db.WithContext(ctx).
		Where("marketplace = ?", model.MarketplaceEbay).
		Where("refresh_token <> ''").
		Where("token_expires_at < ?", deadline).
		Find(&accounts).Error
	return accounts, err
}
