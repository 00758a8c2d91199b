package model

import (
	"time"
)

// 市场标识常量
const (
	MarketplaceEbay     = "ebay"     // REST API 接入
	MarketplacePoshmark = "poshmark" // 浏览器自动化接入
)

// MarketplaceLink 状态常量
// 状态机: pending -> offer_created -> published；failed 可从任意阶段进入
const (
	LinkStatusPending      = "pending"
	LinkStatusOfferCreated = "offer_created"
	LinkStatusPublished    = "published"
	LinkStatusFailed       = "failed"
)

// MarketplaceAccount 用户在某个市场的接入凭证
// 每个 (user_id, marketplace) 至多一条
// eBay: AccessToken/RefreshToken/TokenExpiresAt 为 OAuth 三件套
// Poshmark: Username 为登录名，AccessToken 字段复用存放密码或序列化后的 Cookie 集
type MarketplaceAccount struct {
	BaseModel
	UserID      int64  `gorm:"uniqueIndex:idx_user_marketplace;not null" json:"user_id"`
	Marketplace string `gorm:"uniqueIndex:idx_user_marketplace;size:50;not null" json:"marketplace"`

	Username       string    `gorm:"size:255" json:"username"`
	AccessToken    string    `gorm:"type:text" json:"-"`
	RefreshToken   string    `gorm:"type:text" json:"-"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
}

// Connected 是否已绑定可用凭证
func (a *MarketplaceAccount) Connected() bool {
	return a != nil && a.AccessToken != ""
}

// MarketplaceLink 商品在某市场的发布状态记录
// 每个 (listing_id, marketplace) 至多一条，只做 upsert，除显式断开外不删除
type MarketplaceLink struct {
	BaseModel
	ListingID   int64  `gorm:"uniqueIndex:idx_listing_marketplace;not null" json:"listing_id"`
	Marketplace string `gorm:"uniqueIndex:idx_listing_marketplace;size:50;not null" json:"marketplace"`

	Status string `gorm:"size:50;not null;default:'pending'" json:"status"`

	// 市场侧商品 ID（eBay listingId / Poshmark 详情页尾段）
	ExternalItemID string `gorm:"size:255" json:"external_item_id"`
	// 发布时使用的 SKU
	Sku string `gorm:"size:255" json:"sku"`
	// eBay offer ID，浏览器市场恒为空
	OfferID string `gorm:"size:255" json:"offer_id"`
	// 商品落地页地址
	ExternalURL string `gorm:"size:500" json:"external_url"`
}
