package model

// Listing 状态常量
const (
	ListingStatusDraft    = "draft"    // 草稿
	ListingStatusActive   = "active"   // 在售
	ListingStatusArchived = "archived" // 已归档
)

// Listing 本地商品（发布到各市场的规范数据源）
type Listing struct {
	BaseModel
	// 归属用户，创建后不可变更
	OwnerID int64 `gorm:"index;not null" json:"owner_id"`

	Title       string  `gorm:"size:255;not null" json:"title"`
	Description string  `gorm:"type:text" json:"description"`
	Price       float64 `gorm:"type:decimal(10,2);not null;default:0" json:"price"`
	Currency    string  `gorm:"size:3;not null;default:'USD'" json:"currency"`

	// 自由文本成色，发布时映射成各市场的枚举值
	Condition string `gorm:"size:50;not null;default:'USED_GOOD'" json:"condition"`

	// 首次发布前可为空，发布时若缺失会按 owner+listing 合成并回写
	Sku string `gorm:"size:100;index" json:"sku"`

	Status string `gorm:"size:20;not null;default:'draft'" json:"status"`

	// 缩略图公网地址，始终存在，可能为空串
	ThumbnailURL string `gorm:"size:512" json:"thumbnail_url"`

	// 1. 商品图片 (Has Many，按 SortOrder 排列，随商品级联删除)
	Images []ListingImage `gorm:"foreignKey:ListingID;constraint:OnDelete:CASCADE" json:"images,omitempty"`

	// 2. 市场发布状态 (Has Many，随商品级联删除)
	MarketplaceLinks []MarketplaceLink `gorm:"foreignKey:ListingID;constraint:OnDelete:CASCADE" json:"marketplace_links,omitempty"`
}

// ListingImage 商品图片
// SortOrder 稠密且从 0 开始，删除图片后由仓储层重排补洞
type ListingImage struct {
	BaseModel
	ListingID int64 `gorm:"index;not null" json:"listing_id"`

	// 相对存储路径 (如 "listings/1/abc.jpg")，公网地址由 MediaBaseURL 拼出
	FilePath  string `gorm:"size:500;not null" json:"file_path"`
	SortOrder int    `gorm:"not null;default:0" json:"sort_order"`
}
