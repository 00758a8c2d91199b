package model

// User 平台用户
// 注册/登录由独立的账户服务负责，这里只保留发布链路需要的最小字段
type User struct {
	BaseModel
	Email        string `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"size:255" json:"-"`

	// 1. 用户拥有的商品 (Has Many，随用户级联删除)
	Listings []Listing `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`

	// 2. 用户绑定的市场账号 (Has Many，每个市场至多一条)
	MarketplaceAccounts []MarketplaceAccount `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}
