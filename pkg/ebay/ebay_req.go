package ebay

// ==========================================
// DTO: 发往 eBay Sell API 的请求体
// ==========================================

// OAuth 授权范围，connect 与 refresh 必须一致
var Scopes = []string{
	"https://api.ebay.com/oauth/api_scope",
	"https://api.ebay.com/oauth/api_scope/sell.account.readonly",
	"https://api.ebay.com/oauth/api_scope/sell.account",
	"https://api.ebay.com/oauth/api_scope/sell.inventory",
	"https://api.ebay.com/oauth/api_scope/sell.fulfillment",
}

// InventoryItemReq 库存项 upsert 请求
// PUT /sell/inventory/v1/inventory_item/{sku}
type InventoryItemReq struct {
	Sku          string       `json:"sku"`
	Locale       string       `json:"locale"`
	Product      ProductInfo  `json:"product"`
	Condition    string       `json:"condition"`
	Availability Availability `json:"availability"`
}

// ProductInfo 商品基本信息
type ProductInfo struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ImageUrls   []string `json:"imageUrls,omitempty"`
}

// Availability 可售数量
type Availability struct {
	ShipToLocationAvailability ShipToLocationAvailability `json:"shipToLocationAvailability"`
}

type ShipToLocationAvailability struct {
	Quantity int `json:"quantity"`
}

// OfferReq 报价创建/更新请求
// POST /sell/inventory/v1/offer
// PUT  /sell/inventory/v1/offer/{offerId}
type OfferReq struct {
	Sku                string          `json:"sku"`
	MarketplaceID      string          `json:"marketplaceId"`
	Format             string          `json:"format"`
	AvailableQuantity  int             `json:"availableQuantity"`
	CategoryID         string          `json:"categoryId"`
	ListingDescription string          `json:"listingDescription"`
	MerchantLocationKey string         `json:"merchantLocationKey,omitempty"`
	ItemLocation       ItemLocation    `json:"itemLocation"`
	ListingPolicies    ListingPolicies `json:"listingPolicies"`
	ListingDuration    string          `json:"listingDuration"`
	PricingSummary     PricingSummary  `json:"pricingSummary"`
}

// ItemLocation 发货地
type ItemLocation struct {
	Country    string `json:"country"`
	PostalCode string `json:"postalCode"`
}

// ListingPolicies 报价引用的三类业务策略 ID
type ListingPolicies struct {
	FulfillmentPolicyID string `json:"fulfillmentPolicyId"`
	PaymentPolicyID     string `json:"paymentPolicyId"`
	ReturnPolicyID      string `json:"returnPolicyId"`
}

// PricingSummary 定价
type PricingSummary struct {
	Price Price `json:"price"`
}

type Price struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

// ==========================================
// 业务策略创建请求
// ==========================================

// FulfillmentPolicyReq 运费策略创建请求
// POST /sell/account/v1/fulfillment_policy
type FulfillmentPolicyReq struct {
	Name            string           `json:"name"`
	MarketplaceID   string           `json:"marketplaceId"`
	CategoryTypes   []CategoryType   `json:"categoryTypes"`
	HandlingTime    *TimeDuration    `json:"handlingTime,omitempty"`
	ShippingOptions []ShippingOption `json:"shippingOptions,omitempty"`
}

type CategoryType struct {
	Name string `json:"name"`
}

type TimeDuration struct {
	Value int    `json:"value"`
	Unit  string `json:"unit"`
}

type ShippingOption struct {
	OptionType       string            `json:"optionType"`
	CostType         string            `json:"costType"`
	ShippingServices []ShippingService `json:"shippingServices"`
}

type ShippingService struct {
	ShippingCarrierCode string `json:"shippingCarrierCode"`
	ShippingServiceCode string `json:"shippingServiceCode"`
	FreeShipping        bool   `json:"freeShipping"`
}

// PaymentPolicyReq 收款策略创建请求
// POST /sell/account/v1/payment_policy
type PaymentPolicyReq struct {
	Name          string         `json:"name"`
	MarketplaceID string         `json:"marketplaceId"`
	CategoryTypes []CategoryType `json:"categoryTypes"`
	ImmediatePay  bool           `json:"immediatePay"`
}

// ReturnPolicyReq 退货策略创建请求
// POST /sell/account/v1/return_policy
type ReturnPolicyReq struct {
	Name                string         `json:"name"`
	MarketplaceID       string         `json:"marketplaceId"`
	CategoryTypes       []CategoryType `json:"categoryTypes"`
	ReturnsAccepted     bool           `json:"returnsAccepted"`
	ReturnPeriod        *TimeDuration  `json:"returnPeriod,omitempty"`
	RefundMethod        string         `json:"refundMethod,omitempty"`
	ReturnShippingCostPayer string     `json:"returnShippingCostPayer,omitempty"`
}

// OptInReq 销售策略管理计划报名请求
// POST /sell/account/v1/program/opt_in
type OptInReq struct {
	ProgramType string `json:"programType"`
}

// MerchantLocationReq 仓库地址注册请求
// POST /sell/inventory/v1/location/{merchantLocationKey}
type MerchantLocationReq struct {
	Name                 string       `json:"name"`
	Location             LocationInfo `json:"location"`
	LocationInstructions string       `json:"locationInstructions,omitempty"`
	MerchantLocationStatus string     `json:"merchantLocationStatus"`
	LocationTypes        []string     `json:"locationTypes"`
}

type LocationInfo struct {
	Address Address `json:"address"`
}

type Address struct {
	AddressLine1    string `json:"addressLine1"`
	City            string `json:"city"`
	StateOrProvince string `json:"stateOrProvince"`
	PostalCode      string `json:"postalCode"`
	Country         string `json:"country"`
}
