package ebay

import "strings"

// ==========================================
// DTO: 用于接收 eBay API 返回的原始 JSON 数据
// ==========================================

// TokenResp OAuth token 端点响应（authorization_code / refresh_token 两种 grant 共用）
// POST /identity/v1/oauth2/token
type TokenResp struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Error        string `json:"error,omitempty"`
}

// ProgramsResp 已报名计划列表
// GET /sell/account/v1/program/get_opted_in_programs
type ProgramsResp struct {
	Programs []Program `json:"programs"`
}

type Program struct {
	ProgramType string `json:"programType"`
}

// SellingPolicyManagement 业务策略所需的计划类型
const SellingPolicyManagement = "SELLING_POLICY_MANAGEMENT"

// ==========================================
// 业务策略查询响应
// ==========================================

// FulfillmentPoliciesResp GET /sell/account/v1/fulfillment_policy
type FulfillmentPoliciesResp struct {
	FulfillmentPolicies []PolicySummary `json:"fulfillmentPolicies"`
}

// PaymentPoliciesResp GET /sell/account/v1/payment_policy
type PaymentPoliciesResp struct {
	PaymentPolicies []PolicySummary `json:"paymentPolicies"`
}

// ReturnPoliciesResp GET /sell/account/v1/return_policy
type ReturnPoliciesResp struct {
	ReturnPolicies []PolicySummary `json:"returnPolicies"`
}

// PolicySummary 三类策略的公共字段视图
// 三个接口的 ID 字段名各不相同，这里全部列出，按类型取非空的那个
type PolicySummary struct {
	Name                string `json:"name"`
	FulfillmentPolicyID string `json:"fulfillmentPolicyId,omitempty"`
	PaymentPolicyID     string `json:"paymentPolicyId,omitempty"`
	ReturnPolicyID      string `json:"returnPolicyId,omitempty"`
}

// PolicyID 返回该条策略的 ID（三类字段中非空的那个）
func (p *PolicySummary) PolicyID() string {
	switch {
	case p.FulfillmentPolicyID != "":
		return p.FulfillmentPolicyID
	case p.PaymentPolicyID != "":
		return p.PaymentPolicyID
	default:
		return p.ReturnPolicyID
	}
}

// ==========================================
// 库存 / 报价响应
// ==========================================

// OfferResp 报价创建响应
// POST /sell/inventory/v1/offer
type OfferResp struct {
	OfferID string `json:"offerId"`
}

// PublishResp 报价发布响应
// POST /sell/inventory/v1/offer/{offerId}/publish
type PublishResp struct {
	ListingID string `json:"listingId"`
}

// InventoryItemsResp 库存项列表响应
// GET /sell/inventory/v1/inventory_item
type InventoryItemsResp struct {
	Total          int             `json:"total"`
	Size           int             `json:"size"`
	InventoryItems []InventoryItem `json:"inventoryItems"`
}

type InventoryItem struct {
	Sku     string       `json:"sku"`
	Product *ProductInfo `json:"product,omitempty"`
}

// ==========================================
// 错误响应
// ==========================================

// ErrorResp eBay 结构化错误响应
type ErrorResp struct {
	Errors []ErrorDetail `json:"errors"`
}

type ErrorDetail struct {
	ErrorID    int          `json:"errorId"`
	Message    string       `json:"message"`
	Parameters []ErrorParam `json:"parameters,omitempty"`
}

type ErrorParam struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ExistingOfferID 从 "offer entity already exists" 错误里提取已存在的报价 ID
// 提取不到返回空串
func (e *ErrorResp) ExistingOfferID() string {
	for _, detail := range e.Errors {
		if !strings.Contains(strings.ToLower(detail.Message), "offer entity already exists") {
			continue
		}
		if len(detail.Parameters) > 0 {
			return detail.Parameters[0].Value
		}
	}
	return ""
}

// IsAlreadyExists 响应体是否表示资源已存在
func IsAlreadyExists(body string) bool {
	return strings.Contains(strings.ToLower(body), "already exists")
}
