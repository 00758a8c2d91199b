package service

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/leehj825/ResaleHubBackend/internal/model"
	"github.com/leehj825/ResaleHubBackend/pkg/config"
	"github.com/leehj825/ResaleHubBackend/pkg/ebay"
)

// 业务常量
const (
	ebayMarketplaceID = "EBAY_US"

	fulfillmentPolicyPath = "/sell/account/v1/fulfillment_policy"
	paymentPolicyPath     = "/sell/account/v1/payment_policy"
	returnPolicyPath      = "/sell/account/v1/return_policy"
	programsPath          = "/sell/account/v1/program/get_opted_in_programs"
	optInPath             = "/sell/account/v1/program/opt_in"
)

// 运费策略创建按顺序尝试的物流服务代码，成功即止
var shippingServiceCodes = []string{"USPSGroundAdvantage", "USPSFirstClass", "USPSPriorityMail"}

// EbayPolicyService 业务策略解析
// 报价必须引用三类策略 (运费/收款/退货)；这里负责在发布前拿到三个策略 ID：
// 静态覆盖 -> 远端查询 (名字含 default/standard 优先) -> 报名计划后创建默认策略
type EbayPolicyService struct {
	auth *EbayAuthService
	cfg  *config.EbayConfig
}

// NewEbayPolicyService 工厂方法
func NewEbayPolicyService(auth *EbayAuthService, cfg *config.EbayConfig) *EbayPolicyService {
	return &EbayPolicyService{auth: auth, cfg: cfg}
}

// Resolve 解析三个策略 ID
// 三个都拿不齐时返回 ConfigError(MISSING_POLICIES)，这是发布的硬性前置条件
func (s *EbayPolicyService) Resolve(ctx context.Context, account *model.MarketplaceAccount) (*ebay.ListingPolicies, error) {
	// 1. 三个静态覆盖全配置时原样返回，零远端调用
	if s.cfg.FulfillmentPolicyID != "" && s.cfg.PaymentPolicyID != "" && s.cfg.ReturnPolicyID != "" {
		return &ebay.ListingPolicies{
			FulfillmentPolicyID: s.cfg.FulfillmentPolicyID,
			PaymentPolicyID:     s.cfg.PaymentPolicyID,
			ReturnPolicyID:      s.cfg.ReturnPolicyID,
		}, nil
	}

	// 2. 查询现有策略
	policies := &ebay.ListingPolicies{
		FulfillmentPolicyID: s.queryPolicyID(ctx, account, fulfillmentPolicyPath),
		PaymentPolicyID:     s.queryPolicyID(ctx, account, paymentPolicyPath),
		ReturnPolicyID:      s.queryPolicyID(ctx, account, returnPolicyPath),
	}

	// 拿不到的槽位回填静态覆盖
	if policies.FulfillmentPolicyID == "" {
		policies.FulfillmentPolicyID = s.cfg.FulfillmentPolicyID
	}
	if policies.PaymentPolicyID == "" {
		policies.PaymentPolicyID = s.cfg.PaymentPolicyID
	}
	if policies.ReturnPolicyID == "" {
		policies.ReturnPolicyID = s.cfg.ReturnPolicyID
	}
	if policies.FulfillmentPolicyID != "" && policies.PaymentPolicyID != "" && policies.ReturnPolicyID != "" {
		return policies, nil
	}

	// 3. 还缺：确认已报名策略管理计划，必要时报名（先查后写，幂等）
	if !s.ensureOptedIn(ctx, account) {
		return nil, &ConfigError{
			Marketplace: model.MarketplaceEbay,
			Code:        MissingPolicies,
			Detail:      "account not opted into selling policy management",
		}
	}

	// 4. 创建默认策略（已存在则查回复用）
	created, err := s.createDefaultPolicies(ctx, account)
	if err != nil || created == nil {
		return nil, &ConfigError{
			Marketplace: model.MarketplaceEbay,
			Code:        MissingPolicies,
			Detail:      "failed to create default business policies",
		}
	}
	return created, nil
}

// queryPolicyID 查某类策略列表并挑一个 ID
// 优先名字含 default/standard (不分大小写)，否则取第一条；查询失败返回空串
func (s *EbayPolicyService) queryPolicyID(ctx context.Context, account *model.MarketplaceAccount, path string) string {
	var (
		fulfillment ebay.FulfillmentPoliciesResp
		payment     ebay.PaymentPoliciesResp
		ret         ebay.ReturnPoliciesResp
		result      interface{}
	)
	switch path {
	case fulfillmentPolicyPath:
		result = &fulfillment
	case paymentPolicyPath:
		result = &payment
	default:
		result = &ret
	}

	resp, err := s.auth.Call(ctx, account, http.MethodGet, path+"?marketplace_id="+ebayMarketplaceID, nil, result)
	if err != nil || resp.StatusCode() != 200 {
		return ""
	}

	var list []ebay.PolicySummary
	switch path {
	case fulfillmentPolicyPath:
		list = fulfillment.FulfillmentPolicies
	case paymentPolicyPath:
		list = payment.PaymentPolicies
	default:
		list = ret.ReturnPolicies
	}
	return pickPolicyID(list)
}

// pickPolicyID 从策略列表里挑 ID：default/standard 命名优先，否则第一条
func pickPolicyID(list []ebay.PolicySummary) string {
	if len(list) == 0 {
		return ""
	}
	for i := range list {
		name := strings.ToLower(list[i].Name)
		if strings.Contains(name, "default") || strings.Contains(name, "standard") {
			return list[i].PolicyID()
		}
	}
	return list[0].PolicyID()
}

// ensureOptedIn 确认账号已报名 SELLING_POLICY_MANAGEMENT，未报名则报名
// 查询/报名失败都按"未开通"处理，由上层给出前置条件错误
func (s *EbayPolicyService) ensureOptedIn(ctx context.Context, account *model.MarketplaceAccount) bool {
	var programs ebay.ProgramsResp
	resp, err := s.auth.Call(ctx, account, http.MethodGet, programsPath, nil, &programs)
	if err != nil || resp.StatusCode() != 200 {
		return false
	}
	for _, p := range programs.Programs {
		if p.ProgramType == ebay.SellingPolicyManagement {
			return true
		}
	}

	optResp, err := s.auth.Call(ctx, account, http.MethodPost, optInPath,
		&ebay.OptInReq{ProgramType: ebay.SellingPolicyManagement}, nil)
	if err != nil {
		return false
	}
	switch optResp.StatusCode() {
	case 200, 201, 204:
		return true
	}
	return false
}

// createDefaultPolicies 创建三类默认策略，全部拿齐才算成功
func (s *EbayPolicyService) createDefaultPolicies(ctx context.Context, account *model.MarketplaceAccount) (*ebay.ListingPolicies, error) {
	policies := &ebay.ListingPolicies{}

	// --- 运费策略：按物流服务代码逐个尝试 ---
	for _, svcCode := range shippingServiceCodes {
		payload := &ebay.FulfillmentPolicyReq{
			Name:          "Standard Shipping (" + svcCode + ")",
			MarketplaceID: ebayMarketplaceID,
			CategoryTypes: []ebay.CategoryType{{Name: "ALL_EXCLUDING_MOTORS_VEHICLES"}},
			HandlingTime:  &ebay.TimeDuration{Value: 1, Unit: "DAY"},
			ShippingOptions: []ebay.ShippingOption{{
				OptionType: "DOMESTIC",
				CostType:   "FLAT_RATE",
				ShippingServices: []ebay.ShippingService{{
					ShippingCarrierCode: "USPS",
					ShippingServiceCode: svcCode,
					FreeShipping:        false,
				}},
			}},
		}

		var created ebay.PolicySummary
		resp, err := s.auth.Call(ctx, account, http.MethodPost, fulfillmentPolicyPath, payload, &created)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() == 200 || resp.StatusCode() == 201 {
			policies.FulfillmentPolicyID = created.FulfillmentPolicyID
			break
		}
		// 已存在：查回复用而不是报错
		if ebay.IsAlreadyExists(resp.String()) {
			if id := s.queryPolicyID(ctx, account, fulfillmentPolicyPath); id != "" {
				policies.FulfillmentPolicyID = id
				break
			}
		}
		log.Printf("[Policy] 运费策略创建失败 (%s): %s", svcCode, resp.String())
	}
	if policies.FulfillmentPolicyID == "" {
		policies.FulfillmentPolicyID = s.queryPolicyID(ctx, account, fulfillmentPolicyPath)
	}

	// --- 收款策略 ---
	policies.PaymentPolicyID = s.createOrReuse(ctx, account, paymentPolicyPath, &ebay.PaymentPolicyReq{
		Name:          "Standard Payment",
		MarketplaceID: ebayMarketplaceID,
		CategoryTypes: []ebay.CategoryType{{Name: "ALL_EXCLUDING_MOTORS_VEHICLES"}},
		ImmediatePay:  false,
	})

	// --- 30 天退货策略 ---
	policies.ReturnPolicyID = s.createOrReuse(ctx, account, returnPolicyPath, &ebay.ReturnPolicyReq{
		Name:                    "30-Day Returns",
		MarketplaceID:           ebayMarketplaceID,
		CategoryTypes:           []ebay.CategoryType{{Name: "ALL_EXCLUDING_MOTORS_VEHICLES"}},
		ReturnsAccepted:         true,
		ReturnPeriod:            &ebay.TimeDuration{Value: 30, Unit: "DAY"},
		RefundMethod:            "MONEY_BACK",
		ReturnShippingCostPayer: "BUYER",
	})

	if policies.FulfillmentPolicyID == "" || policies.PaymentPolicyID == "" || policies.ReturnPolicyID == "" {
		return nil, nil
	}
	return policies, nil
}

// createOrReuse 创建单类策略；报"已存在"则查回已有的复用
func (s *EbayPolicyService) createOrReuse(ctx context.Context, account *model.MarketplaceAccount, path string, payload interface{}) string {
	var created ebay.PolicySummary
	resp, err := s.auth.Call(ctx, account, http.MethodPost, path, payload, &created)
	if err != nil {
		return ""
	}
	if resp.StatusCode() == 200 || resp.StatusCode() == 201 {
		if id := created.PolicyID(); id != "" {
			return id
		}
	}
	if ebay.IsAlreadyExists(resp.String()) {
		return s.queryPolicyID(ctx, account, path)
	}
	// 创建失败仍兜底查一次，远端可能已有策略
	return s.queryPolicyID(ctx, account, path)
}
