package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/leehj825/ResaleHubBackend/internal/model"
	"github.com/leehj825/ResaleHubBackend/internal/repository"
	"github.com/leehj825/ResaleHubBackend/pkg/config"
	"github.com/leehj825/ResaleHubBackend/pkg/ebay"
)

// 业务常量
const (
	// 默认类目：Clothing, Shoes & Accessories > Women > Women's Clothing
	ebayCategoryID = "11450"
	// 库存项的固定可售数量
	ebayQuantity = 1
	// 单个商品最多携带的图片数
	maxImageURLs = 12
	// 仓库地址键，幂等注册
	merchantLocationKey = "store_v3"

	inventoryItemPath = "/sell/inventory/v1/inventory_item"
	offerPath         = "/sell/inventory/v1/offer"
	locationPath      = "/sell/inventory/v1/location"
)

// 清理 SKU 时的非法字符
var skuInvalidChars = regexp.MustCompile(`[^a-zA-Z0-9_/-]`)
var skuDashRuns = regexp.MustCompile(`-+`)

// EbayPublishService REST 发布流水线
// 状态推进：SKU 落定 -> 库存 upsert -> 报价创建/复用 -> 发布 -> 状态行落库
// 任一远端失败立即中止并携带原始响应，不自动重试
type EbayPublishService struct {
	listingRepo repository.ListingRepository
	linkRepo    repository.MarketplaceLinkRepository
	auth        *EbayAuthService
	policy      *EbayPolicyService
	cfg         *config.Config
}

// NewEbayPublishService 工厂方法
func NewEbayPublishService(
	listingRepo repository.ListingRepository,
	linkRepo repository.MarketplaceLinkRepository,
	auth *EbayAuthService,
	policy *EbayPolicyService,
	cfg *config.Config,
) *EbayPublishService {
	return &EbayPublishService{
		listingRepo: listingRepo,
		linkRepo:    linkRepo,
		auth:        auth,
		policy:      policy,
		cfg:         cfg,
	}
}

// ==================== 发布流水线 ====================

// Publish 完整发布：库存 -> 报价 -> 上架
// 成功后状态行为 published，并带回市场侧商品 ID 和落地页地址
func (s *EbayPublishService) Publish(ctx context.Context, userID, listingID int64) (*model.MarketplaceLink, error) {
	return s.run(ctx, userID, listingID, true)
}

// PrepareOffer 截断发布：只做库存和报价，不上架
// 成功后状态行为 offer_created
func (s *EbayPublishService) PrepareOffer(ctx context.Context, userID, listingID int64) (*model.MarketplaceLink, error) {
	return s.run(ctx, userID, listingID, false)
}

func (s *EbayPublishService) run(ctx context.Context, userID, listingID int64, doPublish bool) (*model.MarketplaceLink, error) {
	listing, err := s.listingRepo.GetOwnedByID(ctx, listingID, userID)
	if err != nil {
		return nil, fmt.Errorf("listing %d not found: %w", listingID, err)
	}
	account, err := s.auth.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	// --- SKU 落定 ---
	sku, err := s.ensureSku(ctx, listing)
	if err != nil {
		return nil, err
	}

	title := listing.Title
	if title == "" {
		title = "Untitled"
	}
	description := listing.Description
	if description == "" {
		description = "No description"
	}

	imageURLs, err := s.imageURLs(ctx, listing.ID)
	if err != nil {
		return nil, err
	}

	// --- 仓库地址：尽力而为，失败不中止 ---
	s.ensureMerchantLocation(ctx, account)

	// --- 策略解析：硬性前置条件 ---
	policies, err := s.policy.Resolve(ctx, account)
	if err != nil {
		return nil, err
	}

	// --- 库存 upsert (按 SKU 幂等) ---
	condition := MapEbayCondition(listing.Condition)
	if !doPublish {
		// 截断路径不看成色，报价阶段才需要
		condition = "NEW"
	}
	inventoryReq := &ebay.InventoryItemReq{
		Sku:       sku,
		Locale:    "en_US",
		Condition: condition,
		Product: ebay.ProductInfo{
			Title:       title,
			Description: description,
			ImageUrls:   imageURLs,
		},
		Availability: ebay.Availability{
			ShipToLocationAvailability: ebay.ShipToLocationAvailability{Quantity: ebayQuantity},
		},
	}
	invResp, err := s.auth.Call(ctx, account, http.MethodPut, inventoryItemPath+"/"+url.PathEscape(sku), inventoryReq, nil)
	if err != nil {
		return nil, s.failLink(ctx, listing.ID, sku, err)
	}
	switch invResp.StatusCode() {
	case 200, 201, 204:
	default:
		return nil, s.failLink(ctx, listing.ID, sku, &RemoteError{
			Marketplace: model.MarketplaceEbay,
			Stage:       "inventory",
			Status:      invResp.StatusCode(),
			Body:        invResp.String(),
		})
	}

	// --- 报价创建 / 已存在则改为更新 ---
	offerReq := &ebay.OfferReq{
		Sku:                 sku,
		MarketplaceID:       ebayMarketplaceID,
		Format:              "FIXED_PRICE",
		AvailableQuantity:   ebayQuantity,
		CategoryID:          ebayCategoryID,
		ListingDescription:  description,
		MerchantLocationKey: merchantLocationKey,
		ItemLocation:        ebay.ItemLocation{Country: "US", PostalCode: "95112"},
		ListingPolicies:     *policies,
		ListingDuration:     "GTC",
		PricingSummary: ebay.PricingSummary{
			Price: ebay.Price{Currency: "USD", Value: fmt.Sprintf("%.2f", listing.Price)},
		},
	}

	offerID, err := s.upsertOffer(ctx, account, offerReq)
	if err != nil {
		return nil, s.failLink(ctx, listing.ID, sku, err)
	}

	if !doPublish {
		return s.linkRepo.Upsert(ctx, listing.ID, model.MarketplaceEbay, func(link *model.MarketplaceLink) {
			link.Status = model.LinkStatusOfferCreated
			link.Sku = sku
			link.OfferID = offerID
		})
	}

	// --- 上架 ---
	var publishResp ebay.PublishResp
	resp, err := s.auth.Call(ctx, account, http.MethodPost, offerPath+"/"+offerID+"/publish", struct{}{}, &publishResp)
	if err != nil {
		return nil, s.failLink(ctx, listing.ID, sku, err)
	}
	if resp.StatusCode() != 200 && resp.StatusCode() != 201 {
		return nil, s.failLink(ctx, listing.ID, sku, &RemoteError{
			Marketplace: model.MarketplaceEbay,
			Stage:       "publish",
			Status:      resp.StatusCode(),
			Body:        resp.String(),
		})
	}

	externalURL := ""
	if publishResp.ListingID != "" {
		externalURL = s.cfg.Ebay.ItemBase() + "/" + publishResp.ListingID
	}
	return s.linkRepo.Upsert(ctx, listing.ID, model.MarketplaceEbay, func(link *model.MarketplaceLink) {
		link.Status = model.LinkStatusPublished
		link.ExternalItemID = publishResp.ListingID
		link.Sku = sku
		link.OfferID = offerID
		link.ExternalURL = externalURL
	})
}

// failLink 远端阶段失败时把状态行置为 failed，返回原始错误
// 状态可从任意阶段进入 failed；落库失败只记日志，不吞掉主错误
func (s *EbayPublishService) failLink(ctx context.Context, listingID int64, sku string, cause error) error {
	if _, err := s.linkRepo.Upsert(ctx, listingID, model.MarketplaceEbay, func(link *model.MarketplaceLink) {
		link.Status = model.LinkStatusFailed
		if link.Sku == "" {
			link.Sku = sku
		}
	}); err != nil {
		log.Printf("[Publish] 状态行置 failed 落库失败 (忽略): %v", err)
	}
	return cause
}

// upsertOffer 创建报价；结构化错误显示报价已存在时提取 offer ID 改为更新
func (s *EbayPublishService) upsertOffer(ctx context.Context, account *model.MarketplaceAccount, req *ebay.OfferReq) (string, error) {
	var offerResp ebay.OfferResp
	var errResp ebay.ErrorResp
	resp, err := s.auth.Call(ctx, account, http.MethodPost, offerPath, req, &offerResp)
	if err != nil {
		return "", err
	}
	if resp.StatusCode() == 200 || resp.StatusCode() == 201 {
		return offerResp.OfferID, nil
	}

	// 结构化错误里带了已存在的报价 ID 时转为更新；解析不出来按原始失败处理
	if jsonErr := json.Unmarshal(resp.Body(), &errResp); jsonErr == nil {
		if existingID := errResp.ExistingOfferID(); existingID != "" {
			if _, err := s.auth.Call(ctx, account, http.MethodPut, offerPath+"/"+existingID, req, nil); err != nil {
				return "", err
			}
			return existingID, nil
		}
	}

	return "", &RemoteError{
		Marketplace: model.MarketplaceEbay,
		Stage:       "offer",
		Status:      resp.StatusCode(),
		Body:        resp.String(),
	}
}

// ==================== 库存对账 ====================

// SyncInventory 分页拉全远端库存并回补本地状态行
// 匹配不到本地商品的远端 SKU 跳过；整批一个事务，出错全量回滚
func (s *EbayPublishService) SyncInventory(ctx context.Context, userID int64) (found, matched int, err error) {
	account, err := s.auth.GetAccount(ctx, userID)
	if err != nil {
		return 0, 0, err
	}

	const pageSize = 200
	var remoteItems []ebay.InventoryItem
	for offset := 0; ; offset += pageSize {
		var page ebay.InventoryItemsResp
		resp, err := s.auth.Call(ctx, account, http.MethodGet,
			fmt.Sprintf("%s?limit=%d&offset=%d", inventoryItemPath, pageSize, offset), nil, &page)
		if err != nil {
			return 0, 0, err
		}
		if resp.StatusCode() != 200 {
			return 0, 0, &RemoteError{
				Marketplace: model.MarketplaceEbay,
				Stage:       "sync",
				Status:      resp.StatusCode(),
				Body:        resp.String(),
			}
		}
		remoteItems = append(remoteItems, page.InventoryItems...)
		// total 走到头或远端给了空页就收口，防御 total 字段缺失的情况
		if len(page.InventoryItems) == 0 || len(remoteItems) >= page.Total {
			break
		}
	}
	found = len(remoteItems)

	err = s.linkRepo.Transaction(ctx, func(txRepo repository.MarketplaceLinkRepository) error {
		for _, item := range remoteItems {
			if item.Sku == "" {
				continue
			}
			listing, lookupErr := s.listingRepo.GetByOwnerAndSku(ctx, userID, item.Sku)
			if lookupErr != nil {
				continue
			}
			_, upsertErr := txRepo.Upsert(ctx, listing.ID, model.MarketplaceEbay, func(link *model.MarketplaceLink) {
				if link.Status != model.LinkStatusPublished {
					link.Status = model.LinkStatusOfferCreated
				}
			})
			if upsertErr != nil {
				return upsertErr
			}
			matched++
		}
		return nil
	})
	if err != nil {
		return found, 0, fmt.Errorf("inventory sync rolled back: %w", err)
	}
	return found, matched, nil
}

// DeleteInventoryItem 删除远端库存项
func (s *EbayPublishService) DeleteInventoryItem(ctx context.Context, userID int64, sku string) error {
	account, err := s.auth.GetAccount(ctx, userID)
	if err != nil {
		return err
	}
	resp, err := s.auth.Call(ctx, account, http.MethodDelete, inventoryItemPath+"/"+url.PathEscape(sku), nil, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode() != 200 && resp.StatusCode() != 204 {
		return &RemoteError{
			Marketplace: model.MarketplaceEbay,
			Stage:       "inventory_delete",
			Status:      resp.StatusCode(),
			Body:        resp.String(),
		}
	}

	// 远端库存没了，对应的本地状态行一并清掉（显式断开是唯一的删除路径）
	if listing, lookupErr := s.listingRepo.GetByOwnerAndSku(ctx, userID, sku); lookupErr == nil {
		if delErr := s.linkRepo.DeleteByPair(ctx, listing.ID, model.MarketplaceEbay); delErr != nil {
			log.Printf("[Publish] 本地状态行清除失败 (忽略): %v", delErr)
		}
	}
	return nil
}

// ListInventory 透传远端库存列表
func (s *EbayPublishService) ListInventory(ctx context.Context, userID int64) (*ebay.InventoryItemsResp, error) {
	account, err := s.auth.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	var items ebay.InventoryItemsResp
	resp, err := s.auth.Call(ctx, account, http.MethodGet, inventoryItemPath+"?limit=100&offset=0", nil, &items)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, &RemoteError{
			Marketplace: model.MarketplaceEbay,
			Stage:       "inventory_list",
			Status:      resp.StatusCode(),
			Body:        resp.String(),
		}
	}
	return &items, nil
}

// ==================== 规范化工具 ====================

// ensureSku 保证商品有可用 SKU：缺失时按 owner+listing 合成，净化后回写
func (s *EbayPublishService) ensureSku(ctx context.Context, listing *model.Listing) (string, error) {
	raw := strings.TrimSpace(listing.Sku)
	if raw == "" {
		raw = fmt.Sprintf("USER%d-LISTING%d", listing.OwnerID, listing.ID)
	}
	sku := SanitizeSku(raw)
	if sku != listing.Sku {
		if err := s.listingRepo.UpdateSku(ctx, listing.ID, sku); err != nil {
			return "", fmt.Errorf("persist sanitized sku: %w", err)
		}
		listing.Sku = sku
	}
	return sku, nil
}

// SanitizeSku 净化 SKU 字符集
// 非 [a-zA-Z0-9_/-] 置换为 '-'，折叠连续 '-'，去掉首尾的 '-' 与 '_'，空结果回退 "SKU"
// 幂等：对已净化的值再净化恒等
func SanitizeSku(raw string) string {
	sanitized := skuInvalidChars.ReplaceAllString(raw, "-")
	sanitized = skuDashRuns.ReplaceAllString(sanitized, "-")
	// 单一字符集裁剪，'-' 和 '_' 交错的首尾串才能一次去净
	sanitized = strings.Trim(sanitized, "-_")
	if sanitized == "" {
		return "SKU"
	}
	return sanitized
}

// MapEbayCondition 自由文本成色映射到 eBay 枚举
// 按子串优先级匹配，无法识别时按 NEW 处理
func MapEbayCondition(condition string) string {
	c := strings.ToLower(condition)
	switch {
	case strings.Contains(c, "new"):
		return "NEW"
	case strings.Contains(c, "like"):
		return "LIKE_NEW"
	case strings.Contains(c, "good"), strings.Contains(c, "used"):
		return "USED_GOOD"
	case strings.Contains(c, "parts"):
		return "FOR_PARTS_OR_NOT_WORKING"
	default:
		return "NEW"
	}
}

// FilterImageURLs 只保留公网可达的绝对 http(s) 地址，保序截断到上限
// 本地回环地址 eBay 拉不到图，直接剔除
func FilterImageURLs(urls []string) []string {
	filtered := make([]string, 0, len(urls))
	for _, u := range urls {
		if !strings.HasPrefix(u, "http") {
			continue
		}
		if strings.Contains(u, "localhost") || strings.Contains(u, "127.0.0.1") {
			continue
		}
		filtered = append(filtered, u)
		if len(filtered) == maxImageURLs {
			break
		}
	}
	return filtered
}

// imageURLs 按排序位读取商品图片并拼出公网地址
func (s *EbayPublishService) imageURLs(ctx context.Context, listingID int64) ([]string, error) {
	images, err := s.listingRepo.ListImages(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("load listing images: %w", err)
	}
	urls := make([]string, 0, len(images))
	base := strings.TrimRight(s.cfg.MediaBaseURL, "/")
	for _, img := range images {
		urls = append(urls, base+"/"+strings.TrimLeft(img.FilePath, "/"))
	}
	return FilterImageURLs(urls), nil
}

// ensureMerchantLocation 幂等注册仓库地址
// eBay 对重复创建返回报错，这里吞掉所有失败，地址问题不应挡发布
func (s *EbayPublishService) ensureMerchantLocation(ctx context.Context, account *model.MarketplaceAccount) {
	payload := &ebay.MerchantLocationReq{
		Name: "Main Store",
		Location: ebay.LocationInfo{
			Address: ebay.Address{
				AddressLine1:    "2055 Hamilton Ave",
				City:            "San Jose",
				StateOrProvince: "CA",
				PostalCode:      "95125",
				Country:         "US",
			},
		},
		LocationInstructions:   "Ships from main warehouse",
		MerchantLocationStatus: "ENABLED",
		LocationTypes:          []string{"STORE"},
	}
	if _, err := s.auth.Call(ctx, account, http.MethodPost, locationPath+"/"+merchantLocationKey, payload, nil); err != nil {
		log.Printf("[Publish] 仓库地址注册失败 (忽略): %v", err)
	}
}
