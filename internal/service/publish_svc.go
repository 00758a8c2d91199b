package service

import (
	"context"
	"fmt"
	"log"

	"github.com/leehj825/ResaleHubBackend/internal/model"
	"github.com/leehj825/ResaleHubBackend/internal/repository"
	"github.com/leehj825/ResaleHubBackend/pkg/net"
)

// PublishService 发布编排器
// 唯一入口 Publish(userID, listingID, marketplace)：归属校验 -> 市场前置条件 ->
// 按 (user, marketplace) 串行化 -> 分发到对应流水线 -> 结果落状态行
// （成功写 published/offer_created，远端阶段失败写 failed，前置校验失败不落行）
// 不做任何内部重试；各流水线的创建步骤幂等，调用方重发是安全的
type PublishService struct {
	listingRepo repository.ListingRepository
	linkRepo    repository.MarketplaceLinkRepository
	ebay        *EbayPublishService
	poshmark    *PoshmarkAutomationService
	locker      net.KeyedLocker
}

// NewPublishService 工厂方法
func NewPublishService(
	listingRepo repository.ListingRepository,
	linkRepo repository.MarketplaceLinkRepository,
	ebay *EbayPublishService,
	poshmark *PoshmarkAutomationService,
) *PublishService {
	return &PublishService{
		listingRepo: listingRepo,
		linkRepo:    linkRepo,
		ebay:        ebay,
		poshmark:    poshmark,
		locker:      net.NewKeyedLocker(),
	}
}

// Publish 把商品发布到指定市场
func (s *PublishService) Publish(ctx context.Context, userID, listingID int64, marketplace string) (*model.MarketplaceLink, error) {
	listing, err := s.listingRepo.GetOwnedByID(ctx, listingID, userID)
	if err != nil {
		return nil, fmt.Errorf("listing %d not found: %w", listingID, err)
	}

	// 同一 (user, marketplace) 的发布串行执行：
	// OAuth 刷新落库和浏览器会话文件都不允许并发竞争
	unlock := s.locker.Lock(net.AccountKey(userID, marketplace))
	defer unlock()

	switch marketplace {
	case model.MarketplaceEbay:
		return s.ebay.Publish(ctx, userID, listingID)
	case model.MarketplacePoshmark:
		return s.publishPoshmark(ctx, userID, listing)
	default:
		return nil, fmt.Errorf("unsupported marketplace: %q", marketplace)
	}
}

// PrepareOffer eBay 截断发布（只建库存和报价，不上架）
func (s *PublishService) PrepareOffer(ctx context.Context, userID, listingID int64) (*model.MarketplaceLink, error) {
	unlock := s.locker.Lock(net.AccountKey(userID, model.MarketplaceEbay))
	defer unlock()
	return s.ebay.PrepareOffer(ctx, userID, listingID)
}

// publishPoshmark 浏览器流水线的前置条件与状态落库
func (s *PublishService) publishPoshmark(ctx context.Context, userID int64, listing *model.Listing) (*model.MarketplaceLink, error) {
	images, err := s.listingRepo.ListImages(ctx, listing.ID)
	if err != nil {
		return nil, fmt.Errorf("load listing images: %w", err)
	}
	// 无图直接失败，不起浏览器会话
	if len(images) == 0 {
		return nil, &AutomationError{Stage: "precondition", Detail: "at least one image is required"}
	}

	result, err := s.poshmark.Publish(ctx, userID, listing, images)
	if err != nil {
		// 自动化跑起来之后的失败要在状态行上留痕
		if _, upErr := s.linkRepo.Upsert(ctx, listing.ID, model.MarketplacePoshmark, func(link *model.MarketplaceLink) {
			link.Status = model.LinkStatusFailed
		}); upErr != nil {
			log.Printf("[Publish] 状态行置 failed 落库失败 (忽略): %v", upErr)
		}
		return nil, err
	}

	return s.linkRepo.Upsert(ctx, listing.ID, model.MarketplacePoshmark, func(link *model.MarketplaceLink) {
		link.Status = result.Status
		link.ExternalItemID = result.ExternalItemID
		link.ExternalURL = result.URL
	})
}

// SyncEbayInventory 串行化后的库存对账入口
func (s *PublishService) SyncEbayInventory(ctx context.Context, userID int64) (found, matched int, err error) {
	unlock := s.locker.Lock(net.AccountKey(userID, model.MarketplaceEbay))
	defer unlock()
	return s.ebay.SyncInventory(ctx, userID)
}

// ListLinks 查商品的全部发布状态行（含归属校验）
func (s *PublishService) ListLinks(ctx context.Context, userID, listingID int64) ([]model.MarketplaceLink, error) {
	if _, err := s.listingRepo.GetOwnedByID(ctx, listingID, userID); err != nil {
		return nil, fmt.Errorf("listing %d not found: %w", listingID, err)
	}
	return s.linkRepo.ListForListing(ctx, listingID)
}
