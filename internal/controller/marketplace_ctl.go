package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/leehj825/ResaleHubBackend/internal/middleware"
	"github.com/leehj825/ResaleHubBackend/internal/service"
)

// MarketplaceController 市场接入 HTTP 层
// 路由分三类：账号绑定 (connect/callback/status/disconnect)、发布、巡检
type MarketplaceController struct {
	authSvc     *service.EbayAuthService
	publishSvc  *service.PublishService
	ebaySvc     *service.EbayPublishService
	poshmarkSvc *service.PoshmarkAutomationService
	sessionSvc  *service.PoshmarkSessionService
}

// NewMarketplaceController 工厂方法
func NewMarketplaceController(
	authSvc *service.EbayAuthService,
	publishSvc *service.PublishService,
	ebaySvc *service.EbayPublishService,
	poshmarkSvc *service.PoshmarkAutomationService,
	sessionSvc *service.PoshmarkSessionService,
) *MarketplaceController {
	return &MarketplaceController{
		authSvc:     authSvc,
		publishSvc:  publishSvc,
		ebaySvc:     ebaySvc,
		poshmarkSvc: poshmarkSvc,
		sessionSvc:  sessionSvc,
	}
}

// ==================== 错误映射 ====================

// writeServiceError 把服务层错误分类映射成 HTTP 状态码
// 鉴权类 401，前置配置/远端拒绝/自动化失败 400，网络层失败 502，其余 500
func writeServiceError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "资源不存在"})
	case service.IsAuthError(err):
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case service.IsConfigError(err), service.IsRemoteError(err), service.IsAutomationError(err):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case service.IsNetworkError(err):
		ctx.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func listingIDParam(ctx *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("listing_id"), 10, 64)
	if err != nil || id <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "无效的商品ID"})
		return 0, false
	}
	return id, true
}

// ==================== eBay 绑定 ====================

// EbayConnect 生成 eBay 授权跳转链接
// GET /api/marketplaces/ebay/connect
func (c *MarketplaceController) EbayConnect(ctx *gin.Context) {
	userID := middleware.UserID(ctx)
	ctx.JSON(http.StatusOK, gin.H{"auth_url": c.authSvc.BuildConnectURL(userID)})
}

// EbayOAuthCallback 处理 eBay 授权回调
// GET /api/marketplaces/ebay/oauth/callback?code=xx&state=xx
func (c *MarketplaceController) EbayOAuthCallback(ctx *gin.Context) {
	code := ctx.Query("code")
	state := ctx.Query("state")
	if code == "" || state == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "缺少 code 或 state 参数"})
		return
	}

	if err := c.authSvc.HandleOAuthCallback(ctx.Request.Context(), code, state); err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "eBay 账号绑定成功"})
}

// ==================== eBay 发布 ====================

// EbayPublish 发布商品到 eBay
// POST /api/marketplaces/ebay/:listing_id/publish
func (c *MarketplaceController) EbayPublish(ctx *gin.Context) {
	listingID, ok := listingIDParam(ctx)
	if !ok {
		return
	}

	link, err := c.publishSvc.Publish(ctx.Request.Context(), middleware.UserID(ctx), listingID, "ebay")
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message":    "Processed",
		"listing_id": link.ExternalItemID,
		"url":        link.ExternalURL,
	})
}

// EbayPrepareOffer 只建库存和报价，不上架
// POST /api/marketplaces/ebay/:listing_id/prepare-offer
func (c *MarketplaceController) EbayPrepareOffer(ctx *gin.Context) {
	listingID, ok := listingIDParam(ctx)
	if !ok {
		return
	}

	link, err := c.publishSvc.PrepareOffer(ctx.Request.Context(), middleware.UserID(ctx), listingID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message":  "库存与报价已就绪（未上架）",
		"offer_id": link.OfferID,
		"sku":      link.Sku,
	})
}

// ==================== eBay 库存 ====================

// EbayInventory 透传远端库存列表
// GET /api/marketplaces/ebay/inventory
func (c *MarketplaceController) EbayInventory(ctx *gin.Context) {
	items, err := c.ebaySvc.ListInventory(ctx.Request.Context(), middleware.UserID(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, items)
}

// EbayDeleteInventoryItem 删除远端库存项
// DELETE /api/marketplaces/ebay/inventory/:sku
func (c *MarketplaceController) EbayDeleteInventoryItem(ctx *gin.Context) {
	sku := ctx.Param("sku")
	if sku == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "缺少 sku"})
		return
	}

	if err := c.ebaySvc.DeleteInventoryItem(ctx.Request.Context(), middleware.UserID(ctx), sku); err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Deleted", "sku": sku})
}

// EbaySyncInventory 远端库存对账
// POST /api/marketplaces/ebay/sync-inventory
func (c *MarketplaceController) EbaySyncInventory(ctx *gin.Context) {
	found, matched, err := c.publishSvc.SyncEbayInventory(ctx.Request.Context(), middleware.UserID(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message":                "Sync completed",
		"ebay_items_found":       found,
		"local_listings_matched": matched,
	})
}

// ==================== Poshmark ====================

// PoshmarkConnectCookies Cookie 导入绑定
// POST /api/marketplaces/poshmark/connect/cookies
// 请求体为浏览器插件导出的 Cookie 数组 JSON
func (c *MarketplaceController) PoshmarkConnectCookies(ctx *gin.Context) {
	body, err := ctx.GetRawData()
	if err != nil || len(body) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "缺少 Cookie 数据"})
		return
	}

	username, err := c.sessionSvc.ConnectWithCookies(ctx.Request.Context(), middleware.UserID(ctx), body)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "connected", "username": username})
}

// poshmarkCredentialsReq 账密绑定请求体
type poshmarkCredentialsReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// PoshmarkConnect 账密绑定（先验证能登录再落库）
// POST /api/marketplaces/poshmark/connect
func (c *MarketplaceController) PoshmarkConnect(ctx *gin.Context) {
	var req poshmarkCredentialsReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}

	if err := c.sessionSvc.ConnectWithPassword(ctx.Request.Context(), middleware.UserID(ctx), req.Username, req.Password); err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "connected", "username": req.Username})
}

// PoshmarkPublish 浏览器自动化发布
// POST /api/marketplaces/poshmark/:listing_id/publish
func (c *MarketplaceController) PoshmarkPublish(ctx *gin.Context) {
	listingID, ok := listingIDParam(ctx)
	if !ok {
		return
	}

	link, err := c.publishSvc.Publish(ctx.Request.Context(), middleware.UserID(ctx), listingID, "poshmark")
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message":    "Published to Poshmark",
		"listing_id": link.ExternalItemID,
		"url":        link.ExternalURL,
	})
}

// PoshmarkInventory 橱窗抓取
// GET /api/marketplaces/poshmark/inventory
func (c *MarketplaceController) PoshmarkInventory(ctx *gin.Context) {
	items, err := c.poshmarkSvc.GetInventory(ctx.Request.Context(), middleware.UserID(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

// ==================== 通用 ====================

// Status 账号绑定状态
// GET /api/marketplaces/:marketplace/status
func (c *MarketplaceController) Status(ctx *gin.Context) {
	marketplace := ctx.Param("marketplace")
	userID := middleware.UserID(ctx)

	switch marketplace {
	case "ebay":
		account, err := c.authSvc.GetAccount(ctx.Request.Context(), userID)
		if err != nil {
			ctx.JSON(http.StatusOK, gin.H{"connected": false, "marketplace": marketplace})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"connected": true, "marketplace": marketplace, "username": account.Username})
	case "poshmark":
		connected, username := c.sessionSvc.Status(ctx.Request.Context(), userID)
		ctx.JSON(http.StatusOK, gin.H{"connected": connected, "marketplace": marketplace, "username": username})
	default:
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "未知市场: " + marketplace})
	}
}

// Disconnect 解绑账号
// DELETE /api/marketplaces/:marketplace/disconnect
func (c *MarketplaceController) Disconnect(ctx *gin.Context) {
	marketplace := ctx.Param("marketplace")
	userID := middleware.UserID(ctx)

	switch marketplace {
	case "ebay":
		if err := c.authSvc.Disconnect(ctx.Request.Context(), userID); err != nil {
			writeServiceError(ctx, err)
			return
		}
	case "poshmark":
		if err := c.sessionSvc.Disconnect(ctx.Request.Context(), userID); err != nil {
			writeServiceError(ctx, err)
			return
		}
	default:
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "未知市场: " + marketplace})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": marketplace + " 账号已解绑"})
}

// ListingMarketplaces 商品已发布的市场列表
// GET /api/marketplaces/listings/:listing_id
func (c *MarketplaceController) ListingMarketplaces(ctx *gin.Context) {
	listingID, ok := listingIDParam(ctx)
	if !ok {
		return
	}

	links, err := c.publishSvc.ListLinks(ctx.Request.Context(), middleware.UserID(ctx), listingID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	marketplaces := make([]string, 0, len(links))
	for _, link := range links {
		marketplaces = append(marketplaces, link.Marketplace)
	}
	ctx.JSON(http.StatusOK, marketplaces)
}
