package router

import (
	"github.com/gin-gonic/gin"

	"github.com/leehj825/ResaleHubBackend/internal/controller"
	"github.com/leehj825/ResaleHubBackend/internal/middleware"
)

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine, marketplaceCtl *controller.MarketplaceController) {
	// 健康检查不走身份中间件
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API 路由组，统一要求调用方身份
	api := r.Group("/api")
	api.Use(middleware.CurrentUser())
	{
		marketplaces := api.Group("/marketplaces")
		{
			// eBay 绑定与授权
			ebay := marketplaces.Group("/ebay")
			{
				// GET /api/marketplaces/ebay/connect
				ebay.GET("/connect", marketplaceCtl.EbayConnect)
				ebay.GET("/oauth/callback", marketplaceCtl.EbayOAuthCallback)

				// 库存
				ebay.GET("/inventory", marketplaceCtl.EbayInventory)
				ebay.DELETE("/inventory/:sku", marketplaceCtl.EbayDeleteInventoryItem)
				ebay.POST("/sync-inventory", marketplaceCtl.EbaySyncInventory)

				// 发布
				ebay.POST("/:listing_id/publish", marketplaceCtl.EbayPublish)
				ebay.POST("/:listing_id/prepare-offer", marketplaceCtl.EbayPrepareOffer)
			}

			// Poshmark 绑定与发布
			poshmark := marketplaces.Group("/poshmark")
			{
				poshmark.POST("/connect", marketplaceCtl.PoshmarkConnect)
				poshmark.POST("/connect/cookies", marketplaceCtl.PoshmarkConnectCookies)
				poshmark.GET("/inventory", marketplaceCtl.PoshmarkInventory)
				poshmark.POST("/:listing_id/publish", marketplaceCtl.PoshmarkPublish)
			}

			// 跨市场通用
			marketplaces.GET("/listings/:listing_id", marketplaceCtl.ListingMarketplaces)
			marketplaces.GET("/:marketplace/status", marketplaceCtl.Status)
			marketplaces.DELETE("/:marketplace/disconnect", marketplaceCtl.Disconnect)
		}
	}
}
