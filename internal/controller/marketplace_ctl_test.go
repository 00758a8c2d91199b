package controller_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/leehj825/ResaleHubBackend/internal/controller"
	"github.com/leehj825/ResaleHubBackend/internal/model"
	"github.com/leehj825/ResaleHubBackend/internal/repository"
	"github.com/leehj825/ResaleHubBackend/internal/router"
	"github.com/leehj825/ResaleHubBackend/internal/service"
	"github.com/leehj825/ResaleHubBackend/pkg/browser"
	"github.com/leehj825/ResaleHubBackend/pkg/config"
)

// ==================== 测试辅助 ====================

// setupCtlRouter 用内存库和真实服务栈组装完整路由
// 只覆盖不出网、不起浏览器的路径：参数校验、身份校验、状态查询、解绑
func setupCtlRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(
		&model.User{}, &model.Listing{}, &model.ListingImage{},
		&model.MarketplaceAccount{}, &model.MarketplaceLink{},
	); err != nil {
		t.Fatalf("建表失败: %v", err)
	}

	cfg := &config.Config{
		MediaBaseURL: "https://media.example.com",
		Ebay: config.EbayConfig{
			ClientID:     "test-client",
			ClientSecret: "test-secret",
			RedirectURI:  "https://example.com/callback",
			Environment:  "sandbox",
		},
		Browser: config.BrowserConfig{
			Headless:   true,
			SessionDir: t.TempDir(),
		},
	}

	listingRepo := repository.NewListingRepository(db)
	accountRepo := repository.NewMarketplaceAccountRepository(db)
	linkRepo := repository.NewMarketplaceLinkRepository(db)

	sessionStore, err := browser.NewFileSessionStore(cfg.Browser.SessionDir)
	if err != nil {
		t.Fatalf("会话存储初始化失败: %v", err)
	}

	authSvc := service.NewEbayAuthService(accountRepo, &cfg.Ebay)
	policySvc := service.NewEbayPolicyService(authSvc, &cfg.Ebay)
	ebaySvc := service.NewEbayPublishService(listingRepo, linkRepo, authSvc, policySvc, cfg)
	sessionSvc := service.NewPoshmarkSessionService(accountRepo, sessionStore, &cfg.Browser)
	poshmarkSvc := service.NewPoshmarkAutomationService(sessionSvc, cfg)
	publishSvc := service.NewPublishService(listingRepo, linkRepo, ebaySvc, poshmarkSvc)

	ctl := controller.NewMarketplaceController(authSvc, publishSvc, ebaySvc, poshmarkSvc, sessionSvc)

	r := gin.New()
	router.InitRoutes(r, ctl)
	return r, db
}

func doRequest(r *gin.Engine, method, path string, body []byte, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ==================== 身份中间件 ====================

func TestCurrentUser_MissingHeader(t *testing.T) {
	r, _ := setupCtlRouter(t)

	w := doRequest(r, http.MethodGet, "/api/marketplaces/ebay/connect", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCurrentUser_InvalidHeader(t *testing.T) {
	r, _ := setupCtlRouter(t)

	for _, raw := range []string{"abc", "0", "-3"} {
		w := doRequest(r, http.MethodGet, "/api/marketplaces/ebay/connect", nil, raw)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "header=%s", raw)
	}
}

func TestHealthz_NoAuthRequired(t *testing.T) {
	r, _ := setupCtlRouter(t)

	w := doRequest(r, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

// ==================== eBay 绑定 ====================

func TestEbayConnect_ReturnsAuthURL(t *testing.T) {
	r, _ := setupCtlRouter(t)

	w := doRequest(r, http.MethodGet, "/api/marketplaces/ebay/connect", nil, "1")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["auth_url"], "client_id=test-client")
	assert.Contains(t, resp["auth_url"], "state=1")
}

func TestEbayOAuthCallback_MissingParams(t *testing.T) {
	r, _ := setupCtlRouter(t)

	tests := []string{
		"/api/marketplaces/ebay/oauth/callback",
		"/api/marketplaces/ebay/oauth/callback?code=abc",
		"/api/marketplaces/ebay/oauth/callback?state=1",
	}
	for _, path := range tests {
		w := doRequest(r, http.MethodGet, path, nil, "1")
		assert.Equal(t, http.StatusBadRequest, w.Code, "path=%s", path)
	}
}

// ==================== 发布参数校验 ====================

func TestPublish_InvalidListingID(t *testing.T) {
	r, _ := setupCtlRouter(t)

	tests := []string{
		"/api/marketplaces/ebay/abc/publish",
		"/api/marketplaces/ebay/0/publish",
		"/api/marketplaces/ebay/-1/prepare-offer",
		"/api/marketplaces/poshmark/abc/publish",
	}
	for _, path := range tests {
		w := doRequest(r, http.MethodPost, path, nil, "1")
		assert.Equal(t, http.StatusBadRequest, w.Code, "path=%s", path)
	}
}

func TestPublish_ListingNotFound(t *testing.T) {
	r, _ := setupCtlRouter(t)

	w := doRequest(r, http.MethodPost, "/api/marketplaces/ebay/999/publish", nil, "1")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublish_OtherUsersListingHidden(t *testing.T) {
	r, db := setupCtlRouter(t)

	listing := &model.Listing{OwnerID: 2, Title: "别人的商品", Price: 10, Status: "active"}
	if err := db.Create(listing).Error; err != nil {
		t.Fatalf("造数失败: %v", err)
	}

	// 用户 1 访问用户 2 的商品，应与不存在同样表现
	w := doRequest(r, http.MethodPost, "/api/marketplaces/ebay/1/publish", nil, "1")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEbayPublish_NotConnected(t *testing.T) {
	r, db := setupCtlRouter(t)

	listing := &model.Listing{OwnerID: 1, Title: "我的商品", Price: 10, Status: "active"}
	if err := db.Create(listing).Error; err != nil {
		t.Fatalf("造数失败: %v", err)
	}

	// 未绑定 eBay 账号直接发布，应得 401
	w := doRequest(r, http.MethodPost, "/api/marketplaces/ebay/1/publish", nil, "1")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// ==================== 账号状态 ====================

func TestStatus_UnknownMarketplace(t *testing.T) {
	r, _ := setupCtlRouter(t)

	w := doRequest(r, http.MethodGet, "/api/marketplaces/mercari/status", nil, "1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatus_EbayNotConnected(t *testing.T) {
	r, _ := setupCtlRouter(t)

	w := doRequest(r, http.MethodGet, "/api/marketplaces/ebay/status", nil, "1")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["connected"])
}

func TestStatus_EbayConnected(t *testing.T) {
	r, db := setupCtlRouter(t)

	account := &model.MarketplaceAccount{
		UserID:      1,
		Marketplace: model.MarketplaceEbay,
		Username:    "seller1",
		AccessToken: "tok",
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("造数失败: %v", err)
	}

	w := doRequest(r, http.MethodGet, "/api/marketplaces/ebay/status", nil, "1")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["connected"])
	assert.Equal(t, "seller1", resp["username"])
}

func TestStatus_PoshmarkNotConnected(t *testing.T) {
	r, _ := setupCtlRouter(t)

	w := doRequest(r, http.MethodGet, "/api/marketplaces/poshmark/status", nil, "1")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["connected"])
}

// ==================== 解绑 ====================

func TestDisconnect_Ebay(t *testing.T) {
	r, db := setupCtlRouter(t)

	account := &model.MarketplaceAccount{
		UserID:      1,
		Marketplace: model.MarketplaceEbay,
		AccessToken: "tok",
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("造数失败: %v", err)
	}

	w := doRequest(r, http.MethodDelete, "/api/marketplaces/ebay/disconnect", nil, "1")
	assert.Equal(t, http.StatusOK, w.Code)

	// 凭证已清除
	w = doRequest(r, http.MethodGet, "/api/marketplaces/ebay/status", nil, "1")
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["connected"])
}

func TestDisconnect_UnknownMarketplace(t *testing.T) {
	r, _ := setupCtlRouter(t)

	w := doRequest(r, http.MethodDelete, "/api/marketplaces/mercari/disconnect", nil, "1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ==================== Poshmark 绑定 ====================

func TestPoshmarkConnect_InvalidBody(t *testing.T) {
	r, _ := setupCtlRouter(t)

	tests := [][]byte{
		[]byte(`{}`),
		[]byte(`{"username":"u"}`),
		[]byte(`not json`),
	}
	for _, body := range tests {
		w := doRequest(r, http.MethodPost, "/api/marketplaces/poshmark/connect", body, "1")
		assert.Equal(t, http.StatusBadRequest, w.Code, "body=%s", body)
	}
}

func TestPoshmarkConnectCookies_EmptyBody(t *testing.T) {
	r, _ := setupCtlRouter(t)

	w := doRequest(r, http.MethodPost, "/api/marketplaces/poshmark/connect/cookies", nil, "1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPoshmarkConnectCookies_Success(t *testing.T) {
	r, _ := setupCtlRouter(t)

	cookies := []byte(`[{"name":"un","value":"posh_user","domain":".poshmark.com","path":"/"},` +
		`{"name":"_web_session","value":"abc","domain":".poshmark.com","path":"/"}]`)
	w := doRequest(r, http.MethodPost, "/api/marketplaces/poshmark/connect/cookies", cookies, "1")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "connected", resp["status"])
	assert.Equal(t, "posh_user", resp["username"])

	// 状态接口同步可见
	w = doRequest(r, http.MethodGet, "/api/marketplaces/poshmark/status", nil, "1")
	var status map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, true, status["connected"])
	assert.Equal(t, "posh_user", status["username"])
}

// ==================== 商品市场列表 ====================

func TestListingMarketplaces(t *testing.T) {
	r, db := setupCtlRouter(t)

	listing := &model.Listing{OwnerID: 1, Title: "商品", Price: 10, Status: "active"}
	if err := db.Create(listing).Error; err != nil {
		t.Fatalf("造数失败: %v", err)
	}
	link := &model.MarketplaceLink{
		ListingID: 1, Marketplace: model.MarketplaceEbay,
		Status: model.LinkStatusPublished, ExternalItemID: "L1",
	}
	if err := db.Create(link).Error; err != nil {
		t.Fatalf("造数失败: %v", err)
	}

	w := doRequest(r, http.MethodGet, "/api/marketplaces/listings/1", nil, "1")
	assert.Equal(t, http.StatusOK, w.Code)

	var marketplaces []string
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &marketplaces))
	assert.Equal(t, []string{"ebay"}, marketplaces)
}

func TestListingMarketplaces_NotFound(t *testing.T) {
	r, _ := setupCtlRouter(t)

	w := doRequest(r, http.MethodGet, "/api/marketplaces/listings/42", nil, "1")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
