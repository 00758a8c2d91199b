package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/leehj825/ResaleHubBackend/internal/model"
	"github.com/leehj825/ResaleHubBackend/internal/repository"
	"github.com/leehj825/ResaleHubBackend/pkg/config"
)

// ==================== 测试辅助 ====================

// 每次建库用独立的命名共享内存库：纯 ":memory:" 下连接池的每条连接各是一个库，
// 事务占住一条连接时，其他查询会落到另一条连接上的空库
var serviceTestDBSeq int64

func setupServiceTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:servicetest%d?mode=memory&cache=shared", atomic.AddInt64(&serviceTestDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
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
	return db
}

// newTestEbayStack 构建一套指向 httptest 服务器的 eBay 服务
func newTestEbayStack(t *testing.T, db *gorm.DB, server *httptest.Server, cfg *config.Config) (*EbayPublishService, repository.MarketplaceAccountRepository) {
	accountRepo := repository.NewMarketplaceAccountRepository(db)
	listingRepo := repository.NewListingRepository(db)
	linkRepo := repository.NewMarketplaceLinkRepository(db)

	auth := NewEbayAuthService(accountRepo, &cfg.Ebay)
	auth.apiBase = server.URL

	policy := NewEbayPolicyService(auth, &cfg.Ebay)
	publish := NewEbayPublishService(listingRepo, linkRepo, auth, policy, cfg)
	return publish, accountRepo
}

func seedEbayAccount(t *testing.T, db *gorm.DB, userID int64) {
	account := &model.MarketplaceAccount{
		UserID:         userID,
		Marketplace:    model.MarketplaceEbay,
		AccessToken:    "valid-token",
		RefreshToken:   "refresh-token",
		TokenExpiresAt: time.Now().Add(time.Hour),
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("写入测试账号失败: %v", err)
	}
}

// ==================== SKU 净化 ====================

func TestSanitizeSku(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"My Item #1!", "My-Item-1"},
		{"", "SKU"},
		{"!!!", "SKU"},
		{"abc-123", "abc-123"},
		{"a///b", "a///b"},
		{"--foo--", "foo"},
		{"__bar__", "bar"},
		{"USER1-LISTING2", "USER1-LISTING2"},
		{"_!a!_", "a"},
		{"-_x_-", "x"},
	}
	for _, c := range cases {
		if got := SanitizeSku(c.in); got != c.want {
			t.Errorf("SanitizeSku(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSanitizeSkuIdempotent(t *testing.T) {
	// '_'/'-' 交错的首尾串是重点：单独 Trim 两次会漏
	inputs := []string{"My Item #1!", "", "abc", "a b c", "采购-01", "x__y--z", "_!a!_", "a!_", "-_-x-_-"}
	for _, in := range inputs {
		once := SanitizeSku(in)
		twice := SanitizeSku(once)
		if once != twice {
			t.Errorf("净化不幂等: %q -> %q -> %q", in, once, twice)
		}
	}
}

// ==================== 成色映射 ====================

func TestMapEbayCondition(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Used - Good", "USED_GOOD"},
		{"Brand New", "NEW"},
		{"For parts", "FOR_PARTS_OR_NOT_WORKING"},
		{"???", "NEW"},
		{"Like New", "NEW"}, // "new" 的优先级高于 "like"
		{"like-new condition", "NEW"},
		{"gently used", "USED_GOOD"},
	}
	for _, c := range cases {
		if got := MapEbayCondition(c.in); got != c.want {
			t.Errorf("MapEbayCondition(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

// ==================== 图片过滤 ====================

func TestFilterImageURLs(t *testing.T) {
	in := []string{
		"https://cdn.example.com/a.jpg",
		"http://localhost:8000/media/b.jpg",
		"https://cdn.example.com/c.jpg",
		"http://127.0.0.1/d.jpg",
		"relative/path.jpg",
		"https://cdn.example.com/e.jpg",
	}
	got := FilterImageURLs(in)
	want := []string{
		"https://cdn.example.com/a.jpg",
		"https://cdn.example.com/c.jpg",
		"https://cdn.example.com/e.jpg",
	}
	if len(got) != len(want) {
		t.Fatalf("过滤结果数量不对: got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("顺序或内容错误: got[%d]=%q, want %q", i, got[i], want[i])
		}
	}
}

func TestFilterImageURLsCap(t *testing.T) {
	in := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		in = append(in, "https://cdn.example.com/img.jpg")
	}
	if got := FilterImageURLs(in); len(got) != maxImageURLs {
		t.Errorf("应截断到 %d 张, got %d", maxImageURLs, len(got))
	}
}

// ==================== REST 全链路 ====================

func TestPublishEndToEnd(t *testing.T) {
	db := setupServiceTestDB(t)

	var tokenCalls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/identity/v1/oauth2/token"):
			atomic.AddInt64(&tokenCalls, 1)
			w.WriteHeader(http.StatusOK)
		case strings.HasPrefix(r.URL.Path, "/sell/inventory/v1/location/"):
			w.WriteHeader(http.StatusOK)
		case strings.HasPrefix(r.URL.Path, "/sell/inventory/v1/inventory_item/"):
			if r.Method != http.MethodPut {
				t.Errorf("库存接口收到非 PUT 请求: %s", r.Method)
			}
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/sell/inventory/v1/offer" && r.Method == http.MethodPost:
			var req map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req["sku"] == "" {
				t.Error("报价请求缺少 sku")
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"offerId":"O1"}`))
		case strings.HasSuffix(r.URL.Path, "/publish"):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"listingId":"L1"}`))
		default:
			t.Errorf("意外的远端调用: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := &config.Config{
		MediaBaseURL: "https://cdn.example.com/media",
		Ebay: config.EbayConfig{
			Environment:         "sandbox",
			FulfillmentPolicyID: "F1",
			PaymentPolicyID:     "P1",
			ReturnPolicyID:      "R1",
		},
	}
	publish, _ := newTestEbayStack(t, db, server, cfg)

	seedEbayAccount(t, db, 1)
	listing := &model.Listing{
		OwnerID:   1,
		Title:     "Vintage Lamp",
		Price:     42.50,
		Condition: "Used - Good",
	}
	if err := db.Create(listing).Error; err != nil {
		t.Fatalf("写入测试商品失败: %v", err)
	}

	link, err := publish.Publish(context.Background(), 1, listing.ID)
	if err != nil {
		t.Fatalf("发布失败: %v", err)
	}

	if atomic.LoadInt64(&tokenCalls) != 0 {
		t.Errorf("token 未过期不应触发刷新, 实际 %d 次", tokenCalls)
	}
	if link.Status != model.LinkStatusPublished {
		t.Errorf("状态 = %q, want published", link.Status)
	}
	if link.ExternalItemID != "L1" {
		t.Errorf("external_item_id = %q, want L1", link.ExternalItemID)
	}
	if link.OfferID != "O1" {
		t.Errorf("offer_id = %q, want O1", link.OfferID)
	}
	if link.ExternalURL != "https://sandbox.ebay.com/itm/L1" {
		t.Errorf("external_url = %q", link.ExternalURL)
	}

	// 无 SKU 商品应合成并回写
	var reloaded model.Listing
	if err := db.First(&reloaded, listing.ID).Error; err != nil {
		t.Fatalf("回查商品失败: %v", err)
	}
	wantSku := SanitizeSku("USER1-LISTING" + strconv.FormatInt(listing.ID, 10))
	if reloaded.Sku != wantSku {
		t.Errorf("sku = %q, want %q", reloaded.Sku, wantSku)
	}
	if link.Sku != wantSku {
		t.Errorf("link.sku = %q, want %q", link.Sku, wantSku)
	}

	// 重发安全：再发布一次仍只有一条状态行
	if _, err := publish.Publish(context.Background(), 1, listing.ID); err != nil {
		t.Fatalf("二次发布失败: %v", err)
	}
	var count int64
	db.Model(&model.MarketplaceLink{}).
		Where("listing_id = ? AND marketplace = ?", listing.ID, model.MarketplaceEbay).
		Count(&count)
	if count != 1 {
		t.Errorf("状态行数量 = %d, want 1", count)
	}
}

func TestPublishOfferAlreadyExistsFallback(t *testing.T) {
	db := setupServiceTestDB(t)

	var offerUpdates int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/sell/inventory/v1/location/"):
			w.WriteHeader(http.StatusOK)
		case strings.HasPrefix(r.URL.Path, "/sell/inventory/v1/inventory_item/"):
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/sell/inventory/v1/offer" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errors":[{"errorId":25002,"message":"Offer entity already exists.","parameters":[{"name":"offerId","value":"O-EXISTING"}]}]}`))
		case r.URL.Path == "/sell/inventory/v1/offer/O-EXISTING" && r.Method == http.MethodPut:
			atomic.AddInt64(&offerUpdates, 1)
			w.WriteHeader(http.StatusNoContent)
		case strings.HasSuffix(r.URL.Path, "/publish"):
			if !strings.Contains(r.URL.Path, "O-EXISTING") {
				t.Errorf("publish 用了错误的 offer id: %s", r.URL.Path)
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"listingId":"L2"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := &config.Config{
		Ebay: config.EbayConfig{
			Environment:         "sandbox",
			FulfillmentPolicyID: "F1",
			PaymentPolicyID:     "P1",
			ReturnPolicyID:      "R1",
		},
	}
	publish, _ := newTestEbayStack(t, db, server, cfg)
	seedEbayAccount(t, db, 1)

	listing := &model.Listing{OwnerID: 1, Title: "Lamp", Sku: "LAMP-1", Price: 10, Condition: "new"}
	if err := db.Create(listing).Error; err != nil {
		t.Fatalf("写入测试商品失败: %v", err)
	}

	link, err := publish.Publish(context.Background(), 1, listing.ID)
	if err != nil {
		t.Fatalf("发布失败: %v", err)
	}
	if atomic.LoadInt64(&offerUpdates) != 1 {
		t.Errorf("已存在报价应改走更新, 实际更新 %d 次", offerUpdates)
	}
	if link.OfferID != "O-EXISTING" {
		t.Errorf("offer_id = %q, want O-EXISTING", link.OfferID)
	}
}

// ==================== 失败留痕 ====================

// 远端阶段失败后状态行要进入 failed，而不是悄无声息
func TestPublishMarksLinkFailedOnRemoteRejection(t *testing.T) {
	db := setupServiceTestDB(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/sell/inventory/v1/location/"):
			w.WriteHeader(http.StatusOK)
		case strings.HasPrefix(r.URL.Path, "/sell/inventory/v1/inventory_item/"):
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"errors":[{"message":"boom"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := &config.Config{
		Ebay: config.EbayConfig{
			Environment:         "sandbox",
			FulfillmentPolicyID: "F1",
			PaymentPolicyID:     "P1",
			ReturnPolicyID:      "R1",
		},
	}
	publish, _ := newTestEbayStack(t, db, server, cfg)
	seedEbayAccount(t, db, 1)

	listing := &model.Listing{OwnerID: 1, Title: "Lamp", Sku: "LAMP-1", Price: 10, Condition: "new"}
	if err := db.Create(listing).Error; err != nil {
		t.Fatalf("写入测试商品失败: %v", err)
	}

	_, err := publish.Publish(context.Background(), 1, listing.ID)
	if !IsRemoteError(err) {
		t.Fatalf("应返回远端拒绝, got %v", err)
	}

	var link model.MarketplaceLink
	if err := db.Where("listing_id = ? AND marketplace = ?", listing.ID, model.MarketplaceEbay).
		First(&link).Error; err != nil {
		t.Fatalf("失败后应留下状态行: %v", err)
	}
	if link.Status != model.LinkStatusFailed {
		t.Errorf("状态 = %q, want failed", link.Status)
	}
	if link.Sku != "LAMP-1" {
		t.Errorf("link.sku = %q, want LAMP-1", link.Sku)
	}
}

// 远端库存删除成功后本地状态行一并清掉，且之后能重新发布
func TestDeleteInventoryItemClearsLink(t *testing.T) {
	db := setupServiceTestDB(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/sell/inventory/v1/inventory_item/") {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := &config.Config{Ebay: config.EbayConfig{Environment: "sandbox"}}
	publish, _ := newTestEbayStack(t, db, server, cfg)
	seedEbayAccount(t, db, 1)

	listing := &model.Listing{OwnerID: 1, Title: "Lamp", Sku: "LAMP-1", Price: 10}
	if err := db.Create(listing).Error; err != nil {
		t.Fatalf("写入测试商品失败: %v", err)
	}
	link := &model.MarketplaceLink{
		ListingID: listing.ID, Marketplace: model.MarketplaceEbay,
		Status: model.LinkStatusPublished, Sku: "LAMP-1", ExternalItemID: "L1",
	}
	if err := db.Create(link).Error; err != nil {
		t.Fatalf("写入状态行失败: %v", err)
	}

	if err := publish.DeleteInventoryItem(context.Background(), 1, "LAMP-1"); err != nil {
		t.Fatalf("删除失败: %v", err)
	}

	var count int64
	db.Unscoped().Model(&model.MarketplaceLink{}).
		Where("listing_id = ? AND marketplace = ?", listing.ID, model.MarketplaceEbay).
		Count(&count)
	if count != 0 {
		t.Errorf("状态行应被清除, 仍有 %d 行", count)
	}
}

// ==================== 库存对账分页 ====================

func TestSyncInventoryPaginates(t *testing.T) {
	db := setupServiceTestDB(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.HasPrefix(r.URL.Path, "/sell/inventory/v1/inventory_item") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("offset") == "0" {
			_, _ = w.Write([]byte(`{"total":3,"size":2,"inventoryItems":[{"sku":"SKU-A"},{"sku":"SKU-B"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"total":3,"size":1,"inventoryItems":[{"sku":"SKU-C"}]}`))
	}))
	defer server.Close()

	cfg := &config.Config{Ebay: config.EbayConfig{Environment: "sandbox"}}
	publish, _ := newTestEbayStack(t, db, server, cfg)
	seedEbayAccount(t, db, 1)

	// 本地只有 SKU-A 和 SKU-C；SKU-C 在第二页，漏分页就对不上
	for _, sku := range []string{"SKU-A", "SKU-C"} {
		if err := db.Create(&model.Listing{OwnerID: 1, Title: sku, Sku: sku, Price: 1}).Error; err != nil {
			t.Fatalf("写入测试商品失败: %v", err)
		}
	}

	found, matched, err := publish.SyncInventory(context.Background(), 1)
	if err != nil {
		t.Fatalf("对账失败: %v", err)
	}
	if found != 3 {
		t.Errorf("found = %d, want 3", found)
	}
	if matched != 2 {
		t.Errorf("matched = %d, want 2", matched)
	}

	var count int64
	db.Model(&model.MarketplaceLink{}).Where("marketplace = ?", model.MarketplaceEbay).Count(&count)
	if count != 2 {
		t.Errorf("状态行数量 = %d, want 2", count)
	}
}
