package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/leehj825/ResaleHubBackend/internal/model"
	"github.com/leehj825/ResaleHubBackend/pkg/browser"
	"github.com/leehj825/ResaleHubBackend/pkg/config"
	"github.com/leehj825/ResaleHubBackend/pkg/utils"
)

// 业务常量
const (
	poshmarkNewListingURL = "https://poshmark.com/listing/new"
	poshmarkClosetURL     = "https://poshmark.com/closet/"

	// 单次发布最多上传的图片数
	maxPoshmarkImages = 8
	// 表单元素挂载等待上限
	formAttachTimeout = 15 * time.Second
	// 图片注入后的处理等待
	uploadSettleDelay = 2 * time.Second
)

// 发布表单的可用性探针：文件控件或标题输入框任一挂载即视为表单就绪
const poshmarkFormSelector = `input[type="file"], input[name*="title" i]`

// 提交按钮候选，按站点不同版面接受多种文案
const poshmarkSubmitSelector = `button[type="submit"], button`

var poshmarkSubmitLabels = []string{"list item", "next", "publish"}

// 价格文本里的非数字字符
var nonNumeric = regexp.MustCompile(`[^0-9.]`)

// PoshmarkItem 橱窗抓取出的单个商品
type PoshmarkItem struct {
	Title string  `json:"title"`
	Price float64 `json:"price"`
	URL   string  `json:"url"`
	Sku   string  `json:"sku"`
}

// PoshmarkPublishResult 一次发布的终态
type PoshmarkPublishResult struct {
	Status         string
	URL            string
	ExternalItemID string
}

// PoshmarkAutomationService 浏览器发布流水线
// 阶段推进：会话校验 -> (按需登录) -> 进入表单 -> 传图 -> 填单 -> 提交 -> 确认
// 单次调用内不重试；任何致命失败都带阶段截图，浏览器在所有退出路径上回收
type PoshmarkAutomationService struct {
	sessions *PoshmarkSessionService
	cfg      *config.Config
	client   *resty.Client
}

// NewPoshmarkAutomationService 工厂方法
func NewPoshmarkAutomationService(sessions *PoshmarkSessionService, cfg *config.Config) *PoshmarkAutomationService {
	return &PoshmarkAutomationService{
		sessions: sessions,
		cfg:      cfg,
		client:   utils.NewRestyClient(15 * time.Second),
	}
}

// ==================== 发布流水线 ====================

// Publish 把商品发布到 Poshmark
// listing 与 images 由编排层校验归属后传入；浏览器生命周期完全封闭在本次调用内
func (s *PoshmarkAutomationService) Publish(ctx context.Context, userID int64, listing *model.Listing, images []model.ListingImage) (*PoshmarkPublishResult, error) {
	session, err := s.sessions.Open(userID, true)
	if err != nil {
		return nil, &AutomationError{Stage: "session", Detail: "browser start failed", Err: err}
	}
	defer session.Close()

	if err := s.sessions.EnsureLoggedIn(ctx, session, userID); err != nil {
		return nil, err
	}

	page := session.Page

	// --- 进入发布表单 ---
	if err := page.Timeout(30 * time.Second).Navigate(poshmarkNewListingURL); err != nil {
		return nil, &AutomationError{Stage: "navigate_form", Detail: "listing form unreachable", Err: err}
	}
	_ = page.Timeout(15 * time.Second).WaitLoad()

	if _, err := page.Timeout(formAttachTimeout).Element(poshmarkFormSelector); err != nil {
		return nil, s.formUnavailable(page)
	}

	// --- 传图（失败不致命，继续填单） ---
	if len(images) > 0 {
		if err := s.uploadImages(page, images); err != nil {
			log.Printf("[Poshmark] 图片上传失败 (忽略): %v", err)
		}
	}

	// --- 填单 ---
	title := listing.Title
	if title == "" {
		title = "Untitled"
	}
	description := listing.Description
	if description == "" {
		description = "No description"
	}
	// 两个价格输入框 (原价/售价) 都填整数化的挂牌价
	price := strconv.Itoa(int(listing.Price))

	if err := fillField(page, `input[name*="title" i], input[placeholder*="title" i]`, title); err != nil {
		return nil, s.fatal(page, "fill_fields", "title input not found", err)
	}
	if err := fillField(page, `textarea[name*="description" i]`, description); err != nil {
		return nil, s.fatal(page, "fill_fields", "description input not found", err)
	}
	if err := fillField(page, `input[name*="price" i], input[placeholder*="Original Price"]`, price); err != nil {
		return nil, s.fatal(page, "fill_fields", "original price input not found", err)
	}
	if err := fillField(page, `input[name="current_price"], input[data-testid="price-input"]`, price); err != nil {
		return nil, s.fatal(page, "fill_fields", "current price input not found", err)
	}

	// --- 提交 ---
	submit := s.findSubmitButton(page)
	if submit == nil {
		return nil, s.fatal(page, "submit", "publish button not found", nil)
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, s.fatal(page, "submit", "publish button click failed", err)
	}

	// --- 确认：网络静默尽力等待，超时不致命 ---
	wait := page.Timeout(30 * time.Second).WaitRequestIdle(time.Second, nil, nil, nil)
	wait()

	finalURL, _, _ := browser.PageState(page)
	return &PoshmarkPublishResult{
		Status:         model.LinkStatusPublished,
		URL:            finalURL,
		ExternalItemID: extractListingID(finalURL),
	}, nil
}

// formUnavailable 表单探针超时后的定性：先排查风控拦截，再落诊断材料
func (s *PoshmarkAutomationService) formUnavailable(page *rod.Page) error {
	_, title, body := browser.PageState(page)
	if browser.IsInterstitial(title, body) {
		return &AuthError{
			Marketplace: model.MarketplacePoshmark,
			Code:        AuthAutomationBlocked,
			Detail:      fmt.Sprintf("interstitial detected at listing form, title: %q", title),
		}
	}

	shot := browser.CaptureScreenshot(page, s.cfg.Browser.ScreenshotDir, "form_load_failed")
	snippet := body
	if len(snippet) > 500 {
		snippet = snippet[:500]
	}
	return &AutomationError{
		Stage:      "navigate_form",
		Detail:     fmt.Sprintf("listing form elements not found, content: %q", snippet),
		Screenshot: shot,
	}
}

func (s *PoshmarkAutomationService) fatal(page *rod.Page, stage, detail string, cause error) error {
	shot := browser.CaptureScreenshot(page, s.cfg.Browser.ScreenshotDir, stage)
	return &AutomationError{Stage: stage, Detail: detail, Screenshot: shot, Err: cause}
}

// uploadImages 并发拉图到临时文件后一次性注入文件控件
// 单张拉取失败静默丢弃；临时文件无论成败都在落定等待后清除
func (s *PoshmarkAutomationService) uploadImages(page *rod.Page, images []model.ListingImage) error {
	fileInput, err := page.Timeout(5 * time.Second).Element(`input[type="file"]`)
	if err != nil {
		return fmt.Errorf("file input not found: %w", err)
	}

	if len(images) > maxPoshmarkImages {
		images = images[:maxPoshmarkImages]
	}

	// 按下标并发拉取，保持图片顺序
	paths := make([]string, len(images))
	var wg sync.WaitGroup
	for i, img := range images {
		wg.Add(1)
		go func(i int, img model.ListingImage) {
			defer wg.Done()
			path, fetchErr := s.fetchImage(img)
			if fetchErr != nil {
				log.Printf("[Poshmark] 图片 %s 拉取失败 (丢弃): %v", img.FilePath, fetchErr)
				return
			}
			paths[i] = path
		}(i, img)
	}
	wg.Wait()

	files := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			files = append(files, p)
		}
	}
	defer func() {
		for _, f := range files {
			_ = os.Remove(f)
		}
	}()

	if len(files) == 0 {
		return fmt.Errorf("no images could be fetched")
	}
	if err := fileInput.SetFiles(files); err != nil {
		return fmt.Errorf("set files: %w", err)
	}
	time.Sleep(uploadSettleDelay)
	return nil
}

// fetchImage 把托管图片下载到一次性临时文件，返回本地路径
func (s *PoshmarkAutomationService) fetchImage(img model.ListingImage) (string, error) {
	base := strings.TrimRight(s.cfg.MediaBaseURL, "/")
	imgURL := base + "/" + strings.TrimLeft(img.FilePath, "/")

	resp, err := s.client.R().Get(imgURL)
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("status %d", resp.StatusCode())
	}

	suffix := filepath.Ext(img.FilePath)
	if suffix == "" {
		suffix = ".jpg"
	}
	tmp, err := os.CreateTemp("", "poshmark-img-*"+suffix)
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(resp.Body()); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// findSubmitButton 在接受的几种文案里找提交按钮
func (s *PoshmarkAutomationService) findSubmitButton(page *rod.Page) *rod.Element {
	buttons, err := page.Timeout(5 * time.Second).Elements(poshmarkSubmitSelector)
	if err != nil {
		return nil
	}
	for _, btn := range buttons {
		text, textErr := btn.Text()
		if textErr != nil {
			continue
		}
		label := strings.ToLower(strings.TrimSpace(text))
		for _, accepted := range poshmarkSubmitLabels {
			if strings.Contains(label, accepted) {
				return btn
			}
		}
	}
	return nil
}

// fillField 按选择器找到输入框并填值
func fillField(page *rod.Page, selector, value string) error {
	el, err := page.Timeout(5 * time.Second).Element(selector)
	if err != nil {
		return err
	}
	return el.Input(value)
}

// extractListingID 从最终地址的末段启发式提取市场侧商品 ID
// 形如 /listing/Vintage-Lamp-650a1b2c3d 时取最后一个 '-' 之后的部分
func extractListingID(pageURL string) string {
	if !strings.Contains(pageURL, "/listing/") {
		return ""
	}
	segments := strings.Split(strings.TrimRight(pageURL, "/"), "/")
	last := segments[len(segments)-1]
	if idx := strings.LastIndex(last, "-"); idx >= 0 {
		return last[idx+1:]
	}
	return last
}

// ==================== 橱窗抓取 ====================

// 商品卡片的候选选择器，站点版面迭代时逐个回退
var closetCardSelectors = []string{".tile", ".listing-tile", `[class*="tile"]`}

// GetInventory 抓取用户橱窗里的商品列表（只读，不分页）
// 残缺的卡片跳过而不是整批失败
func (s *PoshmarkAutomationService) GetInventory(ctx context.Context, userID int64) ([]PoshmarkItem, error) {
	username, secret, err := s.sessions.Credentials(ctx, userID)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Open(userID, true)
	if err != nil {
		return nil, &AutomationError{Stage: "session", Detail: "browser start failed", Err: err}
	}
	defer session.Close()

	// 巡检走校验型快速登录
	if !s.sessions.Validate(session) {
		if err := s.sessions.LoginQuick(session, username, secret); err != nil {
			return nil, err
		}
	}

	page := session.Page
	if err := page.Timeout(20 * time.Second).Navigate(poshmarkClosetURL + username); err != nil {
		return nil, &AutomationError{Stage: "closet", Detail: "closet page unreachable", Err: err}
	}
	_ = page.Timeout(15 * time.Second).WaitLoad()

	html, err := page.HTML()
	if err != nil {
		return nil, &AutomationError{Stage: "closet", Detail: "page content read failed", Err: err}
	}
	return parseClosetHTML(html), nil
}

// parseClosetHTML 从橱窗 HTML 里提取商品
// 每个字段都有多级回退选择器，任何一个卡片解析失败只影响它自己
func parseClosetHTML(html string) []PoshmarkItem {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	items := make([]PoshmarkItem, 0)
	seen := make(map[string]bool)
	for _, cardSelector := range closetCardSelectors {
		doc.Find(cardSelector).Each(func(index int, card *goquery.Selection) {
			link := card.Find(`a[href*="/listing/"]`).First()
			url, _ := link.Attr("href")
			if url == "" || seen[url] {
				return
			}

			// 标题：详情链接文本优先，退到 .title
			title := strings.TrimSpace(link.Text())
			if title == "" {
				title = strings.TrimSpace(card.Find(".title").First().Text())
			}
			if title == "" {
				return
			}

			// 价格：.price 优先，退到 .amount，解析不出按 0
			priceText := strings.TrimSpace(card.Find(".price").First().Text())
			if priceText == "" {
				priceText = strings.TrimSpace(card.Find(".amount").First().Text())
			}
			price, _ := strconv.ParseFloat(nonNumeric.ReplaceAllString(priceText, ""), 64)

			seen[url] = true
			items = append(items, PoshmarkItem{
				Title: title,
				Price: price,
				URL:   url,
				Sku:   fmt.Sprintf("poshmark-%d", len(items)),
			})
		})
		if len(items) > 0 {
			break
		}
	}
	return items
}
