package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/leehj825/ResaleHubBackend/internal/model"
	"github.com/leehj825/ResaleHubBackend/internal/repository"
	"github.com/leehj825/ResaleHubBackend/pkg/browser"
	"github.com/leehj825/ResaleHubBackend/pkg/config"
)

// Poshmark 站点地址
const (
	poshmarkLoginURL = "https://poshmark.com/login"
	poshmarkFeedURL  = "https://poshmark.com/feed"
)

// 登录态校验用的个人标识元素：导航栏头像或指向个人页的链接
const poshmarkProfileSelector = `.header-user-profile, a[href*="/user/"]`

// 登录表单输入框候选选择器，按优先级排列取第一个命中的
var poshmarkEmailSelectors = []string{
	`input[name="login_form[username_email]"]`,
	`input[name*="email" i]`,
	`input[name*="username" i]`,
}

// 首页跳转场景下展开登录表单的入口
const poshmarkLoginAffordance = `header a[href="/login"], a[href="/login"]`

// PoshmarkSession 一次已打开的浏览器会话
// Close 在任何退出路径都必须调用，负责回收浏览器进程
type PoshmarkSession struct {
	Browser *rod.Browser
	Page    *rod.Page
	close   func()
}

// Close 释放会话持有的全部浏览器资源
func (s *PoshmarkSession) Close() {
	if s.close != nil {
		s.close()
	}
}

// PoshmarkSessionService 浏览器会话管理
// 职责：凭证取用、会话打开与复用、两种登录路径 (账密 / Cookie 导入)、登录态落盘
type PoshmarkSessionService struct {
	accountRepo repository.MarketplaceAccountRepository
	sessions    browser.SessionStore
	cfg         *config.BrowserConfig

	// 浏览器启动入口，测试里替换掉避免真起 Chrome
	launch func(headless bool) (*rod.Browser, func(), error)
}

// NewPoshmarkSessionService 工厂方法
func NewPoshmarkSessionService(accountRepo repository.MarketplaceAccountRepository, sessions browser.SessionStore, cfg *config.BrowserConfig) *PoshmarkSessionService {
	return &PoshmarkSessionService{
		accountRepo: accountRepo,
		sessions:    sessions,
		cfg:         cfg,
		launch:      browser.Launch,
	}
}

// ==================== 凭证 ====================

// Credentials 取用户的 Poshmark 凭证
// Username 为登录名；Secret 为密码或序列化的 Cookie 集（AccessToken 字段复用）
func (s *PoshmarkSessionService) Credentials(ctx context.Context, userID int64) (username, secret string, err error) {
	account, err := s.accountRepo.GetByUserAndMarketplace(ctx, userID, model.MarketplacePoshmark)
	if err != nil {
		return "", "", &AuthError{Marketplace: model.MarketplacePoshmark, Code: AuthNotConnected, Detail: "Poshmark account not connected"}
	}
	if account.Username == "" || account.AccessToken == "" {
		return "", "", &AuthError{Marketplace: model.MarketplacePoshmark, Code: AuthNotConnected, Detail: "Poshmark credentials not configured"}
	}
	return account.Username, account.AccessToken, nil
}

// ==================== 会话生命周期 ====================

// Open 启动浏览器并尽力恢复该用户上次保存的会话
// blockResources 控制是否拦截静态资源（发布和巡检路径开启，调试时关闭）
func (s *PoshmarkSessionService) Open(userID int64, blockResources bool) (*PoshmarkSession, error) {
	b, cleanup, err := s.launch(s.cfg.Headless)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	// 落盘的会话注入失败不致命，走全量登录兜底
	if state, loadErr := s.sessions.Load(userID); loadErr == nil && len(state) > 0 {
		if importErr := browser.ImportCookies(b, state); importErr != nil {
			log.Printf("[Poshmark] 用户 %d 的会话恢复失败: %v", userID, importErr)
		}
	}

	page, err := browser.NewStealthPage(b)
	if err != nil {
		cleanup()
		return nil, err
	}
	if blockResources {
		browser.BlockStaticResources(page)
	}

	return &PoshmarkSession{Browser: b, Page: page, close: cleanup}, nil
}

// Validate 校验会话登录态
// 打开主信息流：没被重定向回登录页且能看到个人标识元素才算有效
func (s *PoshmarkSessionService) Validate(session *PoshmarkSession) bool {
	if err := session.Page.Timeout(15 * time.Second).Navigate(poshmarkFeedURL); err != nil {
		return false
	}
	_ = session.Page.Timeout(10 * time.Second).WaitLoad()

	pageURL, _, _ := browser.PageState(session.Page)
	if strings.Contains(strings.ToLower(pageURL), "login") {
		return false
	}
	_, err := session.Page.Timeout(5 * time.Second).Element(poshmarkProfileSelector)
	return err == nil
}

// EnsureLoggedIn 保证会话可用：有效会话直接复用，否则全量登录并把新会话落盘
func (s *PoshmarkSessionService) EnsureLoggedIn(ctx context.Context, session *PoshmarkSession, userID int64) error {
	username, secret, err := s.Credentials(ctx, userID)
	if err != nil {
		return err
	}

	if s.Validate(session) {
		return nil
	}

	if err := s.LoginFull(session, username, secret); err != nil {
		return err
	}
	s.persistSession(session, userID)
	return nil
}

// persistSession 导出浏览器 Cookie 并按用户落盘，失败只记录
func (s *PoshmarkSessionService) persistSession(session *PoshmarkSession, userID int64) {
	state, err := browser.ExportCookies(session.Browser)
	if err != nil {
		log.Printf("[Poshmark] 用户 %d 的会话导出失败: %v", userID, err)
		return
	}
	if err := s.sessions.Save(userID, state); err != nil {
		log.Printf("[Poshmark] 用户 %d 的会话保存失败: %v", userID, err)
	}
}

// ==================== 登录 ====================

// LoginQuick 校验型登录：短超时、重定向等待宽松
// 用于凭证验证和库存巡检，不用于发布前置
func (s *PoshmarkSessionService) LoginQuick(session *PoshmarkSession, username, secret string) error {
	return s.login(session, username, secret, 20*time.Second, false)
}

// LoginFull 发布前置的全量登录：长超时、等待网络静默
func (s *PoshmarkSessionService) LoginFull(session *PoshmarkSession, username, secret string) error {
	return s.login(session, username, secret, 60*time.Second, true)
}

func (s *PoshmarkSessionService) login(session *PoshmarkSession, username, secret string, navTimeout time.Duration, waitIdle bool) error {
	page := session.Page

	if err := page.Timeout(navTimeout).Navigate(poshmarkLoginURL); err != nil {
		return &AuthError{Marketplace: model.MarketplacePoshmark, Code: AuthLoginFailed, Detail: fmt.Sprintf("login page unreachable: %v", err)}
	}
	_ = page.Timeout(10 * time.Second).WaitLoad()
	time.Sleep(2 * time.Second) // 等待跳转和风控脚本落定

	// 风控拦截页命中即终止，重试会加重判定
	_, title, body := browser.PageState(page)
	if browser.IsInterstitial(title, body) {
		return &AuthError{
			Marketplace: model.MarketplacePoshmark,
			Code:        AuthAutomationBlocked,
			Detail:      fmt.Sprintf("interstitial detected at login, title: %q", title),
		}
	}

	emailField := s.findLoginField(page)

	// 首页跳转场景：点开登录入口后再找一次
	if emailField == nil {
		if affordance, err := page.Timeout(3 * time.Second).Element(poshmarkLoginAffordance); err == nil {
			_ = affordance.Click(proto.InputMouseButtonLeft, 1)
			time.Sleep(2 * time.Second)
			emailField = s.findLoginField(page)
		}
	}

	if emailField == nil {
		shot := browser.CaptureScreenshot(page, s.cfg.ScreenshotDir, "login_form_missing")
		return &AuthError{
			Marketplace: model.MarketplacePoshmark,
			Code:        AuthLoginFailed,
			Detail:      fmt.Sprintf("login form not found, title: %q, screenshot: %s", title, shot),
		}
	}

	if err := emailField.Input(username); err != nil {
		return &AuthError{Marketplace: model.MarketplacePoshmark, Code: AuthLoginFailed, Detail: fmt.Sprintf("fill username: %v", err)}
	}
	passwordField, err := page.Timeout(5 * time.Second).Element(`input[type="password"]`)
	if err != nil {
		return &AuthError{Marketplace: model.MarketplacePoshmark, Code: AuthLoginFailed, Detail: "password field not found"}
	}
	if err := passwordField.Input(secret); err != nil {
		return &AuthError{Marketplace: model.MarketplacePoshmark, Code: AuthLoginFailed, Detail: fmt.Sprintf("fill password: %v", err)}
	}

	submit, err := page.Timeout(5 * time.Second).Element(`button[type="submit"]`)
	if err != nil {
		return &AuthError{Marketplace: model.MarketplacePoshmark, Code: AuthLoginFailed, Detail: "submit button not found"}
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return &AuthError{Marketplace: model.MarketplacePoshmark, Code: AuthLoginFailed, Detail: fmt.Sprintf("click submit: %v", err)}
	}

	if waitIdle {
		// 网络静默等待尽力而为，超时不视作失败
		wait := page.Timeout(30 * time.Second).WaitRequestIdle(time.Second, nil, nil, nil)
		wait()
	} else {
		time.Sleep(3 * time.Second)
	}

	pageURL, _, _ := browser.PageState(page)
	if strings.Contains(strings.ToLower(pageURL), "/login") {
		return &AuthError{Marketplace: model.MarketplacePoshmark, Code: AuthLoginFailed, Detail: "still on login page after submit"}
	}
	return nil
}

// findLoginField 按候选选择器顺序找登录输入框，全都不命中返回 nil
func (s *PoshmarkSessionService) findLoginField(page *rod.Page) *rod.Element {
	for _, selector := range poshmarkEmailSelectors {
		if el, err := page.Timeout(3 * time.Second).Element(selector); err == nil {
			return el
		}
	}
	return nil
}

// ==================== 绑定 / 解绑 ====================

// VerifyCredentials 起一次性会话验证账密能否登录，不保留浏览器状态
func (s *PoshmarkSessionService) VerifyCredentials(username, secret string) bool {
	session, err := s.Open(0, true)
	if err != nil {
		log.Printf("[Poshmark] 凭证验证启动失败: %v", err)
		return false
	}
	defer session.Close()

	if err := s.LoginQuick(session, username, secret); err != nil {
		log.Printf("[Poshmark] 凭证验证未通过: %v", err)
		return false
	}
	return true
}

// ConnectWithPassword 账密绑定：验证通过后落库
// 密码存在 AccessToken 字段，与 Cookie 绑定路径共用同一个槽位
func (s *PoshmarkSessionService) ConnectWithPassword(ctx context.Context, userID int64, username, password string) error {
	if username == "" || password == "" {
		return &AuthError{Marketplace: model.MarketplacePoshmark, Code: AuthLoginFailed, Detail: "username and password required"}
	}
	if !s.VerifyCredentials(username, password) {
		return &AuthError{Marketplace: model.MarketplacePoshmark, Code: AuthLoginFailed, Detail: "credential verification failed"}
	}
	return s.accountRepo.SaveOrUpdate(ctx, &model.MarketplaceAccount{
		UserID:      userID,
		Marketplace: model.MarketplacePoshmark,
		Username:    username,
		AccessToken: password,
	})
}

// ConnectWithCookies Cookie 导入绑定：完全绕开自动化登录及其风控
// 用户名优先取 "un" Cookie；Cookie 集直接作为该用户的初始会话落盘
func (s *PoshmarkSessionService) ConnectWithCookies(ctx context.Context, userID int64, cookieJSON []byte) (string, error) {
	if _, err := browser.ParseCookies(cookieJSON); err != nil {
		return "", fmt.Errorf("invalid cookie payload: %w", err)
	}

	username := browser.CookieValue(cookieJSON, "un", "username")
	if username == "" {
		username = "Connected Account"
	}

	// 规范化后再入库，剔除插件导出时夹带的多余字段
	compact, err := json.Marshal(json.RawMessage(cookieJSON))
	if err != nil {
		compact = cookieJSON
	}

	if err := s.accountRepo.SaveOrUpdate(ctx, &model.MarketplaceAccount{
		UserID:      userID,
		Marketplace: model.MarketplacePoshmark,
		Username:    username,
		AccessToken: string(compact),
	}); err != nil {
		return "", err
	}

	if err := s.sessions.Save(userID, cookieJSON); err != nil {
		log.Printf("[Poshmark] 用户 %d 的 Cookie 会话落盘失败: %v", userID, err)
	}
	return username, nil
}

// Status 绑定状态查询
func (s *PoshmarkSessionService) Status(ctx context.Context, userID int64) (connected bool, username string) {
	account, err := s.accountRepo.GetByUserAndMarketplace(ctx, userID, model.MarketplacePoshmark)
	if err != nil {
		return false, ""
	}
	return account.AccessToken != "", account.Username
}

// Disconnect 解绑：删除账号凭证和落盘会话
func (s *PoshmarkSessionService) Disconnect(ctx context.Context, userID int64) error {
	if err := s.accountRepo.Delete(ctx, userID, model.MarketplacePoshmark); err != nil {
		return err
	}
	if err := s.sessions.Delete(userID); err != nil {
		log.Printf("[Poshmark] 用户 %d 的会话清除失败: %v", userID, err)
	}
	return nil
}
