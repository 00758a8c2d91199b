package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/leehj825/ResaleHubBackend/internal/model"
	"github.com/leehj825/ResaleHubBackend/internal/repository"
	"github.com/leehj825/ResaleHubBackend/pkg/config"
	"github.com/leehj825/ResaleHubBackend/pkg/ebay"
	"github.com/leehj825/ResaleHubBackend/pkg/net"
	"github.com/leehj825/ResaleHubBackend/pkg/utils"
)

// 业务常量
const (
	// 过期前 5 分钟视同已过期，避免请求途中失效
	tokenExpirySkew = 5 * time.Minute
	// refresh 失败后 token 的兜底有效期
	defaultTokenTTL = 7200
	// OAuth state 缓存有效期，覆盖整个授权跳转耗时
	oauthStateTTL = 10 * time.Minute

	tokenPath = "/identity/v1/oauth2/token"
)

// EbayAuthService eBay OAuth 凭证管理
// 职责：access token 的取用/刷新/落库，授权链接与回调，鉴权后的统一请求出口
type EbayAuthService struct {
	accountRepo repository.MarketplaceAccountRepository
	cfg         *config.EbayConfig
	client      *resty.Client
	// 同一账号的刷新全进程串行，保活任务和发布路径共用这把锁
	locker net.KeyedLocker
	// API 基地址，从 cfg 推导；拆出来方便测试替换
	apiBase string

	// 可注入时钟，测试用
	now func() time.Time
}

// NewEbayAuthService 工厂方法
func NewEbayAuthService(accountRepo repository.MarketplaceAccountRepository, cfg *config.EbayConfig) *EbayAuthService {
	return &EbayAuthService{
		accountRepo: accountRepo,
		cfg:         cfg,
		client:      utils.NewRestyClient(30 * time.Second),
		locker:      net.NewKeyedLocker(),
		apiBase:     cfg.APIBase(),
		now:         time.Now,
	}
}

// ==================== Token 生命周期 ====================

// GetAccount 取用户的 eBay 账号，未绑定返回 AuthError(NOT_CONNECTED)
func (s *EbayAuthService) GetAccount(ctx context.Context, userID int64) (*model.MarketplaceAccount, error) {
	account, err := s.accountRepo.GetByUserAndMarketplace(ctx, userID, model.MarketplaceEbay)
	if err != nil || !account.Connected() {
		return nil, &AuthError{Marketplace: model.MarketplaceEbay, Code: AuthNotConnected, Detail: "eBay account not connected"}
	}
	return account, nil
}

// GetValidToken 返回可用的 access token
// 距过期超过 5 分钟直接复用缓存值，零网络调用；否则用 refresh token 刷新并原子落库
func (s *EbayAuthService) GetValidToken(ctx context.Context, account *model.MarketplaceAccount) (string, error) {
	if account.TokenExpiresAt.After(s.now().Add(tokenExpirySkew)) {
		return account.AccessToken, nil
	}
	return s.Refresh(ctx, account)
}

// Refresh 刷新 access token 并落库（保活任务的提前刷新入口）
// 同一账号的刷新串行执行：定时保活和发布路径撞上时，后到的直接复用前者的结果
func (s *EbayAuthService) Refresh(ctx context.Context, account *model.MarketplaceAccount) (string, error) {
	if account.RefreshToken == "" {
		return "", &AuthError{Marketplace: model.MarketplaceEbay, Code: AuthNoRefreshToken, Detail: "re-authorization required"}
	}

	unlock := s.locker.Lock(net.AccountKey(account.UserID, model.MarketplaceEbay))
	defer unlock()

	// 拿到锁后重读：别的调用方刚刷新过就不再发第二次请求
	if stored, err := s.accountRepo.GetByUserAndMarketplace(ctx, account.UserID, model.MarketplaceEbay); err == nil &&
		stored.AccessToken != "" && stored.TokenExpiresAt.After(account.TokenExpiresAt) {
		account.AccessToken = stored.AccessToken
		account.RefreshToken = stored.RefreshToken
		account.TokenExpiresAt = stored.TokenExpiresAt
		return stored.AccessToken, nil
	}

	var tokenResp ebay.TokenResp
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetHeader("Authorization", "Basic "+s.basicAuth()).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": account.RefreshToken,
			"scope":         strings.Join(ebay.Scopes, " "),
		}).
		SetResult(&tokenResp).
		Post(s.apiBase + tokenPath)
	if err != nil {
		return "", &NetworkError{Marketplace: model.MarketplaceEbay, Stage: "token_refresh", Err: err}
	}
	if resp.StatusCode() != 200 || tokenResp.AccessToken == "" {
		return "", &AuthError{
			Marketplace: model.MarketplaceEbay,
			Code:        AuthRefreshFailed,
			Detail:      fmt.Sprintf("status %d: %s", resp.StatusCode(), resp.String()),
		}
	}

	expiresIn := tokenResp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultTokenTTL
	}
	expiresAt := s.now().Add(time.Duration(expiresIn) * time.Second)

	// refresh token 可能轮换，也可能不返回
	refreshToken := tokenResp.RefreshToken
	if refreshToken == "" {
		refreshToken = account.RefreshToken
	}

	// 先落库再返回：每次刷新恰好一次持久化更新
	if err := s.accountRepo.UpdateToken(ctx, account.ID, tokenResp.AccessToken, refreshToken, expiresAt); err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}
	account.AccessToken = tokenResp.AccessToken
	account.RefreshToken = refreshToken
	account.TokenExpiresAt = expiresAt

	return tokenResp.AccessToken, nil
}

// Call 鉴权后的统一 eBay REST 请求出口
// path 含查询串；result 非空时成功响应解析进去。返回原始响应供调用方判读状态码
func (s *EbayAuthService) Call(ctx context.Context, account *model.MarketplaceAccount, method, path string, body, result interface{}) (*resty.Response, error) {
	token, err := s.GetValidToken(ctx, account)
	if err != nil {
		return nil, err
	}

	req := s.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetHeader("Content-Language", "en-US")
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, s.apiBase+path)
	if err != nil {
		return nil, &NetworkError{
			Marketplace: model.MarketplaceEbay,
			Stage:       method + " " + path,
			Err:         err,
		}
	}
	return resp, nil
}

// ==================== OAuth 授权流程 ====================

// BuildConnectURL 生成 eBay 授权跳转链接，state 缓存 userID 供回调关联
func (s *EbayAuthService) BuildConnectURL(userID int64) string {
	state := strconv.FormatInt(userID, 10)
	utils.SetCache("ebay_oauth:"+state, state, oauthStateTTL)

	params := url.Values{}
	params.Set("client_id", s.cfg.ClientID)
	params.Set("redirect_uri", s.cfg.RedirectURI)
	params.Set("response_type", "code")
	params.Set("scope", strings.Join(ebay.Scopes, " "))
	params.Set("state", state)

	return s.cfg.AuthBase() + "/oauth2/authorize?" + params.Encode()
}

// HandleOAuthCallback 处理授权回调：code 换 token 并绑定账号
func (s *EbayAuthService) HandleOAuthCallback(ctx context.Context, code, state string) error {
	if _, ok := utils.GetCache("ebay_oauth:" + state); !ok {
		return fmt.Errorf("授权超时或 state 无效，请重新发起")
	}
	defer utils.DeleteCache("ebay_oauth:" + state)

	userID, err := strconv.ParseInt(state, 10, 64)
	if err != nil {
		return fmt.Errorf("state 中的用户 ID 无效: %w", err)
	}

	var tokenResp ebay.TokenResp
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetHeader("Authorization", "Basic "+s.basicAuth()).
		SetFormData(map[string]string{
			"grant_type":   "authorization_code",
			"code":         code,
			"redirect_uri": s.cfg.RedirectURI,
		}).
		SetResult(&tokenResp).
		Post(s.apiBase + tokenPath)
	if err != nil {
		return &NetworkError{Marketplace: model.MarketplaceEbay, Stage: "token_exchange", Err: err}
	}
	if resp.StatusCode() != 200 || tokenResp.AccessToken == "" {
		return &AuthError{
			Marketplace: model.MarketplaceEbay,
			Code:        AuthRefreshFailed,
			Detail:      fmt.Sprintf("token exchange status %d: %s", resp.StatusCode(), resp.String()),
		}
	}

	expiresIn := tokenResp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultTokenTTL
	}

	return s.accountRepo.SaveOrUpdate(ctx, &model.MarketplaceAccount{
		UserID:         userID,
		Marketplace:    model.MarketplaceEbay,
		AccessToken:    tokenResp.AccessToken,
		RefreshToken:   tokenResp.RefreshToken,
		TokenExpiresAt: s.now().Add(time.Duration(expiresIn) * time.Second),
	})
}

// Disconnect 解绑 eBay 账号
func (s *EbayAuthService) Disconnect(ctx context.Context, userID int64) error {
	return s.accountRepo.Delete(ctx, userID, model.MarketplaceEbay)
}

// basicAuth eBay 要求的 client 凭证编码: base64(client_id:client_secret)
func (s *EbayAuthService) basicAuth() string {
	raw := s.cfg.ClientID + ":" + s.cfg.ClientSecret
	return base64.StdEncoding.EncodeToString([]byte(raw))
}
