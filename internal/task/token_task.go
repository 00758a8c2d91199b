package task

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/leehj825/ResaleHubBackend/internal/model"
	"github.com/leehj825/ResaleHubBackend/internal/repository"
	"github.com/leehj825/ResaleHubBackend/internal/service"
)

// TokenTask eBay token 保活任务
// 周期性扫描临近过期的账号并提前刷新，避免发布请求撞上过期 token
type TokenTask struct {
	AccountRepo repository.MarketplaceAccountRepository
	AuthService *service.EbayAuthService
	Cron        *cron.Cron

	// 控制并发刷新的数量，避免集中打爆 token 端点
	concurrencyLimit int
	sleepTime        time.Duration
	// 提前量：过期时间落在这个窗口内的账号都刷新
	expiryWindow time.Duration
}

// NewTokenTask 工厂方法
func NewTokenTask(accountRepo repository.MarketplaceAccountRepository, authService *service.EbayAuthService) *TokenTask {
	return &TokenTask{
		AccountRepo:      accountRepo,
		AuthService:      authService,
		Cron:             cron.New(cron.WithSeconds()), // 支持秒级控制
		concurrencyLimit: 10,
		sleepTime:        50 * time.Millisecond, // 每个协程启动间隔，平滑波峰
		expiryWindow:     30 * time.Minute,
	}
}

// Start 启动定时任务
func (t *TokenTask) Start() {
	// 首次执行
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		log.Println("[Task] 服务启动，正在执行首次 Token 检查...")
		t.refreshJob(ctx)
	}()

	// 定时策略：每 20 分钟一轮
	_, err := t.Cron.AddFunc("0 0/20 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		t.refreshJob(ctx)
	})
	if err != nil {
		log.Fatalf("无法启动 Token 定时任务: %v", err)
	}

	t.Cron.Start()
	log.Println("[Task] Token 保活任务已启动 (每20分钟检查一次)")
}

// Stop 停止定时任务
func (t *TokenTask) Stop() {
	t.Cron.Stop()
}

// 自动刷新逻辑
func (t *TokenTask) refreshJob(ctx context.Context) {
	deadline := time.Now().Add(t.expiryWindow)
	accounts, err := t.AccountRepo.FindExpiring(ctx, deadline)
	if err != nil {
		log.Printf("[Cron] 临期账号查询失败: %v", err)
		return
	}
	if len(accounts) == 0 {
		return
	}

	// 信号量通道限制并发
	sem := make(chan struct{}, t.concurrencyLimit)
	var wg sync.WaitGroup

	log.Printf("[Cron] 开始刷新 %d 个临期账号, 并发上限: %d", len(accounts), t.concurrencyLimit)

	for _, account := range accounts {
		select {
		case <-ctx.Done():
			log.Println("[Cron] 任务超时停止")
			return
		default:
		}

		sem <- struct{}{}
		wg.Add(1)

		// 平滑波峰
		time.Sleep(t.sleepTime)

		go func(a model.MarketplaceAccount) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, refreshErr := t.AuthService.Refresh(ctx, &a); refreshErr != nil {
				// 日志仅记录，不中断其他协程
				log.Printf("[Cron] 用户 %d 的 token 刷新失败: %v", a.UserID, refreshErr)
			}
		}(account)
	}

	wg.Wait()
	log.Println("[Cron] 本轮 Token 刷新任务完成")
}
