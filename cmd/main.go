package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/leehj825/ResaleHubBackend/internal/controller"
	"github.com/leehj825/ResaleHubBackend/internal/model"
	"github.com/leehj825/ResaleHubBackend/internal/repository"
	"github.com/leehj825/ResaleHubBackend/internal/router"
	"github.com/leehj825/ResaleHubBackend/internal/service"
	"github.com/leehj825/ResaleHubBackend/internal/task"
	"github.com/leehj825/ResaleHubBackend/pkg/browser"
	"github.com/leehj825/ResaleHubBackend/pkg/config"
	"github.com/leehj825/ResaleHubBackend/pkg/database"
)

func main() {
	// 1. 读取配置
	cfg := config.Load()

	// 2. 初始化数据库
	db := initDatabase(cfg)

	// 3. 初始化依赖
	deps := initDependencies(db, cfg)

	// 4. 启动定时任务
	initTasks(deps)

	// 5. 初始化路由
	r := gin.Default()
	router.InitRoutes(r, deps.Controllers.Marketplace)

	// 6. 启动服务
	startServer(r, cfg.ServerPort)
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB          *gorm.DB
	Repos       *Repositories
	Services    *Services
	Controllers *Controllers
}

// Repositories 仓库集合
type Repositories struct {
	Listing repository.ListingRepository
	Account repository.MarketplaceAccountRepository
	Link    repository.MarketplaceLinkRepository
}

// Services 服务集合
type Services struct {
	EbayAuth        *service.EbayAuthService
	EbayPolicy      *service.EbayPolicyService
	EbayPublish     *service.EbayPublishService
	PoshmarkSession *service.PoshmarkSessionService
	Poshmark        *service.PoshmarkAutomationService
	Publish         *service.PublishService
}

// Controllers 控制器集合
type Controllers struct {
	Marketplace *controller.MarketplaceController
}

// ==================== 初始化函数 ====================

// initDatabase 初始化数据库
func initDatabase(cfg *config.Config) *gorm.DB {
	return database.InitDB(cfg.DatabaseDSN,
		&model.User{},
		&model.Listing{}, &model.ListingImage{},
		&model.MarketplaceAccount{}, &model.MarketplaceLink{},
	)
}

// initDependencies 初始化所有依赖
func initDependencies(db *gorm.DB, cfg *config.Config) *Dependencies {
	// -------- Repo 层 --------
	repos := &Repositories{
		Listing: repository.NewListingRepository(db),
		Account: repository.NewMarketplaceAccountRepository(db),
		Link:    repository.NewMarketplaceLinkRepository(db),
	}

	// -------- 会话存储 --------
	sessionStore, err := browser.NewFileSessionStore(cfg.Browser.SessionDir)
	if err != nil {
		log.Fatalf("会话存储初始化失败: %v", err)
	}

	// -------- 业务服务 --------
	services := &Services{}
	services.EbayAuth = service.NewEbayAuthService(repos.Account, &cfg.Ebay)
	services.EbayPolicy = service.NewEbayPolicyService(services.EbayAuth, &cfg.Ebay)
	services.EbayPublish = service.NewEbayPublishService(repos.Listing, repos.Link, services.EbayAuth, services.EbayPolicy, cfg)
	services.PoshmarkSession = service.NewPoshmarkSessionService(repos.Account, sessionStore, &cfg.Browser)
	services.Poshmark = service.NewPoshmarkAutomationService(services.PoshmarkSession, cfg)
	services.Publish = service.NewPublishService(repos.Listing, repos.Link, services.EbayPublish, services.Poshmark)

	// -------- Controller 层 --------
	controllers := &Controllers{
		Marketplace: controller.NewMarketplaceController(
			services.EbayAuth,
			services.Publish,
			services.EbayPublish,
			services.Poshmark,
			services.PoshmarkSession,
		),
	}

	return &Dependencies{DB: db, Repos: repos, Services: services, Controllers: controllers}
}

// ==================== 定时任务 ====================

// initTasks 初始化定时任务
func initTasks(deps *Dependencies) {
	tokenTask := task.NewTokenTask(deps.Repos.Account, deps.Services.EbayAuth)
	tokenTask.Start()

	log.Println("定时任务已启动")
}

// ==================== 服务启动 ====================

// startServer 启动服务并处理优雅退出
func startServer(r *gin.Engine, port string) {
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// 异步启动服务
	go func() {
		log.Printf("服务启动, 监听端口 %s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("收到退出信号, 正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务关闭失败: %v", err)
	}
	log.Println("服务已退出")
}
