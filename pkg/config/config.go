package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// EbayConfig eBay 开放平台接入配置
type EbayConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
	// sandbox / production，决定 API 域名和商品落地页域名
	Environment string `mapstructure:"environment"`

	// 静态策略 ID 覆盖（三个全配置时跳过远端策略解析）
	FulfillmentPolicyID string `mapstructure:"fulfillment_policy_id"`
	PaymentPolicyID     string `mapstructure:"payment_policy_id"`
	ReturnPolicyID      string `mapstructure:"return_policy_id"`
}

// BrowserConfig 浏览器自动化配置
type BrowserConfig struct {
	Headless bool `mapstructure:"headless"`
	// 会话 storage state 的落盘目录
	SessionDir string `mapstructure:"session_dir"`
	// 截图诊断目录
	ScreenshotDir string `mapstructure:"screenshot_dir"`
}

// Config 全局配置对象
// 进程启动时构建一次，之后只读，通过构造函数显式传入各组件
type Config struct {
	ServerPort  string `mapstructure:"server_port"`
	DatabaseDSN string `mapstructure:"database_dsn"`

	// 图片公网访问基地址（如 https://cdn.example.com/media）
	MediaBaseURL string `mapstructure:"media_base_url"`

	Ebay    EbayConfig    `mapstructure:"ebay"`
	Browser BrowserConfig `mapstructure:"browser"`
}

// Load 读取配置
// 优先级：环境变量 > config.yml > 默认值
// 环境变量命名: RESALEHUB_EBAY_CLIENT_ID 对应 ebay.client_id
func Load() *Config {
	v := viper.New()

	v.SetDefault("server_port", "8080")
	v.SetDefault("database_dsn", "host=localhost user=resalehub password=resalehub dbname=resalehub port=5432 sslmode=disable")
	v.SetDefault("media_base_url", "")
	v.SetDefault("ebay.environment", "sandbox")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.session_dir", "/tmp/resalehub/sessions")
	v.SetDefault("browser.screenshot_dir", "/tmp/resalehub/screenshots")

	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RESALEHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 配置文件可选，纯环境变量部署时没有它
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("配置文件读取失败: %v", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("配置解析失败: %v", err)
	}
	return &cfg
}

// IsSandbox 是否沙箱环境
func (c *EbayConfig) IsSandbox() bool {
	return c.Environment != "production"
}

// APIBase eBay REST API 基地址
func (c *EbayConfig) APIBase() string {
	if c.IsSandbox() {
		return "https://api.sandbox.ebay.com"
	}
	return "https://api.ebay.com"
}

// AuthBase eBay 授权页基地址
func (c *EbayConfig) AuthBase() string {
	if c.IsSandbox() {
		return "https://auth.sandbox.ebay.com"
	}
	return "https://auth.ebay.com"
}

// ItemBase 商品落地页基地址（用于拼接 external_url）
func (c *EbayConfig) ItemBase() string {
	if c.IsSandbox() {
		return "https://sandbox.ebay.com/itm"
	}
	return "https://www.ebay.com/itm"
}
