package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"
)

// 统一 UA：Windows Chrome 最普遍，Linux 容器里用 Mac UA 容易因 OS 不一致被风控
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"

// Launch 启动一个面向云端环境调优的浏览器实例
// 返回的 cleanup 负责关闭浏览器并回收 launcher 资源，任何退出路径都必须调用
func Launch(headless bool) (*rod.Browser, func(), error) {
	l := launcher.New().
		Headless(headless).
		NoSandbox(true).
		Set("disable-dev-shm-usage"). // 容器内存受限
		Set("disable-gpu").
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-infobars")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("浏览器启动失败: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, nil, fmt.Errorf("浏览器连接失败: %w", err)
	}

	cleanup := func() {
		_ = b.Close()
		l.Cleanup()
	}
	return b, cleanup, nil
}

// NewStealthPage 创建一个带反检测脚本的页面并设置标准 UA / 视口
func NewStealthPage(b *rod.Browser) (*rod.Page, error) {
	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("创建 stealth 页面失败: %w", err)
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent: DefaultUserAgent,
	}); err != nil {
		return nil, err
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1280,
		Height:            720,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, err
	}
	return page, nil
}

// BlockStaticResources 拦截图片/媒体/字体请求
// 降低延迟和被检测面；文件上传走 input 控件直接注入，不经过这里，不受影响
func BlockStaticResources(page *rod.Page) {
	router := page.HijackRequests()
	router.MustAdd("*", func(ctx *rod.Hijack) {
		switch ctx.Request.Type() {
		case proto.NetworkResourceTypeImage,
			proto.NetworkResourceTypeMedia,
			proto.NetworkResourceTypeFont:
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		default:
			ctx.ContinueRequest(&proto.FetchContinueRequest{})
		}
	})
	go router.Run()
}

// ==================== 拦截页识别 ====================

// 已知的风控拦截页特征
var (
	interstitialTitleMarkers = []string{"just a moment", "security", "challenge"}
	interstitialBodyMarkers  = []string{"pardon the interruption"}
)

// IsInterstitial 根据页面标题和正文判断是否撞上了风控拦截页
// 命中后必须立即终止，重试会加重风控判定
func IsInterstitial(title, body string) bool {
	lowTitle := strings.ToLower(title)
	for _, marker := range interstitialTitleMarkers {
		if strings.Contains(lowTitle, marker) {
			return true
		}
	}
	lowBody := strings.ToLower(body)
	for _, marker := range interstitialBodyMarkers {
		if strings.Contains(lowBody, marker) {
			return true
		}
	}
	return false
}

// PageState 一次性取回页面地址/标题/正文，供拦截页判断和会话校验使用
func PageState(page *rod.Page) (pageURL, title, body string) {
	info, err := page.Info()
	if err == nil {
		pageURL = info.URL
		title = info.Title
	}
	if el, err := page.Timeout(3 * time.Second).Element("body"); err == nil {
		body, _ = el.Text()
	}
	return pageURL, title, body
}

// ==================== 诊断截图 ====================

// CaptureScreenshot 把当前页面截图落盘用于排障
// stage 标识失败阶段；截图失败只记录，不影响主流程错误
func CaptureScreenshot(page *rod.Page, dir, stage string) string {
	data, err := page.Screenshot(false, nil)
	if err != nil {
		return ""
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", stage, uuid.NewString()[:8]))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ""
	}
	return path
}
