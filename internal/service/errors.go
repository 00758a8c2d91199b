package service

import (
	"errors"
	"fmt"
)

// ==================== 错误分类 ====================
// 发布链路统一的错误分类，编排器据此映射 HTTP 状态码。
// 可内部恢复的情况（报价已存在、策略可派生、计划可报名）在各服务内部兜底，
// 不会以错误形式冒出来。

// AuthError 错误码
const (
	AuthNotConnected      = "NOT_CONNECTED"      // 账号未绑定
	AuthNoRefreshToken    = "NO_REFRESH_TOKEN"   // 无法刷新，需重新授权
	AuthRefreshFailed     = "REFRESH_FAILED"     // 刷新被远端拒绝
	AuthLoginFailed       = "LOGIN_FAILED"       // 浏览器登录失败
	AuthAutomationBlocked = "AUTOMATION_BLOCKED" // 被风控拦截页挡住
)

// AuthError 鉴权/凭证错误
type AuthError struct {
	Marketplace string
	Code        string
	Detail      string
}

func (e *AuthError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("[%s] auth error: %s", e.Marketplace, e.Code)
	}
	return fmt.Sprintf("[%s] auth error: %s: %s", e.Marketplace, e.Code, e.Detail)
}

// ConfigError 前置配置缺失（如策略解析失败），属硬性前置条件而非瞬时故障
type ConfigError struct {
	Marketplace string
	Code        string
	Detail      string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("[%s] config error: %s: %s", e.Marketplace, e.Code, e.Detail)
}

// MissingPolicies ConfigError 错误码
const MissingPolicies = "MISSING_POLICIES"

// NetworkError 网络层失败（超时、连不上），请求没有到达或没有回来
// 与 RemoteError 的区别：远端没有给出明确答复，重试可能成功
type NetworkError struct {
	Marketplace string
	Stage       string
	Err         error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("[%s] %s network error: %v", e.Marketplace, e.Stage, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RemoteError 远端明确拒绝（非 2xx），携带原始响应供排障
type RemoteError struct {
	Marketplace string
	Stage       string
	Status      int
	Body        string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("[%s] %s rejected: status %d: %s", e.Marketplace, e.Stage, e.Status, e.Body)
}

// AutomationError 浏览器自动化失败（页面元素缺失、提交按钮找不到等）
// Screenshot 为诊断截图路径，可能为空
type AutomationError struct {
	Stage      string
	Detail     string
	Screenshot string
	Err        error
}

func (e *AutomationError) Error() string {
	msg := fmt.Sprintf("[poshmark] automation failed at %s: %s", e.Stage, e.Detail)
	if e.Screenshot != "" {
		msg += " (screenshot: " + e.Screenshot + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AutomationError) Unwrap() error { return e.Err }

// ==================== 判别辅助 ====================

// IsAuthError 是否鉴权类错误
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsConfigError 是否前置配置错误
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsNetworkError 是否网络层失败
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsRemoteError 是否远端拒绝
func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// IsAutomationError 是否自动化失败
func IsAutomationError(err error) bool {
	var ae *AutomationError
	return errors.As(err, &ae)
}
