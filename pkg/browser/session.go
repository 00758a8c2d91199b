package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// ==================== 会话存储 ====================

// SessionStore 按用户存取序列化的浏览器会话 (Cookie 集)
// 抽象成接口是为了支撑多实例部署时替换成共享后端
type SessionStore interface {
	// Load 取会话，不存在返回 (nil, nil)
	Load(userID int64) ([]byte, error)
	// Save 覆盖保存会话
	Save(userID int64, state []byte) error
	// Delete 清除会话
	Delete(userID int64) error
}

// fileSessionStore 本地目录实现，一个用户一个 JSON 文件
type fileSessionStore struct {
	dir string
}

var _ SessionStore = (*fileSessionStore)(nil)

// NewFileSessionStore 创建文件会话存储
func NewFileSessionStore(dir string) (SessionStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("会话目录创建失败: %w", err)
	}
	return &fileSessionStore{dir: dir}, nil
}

func (s *fileSessionStore) path(userID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("session_%d.json", userID))
}

func (s *fileSessionStore) Load(userID int64) ([]byte, error) {
	data, err := os.ReadFile(s.path(userID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

func (s *fileSessionStore) Save(userID int64, state []byte) error {
	return os.WriteFile(s.path(userID), state, 0o600)
}

func (s *fileSessionStore) Delete(userID int64) error {
	err := os.Remove(s.path(userID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ==================== Cookie 序列化 ====================

// Cookie 浏览器导出/导入的 Cookie 外部格式
// 兼容浏览器插件导出的字段命名 (camelCase)
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
}

// ParseCookies 解析外部 Cookie JSON 为 CDP 设置参数
// 必须带 name+domain，否则该条丢弃
func ParseCookies(data []byte) ([]*proto.NetworkCookieParam, error) {
	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("cookie JSON 解析失败: %w", err)
	}

	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" || c.Domain == "" {
			continue
		}
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		params = append(params, p)
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("cookie 列表为空或格式不兼容")
	}
	return params, nil
}

// CookieValue 从 Cookie JSON 里取指定名字的值（如用户名 Cookie "un"）
func CookieValue(data []byte, names ...string) string {
	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return ""
	}
	for _, name := range names {
		for _, c := range cookies {
			if c.Name == name && c.Value != "" {
				return c.Value
			}
		}
	}
	return ""
}

// ExportCookies 导出浏览器当前全部 Cookie (会话持久化用)
func ExportCookies(b *rod.Browser) ([]byte, error) {
	cookies, err := b.GetCookies()
	if err != nil {
		return nil, err
	}

	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return json.Marshal(out)
}

// ImportCookies 把序列化的会话注入浏览器
func ImportCookies(b *rod.Browser, data []byte) error {
	params, err := ParseCookies(data)
	if err != nil {
		return err
	}
	return b.SetCookies(params)
}
