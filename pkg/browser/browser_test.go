package browser

import (
	"testing"
)

// ==================== 拦截页识别 ====================

func TestIsInterstitial(t *testing.T) {
	cases := []struct {
		name  string
		title string
		body  string
		want  bool
	}{
		{"Cloudflare 标题", "Just a moment...", "", true},
		{"安全检查标题", "Security Check", "", true},
		{"Challenge 标题", "Challenge Required", "", true},
		{"正文拦截语", "Poshmark", "Pardon the interruption while we verify you are human", true},
		{"大小写不敏感", "JUST A MOMENT", "", true},
		{"正常登录页", "Log in to Poshmark", "Welcome back", false},
		{"空页面", "", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsInterstitial(tc.title, tc.body); got != tc.want {
				t.Errorf("IsInterstitial(%q, %q) = %v, want %v", tc.title, tc.body, got, tc.want)
			}
		})
	}
}

// ==================== Cookie 解析 ====================

func TestParseCookies(t *testing.T) {
	raw := []byte(`[
		{"name":"un","value":"reseller42","domain":".poshmark.com","path":"/","secure":true},
		{"name":"","value":"dropped","domain":".poshmark.com"},
		{"name":"no_domain","value":"dropped"}
	]`)

	params, err := ParseCookies(raw)
	if err != nil {
		t.Fatalf("ParseCookies: %v", err)
	}
	// 缺 name 或 domain 的条目应被丢弃
	if len(params) != 1 {
		t.Fatalf("len(params) = %d, want 1", len(params))
	}
	if params[0].Name != "un" || params[0].Value != "reseller42" {
		t.Errorf("params[0] = %+v", params[0])
	}
}

func TestParseCookies_Invalid(t *testing.T) {
	if _, err := ParseCookies([]byte(`{"not":"a list"}`)); err == nil {
		t.Error("非数组 JSON 应报错")
	}
	if _, err := ParseCookies([]byte(`[]`)); err == nil {
		t.Error("空列表应报错")
	}
}

func TestCookieValue(t *testing.T) {
	raw := []byte(`[
		{"name":"jwt","value":"xxx","domain":".poshmark.com"},
		{"name":"un","value":"reseller42","domain":".poshmark.com"}
	]`)

	if got := CookieValue(raw, "un", "username"); got != "reseller42" {
		t.Errorf("CookieValue = %q, want reseller42", got)
	}
	if got := CookieValue(raw, "missing"); got != "" {
		t.Errorf("缺失的 cookie 应返回空串, got %q", got)
	}
}

// ==================== 会话存储 ====================

func TestFileSessionStore_Roundtrip(t *testing.T) {
	store, err := NewFileSessionStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSessionStore: %v", err)
	}

	// 不存在的会话返回 nil, nil
	data, err := store.Load(1)
	if err != nil || data != nil {
		t.Fatalf("Load(missing) = %v, %v; want nil, nil", data, err)
	}

	state := []byte(`[{"name":"un","value":"a","domain":".poshmark.com"}]`)
	if err := store.Save(1, state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != string(state) {
		t.Errorf("roundtrip 不一致: %s", got)
	}

	if err := store.Delete(1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if data, _ := store.Load(1); data != nil {
		t.Error("Delete 后仍能读到会话")
	}
	// 删除不存在的会话不报错
	if err := store.Delete(99); err != nil {
		t.Errorf("Delete(missing) = %v", err)
	}
}
