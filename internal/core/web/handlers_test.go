package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hamsternav/hamsternav/internal/auth"
	"github.com/hamsternav/hamsternav/internal/core"
	"github.com/hamsternav/hamsternav/internal/core/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type websiteResponse struct {
	Message string      `json:"message"`
	Website websiteView `json:"website"`
}

type listResponse struct {
	Websites   []websiteView  `json:"websites"`
	Pagination paginationView `json:"pagination"`
}

func createWebsite(t *testing.T, ws *Server, token, rawURL string, extra map[string]any) websiteView {
	t.Helper()
	body := map[string]any{"title": "Site " + rawURL, "url": rawURL, "category": "tools"}
	for k, v := range extra {
		body[k] = v
	}
	w := do(t, ws, http.MethodPost, "/api/websites", body, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[websiteResponse](t, w).Website
}

func websitePath(id int64, suffix string) string {
	return "/api/websites/" + strconv.FormatInt(id, 10) + suffix
}

func TestCreateWebsite(t *testing.T) {
	server := newTestServer(t)
	user, token := newTestUser(t, server, "creator")

	t.Run("creates a public website", func(t *testing.T) {
		site := createWebsite(t, server, token, "https://example.com", map[string]any{
			"description": "An example",
			"tags":        []string{"demo", "示例"},
		})
		assert.Equal(t, "https://example.com", site.URL)
		assert.True(t, site.IsPublic)
		assert.Equal(t, user.ID, site.Creator.ID)
		assert.ElementsMatch(t, []string{"demo", "示例"}, site.Tags)
		assert.Nil(t, site.Favicon, "images are fetched in the background")
	})

	t.Run("adds a missing scheme", func(t *testing.T) {
		site := createWebsite(t, server, token, "www.baidu.com", nil)
		assert.Equal(t, "http://www.baidu.com", site.URL)

		w := do(t, server, http.MethodPost, "/api/websites", map[string]any{
			"title": "Again", "url": "  http://www.baidu.com ", "category": "tools",
		}, token)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "already exists")
	})

	t.Run("respects isPublic false", func(t *testing.T) {
		site := createWebsite(t, server, token, "https://private.example", map[string]any{"isPublic": false})
		assert.False(t, site.IsPublic)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		w := do(t, server, http.MethodPost, "/api/websites", map[string]any{
			"title": "Again", "url": "https://example.com", "category": "tools",
		}, token)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "already exists")
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		for _, body := range []map[string]any{
			{"title": "No URL", "category": "tools"},
			{"title": "Bad scheme", "url": "ftp://x.example", "category": "tools"},
			{"url": "https://untitled.example", "category": "tools"},
		} {
			w := do(t, server, http.MethodPost, "/api/websites", body, token)
			assert.Equal(t, http.StatusBadRequest, w.Code, body)
		}
	})

	t.Run("requires authentication", func(t *testing.T) {
		w := do(t, server, http.MethodPost, "/api/websites", map[string]any{"title": "x"}, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestListWebsites(t *testing.T) {
	server := newTestServer(t)
	_, token := newTestUser(t, server, "lister")
	createWebsite(t, server, token, "https://go.dev", map[string]any{"category": "dev", "tags": []string{"golang"}, "description": "The Go language"})
	createWebsite(t, server, token, "https://figma.com", map[string]any{"category": "design"})
	createWebsite(t, server, token, "https://hidden.example", map[string]any{"category": "dev", "isPublic": false})

	tests := []struct {
		name  string
		query string
		want  []string
		total int
	}{
		{"all public", "", []string{"https://figma.com", "https://go.dev"}, 2},
		{"category", "?category=dev", []string{"https://go.dev"}, 1},
		{"tag", "?tag=golang", []string{"https://go.dev"}, 1},
		{"search", "?search=" + url.QueryEscape("go language"), []string{"https://go.dev"}, 1},
		{"page size", "?limit=1&page=2", []string{"https://go.dev"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, server, http.MethodGet, "/api/websites"+tt.query, nil, "")
			require.Equal(t, http.StatusOK, w.Code)
			resp := decode[listResponse](t, w)

			var urls []string
			for _, site := range resp.Websites {
				urls = append(urls, site.URL)
			}
			assert.Equal(t, tt.want, urls)
			assert.Equal(t, tt.total, resp.Pagination.Total)
		})
	}

	t.Run("pagination defaults", func(t *testing.T) {
		resp := decode[listResponse](t, do(t, server, http.MethodGet, "/api/websites", nil, ""))
		assert.Equal(t, paginationView{Total: 2, Page: 1, Limit: 20, Pages: 1}, resp.Pagination)
	})

	t.Run("bad page", func(t *testing.T) {
		w := do(t, server, http.MethodGet, "/api/websites?page=abc", nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetWebsite(t *testing.T) {
	server := newTestServer(t)
	_, token := newTestUser(t, server, "viewer")
	site := createWebsite(t, server, token, "https://example.com", nil)

	for i := 1; i <= 2; i++ {
		w := do(t, server, http.MethodGet, websitePath(site.ID, ""), nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(i), decode[websiteView](t, w).Views)
	}

	w := do(t, server, http.MethodGet, "/api/websites/999", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, server, http.MethodGet, "/api/websites/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateWebsite(t *testing.T) {
	server := newTestServer(t)
	_, owner := newTestUser(t, server, "owner")
	_, other := newTestUser(t, server, "other")
	site := createWebsite(t, server, owner, "https://example.com", map[string]any{"tags": []string{"a"}})

	t.Run("owner updates fields", func(t *testing.T) {
		w := do(t, server, http.MethodPut, websitePath(site.ID, ""), map[string]any{
			"title": "New title",
			"tags":  []string{"b", "c"},
		}, owner)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		got := decode[websiteResponse](t, w).Website
		assert.Equal(t, "New title", got.Title)
		assert.Equal(t, "tools", got.Category)
		assert.ElementsMatch(t, []string{"b", "c"}, got.Tags)
	})

	t.Run("empty values keep the stored ones", func(t *testing.T) {
		w := do(t, server, http.MethodPut, websitePath(site.ID, ""), map[string]any{"title": "", "url": ""}, owner)
		require.Equal(t, http.StatusOK, w.Code)
		got := decode[websiteResponse](t, w).Website
		assert.Equal(t, "New title", got.Title)
		assert.Equal(t, "https://example.com", got.URL)
	})

	t.Run("url without scheme", func(t *testing.T) {
		w := do(t, server, http.MethodPut, websitePath(site.ID, ""), map[string]any{"url": "www.qq.com"}, owner)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "http://www.qq.com", decode[websiteResponse](t, w).Website.URL)

		w = do(t, server, http.MethodPut, websitePath(site.ID, ""), map[string]any{"url": "https://example.com"}, owner)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("rejects unsupported scheme", func(t *testing.T) {
		w := do(t, server, http.MethodPut, websitePath(site.ID, ""), map[string]any{"url": "ftp://files.example"}, owner)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("others are forbidden", func(t *testing.T) {
		w := do(t, server, http.MethodPut, websitePath(site.ID, ""), map[string]any{"title": "hijack"}, other)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("duplicate URL", func(t *testing.T) {
		createWebsite(t, server, owner, "https://taken.example", nil)
		w := do(t, server, http.MethodPut, websitePath(site.ID, ""), map[string]any{"url": "https://taken.example"}, owner)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing website", func(t *testing.T) {
		w := do(t, server, http.MethodPut, "/api/websites/999", map[string]any{"title": "x"}, owner)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestDeleteWebsite(t *testing.T) {
	server := newTestServer(t)
	_, owner := newTestUser(t, server, "owner")
	_, other := newTestUser(t, server, "other")
	site := createWebsite(t, server, owner, "https://example.com", nil)

	w := do(t, server, http.MethodDelete, websitePath(site.ID, ""), nil, other)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, server, http.MethodDelete, websitePath(site.ID, ""), nil, owner)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, server, http.MethodGet, websitePath(site.ID, ""), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefreshImages(t *testing.T) {
	server := newTestServer(t)
	_, owner := newTestUser(t, server, "owner")
	_, other := newTestUser(t, server, "other")
	site := createWebsite(t, server, owner, "https://example.com", nil)

	fetcher := server.fetcher.(*stubFetcher)
	fetcher.md = core.Metadata{Favicon: "/images/favicons/1.png"}

	w := do(t, server, http.MethodPost, websitePath(site.ID, "/images/refresh"), nil, other)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Zero(t, fetcher.calls)

	w = do(t, server, http.MethodPost, websitePath(site.ID, "/images/refresh"), nil, owner)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[struct {
		Updated bool        `json:"updated"`
		Website websiteView `json:"website"`
	}](t, w)
	assert.True(t, resp.Updated)
	require.NotNil(t, resp.Website.Favicon)
	assert.Equal(t, "/images/favicons/1.png", *resp.Website.Favicon)
	assert.Nil(t, resp.Website.Thumbnail)

	fetcher.err = core.ErrInvalidURL
	w = do(t, server, http.MethodPost, websitePath(site.ID, "/images/refresh"), nil, owner)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	fetcher.err = errors.New("disk on fire")
	w = do(t, server, http.MethodPost, websitePath(site.ID, "/images/refresh"), nil, owner)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestLikes(t *testing.T) {
	server := newTestServer(t)
	liker, token := newTestUser(t, server, "liker")
	site := createWebsite(t, server, token, "https://example.com", nil)

	w := do(t, server, http.MethodPost, websitePath(site.ID, "/like"), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[websiteResponse](t, w).Website
	assert.Equal(t, []int64{liker.ID}, got.Likes)
	assert.Equal(t, 1, got.LikeCount)

	w = do(t, server, http.MethodPost, websitePath(site.ID, "/like"), nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, server, http.MethodPost, websitePath(site.ID, "/unlike"), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[websiteResponse](t, w).Website.Likes)

	w = do(t, server, http.MethodPost, websitePath(site.ID, "/unlike"), nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, server, http.MethodPost, "/api/websites/999/like", nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, server, http.MethodPost, websitePath(site.ID, "/like"), nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCollections(t *testing.T) {
	server := newTestServer(t)
	_, token := newTestUser(t, server, "collector")
	first := createWebsite(t, server, token, "https://one.example", nil)
	second := createWebsite(t, server, token, "https://two.example", nil)

	type userResponse struct {
		User userView `json:"user"`
	}

	w := do(t, server, http.MethodPost, websitePath(first.ID, "/collect"), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[userResponse](t, w).User.CollectionCount)

	w = do(t, server, http.MethodPost, websitePath(second.ID, "/collect"), nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, server, http.MethodPost, websitePath(first.ID, "/collect"), nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, server, http.MethodGet, "/api/websites/collections", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[listResponse](t, w).Websites, 2)

	w = do(t, server, http.MethodPost, websitePath(first.ID, "/uncollect"), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[userResponse](t, w).User.CollectionCount)

	w = do(t, server, http.MethodPost, websitePath(first.ID, "/uncollect"), nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, server, http.MethodGet, "/api/websites/collections", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestComments(t *testing.T) {
	server := newTestServer(t)
	_, author := newTestUser(t, server, "author")
	_, other := newTestUser(t, server, "other")
	site := createWebsite(t, server, author, "https://example.com", nil)

	w := do(t, server, http.MethodPost, websitePath(site.ID, "/comments"), map[string]string{"content": "  "}, author)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, server, http.MethodPost, websitePath(site.ID, "/comments"), map[string]string{"content": "好网站"}, author)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	comment := decode[struct {
		Comment commentView `json:"comment"`
	}](t, w).Comment
	assert.Equal(t, "好网站", comment.Content)
	assert.Equal(t, "user-author", comment.Author.Nickname)

	w = do(t, server, http.MethodGet, websitePath(site.ID, "/comments"), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Comments []commentView `json:"comments"`
	}](t, w).Comments
	require.Len(t, list, 1)

	commentPath := websitePath(site.ID, "/comments/"+strconv.FormatInt(comment.ID, 10))
	w = do(t, server, http.MethodDelete, commentPath, nil, other)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, server, http.MethodDelete, commentPath, nil, author)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, server, http.MethodDelete, commentPath, nil, author)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, server, http.MethodGet, "/api/websites/999/comments", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVerifyAndCurrentUser(t *testing.T) {
	server := newTestServer(t)
	user, token := newTestUser(t, server, "me")

	w := do(t, server, http.MethodGet, "/api/auth/verify", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":true,"user":{"id":`+strconv.FormatInt(user.ID, 10)+`}}`, w.Body.String())

	w = do(t, server, http.MethodGet, "/api/auth/verify", nil, "forged")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":false`)

	w = do(t, server, http.MethodGet, "/api/auth/verify", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, server, http.MethodGet, "/api/users/me", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[struct {
		User userView `json:"user"`
	}](t, w).User
	assert.Equal(t, "user-me", me.Nickname)
	assert.Zero(t, me.CollectionCount)

	// A valid token for a user that no longer exists
	ghost, err := server.jwt.GenerateToken(9999)
	require.NoError(t, err)
	w = do(t, server, http.MethodGet, "/api/users/me", nil, ghost)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "user not found")
}

func TestProtectedRoutesRejectUnknownUser(t *testing.T) {
	server := newTestServer(t)
	_, token := newTestUser(t, server, "owner")
	site := createWebsite(t, server, token, "https://example.com", nil)

	ghost, err := server.jwt.GenerateToken(9999)
	require.NoError(t, err)

	tests := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPost, "/api/websites", map[string]any{"title": "x", "url": "https://ghost.example", "category": "tools"}},
		{http.MethodGet, "/api/websites/collections", nil},
		{http.MethodPost, websitePath(site.ID, "/like"), nil},
		{http.MethodPost, websitePath(site.ID, "/collect"), nil},
		{http.MethodPost, websitePath(site.ID, "/comments"), map[string]any{"content": "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := do(t, server, tt.method, tt.path, tt.body, ghost)
			assert.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
		})
	}
}

// newWeChatServer returns a server whose WeChat client talks to a fake API.
func newWeChatServer(t *testing.T) *Server {
	t.Helper()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case r.URL.Path == "/sns/oauth2/access_token" && q.Get("code") == "web-code":
			_, _ = w.Write([]byte(`{"access_token":"AT","openid":"web-openid"}`))
		case r.URL.Path == "/sns/userinfo":
			_, _ = w.Write([]byte(`{"openid":"web-openid","nickname":"网页用户","headimgurl":"https://wx.example/h.png"}`))
		case r.URL.Path == "/sns/jscode2session" && q.Get("js_code") == "mini-code":
			_, _ = w.Write([]byte(`{"openid":"mini-openid","session_key":"sk"}`))
		default:
			_, _ = w.Write([]byte(`{"errcode":40029,"errmsg":"invalid code"}`))
		}
	}))
	t.Cleanup(api.Close)

	server := newTestServer(t)
	server.wechat = auth.NewWeChatClient(auth.WeChatConfig{
		AppID: "wx-web", Secret: "s", MiniAppID: "wx-mini", MiniSecret: "s", APIBase: api.URL,
	})
	server.opts.WeChatRedirectURI = "https://nav.example/api/auth/wechat/callback"
	return server
}

func TestWeChatWebLogin(t *testing.T) {
	server := newWeChatServer(t)

	w := do(t, server, http.MethodGet, "/api/auth/wechat/login", nil, "")
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "open.weixin.qq.com", loc.Host)
	assert.Equal(t, "snsapi_userinfo", loc.Query().Get("scope"))
	assert.Equal(t, "https://nav.example/api/auth/wechat/callback", loc.Query().Get("redirect_uri"))

	w = do(t, server, http.MethodGet, "/api/auth/wechat/callback?code=web-code", nil, "")
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	loc, err = url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "localhost:3001", loc.Host)

	claims, err := server.jwt.ValidateToken(loc.Query().Get("token"))
	require.NoError(t, err)
	user, err := server.db.GetUser(claims.UserID)
	require.NoError(t, err)
	assert.Equal(t, "web-openid", user.OpenID)
	assert.Equal(t, "网页用户", user.Nickname)
	assert.Contains(t, loc.Query().Get("user"), "网页用户")

	w = do(t, server, http.MethodGet, "/api/auth/wechat/callback?code=bad", nil, "")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = do(t, server, http.MethodGet, "/api/auth/wechat/callback", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMiniProgramLogin(t *testing.T) {
	server := newWeChatServer(t)

	body := map[string]any{"code": "mini-code", "userInfo": map[string]string{"nickName": "小程序用户", "avatarUrl": "https://wx.example/m.png"}}
	w := do(t, server, http.MethodPost, "/api/auth/wechat/login", body, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[struct {
		Success bool `json:"success"`
		Data    struct {
			Token string   `json:"token"`
			User  userView `json:"user"`
		} `json:"data"`
	}](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "小程序用户", resp.Data.User.Nickname)
	_, err := server.jwt.ValidateToken(resp.Data.Token)
	assert.NoError(t, err)

	// Logging in again returns the same user.
	w = do(t, server, http.MethodPost, "/api/auth/wechat/login", map[string]any{"code": "mini-code"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "小程序用户")

	w = do(t, server, http.MethodPost, "/api/auth/wechat/login", map[string]any{"code": "used"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, server, http.MethodPost, "/api/auth/wechat/login", map[string]any{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMiniProgramLoginDefaultNickname(t *testing.T) {
	server := newWeChatServer(t)

	w := do(t, server, http.MethodPost, "/api/auth/wechat/login", map[string]any{"code": "mini-code"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), db.DefaultWeChatNickname)
}

func TestRespondErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("website 3: %w", db.ErrNotFound), http.StatusNotFound},
		{db.ErrForbidden, http.StatusForbidden},
		{db.ErrDuplicateURL, http.StatusBadRequest},
		{core.ErrInvalidURL, http.StatusBadRequest},
		{db.ErrAlreadyCollected, http.StatusBadRequest},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	server := newTestServer(t)
	for i, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			path := "/test-error/" + strconv.Itoa(i)
			err := tt.err
			server.engine.GET(path, func(c *gin.Context) { respondError(c, err, "failed") })
			w := do(t, server, http.MethodGet, path, nil, "")
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
