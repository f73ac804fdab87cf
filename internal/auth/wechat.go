package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// DefaultWeChatAPIBase is the host of the WeChat server API.
	DefaultWeChatAPIBase = "https://api.weixin.qq.com"
	// WeChatAuthorizeEndpoint is the web OAuth consent page.
	WeChatAuthorizeEndpoint = "https://open.weixin.qq.com/connect/oauth2/authorize"

	wechatMaxBody = 1 << 20
)

// ErrWeChatNotConfigured is returned when the app credentials for a login flow are missing.
var ErrWeChatNotConfigured = errors.New("wechat login is not configured")

// APIError is an error body returned by the WeChat API.
type APIError struct {
	Code    int64
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wechat api error %d: %s", e.Code, e.Message)
}

// WeChatConfig holds credentials for the web (official account) and mini-program apps.
type WeChatConfig struct {
	AppID      string
	Secret     string
	MiniAppID  string
	MiniSecret string
	// APIBase overrides DefaultWeChatAPIBase.
	APIBase string
	Timeout time.Duration
}

// WeChatUser is the profile returned by sns/userinfo.
type WeChatUser struct {
	OpenID   string
	Nickname string
	Avatar   string
}

// OAuthToken is the result of exchanging a web authorization code.
type OAuthToken struct {
	AccessToken string
	OpenID      string
}

// WeChatClient calls the WeChat login endpoints.
type WeChatClient struct {
	cfg        WeChatConfig
	httpClient *http.Client
}

// NewWeChatClient returns a client for cfg.
func NewWeChatClient(cfg WeChatConfig) *WeChatClient {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultWeChatAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WeChatClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// AuthorizeURL returns the consent page URL for the snsapi_userinfo scope.
func (c *WeChatClient) AuthorizeURL(redirectURI, state string) string {
	q := url.Values{}
	q.Set("appid", c.cfg.AppID)
	q.Set("redirect_uri", redirectURI)
	q.Set("response_type", "code")
	q.Set("scope", "snsapi_userinfo")
	q.Set("state", state)
	return WeChatAuthorizeEndpoint + "?" + q.Encode() + "#wechat_redirect"
}

// ExchangeCode trades a web authorization code for an access token and openid.
func (c *WeChatClient) ExchangeCode(ctx context.Context, code string) (OAuthToken, error) {
	if c.cfg.AppID == "" || c.cfg.Secret == "" {
		return OAuthToken{}, ErrWeChatNotConfigured
	}
	res, err := c.get(ctx, "/sns/oauth2/access_token", url.Values{
		"appid":      {c.cfg.AppID},
		"secret":     {c.cfg.Secret},
		"code":       {code},
		"grant_type": {"authorization_code"},
	})
	if err != nil {
		return OAuthToken{}, err
	}
	tok := OAuthToken{
		AccessToken: res.Get("access_token").String(),
		OpenID:      res.Get("openid").String(),
	}
	if tok.AccessToken == "" || tok.OpenID == "" {
		return OAuthToken{}, errors.New("wechat access token response is missing fields")
	}
	return tok, nil
}

// UserInfo fetches the profile of openID.
func (c *WeChatClient) UserInfo(ctx context.Context, tok OAuthToken) (WeChatUser, error) {
	res, err := c.get(ctx, "/sns/userinfo", url.Values{
		"access_token": {tok.AccessToken},
		"openid":       {tok.OpenID},
		"lang":         {"zh_CN"},
	})
	if err != nil {
		return WeChatUser{}, err
	}
	u := WeChatUser{
		OpenID:   res.Get("openid").String(),
		Nickname: res.Get("nickname").String(),
		Avatar:   res.Get("headimgurl").String(),
	}
	if u.OpenID == "" {
		u.OpenID = tok.OpenID
	}
	return u, nil
}

// Code2Session resolves a mini-program login code to the user's openid.
func (c *WeChatClient) Code2Session(ctx context.Context, code string) (string, error) {
	if c.cfg.MiniAppID == "" || c.cfg.MiniSecret == "" {
		return "", ErrWeChatNotConfigured
	}
	res, err := c.get(ctx, "/sns/jscode2session", url.Values{
		"appid":      {c.cfg.MiniAppID},
		"secret":     {c.cfg.MiniSecret},
		"js_code":    {code},
		"grant_type": {"authorization_code"},
	})
	if err != nil {
		return "", err
	}
	openID := res.Get("openid").String()
	if openID == "" {
		return "", errors.New("wechat session response has no openid")
	}
	return openID, nil
}

// get calls endpoint and returns the parsed body. WeChat reports failures
// with HTTP 200 and a non-zero errcode.
func (c *WeChatClient) get(ctx context.Context, endpoint string, q url.Values) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBase+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("wechat request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, wechatMaxBody))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to read wechat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("wechat %s: HTTP %d", endpoint, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("wechat %s: invalid JSON response", endpoint)
	}

	res := gjson.ParseBytes(body)
	if code := res.Get("errcode").Int(); code != 0 {
		return gjson.Result{}, &APIError{Code: code, Message: res.Get("errmsg").String()}
	}
	return res, nil
}
