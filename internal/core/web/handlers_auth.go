package web

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hamsternav/hamsternav/internal/auth"
	"github.com/rs/zerolog/log"
)

const oauthState = "state"

func (ws *Server) requireWeChat(c *gin.Context) bool {
	if ws.wechat == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "wechat login is not configured"})
		return false
	}
	return true
}

func (ws *Server) handleWeChatLogin(c *gin.Context) {
	if !ws.requireWeChat(c) {
		return
	}
	c.Redirect(http.StatusFound, ws.wechat.AuthorizeURL(ws.opts.WeChatRedirectURI, oauthState))
}

func (ws *Server) handleWeChatCallback(c *gin.Context) {
	if !ws.requireWeChat(c) {
		return
	}
	code := strings.TrimSpace(c.Query("code"))
	if code == "" {
		badRequest(c, "missing code")
		return
	}

	ctx := c.Request.Context()
	tok, err := ws.wechat.ExchangeCode(ctx, code)
	if err != nil {
		ws.wechatFailure(c, err)
		return
	}
	info, err := ws.wechat.UserInfo(ctx, tok)
	if err != nil {
		ws.wechatFailure(c, err)
		return
	}
	user, created, err := ws.db.FindOrCreateWeChatUser(info.OpenID, info.Nickname, info.Avatar)
	if err != nil {
		respondError(c, err, "wechat login failed")
		return
	}
	token, err := ws.jwt.GenerateToken(user.ID)
	if err != nil {
		respondError(c, err, "failed to issue token")
		return
	}
	log.Info().Int64("user_id", user.ID).Bool("created", created).Msg("WeChat web login")

	target, err := url.Parse(ws.opts.FrontendURL)
	if err != nil {
		respondError(c, err, "invalid frontend URL")
		return
	}
	userJSON, err := json.Marshal(newUserView(user))
	if err != nil {
		respondError(c, err, "failed to encode user")
		return
	}
	q := target.Query()
	q.Set("token", token)
	q.Set("user", string(userJSON))
	target.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, target.String())
}

type miniProgramLoginRequest struct {
	Code     string `json:"code"`
	UserInfo struct {
		NickName  string `json:"nickName"`
		AvatarURL string `json:"avatarUrl"`
	} `json:"userInfo"`
}

func (ws *Server) handleMiniProgramLogin(c *gin.Context) {
	if !ws.requireWeChat(c) {
		return
	}
	var req miniProgramLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "missing code"})
		return
	}

	openID, err := ws.wechat.Code2Session(c.Request.Context(), req.Code)
	if err != nil {
		log.Warn().Err(err).Msg("Mini-program login failed")
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "wechat login failed"})
		return
	}
	user, _, err := ws.db.FindOrCreateWeChatUser(openID, req.UserInfo.NickName, req.UserInfo.AvatarURL)
	if err != nil {
		respondError(c, err, "wechat login failed")
		return
	}
	token, err := ws.jwt.GenerateToken(user.ID)
	if err != nil {
		respondError(c, err, "failed to issue token")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"token": token, "user": newUserView(user)},
	})
}

func (ws *Server) wechatFailure(c *gin.Context, err error) {
	log.Error().Err(err).Str("request_id", c.GetString("request_id")).Msg("WeChat login failed")
	c.JSON(http.StatusBadGateway, gin.H{"message": "wechat login failed"})
}

func (ws *Server) handleVerify(c *gin.Context) {
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"valid": false, "message": "missing token"})
		return
	}
	claims, err := ws.jwt.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"valid": false, "message": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "user": gin.H{"id": claims.UserID}})
}

func (ws *Server) handleCurrentUser(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	user, err := ws.db.GetUser(userID)
	if err != nil {
		respondError(c, err, "failed to get user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": newUserView(user)})
}
