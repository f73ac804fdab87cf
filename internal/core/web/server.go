package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hamsternav/hamsternav/internal/auth"
	"github.com/hamsternav/hamsternav/internal/core"
	"github.com/hamsternav/hamsternav/internal/core/db"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

// Options wires the server's dependencies. Fetcher, Store and WeChat may be nil;
// the routes that need them then answer 503.
type Options struct {
	DB      *db.DB
	Fetcher core.MetadataFetcher
	Store   *core.ImageStore
	JWT     *auth.JWTManager
	WeChat  *auth.WeChatClient

	// WeChatRedirectURI is the callback registered for web OAuth.
	WeChatRedirectURI string
	// FrontendURL receives the token after a web OAuth login.
	FrontendURL string
	CORSOrigins []string
	// Mode is the gin mode; empty means release.
	Mode string
}

type Server struct {
	db      *db.DB
	fetcher core.MetadataFetcher
	store   *core.ImageStore
	jwt     *auth.JWTManager
	wechat  *auth.WeChatClient
	opts    Options
	engine  *gin.Engine
}

// NewServer builds the router for opts.
func NewServer(opts Options) (*Server, error) {
	if opts.DB == nil {
		return nil, errors.New("database is required")
	}
	if opts.JWT == nil {
		return nil, errors.New("jwt manager is required")
	}
	if opts.Mode == "" {
		opts.Mode = gin.ReleaseMode
	}
	gin.SetMode(opts.Mode)

	ws := &Server{
		db:      opts.DB,
		fetcher: opts.Fetcher,
		store:   opts.Store,
		jwt:     opts.JWT,
		wechat:  opts.WeChat,
		opts:    opts,
		engine:  gin.New(),
	}
	ws.registerRoutes()
	return ws, nil
}

// Handler returns the HTTP handler serving every route.
func (ws *Server) Handler() http.Handler {
	return ws.engine
}

func (ws *Server) registerRoutes() {
	r := ws.engine
	r.Use(recovery(), requestID(), accessLog(), cors(ws.opts.CORSOrigins))

	r.GET("/health", ws.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if ws.store != nil {
		r.Static(ws.store.Prefix(), ws.store.Root())
	}

	requireAuth := auth.RequireAuth(ws.jwt)
	authed := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return []gin.HandlerFunc{requireAuth, ws.activeUser, h}
	}
	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.GET("/wechat/login", ws.handleWeChatLogin)
	authGroup.GET("/wechat/callback", ws.handleWeChatCallback)
	authGroup.POST("/wechat/login", ws.handleMiniProgramLogin)
	authGroup.GET("/verify", ws.handleVerify)

	api.GET("/users/me", authed(ws.handleCurrentUser)...)

	websites := api.Group("/websites")
	websites.GET("", ws.handleListWebsites)
	websites.POST("", authed(ws.handleCreateWebsite)...)
	websites.GET("/collections", authed(ws.handleListCollection)...)
	websites.GET("/:id", ws.handleGetWebsite)
	websites.PUT("/:id", authed(ws.handleUpdateWebsite)...)
	websites.DELETE("/:id", authed(ws.handleDeleteWebsite)...)
	websites.POST("/:id/like", authed(ws.handleLike)...)
	websites.POST("/:id/unlike", authed(ws.handleUnlike)...)
	websites.POST("/:id/collect", authed(ws.handleCollect)...)
	websites.POST("/:id/uncollect", authed(ws.handleUncollect)...)
	websites.POST("/:id/images/refresh", authed(ws.handleRefreshImages)...)
	websites.GET("/:id/comments", ws.handleListComments)
	websites.POST("/:id/comments", authed(ws.handleAddComment)...)
	websites.DELETE("/:id/comments/:commentId", authed(ws.handleDeleteComment)...)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "route not found"})
	})
}

// StartServer serves ws on addr until ctx is done, then shuts down gracefully.
func StartServer(ctx context.Context, addr string, ws *Server) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting web server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (ws *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)}
	if err := ws.db.Ping(); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
		log.Error().Err(err).Msg("Health check failed")
	}
	c.JSON(status, body)
}
