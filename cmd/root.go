/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/hamsternav/hamsternav/internal/auth"
	"github.com/hamsternav/hamsternav/internal/config"
	"github.com/hamsternav/hamsternav/internal/core"
	"github.com/hamsternav/hamsternav/internal/core/db"
	"github.com/hamsternav/hamsternav/internal/core/web"
	"github.com/hamsternav/hamsternav/internal/logger"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// startupScanDelay gives the HTTP server a moment to come up before the
// backlog of websites without images is queued.
const startupScanDelay = 2 * time.Second

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hamsternav",
	Short: "Website navigation backend with favicon and thumbnail fetching",
	Long: `hamsternav serves the navigation API: websites, likes, collections,
comments and WeChat login.

Every website gets a favicon and a thumbnail fetched from the site itself.
New and re-pointed websites are queued for background workers; the refresh
and import commands run the same fetcher in batches from the command line.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(cmd); err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringP("db", "d", "hamsternav.db", "Path to the SQLite database file")
	rootCmd.PersistentFlags().String("images-dir", "public/images", "Directory normalized images are written to")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("render", false, "Render pages in Chrome before reading their metadata")
	rootCmd.PersistentFlags().String("chrome-path", "", "Path to Chrome/Chromium executable")
	rootCmd.PersistentFlags().Bool("headful", false, "Run Chrome with a visible window (not headless)")

	rootCmd.Flags().IntP("port", "p", 3000, "Port to listen on")
	rootCmd.Flags().String("host", "localhost", "Host to listen on")
	rootCmd.Flags().IntP("workers", "w", 1, "Number of image fetch workers to run")
}

// flagKeys maps command line flags onto config keys. Only flags that were set
// explicitly override the config file and environment.
var flagKeys = map[string]string{
	"db":            "database.path",
	"images-dir":    "images.dir",
	"log-level":     "logging.level",
	"render":        "render.enabled",
	"chrome-path":   "render.chrome_path",
	"headful":       "render.headful",
	"port":          "server.port",
	"host":          "server.host",
	"workers":       "workers.count",
	"batch-size":    "%s.batch_size",
	"batch-delay":   "%s.batch_delay",
	"wait-selector": "render.wait_selector",
}

// loadConfig reads the config file named by --config and applies the flags
// cmd was invoked with. section names the config block that --batch-size and
// --batch-delay belong to ("refresh" or "import").
func loadConfig(cmd *cobra.Command, section string) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to read --config: %w", err)
	}
	_, v, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	for name, key := range flagKeys {
		if strings.Contains(key, "%s") {
			if section == "" {
				continue
			}
			key = fmt.Sprintf(key, section)
		}
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}
	return config.Unmarshal(v)
}

// setup loads configuration and installs the logger.
func setup(cmd *cobra.Command, section string) (*config.Config, error) {
	cfg, err := loadConfig(cmd, section)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if _, err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func initDB(path string) (*db.DB, error) {
	database, err := db.NewSQLiteDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Info().Str("path", path).Msg("Database migrated successfully")
	return database, nil
}

// newFetcher builds the metadata fetcher described by cfg.
func newFetcher(cfg *config.Config, store *core.ImageStore) *core.Fetcher {
	downloader := core.NewHTTPDownloader(core.DownloaderConfig{
		Timeout:     cfg.HTTP.Timeout,
		UserAgent:   cfg.HTTP.UserAgent,
		MaxBodySize: cfg.HTTP.MaxBodySize,
	})
	opts := []core.FetcherOption{
		core.WithNormalizer(core.NewNormalizer(cfg.Images.FaviconSize, cfg.Images.ThumbnailWidth, cfg.Images.ThumbnailHeight)),
	}
	if cfg.Render.Enabled {
		chromePath := cfg.Render.ChromePath
		if chromePath == "" && runtime.GOOS == "darwin" {
			// Best-effort default for macOS.
			chromePath = "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		}
		opts = append(opts, core.WithPageSource(core.NewChromePageSource(core.RenderOptions{
			ChromePath:   chromePath,
			Headless:     !cfg.Render.Headful,
			Timeout:      cfg.Render.Timeout,
			WaitSelector: cfg.Render.WaitSelector,
		})))
	}
	return core.NewFetcher(downloader, store, opts...)
}

// runServe starts the fetch workers, the refresh schedule and the API server,
// and blocks until SIGINT or SIGTERM.
func runServe(cmd *cobra.Command) error {
	cfg, err := setup(cmd, "")
	if err != nil {
		return err
	}

	database, err := initDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	store, err := core.NewImageStore(cfg.Images.Dir, cfg.Images.PublicPrefix)
	if err != nil {
		return err
	}
	fetcher := newFetcher(cfg, store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue := core.NewFetchQueue(database, fetcher, store, cfg.Workers.Count, cfg.Workers.QueueSize)
	queue.RegisterListeners()
	queue.Start(ctx)
	defer queue.Close()

	// On startup, queue any websites that still lack images
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(startupScanDelay):
		}
		n, err := queue.EnqueueMissing()
		if err != nil {
			log.Error().Err(err).Msg("Failed to queue websites without images")
			return
		}
		log.Info().Int("count", n).Msg("Queued websites without images on startup")
	}()

	if cfg.Refresh.Schedule != "" {
		scheduler, err := startRefreshSchedule(ctx, cfg, database, fetcher)
		if err != nil {
			return err
		}
		defer func() { <-scheduler.Stop().Done() }()
	}

	var wechat *auth.WeChatClient
	if cfg.WeChat.AppID != "" || cfg.WeChat.MiniAppID != "" {
		wechat = auth.NewWeChatClient(auth.WeChatConfig{
			AppID:      cfg.WeChat.AppID,
			Secret:     cfg.WeChat.Secret,
			MiniAppID:  cfg.WeChat.MiniAppID,
			MiniSecret: cfg.WeChat.MiniSecret,
			Timeout:    cfg.HTTP.Timeout,
		})
	}

	srv, err := web.NewServer(web.Options{
		DB:                database,
		Fetcher:           fetcher,
		Store:             store,
		JWT:               auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiresIn),
		WeChat:            wechat,
		WeChatRedirectURI: cfg.WeChat.RedirectURI,
		FrontendURL:       cfg.WeChat.FrontendURL,
		CORSOrigins:       cfg.Server.CORSOrigins,
		Mode:              cfg.Server.Mode,
	})
	if err != nil {
		return err
	}

	return web.StartServer(ctx, cfg.Server.Addr(), srv)
}
