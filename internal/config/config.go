// Package config loads hamsternav settings from defaults, an optional config
// file, a .env file and HAMSTERNAV_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hamsternav/hamsternav/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. HAMSTERNAV_SERVER_PORT.
const EnvPrefix = "HAMSTERNAV"

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Images   ImagesConfig   `mapstructure:"images"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
	Import   ImportConfig   `mapstructure:"import"`
	Auth     AuthConfig     `mapstructure:"auth"`
	WeChat   WeChatConfig   `mapstructure:"wechat"`
	Render   RenderConfig   `mapstructure:"render"`
	Logging  logger.Config  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	// Mode is the gin mode: debug, release or test.
	Mode string `mapstructure:"mode"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ImagesConfig describes where normalized images live and how they are sized.
type ImagesConfig struct {
	Dir             string `mapstructure:"dir"`
	PublicPrefix    string `mapstructure:"public_prefix"`
	FaviconSize     int    `mapstructure:"favicon_size"`
	ThumbnailWidth  int    `mapstructure:"thumbnail_width"`
	ThumbnailHeight int    `mapstructure:"thumbnail_height"`
}

// HTTPConfig configures the outbound downloader.
type HTTPConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
	MaxBodySize int64         `mapstructure:"max_body_size"`
}

type WorkersConfig struct {
	Count     int `mapstructure:"count"`
	QueueSize int `mapstructure:"queue_size"`
}

// RefreshConfig paces batch refresh runs. Schedule is a five-field cron
// expression; empty disables scheduled refreshes in serve mode.
type RefreshConfig struct {
	BatchSize  int           `mapstructure:"batch_size"`
	BatchDelay time.Duration `mapstructure:"batch_delay"`
	Schedule   string        `mapstructure:"schedule"`
}

type ImportConfig struct {
	BatchSize  int           `mapstructure:"batch_size"`
	BatchDelay time.Duration `mapstructure:"batch_delay"`
}

type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	JWTExpiresIn time.Duration `mapstructure:"jwt_expires_in"`
}

// WeChatConfig holds credentials for web OAuth and mini-program login.
type WeChatConfig struct {
	AppID       string `mapstructure:"app_id"`
	Secret      string `mapstructure:"secret"`
	RedirectURI string `mapstructure:"redirect_uri"`
	FrontendURL string `mapstructure:"frontend_url"`
	MiniAppID   string `mapstructure:"mini_app_id"`
	MiniSecret  string `mapstructure:"mini_secret"`
}

// RenderConfig enables headless Chrome rendering of pages before metadata extraction.
type RenderConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ChromePath   string        `mapstructure:"chrome_path"`
	Headful      bool          `mapstructure:"headful"`
	Timeout      time.Duration `mapstructure:"timeout"`
	WaitSelector string        `mapstructure:"wait_selector"`
}

// Load reads configuration into a new viper instance. configPath may be empty,
// in which case config.yaml is searched in ./, ./configs and ~/.hamsternav.
func Load(configPath string) (*Config, *viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".hamsternav"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := Unmarshal(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// Unmarshal decodes v into a Config and validates it.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would make the service misbehave silently.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.Images.Dir == "" {
		return errors.New("images.dir must not be empty")
	}
	if !strings.HasPrefix(c.Images.PublicPrefix, "/") {
		return fmt.Errorf("images.public_prefix must start with '/': %q", c.Images.PublicPrefix)
	}
	if c.Images.FaviconSize <= 0 || c.Images.ThumbnailWidth <= 0 || c.Images.ThumbnailHeight <= 0 {
		return errors.New("image dimensions must be positive")
	}
	if c.Workers.Count < 1 {
		return fmt.Errorf("workers.count must be at least 1, got %d", c.Workers.Count)
	}
	if c.Refresh.BatchSize < 1 || c.Import.BatchSize < 1 {
		return errors.New("batch_size must be at least 1")
	}
	if c.Refresh.BatchDelay < 0 || c.Import.BatchDelay < 0 {
		return errors.New("batch_delay must not be negative")
	}
	return nil
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.path", "hamsternav.db")

	v.SetDefault("images.dir", "public/images")
	v.SetDefault("images.public_prefix", "/images")
	v.SetDefault("images.favicon_size", 128)
	v.SetDefault("images.thumbnail_width", 640)
	v.SetDefault("images.thumbnail_height", 360)

	v.SetDefault("http.timeout", 15*time.Second)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (compatible; hamsternav/1.0)")
	v.SetDefault("http.max_body_size", 5*1024*1024)

	v.SetDefault("workers.count", 1)
	v.SetDefault("workers.queue_size", 10)

	v.SetDefault("refresh.batch_size", 5)
	v.SetDefault("refresh.batch_delay", time.Second)
	v.SetDefault("refresh.schedule", "")

	v.SetDefault("import.batch_size", 10)
	v.SetDefault("import.batch_delay", time.Second)

	v.SetDefault("auth.jwt_secret", "default_jwt_secret")
	v.SetDefault("auth.jwt_expires_in", 7*24*time.Hour)

	v.SetDefault("wechat.app_id", "")
	v.SetDefault("wechat.secret", "")
	v.SetDefault("wechat.redirect_uri", "")
	v.SetDefault("wechat.frontend_url", "http://localhost:3001")
	v.SetDefault("wechat.mini_app_id", "")
	v.SetDefault("wechat.mini_secret", "")

	v.SetDefault("render.enabled", false)
	v.SetDefault("render.chrome_path", "")
	v.SetDefault("render.headful", false)
	v.SetDefault("render.timeout", 35*time.Second)
	v.SetDefault("render.wait_selector", "")

	d := logger.DefaultConfig()
	v.SetDefault("logging.level", d.Level)
	v.SetDefault("logging.dir", d.Dir)
	v.SetDefault("logging.max_size", d.MaxSize)
	v.SetDefault("logging.max_backups", d.MaxBackups)
	v.SetDefault("logging.max_age", d.MaxAge)
	v.SetDefault("logging.compress", d.Compress)
	v.SetDefault("logging.no_color", false)
}
