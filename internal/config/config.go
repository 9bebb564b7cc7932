// Package config loads, defaults and validates the cardbot configuration.
// Values come from a YAML file, BOT_* environment variables (BOT_TELEGRAM_TOKEN
// overrides telegram.token) and the defaults in defaults.go, in decreasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-telegram/bot/models"
	"github.com/spf13/viper"

	"github.com/edgard/cardbot/internal/brawlstars"
	"github.com/edgard/cardbot/internal/card"
	"github.com/edgard/cardbot/internal/render"
)

// Config is the root configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Messages   MessagesConfig   `mapstructure:"messages"`
	Renderer   RendererConfig   `mapstructure:"renderer"`
	Card       CardConfig       `mapstructure:"card"`
	BrawlStars BrawlStarsConfig `mapstructure:"brawlstars"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

// LoggerConfig controls slog output.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`

	// File enables a rotated copy of the log on disk.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"  validate:"min=1,max=10240"`
	MaxBackups int    `mapstructure:"max_backups"  validate:"min=0,max=1000"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"min=0,max=3650"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path             string        `mapstructure:"path"              validate:"required"`
	RenderRetention  time.Duration `mapstructure:"render_retention"  validate:"min=1h"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" validate:"min=100ms,max=5m"`
}

// TelegramConfig holds bot credentials and transport settings.
type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`

	// AdminUserID may use /stats. Zero leaves /stats closed to everyone.
	AdminUserID int64 `mapstructure:"admin_user_id" validate:"gte=0"`

	// WebhookURL switches the bot from long polling to webhooks. It is the
	// public base URL; WebhookPath is appended to it.
	WebhookURL    string `mapstructure:"webhook_url"    validate:"omitempty,url"`
	WebhookPath   string `mapstructure:"webhook_path"   validate:"required,startswith=/"`
	WebhookSecret string `mapstructure:"webhook_secret"`

	// BotInfo is filled in at startup from getMe.
	BotInfo *models.User `mapstructure:"-" validate:"-"`
}

// HTTPConfig configures the listener used in webhook mode.
type HTTPConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"      validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s,max=1m"`
}

// MessagesConfig holds user-facing texts. Entries ending in Fmt are fmt templates.
type MessagesConfig struct {
	Welcome              string `mapstructure:"welcome"                validate:"required"`
	Help                 string `mapstructure:"help"                   validate:"required"`
	ErrorGeneralMsg      string `mapstructure:"error_general_msg"      validate:"required"`
	ErrorUnauthorizedMsg string `mapstructure:"error_unauthorized_msg" validate:"required"`

	RenderUsageMsg     string `mapstructure:"render_usage_msg"      validate:"required"`
	RenderInvalidFmt   string `mapstructure:"render_invalid_fmt"    validate:"required"`
	RenderFontErrorFmt string `mapstructure:"render_font_error_fmt" validate:"required"`
	RenderTimeoutMsg   string `mapstructure:"render_timeout_msg"    validate:"required"`

	FontsHeaderMsg string `mapstructure:"fonts_header_msg" validate:"required"`
	StatsFmt       string `mapstructure:"stats_fmt"        validate:"required"`

	PlayerInvalidTagMsg  string `mapstructure:"player_invalid_tag_msg" validate:"required"`
	PlayerLoadingMsg     string `mapstructure:"player_loading_msg"     validate:"required"`
	PlayerNotFoundMsg    string `mapstructure:"player_not_found_msg"   validate:"required"`
	PlayerAuthErrorMsg   string `mapstructure:"player_auth_error_msg"  validate:"required"`
	PlayerAPIErrorFmt    string `mapstructure:"player_api_error_fmt"   validate:"required"`
	PlayerImageErrorMsg  string `mapstructure:"player_image_error_msg" validate:"required"`
	PlayerUnavailableMsg string `mapstructure:"player_unavailable_msg" validate:"required"`
}

// RendererConfig configures text rendering for /render and the font cache.
type RendererConfig struct {
	DefaultFamily   string        `mapstructure:"default_family"    validate:"required"`
	FontDirs        []string      `mapstructure:"font_dirs"`
	SystemFonts     bool          `mapstructure:"system_fonts"`
	PreloadFamilies []string      `mapstructure:"preload_families"  validate:"dive,required"`
	MaxTextLength   int           `mapstructure:"max_text_length"   validate:"min=1,max=100000"`
	MaxCanvasWidth  int           `mapstructure:"max_canvas_width"  validate:"min=16,max=32768"`
	MaxCanvasHeight int           `mapstructure:"max_canvas_height" validate:"min=16,max=32768"`
	LineGapRatio    float64       `mapstructure:"line_gap_ratio"    validate:"min=0,max=2"`
	Timeout         time.Duration `mapstructure:"timeout"           validate:"min=0,max=5m"`

	FontSize       int    `mapstructure:"font_size"        validate:"min=4,max=512"`
	MaxWidth       int    `mapstructure:"max_width"        validate:"min=16,max=8192"`
	Padding        int    `mapstructure:"padding"          validate:"min=0,max=1024"`
	Foreground     string `mapstructure:"foreground"       validate:"required,hexcolor"`
	Background     string `mapstructure:"background"       validate:"required,hexcolor"`
	KeepLineBreaks bool   `mapstructure:"keep_line_breaks"`
}

// CardConfig styles the fallback player stats card.
type CardConfig struct {
	FontFamily string `mapstructure:"font_family"`
	FontSize   int    `mapstructure:"font_size"  validate:"min=4,max=512"`
	Width      int    `mapstructure:"width"      validate:"min=16,max=8192"`
	Padding    int    `mapstructure:"padding"    validate:"min=0,max=1024"`
	Foreground string `mapstructure:"foreground" validate:"required,hexcolor"`
	Background string `mapstructure:"background" validate:"required,hexcolor"`
}

// BrawlStarsConfig configures the player API and the remote stats images.
type BrawlStarsConfig struct {
	APIKey         string        `mapstructure:"api_key"         validate:"required"`
	BaseURL        string        `mapstructure:"base_url"        validate:"required,url"`
	ImageURLs      []string      `mapstructure:"image_urls"      validate:"dive,required,contains={tag}"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=1s,max=2m"`
	ImageTimeout   time.Duration `mapstructure:"image_timeout"   validate:"min=1s,max=2m"`
	MaxRetries     int           `mapstructure:"max_retries"     validate:"min=0,max=10"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"     validate:"min=0,max=1m"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"       validate:"min=0,max=168h"`

	BreakerFailures int           `mapstructure:"breaker_failures" validate:"min=0,max=100"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown" validate:"min=0,max=1h"`
}

// SchedulerConfig maps task names to their schedule.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig schedules one task. Schedule is a cron expression with a leading
// seconds field.
type TaskConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Schedule   string `mapstructure:"schedule"     validate:"required_if=Enabled true"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// RenderOptions converts the renderer section into render.Options.
func (c RendererConfig) RenderOptions() render.Options {
	return render.Options{
		DefaultFamily:   c.DefaultFamily,
		MaxTextLength:   c.MaxTextLength,
		MaxCanvasWidth:  c.MaxCanvasWidth,
		MaxCanvasHeight: c.MaxCanvasHeight,
		LineGapRatio:    c.LineGapRatio,
		Timeout:         c.Timeout,
	}
}

// Request builds a render request for text using the configured defaults.
func (c RendererConfig) Request(text string) render.Request {
	return render.Request{
		Text:       text,
		FontFamily: c.DefaultFamily,
		FontSize:   c.FontSize,
		MaxWidth:   c.MaxWidth,
		Foreground: render.MustParseHex(c.Foreground),
		Background: render.MustParseHex(c.Background),
		Padding:    c.Padding,

		KeepLineBreaks: c.KeepLineBreaks,
	}
}

// Style converts the card section into a card.Style.
func (c CardConfig) Style() card.Style {
	return card.Style{
		FontFamily: c.FontFamily,
		FontSize:   c.FontSize,
		Width:      c.Width,
		Padding:    c.Padding,
		Foreground: render.MustParseHex(c.Foreground),
		Background: render.MustParseHex(c.Background),
	}
}

// ClientConfig converts the brawlstars section into a brawlstars.Config.
func (c BrawlStarsConfig) ClientConfig() brawlstars.Config {
	return brawlstars.Config{
		APIKey:         c.APIKey,
		BaseURL:        c.BaseURL,
		ImageURLs:      c.ImageURLs,
		RequestTimeout: c.RequestTimeout,
		ImageTimeout:   c.ImageTimeout,
		MaxRetries:     c.MaxRetries,
		RetryDelay:     c.RetryDelay,

		BreakerFailures: c.BreakerFailures,
		BreakerCooldown: c.BreakerCooldown,
	}
}

// WebhookEnabled reports whether the bot should receive updates via webhook.
func (c TelegramConfig) WebhookEnabled() bool { return c.WebhookURL != "" }

// WebhookEndpoint is the full URL registered with Telegram.
func (c TelegramConfig) WebhookEndpoint() string {
	return strings.TrimRight(c.WebhookURL, "/") + c.WebhookPath
}

// LoadConfig reads the YAML file at path (a missing file is not an error),
// applies environment overrides and defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	start := time.Now()
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		slog.Info("Configuration file not found, using defaults and environment", "path", path)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := validateColours(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Telegram.AdminUserID == 0 {
		slog.Warn("No admin user configured, /stats is disabled")
	}

	slog.Debug("Configuration loaded",
		"path", path,
		"webhook", cfg.Telegram.WebhookEnabled(),
		"default_family", cfg.Renderer.DefaultFamily,
		"tasks", len(cfg.Scheduler.Tasks),
		"duration", time.Since(start))
	return cfg, nil
}

// bindLegacyEnv accepts the unprefixed variable names used by earlier
// deployments alongside the BOT_* ones.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"telegram.token":         {"BOT_TELEGRAM_TOKEN", "TELEGRAM_TOKEN"},
		"telegram.admin_user_id": {"BOT_TELEGRAM_ADMIN_USER_ID", "ADMIN_USER_ID"},
		"telegram.webhook_url":   {"BOT_TELEGRAM_WEBHOOK_URL", "WEBHOOK_URL"},
		"brawlstars.api_key":     {"BOT_BRAWLSTARS_API_KEY", "BRAWL_STARS_API_KEY"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// validateColours rejects colours the hexcolor tag allows but the renderer
// cannot use, such as #rrggbbaa.
func validateColours(cfg *Config) error {
	colours := map[string]string{
		"renderer.foreground": cfg.Renderer.Foreground,
		"renderer.background": cfg.Renderer.Background,
		"card.foreground":     cfg.Card.Foreground,
		"card.background":     cfg.Card.Background,
	}
	for key, value := range colours {
		if _, err := render.ParseHex(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}
