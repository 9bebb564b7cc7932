package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/edgard/cardbot/internal/render"
)

// Default values for optional settings.
const (
	DefaultLogLevel = "info"

	DefaultDBPath                 = "storage.db"
	DefaultDBRenderRetention      = 30 * 24 * time.Hour
	DefaultDBOperationTimeout     = 10 * time.Second
	DefaultTelegramWebhookPath    = "/webhook"
	DefaultHTTPListenAddr         = ":8080"
	DefaultHTTPShutdownTimeout    = 10 * time.Second
	DefaultRendererFontSize       = 28
	DefaultRendererMaxWidth       = 800
	DefaultRendererPadding        = 24
	DefaultRendererTimeout        = 5 * time.Second
	DefaultCardFontSize           = 22
	DefaultCardWidth              = 800
	DefaultCardPadding            = 40
	DefaultBrawlStarsBaseURL      = "https://bsproxy.royaleapi.dev/v1"
	DefaultBrawlStarsTimeout      = 10 * time.Second
	DefaultBrawlStarsImageTimeout = 15 * time.Second
	DefaultBrawlStarsRetryDelay   = time.Second
	DefaultBrawlStarsCacheTTL     = 10 * time.Minute
	DefaultBreakerFailures        = 5
	DefaultBreakerCooldown        = 30 * time.Second
)

// DefaultFontDirs are searched before the system font directories.
var DefaultFontDirs = []string{"./fonts", "/usr/share/fonts/truetype/dejavu"}

// DefaultImageURLs are the remote stats image endpoints, tried in order.
var DefaultImageURLs = []string{
	"https://sltbot.com/api/image/{tag}",
	"https://sltbot.com/api/player/{tag}/image",
	"https://sltbot.com/api/rank/{tag}",
	"https://brawltracker.com/api/image/rank/{tag}",
	"https://brawlbot.xyz/api/image/rank/{tag}",
	"https://brawlbot.xyz/api/player/{tag}/image",
}

var defaultMessages = map[string]string{
	"welcome": "👋 Hi! I turn text into images and fetch Brawl Stars player cards.\n\n" +
		"Send a player tag like #2GPQY9RJL, or use /render followed by some text.",
	"help": "📖 How to use me:\n\n" +
		"• Send a player tag (#2GPQY9RJL) to get a stats card.\n" +
		"• /render <text> renders your text as an image (or reply to a message with /render).\n" +
		"• /fonts lists the available fonts.",
	"error_general_msg":      "⚠️ Something went wrong. Please try again later.",
	"error_unauthorized_msg": "🚫 You are not authorized to use this command.",

	"render_usage_msg":      "ℹ️ Usage: /render <text>, or reply to a text message with /render.",
	"render_invalid_fmt":    "❌ I can't render that: %s.",
	"render_font_error_fmt": "🔤 Font %q is not available on this server.",
	"render_timeout_msg":    "⏱️ Rendering took too long. Try a shorter text.",

	"fonts_header_msg": "🔤 Fonts",
	"stats_fmt":        "📈 Last 24h: %d renders, %s generated, %.0f ms average.\n🗂 Cached players: %d",

	"player_invalid_tag_msg": "❌ Invalid tag. Example: #2GPQY9RJL",
	"player_loading_msg":     "⏳ Loading player stats…",
	"player_not_found_msg":   "❌ Player not found. Check the tag.",
	"player_auth_error_msg":  "🔒 The stats API rejected our credentials.",
	"player_api_error_fmt":   "⚠️ Stats API error (%d). Please try again later.",
	"player_image_error_msg": "⚠️ Could not build the stats card.",
	"player_unavailable_msg": "⏸ The stats API is having trouble. Try again in a minute.",
}

var defaultTasks = map[string]any{
	"sql_maintenance": map[string]any{
		"enabled":  true,
		"schedule": "0 0 4 * * *",
	},
	"render_log_prune": map[string]any{
		"enabled":  true,
		"schedule": "0 30 3 * * *",
	},
	"font_warmup": map[string]any{
		"enabled":      true,
		"schedule":     "0 0 * * * *",
		"run_on_start": true,
	},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", false)
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size_mb", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age_days", 28)

	v.SetDefault("database.path", DefaultDBPath)
	v.SetDefault("database.render_retention", DefaultDBRenderRetention)
	v.SetDefault("database.operation_timeout", DefaultDBOperationTimeout)

	// Required keys get empty defaults so AutomaticEnv can populate them.
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_user_id", 0)
	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.webhook_path", DefaultTelegramWebhookPath)
	v.SetDefault("telegram.webhook_secret", "")

	v.SetDefault("http.listen_addr", DefaultHTTPListenAddr)
	v.SetDefault("http.shutdown_timeout", DefaultHTTPShutdownTimeout)

	for key, msg := range defaultMessages {
		v.SetDefault("messages."+key, msg)
	}

	v.SetDefault("renderer.default_family", render.DefaultFamily)
	v.SetDefault("renderer.font_dirs", DefaultFontDirs)
	v.SetDefault("renderer.system_fonts", true)
	v.SetDefault("renderer.preload_families", []string{render.DefaultFamily})
	v.SetDefault("renderer.max_text_length", render.DefaultMaxTextLength)
	v.SetDefault("renderer.max_canvas_width", render.DefaultMaxCanvasWidth)
	v.SetDefault("renderer.max_canvas_height", render.DefaultMaxCanvasHeight)
	v.SetDefault("renderer.line_gap_ratio", render.DefaultLineGapRatio)
	v.SetDefault("renderer.timeout", DefaultRendererTimeout)
	v.SetDefault("renderer.font_size", DefaultRendererFontSize)
	v.SetDefault("renderer.max_width", DefaultRendererMaxWidth)
	v.SetDefault("renderer.padding", DefaultRendererPadding)
	v.SetDefault("renderer.foreground", "#ffffff")
	v.SetDefault("renderer.background", "#1e1e2e")
	v.SetDefault("renderer.keep_line_breaks", true)

	v.SetDefault("card.font_family", "")
	v.SetDefault("card.font_size", DefaultCardFontSize)
	v.SetDefault("card.width", DefaultCardWidth)
	v.SetDefault("card.padding", DefaultCardPadding)
	v.SetDefault("card.foreground", "#ffffff")
	v.SetDefault("card.background", "#1e1e2e")

	v.SetDefault("brawlstars.api_key", "")
	v.SetDefault("brawlstars.base_url", DefaultBrawlStarsBaseURL)
	v.SetDefault("brawlstars.image_urls", DefaultImageURLs)
	v.SetDefault("brawlstars.request_timeout", DefaultBrawlStarsTimeout)
	v.SetDefault("brawlstars.image_timeout", DefaultBrawlStarsImageTimeout)
	v.SetDefault("brawlstars.max_retries", 2)
	v.SetDefault("brawlstars.retry_delay", DefaultBrawlStarsRetryDelay)
	v.SetDefault("brawlstars.cache_ttl", DefaultBrawlStarsCacheTTL)
	v.SetDefault("brawlstars.breaker_failures", DefaultBreakerFailures)
	v.SetDefault("brawlstars.breaker_cooldown", DefaultBreakerCooldown)

	v.SetDefault("scheduler.tasks", defaultTasks)
}
