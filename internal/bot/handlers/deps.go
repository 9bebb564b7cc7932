package handlers

import (
	"context"
	"log/slog"

	"github.com/edgard/cardbot/internal/brawlstars"
	"github.com/edgard/cardbot/internal/config"
	"github.com/edgard/cardbot/internal/database"
	"github.com/edgard/cardbot/internal/render"
)

// Renderer renders /render requests.
type Renderer interface {
	Render(ctx context.Context, req render.Request) (*render.Image, error)
	DefaultFamily() string
}

// PlayerClient fetches player data and ready-made stats images.
type PlayerClient interface {
	GetPlayer(ctx context.Context, tag string) (*brawlstars.Player, error)
	FetchStatsImage(ctx context.Context, tag string) (*brawlstars.StatsImage, error)
}

// CardBuilder draws the fallback stats card.
type CardBuilder interface {
	Build(ctx context.Context, p *brawlstars.Player) (*render.Image, error)
}

// FontCatalog reports which font families are loaded.
type FontCatalog interface {
	Families() []string
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger   *slog.Logger
	Config   *config.Config
	Store    database.Store
	Renderer Renderer
	Players  PlayerClient
	Cards    CardBuilder
	Fonts    FontCatalog
}
