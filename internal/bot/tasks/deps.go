// Package tasks implements the scheduled maintenance tasks of the bot.
package tasks

import (
	"context"
	"log/slog"

	"golang.org/x/image/font/opentype"

	"github.com/edgard/cardbot/internal/config"
	"github.com/edgard/cardbot/internal/database"
)

// FontLoader loads a font family into the shared cache.
type FontLoader interface {
	Load(ctx context.Context, family string) (*opentype.Font, error)
}

// TaskDeps contains the dependencies shared by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Fonts  FontLoader
	Config *config.Config
}
