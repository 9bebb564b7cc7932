package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/cardbot/internal/render"
)

// NewFontsHandler returns a handler for /fonts.
func NewFontsHandler(deps HandlerDeps) bot.HandlerFunc {
	return fontsHandler{deps}.Handle
}

type fontsHandler struct {
	deps HandlerDeps
}

func (h fontsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "fonts")

	if update.Message == nil {
		return
	}

	var loaded []string
	if h.deps.Fonts != nil {
		loaded = h.deps.Fonts.Families()
	}
	text := fontsMessage(h.deps.Config.Messages.FontsHeaderMsg, h.deps.Renderer.DefaultFamily(), render.BuiltinFamilies(), loaded)
	sendText(ctx, b, log, update.Message, text)
}

func fontsMessage(header, defaultFamily string, builtin, loaded []string) string {
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n\nDefault: ")
	sb.WriteString(defaultFamily)
	sb.WriteString("\nBuilt-in: ")
	sb.WriteString(strings.Join(builtin, ", "))
	if len(loaded) > 0 {
		sb.WriteString("\nLoaded: ")
		sb.WriteString(strings.Join(loaded, ", "))
	}
	return sb.String()
}
