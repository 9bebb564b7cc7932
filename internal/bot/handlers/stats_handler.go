package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const statsWindow = 24 * time.Hour

// NewStatsHandler returns a handler for the admin /stats command.
func NewStatsHandler(deps HandlerDeps) bot.HandlerFunc {
	return statsHandler{deps}.Handle
}

type statsHandler struct {
	deps HandlerDeps
}

func (h statsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "stats")

	msg := update.Message
	if msg == nil {
		return
	}

	dbCtx, cancel := context.WithTimeout(ctx, h.deps.Config.Database.OperationTimeout)
	defer cancel()

	stats, err := h.deps.Store.GetRenderStats(dbCtx, time.Now().Add(-statsWindow))
	if err != nil {
		log.ErrorContext(ctx, "Failed to load render stats", "error", err)
		sendText(ctx, b, log, msg, h.deps.Config.Messages.ErrorGeneralMsg)
		return
	}
	players, err := h.deps.Store.CountPlayers(dbCtx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to count cached players", "error", err)
		sendText(ctx, b, log, msg, h.deps.Config.Messages.ErrorGeneralMsg)
		return
	}

	text := fmt.Sprintf(h.deps.Config.Messages.StatsFmt,
		stats.Count, humanize.Bytes(uint64(stats.TotalBytes)), stats.AvgDurationMS, players)
	sendText(ctx, b, log, msg, text)
}
