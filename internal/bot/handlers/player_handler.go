package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/sync/singleflight"

	"github.com/edgard/cardbot/internal/brawlstars"
	"github.com/edgard/cardbot/internal/card"
	"github.com/edgard/cardbot/internal/config"
	"github.com/edgard/cardbot/internal/database"
)

// NewPlayerHandler returns the default handler: a message containing a
// player tag is answered with a stats image. In groups only messages that
// start with '#' are considered.
func NewPlayerHandler(deps HandlerDeps) bot.HandlerFunc {
	h := &playerHandler{deps: deps}
	return h.Handle
}

type playerHandler struct {
	deps HandlerDeps

	// lookups coalesces concurrent requests for the same tag.
	lookups singleflight.Group
}

type statsPhoto struct {
	data     []byte
	filename string
	kind     string
	width    int
	height   int
	lines    int
}

func (h *playerHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "player")
	msgs := h.deps.Config.Messages

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" || strings.HasPrefix(text, "/") {
		return
	}
	private := msg.Chat.Type == models.ChatTypePrivate
	if !private && !strings.HasPrefix(text, "#") {
		return
	}

	tag, err := brawlstars.NormalizeTag(text)
	if err != nil {
		if private || brawlstars.LooksLikeTag(text) {
			sendText(ctx, b, log, msg, msgs.PlayerInvalidTagMsg)
		}
		return
	}

	log.InfoContext(ctx, "Handling player lookup", "tag", tag, "chat_id", msg.Chat.ID, "user_id", msg.From.ID)
	loading := sendText(ctx, b, log, msg, msgs.PlayerLoadingMsg)
	start := time.Now()

	p, err := h.lookup(ctx, log, tag)
	if err != nil {
		log.WarnContext(ctx, "Player lookup failed", "tag", tag, "error", err)
		h.fail(ctx, b, log, msg, loading, playerErrorMessage(err, msgs))
		return
	}

	if _, err := b.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: msg.Chat.ID,
		Action: models.ChatActionUploadPhoto,
	}); err != nil {
		log.DebugContext(ctx, "Failed to send chat action", "error", err)
	}

	photo, err := h.statsImage(ctx, log, p)
	if err != nil {
		log.ErrorContext(ctx, "Failed to produce stats image", "tag", tag, "error", err)
		h.fail(ctx, b, log, msg, loading, msgs.PlayerImageErrorMsg)
		return
	}

	caption := card.Caption(p, displayName(msg.From))
	if err := sendPhoto(ctx, b, msg, photo.data, photo.filename, caption); err != nil {
		log.ErrorContext(ctx, "Failed to send stats image", "tag", tag, "error", err)
		h.fail(ctx, b, log, msg, loading, msgs.ErrorGeneralMsg)
		return
	}

	if loading != nil {
		if _, err := b.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: msg.Chat.ID, MessageID: loading.ID}); err != nil {
			log.DebugContext(ctx, "Failed to delete loading message", "error", err)
		}
	}

	recordRender(ctx, h.deps, log, &database.RenderRecord{
		ChatID:     msg.Chat.ID,
		UserID:     msg.From.ID,
		Kind:       photo.kind,
		TextLength: len([]rune(p.Name)),
		Width:      photo.width,
		Height:     photo.height,
		Lines:      photo.lines,
		Bytes:      int64(len(photo.data)),
		DurationMS: sinceMS(start),
	})
}

// lookup returns the player for tag from the snapshot cache when fresh,
// otherwise from the API, storing the new snapshot.
func (h *playerHandler) lookup(ctx context.Context, log *slog.Logger, tag string) (*brawlstars.Player, error) {
	v, err, shared := h.lookups.Do(tag, func() (any, error) {
		return h.fetch(ctx, log, tag)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.DebugContext(ctx, "Shared in-flight player lookup", "tag", tag)
	}
	return v.(*brawlstars.Player), nil
}

func (h *playerHandler) fetch(ctx context.Context, log *slog.Logger, tag string) (*brawlstars.Player, error) {
	ttl := h.deps.Config.BrawlStars.CacheTTL

	if h.deps.Store != nil && ttl > 0 {
		snap, err := h.deps.Store.GetPlayer(ctx, tag)
		switch {
		case err != nil:
			log.WarnContext(ctx, "Failed to read player cache", "tag", tag, "error", err)
		case snap.Fresh(time.Now(), ttl):
			p, err := brawlstars.ParsePlayer([]byte(snap.Data))
			if err == nil {
				log.DebugContext(ctx, "Using cached player snapshot", "tag", tag, "fetched_at", snap.FetchedAt)
				return p, nil
			}
			log.WarnContext(ctx, "Discarding unreadable player snapshot", "tag", tag, "error", err)
		}
	}

	p, err := h.deps.Players.GetPlayer(ctx, tag)
	if err != nil {
		return nil, err
	}

	if h.deps.Store != nil {
		snap := &database.PlayerSnapshot{
			Tag:             p.Tag,
			Name:            p.Name,
			Trophies:        p.Trophies,
			HighestTrophies: p.HighestTrophies,
			Data:            string(p.Raw),
		}
		if err := h.deps.Store.SavePlayer(ctx, snap); err != nil {
			log.WarnContext(ctx, "Failed to cache player snapshot", "tag", tag, "error", err)
		}
	}
	return p, nil
}

// statsImage prefers a remote stats image and falls back to drawing a card.
func (h *playerHandler) statsImage(ctx context.Context, log *slog.Logger, p *brawlstars.Player) (*statsPhoto, error) {
	base := "stats_" + strings.TrimPrefix(p.Tag, "#")

	remote, err := h.deps.Players.FetchStatsImage(ctx, p.Tag)
	if err == nil {
		return &statsPhoto{data: remote.Data, filename: base + remote.Extension(), kind: database.RenderKindRemote}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	log.InfoContext(ctx, "Falling back to generated stats card", "tag", p.Tag, "reason", err)

	img, err := h.deps.Cards.Build(ctx, p)
	if err != nil {
		return nil, err
	}
	return &statsPhoto{
		data:     img.Data,
		filename: base + ".png",
		kind:     database.RenderKindCard,
		width:    img.Width,
		height:   img.Height,
		lines:    img.Lines,
	}, nil
}

// fail replaces the loading message with text, or replies if there is none.
func (h *playerHandler) fail(ctx context.Context, b *bot.Bot, log *slog.Logger, msg, loading *models.Message, text string) {
	if loading != nil {
		_, err := b.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    msg.Chat.ID,
			MessageID: loading.ID,
			Text:      text,
		})
		if err == nil {
			return
		}
		log.DebugContext(ctx, "Failed to edit loading message", "error", err)
	}
	sendText(ctx, b, log, msg, text)
}

// playerErrorMessage maps a lookup error to the message shown to the user.
func playerErrorMessage(err error, msgs config.MessagesConfig) string {
	var apiErr *brawlstars.APIError
	switch {
	case errors.Is(err, brawlstars.ErrPlayerNotFound):
		return msgs.PlayerNotFoundMsg
	case errors.Is(err, brawlstars.ErrUnauthorized):
		return msgs.PlayerAuthErrorMsg
	case errors.Is(err, brawlstars.ErrUnavailable):
		return msgs.PlayerUnavailableMsg
	case errors.As(err, &apiErr):
		return fmt.Sprintf(msgs.PlayerAPIErrorFmt, apiErr.Status)
	default:
		return msgs.ErrorGeneralMsg
	}
}
