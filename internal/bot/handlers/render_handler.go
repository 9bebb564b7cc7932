package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/cardbot/internal/config"
	"github.com/edgard/cardbot/internal/database"
	"github.com/edgard/cardbot/internal/render"
)

// NewRenderHandler returns a handler for /render. The text to render is the
// command argument, or the text of the replied-to message when there is none.
func NewRenderHandler(deps HandlerDeps) bot.HandlerFunc {
	return renderHandler{deps}.Handle
}

type renderHandler struct {
	deps HandlerDeps
}

func (h renderHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "render")

	msg := update.Message
	if msg == nil || msg.From == nil {
		log.WarnContext(ctx, "Render handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	text := commandArgs(msg.Text)
	if text == "" && msg.ReplyToMessage != nil {
		text = strings.TrimSpace(messageText(msg.ReplyToMessage))
	}
	if text == "" {
		sendText(ctx, b, log, msg, h.deps.Config.Messages.RenderUsageMsg)
		return
	}

	log.InfoContext(ctx, "Handling /render command",
		"chat_id", msg.Chat.ID, "user_id", msg.From.ID, "runes", utf8.RuneCountInString(text))

	if _, err := b.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: msg.Chat.ID,
		Action: models.ChatActionUploadPhoto,
	}); err != nil {
		log.DebugContext(ctx, "Failed to send chat action", "error", err)
	}

	start := time.Now()
	req := h.deps.Config.Renderer.Request(text)
	img, err := h.deps.Renderer.Render(ctx, req)
	if err != nil {
		log.WarnContext(ctx, "Render failed", "error", err, "chat_id", msg.Chat.ID)
		sendText(ctx, b, log, msg, renderErrorMessage(err, h.deps.Config.Messages))
		return
	}

	if err := sendPhoto(ctx, b, msg, img.Data, "render.png", ""); err != nil {
		log.ErrorContext(ctx, "Failed to send rendered image", "error", err, "chat_id", msg.Chat.ID)
		sendText(ctx, b, log, msg, h.deps.Config.Messages.ErrorGeneralMsg)
		return
	}

	family := req.FontFamily
	if family == "" {
		family = h.deps.Renderer.DefaultFamily()
	}
	recordRender(ctx, h.deps, log, &database.RenderRecord{
		ChatID:     msg.Chat.ID,
		UserID:     msg.From.ID,
		Kind:       database.RenderKindText,
		FontFamily: family,
		TextLength: utf8.RuneCountInString(text),
		Width:      img.Width,
		Height:     img.Height,
		Lines:      img.Lines,
		Bytes:      int64(len(img.Data)),
		DurationMS: sinceMS(start),
	})
}

// renderErrorMessage maps a Render error to the message shown to the user.
func renderErrorMessage(err error, msgs config.MessagesConfig) string {
	var invalidErr *render.InvalidRequestError
	var fontErr *render.FontResolutionError

	switch {
	case errors.As(err, &invalidErr):
		return fmt.Sprintf(msgs.RenderInvalidFmt, lowerFirst(invalidErr.Field)+" "+invalidErr.Reason)
	case errors.As(err, &fontErr):
		return fmt.Sprintf(msgs.RenderFontErrorFmt, fontErr.Family)
	case errors.Is(err, context.DeadlineExceeded):
		return msgs.RenderTimeoutMsg
	default:
		return msgs.ErrorGeneralMsg
	}
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
