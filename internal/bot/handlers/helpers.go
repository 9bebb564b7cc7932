package handlers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/cardbot/internal/database"
)

// commandArgs returns the text following the leading /command (and any
// @botname suffix). Line breaks inside the arguments are kept.
func commandArgs(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return text
	}
	idx := strings.IndexFunc(text, unicode.IsSpace)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(text[idx:])
}

// messageText returns the text of msg, or its caption for media messages.
func messageText(msg *models.Message) string {
	if msg == nil {
		return ""
	}
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

// displayName is "@username" when set, otherwise the full name, otherwise the ID.
func displayName(user *models.User) string {
	if user == nil {
		return ""
	}
	if user.Username != "" {
		return "@" + user.Username
	}
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name != "" {
		return name
	}
	return fmt.Sprintf("id:%d", user.ID)
}

// withBotName replaces the @botname placeholder in configured messages.
func withBotName(msg string, info *models.User) string {
	if info == nil || info.Username == "" {
		return msg
	}
	return strings.ReplaceAll(msg, "@botname", "@"+info.Username)
}

func replyTo(msg *models.Message) *models.ReplyParameters {
	return &models.ReplyParameters{MessageID: msg.ID, AllowSendingWithoutReply: true}
}

func sendText(ctx context.Context, b *bot.Bot, log *slog.Logger, msg *models.Message, text string) *models.Message {
	sent, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          msg.Chat.ID,
		Text:            text,
		ReplyParameters: replyTo(msg),
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send message", "error", err, "chat_id", msg.Chat.ID)
		return nil
	}
	return sent
}

func sendPhoto(ctx context.Context, b *bot.Bot, msg *models.Message, data []byte, filename, caption string) error {
	_, err := b.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:          msg.Chat.ID,
		Photo:           &models.InputFileUpload{Filename: filename, Data: bytes.NewReader(data)},
		Caption:         caption,
		ReplyParameters: replyTo(msg),
	})
	if err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}
	return nil
}

// recordRender stores a render log entry. Failures are logged only; the
// user already has their image.
func recordRender(ctx context.Context, deps HandlerDeps, log *slog.Logger, rec *database.RenderRecord) {
	if deps.Store == nil {
		return
	}
	if deps.Config != nil && deps.Config.Database.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deps.Config.Database.OperationTimeout)
		defer cancel()
	}
	if err := deps.Store.SaveRender(ctx, rec); err != nil {
		log.WarnContext(ctx, "Failed to record render", "error", err, "kind", rec.Kind)
	}
}

func sinceMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
