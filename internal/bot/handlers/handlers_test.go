package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/cardbot/internal/brawlstars"
	"github.com/edgard/cardbot/internal/database"
	"github.com/edgard/cardbot/internal/render"
)

func newRenderer() *render.Renderer {
	return render.New(render.NewFontCache(nil, render.BuiltinSource{}), render.DefaultOptions(), nil)
}

func textUpdate(chatType models.ChatType, text string) *models.Update {
	return &models.Update{
		ID: 1,
		Message: &models.Message{
			ID:   10,
			Text: text,
			Chat: models.Chat{ID: 1, Type: chatType},
			From: &models.User{ID: 7, Username: "alice"},
		},
	}
}

// memStore is an in-memory database.Store.
type memStore struct {
	mu      sync.Mutex
	renders []*database.RenderRecord
	players map[string]*database.PlayerSnapshot
}

func newMemStore() *memStore {
	return &memStore{players: map[string]*database.PlayerSnapshot{}}
}

func (s *memStore) Ping(context.Context) error { return nil }

func (s *memStore) SaveRender(_ context.Context, r *database.RenderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renders = append(s.renders, r)
	return nil
}

func (s *memStore) GetRenderStats(context.Context, time.Time) (*database.RenderStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &database.RenderStats{Count: int64(len(s.renders))}
	for _, r := range s.renders {
		st.TotalBytes += r.Bytes
	}
	return st, nil
}

func (s *memStore) PruneRenders(context.Context, time.Time) (int64, error) { return 0, nil }

func (s *memStore) SavePlayer(_ context.Context, p *database.PlayerSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	cp.FetchedAt = time.Now()
	s.players[p.Tag] = &cp
	return nil
}

func (s *memStore) GetPlayer(_ context.Context, tag string) (*database.PlayerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.players[tag], nil
}

func (s *memStore) CountPlayers(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.players)), nil
}

func (s *memStore) RunSQLMaintenance(context.Context) error { return nil }

func (s *memStore) Renders() []*database.RenderRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*database.RenderRecord(nil), s.renders...)
}

// fakePlayers serves a fixed player and optionally a remote image.
type fakePlayers struct {
	calls    atomic.Int32
	err      error
	imageErr error
}

func (f *fakePlayers) GetPlayer(_ context.Context, tag string) (*brawlstars.Player, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return brawlstars.ParsePlayer([]byte(`{"tag":"` + tag + `","name":"Alice","trophies":1234,"brawlers":[{"id":1}]}`))
}

func (f *fakePlayers) FetchStatsImage(context.Context, string) (*brawlstars.StatsImage, error) {
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	return &brawlstars.StatsImage{Data: []byte("remote-image"), MIMEType: "image/jpeg"}, nil
}

type fakeCards struct{ calls atomic.Int32 }

func (f *fakeCards) Build(context.Context, *brawlstars.Player) (*render.Image, error) {
	f.calls.Add(1)
	return &render.Image{Data: []byte("card-image"), Width: 800, Height: 300, Lines: 6}, nil
}

func TestCommandArgs(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"/render hello world":          "hello world",
		"/render@cardbot   spaced out ": "spaced out",
		"/render\nline one\nline two":  "line one\nline two",
		"/render":                      "",
		"plain text":                   "plain text",
	}
	for in, want := range tests {
		assert.Equal(t, want, commandArgs(in), "input %q", in)
	}
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "@alice", displayName(&models.User{ID: 1, Username: "alice", FirstName: "Alice"}))
	assert.Equal(t, "Alice Smith", displayName(&models.User{ID: 1, FirstName: "Alice", LastName: "Smith"}))
	assert.Equal(t, "id:5", displayName(&models.User{ID: 5}))
	assert.Empty(t, displayName(nil))
}

func TestWithBotName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hi @cardbot", withBotName("hi @botname", &models.User{Username: "cardbot"}))
	assert.Equal(t, "hi @botname", withBotName("hi @botname", nil))
}

func TestRenderErrorMessage(t *testing.T) {
	t.Parallel()

	msgs := testMessages()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "invalid", err: &render.InvalidRequestError{Field: "Text", Reason: "must not be empty"}, want: "invalid: text must not be empty"},
		{name: "font", err: &render.FontResolutionError{Family: "Comic", Err: render.ErrFontNotFound}, want: `font "Comic" missing`},
		{name: "timeout", err: context.DeadlineExceeded, want: "timeout"},
		{name: "other", err: errors.New("boom"), want: "general error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, renderErrorMessage(tt.err, msgs))
		})
	}
}

func TestPlayerErrorMessage(t *testing.T) {
	t.Parallel()

	msgs := testMessages()
	assert.Equal(t, "not found", playerErrorMessage(brawlstars.ErrPlayerNotFound, msgs))
	assert.Equal(t, "auth error", playerErrorMessage(brawlstars.ErrUnauthorized, msgs))
	assert.Equal(t, "api error 503", playerErrorMessage(&brawlstars.APIError{Status: 503}, msgs))
	assert.Equal(t, "unavailable", playerErrorMessage(fmt.Errorf("%w: open", brawlstars.ErrUnavailable), msgs))
	assert.Equal(t, "general error", playerErrorMessage(errors.New("dial tcp"), msgs))
}

func TestFontsMessage(t *testing.T) {
	t.Parallel()

	got := fontsMessage("Fonts", "DejaVuSans", []string{"GoMono", "GoRegular"}, []string{"DejaVuSans"})
	assert.Equal(t, "Fonts\n\nDefault: DejaVuSans\nBuilt-in: GoMono, GoRegular\nLoaded: DejaVuSans", got)

	got = fontsMessage("Fonts", "X", []string{"GoMono"}, nil)
	assert.NotContains(t, got, "Loaded")
}

func TestStartHandler(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	cfg := testConfig()
	cfg.Telegram.BotInfo = &models.User{Username: "cardbot"}

	NewStartHandler(HandlerDeps{Logger: discardLogger(), Config: cfg})(context.Background(), api.bot(t), textUpdate(models.ChatTypePrivate, "/start"))

	calls := api.Calls("sendMessage")
	require.Len(t, calls, 1)
	assert.Equal(t, "welcome @cardbot", calls[0].Fields["text"])
}

func TestRenderHandler_SendsPhotoAndRecords(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	store := newMemStore()
	deps := HandlerDeps{Logger: discardLogger(), Config: testConfig(), Store: store, Renderer: newRenderer()}

	NewRenderHandler(deps)(context.Background(), api.bot(t), textUpdate(models.ChatTypePrivate, "/render hello world"))

	photos := api.Calls("sendPhoto")
	require.Len(t, photos, 1)
	require.Contains(t, photos[0].Files, "photo")
	assert.Equal(t, []byte("\x89PNG"), photos[0].Files["photo"][:4])

	renders := store.Renders()
	require.Len(t, renders, 1)
	assert.Equal(t, database.RenderKindText, renders[0].Kind)
	assert.Equal(t, "GoRegular", renders[0].FontFamily)
	assert.Equal(t, 320, renders[0].Width)
	assert.Equal(t, 11, renders[0].TextLength)
}

func TestRenderHandler_UsesRepliedMessage(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	deps := HandlerDeps{Logger: discardLogger(), Config: testConfig(), Renderer: newRenderer()}

	update := textUpdate(models.ChatTypeGroup, "/render")
	update.Message.ReplyToMessage = &models.Message{ID: 3, Caption: "quoted caption"}
	NewRenderHandler(deps)(context.Background(), api.bot(t), update)

	assert.Len(t, api.Calls("sendPhoto"), 1)
}

func TestRenderHandler_UsageAndErrors(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	cfg := testConfig()
	cfg.Renderer.DefaultFamily = "MissingFamily"
	deps := HandlerDeps{Logger: discardLogger(), Config: cfg, Renderer: newRenderer()}
	b := api.bot(t)

	NewRenderHandler(deps)(context.Background(), b, textUpdate(models.ChatTypePrivate, "/render"))
	NewRenderHandler(deps)(context.Background(), b, textUpdate(models.ChatTypePrivate, "/render some text"))

	calls := api.Calls("sendMessage")
	require.Len(t, calls, 2)
	assert.Equal(t, "usage", calls[0].Fields["text"])
	assert.Equal(t, `font "MissingFamily" missing`, calls[1].Fields["text"])
	assert.Empty(t, api.Calls("sendPhoto"))
}

func TestStatsHandler_AdminOnly(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	store := newMemStore()
	require.NoError(t, store.SaveRender(context.Background(), &database.RenderRecord{Kind: database.RenderKindText, Bytes: 2048}))
	deps := HandlerDeps{Logger: discardLogger(), Config: testConfig(), Store: store}
	handler := AdminOnly(deps)(NewStatsHandler(deps))
	b := api.bot(t)

	handler(context.Background(), b, textUpdate(models.ChatTypePrivate, "/stats"))

	admin := textUpdate(models.ChatTypePrivate, "/stats")
	admin.Message.From.ID = 42
	handler(context.Background(), b, admin)

	calls := api.Calls("sendMessage")
	require.Len(t, calls, 2)
	assert.Equal(t, "unauthorized", calls[0].Fields["text"])
	assert.Equal(t, "1 renders, 2.0 kB, 0 ms, 0 players", calls[1].Fields["text"])
}

func TestAdminOnly_NoAdminConfigured(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	cfg := testConfig()
	cfg.Telegram.AdminUserID = 0
	deps := HandlerDeps{Logger: discardLogger(), Config: cfg, Store: newMemStore()}

	var reached bool
	handler := AdminOnly(deps)(func(context.Context, *bot.Bot, *models.Update) { reached = true })

	update := textUpdate(models.ChatTypePrivate, "/stats")
	update.Message.From.ID = 0
	handler(context.Background(), api.bot(t), update)

	assert.False(t, reached)
	calls := api.Calls("sendMessage")
	require.Len(t, calls, 1)
	assert.Equal(t, "unauthorized", calls[0].Fields["text"])
}

func TestPlayerHandler_RemoteImage(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	store := newMemStore()
	players := &fakePlayers{}
	cards := &fakeCards{}
	deps := HandlerDeps{Logger: discardLogger(), Config: testConfig(), Store: store, Players: players, Cards: cards}
	handler := NewPlayerHandler(deps)
	b := api.bot(t)

	handler(context.Background(), b, textUpdate(models.ChatTypePrivate, "2gpqy9rjl"))
	handler(context.Background(), b, textUpdate(models.ChatTypePrivate, "#2GPQY9RJL"))

	assert.Equal(t, int32(1), players.calls.Load(), "second lookup is served from the snapshot cache")
	assert.Zero(t, cards.calls.Load())

	photos := api.Calls("sendPhoto")
	require.Len(t, photos, 2)
	assert.Equal(t, []byte("remote-image"), photos[0].Files["photo"])
	assert.Contains(t, photos[0].Fields["caption"], "Alice (#2GPQY9RJL)")
	assert.Contains(t, photos[0].Fields["caption"], "@alice")
	assert.Len(t, api.Calls("deleteMessage"), 2)

	renders := store.Renders()
	require.Len(t, renders, 2)
	assert.Equal(t, database.RenderKindRemote, renders[0].Kind)
}

func TestPlayerHandler_FallsBackToCard(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	store := newMemStore()
	deps := HandlerDeps{
		Logger:  discardLogger(),
		Config:  testConfig(),
		Store:   store,
		Players: &fakePlayers{imageErr: brawlstars.ErrNoImage},
		Cards:   &fakeCards{},
	}

	NewPlayerHandler(deps)(context.Background(), api.bot(t), textUpdate(models.ChatTypePrivate, "#PYL"))

	photos := api.Calls("sendPhoto")
	require.Len(t, photos, 1)
	assert.Equal(t, []byte("card-image"), photos[0].Files["photo"])

	renders := store.Renders()
	require.Len(t, renders, 1)
	assert.Equal(t, database.RenderKindCard, renders[0].Kind)
	assert.Equal(t, 6, renders[0].Lines)
}

func TestPlayerHandler_Errors(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	deps := HandlerDeps{
		Logger:  discardLogger(),
		Config:  testConfig(),
		Players: &fakePlayers{err: brawlstars.ErrPlayerNotFound},
		Cards:   &fakeCards{},
	}
	handler := NewPlayerHandler(deps)
	b := api.bot(t)

	handler(context.Background(), b, textUpdate(models.ChatTypePrivate, "not a tag"))
	handler(context.Background(), b, textUpdate(models.ChatTypePrivate, "#PYL"))

	sent := api.Calls("sendMessage")
	require.Len(t, sent, 2)
	assert.Equal(t, "bad tag", sent[0].Fields["text"])
	assert.Equal(t, "loading", sent[1].Fields["text"])

	edits := api.Calls("editMessageText")
	require.Len(t, edits, 1)
	assert.Equal(t, "not found", edits[0].Fields["text"])
	assert.Empty(t, api.Calls("sendPhoto"))
}

func TestPlayerHandler_IgnoresGroupChatter(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	players := &fakePlayers{}
	deps := HandlerDeps{Logger: discardLogger(), Config: testConfig(), Players: players, Cards: &fakeCards{}}
	handler := NewPlayerHandler(deps)
	b := api.bot(t)

	handler(context.Background(), b, textUpdate(models.ChatTypeSupergroup, "good morning everyone"))
	handler(context.Background(), b, textUpdate(models.ChatTypeSupergroup, "PYL"))
	handler(context.Background(), b, textUpdate(models.ChatTypeSupergroup, "/render x"))

	assert.Empty(t, api.Calls())
	assert.Zero(t, players.calls.Load())
}
