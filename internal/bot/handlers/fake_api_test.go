package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/stretchr/testify/require"

	"github.com/edgard/cardbot/internal/config"
)

const testToken = "123456:TEST-token"

// apiCall is one request received by fakeAPI.
type apiCall struct {
	Method string
	Fields map[string]string
	Files  map[string][]byte
}

// fakeAPI is a minimal Bot API server that records calls and answers with
// canned successes.
type fakeAPI struct {
	mu    sync.Mutex
	calls []apiCall
	srv   *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	call := apiCall{Method: method, Fields: map[string]string{}, Files: map[string][]byte{}}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(32 << 20); err == nil {
			for k, v := range r.MultipartForm.Value {
				call.Fields[k] = v[0]
			}
			for k, fhs := range r.MultipartForm.File {
				file, err := fhs[0].Open()
				if err != nil {
					continue
				}
				data, _ := io.ReadAll(file)
				_ = file.Close()
				call.Files[k] = data
			}
		}
	case "application/json":
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			for k, v := range body {
				if s, ok := v.(string); ok {
					call.Fields[k] = s
				} else {
					raw, _ := json.Marshal(v)
					call.Fields[k] = string(raw)
				}
			}
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	n := len(f.calls)
	f.mu.Unlock()

	var result string
	switch method {
	case "sendMessage", "sendPhoto", "editMessageText":
		result = `{"message_id":` + itoa(1000+n) + `,"date":1700000000,"chat":{"id":1,"type":"private"}}`
	default:
		result = `true`
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"ok":true,"result":`+result+`}`)
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func (f *fakeAPI) bot(t *testing.T) *bot.Bot {
	t.Helper()
	b, err := bot.New(testToken,
		bot.WithServerURL(f.srv.URL),
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(5*time.Second, f.srv.Client()),
	)
	require.NoError(t, err)
	return b
}

// Calls returns the recorded calls, optionally only those for methods.
func (f *fakeAPI) Calls(methods ...string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(methods) == 0 {
		return append([]apiCall(nil), f.calls...)
	}
	var out []apiCall
	for _, c := range f.calls {
		for _, m := range methods {
			if c.Method == m {
				out = append(out, c)
			}
		}
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMessages() config.MessagesConfig {
	return config.MessagesConfig{
		Welcome:              "welcome @botname",
		Help:                 "help",
		ErrorGeneralMsg:      "general error",
		ErrorUnauthorizedMsg: "unauthorized",
		RenderUsageMsg:       "usage",
		RenderInvalidFmt:     "invalid: %s",
		RenderFontErrorFmt:   "font %q missing",
		RenderTimeoutMsg:     "timeout",
		FontsHeaderMsg:       "Fonts",
		StatsFmt:             "%d renders, %s, %.0f ms, %d players",
		PlayerInvalidTagMsg:  "bad tag",
		PlayerLoadingMsg:     "loading",
		PlayerNotFoundMsg:    "not found",
		PlayerAuthErrorMsg:   "auth error",
		PlayerAPIErrorFmt:    "api error %d",
		PlayerImageErrorMsg:  "image error",
		PlayerUnavailableMsg: "unavailable",
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Telegram: config.TelegramConfig{AdminUserID: 42},
		Database: config.DatabaseConfig{OperationTimeout: time.Second},
		Messages: testMessages(),
		Renderer: config.RendererConfig{
			DefaultFamily:  "GoRegular",
			FontSize:       20,
			MaxWidth:       320,
			Padding:        8,
			Foreground:     "#ffffff",
			Background:     "#000000",
			KeepLineBreaks: true,
		},
		BrawlStars: config.BrawlStarsConfig{CacheTTL: time.Minute},
	}
}
