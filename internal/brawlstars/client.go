// Package brawlstars is a small client for the Brawl Stars player API and the
// third-party services that publish ready-made player stats images.
package brawlstars

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/edgard/cardbot/internal/resilience"
)

const maxBodySize = 10 << 20

var (
	// ErrPlayerNotFound is returned for tags the API does not know.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrUnauthorized is returned when the API rejects the key or source IP.
	ErrUnauthorized = errors.New("api authorization failed")
	// ErrNoImage is returned when no image endpoint produced an image.
	ErrNoImage = errors.New("no stats image available")
	// ErrInvalidResponse is returned when a player body cannot be decoded.
	ErrInvalidResponse = errors.New("invalid player response")
	// ErrUnavailable is returned while repeated API failures keep the
	// circuit breaker open.
	ErrUnavailable = errors.New("player api temporarily unavailable")
)

// APIError reports an unexpected HTTP status from the player API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("brawl stars api returned status %d", e.Status)
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// Player is the subset of the player object the bot displays.
type Player struct {
	Tag             string    `json:"tag"`
	Name            string    `json:"name"`
	NameColor       string    `json:"nameColor,omitempty"`
	Trophies        int       `json:"trophies"`
	HighestTrophies int       `json:"highestTrophies"`
	ExpLevel        int       `json:"expLevel"`
	TrioVictories   int       `json:"3vs3Victories"`
	SoloVictories   int       `json:"soloVictories"`
	DuoVictories    int       `json:"duoVictories"`
	Club            *Club     `json:"club,omitempty"`
	Brawlers        []Brawler `json:"brawlers"`

	// Raw is the response body the player was decoded from.
	Raw json.RawMessage `json:"-"`
}

// Club is the player's club, if any.
type Club struct {
	Tag  string `json:"tag"`
	Name string `json:"name"`
}

// Brawler is one unlocked brawler.
type Brawler struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	Power           int    `json:"power"`
	Rank            int    `json:"rank"`
	Trophies        int    `json:"trophies"`
	HighestTrophies int    `json:"highestTrophies"`
}

// ParsePlayer decodes a player API response body.
func ParsePlayer(data []byte) (*Player, error) {
	var p Player
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if p.Tag == "" {
		return nil, fmt.Errorf("%w: missing tag", ErrInvalidResponse)
	}
	p.Raw = append(json.RawMessage(nil), data...)
	return &p, nil
}

// Config configures a Client.
type Config struct {
	APIKey         string
	BaseURL        string
	ImageURLs      []string // templates containing {tag}
	RequestTimeout time.Duration
	ImageTimeout   time.Duration
	MaxRetries     int
	RetryDelay     time.Duration

	// BreakerFailures consecutive failed lookups open the circuit for
	// BreakerCooldown. Zero disables the breaker.
	BreakerFailures int
	BreakerCooldown time.Duration
}

// Client talks to the player API and the image services.
type Client struct {
	cfg     Config
	http    *http.Client
	log     *slog.Logger
	breaker *resilience.Breaker
}

// NewClient creates a Client. A nil httpClient uses a default client.
func NewClient(cfg Config, httpClient *http.Client, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	log = log.With("component", "brawlstars")
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:        "brawlstars_api",
		MaxFailures: cfg.BreakerFailures,
		Cooldown:    cfg.BreakerCooldown,
		IsFailure:   isServerFailure,
		Logger:      log,
	})
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		log:     log,
		breaker: breaker,
	}
}

// GetPlayer fetches the player with the given tag (with or without '#').
// Temporary failures are retried up to Config.MaxRetries times with
// exponential backoff. When the circuit breaker is open it fails fast with
// an error matching ErrUnavailable.
func (c *Client) GetPlayer(ctx context.Context, tag string) (*Player, error) {
	if !strings.HasPrefix(tag, "#") {
		tag = "#" + tag
	}
	endpoint := c.cfg.BaseURL + "/players/" + url.PathEscape(tag)

	p, err := resilience.Execute(c.breaker, func() (*Player, error) {
		return retry.DoWithData(
			func() (*Player, error) {
				return c.getPlayerOnce(ctx, endpoint)
			},
			retry.Context(ctx),
			retry.Attempts(uint(c.cfg.MaxRetries)+1),
			retry.Delay(c.cfg.RetryDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(isServerFailure),
			retry.OnRetry(func(n uint, err error) {
				c.log.WarnContext(ctx, "Retrying player request", "tag", tag, "attempt", n+1, "error", err)
			}),
		)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		c.log.WarnContext(ctx, "Player API circuit open, failing fast", "tag", tag)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return p, err
}

func (c *Client) getPlayerOnce(ctx context.Context, endpoint string) (*Player, error) {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build player request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("player request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read player response: %w", err)
	}
	c.log.InfoContext(ctx, "Player API request", "url", endpoint, "status", resp.StatusCode, "duration", time.Since(start))

	switch resp.StatusCode {
	case http.StatusOK:
		return ParsePlayer(body)
	case http.StatusNotFound:
		return nil, ErrPlayerNotFound
	case http.StatusForbidden, http.StatusUnauthorized:
		c.log.ErrorContext(ctx, "Player API rejected credentials", "status", resp.StatusCode, "body", snippet(body))
		return nil, ErrUnauthorized
	default:
		c.log.ErrorContext(ctx, "Player API error", "status", resp.StatusCode, "body", snippet(body))
		return nil, &APIError{Status: resp.StatusCode, Body: snippet(body)}
	}
}

// isServerFailure reports whether err is worth retrying and counts against
// the circuit breaker: transport errors, timeouts and temporary statuses.
func isServerFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return !errors.Is(err, ErrPlayerNotFound) && !errors.Is(err, ErrUnauthorized) && !errors.Is(err, ErrInvalidResponse)
}

func snippet(b []byte) string {
	const n = 200
	if len(b) > n {
		b = b[:n]
	}
	return strings.ToValidUTF8(string(b), "")
}
