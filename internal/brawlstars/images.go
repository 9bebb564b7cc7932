package brawlstars

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
)

// StatsImage is an image downloaded from one of the stats services.
type StatsImage struct {
	Data     []byte
	MIMEType string
	Source   string
}

// Extension returns the file extension matching the image type, e.g. ".png".
func (i *StatsImage) Extension() string {
	if m := mimetype.Lookup(i.MIMEType); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ".img"
}

// FetchStatsImage tries each configured image URL in order and returns the
// first response that is actually an image. It returns ErrNoImage when every
// endpoint fails, or the context error if ctx ends first.
func (c *Client) FetchStatsImage(ctx context.Context, tag string) (*StatsImage, error) {
	cleanTag := strings.TrimPrefix(tag, "#")

	for _, tmpl := range c.cfg.ImageURLs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		endpoint := strings.ReplaceAll(tmpl, "{tag}", cleanTag)

		img, err := c.fetchImage(ctx, endpoint)
		if err != nil {
			c.log.InfoContext(ctx, "Stats image source failed", "url", endpoint, "error", err)
			continue
		}
		c.log.InfoContext(ctx, "Stats image fetched",
			"url", endpoint, "type", img.MIMEType, "size", humanize.Bytes(uint64(len(img.Data))))
		return img, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNoImage
}

func (c *Client) fetchImage(ctx context.Context, endpoint string) (*StatsImage, error) {
	if c.cfg.ImageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ImageTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, snippet(data))
	}

	mimeType, ok := imageType(resp.Header.Get("Content-Type"), data)
	if !ok {
		return nil, fmt.Errorf("not an image (%s): %s", mimeType, snippet(data))
	}
	c.log.DebugContext(ctx, "Image endpoint responded", "url", endpoint, "duration", time.Since(start))
	return &StatsImage{Data: data, MIMEType: mimeType, Source: endpoint}, nil
}

// imageType decides whether body is an image. The sniffed type wins over the
// declared one, since some services label images as octet-stream.
func imageType(contentType string, body []byte) (string, bool) {
	if len(body) == 0 {
		return "empty", false
	}
	detected := mimetype.Detect(body)
	if strings.HasPrefix(detected.String(), "image/") {
		return detected.String(), true
	}
	declared := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if strings.HasPrefix(declared, "image/") && detected.Is("application/octet-stream") {
		return declared, true
	}
	return detected.String(), false
}
