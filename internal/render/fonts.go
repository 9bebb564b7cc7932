package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/image/font/opentype"
	"golang.org/x/sync/singleflight"
)

// FontCache resolves font families to parsed fonts and memoises them for
// the lifetime of the process. Entries are loaded on first use and are
// read-only afterwards. Concurrent requests for a family that is still
// loading wait on the single in-flight load instead of starting their own.
//
// A parsed *opentype.Font is safe for concurrent use; faces created from
// it are not, so each render creates its own.
type FontCache struct {
	sources []Source
	log     *slog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	fonts map[string]*opentype.Font
	names map[string]string

	loads atomic.Int64
}

// NewFontCache creates an empty cache that consults sources in order.
func NewFontCache(log *slog.Logger, sources ...Source) *FontCache {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FontCache{
		sources: sources,
		log:     log.With("component", "font_cache"),
		fonts:   make(map[string]*opentype.Font),
		names:   make(map[string]string),
	}
}

// Load returns the parsed font for family, loading it on first use.
// Failures are returned as *FontResolutionError and are not cached.
func (c *FontCache) Load(ctx context.Context, family string) (*opentype.Font, error) {
	key := normalizeFamily(family)
	if key == "" {
		return nil, &FontResolutionError{Family: family, Err: errors.New("empty family name")}
	}

	if f, ok := c.cached(key); ok {
		return f, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		return c.load(family, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*opentype.Font), nil
	}
}

// Families returns the display names of the fonts loaded so far.
func (c *FontCache) Families() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Loads reports how many fonts have been read and parsed.
func (c *FontCache) Loads() int64 { return c.loads.Load() }

func (c *FontCache) cached(key string) (*opentype.Font, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.fonts[key]
	return f, ok
}

func (c *FontCache) load(family, key string) (*opentype.Font, error) {
	// A caller may have been scheduled after a previous flight finished.
	if f, ok := c.cached(key); ok {
		return f, nil
	}

	start := time.Now()
	var lastErr error = ErrFontNotFound
	for _, src := range c.sources {
		data, err := src.Lookup(family)
		if errors.Is(err, ErrFontNotFound) {
			continue
		}
		if err != nil {
			c.log.Warn("Font source lookup failed", "family", family, "source", src.Name(), "error", err)
			lastErr = err
			continue
		}

		f, err := opentype.Parse(data)
		if err != nil {
			lastErr = fmt.Errorf("parse %s font data: %w", src.Name(), err)
			c.log.Warn("Failed to parse font", "family", family, "source", src.Name(), "error", err)
			continue
		}

		c.mu.Lock()
		c.fonts[key] = f
		c.names[key] = family
		c.mu.Unlock()
		c.loads.Add(1)

		c.log.Info("Font loaded",
			"family", family,
			"source", src.Name(),
			"size", humanize.Bytes(uint64(len(data))),
			"duration", time.Since(start))
		return f, nil
	}

	c.log.Warn("Font could not be resolved", "family", family, "sources", len(c.sources))
	return nil, &FontResolutionError{Family: family, Err: lastErr}
}
