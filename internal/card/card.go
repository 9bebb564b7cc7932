// Package card draws the fallback player stats card and formats the photo
// caption sent with every stats image.
package card

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/edgard/cardbot/internal/brawlstars"
	"github.com/edgard/cardbot/internal/render"
)

// FallbackFamily is the built-in family cards are drawn with when the styled
// family cannot be loaded.
const FallbackFamily = "GoRegular"

// Renderer is the subset of *render.Renderer used to draw cards.
type Renderer interface {
	Render(ctx context.Context, req render.Request) (*render.Image, error)
}

// Style controls the card appearance. An empty FontFamily uses the
// renderer's default family.
type Style struct {
	FontFamily string
	FontSize   int
	Width      int
	Padding    int
	Foreground render.RGB
	Background render.RGB
}

// DefaultStyle is an 800px dark card with white text.
func DefaultStyle() Style {
	return Style{
		FontSize:   22,
		Width:      800,
		Padding:    40,
		Foreground: render.White,
		Background: render.RGB{R: 30, G: 30, B: 46},
	}
}

// Builder renders player cards.
type Builder struct {
	renderer Renderer
	style    Style
}

// NewBuilder creates a Builder drawing with r.
func NewBuilder(r Renderer, style Style) *Builder {
	return &Builder{renderer: r, style: style}
}

// Build renders the stats card for p. When the styled font cannot be
// resolved the card is drawn with FallbackFamily instead.
func (b *Builder) Build(ctx context.Context, p *brawlstars.Player) (*render.Image, error) {
	if p == nil {
		return nil, fmt.Errorf("cannot build card for nil player")
	}
	req := b.Request(p)
	img, err := b.renderer.Render(ctx, req)
	if errors.Is(err, render.ErrFontResolution) && req.FontFamily != FallbackFamily {
		req.FontFamily = FallbackFamily
		img, err = b.renderer.Render(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to render card for %s: %w", p.Tag, err)
	}
	return img, nil
}

// Request returns the render request Build would issue for p.
func (b *Builder) Request(p *brawlstars.Player) render.Request {
	return render.Request{
		Text:           Text(p),
		FontFamily:     b.style.FontFamily,
		FontSize:       b.style.FontSize,
		MaxWidth:       b.style.Width,
		Foreground:     b.style.Foreground,
		Background:     b.style.Background,
		Padding:        b.style.Padding,
		KeepLineBreaks: true,
	}
}

// Text is the card body: one statistic per line.
func Text(p *brawlstars.Player) string {
	var sb strings.Builder

	sb.WriteString(orDefault(p.Name, "?"))
	sb.WriteString("\n")
	sb.WriteString(p.Tag)
	if p.Club != nil && p.Club.Name != "" {
		sb.WriteString("  ·  ")
		sb.WriteString(p.Club.Name)
	}
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "Trophies: %s / %s\n", humanize.Comma(int64(p.Trophies)), humanize.Comma(int64(p.HighestTrophies)))
	fmt.Fprintf(&sb, "3v3: %s  Solo: %s  Duo: %s\n",
		humanize.Comma(int64(p.TrioVictories)),
		humanize.Comma(int64(p.SoloVictories)),
		humanize.Comma(int64(p.DuoVictories)))
	fmt.Fprintf(&sb, "Brawlers: %d", len(p.Brawlers))
	if p.ExpLevel > 0 {
		fmt.Fprintf(&sb, "\nLevel: %d", p.ExpLevel)
	}
	return sb.String()
}

// Caption is the text sent alongside the stats photo.
func Caption(p *brawlstars.Player, requester string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 %s (%s)\n", orDefault(p.Name, "Unknown"), p.Tag)
	fmt.Fprintf(&sb, "🏆 Trophies: %s\n", humanize.Comma(int64(p.Trophies)))
	fmt.Fprintf(&sb, "🎮 Brawlers: %d", len(p.Brawlers))
	if requester != "" {
		fmt.Fprintf(&sb, "\n\n👤 Requested by: %s", requester)
	}
	return sb.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
