// Package render turns text into PNG images. It measures text with real font
// metrics, wraps it greedily to a pixel width and rasterises the result onto
// a solid background.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// MIMEType is the content type of Image.Data.
const MIMEType = "image/png"

// Default renderer limits.
const (
	DefaultFamily          = "DejaVuSans"
	DefaultMaxTextLength   = 4096
	DefaultMaxCanvasWidth  = 8192
	DefaultMaxCanvasHeight = 8192
	DefaultLineGapRatio    = 0.2
)

// maxCanvasSide bounds either canvas dimension and the font size whatever the
// configured limits are.
const maxCanvasSide = 1 << 15

// Request describes a single render.
type Request struct {
	Text       string
	FontFamily string // empty selects Options.DefaultFamily
	FontSize   int    // pixels
	MaxWidth   int    // pixels; also the width of the produced image
	Foreground RGB
	Background RGB
	Padding    int // pixels on every side

	// KeepLineBreaks starts a new line at every newline in Text instead of
	// treating newlines as ordinary whitespace.
	KeepLineBreaks bool
}

// Image is a rendered PNG.
type Image struct {
	Data   []byte
	Width  int
	Height int
	Lines  int
}

// Options configures a Renderer.
type Options struct {
	DefaultFamily   string
	MaxTextLength   int           // in runes; 0 disables the check
	MaxCanvasWidth  int           // in pixels; 0 means maxCanvasSide
	MaxCanvasHeight int           // in pixels; 0 means maxCanvasSide
	LineGapRatio    float64       // extra line spacing as a fraction of ascent+descent
	Timeout         time.Duration // per render; 0 means only the caller's context applies
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		DefaultFamily:   DefaultFamily,
		MaxTextLength:   DefaultMaxTextLength,
		MaxCanvasWidth:  DefaultMaxCanvasWidth,
		MaxCanvasHeight: DefaultMaxCanvasHeight,
		LineGapRatio:    DefaultLineGapRatio,
	}
}

// Renderer renders requests using fonts from a shared FontCache.
// It holds no per-request state and is safe for concurrent use.
type Renderer struct {
	fonts *FontCache
	opts  Options
	log   *slog.Logger
}

// New creates a Renderer.
func New(fonts *FontCache, opts Options, log *slog.Logger) *Renderer {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.DefaultFamily == "" {
		opts.DefaultFamily = DefaultFamily
	}
	if opts.LineGapRatio < 0 {
		opts.LineGapRatio = 0
	}
	opts.MaxCanvasWidth = canvasLimit(opts.MaxCanvasWidth)
	opts.MaxCanvasHeight = canvasLimit(opts.MaxCanvasHeight)
	return &Renderer{
		fonts: fonts,
		opts:  opts,
		log:   log.With("component", "renderer"),
	}
}

// Render lays out and rasterises req. It returns *InvalidRequestError for
// malformed input, *FontResolutionError when the font cannot be loaded, or the
// context error when ctx (or the configured timeout) expires first. No image
// is returned with an error.
func (r *Renderer) Render(ctx context.Context, req Request) (*Image, error) {
	start := time.Now()
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	face, err := r.openFace(ctx, req)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	l, err := layoutText(ctx, face, req, r.opts)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	canvas := rasterize(face, l, req)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	r.log.DebugContext(ctx, "Rendered text",
		"family", r.family(req),
		"lines", len(l.Lines),
		"width", l.Width,
		"height", l.Height,
		"size", humanize.Bytes(uint64(buf.Len())),
		"duration", time.Since(start))

	return &Image{Data: buf.Bytes(), Width: l.Width, Height: l.Height, Lines: len(l.Lines)}, nil
}

// Layout wraps req without rasterising it.
func (r *Renderer) Layout(ctx context.Context, req Request) (*Layout, error) {
	face, err := r.openFace(ctx, req)
	if err != nil {
		return nil, err
	}
	defer face.Close()
	return layoutText(ctx, face, req, r.opts)
}

// DefaultFamily returns the family used for requests that name none.
func (r *Renderer) DefaultFamily() string { return r.opts.DefaultFamily }

func (r *Renderer) family(req Request) string {
	if strings.TrimSpace(req.FontFamily) == "" {
		return r.opts.DefaultFamily
	}
	return req.FontFamily
}

func (r *Renderer) validate(req Request) error {
	if !utf8.ValidString(req.Text) {
		return invalid("Text", "is not valid UTF-8")
	}
	if strings.TrimSpace(req.Text) == "" {
		return invalid("Text", "must not be empty")
	}
	if n := utf8.RuneCountInString(req.Text); r.opts.MaxTextLength > 0 && n > r.opts.MaxTextLength {
		return invalid("Text", "is %d characters long, limit is %d", n, r.opts.MaxTextLength)
	}
	if req.FontSize <= 0 {
		return invalid("FontSize", "must be positive")
	}
	if req.FontSize > maxCanvasSide {
		return invalid("FontSize", "is %d px, limit is %d px", req.FontSize, maxCanvasSide)
	}
	if req.MaxWidth <= 0 {
		return invalid("MaxWidth", "must be positive")
	}
	if limit := canvasLimit(r.opts.MaxCanvasWidth); req.MaxWidth > limit {
		return invalid("MaxWidth", "is %d px, limit is %d px", req.MaxWidth, limit)
	}
	if req.Padding < 0 {
		return invalid("Padding", "must not be negative")
	}
	// Compared without multiplying so huge values cannot overflow.
	if req.Padding > (req.MaxWidth-1)/2 {
		return invalid("Padding", "leaves no room for text in a %d px wide canvas", req.MaxWidth)
	}
	return nil
}

// canvasLimit returns the effective limit for a configured canvas dimension.
func canvasLimit(configured int) int {
	if configured <= 0 || configured > maxCanvasSide {
		return maxCanvasSide
	}
	return configured
}

func (r *Renderer) openFace(ctx context.Context, req Request) (font.Face, error) {
	if err := r.validate(req); err != nil {
		return nil, err
	}
	f, err := r.fonts.Load(ctx, r.family(req))
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(req.FontSize),
		DPI:     72, // 1pt == 1px
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, &FontResolutionError{Family: r.family(req), Err: fmt.Errorf("create face: %w", err)}
	}
	return face, nil
}

func rasterize(face font.Face, l *Layout, req Request) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, l.Width, l.Height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(req.Background.RGBA()), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(req.Foreground.RGBA()),
		Face: face,
	}
	for i, line := range l.Lines {
		if line.Text == "" {
			continue
		}
		x := req.Padding
		// An oversized word may use the right padding but never leaves the canvas.
		if x+line.Width > l.Width {
			x = l.Width - line.Width
		}
		y := req.Padding + i*l.LineHeight + l.Ascent
		d.Dot = fixed.P(x, y)
		d.DrawString(line.Text)
	}
	return canvas
}
