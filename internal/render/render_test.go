package render_test

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/edgard/cardbot/internal/render"
)

func newRenderer(t *testing.T, opts render.Options) *render.Renderer {
	t.Helper()
	return render.New(render.NewFontCache(nil, render.BuiltinSource{}), opts, nil)
}

func baseRequest(text string) render.Request {
	return render.Request{
		Text:       text,
		FontFamily: "GoRegular",
		FontSize:   20,
		MaxWidth:   240,
		Foreground: render.White,
		Background: render.MustParseHex("#1e1e2e"),
		Padding:    8,
	}
}

func TestRender_WidthEqualsMaxWidth(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, render.DefaultOptions())

	tests := []struct {
		name     string
		text     string
		maxWidth int
		padding  int
	}{
		{name: "single word", text: "hello", maxWidth: 120, padding: 4},
		{name: "sentence", text: "the quick brown fox jumps over the lazy dog", maxWidth: 200, padding: 10},
		{name: "wide canvas", text: "short", maxWidth: 1024, padding: 0},
		{name: "unicode", text: "Привет мир, ünïcödé text", maxWidth: 300, padding: 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := baseRequest(tt.text)
			req.MaxWidth = tt.maxWidth
			req.Padding = tt.padding

			img, err := r.Render(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.maxWidth, img.Width)

			decoded, err := png.Decode(bytes.NewReader(img.Data))
			require.NoError(t, err)
			assert.Equal(t, tt.maxWidth, decoded.Bounds().Dx())
			assert.Equal(t, img.Height, decoded.Bounds().Dy())
		})
	}
}

func TestRender_LinesFitAvailableWidth(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, render.DefaultOptions())
	req := baseRequest("Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor " +
		"incididunt ut labore et dolore magna aliqua.")
	req.MaxWidth = 180
	req.Padding = 10
	available := req.MaxWidth - 2*req.Padding

	l, err := r.Layout(context.Background(), req)
	require.NoError(t, err)
	require.Greater(t, len(l.Lines), 1)

	var words []string
	for _, line := range l.Lines {
		if strings.Contains(line.Text, " ") {
			assert.LessOrEqual(t, line.Width, available, "line %q", line.Text)
		}
		assert.LessOrEqual(t, line.Width, req.MaxWidth, "line %q", line.Text)
		assert.Equal(t, l.LineHeight, line.Height)
		words = append(words, strings.Fields(line.Text)...)
	}
	assert.Equal(t, strings.Fields(req.Text), words, "layout must keep every token in order")
	assert.Equal(t, 2*req.Padding+len(l.Lines)*l.LineHeight, l.Height)
}

func TestRender_OversizedTokenOnOwnLine(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, render.DefaultOptions())
	const word = "Supercalifragilistic"

	single := baseRequest(word)
	single.MaxWidth = 1000
	pl, err := r.Layout(context.Background(), single)
	require.NoError(t, err)
	wordWidth := pl.Lines[0].Width

	// The word fits on the canvas but not between the paddings.
	req := baseRequest("a " + word + " b")
	req.Padding = 20
	req.MaxWidth = wordWidth + 30

	l, err := r.Layout(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, l.Lines, 3)
	assert.Equal(t, "a", l.Lines[0].Text)
	assert.Equal(t, word, l.Lines[1].Text)
	assert.Equal(t, "b", l.Lines[2].Text)
	assert.Greater(t, l.Lines[1].Width, req.MaxWidth-2*req.Padding)

	img, err := r.Render(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, req.MaxWidth, img.Width)
}

func TestRender_Deterministic(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, render.DefaultOptions())
	req := baseRequest("Rendering the same request twice yields identical bytes.")

	first, err := r.Render(context.Background(), req)
	require.NoError(t, err)
	second, err := r.Render(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first.Data, second.Data))
}

func TestRender_InvalidRequests(t *testing.T) {
	t.Parallel()

	opts := render.DefaultOptions()
	opts.MaxTextLength = 32
	opts.MaxCanvasHeight = 200
	r := newRenderer(t, opts)

	tests := []struct {
		name  string
		edit  func(*render.Request)
		field string
	}{
		{name: "empty text", edit: func(q *render.Request) { q.Text = "" }, field: "Text"},
		{name: "whitespace only", edit: func(q *render.Request) { q.Text = " \t\n  " }, field: "Text"},
		{name: "too long", edit: func(q *render.Request) { q.Text = strings.Repeat("x", 33) }, field: "Text"},
		{name: "invalid utf8", edit: func(q *render.Request) { q.Text = "ok \xff" }, field: "Text"},
		{name: "zero font size", edit: func(q *render.Request) { q.FontSize = 0 }, field: "FontSize"},
		{name: "zero width", edit: func(q *render.Request) { q.MaxWidth = 0 }, field: "MaxWidth"},
		{name: "negative padding", edit: func(q *render.Request) { q.Padding = -1 }, field: "Padding"},
		{name: "padding leaves no room for a glyph", edit: func(q *render.Request) { q.MaxWidth = 20; q.Padding = 8 }, field: "MaxWidth"},
		{name: "word wider than canvas", edit: func(q *render.Request) { q.Text = "Incomprehensibilities"; q.MaxWidth = 60; q.Padding = 0 }, field: "Text"},
		{name: "canvas too tall", edit: func(q *render.Request) { q.Text = "a b c d e f g h i j k l m n o"; q.MaxWidth = 30; q.Padding = 0 }, field: "Text"},
		{name: "width above canvas limit", edit: func(q *render.Request) { q.MaxWidth = math.MaxInt / 8 }, field: "MaxWidth"},
		{name: "huge padding", edit: func(q *render.Request) { q.Padding = math.MaxInt/2 + 1; q.MaxWidth = 100 }, field: "Padding"},
		{name: "padding wider than half the canvas", edit: func(q *render.Request) { q.Padding = 50; q.MaxWidth = 100 }, field: "Padding"},
		{name: "huge font size", edit: func(q *render.Request) { q.FontSize = math.MaxInt32 }, field: "FontSize"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := baseRequest("valid text")
			tt.edit(&req)

			img, err := r.Render(context.Background(), req)
			require.Error(t, err)
			assert.Nil(t, img)
			assert.ErrorIs(t, err, render.ErrInvalidRequest)

			var invalid *render.InvalidRequestError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.field, invalid.Field)
		})
	}
}

func TestRender_UnknownFontFamily(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, render.DefaultOptions())
	req := baseRequest("hello")
	req.FontFamily = "NoSuchFontFamily"

	img, err := r.Render(context.Background(), req)
	assert.Nil(t, img)
	assert.ErrorIs(t, err, render.ErrFontResolution)
	assert.ErrorIs(t, err, render.ErrFontNotFound)

	var fre *render.FontResolutionError
	require.ErrorAs(t, err, &fre)
	assert.Equal(t, "NoSuchFontFamily", fre.Family)
}

func TestRender_DefaultFamilyIsUsedWhenNoneGiven(t *testing.T) {
	t.Parallel()

	// Only the built-in Go fonts are available here, so the default family
	// must fail to resolve rather than fall back silently.
	r := newRenderer(t, render.DefaultOptions())
	req := baseRequest("hello")
	req.FontFamily = ""

	_, err := r.Render(context.Background(), req)
	var fre *render.FontResolutionError
	require.ErrorAs(t, err, &fre)
	assert.Equal(t, render.DefaultFamily, fre.Family)
}

// The "hello world" scenario: at 20px neither word fits next to the other
// inside 60-2*4 = 52px, so the text takes two lines.
func TestRender_HelloWorldWrapsToTwoLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "DejaVuSans.ttf"), goregular.TTF, 0o600))

	cache := render.NewFontCache(nil, render.NewDirSource(nil, dir))
	r := render.New(cache, render.DefaultOptions(), nil)

	req := render.Request{
		Text:       "hello world",
		FontFamily: "DejaVuSans",
		FontSize:   20,
		MaxWidth:   60,
		Foreground: render.Black,
		Background: render.White,
		Padding:    4,
	}

	l, err := r.Layout(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, l.Lines, 2)
	assert.Equal(t, "hello", l.Lines[0].Text)
	assert.Equal(t, "world", l.Lines[1].Text)

	img, err := r.Render(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 60, img.Width)
	assert.Equal(t, 2*l.LineHeight+8, img.Height)
	assert.Equal(t, 2, img.Lines)
}

func TestRender_KeepLineBreaks(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, render.DefaultOptions())
	req := baseRequest("\nfirst line\n\nthird line\n")
	req.MaxWidth = 400

	l, err := r.Layout(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, l.Lines, 1, "newlines are plain whitespace by default")

	req.KeepLineBreaks = true
	l, err = r.Layout(context.Background(), req)
	require.NoError(t, err)
	texts := make([]string, 0, len(l.Lines))
	for _, line := range l.Lines {
		texts = append(texts, line.Text)
	}
	assert.Equal(t, []string{"first line", "", "third line"}, texts)
}

func TestRender_BackgroundAndForeground(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, render.DefaultOptions())
	req := baseRequest("MMMM")
	req.Background = render.RGB{R: 10, G: 20, B: 30}
	req.Foreground = render.RGB{R: 250, G: 250, B: 250}

	img, err := r.Render(context.Background(), req)
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(img.Data))
	require.NoError(t, err)

	cr, cg, cb, _ := decoded.At(0, 0).RGBA()
	assert.Equal(t, []uint32{10, 20, 30}, []uint32{cr >> 8, cg >> 8, cb >> 8})

	var inked bool
	b := decoded.Bounds()
	for y := b.Min.Y; y < b.Max.Y && !inked; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if pr, _, _, _ := decoded.At(x, y).RGBA(); pr>>8 > 200 {
				inked = true
				break
			}
		}
	}
	assert.True(t, inked, "expected foreground pixels on the canvas")
}

func TestRender_ContextCancelled(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, render.DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	img, err := r.Render(ctx, baseRequest("never rendered"))
	assert.Nil(t, img)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestRender_Concurrent(t *testing.T) {
	t.Parallel()

	r := newRenderer(t, render.DefaultOptions())
	want, err := r.Render(context.Background(), baseRequest("shared font, separate canvases"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]byte, 16)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			img, err := r.Render(context.Background(), baseRequest("shared font, separate canvases"))
			errs[i] = err
			if img != nil {
				results[i] = img.Data
			}
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, want.Data, results[i])
	}
}
