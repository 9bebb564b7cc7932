package render

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/font"
)

// cancelCheckInterval is how many tokens are laid out between context checks.
const cancelCheckInterval = 64

// Line is one laid-out line of text.
type Line struct {
	Text   string
	Width  int
	Height int
}

// Layout is the result of wrapping a request's text. It belongs to a single
// render call.
type Layout struct {
	Lines      []Line
	LineHeight int
	Ascent     int

	// Canvas size in pixels.
	Width  int
	Height int
}

// lineMetrics returns the baseline offset and the line height: ascent plus
// descent plus a gap proportional to their sum.
func lineMetrics(face font.Face, gapRatio float64) (ascent, height int) {
	m := face.Metrics()
	ascent = m.Ascent.Ceil()
	base := ascent + m.Descent.Ceil()
	return ascent, base + int(math.Ceil(float64(base)*gapRatio))
}

func measure(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

// layoutText greedily packs whitespace-separated tokens into lines no wider
// than MaxWidth-2*Padding. A token that does not fit on an empty line is
// placed alone on its own line without being split.
func layoutText(ctx context.Context, face font.Face, req Request, opts Options) (*Layout, error) {
	ascent, lineHeight := lineMetrics(face, opts.LineGapRatio)
	available := req.MaxWidth - 2*req.Padding

	first, _ := utf8.DecodeRuneInString(strings.TrimSpace(req.Text))
	glyph := 0
	if adv, ok := face.GlyphAdvance(first); ok {
		glyph = adv.Ceil()
	}
	if req.MaxWidth <= 2*req.Padding+glyph {
		return nil, invalid("MaxWidth", "must exceed twice the padding plus one glyph (%d px)", 2*req.Padding+glyph)
	}

	paragraphs := []string{req.Text}
	if req.KeepLineBreaks {
		paragraphs = strings.Split(strings.ReplaceAll(req.Text, "\r\n", "\n"), "\n")
	}

	l := &Layout{LineHeight: lineHeight, Ascent: ascent, Width: req.MaxWidth}
	emit := func(text string, width int) {
		l.Lines = append(l.Lines, Line{Text: text, Width: width, Height: lineHeight})
	}

	seen := 0
	for _, para := range paragraphs {
		tokens := strings.Fields(para)
		if len(tokens) == 0 {
			emit("", 0)
			continue
		}

		var cur string
		var curWidth int
		for _, tok := range tokens {
			if seen%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			seen++

			w := measure(face, tok)
			if w > req.MaxWidth {
				return nil, invalid("Text", "contains a word wider than the canvas (%d px > %d px)", w, req.MaxWidth)
			}
			if cur == "" {
				cur, curWidth = tok, w
				continue
			}
			joined := cur + " " + tok
			if jw := measure(face, joined); jw <= available {
				cur, curWidth = joined, jw
				continue
			}
			emit(cur, curWidth)
			cur, curWidth = tok, w
		}
		emit(cur, curWidth)
	}

	// Leading and trailing blank paragraphs only add empty space.
	for len(l.Lines) > 1 && l.Lines[len(l.Lines)-1].Text == "" {
		l.Lines = l.Lines[:len(l.Lines)-1]
	}
	for len(l.Lines) > 1 && l.Lines[0].Text == "" {
		l.Lines = l.Lines[1:]
	}

	limit := canvasLimit(opts.MaxCanvasHeight)
	if lineHeight <= 0 || len(l.Lines) > (limit-2*req.Padding)/lineHeight {
		return nil, invalid("Text", "needs %d lines of %d px, height limit is %d px", len(l.Lines), lineHeight, limit)
	}
	l.Height = 2*req.Padding + len(l.Lines)*lineHeight
	return l, nil
}
