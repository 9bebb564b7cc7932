package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/edgard/cardbot/internal/render"
)

type renderFlags struct {
	font           string
	size           int
	width          int
	padding        int
	fg             string
	bg             string
	out            string
	fontDirs       []string
	systemFonts    bool
	keepLineBreaks bool
}

func newRenderCmd() *cobra.Command {
	f := renderFlags{}

	cmd := &cobra.Command{
		Use:   "render [text]",
		Short: "Render text to a PNG file",
		Long: `Render text to a PNG file.

The text is taken from the arguments, joined with spaces. With no
arguments, or a single "-", it is read from standard input. Use
--out - to write the PNG to standard output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args, f)
		},
	}

	cmd.Flags().StringVar(&f.font, "font", render.DefaultFamily, "font family")
	cmd.Flags().IntVar(&f.size, "size", 28, "font size in pixels")
	cmd.Flags().IntVar(&f.width, "width", 800, "image width in pixels")
	cmd.Flags().IntVar(&f.padding, "padding", 24, "padding in pixels")
	cmd.Flags().StringVar(&f.fg, "fg", "#ffffff", "text colour (#rgb or #rrggbb)")
	cmd.Flags().StringVar(&f.bg, "bg", "#000000", "background colour (#rgb or #rrggbb)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "render.png", "output file, - for stdout")
	cmd.Flags().StringSliceVar(&f.fontDirs, "font-dir", []string{"./fonts"}, "directories searched for font files")
	cmd.Flags().BoolVar(&f.systemFonts, "system-fonts", true, "also search the platform font directories")
	cmd.Flags().BoolVar(&f.keepLineBreaks, "keep-line-breaks", true, "start a new line at every newline")

	return cmd
}

func runRender(cmd *cobra.Command, args []string, f renderFlags) error {
	log := loggerFrom(cmd.Context())

	text, err := inputText(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	fg, err := render.ParseHex(f.fg)
	if err != nil {
		return fmt.Errorf("--fg: %w", err)
	}
	bg, err := render.ParseHex(f.bg)
	if err != nil {
		return fmt.Errorf("--bg: %w", err)
	}

	fonts := render.NewFontCache(log, fontSources(f.fontDirs, f.systemFonts)...)
	r := render.New(fonts, render.DefaultOptions(), log)

	img, err := r.Render(cmd.Context(), render.Request{
		Text:           text,
		FontFamily:     f.font,
		FontSize:       f.size,
		MaxWidth:       f.width,
		Foreground:     fg,
		Background:     bg,
		Padding:        f.padding,
		KeepLineBreaks: f.keepLineBreaks,
	})
	if err != nil {
		return err
	}

	if f.out == "-" {
		_, err := cmd.OutOrStdout().Write(img.Data)
		return err
	}
	if err := os.WriteFile(f.out, img.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", f.out, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%dx%d, %d lines, %s)\n",
		f.out, img.Width, img.Height, img.Lines, humanize.Bytes(uint64(len(img.Data))))
	return nil
}

func inputText(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func fontSources(dirs []string, system bool) []render.Source {
	sources := []render.Source{render.BuiltinSource{}, render.NewDirSource(nil, dirs...)}
	if system {
		sources = append(sources, render.SystemSource{})
	}
	return sources
}
