// Package cli implements cardrender, a command line front end to the text
// renderer used by the bot.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/edgard/cardbot/internal/logger"
)

var version = "dev"

// SetVersion sets the version printed by --version.
func SetVersion(v string) { version = v }

type loggerKey struct{}

func loggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewRootCommand builds the command tree. Logs go to stderr.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "cardrender",
		Short:         "Render text to PNG images",
		Long:          "cardrender wraps text to a fixed width and draws it onto a PNG, using the same renderer as the bot.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := "warn"
			if verbose {
				level = "debug"
			}
			ctx := context.WithValue(cmd.Context(), loggerKey{}, logger.New(stderr, level, false))
			cmd.SetContext(ctx)
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newRenderCmd())
	root.AddCommand(newFontsCmd())
	return root
}

// Execute runs the CLI with the process standard streams.
func Execute(ctx context.Context) error {
	return NewRootCommand(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx)
}
