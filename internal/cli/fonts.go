package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgard/cardbot/internal/render"
)

func newFontsCmd() *cobra.Command {
	var fontDirs []string

	cmd := &cobra.Command{
		Use:   "fonts",
		Short: "List the built-in fonts and the fonts found in --font-dir",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Built-in:")
			for _, name := range render.BuiltinFamilies() {
				fmt.Fprintf(out, "  %s\n", name)
			}

			found := render.NewDirSource(loggerFrom(cmd.Context()), fontDirs...).Families()
			if len(found) == 0 {
				return nil
			}
			fmt.Fprintln(out, "Font directories:")
			for _, name := range found {
				fmt.Fprintf(out, "  %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&fontDirs, "font-dir", []string{"./fonts"}, "directories searched for font files")
	return cmd
}
