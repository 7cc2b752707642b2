package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovetools/chordsync/internal/dropbox"
	"github.com/grovetools/chordsync/internal/engine"
)

func NewDropBoxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dropbox",
		Aliases: []string{"drop-box"},
		Short:   "Browse the drop box staging area",
	}
	cmd.AddCommand(newDropBoxTreeCmd(), newDropBoxViewCmd())
	return cmd
}

func newDropBoxTreeCmd() *cobra.Command {
	var include []string
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "List drop box files",
		Long: `Lists the files in the drop box, depth-first with siblings sorted by name.
--include takes .dockerignore-style patterns relative to the drop box root,
including "**" and "!" exclusions.

Examples:
  chordsync dropbox tree --include 'cohort-a/**/*.vcf.gz' --include '!**/test-*'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(e *engine.Engine) error {
				files, err := selectFiles(cmd, e, include)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd, files)
				}
				for _, f := range files {
					fmt.Fprintln(cmd.OutOrStdout(), f)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&include, "include", "i", nil, "File patterns to select")
	return cmd
}

func newDropBoxViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view <path>",
		Short: "Print a drop box file (.json, .md, .txt, README, CHANGELOG)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(e *engine.Engine) error {
				contents, err := e.Viewer().View(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), contents)
				return nil
			})
		},
	}
}

// selectFiles fetches the drop box tree and returns the files matching patterns.
func selectFiles(cmd *cobra.Command, e *engine.Engine, patterns []string) ([]string, error) {
	tree, err := e.Manager().FetchDropBoxTree(cmd.Context())
	if err != nil {
		return nil, err
	}
	return dropbox.Select(tree, patterns)
}
