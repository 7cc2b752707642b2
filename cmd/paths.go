package cmd

import (
	"github.com/spf13/cobra"

	"github.com/grovetools/chordsync/logging"
	"github.com/grovetools/chordsync/pkg/paths"
)

// PathsOutput lists the directories chordsync reads and writes.
type PathsOutput struct {
	ConfigDir string `json:"config_dir"`
	StateDir  string `json:"state_dir"`
	CacheDir  string `json:"cache_dir"`
	LogFile   string `json:"log_file"`
}

func NewPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the directories used by chordsync",
		Long: `Print the directories used by chordsync.

CHORDSYNC_HOME places all of them under one directory. Otherwise the XDG
base directories are used:
- config_dir: global chordsync.yml
- state_dir: logs
- cache_dir: regenerable data`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := PathsOutput{
				ConfigDir: paths.ConfigDir(),
				StateDir:  paths.StateDir(),
				CacheDir:  paths.CacheDir(),
				LogFile:   logging.DefaultLogFilePath(),
			}
			if jsonOutput(cmd) {
				return printJSON(cmd, output)
			}
			printRows(cmd, []string{"NAME", "PATH"}, [][]string{
				{"config_dir", output.ConfigDir},
				{"state_dir", output.StateDir},
				{"cache_dir", output.CacheDir},
				{"log_file", output.LogFile},
			})
			return nil
		},
	}
}
