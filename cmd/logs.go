package cmd

import (
	"fmt"
	"io"
	stdlog "log"
	"os"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"

	"github.com/grovetools/chordsync/cli"
	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/logging"
)

func NewLogsCmd() *cobra.Command {
	var (
		follow bool
		lines  int
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the chordsync log file",
		Long: `Prints the log file written by the file sink. The path follows the
logging.file.path setting of the loaded configuration.

Examples:
  chordsync logs --tail 50
  chordsync logs -f`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := cli.LoadConfig(cmd); err != nil && !errors.Is(err, errors.ErrCodeConfigNotFound) {
				return err
			}
			path := logging.LogFilePath()
			if path == "" {
				return errors.InvalidInput("the log file sink is disabled")
			}
			if _, err := os.Stat(path); err != nil && !follow {
				return errors.NotFound("log file", path)
			}
			return printLogFile(cmd, path, lines, follow)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are written")
	cmd.Flags().IntVarP(&lines, "tail", "n", -1, "Number of lines to show from the end of the log (default: all)")
	return cmd
}

// printLogFile prints the last n lines of path, or all of it when n is
// negative, then keeps following it when follow is set.
func printLogFile(cmd *cobra.Command, path string, n int, follow bool) error {
	out := cmd.OutOrStdout()
	quiet := stdlog.New(io.Discard, "", 0)

	if _, err := os.Stat(path); err == nil {
		t, err := tail.TailFile(path, tail.Config{
			Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekStart},
			Logger:   quiet,
		})
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		var backlog []string
		for line := range t.Lines {
			if line.Err != nil {
				continue
			}
			backlog = append(backlog, line.Text)
			if n >= 0 && len(backlog) > n {
				backlog = backlog[1:]
			}
		}
		for _, line := range backlog {
			fmt.Fprintln(out, line)
		}
	}
	if !follow {
		return nil
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    quiet,
	})
	if err != nil {
		return fmt.Errorf("failed to follow log file: %w", err)
	}
	defer t.Cleanup()

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return t.Stop()
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err == nil {
				fmt.Fprintln(out, line.Text)
			}
		}
	}
}
