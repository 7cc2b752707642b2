// Package cmd implements the chordsync subcommands.
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovetools/chordsync/cli"
	"github.com/grovetools/chordsync/internal/engine"
	"github.com/grovetools/chordsync/internal/store"
)

// newEngine builds an engine from the command's configuration. The caller
// must call Shutdown.
func newEngine(cmd *cobra.Command, opts ...engine.Option) (*engine.Engine, error) {
	cfg, _, err := cli.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return engine.New(cfg, opts...)
}

// withEngine runs fn against a fresh engine and shuts it down afterwards.
func withEngine(cmd *cobra.Command, fn func(e *engine.Engine) error) error {
	e, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Shutdown()
	return fn(e)
}

func jsonOutput(cmd *cobra.Command) bool {
	return cli.GetOptions(cmd).JSONOutput
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRows(cmd *cobra.Command, headers []string, rows [][]string) {
	cli.PrintTable(cmd.OutOrStdout(), headers, rows)
}

func printSuccess(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintln(cmd.OutOrStdout(), cli.SuccessStyle.Render(fmt.Sprintf(format, args...)))
}

// noticeLine renders a store notice for terminal output.
func noticeLine(n store.Notice) string {
	ts := n.At.Format("15:04:05")
	switch n.Level {
	case store.NoticeError:
		return fmt.Sprintf("%s %s", cli.MutedStyle.Render(ts), cli.ErrorStyle.Render(n.Message))
	case store.NoticeSuccess:
		return fmt.Sprintf("%s %s", cli.MutedStyle.Render(ts), cli.SuccessStyle.Render(n.Message))
	default:
		return fmt.Sprintf("%s %s", cli.MutedStyle.Render(ts), n.Message)
	}
}
