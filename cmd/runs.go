package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovetools/chordsync/cli"
	"github.com/grovetools/chordsync/internal/engine"
	"github.com/grovetools/chordsync/pkg/models"
)

func NewRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect workflow runs",
	}
	cmd.AddCommand(newRunsListCmd(), newRunsShowCmd())
	return cmd
}

func newRunsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflow runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(e *engine.Engine) error {
				runs, err := e.Manager().FetchRuns(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd, runs)
				}
				var rows [][]string
				for _, r := range runs {
					rows = append(rows, []string{r.RunID, runState(r.State)})
				}
				printRows(cmd, []string{"RUN ID", "STATE"}, rows)
				return nil
			})
		},
	}
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the details and logs of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(e *engine.Engine) error {
				d, err := e.Manager().FetchRunDetails(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd, d)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s %s\n", cli.TitleStyle.Render(d.RunID), runState(d.State))
				if wf, ok := d.Request.Tags["workflow_id"]; ok {
					fmt.Fprintf(out, "workflow:  %v\n", wf)
				}
				if ds, ok := d.Request.Tags["dataset_id"]; ok {
					fmt.Fprintf(out, "dataset:   %v\n", ds)
				}
				if d.RunLog.StartTime != "" {
					fmt.Fprintf(out, "started:   %s\n", d.RunLog.StartTime)
				}
				if d.RunLog.EndTime != "" {
					fmt.Fprintf(out, "ended:     %s\n", d.RunLog.EndTime)
				}
				if d.RunLog.ExitCode != nil {
					fmt.Fprintf(out, "exit code: %d\n", *d.RunLog.ExitCode)
				}
				if d.RunLog.Stdout != "" {
					fmt.Fprintf(out, "\n%s\n%s\n", cli.SectionStyle.Render("STDOUT"), d.RunLog.Stdout)
				}
				if d.RunLog.Stderr != "" {
					fmt.Fprintf(out, "\n%s\n%s\n", cli.SectionStyle.Render("STDERR"), d.RunLog.Stderr)
				}
				return nil
			})
		},
	}
}

func runState(state string) string {
	switch {
	case state == "COMPLETE":
		return cli.SuccessStyle.Render(state)
	case models.IsRunDone(state):
		return cli.ErrorStyle.Render(state)
	case state == "":
		return cli.MutedStyle.Render("UNKNOWN")
	default:
		return state
	}
}
