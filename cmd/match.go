package cmd

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/internal/engine"
	"github.com/grovetools/chordsync/internal/matcher"
)

type matchOutput struct {
	ServiceID  string              `json:"service_id"`
	WorkflowID string              `json:"workflow_id"`
	Name       string              `json:"name"`
	DataType   string              `json:"data_type"`
	Assignment map[string][]string `json:"assignment"`
}

func NewMatchCmd() *cobra.Command {
	var include []string
	cmd := &cobra.Command{
		Use:   "match [file...]",
		Short: "Show which ingestion workflows can consume a selection of files",
		Long: `Matches drop box files against the file inputs of every ingestion
workflow. A workflow is listed when each of its file inputs gets at least
one file and no file is left over.

Examples:
  chordsync match /cohort-a/a.vcf.gz /cohort-a/b.vcf.gz
  chordsync match --include 'cohort-a/*.vcf.gz'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(e *engine.Engine) error {
				selection, err := resolveSelection(cmd, e, args, include)
				if err != nil {
					return err
				}
				if err := e.Manager().FetchServicesWithWorkflows(cmd.Context()); err != nil {
					return err
				}

				var out []matchOutput
				for _, wf := range e.Manager().Workflows() {
					r := matcher.Match(selection, wf)
					if !r.Supported {
						continue
					}
					out = append(out, matchOutput{
						ServiceID:  wf.ServiceID,
						WorkflowID: wf.ID,
						Name:       wf.Name,
						DataType:   wf.DataType,
						Assignment: r.Assignment,
					})
				}
				if jsonOutput(cmd) {
					return printJSON(cmd, out)
				}

				var rows [][]string
				for _, o := range out {
					rows = append(rows, []string{o.ServiceID, o.WorkflowID, o.DataType, formatAssignment(o.Assignment)})
				}
				printRows(cmd, []string{"SERVICE", "WORKFLOW", "DATA TYPE", "INPUTS"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&include, "include", "i", nil, "Select drop box files by pattern instead of listing them")
	return cmd
}

// resolveSelection returns the files named in args, or the drop box files
// matching patterns. Exactly one of the two must be given.
func resolveSelection(cmd *cobra.Command, e *engine.Engine, args, patterns []string) ([]string, error) {
	switch {
	case len(args) > 0 && len(patterns) > 0:
		return nil, errors.InvalidInput("pass either files or --include patterns, not both")
	case len(args) > 0:
		return args, nil
	case len(patterns) > 0:
		files, err := selectFiles(cmd, e, patterns)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, errors.InvalidInput("no drop box files match the given patterns")
		}
		return files, nil
	default:
		return nil, errors.InvalidInput("no files selected")
	}
}

func formatAssignment(assignment map[string][]string) string {
	ids := make([]string, 0, len(assignment))
	for id := range assignment {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id+"="+strings.Join(assignment[id], ","))
	}
	return strings.Join(parts, " ")
}
