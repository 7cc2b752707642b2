package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/internal/engine"
	"github.com/grovetools/chordsync/internal/manager"
)

func NewSearchCmd() *cobra.Command {
	var (
		q          manager.SearchQuery
		conditions []string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run a federated search against a data service",
		Long: `Sends a search for one data type through the federation service and
prints the aggregated results. Each --condition is a JSON query condition.

Examples:
  chordsync search -s svc-variant -t variant --condition '["#eq", ["#resolve", "chromosome"], "1"]'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, c := range conditions {
				if !json.Valid([]byte(c)) {
					return errors.InvalidInput(fmt.Sprintf("condition is not valid JSON: %s", c))
				}
				q.Conditions = append(q.Conditions, json.RawMessage(c))
			}

			return withEngine(cmd, func(e *engine.Engine) error {
				if _, err := e.Manager().FetchServices(cmd.Context()); err != nil {
					return err
				}
				result, err := e.Manager().PerformSearch(cmd.Context(), q)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd, result)
				}

				var pretty bytes.Buffer
				if err := json.Indent(&pretty, result.Results, "", "  "); err != nil {
					pretty.Reset()
					pretty.Write(result.Results)
				}
				fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&q.ServiceID, "service", "s", "", "Data service ID")
	cmd.Flags().StringVarP(&q.DataTypeID, "data-type", "t", "", "Data type to search")
	cmd.Flags().StringArrayVar(&conditions, "condition", nil, "Query condition as JSON (repeatable)")
	_ = cmd.MarkFlagRequired("service")
	_ = cmd.MarkFlagRequired("data-type")
	return cmd
}
