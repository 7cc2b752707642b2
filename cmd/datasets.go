package cmd

import (
	"github.com/spf13/cobra"

	"github.com/grovetools/chordsync/internal/engine"
	"github.com/grovetools/chordsync/internal/manager"
)

func NewDatasetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "Manage project datasets",
	}
	cmd.AddCommand(newDatasetsAddCmd())
	return cmd
}

func newDatasetsAddCmd() *cobra.Command {
	var in manager.DatasetInput
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a dataset on a data service and register it with a project",
		Long: `Creates the dataset on the data service, then registers it with the
project. If registration fails the dataset is deleted from the service again.

Examples:
  chordsync datasets add --service svc-variant --data-type variant "Cohort A"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(e *engine.Engine) error {
				m := e.Manager()
				projectID, err := selectedOrFlag(m, in.ProjectID)
				if err != nil {
					return err
				}
				if _, err := m.FetchServices(cmd.Context()); err != nil {
					return err
				}

				in.ProjectID = projectID
				in.Name = args[0]
				pd, err := m.AddProjectDataset(cmd.Context(), in)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd, pd)
				}
				printSuccess(cmd, "Added dataset %s to project %s", pd.DatasetID, projectID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&in.ProjectID, "project", "p", "", "Project ID (default: selected project)")
	cmd.Flags().StringVarP(&in.ServiceID, "service", "s", "", "Data service ID")
	cmd.Flags().StringVarP(&in.DataTypeID, "data-type", "t", "", "Data type of the dataset")
	_ = cmd.MarkFlagRequired("service")
	_ = cmd.MarkFlagRequired("data-type")
	return cmd
}
