package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/internal/engine"
	"github.com/grovetools/chordsync/internal/manager"
	"github.com/grovetools/chordsync/internal/matcher"
)

func NewIngestCmd() *cobra.Command {
	var (
		serviceID  string
		datasetID  string
		workflowID string
		include    []string
		params     map[string]string
	)
	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Submit an ingestion run for drop box files",
		Long: `Assigns the selected drop box files to the workflow's file inputs and
submits the run to the workflow execution service. Non-file inputs are
passed with --param.

Examples:
  chordsync ingest --service svc-variant --dataset ds-1 --workflow vcf_gz /a.vcf.gz /b.vcf.gz
  chordsync ingest -s svc-variant -d ds-1 -w vcf_gz --include 'cohort-a/*.vcf.gz' --param assembly_id=GRCh38`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(e *engine.Engine) error {
				m := e.Manager()
				selection, err := resolveSelection(cmd, e, args, include)
				if err != nil {
					return err
				}
				if err := m.FetchServicesWithWorkflows(cmd.Context()); err != nil {
					return err
				}
				wf, err := m.Workflow(serviceID, workflowID)
				if err != nil {
					return err
				}

				result := matcher.Match(selection, wf)
				if !result.Supported {
					return errors.InvalidInput(fmt.Sprintf("workflow '%s' cannot ingest the selection: %s", wf.ID, result.Reason))
				}
				inputs := result.Inputs()
				for id, v := range params {
					inputs[strings.TrimPrefix(id, wf.ID+".")] = v
				}

				runID, err := m.SubmitIngestionRun(cmd.Context(), manager.IngestionInput{
					ServiceID: serviceID,
					DatasetID: datasetID,
					Workflow:  wf,
					Inputs:    inputs,
				})
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd, map[string]string{"run_id": runID})
				}
				printSuccess(cmd, "Ingestion with run ID %q submitted!", runID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&serviceID, "service", "s", "", "Data service ID")
	cmd.Flags().StringVarP(&datasetID, "dataset", "d", "", "Target dataset ID")
	cmd.Flags().StringVarP(&workflowID, "workflow", "w", "", "Ingestion workflow ID")
	cmd.Flags().StringSliceVarP(&include, "include", "i", nil, "Select drop box files by pattern")
	cmd.Flags().StringToStringVar(&params, "param", nil, "Non-file workflow input, as id=value")
	_ = cmd.MarkFlagRequired("service")
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("workflow")
	return cmd
}
