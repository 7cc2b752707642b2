package cmd

import (
	"github.com/spf13/cobra"

	"github.com/grovetools/chordsync/cli"
	"github.com/grovetools/chordsync/pkg/profiling"
)

// NewRootCmd assembles the chordsync command tree.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand(
		"chordsync",
		"Operator client for a federated genomic data node",
	)
	root.Long = `chordsync keeps a live view of a data node: projects and their datasets,
data services and their ingestion workflows, workflow runs, drop box files
and notifications. It submits ingestion runs and follows push events while
watching.

Examples:
  # Follow the node, printing notices and push events
  chordsync watch

  # Which workflows can ingest these drop box files?
  chordsync match --include 'vcfs/*.vcf.gz'

  # Submit an ingestion run
  chordsync ingest --service svc-variant --dataset ds-1 --workflow vcf_gz /vcfs/a.vcf.gz`

	profiler := profiling.NewCobraProfiler()
	profiler.AddFlags(root)
	root.PersistentPreRunE = profiler.PreRun
	root.PersistentPostRun = profiler.PostRun

	root.AddCommand(
		NewWatchCmd(),
		NewProjectsCmd(),
		NewDatasetsCmd(),
		NewDropBoxCmd(),
		NewMatchCmd(),
		NewIngestCmd(),
		NewRunsCmd(),
		NewNotificationsCmd(),
		NewSearchCmd(),
		NewLogsCmd(),
		NewConfigCmd(),
		NewPathsCmd(),
		cli.NewVersionCommand("chordsync"),
	)

	cli.ApplyStyledHelpRecursive(root)
	return root
}
