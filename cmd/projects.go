package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/internal/engine"
	"github.com/grovetools/chordsync/internal/manager"
	"github.com/grovetools/chordsync/internal/store"
	"github.com/grovetools/chordsync/pkg/models"
)

func NewProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List, create, delete and select projects",
	}
	cmd.AddCommand(newProjectsListCmd(), newProjectsCreateCmd(), newProjectsDeleteCmd(), newProjectsSelectCmd())
	return cmd
}

func newProjectsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects with their registered datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(e *engine.Engine) error {
				m := e.Manager()
				if err := m.FetchProjectsWithDatasets(cmd.Context()); err != nil {
					return err
				}

				projects := store.ItemsOf[models.Project](e.Store(), store.Key(store.KindProjects))
				if jsonOutput(cmd) {
					return printJSON(cmd, projects)
				}

				selected, _ := m.SelectedProject()
				var rows [][]string
				for _, p := range projects {
					datasets := store.ItemsOf[models.ProjectDataset](e.Store(), store.Scoped(store.KindProjectDatasets, p.ID))
					marker := ""
					if p.ID == selected {
						marker = "*"
					}
					rows = append(rows, []string{marker, p.ID, p.Title, strconv.Itoa(len(datasets))})
				}
				printRows(cmd, []string{"", "ID", "TITLE", "DATASETS"}, rows)
				return nil
			})
		},
	}
}

func newProjectsCreateCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a project and select it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(e *engine.Engine) error {
				p, err := e.Manager().CreateProject(cmd.Context(), manager.ProjectInput{
					Title:       args[0],
					Description: description,
				})
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd, p)
				}
				printSuccess(cmd, "Created project %s (%s)", p.Title, p.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Project description")
	return cmd
}

func newProjectsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(e *engine.Engine) error {
				m := e.Manager()
				if _, err := m.FetchProjects(cmd.Context()); err != nil {
					return err
				}
				if _, err := m.Project(args[0]); err != nil {
					return err
				}
				if err := m.DeleteProject(cmd.Context(), args[0]); err != nil {
					return err
				}
				printSuccess(cmd, "Deleted project %s", args[0])
				return nil
			})
		},
	}
}

func newProjectsSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <project-id>",
		Short: "Select the project other commands default to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(e *engine.Engine) error {
				m := e.Manager()
				if _, err := m.FetchProjects(cmd.Context()); err != nil {
					return err
				}
				ok, err := m.SelectProjectIfExists(args[0])
				if err != nil {
					return err
				}
				if !ok {
					return errors.NotFound("project", args[0])
				}
				printSuccess(cmd, "Selected project %s", args[0])
				return nil
			})
		},
	}
}

// selectedOrFlag returns flagValue, or the selected project when it is empty.
func selectedOrFlag(m *manager.Manager, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	selected, err := m.SelectedProject()
	if err != nil {
		return "", err
	}
	if selected == "" {
		return "", errors.InvalidInput("no project selected; pass --project or run 'chordsync projects select'")
	}
	return selected, nil
}
