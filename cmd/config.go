package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/grovetools/chordsync/cli"
	"github.com/grovetools/chordsync/config"
	"github.com/grovetools/chordsync/schema"
)

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the chordsync configuration",
		Long: `Shows how the final configuration is built by merging layers:
1. Global config ($CHORDSYNC_HOME/config/chordsync.yml)
2. Project config (chordsync.yml found from the working directory upwards)
3. Override files (chordsync.override.yml next to the project config)`,
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigPathCmd(), newConfigSchemaCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the merged and validated configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			redacted := *cfg
			redacted.Auth = redactAuth(cfg.Auth)
			if jsonOutput(cmd) {
				return printJSON(cmd, redacted)
			}
			data, err := yaml.Marshal(redacted)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "List the configuration files in merge order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cli.GetOptions(cmd).ConfigFile
			if path == "" {
				found, err := config.FindConfigFile(".")
				if err != nil {
					return err
				}
				path = found
			}
			files := config.LayerFiles(path)
			if jsonOutput(cmd) {
				return printJSON(cmd, files)
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of chordsync.yml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write(append(schema.Bytes(), '\n'))
			return err
		},
	}
}

func redactAuth(a config.AuthConfig) config.AuthConfig {
	if a.Token != "" {
		a.Token = "<redacted>"
	}
	if a.Cookie != "" {
		a.Cookie = "<redacted>"
	}
	return a
}
