package cli

import (
	"github.com/spf13/cobra"

	"github.com/grovetools/chordsync/config"
)

// CommandOptions holds common options for chordsync commands
type CommandOptions struct {
	ConfigFile string
	Verbose    bool
	JSONOutput bool
}

// NewStandardCommand creates a new command with the standard persistent flags
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to chordsync.yml or chordsync.toml")

	return cmd
}

// GetOptions extracts common options from a command
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return CommandOptions{
		ConfigFile: configFile,
		Verbose:    verbose,
		JSONOutput: jsonOutput,
	}
}

// LoadConfig loads the configuration named by --config, or the one found
// from the working directory, and applies its logging section.
func LoadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	opts := GetOptions(cmd)

	path := opts.ConfigFile
	if path == "" {
		found, err := config.FindConfigFile(".")
		if err != nil {
			return nil, "", err
		}
		path = found
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, path, err
	}
	if err := ConfigureLogging(cfg, opts.Verbose); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}
