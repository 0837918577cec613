package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/litelens/internal/config"
	"github.com/MeKo-Tech/litelens/internal/translate"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and create configuration files",
	// Runs without validation so a broken file can still be shown.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configLoader = config.NewLoader()
		var err error
		globalConfig, err = configLoader.LoadWithFileWithoutValidation(cfgFile)
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}
		setupLogging(cmd.ErrOrStderr(), globalConfig)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		out := cmd.OutOrStdout()
		if used := configLoader.GetConfigFileUsed(); used != "" {
			_, _ = fmt.Fprintf(out, "# loaded from %s\n", used)
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			_, _ = fmt.Fprintf(out, "# invalid: %v\n", err)
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write a configuration file holding every default",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := config.ConfigFileName + ".yaml"
		if len(args) == 1 {
			filename = args[0]
		}
		if err := config.GenerateDefaultConfigFile(filename); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", filename)
		return nil
	},
}

var configPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "List the configuration search paths",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, p := range config.GetConfigSearchPaths() {
			_, _ = fmt.Fprintln(out, p)
		}
		_, _ = fmt.Fprintf(out, "Environment prefix: %s_\n", config.EnvPrefix)
	},
}

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List the translation target languages",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, tag := range translate.Supported {
			code := tag.String()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-4s %s\n", code, translate.DisplayName(code))
		}
	},
}

func init() {
	rootCmd.AddCommand(configCmd, languagesCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd, configPathsCmd)
}
