// Package cli implements the replan command line interface.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/replanmesh/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type globalFlags struct {
	configPath string
	provider   string
	logLevel   string
}

// Execute runs the CLI application.
func Execute(version string) error {
	root := NewRootCmd(version, os.Stdin, os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

// NewRootCmd builds the command tree bound to the given streams.
func NewRootCmd(version string, in io.Reader, out, errOut io.Writer) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "replan",
		Short:         "Plan-execute-observe agent with human interventions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "replan.yaml", "Path to the YAML config file")
	root.PersistentFlags().StringVar(&flags.provider, "provider", "", "Planner provider override (anthropic, openai, mock)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	root.AddCommand(newRunCmd(flags))
	root.AddCommand(newConfigCmd(flags))

	return root
}

// loadConfig resolves the effective configuration: file, environment, flags.
func (f *globalFlags) loadConfig() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	if f.provider != "" {
		cfg.Planner.Provider = f.provider
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	return cfg, cfg.Validate()
}

func newConfigCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			cfg.Planner.APIKey = redact(cfg.Planner.APIKey)

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}
