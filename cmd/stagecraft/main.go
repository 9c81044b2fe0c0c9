// Command stagecraft runs and validates ETL pipeline definitions.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vk/stagecraft/internal/app"
	"github.com/vk/stagecraft/modules"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("STAGECRAFT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "stagecraft",
		Short:         "Stage-ordered ETL pipeline engine",
		Long:          "Stagecraft executes ETL pipelines defined in YAML: extract, stage, transform and load jobs run in declared stage order with dependency tracking.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringP("pipeline", "p", "", "path to the pipeline YAML file")
	flags.String("out-dir", "output", "directory for exported files and reports")
	flags.String("base-dir", ".", "directory source paths resolve against")
	flags.String("env-file", "", "optional .env file loaded before variable resolution")
	flags.StringArray("set", nil, "override a pipeline value, dotted key=value (repeatable)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")
	cobra.CheckErr(v.BindPFlags(flags))

	root.AddCommand(newRunCmd(v), newValidateCmd(v))
	return root
}

func appConfig(v *viper.Viper) *app.Config {
	return &app.Config{
		PipelinePath: v.GetString("pipeline"),
		OutDir:       v.GetString("out-dir"),
		BaseDir:      v.GetString("base-dir"),
		EnvFile:      v.GetString("env-file"),
		Overrides:    v.GetStringSlice("set"),
		LogLevel:     v.GetString("log-level"),
		LogFormat:    v.GetString("log-format"),
	}
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute a pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app.New(cmd.OutOrStdout(), appConfig(v), modules.Core()...)
			result, err := a.Run(context.Background())
			if err != nil {
				return err
			}
			if result.Failed > 0 {
				a.Logger().Warn("run finished with failed jobs", "failed", result.Failed)
			}
			return nil
		},
	}
}

func newValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a pipeline definition without running it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app.New(cmd.OutOrStdout(), appConfig(v), modules.Core()...)
			return a.Validate(context.Background())
		},
	}
}
