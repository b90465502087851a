// Package cmd is the mongo-perf command line.
package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/TreeWu/mongo-perf/config"
)

const configFlag = "config"

func RootCmd() *cobra.Command {
	v := config.New()
	cmd := &cobra.Command{
		Use:          "mongo-perf",
		SilenceUsage: true,
		Short:        "Multi-threaded micro-benchmarks for MongoDB",
		Long: `Multi-threaded micro-benchmarks for MongoDB.

Settings come from flags, MONGOPERF_* environment variables and an optional
YAML file (--config, or ./mongo-perf.yaml when present), in that order of
precedence. Example:

connection_string: mongodb://localhost:27017
iterations: 10000
levels: [1, 2, 4, 8]
store:
  label: nightly
  mongo_uri: mongodb://results:27017
`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString(configFlag)
			if err := config.ReadFile(v, path); err != nil {
				return err
			}
			return configureLogging(cmd, v)
		},
	}
	cmd.PersistentFlags().String(configFlag, "", "YAML config file")
	cmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	if err := v.BindPFlag("log_level", cmd.PersistentFlags().Lookup("log-level")); err != nil {
		panic(err)
	}

	cmd.AddCommand(
		runCmd(v),
		reportCmd(),
		regressCmd(),
		serveCmd(v),
	)
	return cmd
}

// Execute runs the command line and exits 1 on any error.
func Execute() {
	if err := RootCmd().Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

// configureLogging keeps stdout for results.
func configureLogging(cmd *cobra.Command, v *viper.Viper) error {
	level, err := log.ParseLevel(v.GetString("log_level"))
	if err != nil {
		return err
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(cmd.ErrOrStderr())
	log.SetLevel(level)
	return nil
}

// bindFlags binds flags to config keys. Subcommands bind when they run
// because several of them share a key.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}
