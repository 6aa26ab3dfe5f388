package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pushchain/credential-anchor/anchorClient/constant"
)

const (
	flagHome            = "home"
	flagLogLevel        = "log-level"
	flagLogFormat       = "log-format"
	flagOutput          = "output"
	flagMetricsTextfile = "metrics-textfile"

	envPrefix = "ANCHORD"
)

func NewRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "anchord",
		Short:         "Credential anchoring and verification engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String(flagHome, constant.DefaultNodeHome, "Node home directory")
	flags.Int(flagLogLevel, 1, "Log level (0 = debug ... 5 = panic)")
	flags.String(flagLogFormat, "console", "Log format (console|json)")
	flags.StringP(flagOutput, "o", OutputFormatJSON, "Output format (json|yaml)")
	flags.String(flagMetricsTextfile, "", "Write Prometheus metrics to this file on exit")

	// Flags win over ANCHORD_* environment variables, which win over the config file.
	_ = v.BindPFlags(flags)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	InitRootCmd(rootCmd, v)

	return rootCmd
}
