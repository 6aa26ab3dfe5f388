package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pushchain/credential-anchor/anchorClient/canonical"
	"github.com/pushchain/credential-anchor/anchorClient/config"
	"github.com/pushchain/credential-anchor/anchorClient/verification"
)

// Set with -ldflags "-X main.Version=... -X main.Commit=...".
var (
	Version = "dev"
	Commit  = "unknown"
)

const flagRecord = "record"

func InitRootCmd(rootCmd *cobra.Command, v *viper.Viper) {
	rootCmd.AddCommand(
		initCmd(v),
		versionCmd(),
		hashCmd(v),
		deriveIDCmd(v),
		anchorCmd(v),
		verifyCmd(v),
		reverifyCmd(v),
		requestCmd(v),
		approveCmd(v),
		rejectCmd(v),
		revokeCmd(v),
		expireCmd(v),
		issuerCmd(v),
	)
}

func initCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config to <home>/config/anchord_config.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDefaultConfig()
			if err != nil {
				return err
			}
			home := v.GetString(flagHome)
			cfg.NodeHome = home
			if err := config.Save(cfg, home); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config written to %s\n", home)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print anchord version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Name:       %s\n", "anchord")
			fmt.Fprintf(cmd.OutOrStdout(), "Version:    %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Commit:     %s\n", Commit)
		},
	}
}

type hashOutput struct {
	RecordID    string `json:"record_id" yaml:"record_id"`
	ContentHash string `json:"content_hash" yaml:"content_hash"`
	AnchorID    string `json:"anchor_id" yaml:"anchor_id"`
}

func hashCmd(v *viper.Viper) *cobra.Command {
	var (
		recordPath string
		withStatus bool
	)

	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Print the content hash and anchor id of a record",
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := readRecord(recordPath)
			if err != nil {
				return err
			}
			var opts []verification.ProjectionOption
			if withStatus {
				opts = append(opts, verification.WithVerificationState())
			}
			hash, err := rec.ContentHash(opts...)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), hashOutput{
				RecordID:    rec.ID,
				ContentHash: hash,
				AnchorID:    rec.AnchorID().Hex(),
			}, v.GetString(flagOutput))
		},
	}

	cmd.Flags().StringVar(&recordPath, flagRecord, "", "Path to the record JSON file")
	cmd.Flags().BoolVar(&withStatus, "with-status", false, "Include status and verified_at in the hash")
	return cmd
}

type deriveIDOutput struct {
	AnchorID  string `json:"anchor_id" yaml:"anchor_id"`
	Timestamp int64  `json:"timestamp" yaml:"timestamp"`
}

func deriveIDCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "derive-id [issuer] [subject] [title] [timestamp]",
		Short: "Derive the anchor id of (issuer, subject, title, timestamp)",
		Long: "Timestamp accepts Unix seconds, RFC3339 or YYYY-MM-DD. " +
			"The same four inputs always give the same id.",
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := canonical.NormalizeTimestamp(args[3])
			if err != nil {
				return err
			}
			id := canonical.DeriveID(args[0], args[1], args[2], ts)
			return printOutput(cmd.OutOrStdout(), deriveIDOutput{AnchorID: id.Hex(), Timestamp: ts}, v.GetString(flagOutput))
		},
	}
}
