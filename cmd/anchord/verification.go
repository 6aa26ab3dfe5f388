package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pushchain/credential-anchor/anchorClient/canonical"
	"github.com/pushchain/credential-anchor/anchorClient/verification"
)

type transitionOutput struct {
	RecordID string                `json:"record_id" yaml:"record_id"`
	Status   verification.Status   `json:"status" yaml:"status"`
	Attempt  *verification.Attempt `json:"attempt,omitempty" yaml:"attempt,omitempty"`
	Warning  string                `json:"warning,omitempty" yaml:"warning,omitempty"`
	TxHash   string                `json:"tx_hash,omitempty" yaml:"tx_hash,omitempty"`
}

// transition loads a record, applies a state machine step and writes the
// record back.
func transition(v *viper.Viper, recordPath *string, step func(cmd *cobra.Command, rt *runtime, rec *verification.Record) (*verification.Outcome, error)) func(*cobra.Command, []string) error {
	return withRuntime(v, func(cmd *cobra.Command, args []string, rt *runtime) error {
		rec, err := readRecord(*recordPath)
		if err != nil {
			return err
		}
		outcome, err := step(cmd, rt, rec)
		if err != nil {
			return err
		}
		if err := writeRecord(*recordPath, rec); err != nil {
			return err
		}
		return rt.print(transitionOutput{
			RecordID: rec.ID,
			Status:   outcome.Status,
			Attempt:  outcome.Attempt,
			Warning:  outcome.Warning,
		})
	})
}

func requestCmd(v *viper.Viper) *cobra.Command {
	var recordPath, actor string

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request verification of a record",
		RunE: transition(v, &recordPath, func(cmd *cobra.Command, rt *runtime, rec *verification.Record) (*verification.Outcome, error) {
			return rt.machine.RequestVerification(cmd.Context(), rec, actor)
		}),
	}

	cmd.Flags().StringVar(&recordPath, flagRecord, "", "Path to the record JSON file")
	cmd.Flags().StringVar(&actor, "actor", "", "Who requests verification")
	return cmd
}

func approveCmd(v *viper.Viper) *cobra.Command {
	var recordPath, verifier, note string

	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve a pending verification",
		RunE: transition(v, &recordPath, func(cmd *cobra.Command, rt *runtime, rec *verification.Record) (*verification.Outcome, error) {
			var data map[string]interface{}
			if note != "" {
				data = map[string]interface{}{"note": note}
			}
			return rt.machine.Approve(cmd.Context(), rec, verifier, data)
		}),
	}

	cmd.Flags().StringVar(&recordPath, flagRecord, "", "Path to the record JSON file")
	cmd.Flags().StringVar(&verifier, "verifier", "", "Who approves the record")
	cmd.Flags().StringVar(&note, "note", "", "Free-form note stored with the attempt")
	return cmd
}

func rejectCmd(v *viper.Viper) *cobra.Command {
	var recordPath, verifier, reason string

	cmd := &cobra.Command{
		Use:   "reject",
		Short: "Reject a pending verification",
		RunE: transition(v, &recordPath, func(cmd *cobra.Command, rt *runtime, rec *verification.Record) (*verification.Outcome, error) {
			return rt.machine.Reject(cmd.Context(), rec, verifier, reason)
		}),
	}

	cmd.Flags().StringVar(&recordPath, flagRecord, "", "Path to the record JSON file")
	cmd.Flags().StringVar(&verifier, "verifier", "", "Who rejects the record")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the record is rejected")
	return cmd
}

func expireCmd(v *viper.Viper) *cobra.Command {
	var recordPath, at string

	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Expire a verified record whose expiry date has passed",
		RunE: transition(v, &recordPath, func(cmd *cobra.Command, rt *runtime, rec *verification.Record) (*verification.Outcome, error) {
			now := time.Now().UTC()
			if at != "" {
				ts, err := canonical.NormalizeTimestamp(at)
				if err != nil {
					return nil, err
				}
				now = time.Unix(ts, 0).UTC()
			}
			return rt.machine.Expire(cmd.Context(), rec, now)
		}),
	}

	cmd.Flags().StringVar(&recordPath, flagRecord, "", "Path to the record JSON file")
	cmd.Flags().StringVar(&at, "at", "", "Evaluate expiry at this time instead of now")
	return cmd
}
