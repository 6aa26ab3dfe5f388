package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pushchain/credential-anchor/anchorClient/common"
	"github.com/pushchain/credential-anchor/anchorClient/db"
	anchorerrors "github.com/pushchain/credential-anchor/anchorClient/errors"
)

type anchorOutput struct {
	RecordID        string                `json:"record_id" yaml:"record_id"`
	AnchorID        string                `json:"anchor_id" yaml:"anchor_id"`
	ContentHash     string                `json:"content_hash" yaml:"content_hash"`
	ContentID       string                `json:"content_id,omitempty" yaml:"content_id,omitempty"`
	GatewayURL      string                `json:"gateway_url,omitempty" yaml:"gateway_url,omitempty"`
	Degraded        bool                  `json:"degraded" yaml:"degraded"`
	MirrorError     string                `json:"mirror_error,omitempty" yaml:"mirror_error,omitempty"`
	JournalError    string                `json:"journal_error,omitempty" yaml:"journal_error,omitempty"`
	AlreadyAnchored bool                  `json:"already_anchored" yaml:"already_anchored"`
	Attempts        int                   `json:"attempts" yaml:"attempts"`
	Receipt         *common.AnchorReceipt `json:"receipt,omitempty" yaml:"receipt,omitempty"`
	Error           *errorOutput          `json:"error,omitempty" yaml:"error,omitempty"`
}

type errorOutput struct {
	Code      string `json:"code" yaml:"code"`
	Message   string `json:"message" yaml:"message"`
	Detail    string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Retryable bool   `json:"retryable" yaml:"retryable"`
	Action    string `json:"action" yaml:"action"`
}

func anchorCmd(v *viper.Viper) *cobra.Command {
	var (
		recordPath   string
		documentPath string
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "anchor",
		Short: "Anchor a record's content hash on the ledger",
		Long: "Hashes the record, optionally mirrors the document to IPFS and stores the hash " +
			"in the credential registry. The record file is updated with the anchor receipt.",
		RunE: withRuntime(v, func(cmd *cobra.Command, args []string, rt *runtime) error {
			rec, err := readRecord(recordPath)
			if err != nil {
				return err
			}
			var document []byte
			if documentPath != "" {
				if document, err = os.ReadFile(filepath.Clean(documentPath)); err != nil {
					return fmt.Errorf("failed to read document: %w", err)
				}
			}
			signer, err := rt.signer()
			if err != nil {
				return err
			}
			engine, err := rt.engine()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			res := engine.Anchor(ctx, rec, document, signer)
			out := anchorOutput{
				RecordID:        rec.ID,
				AnchorID:        res.AnchorID.Hex(),
				ContentHash:     res.ContentHash,
				ContentID:       res.ContentID,
				GatewayURL:      res.GatewayURL,
				Degraded:        res.Degraded,
				AlreadyAnchored: res.AlreadyAnchored,
				Attempts:        res.Attempts,
				Receipt:         res.Receipt,
			}
			if res.MirrorError != nil {
				out.MirrorError = res.MirrorError.Error()
			}
			if res.JournalError != nil {
				out.JournalError = res.JournalError.Error()
			}
			if res.Err != nil {
				out.Error = &errorOutput{
					Code:      string(res.Err.Code),
					Message:   res.Err.Message,
					Detail:    res.Err.Detail(),
					Retryable: res.Err.IsRetryable(),
					Action:    res.Err.Action,
				}
			}
			if err := rt.print(out); err != nil {
				return err
			}

			if !res.Succeeded() {
				return res.Err
			}
			return writeRecord(recordPath, rec)
		}),
	}

	cmd.Flags().StringVar(&recordPath, flagRecord, "", "Path to the record JSON file")
	cmd.Flags().StringVar(&documentPath, "document", "", "Original document to mirror to IPFS")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Overall deadline for the submission")
	return cmd
}

func verifyCmd(v *viper.Viper) *cobra.Command {
	var recordPath string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare a record with its registry entry on the ledger",
		RunE: withRuntime(v, func(cmd *cobra.Command, args []string, rt *runtime) error {
			rec, err := readRecord(recordPath)
			if err != nil {
				return err
			}
			engine, err := rt.engine()
			if err != nil {
				return err
			}
			out, err := engine.VerifyOnLedger(cmd.Context(), rec)
			if err != nil {
				return err
			}
			return rt.print(out)
		}),
	}

	cmd.Flags().StringVar(&recordPath, flagRecord, "", "Path to the record JSON file")
	return cmd
}

func reverifyCmd(v *viper.Viper) *cobra.Command {
	var recordPath string

	cmd := &cobra.Command{
		Use:   "reverify",
		Short: "Recompute a record's hash and compare it with the anchored hash",
		RunE: withRuntime(v, func(cmd *cobra.Command, args []string, rt *runtime) error {
			rec, err := readRecord(recordPath)
			if err != nil {
				return err
			}
			if rec.Anchor == nil {
				receipt, err := rt.journal.LatestSuccessfulReceipt(cmd.Context(), rec.ID)
				if err != nil && !errors.Is(err, db.ErrNotFound) {
					return err
				}
				if receipt != nil {
					if err := rt.machine.LinkAnchorReceipt(rec, receipt); err != nil {
						return err
					}
				}
			}
			res, err := rt.machine.Reverify(rec)
			if err != nil {
				return err
			}
			if err := rt.print(res); err != nil {
				return err
			}
			if !res.HashMatches {
				return anchorerrors.NewTrustFailureError(rt.cfg.Chain.ChainID, "record does not match its anchored hash").
					WithContext("record_id", rec.ID)
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&recordPath, flagRecord, "", "Path to the record JSON file")
	return cmd
}

func revokeCmd(v *viper.Viper) *cobra.Command {
	var recordPath, actor, reason string

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a verified record on the ledger",
		RunE: withRuntime(v, func(cmd *cobra.Command, args []string, rt *runtime) error {
			rec, err := readRecord(recordPath)
			if err != nil {
				return err
			}
			signer, err := rt.signer()
			if err != nil {
				return err
			}
			engine, err := rt.engine()
			if err != nil {
				return err
			}
			res, err := engine.RevokeOnLedger(cmd.Context(), rec, signer, actor, reason)
			if err != nil {
				return err
			}
			if err := writeRecord(recordPath, rec); err != nil {
				return err
			}
			return rt.print(transitionOutput{
				RecordID: rec.ID,
				Status:   rec.Status,
				Attempt:  rec.LatestAttempt(),
				TxHash:   res.TxHash,
			})
		}),
	}

	cmd.Flags().StringVar(&recordPath, flagRecord, "", "Path to the record JSON file")
	cmd.Flags().StringVar(&actor, "actor", "", "Who revokes the record")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the record is revoked")
	return cmd
}
