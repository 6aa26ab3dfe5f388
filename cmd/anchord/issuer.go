package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pushchain/credential-anchor/anchorClient/core"
	"github.com/pushchain/credential-anchor/anchorClient/ledger"
)

type issuerOutput struct {
	Issuer     string `json:"issuer" yaml:"issuer"`
	Authorized bool   `json:"authorized" yaml:"authorized"`
	TxHash     string `json:"tx_hash,omitempty" yaml:"tx_hash,omitempty"`
	Attempts   int    `json:"attempts,omitempty" yaml:"attempts,omitempty"`
}

func issuerCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issuer",
		Short: "Manage the registry's issuer allow-list",
	}

	cmd.AddCommand(
		issuerWriteCmd(v, "authorize", "Allow an address to anchor records", true, (*core.Engine).AuthorizeIssuer),
		issuerWriteCmd(v, "revoke", "Remove an address from the allow-list", false, (*core.Engine).RevokeIssuer),
		issuerCheckCmd(v),
	)
	return cmd
}

type issuerWriteFn func(e *core.Engine, ctx context.Context, signer *ledger.Signer, issuer string) (*ledger.SubmitResult, error)

func issuerWriteCmd(v *viper.Viper, use, short string, authorized bool, write issuerWriteFn) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [address]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(v, func(cmd *cobra.Command, args []string, rt *runtime) error {
			signer, err := rt.signer()
			if err != nil {
				return err
			}
			engine, err := rt.engine()
			if err != nil {
				return err
			}
			res, err := write(engine, cmd.Context(), signer, args[0])
			if err != nil {
				return err
			}
			return rt.print(issuerOutput{
				Issuer:     args[0],
				Authorized: authorized,
				TxHash:     res.TxHash,
				Attempts:   res.Attempts,
			})
		}),
	}
}

func issuerCheckCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "check [address]",
		Short: "Report whether an address may anchor records",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(v, func(cmd *cobra.Command, args []string, rt *runtime) error {
			engine, err := rt.engine()
			if err != nil {
				return err
			}
			ok, err := engine.IsAuthorizedIssuer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return rt.print(issuerOutput{Issuer: args[0], Authorized: ok})
		}),
	}
}
