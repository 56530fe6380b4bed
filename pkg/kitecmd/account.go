package kitecmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kitewallet/kite/pkg/engine"
)

func newAccountCmd(sf func() engine.API) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "manage tracked accounts",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <address>",
		Short: "start tracking an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sf().AddAccount(ctx, &engine.AddAccountReq{Address: args[0]})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <address>",
		Short: "print the cached account state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := sf().GetAccount(ctx, &engine.GetAccountReq{Address: args[0]})
			if err != nil {
				return err
			}
			if res.Account == nil {
				return fmt.Errorf("account %s is not synced yet", args[0])
			}
			return printJSON(cmd, res.Account)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "jettons <address>",
		Short: "print cached jetton balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := sf().ListJettons(ctx, &engine.ListJettonsReq{Owner: args[0]})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "invalidate <address>",
		Short: "mark an account's cached state stale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sf().Invalidate(ctx, &engine.InvalidateReq{Address: args[0]})
		},
	})
	return cmd
}

func newStatusCmd(sf func() engine.API) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "print sync status",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := sf().Status(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func printJSON(cmd *cobra.Command, x interface{}) error {
	data, err := json.MarshalIndent(x, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
