package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	adminCmd := &cobra.Command{Use: "admin", Short: "Operator-only operations"}

	// assets
	assetsCmd := &cobra.Command{Use: "assets", Short: "Asset allow-list management"}
	allowCmd := &cobra.Command{
		Use:   "allow ASSET",
		Short: "Put an asset on the allow-list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON("/v1/admin/assets", map[string]interface{}{"asset": args[0]})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, data)
			return nil
		},
	}
	assetsCmd.AddCommand(allowCmd)

	removeCmd := &cobra.Command{
		Use:   "remove ASSET",
		Short: "Take an asset off the allow-list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doDelete("/v1/admin/assets/" + args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, data)
			return nil
		},
	}
	assetsCmd.AddCommand(removeCmd)

	statusCmd := &cobra.Command{
		Use:   "status ASSET",
		Short: "Show whether an asset is allow-listed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet("/v1/assets/" + args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, data)
			return nil
		},
	}
	assetsCmd.AddCommand(statusCmd)
	adminCmd.AddCommand(assetsCmd)

	// emergency mode
	emergencyCmd := &cobra.Command{Use: "emergency", Short: "Emergency mode controls"}
	toggleCmd := &cobra.Command{
		Use:   "toggle",
		Short: "Flip the emergency mode flag",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON("/v1/admin/emergency-mode", map[string]interface{}{})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, data)
			return nil
		},
	}
	emergencyCmd.AddCommand(toggleCmd)

	emergencyStatusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show emergency mode state",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet("/v1/emergency-mode")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, data)
			return nil
		},
	}
	emergencyCmd.AddCommand(emergencyStatusCmd)

	var ewAmount int64
	emergencyWithdrawCmd := &cobra.Command{
		Use:   "withdraw VAULT_ID",
		Short: "Withdraw vault funds to the operator (emergency mode only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vaultID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid vault id %q", args[0])
			}
			data, err := doPostJSON("/v1/admin/emergency-withdrawals",
				map[string]interface{}{"vaultId": vaultID, "amount": ewAmount})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, data)
			return nil
		},
	}
	emergencyWithdrawCmd.Flags().Int64Var(&ewAmount, "amount", 0, "Amount to withdraw (required)")
	_ = emergencyWithdrawCmd.MarkFlagRequired("amount")
	emergencyCmd.AddCommand(emergencyWithdrawCmd)
	adminCmd.AddCommand(emergencyCmd)

	// operator handover
	operatorCmd := &cobra.Command{
		Use:   "transfer-authority NEW_OPERATOR",
		Short: "Hand the operator role to a new identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON("/v1/admin/operator", map[string]interface{}{"newOperator": args[0]})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, data)
			return nil
		},
	}
	adminCmd.AddCommand(operatorCmd)

	rootCmd.AddCommand(adminCmd)
}
