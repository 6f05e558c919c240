package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	vaultsCmd := &cobra.Command{Use: "vaults", Short: "Vault operations"}

	// create
	var message, asset string
	var lockSeconds int64
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{
				"message":     message,
				"asset":       asset,
				"lockSeconds": lockSeconds,
			}
			data, err := doPostJSON("/v1/vaults", payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, data)
			return nil
		},
	}
	createCmd.Flags().StringVarP(&message, "message", "m", "", "Vault message (required)")
	createCmd.Flags().StringVar(&asset, "asset", "native", "Asset (native or token:<id>)")
	createCmd.Flags().Int64Var(&lockSeconds, "lock-seconds", 1209600, "Lock duration in seconds")
	_ = createCmd.MarkFlagRequired("message")
	vaultsCmd.AddCommand(createCmd)

	// list
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all vaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet("/v1/vaults")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, data)
			return nil
		},
	}
	vaultsCmd.AddCommand(listCmd)

	// get
	getCmd := &cobra.Command{
		Use:   "get VAULT_ID",
		Short: "Get vault by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet("/v1/vaults/" + args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, data)
			return nil
		},
	}
	vaultsCmd.AddCommand(getCmd)

	// donate
	var donateAmount int64
	donateCmd := &cobra.Command{
		Use:   "donate VAULT_ID",
		Short: "Donate funds to a vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON("/v1/vaults/"+args[0]+"/donations",
				map[string]interface{}{"amount": donateAmount})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, data)
			return nil
		},
	}
	donateCmd.Flags().Int64Var(&donateAmount, "amount", 0, "Amount to donate (required)")
	_ = donateCmd.MarkFlagRequired("amount")
	vaultsCmd.AddCommand(donateCmd)

	// settle
	var settleRecipient string
	var settleAmount int64
	settleCmd := &cobra.Command{
		Use:   "settle VAULT_ID",
		Short: "Settle pooled funds to a recipient (operator only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON("/v1/vaults/"+args[0]+"/settlements",
				map[string]interface{}{"recipient": settleRecipient, "amount": settleAmount})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, data)
			return nil
		},
	}
	settleCmd.Flags().StringVarP(&settleRecipient, "recipient", "r", "", "Recipient identity (required)")
	settleCmd.Flags().Int64Var(&settleAmount, "amount", 0, "Amount to settle (required)")
	_ = settleCmd.MarkFlagRequired("recipient")
	_ = settleCmd.MarkFlagRequired("amount")
	vaultsCmd.AddCommand(settleCmd)

	// claim
	claimCmd := &cobra.Command{
		Use:   "claim VAULT_ID",
		Short: "Claim your settled funds from a vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON("/v1/vaults/"+args[0]+"/claims", map[string]interface{}{})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, data)
			return nil
		},
	}
	vaultsCmd.AddCommand(claimCmd)

	// withdraw
	var withdrawAmount int64
	withdrawCmd := &cobra.Command{
		Use:   "withdraw VAULT_ID",
		Short: "Withdraw unsettled funds after the lock deadline (creator only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON("/v1/vaults/"+args[0]+"/withdrawals",
				map[string]interface{}{"amount": withdrawAmount})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, data)
			return nil
		},
	}
	withdrawCmd.Flags().Int64Var(&withdrawAmount, "amount", 0, "Amount to withdraw (required)")
	_ = withdrawCmd.MarkFlagRequired("amount")
	vaultsCmd.AddCommand(withdrawCmd)

	// entitlement
	entitlementCmd := &cobra.Command{
		Use:   "entitlement VAULT_ID RECIPIENT",
		Short: "Show a recipient's entitlement on a vault",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet("/v1/vaults/" + args[0] + "/entitlements/" + args[1])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, data)
			return nil
		},
	}
	vaultsCmd.AddCommand(entitlementCmd)

	rootCmd.AddCommand(vaultsCmd)
}
