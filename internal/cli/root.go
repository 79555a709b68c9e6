package cli

import "github.com/spf13/cobra"

// NewRootCommand builds the ledgerctl command tree.
func NewRootCommand() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operator tools for the entitlement ledger",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./config.yaml)")

	root.AddCommand(
		newMigrateCommand(&configPath),
		newUnlocksCommand(&configPath),
		newWalletCommand(&configPath),
	)
	return root
}
