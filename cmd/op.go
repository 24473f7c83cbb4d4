package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-wallet/core/config"
)

var (
	opCmd = &cobra.Command{
		Use:   "op",
		Short: "Inspect submitted user operations",
	}

	opStatusCmd = &cobra.Command{
		Use:   "status <user-op-hash>",
		Short: "Show the inclusion status of a user operation",
		Long: `Query the relay for a user operation by hash.

Prints the receipt once the operation landed on chain, or whatever the
relay knows about it while it is still pending.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if !strings.HasPrefix(args[0], "0x") || len(args[0]) != 66 {
				fmt.Printf("Invalid user op hash %q\n", args[0])
				os.Exit(1)
			}
			opHash := common.HexToHash(args[0])

			app := mustApp()
			defer app.Close()

			ctx := context.Background()
			receipt, err := app.relay.GetUserOperationReceipt(ctx, opHash)
			if err != nil {
				fmt.Printf("Failed to query relay: %v\n", err)
				os.Exit(1)
			}

			if receipt == nil {
				reportPending(app, opHash)
				return
			}
			debugDump("user operation receipt", receipt)

			if receipt.Success {
				fmt.Printf("Status:     included\n")
			} else {
				fmt.Printf("Status:     reverted\n")
				if receipt.Reason != "" {
					fmt.Printf("Reason:     %s\n", receipt.Reason)
				}
			}
			fmt.Printf("Sender:     %s\n", receipt.Sender.Hex())
			fmt.Printf("Nonce:      %s\n", receipt.Nonce.String())
			if receipt.ActualGasCost != nil {
				fmt.Printf("Gas cost:   %s ETH (%s gas)\n",
					formatEther(receipt.ActualGasCost), receipt.ActualGasUsed.String())
			}
			if receipt.Receipt != nil {
				fmt.Printf("Tx:         %s\n", receipt.Receipt.TransactionHash.Hex())
				if receipt.Receipt.BlockNumber != nil {
					fmt.Printf("Block:      %s\n", receipt.Receipt.BlockNumber.String())
				}
				if chainID, err := app.ctrl.ChainID(ctx); err == nil {
					env := config.EnvForChainID(chainID)
					if url := env.ExplorerURL(); url != "" {
						fmt.Printf("Explorer:   %s/tx/%s\n", url, receipt.Receipt.TransactionHash.Hex())
					}
				}
			}
		},
	}
)

// reportPending falls back to eth_getUserOperationByHash for an operation
// the relay has not yet produced a receipt for.
func reportPending(app *walletApp, opHash common.Hash) {
	lookup, err := app.relay.GetUserOperationByHash(context.Background(), opHash)
	if err != nil || lookup == nil {
		fmt.Printf("Status:     unknown (the relay has no record of %s)\n", opHash.Hex())
		return
	}
	debugDump("user operation lookup", lookup)

	if lookup.TransactionHash == nil {
		fmt.Printf("Status:     pending (known to the relay, not yet included)\n")
		return
	}
	fmt.Printf("Status:     included, receipt not yet available\n")
	fmt.Printf("Tx:         %s\n", lookup.TransactionHash.Hex())
}

func init() {
	opCmd.AddCommand(opStatusCmd)
	rootCmd.AddCommand(opCmd)
}
