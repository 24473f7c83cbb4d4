package cmd

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-wallet/core/account"
	"github.com/AvaProtocol/ap-wallet/core/config"
)

var (
	walletSalt  int64
	walletOwner string

	sendTo        string
	sendValue     string
	sendData      string
	sendSponsored bool
	sendSession   string
	sendTimeout   time.Duration

	hideWalletAddress string

	walletCmd = &cobra.Command{
		Use:   "wallet",
		Short: "Derive, deploy and operate smart wallets",
		Long: `Manage the smart wallets owned by the configured controller key.

Addresses are derived deterministically from the factory, the owner and a
salt, so "wallet address" works before anything is on chain. Use --salt to
work with a wallet other than the default one.`,
	}

	walletAddressCmd = &cobra.Command{
		Use:   "address",
		Short: "Show the wallet address, deployment state and balance",
		Run: func(cmd *cobra.Command, args []string) {
			app := mustApp()
			defer app.Close()

			handle := mustHandle(app)
			ctx := context.Background()

			deployed, err := handle.CheckDeployed(ctx)
			if err != nil {
				fmt.Printf("Failed to check deployment: %v\n", err)
				os.Exit(1)
			}

			balance, err := app.client.BalanceAt(ctx, handle.Address(), nil)
			if err != nil {
				fmt.Printf("Failed to read balance: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("Owner:    %s\n", handle.Owner().Hex())
			fmt.Printf("Salt:     %s\n", handle.Salt().String())
			fmt.Printf("Wallet:   %s\n", handle.Address().Hex())
			fmt.Printf("Deployed: %v\n", deployed)
			fmt.Printf("Balance:  %s ETH\n", formatEther(balance))

			if chainID, err := app.ctrl.ChainID(ctx); err == nil {
				env := config.EnvForChainID(chainID)
				if url := env.ExplorerURL(); url != "" {
					fmt.Printf("Explorer: %s/address/%s\n", url, handle.Address().Hex())
				}
			}
		},
	}

	walletListCmd = &cobra.Command{
		Use:   "list",
		Short: "List wallets registered for the owner",
		Run: func(cmd *cobra.Command, args []string) {
			app := mustApp()
			defer app.Close()

			owner := mustOwnerAddress(app)
			wallets, err := app.ctrl.Wallets().ListWallets(owner)
			if err != nil {
				fmt.Printf("Failed to list wallets: %v\n", err)
				os.Exit(1)
			}

			if len(wallets) == 0 {
				fmt.Printf("No wallets registered for %s\n", owner.Hex())
				fmt.Printf("Run \"ap-wallet wallet address\" to derive and register one\n")
				return
			}

			fmt.Printf("Wallets owned by %s:\n", owner.Hex())
			for i, w := range wallets {
				fmt.Printf("  %d. %s (salt %s)\n", i+1, w.Address.Hex(), w.Salt.String())
			}
		},
	}

	walletDeployCmd = &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the wallet contract on chain",
		Long: `Deploy the wallet by sending a no-op user operation carrying the
factory init code. Use --sponsored to have the configured paymaster pay.`,
		Run: func(cmd *cobra.Command, args []string) {
			app := mustApp()
			defer app.Close()

			handle := mustHandle(app)
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			deployed, err := handle.CheckDeployed(ctx)
			if err != nil {
				fmt.Printf("Failed to check deployment: %v\n", err)
				os.Exit(1)
			}
			if deployed {
				fmt.Printf("Wallet %s is already deployed\n", handle.Address().Hex())
				return
			}

			owner, err := app.ownerSigner()
			if err != nil {
				fmt.Printf("%v\n", err)
				os.Exit(1)
			}

			fmt.Printf("Deploying wallet %s...\n", handle.Address().Hex())
			calls := []account.Call{{To: handle.Address()}}
			result, err := handle.Execute(ctx, calls, account.BuildOptions{Sponsored: sendSponsored}, account.OwnerSigner{Signer: owner})
			reportExecution(result, err)
		},
	}

	walletSendCmd = &cobra.Command{
		Use:   "send",
		Short: "Send a call from the wallet",
		Long: `Build, sign and submit a user operation for a single call.

Use --value for native transfers (decimal ether) and --data for contract
calls (hex calldata). --session signs with a stored session key instead of
the owner key; --sponsored routes gas through the configured paymaster.`,
		Run: func(cmd *cobra.Command, args []string) {
			app := mustApp()
			defer app.Close()

			if !common.IsHexAddress(sendTo) {
				fmt.Printf("Invalid --to address %q\n", sendTo)
				os.Exit(1)
			}
			value, err := parseEtherAmount(sendValue)
			if err != nil {
				fmt.Printf("%v\n", err)
				os.Exit(1)
			}
			var data []byte
			if sendData != "" {
				data = common.FromHex(sendData)
				if len(data) == 0 {
					fmt.Printf("Invalid --data hex %q\n", sendData)
					os.Exit(1)
				}
			}

			handle := mustHandle(app)
			opSigner, err := pickSigner(app, handle)
			if err != nil {
				fmt.Printf("%v\n", err)
				os.Exit(1)
			}

			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			calls := []account.Call{{To: common.HexToAddress(sendTo), Value: value, Data: data}}
			result, err := handle.Execute(ctx, calls, account.BuildOptions{Sponsored: sendSponsored}, opSigner)
			reportExecution(result, err)
		},
	}

	walletHideCmd = &cobra.Command{
		Use:   "hide",
		Short: "Hide a wallet from listings",
		Run: func(cmd *cobra.Command, args []string) {
			setWalletHidden(true)
		},
	}

	walletUnhideCmd = &cobra.Command{
		Use:   "unhide",
		Short: "Restore a hidden wallet to listings",
		Run: func(cmd *cobra.Command, args []string) {
			setWalletHidden(false)
		},
	}
)

// mustOwnerAddress resolves the owner: --owner when given, otherwise the
// address of the configured controller key.
func mustOwnerAddress(app *walletApp) common.Address {
	if walletOwner != "" {
		if !common.IsHexAddress(walletOwner) {
			fmt.Printf("Invalid --owner address %q\n", walletOwner)
			os.Exit(1)
		}
		return common.HexToAddress(walletOwner)
	}
	owner, err := app.ownerSigner()
	if err != nil {
		fmt.Printf("%v (pass --owner for read-only commands)\n", err)
		os.Exit(1)
	}
	return owner.Address()
}

func mustHandle(app *walletApp) *account.Handle {
	handle, err := app.ctrl.Handle(mustOwnerAddress(app), big.NewInt(walletSalt))
	if err != nil {
		fmt.Printf("Failed to resolve wallet: %v\n", err)
		os.Exit(1)
	}
	return handle
}

// pickSigner maps the send flags to an operation signer.
func pickSigner(app *walletApp, handle *account.Handle) (account.OperationSigner, error) {
	if sendSession != "" {
		if !common.IsHexAddress(sendSession) {
			return nil, fmt.Errorf("invalid --session address %q", sendSession)
		}
		manager, err := app.sessionManager(handle.Address())
		if err != nil {
			return nil, err
		}
		return account.SessionSigner{
			Manager: manager,
			Session: common.HexToAddress(sendSession),
		}, nil
	}

	owner, err := app.ownerSigner()
	if err != nil {
		return nil, err
	}
	return account.OwnerSigner{Signer: owner}, nil
}

// reportExecution prints the outcome of Execute and exits non-zero when the
// operation did not land successfully.
func reportExecution(result *account.ExecutionResult, err error) {
	if result != nil {
		debugDump("execution result", result)
	}
	if err != nil {
		if result != nil && result.UserOpHash != (common.Hash{}) {
			fmt.Printf("User op hash: %s\n", result.UserOpHash.Hex())
		}
		fmt.Printf("Operation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Operation succeeded\n")
	fmt.Printf("  User op hash: %s\n", result.UserOpHash.Hex())
	fmt.Printf("  Transaction:  %s\n", result.TxHash.Hex())
	if result.Receipt != nil && result.Receipt.ActualGasCost != nil {
		fmt.Printf("  Gas cost:     %s ETH\n", formatEther(result.Receipt.ActualGasCost))
	}
}

func setWalletHidden(hidden bool) {
	app := mustApp()
	defer app.Close()

	if !common.IsHexAddress(hideWalletAddress) {
		fmt.Printf("Invalid --address %q\n", hideWalletAddress)
		os.Exit(1)
	}

	owner := mustOwnerAddress(app)
	address := common.HexToAddress(hideWalletAddress)
	if err := app.ctrl.Wallets().SetHidden(owner, address, hidden); err != nil {
		fmt.Printf("Failed to update wallet: %v\n", err)
		os.Exit(1)
	}
	if hidden {
		fmt.Printf("Wallet %s hidden from listings\n", address.Hex())
	} else {
		fmt.Printf("Wallet %s restored to listings\n", address.Hex())
	}
}

func init() {
	walletCmd.PersistentFlags().Int64Var(&walletSalt, "salt", 0, "Wallet derivation salt")
	walletCmd.PersistentFlags().StringVar(&walletOwner, "owner", "", "Owner address (defaults to the configured controller key)")

	walletSendCmd.Flags().StringVar(&sendTo, "to", "", "Target address (required)")
	walletSendCmd.Flags().StringVar(&sendValue, "value", "0", "Native value in ether, e.g. 0.05")
	walletSendCmd.Flags().StringVar(&sendData, "data", "", "Calldata as 0x-prefixed hex")
	walletSendCmd.Flags().BoolVar(&sendSponsored, "sponsored", false, "Pay gas through the configured paymaster")
	walletSendCmd.Flags().StringVar(&sendSession, "session", "", "Sign with this session key address instead of the owner key")
	walletSendCmd.Flags().DurationVar(&sendTimeout, "timeout", 3*time.Minute, "How long to wait for inclusion")
	walletSendCmd.MarkFlagRequired("to")

	walletDeployCmd.Flags().BoolVar(&sendSponsored, "sponsored", false, "Pay gas through the configured paymaster")
	walletDeployCmd.Flags().DurationVar(&sendTimeout, "timeout", 3*time.Minute, "How long to wait for inclusion")

	walletHideCmd.Flags().StringVar(&hideWalletAddress, "address", "", "Wallet address to hide (required)")
	walletHideCmd.MarkFlagRequired("address")
	walletUnhideCmd.Flags().StringVar(&hideWalletAddress, "address", "", "Wallet address to restore (required)")
	walletUnhideCmd.MarkFlagRequired("address")

	walletCmd.AddCommand(walletAddressCmd)
	walletCmd.AddCommand(walletListCmd)
	walletCmd.AddCommand(walletDeployCmd)
	walletCmd.AddCommand(walletSendCmd)
	walletCmd.AddCommand(walletHideCmd)
	walletCmd.AddCommand(walletUnhideCmd)
	rootCmd.AddCommand(walletCmd)
}
