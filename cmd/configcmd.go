package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/AvaProtocol/ap-wallet/core/config"
)

var (
	configForce bool

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Create and inspect the wallet config file",
	}

	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long: `Write a starter config to the path given by --config.

The template targets Sepolia; fill in controller_private_key and adjust
the endpoints before use.`,
		Run: func(cmd *cobra.Command, args []string) {
			if _, err := os.Stat(cfgPath); err == nil && !configForce {
				fmt.Printf("%s already exists, pass --force to overwrite\n", cfgPath)
				os.Exit(1)
			}

			template := config.ConfigRaw{
				Environment: "production",
				SmartWallet: config.SmartWalletRaw{
					EthRpcUrl:          "https://rpc.sepolia.org",
					BundlerUrl:         "https://bundler-sepolia.avaprotocol.org",
					FactoryAddress:     "0x29adA1b5217242DEaBB142BC3b1bCfFdd56008e7",
					EntrypointAddress:  config.DefaultEntrypointAddress,
					ChainId:            11155111,
					MaxWalletsPerOwner: config.DefaultMaxWalletsPerOwner,
					DbPath:             "./data/wallet",
				},
			}

			data, err := yaml.Marshal(&template)
			if err != nil {
				fmt.Printf("Failed to render template: %v\n", err)
				os.Exit(1)
			}

			if err := os.WriteFile(cfgPath, data, 0600); err != nil {
				fmt.Printf("Failed to write %s: %v\n", cfgPath, err)
				os.Exit(1)
			}

			fmt.Printf("Wrote %s\n", cfgPath)
			fmt.Printf("Set controller_private_key before running wallet commands\n")
		},
	}

	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the effective config with secrets redacted",
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(cfgPath)
			if err != nil {
				fmt.Printf("Failed to read %s: %v\n", cfgPath, err)
				os.Exit(1)
			}

			var raw config.ConfigRaw
			if err := yaml.Unmarshal(data, &raw); err != nil {
				fmt.Printf("Failed to parse %s: %v\n", cfgPath, err)
				os.Exit(1)
			}

			if _, err := config.FromRaw(&raw); err != nil {
				fmt.Printf("Warning: config does not validate: %v\n\n", err)
			}

			if raw.SmartWallet.ControllerPrivateKey != "" {
				raw.SmartWallet.ControllerPrivateKey = "<redacted>"
			}
			if raw.SmartWallet.PaymasterServiceApiKey != "" {
				raw.SmartWallet.PaymasterServiceApiKey = "<redacted>"
			}

			out, err := yaml.Marshal(&raw)
			if err != nil {
				fmt.Printf("Failed to render config: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s", out)
		},
	}
)

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
