package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-wallet/core/config"
	"github.com/AvaProtocol/ap-wallet/core/sessionkeys"
	"github.com/AvaProtocol/ap-wallet/pkg/byte4"
)

var (
	sessionValidFor   time.Duration
	sessionValidAfter int64
	sessionMaxValue   string
	sessionMaxTotal   string
	sessionAllow      []string
	sessionBlock      []string
	sessionSelectors  []string
	sessionMaxTxs     uint64
	sessionCooldown   time.Duration

	sessionAddress string
	sessionFile    string
	sessionRetain  time.Duration

	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Manage delegated session keys",
		Long: `Create, inspect and revoke session keys for a smart wallet.

A session key signs user operations on the owner's behalf within the
permission grant it was created with: a validity window, value budgets and
optional target/selector restrictions. Keys live in the local store; use
"session export" to move one to another machine.`,
	}

	sessionCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Create a session key with a scoped permission grant",
		Long: `Generate a fresh session key bound to the wallet.

--allow and --block take wallet addresses. --selector takes either a
0x-prefixed 4-byte hex selector or a function signature such as
"transfer(address,uint256)". Value budgets are decimal ether.`,
		Run: func(cmd *cobra.Command, args []string) {
			app := mustApp()
			defer app.Close()

			req, err := buildCreateRequest()
			if err != nil {
				fmt.Printf("%v\n", err)
				os.Exit(1)
			}

			manager := mustSessionManager(app)
			sess, err := manager.CreateSession(*req)
			if err != nil {
				fmt.Printf("Failed to create session: %v\n", err)
				os.Exit(1)
			}
			debugDump("session permission", sess.Permission)

			fmt.Printf("Session key created\n")
			fmt.Printf("  Session: %s\n", sess.Address.Hex())
			fmt.Printf("  Account: %s\n", sess.Account.Hex())
			fmt.Printf("  Valid:   %s to %s\n",
				time.Unix(sess.Permission.ValidAfter, 0).UTC().Format(time.RFC3339),
				time.Unix(sess.Permission.ValidUntil, 0).UTC().Format(time.RFC3339))
			fmt.Printf("Run \"ap-wallet session authorize --session %s\" to produce the owner authorization\n", sess.Address.Hex())
		},
	}

	sessionListCmd = &cobra.Command{
		Use:   "list",
		Short: "List session keys for the wallet",
		Run: func(cmd *cobra.Command, args []string) {
			app := mustApp()
			defer app.Close()

			manager := mustSessionManager(app)
			sessions, err := manager.ListSessions()
			if err != nil {
				fmt.Printf("Failed to list sessions: %v\n", err)
				os.Exit(1)
			}

			if len(sessions) == 0 {
				fmt.Printf("No session keys for %s\n", manager.Account().Hex())
				return
			}

			now := time.Now().Unix()
			fmt.Printf("Session keys for %s:\n", manager.Account().Hex())
			for i, sess := range sessions {
				state := "active"
				if now < sess.Permission.ValidAfter {
					state = "not yet valid"
				} else if now > sess.Permission.ValidUntil {
					state = "expired"
				}
				fmt.Printf("  %d. %s (%s)\n", i+1, sess.Address.Hex(), state)
				fmt.Printf("     until %s, signed %d ops, spent %s ETH\n",
					time.Unix(sess.Permission.ValidUntil, 0).UTC().Format(time.RFC3339),
					sess.UsedTransactionCount,
					formatEther(sess.CumulativeValueSpent))
			}
		},
	}

	sessionRevokeCmd = &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a session key",
		Run: func(cmd *cobra.Command, args []string) {
			app := mustApp()
			defer app.Close()

			manager := mustSessionManager(app)
			session := mustSessionAddress()
			if err := manager.RevokeSession(session); err != nil {
				fmt.Printf("Failed to revoke session: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Session %s revoked\n", session.Hex())
		},
	}

	sessionExportCmd = &cobra.Command{
		Use:   "export",
		Short: "Export a session key to a file",
		Long: `Write the session key and its permission grant to a file.

The envelope contains the private key. Keep the file secret and delete it
once imported on the target machine.`,
		Run: func(cmd *cobra.Command, args []string) {
			app := mustApp()
			defer app.Close()

			manager := mustSessionManager(app)
			data, err := manager.ExportSession(mustSessionAddress())
			if err != nil {
				fmt.Printf("Failed to export session: %v\n", err)
				os.Exit(1)
			}

			if err := os.WriteFile(sessionFile, data, 0600); err != nil {
				fmt.Printf("Failed to write %s: %v\n", sessionFile, err)
				os.Exit(1)
			}
			fmt.Printf("Session exported to %s\n", sessionFile)
		},
	}

	sessionImportCmd = &cobra.Command{
		Use:   "import",
		Short: "Import a session key from an export file",
		Run: func(cmd *cobra.Command, args []string) {
			app := mustApp()
			defer app.Close()

			data, err := os.ReadFile(sessionFile)
			if err != nil {
				fmt.Printf("Failed to read %s: %v\n", sessionFile, err)
				os.Exit(1)
			}

			manager := mustSessionManager(app)
			sess, err := manager.ImportSession(data)
			if err != nil {
				fmt.Printf("Failed to import session: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Session %s imported for account %s\n", sess.Address.Hex(), sess.Account.Hex())
		},
	}

	sessionAuthorizeCmd = &cobra.Command{
		Use:   "authorize",
		Short: "Produce the owner authorization for a session key",
		Long: `Sign the session key and its encoded permissions with the owner key.

The printed signature is what the on-chain validator checks before
honoring any signature from the session key.`,
		Run: func(cmd *cobra.Command, args []string) {
			app := mustApp()
			defer app.Close()

			manager := mustSessionManager(app)
			session := mustSessionAddress()

			sig, err := manager.AuthorizeSession(context.Background(), session)
			if err != nil {
				fmt.Printf("Failed to authorize session: %v\n", err)
				os.Exit(1)
			}

			sess, err := manager.GetSession(session)
			if err != nil {
				fmt.Printf("Failed to load session: %v\n", err)
				os.Exit(1)
			}
			encoded, err := sessionkeys.EncodePermissions(sess.Address, sess.Permission)
			if err != nil {
				fmt.Printf("Failed to encode permissions: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("Session:       %s\n", session.Hex())
			fmt.Printf("Permissions:   %s\n", hexutil.Encode(encoded))
			fmt.Printf("Authorization: %s\n", hexutil.Encode(sig))
		},
	}

	sessionPurgeCmd = &cobra.Command{
		Use:   "purge",
		Short: "Delete sessions expired longer than the retention window",
		Run: func(cmd *cobra.Command, args []string) {
			app := mustApp()
			defer app.Close()

			manager := mustSessionManager(app)
			purged, err := manager.PurgeExpired(sessionRetain)
			if err != nil {
				fmt.Printf("Failed to purge sessions: %v\n", err)
				os.Exit(1)
			}

			if len(purged) == 0 {
				fmt.Printf("Nothing to purge\n")
				return
			}
			for _, addr := range purged {
				fmt.Printf("Purged %s\n", addr.Hex())
			}
		},
	}
)

// sessionManager builds a manager bound to the given smart account, backed
// by the app store and the configured owner key.
func (a *walletApp) sessionManager(account common.Address) (*sessionkeys.Manager, error) {
	owner, err := a.ownerSigner()
	if err != nil {
		return nil, err
	}
	store := sessionkeys.NewBadgerStore(a.db, nil)
	return sessionkeys.NewManager(store, owner, account, a.logger), nil
}

func mustSessionManager(app *walletApp) *sessionkeys.Manager {
	handle := mustHandle(app)
	manager, err := app.sessionManager(handle.Address())
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
	return manager
}

func mustSessionAddress() common.Address {
	if !common.IsHexAddress(sessionAddress) {
		fmt.Printf("Invalid --session address %q\n", sessionAddress)
		os.Exit(1)
	}
	return common.HexToAddress(sessionAddress)
}

// buildCreateRequest converts the create flags into a request, translating
// ether amounts to wei and selector strings to 4-byte selectors.
func buildCreateRequest() (*sessionkeys.CreateSessionRequest, error) {
	validAfter := sessionValidAfter
	if validAfter == 0 {
		validAfter = time.Now().Unix()
	}

	maxValue, err := parseEtherAmount(sessionMaxValue)
	if err != nil {
		return nil, err
	}

	req := &sessionkeys.CreateSessionRequest{
		ValidAfter:          validAfter,
		ValidUntil:          validAfter + int64(sessionValidFor/time.Second),
		MaxValuePerCall:     maxValue,
		MaxTransactionCount: sessionMaxTxs,
		CooldownSeconds:     uint64(sessionCooldown / time.Second),
	}

	if sessionMaxTotal != "" {
		total, err := parseEtherAmount(sessionMaxTotal)
		if err != nil {
			return nil, err
		}
		req.MaxTotalValue = total
	}

	if req.AllowedTargets, err = config.ParseAddressList(sessionAllow); err != nil {
		return nil, err
	}
	if req.BlockedTargets, err = config.ParseAddressList(sessionBlock); err != nil {
		return nil, err
	}

	for _, raw := range sessionSelectors {
		sel, err := parseSelector(raw)
		if err != nil {
			return nil, err
		}
		req.AllowedSelectors = append(req.AllowedSelectors, sel)
	}

	return req, nil
}

// parseSelector accepts either 0x-prefixed 4-byte hex or a function
// signature like "transfer(address,uint256)".
func parseSelector(raw string) (byte4.Selector, error) {
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		b, err := hexutil.Decode(raw)
		if err != nil || len(b) != 4 {
			return byte4.Selector{}, fmt.Errorf("invalid selector %q: want 4 bytes of hex", raw)
		}
		var sel byte4.Selector
		copy(sel[:], b)
		return sel, nil
	}
	if !strings.Contains(raw, "(") {
		return byte4.Selector{}, fmt.Errorf("invalid selector %q: want hex or a function signature", raw)
	}
	return byte4.SelectorFromSignature(raw), nil
}

func init() {
	sessionCmd.PersistentFlags().Int64Var(&walletSalt, "salt", 0, "Wallet derivation salt")
	sessionCmd.PersistentFlags().StringVar(&walletOwner, "owner", "", "Owner address (defaults to the configured controller key)")

	sessionCreateCmd.Flags().DurationVar(&sessionValidFor, "valid-for", 24*time.Hour, "How long the grant stays valid")
	sessionCreateCmd.Flags().Int64Var(&sessionValidAfter, "valid-after", 0, "Unix time the grant activates (0 means now)")
	sessionCreateCmd.Flags().StringVar(&sessionMaxValue, "max-value", "", "Per-call value budget in ether (required)")
	sessionCreateCmd.Flags().StringVar(&sessionMaxTotal, "max-total", "", "Lifetime value budget in ether")
	sessionCreateCmd.Flags().StringSliceVar(&sessionAllow, "allow", nil, "Allowed target addresses")
	sessionCreateCmd.Flags().StringSliceVar(&sessionBlock, "block", nil, "Blocked target addresses")
	sessionCreateCmd.Flags().StringSliceVar(&sessionSelectors, "selector", nil, "Allowed function selectors")
	sessionCreateCmd.Flags().Uint64Var(&sessionMaxTxs, "max-txs", 0, "Maximum number of signatures (0 means unlimited)")
	sessionCreateCmd.Flags().DurationVar(&sessionCooldown, "cooldown", 0, "Minimum gap between signatures")
	sessionCreateCmd.MarkFlagRequired("max-value")

	sessionRevokeCmd.Flags().StringVar(&sessionAddress, "session", "", "Session key address (required)")
	sessionRevokeCmd.MarkFlagRequired("session")

	sessionExportCmd.Flags().StringVar(&sessionAddress, "session", "", "Session key address (required)")
	sessionExportCmd.Flags().StringVar(&sessionFile, "out", "", "Output file (required)")
	sessionExportCmd.MarkFlagRequired("session")
	sessionExportCmd.MarkFlagRequired("out")

	sessionImportCmd.Flags().StringVar(&sessionFile, "file", "", "Export file to import (required)")
	sessionImportCmd.MarkFlagRequired("file")

	sessionAuthorizeCmd.Flags().StringVar(&sessionAddress, "session", "", "Session key address (required)")
	sessionAuthorizeCmd.MarkFlagRequired("session")

	sessionPurgeCmd.Flags().DurationVar(&sessionRetain, "retention", 30*24*time.Hour, "Keep expired sessions this long before purging")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionRevokeCmd)
	sessionCmd.AddCommand(sessionExportCmd)
	sessionCmd.AddCommand(sessionImportCmd)
	sessionCmd.AddCommand(sessionAuthorizeCmd)
	sessionCmd.AddCommand(sessionPurgeCmd)
	rootCmd.AddCommand(sessionCmd)
}
