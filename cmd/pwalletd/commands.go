package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/pushchain/push-wallet-link/walletlink/api"
	"github.com/pushchain/push-wallet-link/walletlink/config"
	"github.com/pushchain/push-wallet-link/walletlink/fees"
	"github.com/pushchain/push-wallet-link/walletlink/txstore"
	"github.com/pushchain/push-wallet-link/walletlink/worker"
)

// Set at build time with -ldflags "-X main.Version=..."
var (
	Version = "dev"
	Commit  = ""
)

func InitRootCmd(rootCmd *cobra.Command) {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(infoCmd())
	rootCmd.AddCommand(estimateFeeCmd())
	rootCmd.AddCommand(pushTxCmd())
	rootCmd.AddCommand(txStatusCmd())
	rootCmd.AddCommand(getAddressCmd())
	rootCmd.AddCommand(signTxCmd())
	rootCmd.AddCommand(versionCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to the home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := homeDir()
			if !force {
				if _, err := config.Load(home); err == nil {
					return fmt.Errorf("config already exists in %s (use --force to overwrite)", home)
				}
			}

			cfg, err := config.LoadDefaultConfig()
			if err != nil {
				return err
			}
			cfg.NodeHome = home
			if err := config.Save(cfg, home); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Config written to %s\n", home)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	return cmd
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the wallet link daemon",
		Long: `
Start the RPC pool, resume monitoring of transactions that were still pending
at the last shutdown, subscribe to new blocks and serve the query API.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var rt *runtime
			notify := worker.NotifyFunc(func(n worker.Notification) {
				if block, ok := n.Payload.(worker.BlockNotification); ok {
					rt.log.Info().
						Uint64("block_height", block.BlockHeight).
						Str("block_hash", block.BlockHash).
						Msg("new block")
				}
			})

			rt, err := openRuntime(ctx, true, notify)
			if err != nil {
				return err
			}
			defer rt.Close()

			rt.log.Info().Msg("🚀 Starting wallet link...")

			resumed, err := rt.worker.Resume(ctx)
			if err != nil {
				return err
			}
			rt.log.Info().Int("resumed", resumed).Msg("pending transactions resumed")

			cleaner := txstore.NewCleaner(rt.store, nil, rt.cfg.TransactionCleanupInterval(), rt.cfg.TransactionRetention(), rt.log)
			cleaner.Start(ctx)
			defer cleaner.Stop()

			if resp := rt.worker.Handle(ctx, worker.SubscribeBlock{}); resp.Error != nil {
				return resp.Error
			}

			server := api.NewServer(rt.log, rt.cfg.QueryServerPort, api.Options{
				Transactions: rt.store,
				Pool:         rt.client,
				Requests:     rt.worker,
				Gatherer:     rt.registry,
			})
			if err := server.Start(); err != nil {
				return err
			}

			rt.log.Info().Msg("✅ Initialization complete. Entering main loop...")
			<-ctx.Done()

			rt.log.Info().Msg("🛑 Shutting down wallet link...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Stop(shutdownCtx)
		},
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show information about the connected network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runRequest(cmd, false, worker.GetInfo{})
			return err
		},
	}
}

func estimateFeeCmd() *cobra.Command {
	var creatingAccount bool
	cmd := &cobra.Command{
		Use:   "estimate-fee <message-hex>",
		Short: "Estimate the fee of a serialized transaction message",
		Example: `  pwalletd estimate-fee 0x01000103...
  pwalletd estimate-fee 01000103... --creating-account`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := runRequest(cmd, false, worker.EstimateFee{Message: args[0], IsCreatingAccount: creatingAccount})
			if err != nil {
				return err
			}
			if levels, ok := resp.Payload.([]worker.FeeLevel); ok {
				for _, level := range levels {
					lamports, err := cast.ToUint64E(level.FeePerTx)
					if err != nil {
						continue
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "fee per transaction: %s SOL\n", fees.LamportsToSOL(lamports))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&creatingAccount, "creating-account", false, "Include rent for a new token account")
	return cmd
}

func pushTxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push-tx <signed-tx>",
		Short: "Broadcast a signed transaction and wait until it lands",
		Long: `
Broadcast a signed transaction (hex, base58 or base64) and follow it until it is
confirmed, fails on chain or its blockhash expires. The signed bytes are
rebroadcast unchanged while the transaction is pending.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runRequest(cmd, true, worker.PushTransaction{Payload: args[0]})
			return err
		},
	}
}

func txStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tx-status <signature>",
		Short: "Show the stored status of a submitted transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runRequest(cmd, true, worker.GetTransactionStatus{Signature: args[0]})
			return err
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print pwalletd version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Name:       %s\n", "pwalletd")
			fmt.Fprintf(cmd.OutOrStdout(), "Version:    %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Commit:     %s\n", Commit)
		},
	}
}

// runRequest executes one worker request and prints the response as JSON.
func runRequest(cmd *cobra.Command, withStore bool, req worker.Request) (worker.Response, error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, withStore, nil)
	if err != nil {
		return worker.Response{}, err
	}
	defer rt.Close()

	resp := rt.worker.Handle(ctx, req)
	if err := printJSON(cmd, resp); err != nil {
		return resp, err
	}
	if resp.Error != nil {
		return resp, resp.Error
	}
	return resp, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
