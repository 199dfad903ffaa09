package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pushchain/push-wallet-link/walletlink/device"
	"github.com/pushchain/push-wallet-link/walletlink/logger"
	"github.com/pushchain/push-wallet-link/walletlink/method"
)

const deviceDialTimeout = 5 * time.Second

// withExecutor dials the device bridge and runs fn against a method executor.
func withExecutor(cmd *cobra.Command, fn func(ctx context.Context, exec *method.Executor) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.Init(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := viper.GetString(flagDevice)
	if addr == "" {
		addr = defaultDeviceAddr
	}
	channel, err := device.DialStream(ctx, addr, deviceDialTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to device at %s: %w", addr, err)
	}
	defer channel.Close()

	session := device.NewSession(channel, nil, log)
	return fn(ctx, method.NewExecutor(session, log))
}

func getAddressCmd() *cobra.Command {
	var (
		coin     string
		paths    []string
		expected []string
		noShow   bool
		chunkify bool
	)
	cmd := &cobra.Command{
		Use:   "get-address",
		Short: "Export one or more addresses from the hardware device",
		Long: `
Export addresses from the hardware device. Passing --path more than once
requests a bundle; progress for every finished item is written to stderr.
When addresses are displayed on the device they are first read silently and
then compared with what the device shows.
`,
		Example: `  pwalletd get-address --path "m/44'/501'/0'/0'"
  pwalletd get-address --coin binance --path "m/44'/714'/0'/0/0" --path "m/44'/714'/1'/0/0" --no-display`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(expected) > 0 && len(expected) != len(paths) {
				return fmt.Errorf("--address must be given once per --path")
			}

			show := !noShow
			params := make([]method.AddressParams, 0, len(paths))
			for i, p := range paths {
				item := method.AddressParams{Path: p, ShowOnDevice: &show, Chunkify: chunkify}
				if len(expected) > 0 {
					item.Address = strings.TrimSpace(expected[i])
				}
				params = append(params, item)
			}

			req := method.GetAddressRequest{Coin: coin}
			if len(params) == 1 {
				req.AddressParams = params[0]
			} else {
				req.Bundle = params
			}

			return withExecutor(cmd, func(ctx context.Context, exec *method.Executor) error {
				sink := method.ProgressFunc(func(e method.ProgressEvent) {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] done\n", e.Progress+1, e.Total)
				})
				resp, err := exec.GetAddress(ctx, req, sink)
				if err != nil {
					return err
				}
				return printJSON(cmd, resp.Value())
			})
		},
	}
	cmd.Flags().StringVar(&coin, "coin", "solana", "Coin to export (solana, binance, ethereum)")
	cmd.Flags().StringArrayVar(&paths, "path", nil, "BIP-32 derivation path, repeatable")
	cmd.Flags().StringArrayVar(&expected, "address", nil, "Expected address for the matching --path")
	cmd.Flags().BoolVar(&noShow, "no-display", false, "Do not show the address on the device")
	cmd.Flags().BoolVar(&chunkify, "chunkify", false, "Display the address in chunks")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func signTxCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:     "sign-tx <message-hex>",
		Short:   "Sign a serialized Solana message on the hardware device",
		Example: `  pwalletd sign-tx --path "m/44'/501'/0'/0'" 0x01000103...`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message, err := hex.DecodeString(strings.TrimPrefix(args[0], "0x"))
			if err != nil {
				return fmt.Errorf("message is not valid hex: %w", err)
			}
			return withExecutor(cmd, func(ctx context.Context, exec *method.Executor) error {
				signed, err := exec.SignTransaction(ctx, method.SignTransactionRequest{Path: path, SerializedTx: message})
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]string{"signature": hex.EncodeToString(signed.Signature)})
			})
		},
	}
	cmd.Flags().StringVar(&path, "path", "m/44'/501'/0'/0'", "BIP-32 derivation path of the signing key")
	return cmd
}
