package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pushchain/push-wallet-link/walletlink/constant"
)

const envPrefix = "PWALLET"

// Flag names double as viper keys. Every key can also be set through the
// environment, e.g. PWALLET_RPC_URL or PWALLET_LOG_LEVEL.
const (
	flagHome       = "home"
	flagRPCURL     = "rpc-url"
	flagLogLevel   = "log-level"
	flagLogFormat  = "log-format"
	flagCommitment = "commitment"
	flagDevice     = "device"
)

const defaultDeviceAddr = "127.0.0.1:21325"

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "pwalletd",
		Short:        "Push Wallet Link Daemon",
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String(flagHome, constant.DefaultNodeHome, "Node home directory")
	flags.StringSlice(flagRPCURL, nil, "Solana RPC endpoint, repeatable (overrides config)")
	flags.String(flagLogLevel, "", "Log level 0-5 (overrides config)")
	flags.String(flagLogFormat, "", "Log format json|console (overrides config)")
	flags.String(flagCommitment, "", "Required commitment confirmed|finalized (overrides config)")
	flags.String(flagDevice, defaultDeviceAddr, "Address of the hardware device bridge")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlags(flags)

	InitRootCmd(rootCmd) // add subcommands like `start` and `version`

	return rootCmd
}
