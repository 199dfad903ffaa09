package constant

import "os"

// <NodeDir>/                    (e.g., /home/wallet/.pwallet)
// └── config/
//	└── pwallet_config.json
// └── data/
//	└── wallet_link.db

const (
	NodeDir = ".pwallet"

	ConfigSubdir   = "config"
	ConfigFileName = "pwallet_config.json"

	DataSubdir = "data"

	// MainnetGenesisHash identifies Solana mainnet-beta; any other genesis is a test network.
	MainnetGenesisHash = "5eykt4UsFv8P8NJdTREpY1vzqKqZKvdpKuc147dw2N9d"

	// TokenAccountSize is the byte length of an SPL token account, used for rent exemption.
	TokenAccountSize = 165

	// LamportsDecimals is the number of decimals of SOL.
	LamportsDecimals = 9
)

var DefaultNodeHome = os.ExpandEnv("$HOME/") + NodeDir
