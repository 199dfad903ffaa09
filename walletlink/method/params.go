package method

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"

	"github.com/pushchain/push-wallet-link/walletlink/errors"
)

// Coin describes how addresses of one network are requested from the device
type Coin struct {
	Name            string
	AddressCommand  string
	AddressResponse string
	// MinPathDepth is the minimum number of derivation path components
	MinPathDepth int
}

var coins = map[string]Coin{
	"solana":   {Name: "solana", AddressCommand: "SolanaGetAddress", AddressResponse: "SolanaAddress", MinPathDepth: 2},
	"binance":  {Name: "binance", AddressCommand: "BinanceGetAddress", AddressResponse: "BinanceAddress", MinPathDepth: 3},
	"ethereum": {Name: "ethereum", AddressCommand: "EthereumGetAddress", AddressResponse: "EthereumAddress", MinPathDepth: 3},
}

// LookupCoin returns the registry entry for name
func LookupCoin(name string) (Coin, error) {
	c, ok := coins[strings.ToLower(name)]
	if !ok {
		return Coin{}, errors.NewValidationError(fmt.Sprintf("Unsupported coin %q", name))
	}
	return c, nil
}

// ValidatePath parses an absolute BIP-32 path and enforces a minimum depth.
func ValidatePath(path string, minDepth int) (accounts.DerivationPath, error) {
	if !strings.HasPrefix(strings.TrimSpace(path), "m/") {
		return nil, errors.NewValidationError(fmt.Sprintf("Not a valid path %q", path))
	}
	parsed, err := accounts.ParseDerivationPath(path)
	if err != nil {
		return nil, errors.New(errors.CategoryValidation, errors.CodeInvalidParameter,
			fmt.Sprintf("Not a valid path %q", path), err)
	}
	if len(parsed) < minDepth {
		return nil, errors.NewValidationError(fmt.Sprintf("Not a valid path %q: expected at least %d components", path, minDepth))
	}
	return parsed, nil
}

// AddressParams is one address request. Address, when set, is the address
// the caller expects the device to produce.
type AddressParams struct {
	Path         string `json:"path"`
	Address      string `json:"address,omitempty"`
	ShowOnDevice *bool  `json:"showOnTrezor,omitempty"`
	Chunkify     bool   `json:"chunkify,omitempty"`
}

// GetAddressRequest is either a single request or a bundle.
type GetAddressRequest struct {
	Coin string `json:"coin"`
	AddressParams
	Bundle []AddressParams `json:"bundle,omitempty"`
}

// addressBatchItem is a validated AddressParams
type addressBatchItem struct {
	path        accounts.DerivationPath
	expected    string
	showDisplay bool
	chunkify    bool
}

// deviceAddressParams is the GetAddress message sent to the device
type deviceAddressParams struct {
	AddressN    []uint32 `json:"address_n"`
	ShowDisplay bool     `json:"show_display"`
	Chunkify    bool     `json:"chunkify"`
}

// normalize turns a single request into a one-element batch and validates
// every item before any device I/O.
func (r GetAddressRequest) normalize(coin Coin) ([]addressBatchItem, bool, error) {
	bundled := r.Bundle != nil
	params := r.Bundle
	if !bundled {
		params = []AddressParams{r.AddressParams}
	}
	if len(params) == 0 {
		return nil, bundled, errors.NewValidationError("Bundle must contain at least one item")
	}

	items := make([]addressBatchItem, 0, len(params))
	for i, p := range params {
		path, err := ValidatePath(p.Path, coin.MinPathDepth)
		if err != nil {
			if bundled {
				if typed, ok := err.(*errors.TypedError); ok {
					typed.WithContext("index", i)
				}
			}
			return nil, bundled, err
		}
		show := true
		if p.ShowOnDevice != nil {
			show = *p.ShowOnDevice
		}
		items = append(items, addressBatchItem{
			path:        path,
			expected:    p.Address,
			showDisplay: show,
			chunkify:    p.Chunkify,
		})
	}
	return items, bundled, nil
}

// SignTransactionRequest asks the device to sign a serialized Solana message
type SignTransactionRequest struct {
	Path         string `json:"path"`
	SerializedTx []byte `json:"serializedTx"`
}
