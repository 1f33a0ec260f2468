package cryptodevs

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/w3types"
	"github.com/pkg/errors"
)

const (
	Name            = "CryptoDevs"
	SourceName      = "contracts/CryptoDevs.sol"
	solidityVersion = "0.8.4"
	GasLimit        = 5_000_000
)

var (
	funcConstructor = w3.MustNewFunc(
		"constructor(string baseURI, address whitelistContract)", "",
	)

	funcMaxTokenIds    = w3.MustNewFunc("maxTokenIds()", "uint256")
	funcTokenIds       = w3.MustNewFunc("tokenIds()", "uint256")
	funcPrice          = w3.MustNewFunc("_price()", "uint256")
	funcPaused         = w3.MustNewFunc("_paused()", "bool")
	funcPresaleStarted = w3.MustNewFunc("presaleStarted()", "bool")
	funcPresaleEnded   = w3.MustNewFunc("presaleEnded()", "uint256")
)

type (
	// ConstructorArgs are passed through untouched; Whitelist is a hex address string.
	ConstructorArgs struct {
		MetadataURL string
		Whitelist   string
	}

	State struct {
		Address        common.Address `json:"address"`
		MaxTokenIDs    *big.Int       `json:"max_token_ids"`
		TokenIDs       *big.Int       `json:"token_ids"`
		Price          *big.Int       `json:"price_wei"`
		Paused         bool           `json:"paused"`
		PresaleStarted bool           `json:"presale_started"`
		PresaleEnded   *big.Int       `json:"presale_ended"`
	}

	Caller interface {
		Call(ctx context.Context, contract common.Address, fn w3types.Func, args []any, returns ...any) error
	}
)

func SolidityVersion() string { return solidityVersion }

// Constructor returns the constructor inputs for artifacts that ship without an ABI.
func Constructor() abi.Arguments {
	return funcConstructor.Args
}

// Values returns the constructor arguments in declaration order.
func (a ConstructorArgs) Values() []any {
	return []any{a.MetadataURL, a.Whitelist}
}

// Inspect reads the collection's public sale state.
func Inspect(ctx context.Context, c Caller, addr common.Address) (State, error) {
	state := State{Address: addr}

	reads := []struct {
		name string
		fn   *w3.Func
		ret  any
	}{
		{"maxTokenIds", funcMaxTokenIds, &state.MaxTokenIDs},
		{"tokenIds", funcTokenIds, &state.TokenIDs},
		{"_price", funcPrice, &state.Price},
		{"_paused", funcPaused, &state.Paused},
		{"presaleStarted", funcPresaleStarted, &state.PresaleStarted},
		{"presaleEnded", funcPresaleEnded, &state.PresaleEnded},
	}
	for _, r := range reads {
		if err := c.Call(ctx, addr, r.fn, nil, r.ret); err != nil {
			return State{}, errors.Wrapf(err, "call %s", r.name)
		}
	}
	return state, nil
}
