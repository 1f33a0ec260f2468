// Package runner deploys the Crypto Devs collection through an abstract
// network client and reports the resulting address.
package runner

import (
	"context"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/cryptodevs/nft-collection/publish/contracts/cryptodevs"
)

// AddressLabel prefixes the single line written on success.
const AddressLabel = "Crypto Devs Contract Address:"

type (
	// Network hands out factories for compiled contracts.
	Network interface {
		ContractFactory(ctx context.Context, name string) (ContractFactory, error)
	}

	// ContractFactory submits contract-creation transactions.
	ContractFactory interface {
		Deploy(ctx context.Context, args ...any) (PendingDeployment, error)
	}

	// PendingDeployment resolves once the network confirms the creation.
	PendingDeployment interface {
		Deployed(ctx context.Context) (common.Address, error)
	}

	Params struct {
		WhitelistAddress string
		MetadataURL      string
	}
)

// Deploy creates a CryptoDevs contract with (MetadataURL, WhitelistAddress) as
// constructor arguments and writes the confirmed address to out. Inputs are not
// validated here; the network client rejects what it cannot encode. Nothing is
// written to out on failure.
func Deploy(ctx context.Context, network Network, params Params, out io.Writer) (common.Address, error) {
	factory, err := network.ContractFactory(ctx, cryptodevs.Name)
	if err != nil {
		return common.Address{}, errors.Wrapf(err, "get %s factory", cryptodevs.Name)
	}

	args := cryptodevs.ConstructorArgs{
		MetadataURL: params.MetadataURL,
		Whitelist:   params.WhitelistAddress,
	}
	log.Info().
		Str("contract", cryptodevs.Name).
		Str("metadata_url", args.MetadataURL).
		Str("whitelist", args.Whitelist).
		Msg("Deploying contract")

	pending, err := factory.Deploy(ctx, args.Values()...)
	if err != nil {
		return common.Address{}, errors.Wrapf(err, "deploy %s", cryptodevs.Name)
	}

	log.Info().Msg("Waiting for confirmation")
	address, err := pending.Deployed(ctx)
	if err != nil {
		return common.Address{}, errors.Wrapf(err, "confirm %s", cryptodevs.Name)
	}
	log.Info().Str("address", address.Hex()).Msg("Contract deployed")

	if _, err := fmt.Fprintln(out, AddressLabel, address.Hex()); err != nil {
		return address, errors.Wrap(err, "write address")
	}
	return address, nil
}
