package publish

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/cryptodevs/nft-collection/publish/runner"
)

type (
	NetworkOptions struct {
		// GasLimit of 0 estimates gas per deployment.
		GasLimit      uint64
		Confirmations uint64
	}

	// Network binds a Deployer to an ArtifactStore.
	Network struct {
		deployer  *Deployer
		artifacts *ArtifactStore
		opts      NetworkOptions
	}

	Factory struct {
		network  *Network
		artifact *Artifact
	}

	PendingDeployment struct {
		network *Network
		name    string
		result  DeployResult
	}
)

var (
	_ runner.Network           = (*Network)(nil)
	_ runner.ContractFactory   = (*Factory)(nil)
	_ runner.PendingDeployment = (*PendingDeployment)(nil)
)

func NewNetwork(deployer *Deployer, artifacts *ArtifactStore, opts NetworkOptions) *Network {
	if opts.Confirmations == 0 {
		opts.Confirmations = 1
	}
	return &Network{deployer: deployer, artifacts: artifacts, opts: opts}
}

func (n *Network) ContractFactory(_ context.Context, name string) (runner.ContractFactory, error) {
	artifact, err := n.artifacts.Load(name)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("contract", name).Str("artifact", artifact.Path).Int("bytecode_len", len(artifact.Bytecode)).Msg("Loaded artifact")
	return &Factory{network: n, artifact: artifact}, nil
}

func (f *Factory) Artifact() *Artifact {
	return f.artifact
}

// DeployData returns creation bytecode followed by the encoded constructor arguments.
func (f *Factory) DeployData(args ...any) ([]byte, error) {
	values, err := coerceArgs(f.artifact.Constructor, args)
	if err != nil {
		return nil, err
	}
	packed, err := f.artifact.Constructor.Pack(values...)
	if err != nil {
		return nil, errors.Wrap(err, "encode constructor")
	}
	data := make([]byte, 0, len(f.artifact.Bytecode)+len(packed))
	data = append(data, f.artifact.Bytecode...)
	return append(data, packed...), nil
}

func (f *Factory) Deploy(ctx context.Context, args ...any) (runner.PendingDeployment, error) {
	data, err := f.DeployData(args...)
	if err != nil {
		return nil, err
	}
	result, err := f.network.deployer.DeployContract(ctx, data, f.network.opts.GasLimit)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("contract", f.artifact.ContractName).
		Str("tx", result.TxHash.Hex()).
		Str("expected_address", result.ContractAddress.Hex()).
		Msg("Deployment pending")
	return &PendingDeployment{network: f.network, name: f.artifact.ContractName, result: result}, nil
}

func (p *PendingDeployment) TxHash() common.Hash {
	return p.result.TxHash
}

// Deployed waits for the receipt and the configured confirmation depth, then
// checks that code landed at the contract address.
func (p *PendingDeployment) Deployed(ctx context.Context) (common.Address, error) {
	d := p.network.deployer
	receipt, err := d.WaitForReceipt(ctx, p.result.TxHash)
	if err != nil {
		return common.Address{}, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return common.Address{}, errors.Wrapf(ErrDeploymentReverted, "%s tx %s", p.name, receipt.TxHash.Hex())
	}

	addr := p.result.ContractAddress
	if receipt.ContractAddress != (common.Address{}) {
		addr = receipt.ContractAddress
	}

	if err := d.WaitForConfirmations(ctx, receipt, p.network.opts.Confirmations); err != nil {
		return common.Address{}, err
	}

	code, err := d.CodeAt(ctx, addr)
	if err != nil {
		return common.Address{}, err
	}
	if len(code) == 0 {
		return common.Address{}, errors.Wrapf(ErrNoCode, "%s at %s", p.name, addr.Hex())
	}
	return addr, nil
}

// coerceArgs converts loosely typed inputs (hex strings for addresses, decimal
// strings for integers) into the Go types the ABI encoder expects.
func coerceArgs(inputs abi.Arguments, args []any) ([]any, error) {
	if len(inputs) != len(args) {
		return nil, errors.Errorf("constructor takes %d arguments, got %d", len(inputs), len(args))
	}
	out := make([]any, len(args))
	for i, arg := range args {
		value, err := coerceArg(inputs[i].Type, arg)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d (%s)", i, inputs[i].Name)
		}
		out[i] = value
	}
	return out, nil
}

func coerceArg(typ abi.Type, arg any) (any, error) {
	s, isString := arg.(string)
	if !isString {
		return arg, nil
	}
	switch typ.T {
	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, errors.Errorf("invalid address %q", s)
		}
		return common.HexToAddress(s), nil
	case abi.UintTy, abi.IntTy:
		if typ.Size <= 64 {
			return nil, errors.Errorf("string value for %s not supported", typ.String())
		}
		n, ok := new(big.Int).SetString(strings.TrimSpace(s), 0)
		if !ok {
			return nil, errors.Errorf("invalid integer %q", s)
		}
		return n, nil
	}
	return arg, nil
}
