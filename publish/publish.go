package publish

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"
	"github.com/lmittmann/w3/w3types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultPollInterval = 2 * time.Second

var (
	ErrDeploymentReverted = errors.New("deployment reverted")
	ErrNoCode             = errors.New("no contract code at address")

	errHeadBehind = errors.New("confirmation depth not reached")
)

type (
	DeployResult struct {
		TxHash          common.Hash
		ContractAddress common.Address
		Nonce           uint64
	}

	// Options tunes a Deployer. Zero values mean "ask the node".
	Options struct {
		ChainID      uint64
		GasFeeCap    *big.Int
		GasTipCap    *big.Int
		PollInterval time.Duration
	}

	// Reader is the read-only half of the node connection.
	Reader struct {
		client       *w3.Client
		pollInterval time.Duration
	}

	Deployer struct {
		*Reader
		signer    types.Signer
		chainID   uint64
		key       *ecdsa.PrivateKey
		address   common.Address
		gasFeeCap *big.Int
		gasTipCap *big.Int
	}
)

func DialReader(rpcURL string, pollInterval time.Duration) (*Reader, error) {
	client, err := w3.Dial(rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "dial rpc")
	}
	return newReader(client, pollInterval), nil
}

func newReader(client *w3.Client, pollInterval time.Duration) *Reader {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Reader{client: client, pollInterval: pollInterval}
}

func NewDeployer(ctx context.Context, rpcURL string, privateKey *ecdsa.PrivateKey, opts Options) (*Deployer, error) {
	client, err := w3.Dial(rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "dial rpc")
	}
	d, err := newDeployer(ctx, client, privateKey, opts)
	if err != nil {
		client.Close()
		return nil, err
	}
	return d, nil
}

func newDeployer(ctx context.Context, client *w3.Client, privateKey *ecdsa.PrivateKey, opts Options) (*Deployer, error) {
	var chainID uint64
	if err := client.CallCtx(ctx, eth.ChainID().Returns(&chainID)); err != nil {
		return nil, errors.Wrap(err, "get chain id")
	}
	if opts.ChainID != 0 && opts.ChainID != chainID {
		return nil, errors.Errorf("chain id mismatch: configured %d, node reports %d", opts.ChainID, chainID)
	}

	return &Deployer{
		Reader:    newReader(client, opts.PollInterval),
		signer:    types.NewLondonSigner(new(big.Int).SetUint64(chainID)),
		chainID:   chainID,
		key:       privateKey,
		address:   crypto.PubkeyToAddress(privateKey.PublicKey),
		gasFeeCap: opts.GasFeeCap,
		gasTipCap: opts.GasTipCap,
	}, nil
}

func (d *Deployer) Address() common.Address {
	return d.address
}

func (d *Deployer) ChainID() uint64 {
	return d.chainID
}

func (r *Reader) Close() error {
	return r.client.Close()
}

func (d *Deployer) getNonce(ctx context.Context) (uint64, error) {
	var nonce uint64
	if err := d.client.CallCtx(ctx, eth.Nonce(d.address, nil).Returns(&nonce)); err != nil {
		return 0, errors.Wrap(err, "get nonce")
	}
	return nonce, nil
}

// fees returns the EIP-1559 fee cap and tip cap, filling unset values from the node.
func (d *Deployer) fees(ctx context.Context) (feeCap, tipCap *big.Int, err error) {
	tipCap = d.gasTipCap
	if tipCap == nil || tipCap.Sign() == 0 {
		if err := d.client.CallCtx(ctx, eth.GasTipCap().Returns(&tipCap)); err != nil {
			return nil, nil, errors.Wrap(err, "get gas tip cap")
		}
	}

	feeCap = d.gasFeeCap
	if feeCap == nil || feeCap.Sign() == 0 {
		var gasPrice *big.Int
		if err := d.client.CallCtx(ctx, eth.GasPrice().Returns(&gasPrice)); err != nil {
			return nil, nil, errors.Wrap(err, "get gas price")
		}
		feeCap = new(big.Int).Add(new(big.Int).Mul(gasPrice, big.NewInt(2)), tipCap)
	}

	if feeCap.Cmp(tipCap) < 0 {
		return nil, nil, errors.Errorf("gas fee cap %s below tip cap %s", feeCap, tipCap)
	}
	return feeCap, tipCap, nil
}

func (d *Deployer) EstimateGas(ctx context.Context, data []byte) (uint64, error) {
	var gas uint64
	msg := &w3types.Message{From: d.address, Input: data}
	if err := d.client.CallCtx(ctx, eth.EstimateGas(msg, nil).Returns(&gas)); err != nil {
		return 0, errors.Wrap(err, "estimate gas")
	}
	return gas, nil
}

func (d *Deployer) sendTx(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	signedTx, err := types.SignTx(tx, d.signer, d.key)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "sign tx")
	}
	var hash common.Hash
	if err := d.client.CallCtx(ctx, eth.SendTx(signedTx).Returns(&hash)); err != nil {
		return common.Hash{}, errors.Wrap(err, "send tx")
	}
	if hash != signedTx.Hash() {
		return common.Hash{}, errors.Errorf("send tx: node returned hash %s, signed %s", hash.Hex(), signedTx.Hash().Hex())
	}
	return hash, nil
}

// DeployContract submits a contract-creation transaction. data is the creation
// bytecode followed by the ABI-encoded constructor arguments.
func (d *Deployer) DeployContract(ctx context.Context, data []byte, gasLimit uint64) (DeployResult, error) {
	nonce, err := d.getNonce(ctx)
	if err != nil {
		return DeployResult{}, err
	}
	feeCap, tipCap, err := d.fees(ctx)
	if err != nil {
		return DeployResult{}, err
	}
	if gasLimit == 0 {
		if gasLimit, err = d.EstimateGas(ctx, data); err != nil {
			return DeployResult{}, err
		}
	}

	contractAddr := crypto.CreateAddress(d.address, nonce)

	//  EIP-1559 only
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(d.chainID),
		Nonce:     nonce,
		GasFeeCap: feeCap,
		GasTipCap: tipCap,
		Gas:       gasLimit,
		Data:      data,
	})

	txHash, err := d.sendTx(ctx, tx)
	if err != nil {
		return DeployResult{}, err
	}

	log.Debug().
		Str("tx", txHash.Hex()).
		Uint64("nonce", nonce).
		Uint64("gas", gasLimit).
		Str("fee_cap", feeCap.String()).
		Str("tip_cap", tipCap.String()).
		Msg("Contract creation submitted")

	return DeployResult{
		TxHash:          txHash,
		ContractAddress: contractAddr,
		Nonce:           nonce,
	}, nil
}

// WaitForReceipt polls until the node knows the receipt of txHash. Only a
// missing receipt is retried; any other RPC error ends the wait.
func (r *Reader) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	poll := func() error {
		err := r.client.CallCtx(ctx, eth.TxReceipt(txHash).Returns(&receipt))
		if errors.Is(err, w3.ErrNotFound) {
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(poll, backoff.WithContext(backoff.NewConstantBackOff(r.pollInterval), ctx)); err != nil {
		return nil, errors.Wrapf(err, "wait receipt %s", txHash.Hex())
	}
	return receipt, nil
}

// WaitForConfirmations blocks until the block holding receipt is buried under
// confirmations-1 further blocks. One confirmation is the receipt itself.
func (r *Reader) WaitForConfirmations(ctx context.Context, receipt *types.Receipt, confirmations uint64) error {
	if confirmations <= 1 || receipt.BlockNumber == nil {
		return nil
	}
	target := new(big.Int).Add(receipt.BlockNumber, new(big.Int).SetUint64(confirmations-1))

	poll := func() error {
		head, err := r.BlockNumber(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if head.Cmp(target) < 0 {
			log.Debug().Str("head", head.String()).Str("target", target.String()).Msg("Waiting for confirmations")
			return errHeadBehind
		}
		return nil
	}

	if err := backoff.Retry(poll, backoff.WithContext(backoff.NewConstantBackOff(r.pollInterval), ctx)); err != nil {
		return errors.Wrapf(err, "wait %d confirmations", confirmations)
	}
	return nil
}

func (r *Reader) BlockNumber(ctx context.Context) (*big.Int, error) {
	var head *big.Int
	if err := r.client.CallCtx(ctx, eth.BlockNumber().Returns(&head)); err != nil {
		return nil, errors.Wrap(err, "get block number")
	}
	return head, nil
}

func (r *Reader) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	var code []byte
	if err := r.client.CallCtx(ctx, eth.Code(addr, nil).Returns(&code)); err != nil {
		return nil, errors.Wrapf(err, "get code %s", addr.Hex())
	}
	return code, nil
}

// Call performs an eth_call of fn on contract and decodes the result into returns.
func (r *Reader) Call(ctx context.Context, contract common.Address, fn w3types.Func, args []any, returns ...any) error {
	return r.client.CallCtx(ctx, eth.CallFunc(contract, fn, args...).Returns(returns...))
}
