// Package publishtest runs an in-memory JSON-RPC node that mines contract
// creations instantly. It answers only the eth_ methods the deployer uses.
package publishtest

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http/httptest"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// AnvilKey is the first default anvil/hardhat account. Never fund it on a real network.
const AnvilKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var RuntimeCode = []byte{0x60, 0x80, 0x60, 0x40, 0x52}

type Node struct {
	mu sync.Mutex

	ChainID     uint64
	GasPrice    *big.Int
	TipCap      *big.Int
	GasEstimate uint64

	// Revert marks every mined creation as failed.
	Revert bool
	// OmitCode mines successfully but leaves no code behind.
	OmitCode bool
	// SendErr is returned from eth_sendRawTransaction when set.
	SendErr error
	// ReceiptDelay is how many receipt polls return null before the receipt shows up.
	ReceiptDelay int
	// PollErr fails eth_getTransactionReceipt and eth_blockNumber when set.
	PollErr error
	// AdvanceOnPoll mines an empty block on every eth_blockNumber call.
	AdvanceOnPoll bool
	// CallResults maps a 4-byte selector to raw eth_call output.
	CallResults map[[4]byte][]byte

	head     uint64
	nonces   map[common.Address]uint64
	code     map[common.Address][]byte
	receipts map[common.Hash]*types.Receipt
	polls    map[common.Hash]int
	sent     []*types.Transaction
}

func NewNode(chainID uint64) *Node {
	return &Node{
		ChainID:     chainID,
		GasPrice:    big.NewInt(10_000_000_000),
		TipCap:      big.NewInt(1_000_000_000),
		GasEstimate: 1_234_567,
		CallResults: map[[4]byte][]byte{},
		head:        1,
		nonces:      map[common.Address]uint64{},
		code:        map[common.Address][]byte{},
		receipts:    map[common.Hash]*types.Receipt{},
		polls:       map[common.Hash]int{},
	}
}

// Server returns an RPC server exposing the node under the eth namespace.
func (n *Node) Server() (*rpc.Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("eth", &ethAPI{node: n}); err != nil {
		return nil, errors.Wrap(err, "register eth api")
	}
	return srv, nil
}

// DialInProc connects an rpc.Client to the node without a network listener.
func (n *Node) DialInProc() (*rpc.Client, error) {
	srv, err := n.Server()
	if err != nil {
		return nil, err
	}
	return rpc.DialInProc(srv), nil
}

// HTTPServer serves the node over HTTP; callers must Close it.
func (n *Node) HTTPServer() (*httptest.Server, error) {
	srv, err := n.Server()
	if err != nil {
		return nil, err
	}
	return httptest.NewServer(srv), nil
}

func (n *Node) SetNonce(addr common.Address, nonce uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nonces[addr] = nonce
}

func (n *Node) SetCode(addr common.Address, code []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.code[addr] = code
}

func (n *Node) Head() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.head
}

// Sent returns the transactions accepted so far.
func (n *Node) Sent() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*types.Transaction(nil), n.sent...)
}

func (n *Node) signer() types.Signer {
	return types.LatestSignerForChainID(new(big.Int).SetUint64(n.ChainID))
}

type ethAPI struct {
	node *Node
}

func (api *ethAPI) ChainId() hexutil.Uint64 {
	return hexutil.Uint64(api.node.ChainID)
}

func (api *ethAPI) GasPrice() *hexutil.Big {
	api.node.mu.Lock()
	defer api.node.mu.Unlock()
	return (*hexutil.Big)(api.node.GasPrice)
}

func (api *ethAPI) MaxPriorityFeePerGas() *hexutil.Big {
	api.node.mu.Lock()
	defer api.node.mu.Unlock()
	return (*hexutil.Big)(api.node.TipCap)
}

func (api *ethAPI) EstimateGas(_ context.Context, _ map[string]any, _ *rpc.BlockNumberOrHash, _ *json.RawMessage) hexutil.Uint64 {
	api.node.mu.Lock()
	defer api.node.mu.Unlock()
	return hexutil.Uint64(api.node.GasEstimate)
}

func (api *ethAPI) GetTransactionCount(_ context.Context, addr common.Address, _ *rpc.BlockNumberOrHash) hexutil.Uint64 {
	api.node.mu.Lock()
	defer api.node.mu.Unlock()
	return hexutil.Uint64(api.node.nonces[addr])
}

func (api *ethAPI) BlockNumber() (hexutil.Uint64, error) {
	n := api.node
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.PollErr != nil {
		return 0, n.PollErr
	}
	if n.AdvanceOnPoll {
		n.head++
	}
	return hexutil.Uint64(n.head), nil
}

func (api *ethAPI) GetCode(_ context.Context, addr common.Address, _ *rpc.BlockNumberOrHash) hexutil.Bytes {
	api.node.mu.Lock()
	defer api.node.mu.Unlock()
	return api.node.code[addr]
}

func (api *ethAPI) Call(_ context.Context, msg map[string]any, _ *rpc.BlockNumberOrHash, _ *json.RawMessage) (hexutil.Bytes, error) {
	input, _ := msg["input"].(string)
	if input == "" {
		input, _ = msg["data"].(string)
	}
	data, err := hexutil.Decode(input)
	if err != nil || len(data) < 4 {
		return nil, errors.New("execution reverted")
	}

	api.node.mu.Lock()
	defer api.node.mu.Unlock()
	out, ok := api.node.CallResults[[4]byte(data[:4])]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

func (api *ethAPI) SendRawTransaction(_ context.Context, raw hexutil.Bytes) (common.Hash, error) {
	n := api.node
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.SendErr != nil {
		return common.Hash{}, n.SendErr
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, err
	}
	from, err := types.Sender(n.signer(), tx)
	if err != nil {
		return common.Hash{}, err
	}
	if tx.Nonce() != n.nonces[from] {
		return common.Hash{}, errors.Errorf("nonce mismatch: have %d, want %d", tx.Nonce(), n.nonces[from])
	}
	n.nonces[from]++
	n.head++
	n.sent = append(n.sent, tx)

	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: 21_000,
		GasUsed:           21_000,
		Logs:              []*types.Log{},
		TxHash:            tx.Hash(),
		BlockHash:         common.BigToHash(new(big.Int).SetUint64(n.head)),
		BlockNumber:       new(big.Int).SetUint64(n.head),
	}
	if tx.To() == nil {
		receipt.ContractAddress = crypto.CreateAddress(from, tx.Nonce())
		switch {
		case n.Revert:
			receipt.Status = types.ReceiptStatusFailed
		case !n.OmitCode:
			n.code[receipt.ContractAddress] = RuntimeCode
		}
	}
	n.receipts[tx.Hash()] = receipt
	return tx.Hash(), nil
}

func (api *ethAPI) GetTransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	n := api.node
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.PollErr != nil {
		return nil, n.PollErr
	}
	if n.polls[hash] < n.ReceiptDelay {
		n.polls[hash]++
		return nil, nil
	}
	return n.receipts[hash], nil
}
