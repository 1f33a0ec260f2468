package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lmittmann/w3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptodevs/nft-collection/publish/contracts/cryptodevs"
	"github.com/cryptodevs/nft-collection/publish/publishtest"
)

const testWhitelist = "0x9A676e781A523b5d0C0e43731313A708CB607508"

type fixture struct {
	node    *publishtest.Node
	envFile string
	stdout  bytes.Buffer
	stderr  bytes.Buffer
}

func newFixture(t *testing.T, extraEnv string) *fixture {
	t.Helper()
	for _, key := range []string{
		"WHITELIST_CONTRACT_ADDRESS", "METADATA_URL", "RPC_URL", "PRIVATE_KEY",
		"PUBLIC_ADDRESS", "CHAIN_ID", "GAS_LIMIT", "GAS_FEE_CAP", "GAS_TIP_CAP",
		"CONFIRMATIONS", "POLL_INTERVAL", "TIMEOUT_SECONDS", "ARTIFACTS_DIR", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	f := &fixture{node: publishtest.NewNode(31337)}
	server, err := f.node.HTTPServer()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	dir := t.TempDir()
	artifacts := filepath.Join(dir, "artifacts")
	_, err = publishtest.WriteHardhatArtifact(artifacts, cryptodevs.Name, publishtest.CryptoDevsABI, publishtest.CreationCode)
	require.NoError(t, err)

	f.envFile = filepath.Join(dir, ".env")
	env := fmt.Sprintf(`WHITELIST_CONTRACT_ADDRESS=%s
METADATA_URL=https://example.test/meta/
RPC_URL=%s
PRIVATE_KEY=0x%s
CHAIN_ID=31337
POLL_INTERVAL=5ms
TIMEOUT_SECONDS=10
ARTIFACTS_DIR=%s
LOG_LEVEL=error
%s`, testWhitelist, server.URL, publishtest.AnvilKey, artifacts, extraEnv)
	require.NoError(t, os.WriteFile(f.envFile, []byte(env), 0o600))
	return f
}

func (f *fixture) run(args ...string) error {
	return newApp(&f.stdout, &f.stderr).Run(append([]string{"cd-publish"}, args...))
}

func deployerAddress(t *testing.T) common.Address {
	key, err := crypto.HexToECDSA(publishtest.AnvilKey)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(key.PublicKey)
}

func TestDeploy(t *testing.T) {
	f := newFixture(t, "")

	require.NoError(t, f.run("--env-file", f.envFile))

	want := crypto.CreateAddress(deployerAddress(t), 0)
	assert.Equal(t, "Crypto Devs Contract Address: "+want.Hex()+"\n", f.stdout.String())
	require.Len(t, f.node.Sent(), 1)
}

func TestRunExitStatus(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newFixture(t, "")

		code := run([]string{"cd-publish", "--env-file", f.envFile}, &f.stdout, &f.stderr)
		assert.Equal(t, 0, code)
		assert.True(t, strings.HasPrefix(f.stdout.String(), "Crypto Devs Contract Address: 0x"))
		assert.NotContains(t, f.stderr.String(), "error:")
	})

	t.Run("failure", func(t *testing.T) {
		f := newFixture(t, "")
		f.node.Revert = true

		code := run([]string{"cd-publish", "--env-file", f.envFile}, &f.stdout, &f.stderr)
		assert.Equal(t, 1, code)
		assert.Empty(t, f.stdout.String())
		assert.True(t, strings.HasPrefix(f.stderr.String(), "error: "), f.stderr.String())
		assert.Contains(t, f.stderr.String(), "deployment reverted")
	})
}

func TestDeployEmptyMetadataURL(t *testing.T) {
	f := newFixture(t, "METADATA_URL=\n")

	require.NoError(t, f.run("--env-file", f.envFile))
	assert.Contains(t, f.stdout.String(), "Crypto Devs Contract Address: ")
	require.Len(t, f.node.Sent(), 1)
}

func TestDeployFailures(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		setup func(*publishtest.Node)
	}{
		{name: "reverted constructor", setup: func(n *publishtest.Node) { n.Revert = true }},
		{name: "send rejected", setup: func(n *publishtest.Node) { n.SendErr = fmt.Errorf("insufficient funds") }},
		{name: "malformed whitelist", env: map[string]string{"WHITELIST_CONTRACT_ADDRESS": "0xnot-an-address"}},
		{name: "wrong chain", env: map[string]string{"CHAIN_ID": "1"}},
		{name: "mismatched public address", env: map[string]string{"PUBLIC_ADDRESS": "0x0000000000000000000000000000000000000001"}},
		{name: "invalid rpc url", env: map[string]string{"RPC_URL": "-"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "")
			if tt.setup != nil {
				tt.setup(f.node)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			err := f.run("--env-file", f.envFile)
			require.Error(t, err)
			assert.Empty(t, f.stdout.String())
		})
	}
}

func TestDeployMissingArtifact(t *testing.T) {
	f := newFixture(t, "")
	t.Setenv("ARTIFACTS_DIR", t.TempDir())

	err := f.run("--env-file", f.envFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contract artifact not found")
	assert.Empty(t, f.stdout.String())
	assert.Empty(t, f.node.Sent())
}

func TestDeployRejectsArguments(t *testing.T) {
	f := newFixture(t, "")

	err := f.run("--env-file", f.envFile, "extra")
	require.Error(t, err)
	assert.Empty(t, f.node.Sent())
}

func TestInspect(t *testing.T) {
	f := newFixture(t, "")
	addr := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	f.node.SetCode(addr, publishtest.RuntimeCode)

	results := []struct {
		sig   string
		ret   string
		value any
	}{
		{"maxTokenIds()", "uint256", big.NewInt(20)},
		{"tokenIds()", "uint256", big.NewInt(2)},
		{"_price()", "uint256", big.NewInt(10_000_000_000_000_000)},
		{"_paused()", "bool", false},
		{"presaleStarted()", "bool", true},
		{"presaleEnded()", "uint256", big.NewInt(1_700_000_300)},
	}
	for _, r := range results {
		fn := w3.MustNewFunc(r.sig, r.ret)
		out, err := fn.Returns.Pack(r.value)
		require.NoError(t, err)
		f.node.CallResults[fn.Selector] = out
	}

	require.NoError(t, f.run("--env-file", f.envFile, "inspect", "--address", addr.Hex()))

	var state cryptodevs.State
	require.NoError(t, json.Unmarshal(f.stdout.Bytes(), &state))
	assert.Equal(t, addr, state.Address)
	assert.Equal(t, int64(20), state.MaxTokenIDs.Int64())
	assert.Equal(t, int64(2), state.TokenIDs.Int64())
	assert.True(t, state.PresaleStarted)
	assert.False(t, state.Paused)
}

func TestInspectWithoutCode(t *testing.T) {
	f := newFixture(t, "")

	err := f.run("--env-file", f.envFile, "inspect", "--address", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	require.Error(t, err)
	assert.Empty(t, f.stdout.String())
}

func TestParsePrivateKey(t *testing.T) {
	_, addr, err := parsePrivateKey("0x" + publishtest.AnvilKey)
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", addr.Hex())

	_, _, err = parsePrivateKey("zz")
	assert.Error(t, err)
}
