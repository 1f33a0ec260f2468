package publishtest

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// CryptoDevsABI is the constructor fragment of the compiled collection.
const CryptoDevsABI = `[{"inputs":[{"internalType":"string","name":"baseURI","type":"string"},{"internalType":"address","name":"whitelistContract","type":"address"}],"stateMutability":"nonpayable","type":"constructor"}]`

var CreationCode = []byte{0x60, 0x80, 0x60, 0x40, 0x52, 0x34, 0x80, 0x15, 0x61, 0x00, 0x10}

// WriteHardhatArtifact writes name's artifact under dir the way `hardhat compile`
// lays it out and returns the file path.
func WriteHardhatArtifact(dir, name, abiJSON string, bytecode []byte) (string, error) {
	path := filepath.Join(dir, "contracts", name+".sol", name+".json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, "create artifact dir")
	}
	content := fmt.Sprintf(
		`{"_format":"hh-sol-artifact-1","contractName":%q,"sourceName":"contracts/%s.sol","abi":%s,"bytecode":"0x%s","deployedBytecode":"0x","linkReferences":{},"deployedLinkReferences":{}}`,
		name, name, abiJSON, hex.EncodeToString(bytecode),
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", errors.Wrap(err, "write artifact")
	}
	return path, nil
}
