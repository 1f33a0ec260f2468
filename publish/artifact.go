package publish

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/pkg/errors"
)

var ErrArtifactNotFound = errors.New("contract artifact not found")

type (
	// Artifact is a compiled contract: creation bytecode plus the constructor inputs.
	Artifact struct {
		ContractName string
		SourceName   string
		Path         string
		ABI          *abi.ABI
		Constructor  abi.Arguments
		Bytecode     []byte
	}

	// ArtifactStore resolves contract names to compiled artifacts on disk.
	ArtifactStore struct {
		dir          string
		constructors map[string]abi.Arguments
	}

	compiledArtifact struct {
		ContractName   string          `json:"contractName"`
		SourceName     string          `json:"sourceName"`
		ABI            json.RawMessage `json:"abi"`
		Bytecode       json.RawMessage `json:"bytecode"`
		LinkReferences json.RawMessage `json:"linkReferences"`
	}

	foundryBytecode struct {
		Object         string          `json:"object"`
		LinkReferences json.RawMessage `json:"linkReferences"`
	}
)

func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir, constructors: map[string]abi.Arguments{}}
}

// RegisterConstructor sets the constructor inputs used for raw .bin artifacts,
// which carry no ABI of their own.
func (s *ArtifactStore) RegisterConstructor(name string, inputs abi.Arguments) {
	s.constructors[name] = inputs
}

// Candidates lists the paths Load tries for name, in order.
func (s *ArtifactStore) Candidates(name string) []string {
	return []string{
		filepath.Join(s.dir, "contracts", name+".sol", name+".json"),
		filepath.Join(s.dir, name+".sol", name+".json"),
		filepath.Join(s.dir, name+".json"),
		filepath.Join(s.dir, name+".bin"),
	}
}

func (s *ArtifactStore) Load(name string) (*Artifact, error) {
	for _, path := range s.Candidates(name) {
		raw, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read artifact %s", path)
		}

		var artifact *Artifact
		if strings.HasSuffix(path, ".bin") {
			artifact, err = s.parseBin(name, raw)
		} else {
			artifact, err = parseJSONArtifact(name, raw)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "parse artifact %s", path)
		}
		artifact.Path = path
		return artifact, nil
	}
	return nil, errors.Wrapf(ErrArtifactNotFound, "%s in %s", name, s.dir)
}

func (s *ArtifactStore) parseBin(name string, raw []byte) (*Artifact, error) {
	bytecode, err := decodeBytecode(string(bytes.TrimSpace(raw)))
	if err != nil {
		return nil, err
	}
	return &Artifact{
		ContractName: name,
		Constructor:  s.constructors[name],
		Bytecode:     bytecode,
	}, nil
}

func parseJSONArtifact(name string, raw []byte) (*Artifact, error) {
	var compiled compiledArtifact
	if err := json.Unmarshal(raw, &compiled); err != nil {
		return nil, errors.Wrap(err, "decode json")
	}
	if compiled.ContractName != "" && compiled.ContractName != name {
		return nil, errors.Errorf("artifact holds %s, want %s", compiled.ContractName, name)
	}

	bytecodeHex, linkRefs, err := bytecodeField(compiled)
	if err != nil {
		return nil, err
	}
	if hasLinkReferences(linkRefs) {
		return nil, errors.Errorf("%s needs library linking", name)
	}
	bytecode, err := decodeBytecode(bytecodeHex)
	if err != nil {
		return nil, err
	}

	artifact := &Artifact{
		ContractName: name,
		SourceName:   compiled.SourceName,
		Bytecode:     bytecode,
	}
	if len(compiled.ABI) > 0 {
		parsed, err := abi.JSON(bytes.NewReader(compiled.ABI))
		if err != nil {
			return nil, errors.Wrap(err, "decode abi")
		}
		artifact.ABI = &parsed
		artifact.Constructor = parsed.Constructor.Inputs
	}
	return artifact, nil
}

// bytecodeField accepts both the Hardhat ("bytecode": "0x...") and the Foundry
// ("bytecode": {"object": "0x..."}) layouts.
func bytecodeField(compiled compiledArtifact) (string, json.RawMessage, error) {
	if len(compiled.Bytecode) == 0 {
		return "", nil, errors.New("artifact has no bytecode")
	}
	var hexStr string
	if err := json.Unmarshal(compiled.Bytecode, &hexStr); err == nil {
		return hexStr, compiled.LinkReferences, nil
	}
	var foundry foundryBytecode
	if err := json.Unmarshal(compiled.Bytecode, &foundry); err != nil {
		return "", nil, errors.Wrap(err, "decode bytecode")
	}
	return foundry.Object, foundry.LinkReferences, nil
}

func hasLinkReferences(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var refs map[string]json.RawMessage
	if err := json.Unmarshal(raw, &refs); err != nil {
		return false
	}
	return len(refs) > 0
}

func decodeBytecode(hexStr string) ([]byte, error) {
	hexStr = strings.TrimPrefix(strings.TrimSpace(hexStr), "0x")
	if hexStr == "" {
		return nil, errors.New("empty bytecode")
	}
	if strings.Contains(hexStr, "__") {
		return nil, errors.New("bytecode has unlinked library placeholders")
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, errors.Wrap(err, "decode hex")
	}
	return b, nil
}
