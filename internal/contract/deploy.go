package contract

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ERC1967ImplementationSlot is the storage slot holding an upgradeable
// proxy's implementation address, per ERC-1967:
// keccak256("eip1967.proxy.implementation") - 1.
var ERC1967ImplementationSlot = common.HexToHash(
	"0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc",
)

// Artifact is one compiled contract: its ABI and creation bytecode, in the
// standard compiler-output JSON layout.
type Artifact struct {
	ABI      json.RawMessage `json:"abi"`
	Bytecode string          `json:"bytecode"`
}

// LoadArtifact reads a compiled-contract artifact from disk.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("contract: reading artifact: %w", err)
	}
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("contract: parsing artifact %s: %w", path, err)
	}
	if art.Bytecode == "" {
		return nil, fmt.Errorf("contract: artifact %s has no bytecode", path)
	}
	return &art, nil
}

// bytecode decodes the artifact's hex creation code.
func (a *Artifact) bytecode() ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(a.Bytecode, "0x"))
	if err != nil {
		return nil, fmt.Errorf("contract: decoding bytecode: %w", err)
	}
	return raw, nil
}

// parsedABI parses the artifact's ABI for constructor-argument packing.
func (a *Artifact) parsedABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(string(a.ABI)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("contract: parsing artifact ABI: %w", err)
	}
	return parsed, nil
}

// Deployer deploys compiled contracts from an artifacts directory. Artifacts
// are looked up as <dir>/<Name>.json.
type Deployer struct {
	backend      Backend
	signer       Signer
	artifactsDir string
}

// NewDeployer creates a deployer over the given backend and signer.
func NewDeployer(backend Backend, signer Signer, artifactsDir string) *Deployer {
	return &Deployer{backend: backend, signer: signer, artifactsDir: artifactsDir}
}

// Deploy deploys the named contract with the given constructor arguments and
// returns the new address and the receipt.
func (d *Deployer) Deploy(ctx context.Context, name string, value *big.Int, constructorArgs ...any) (common.Address, *types.Receipt, error) {
	art, err := LoadArtifact(filepath.Join(d.artifactsDir, name+".json"))
	if err != nil {
		return common.Address{}, nil, err
	}

	code, err := art.bytecode()
	if err != nil {
		return common.Address{}, nil, err
	}

	if len(constructorArgs) > 0 {
		parsed, err := art.parsedABI()
		if err != nil {
			return common.Address{}, nil, err
		}
		packed, err := parsed.Pack("", constructorArgs...)
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("contract: pack %s constructor: %w", name, err)
		}
		code = append(code, packed...)
	}

	receipt, err := SendTx(ctx, d.backend, d.signer, SendOpts{Value: value}, nil, code)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("contract: deploy %s: %w", name, err)
	}
	if receipt.ContractAddress == (common.Address{}) {
		return common.Address{}, nil, fmt.Errorf("contract: deploy %s: receipt carries no contract address", name)
	}
	return receipt.ContractAddress, receipt, nil
}

// DeployProxy deploys an ERC-1967 proxy pointing at the given implementation,
// forwarding initData to it as the initializer call.
func (d *Deployer) DeployProxy(ctx context.Context, implementation common.Address, initData []byte, value *big.Int) (common.Address, *types.Receipt, error) {
	return d.Deploy(ctx, "ERC1967Proxy", value, implementation, initData)
}

// ImplementationAt reads a proxy's implementation address from the ERC-1967
// slot. The slot is not exposed as a view function, so this goes straight to
// storage.
func ImplementationAt(ctx context.Context, backend Backend, proxy common.Address) (common.Address, error) {
	raw, err := backend.StorageAt(ctx, proxy, ERC1967ImplementationSlot, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("contract: implementation slot of %s: %w", proxy, err)
	}
	return common.BytesToAddress(raw), nil
}
