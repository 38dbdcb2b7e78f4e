// Package chain owns the per-network RPC connection, the signing credential,
// and the registry mapping chain IDs to connections.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/predictfi/predict-go/internal/domain"
)

// Connection holds one RPC handle and zero-or-one signing credential.
// Credentials are added, never removed mid-session. The handle itself is
// immutable; only the default sender and key are guarded.
type Connection struct {
	rpc     *rpc.Client
	client  *ethclient.Client
	chainID *big.Int

	mu            sync.RWMutex
	key           *ecdsa.PrivateKey
	defaultSender common.Address
}

// Dial connects to the JSON-RPC endpoint and resolves the node's chain ID.
func Dial(ctx context.Context, url string) (*Connection, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", url, err)
	}

	client := ethclient.NewClient(rpcClient)
	chainID, err := client.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("chain: resolve chain id: %w", err)
	}

	return &Connection{
		rpc:     rpcClient,
		client:  client,
		chainID: chainID,
	}, nil
}

// Close tears down the underlying RPC connection.
func (c *Connection) Close() {
	c.rpc.Close()
}

// Client returns the ethclient handle for contract-level callers.
func (c *Connection) Client() *ethclient.Client {
	return c.client
}

// ChainID returns the connected network's chain ID.
func (c *Connection) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Accounts lists the node-managed accounts plus the local key's address, if
// one has been added.
func (c *Connection) Accounts(ctx context.Context) ([]common.Address, error) {
	var nodeAccounts []common.Address
	if err := c.rpc.CallContext(ctx, &nodeAccounts, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("chain: eth_accounts: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.key != nil {
		local := ethcrypto.PubkeyToAddress(c.key.PublicKey)
		for _, a := range nodeAccounts {
			if a == local {
				return nodeAccounts, nil
			}
		}
		nodeAccounts = append(nodeAccounts, local)
	}
	return nodeAccounts, nil
}

// AddKey installs the signing credential. The key's address becomes the
// default sender unless one was set explicitly before.
func (c *Connection) AddKey(key *ecdsa.PrivateKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.key = key
	if c.defaultSender == (common.Address{}) {
		c.defaultSender = ethcrypto.PubkeyToAddress(key.PublicKey)
	}
}

// DefaultSender returns the address used when a call-site omits an explicit
// sender.
func (c *Connection) DefaultSender() common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultSender
}

// SetDefaultSender overrides the default sender address.
func (c *Connection) SetDefaultSender(addr common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultSender = addr
}

// From returns the signing address. It satisfies the contract package's
// Signer interface together with SignTx.
func (c *Connection) From() common.Address {
	return c.DefaultSender()
}

// SignTx signs a transaction with the installed key using the EIP-155 signer
// for this chain.
func (c *Connection) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	c.mu.RLock()
	key := c.key
	c.mu.RUnlock()

	if key == nil {
		return nil, domain.ErrNoSigner
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return nil, fmt.Errorf("chain: sign tx: %w", err)
	}
	return signed, nil
}
