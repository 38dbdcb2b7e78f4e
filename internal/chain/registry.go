package chain

import (
	"fmt"

	"github.com/predictfi/predict-go/internal/domain"
)

// Registry maps logical chain IDs to connections. It is populated once at
// startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	conns map[uint64]*Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[uint64]*Connection)}
}

// Register adds a connection under the given chain ID. Registering the same
// ID twice is a programming error.
func (r *Registry) Register(chainID uint64, conn *Connection) error {
	if _, ok := r.conns[chainID]; ok {
		return fmt.Errorf("chain: chain id %d already registered", chainID)
	}
	r.conns[chainID] = conn
	return nil
}

// Get returns the connection for a chain ID.
func (r *Registry) Get(chainID uint64) (*Connection, error) {
	conn, ok := r.conns[chainID]
	if !ok {
		return nil, fmt.Errorf("chain: id %d: %w", chainID, domain.ErrUnknownChain)
	}
	return conn, nil
}

// ChainIDs returns all registered chain IDs.
func (r *Registry) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// Close closes every registered connection.
func (r *Registry) Close() {
	for _, conn := range r.conns {
		conn.Close()
	}
}
