package safe

import (
	"context"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryDecimals is the default in-process DecimalsCache.
type MemoryDecimals struct {
	mu     sync.RWMutex
	values map[string]uint8
}

// NewMemoryDecimals returns an empty cache.
func NewMemoryDecimals() *MemoryDecimals {
	return &MemoryDecimals{values: make(map[string]uint8)}
}

func decimalsKey(networkID string, token common.Address) string {
	return strings.ToLower(networkID) + ":" + strings.ToLower(token.Hex())
}

// Get implements DecimalsCache.
func (m *MemoryDecimals) Get(_ context.Context, networkID string, token common.Address) (uint8, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[decimalsKey(networkID, token)]
	return v, ok
}

// Set implements DecimalsCache.
func (m *MemoryDecimals) Set(_ context.Context, networkID string, token common.Address, decimals uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[decimalsKey(networkID, token)] = decimals
}
