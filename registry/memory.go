package registry

import "sync"

// Memory is an in-process AssetRegistry used by tests and by the daemon's dev
// mode. Production deployments are expected to plug in a client for the real
// registry service instead.
type Memory struct {
	mu        sync.RWMutex
	owners    map[uint64][20]byte
	approvals map[uint64][20]byte
}

func NewMemory() *Memory {
	return &Memory{
		owners:    make(map[uint64][20]byte),
		approvals: make(map[uint64][20]byte),
	}
}

// Mint registers a new asset under the given owner, overwriting any prior
// registration. Dev tooling only.
func (m *Memory) Mint(assetID uint64, owner [20]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[assetID] = owner
	delete(m.approvals, assetID)
}

func (m *Memory) OwnerOf(assetID uint64) ([20]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owner, ok := m.owners[assetID]
	if !ok {
		return [20]byte{}, ErrUnknownAsset
	}
	return owner, nil
}

// Approve grants operator the right to transfer the asset out of owner's
// custody. Only the current owner may grant an approval.
func (m *Memory) Approve(assetID uint64, owner, operator [20]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.owners[assetID]
	if !ok {
		return ErrUnknownAsset
	}
	if current != owner {
		return ErrTransferRejected
	}
	m.approvals[assetID] = operator
	return nil
}

// Transfer moves custody of the asset. The operator must be the current owner
// or hold an approval from the owner. A successful transfer consumes the
// approval.
func (m *Memory) Transfer(assetID uint64, operator, from, to [20]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.owners[assetID]
	if !ok {
		return ErrUnknownAsset
	}
	if current != from {
		return ErrTransferRejected
	}
	if operator != from && m.approvals[assetID] != operator {
		return ErrTransferRejected
	}
	m.owners[assetID] = to
	delete(m.approvals, assetID)
	return nil
}
