// Package cachecfg declares the configuration-cache contract consumed by
// the poller (spec.md §6) and provides an in-memory fake implementation
// used by tests. The real configuration cache (database-backed, shared
// with the rest of the monitoring agent) is an external collaborator per
// spec.md §1 and is out of scope here.
package cachecfg

import (
	"sync"
	"time"

	"firestige.xyz/pollcore/internal/model"
)

// Cache is the subset of the configuration cache's API the poller depends
// on (spec.md §6 "Consumed from configuration cache").
type Cache interface {
	// GetPollerItems returns up to cap due items for pollerType, given the
	// number currently in flight. Matches get_poller_items.
	GetPollerItems(pollerType model.PollerType, timeout time.Duration, inFlight, cap int) ([]model.Item, error)

	// PrepareItems expands macros in items in place (dispatch setup).
	// Matches prepare_items.
	PrepareItems(items []model.Item) error

	// RequeueItems hands the parallel requeue vectors back to the cache
	// and returns the earliest next-check time across them. Matches
	// poller_requeue_items.
	RequeueItems(itemIDs []uint64, lastClocks []int64, errCodes []model.ErrCode, pollerType model.PollerType) (nextCheck time.Time, err error)

	// InterfaceByID returns the current authoritative snapshot for an
	// interface.
	InterfaceByID(interfaceID uint64) (model.Interface, bool)

	// ActivateItemInterface and DeactivateItemInterface persist the
	// availability-state mutation computed by internal/avail back into the
	// authoritative store. Matches activate_item_interface /
	// deactivate_item_interface.
	ActivateItemInterface(iface model.Interface) error
	DeactivateItemInterface(iface model.Interface) error
}

// MemCache is a minimal in-memory Cache used by tests and local
// experimentation. It is not a production configuration cache: persistence
// is an explicit Non-goal (spec.md §1).
type MemCache struct {
	mu         sync.Mutex
	items      []model.Item
	interfaces map[uint64]model.Interface
	dueNow     map[uint64]bool // itemid -> currently due
}

// NewMemCache constructs an empty MemCache.
func NewMemCache() *MemCache {
	return &MemCache{
		interfaces: make(map[uint64]model.Interface),
		dueNow:     make(map[uint64]bool),
	}
}

// AddItem registers an item and marks it due immediately.
func (m *MemCache) AddItem(item model.Item, iface model.Interface) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item)
	m.interfaces[iface.InterfaceID] = iface
	m.dueNow[item.ItemID] = true
}

func (m *MemCache) GetPollerItems(pollerType model.PollerType, _ time.Duration, _, cap int) ([]model.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Item, 0, cap)
	for _, it := range m.items {
		if len(out) >= cap {
			break
		}
		if it.Type != pollerType || !m.dueNow[it.ItemID] {
			continue
		}
		out = append(out, it)
		m.dueNow[it.ItemID] = false
	}
	return out, nil
}

func (m *MemCache) PrepareItems(items []model.Item) error {
	// Macro expansion is protocol-specific and out of scope; no-op fake.
	return nil
}

func (m *MemCache) RequeueItems(itemIDs []uint64, lastClocks []int64, errCodes []model.ErrCode, _ model.PollerType) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var next time.Time
	for i, id := range itemIDs {
		m.dueNow[id] = true
		t := time.Unix(lastClocks[i], 0).Add(time.Second)
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next, nil
}

func (m *MemCache) InterfaceByID(interfaceID uint64) (model.Interface, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	iface, ok := m.interfaces[interfaceID]
	return iface, ok
}

func (m *MemCache) ActivateItemInterface(iface model.Interface) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interfaces[iface.InterfaceID] = iface
	return nil
}

func (m *MemCache) DeactivateItemInterface(iface model.Interface) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interfaces[iface.InterfaceID] = iface
	return nil
}
