// Package avail implements the interface availability state machine
// (spec.md §4.4): errcode-driven activation/deactivation hysteresis, the
// transient per-cycle InterfaceStatus map, and the availability IPC
// diff-record encoder.
package avail

import (
	"fmt"
	"sort"
	"time"

	"firestige.xyz/pollcore/internal/log"
	"firestige.xyz/pollcore/internal/model"
)

// Tunables holds the hysteresis parameters from spec.md §6.
type Tunables struct {
	UnavailableDelay  time.Duration
	UnreachableDelay  time.Duration
	UnreachablePeriod time.Duration
}

// Tracker owns the transient per-cycle InterfaceStatus map (spec.md §3,
// §4.4). It is not safe for concurrent use from more than one goroutine —
// the poller reactor is single-threaded and is the only mutator
// (spec.md §5).
type Tracker struct {
	tunables Tunables
	statuses map[uint64]*model.InterfaceStatus
}

// NewTracker constructs a Tracker with the given hysteresis tunables.
func NewTracker(t Tunables) *Tracker {
	return &Tracker{tunables: t, statuses: make(map[uint64]*model.InterfaceStatus)}
}

// Observe applies one item's check outcome to iface's availability state
// and, when the outcome is not a clean success on an already-available
// interface, upserts the transient InterfaceStatus (spec.md §4.4, §9 Open
// Question 3). It returns the (possibly mutated) interface snapshot; the
// caller is responsible for persisting it back to the configuration cache.
//
// Per spec.md §4.4 tie-break: when the same interface is touched more than
// once in a cycle, the last call's upsert wins — this method always
// overwrites any existing entry for iface.InterfaceID.
func (tr *Tracker) Observe(now time.Time, iface model.Interface, item model.Item, errCode model.ErrCode, errMsg string) model.Interface {
	before := iface

	switch {
	case errCode.Recovers():
		iface = activate(iface)
	case errCode.Transient():
		iface = tr.deactivate(now, iface)
	case errCode == model.CONFIGERROR:
		// per-item misconfiguration: no interface state change.
	case errCode == model.SIGERROR:
		// silently ignored per spec.md §9 Open Question 1: errors_from is
		// NOT cleared, no state change.
	default:
		log.GetLogger().Warnf("avail: unknown errcode %v for interface %d, ignoring", errCode, iface.InterfaceID)
	}

	cleanSuccess := errCode == model.SUCCEED && before.Available == model.TriTrue && !before.ErrorsFromSet()
	if !cleanSuccess {
		tr.statuses[iface.InterfaceID] = &model.InterfaceStatus{
			InterfaceID: iface.InterfaceID,
			ErrCode:     errCode,
			ItemID:      item.ItemID,
			Host:        item.Host,
			KeyOrig:     item.KeyOrig,
			Error:       errMsg,
			Snapshot:    iface,
		}
	}

	return iface
}

// activate implements spec.md §4.4's activate_item_interface: clears
// errors_from, sets available=true, clears disable_until.
func activate(iface model.Interface) model.Interface {
	iface.ErrorsFrom = time.Time{}
	iface.Available = model.TriTrue
	iface.DisableUntil = time.Time{}
	return iface
}

// deactivate implements spec.md §4.4's deactivate_item_interface hysteresis.
func (tr *Tracker) deactivate(now time.Time, iface model.Interface) model.Interface {
	if !iface.ErrorsFromSet() {
		iface.ErrorsFrom = now
	}
	if now.Sub(iface.ErrorsFrom) >= tr.tunables.UnreachablePeriod {
		iface.Available = model.TriFalse
		iface.DisableUntil = now.Add(tr.tunables.UnavailableDelay)
	} else {
		iface.DisableUntil = now.Add(tr.tunables.UnreachableDelay)
	}
	return iface
}

// Len reports the number of distinct interfaces touched this cycle.
func (tr *Tracker) Len() int {
	return len(tr.statuses)
}

// Flush returns the accumulated statuses and clears the transient map,
// matching spec.md §4.4 "the transient interfaces map is cleared after
// flushing".
func (tr *Tracker) Flush() []*model.InterfaceStatus {
	out := make([]*model.InterfaceStatus, 0, len(tr.statuses))
	for _, s := range tr.statuses {
		out = append(out, s)
	}
	// Deterministic order for reproducible IPC payloads and tests.
	sort.Slice(out, func(i, j int) bool { return out[i].InterfaceID < out[j].InterfaceID })
	tr.statuses = make(map[uint64]*model.InterfaceStatus)
	return out
}

// EncodeDiffs concatenates per-interface diff records into the single
// AVAILABILITY_REQUEST payload sent over the availability IPC at cycle end
// (spec.md §4.4, §6). The wire format itself is a Non-goal (spec.md §1
// "protocol wire formats"); this is a simple, stable textual encoding
// sufficient for the AvailabilitySink interface boundary.
func EncodeDiffs(diffs []*model.InterfaceStatus) []byte {
	out := make([]byte, 0, 64*len(diffs))
	for _, d := range diffs {
		line := fmt.Sprintf("iface=%d errcode=%s available=%d item=%d host=%q key=%q error=%q\n",
			d.InterfaceID, d.ErrCode, d.Snapshot.Available, d.ItemID, d.Host, d.KeyOrig, d.Error)
		out = append(out, line...)
	}
	return out
}

// AvailabilitySink is the outbound transport for availability diffs
// (spec.md §6 "Availability IPC"), an external collaborator per spec.md §1.
type AvailabilitySink interface {
	SendAvailability(payload []byte) error
}
