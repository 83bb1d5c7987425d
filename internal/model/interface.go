package model

import "time"

// Tri is a tri-state boolean: unknown, true or false (spec.md §3,
// Interface.available).
type Tri int

const (
	TriUnknown Tri = iota
	TriTrue
	TriFalse
)

// Interface is a network endpoint through which items are polled. Owned
// authoritatively by the configuration cache; the poller only ever holds a
// read snapshot (spec.md §3, §9 "Interface snapshots vs pointers").
type Interface struct {
	InterfaceID  uint64
	Type         InterfaceType
	Available    Tri
	ErrorsFrom   time.Time // zero value means "not set" (spec's errors_from==0)
	DisableUntil time.Time
}

// Snapshot returns an independent copy with no borrowed state, suitable for
// the poller's transient per-cycle map. This is the "perform the copy at
// ingest time, not at read time" abstraction called for in spec.md §9.
func (i Interface) Snapshot() Interface {
	return i
}

// ErrorsFromSet reports whether ErrorsFrom has been set (source's
// errors_from != 0).
func (i Interface) ErrorsFromSet() bool {
	return !i.ErrorsFrom.IsZero()
}

// InterfaceStatus is the transient per-cycle aggregation of the latest
// outcome for an interface (spec.md §3). At most one entry exists per
// interfaceid per cycle; the last upsert wins (spec.md §4.4 tie-break).
type InterfaceStatus struct {
	InterfaceID uint64
	ErrCode     ErrCode
	ItemID      uint64
	Host        string
	KeyOrig     string
	Error       string
	Snapshot    Interface
}
