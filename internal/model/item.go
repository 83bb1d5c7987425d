package model

// ValueType enumerates the typed result shapes a preprocessing plan can
// ultimately produce.
type ValueType int

const (
	ValueUnknown ValueType = iota
	ValueFloat
	ValueString
	ValueLog
	ValueUint64
	ValueText
)

// ItemFlag distinguishes how an item entered the configuration, matching
// the richer enum present in the original source (see SPEC_FULL.md §3
// Supplemented).
type ItemFlag int

const (
	FlagNormal ItemFlag = iota
	FlagDiscovery
	FlagCreated
)

// InterfaceType enumerates the endpoint kinds an item can be bound to.
// IPMI and JMX are modeled for completeness of the enum (original source
// parity) even though this module only dispatches agent/SNMP/HTTP checks.
type InterfaceType int

const (
	InterfaceAgent InterfaceType = iota
	InterfaceSNMP
	InterfaceIPMI
	InterfaceJMX
	InterfaceHTTP
)

// PollerType selects which async check adapter a poller dispatches with.
type PollerType int

const (
	PollerAgent PollerType = iota
	PollerHTTP
	PollerSNMP
)

// Item is a single monitored data point definition: identity, owning host,
// interface reference, protocol type and preprocessing plan. Created by the
// configuration cache when loaded for polling; mutated only during dispatch
// setup; released after result processing (spec.md §3).
type Item struct {
	ItemID      uint64
	HostID      uint64
	InterfaceID uint64
	Host        string
	Type        PollerType
	ValueType   ValueType
	Flags       ItemFlag
	KeyOrig     string

	// Params carries protocol-specific dispatch parameters (agent key
	// string, SNMP OID/community, HTTP URL/method/headers, ...). Treated
	// as an opaque payload here; decoding it is a named Non-goal
	// (protocol-specific result decoders, spec.md §1).
	Params any

	// Plan is the preprocessing step sequence to run on the raw result.
	Plan []StepSpec
}

// StepSpec names one preprocessing step and its parameters. The step
// implementations themselves live in internal/preproc/step.
type StepSpec struct {
	Name   string
	Params map[string]string
}
