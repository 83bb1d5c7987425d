package checks

import (
	"context"
	"fmt"
	"strings"

	"github.com/gosnmp/gosnmp"

	"firestige.xyz/pollcore/internal/model"
)

// SNMPParams is the dispatch-time parameter shape for an SNMP-agent item
// (spec.md §4.5 "snmp poller").
type SNMPParams struct {
	OIDs      []string
	Community string
	Port      uint16
	Version   gosnmp.SnmpVersion
}

// SNMPAdapter dispatches SNMP GET checks. Each dispatch gets its own
// gosnmp.GoSNMP handle rather than a shared one: gosnmp's handle is
// stateful per target/community and is not meant to be shared across
// concurrent targets (spec.md §4.5 "per-protocol async check").
type SNMPAdapter struct{}

// NewSNMPAdapter constructs an SNMPAdapter.
func NewSNMPAdapter() *SNMPAdapter { return &SNMPAdapter{} }

func (s *SNMPAdapter) Dispatch(ctx context.Context, args DispatchArgs, onComplete func(Completion)) model.ErrCode {
	p, ok := args.Item.Params.(SNMPParams)
	if !ok || len(p.OIDs) == 0 {
		return model.CONFIGERROR
	}

	go s.run(ctx, args, p, onComplete)
	return model.SUCCEED
}

func (s *SNMPAdapter) run(ctx context.Context, args DispatchArgs, p SNMPParams, onComplete func(Completion)) {
	port := p.Port
	if port == 0 {
		port = 161
	}
	version := p.Version
	if version == 0 {
		version = gosnmp.Version2c
	}

	params := &gosnmp.GoSNMP{
		Target:    args.Item.Host,
		Port:      port,
		Community: p.Community,
		Version:   version,
		Timeout:   args.Timeout,
		Retries:   1,
	}

	if err := params.Connect(); err != nil {
		onComplete(Completion{Item: args.Item, ErrCode: model.NETWORKERROR, Err: fmt.Sprintf("snmp connect: %v", err)})
		return
	}
	defer params.Conn.Close()

	result, err := params.Get(p.OIDs)
	if err != nil {
		onComplete(Completion{Item: args.Item, ErrCode: classifySNMPErr(err), Err: err.Error()})
		return
	}

	values := make([]string, 0, len(result.Variables))
	for _, v := range result.Variables {
		switch v.Type {
		case gosnmp.NoSuchObject, gosnmp.NoSuchInstance:
			onComplete(Completion{Item: args.Item, ErrCode: model.NOTSUPPORTED, Err: fmt.Sprintf("oid %s not present", v.Name)})
			return
		default:
			values = append(values, fmt.Sprintf("%v", v.Value))
		}
	}

	onComplete(Completion{Item: args.Item, ErrCode: model.SUCCEED, Value: strings.Join(values, ";")})
}

func classifySNMPErr(err error) model.ErrCode {
	if strings.Contains(err.Error(), "timeout") {
		return model.TIMEOUTERROR
	}
	return model.NETWORKERROR
}

func (s *SNMPAdapter) Clean(Completion) {}
