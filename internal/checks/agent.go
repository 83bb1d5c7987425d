package checks

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"firestige.xyz/pollcore/internal/log"
	"firestige.xyz/pollcore/internal/model"
)

// AgentAdapter dispatches passive-agent checks over a line-oriented TCP
// protocol (spec.md §4.5 "agent poller"). A host that is not a literal IP
// address is looked up through the DNS client on every dispatch (results
// are not cached), inside the check's own goroutine so a slow or dead
// resolver cannot stall the whole dispatch cycle, matching the source's
// asynchronous resolver use.
type AgentAdapter struct {
	Resolver *dns.Client
	// Nameserver is the resolver the DNS client queries, host:port form.
	Nameserver string
	Dial       func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewAgentAdapter constructs an AgentAdapter with a default DNS client and
// dialer.
func NewAgentAdapter(nameserver string) *AgentAdapter {
	return &AgentAdapter{
		Resolver:   &dns.Client{Timeout: 2 * time.Second},
		Nameserver: nameserver,
		Dial:       (&net.Dialer{}).DialContext,
	}
}

func (a *AgentAdapter) Dispatch(ctx context.Context, args DispatchArgs, onComplete func(Completion)) model.ErrCode {
	key, ok := args.Item.Params.(string)
	if !ok || key == "" {
		return model.CONFIGERROR
	}

	go a.run(ctx, args, key, onComplete)
	return model.SUCCEED
}

func (a *AgentAdapter) run(ctx context.Context, args DispatchArgs, key string, onComplete func(Completion)) {
	ctx, cancel := context.WithTimeout(ctx, args.Timeout)
	defer cancel()

	addr, errCode, errMsg := a.resolve(ctx, args.Item.Host)
	if errCode != model.SUCCEED {
		onComplete(Completion{Item: args.Item, ErrCode: errCode, Err: errMsg})
		return
	}

	conn, err := a.Dial(ctx, "tcp", addr)
	if err != nil {
		onComplete(Completion{Item: args.Item, ErrCode: classifyDialErr(err), Err: err.Error()})
		return
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", key); err != nil {
		onComplete(Completion{Item: args.Item, ErrCode: model.NETWORKERROR, Err: err.Error()})
		return
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		onComplete(Completion{Item: args.Item, ErrCode: model.TIMEOUTERROR, Err: err.Error()})
		return
	}

	line := strings.TrimSpace(string(buf[:n]))
	if line == "ZBX_NOTSUPPORTED" || strings.HasPrefix(line, "ZBX_NOTSUPPORTED\x00") {
		onComplete(Completion{Item: args.Item, ErrCode: model.NOTSUPPORTED, Err: "agent reported not supported"})
		return
	}

	onComplete(Completion{Item: args.Item, ErrCode: model.SUCCEED, Value: line})
}

// resolve looks up host via the async DNS client, falling back to
// treating host as a literal address when it already parses as one.
func (a *AgentAdapter) resolve(ctx context.Context, host string) (addr string, errCode model.ErrCode, errMsg string) {
	if net.ParseIP(host) != nil {
		return net.JoinHostPort(host, "10050"), model.SUCCEED, ""
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	r, _, err := a.Resolver.ExchangeContext(ctx, m, a.Nameserver)
	if err != nil {
		log.GetLogger().WithError(err).Debugf("agent: dns lookup failed for %s", host)
		return "", model.NETWORKERROR, fmt.Sprintf("dns lookup failed: %v", err)
	}
	for _, rr := range r.Answer {
		if a, ok := rr.(*dns.A); ok {
			return net.JoinHostPort(a.A.String(), "10050"), model.SUCCEED, ""
		}
	}
	return "", model.NETWORKERROR, fmt.Sprintf("no A record for %s", host)
}

func classifyDialErr(err error) model.ErrCode {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return model.TIMEOUTERROR
	}
	return model.NETWORKERROR
}

func (a *AgentAdapter) Clean(Completion) {}
