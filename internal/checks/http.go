package checks

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/go-resty/resty/v2"

	"firestige.xyz/pollcore/internal/model"
)

// HTTPParams is the dispatch-time parameter shape for an HTTP-agent item
// (spec.md §4.5 "http poller").
type HTTPParams struct {
	URL    string
	Method string // defaults to GET
	Body   string
}

// HTTPAdapter dispatches HTTP-agent checks through a shared resty client,
// the multi-handle analogue referenced by spec.md §4.5. clients is keyed by
// source IP so each bound outbound address reuses one pooled transport
// instead of building a fresh one per check.
type HTTPAdapter struct {
	mu              sync.Mutex
	clientsBySource map[string]*resty.Client
	defaultClient   *resty.Client
}

// NewHTTPAdapter constructs an HTTPAdapter bound to a fresh resty client.
func NewHTTPAdapter() *HTTPAdapter {
	return &HTTPAdapter{
		clientsBySource: make(map[string]*resty.Client),
		defaultClient:   resty.New(),
	}
}

func (h *HTTPAdapter) Dispatch(ctx context.Context, args DispatchArgs, onComplete func(Completion)) model.ErrCode {
	p, ok := args.Item.Params.(HTTPParams)
	if !ok || p.URL == "" {
		return model.CONFIGERROR
	}

	go h.run(ctx, args, p, onComplete)
	return model.SUCCEED
}

func (h *HTTPAdapter) run(ctx context.Context, args DispatchArgs, p HTTPParams, onComplete func(Completion)) {
	ctx, cancel := context.WithTimeout(ctx, args.Timeout)
	defer cancel()

	client := h.clientFor(args.SourceIP)
	req := client.R().SetContext(ctx)
	if p.Body != "" {
		req.SetBody(p.Body)
	}

	method := p.Method
	if method == "" {
		method = "GET"
	}

	resp, err := req.Execute(method, p.URL)
	if err != nil {
		onComplete(Completion{Item: args.Item, ErrCode: classifyHTTPErr(err), Err: err.Error()})
		return
	}

	if resp.StatusCode() >= 500 {
		onComplete(Completion{Item: args.Item, ErrCode: model.GATEWAYERROR, Err: fmt.Sprintf("http %d", resp.StatusCode())})
		return
	}
	if resp.StatusCode() >= 400 {
		onComplete(Completion{Item: args.Item, ErrCode: model.AGENTERROR, Err: fmt.Sprintf("http %d", resp.StatusCode())})
		return
	}

	onComplete(Completion{Item: args.Item, ErrCode: model.SUCCEED, Value: string(resp.Body())})
}

// clientFor returns a client whose outbound connections are pinned to
// sourceIP, the analogue of the source's per-check "source IP" dispatch
// parameter (spec.md §6). Clients are cached per source IP to avoid
// rebuilding a transport (and its connection pool) on every check.
func (h *HTTPAdapter) clientFor(sourceIP string) *resty.Client {
	if sourceIP == "" {
		return h.defaultClient
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clientsBySource[sourceIP]; ok {
		return c
	}

	dialer := &net.Dialer{LocalAddr: &net.TCPAddr{IP: net.ParseIP(sourceIP)}}
	c := resty.New().SetTransport(&http.Transport{DialContext: dialer.DialContext})
	h.clientsBySource[sourceIP] = c
	return c
}

func classifyHTTPErr(err error) model.ErrCode {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.TIMEOUTERROR
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.TIMEOUTERROR
	}
	return model.NETWORKERROR
}

func (h *HTTPAdapter) Clean(Completion) {}
