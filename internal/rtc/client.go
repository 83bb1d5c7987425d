package rtc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client is a small JSON-RPC client over a Unix domain socket, used by the
// CLI's stop/reload commands (spec.md §6, cmd/ "stop"/"reload").
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient constructs a Client. A zero timeout defaults to 10s.
func NewClient(socketPath string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{socketPath: socketPath, timeout: timeout}
}

// Call sends method/params and waits for the matching response.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("rtc client: connect to %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("rtc client: marshal params: %w", err)
		}
		raw = data
	}

	reqID := fmt.Sprintf("req-%d", time.Now().UnixNano())
	req := Request{JSONRPC: "2.0", Method: method, Params: raw, ID: reqID}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("rtc client: send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("rtc client: read response: %w", err)
		}
		return nil, fmt.Errorf("rtc client: connection closed without response")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("rtc client: parse response: %w", err)
	}
	return &resp, nil
}

// Shutdown sends SHUTDOWN.
func (c *Client) Shutdown(ctx context.Context) (*Response, error) {
	return c.Call(ctx, MethodShutdown, nil)
}

// ReloadSNMPCache sends SNMP_CACHE_RELOAD.
func (c *Client) ReloadSNMPCache(ctx context.Context) (*Response, error) {
	return c.Call(ctx, MethodSNMPCacheReload, nil)
}

// Status sends STATUS.
func (c *Client) Status(ctx context.Context) (*Response, error) {
	return c.Call(ctx, MethodStatus, nil)
}

// ReloadConfig sends CONFIG_RELOAD.
func (c *Client) ReloadConfig(ctx context.Context) (*Response, error) {
	return c.Call(ctx, MethodConfigReload, nil)
}
