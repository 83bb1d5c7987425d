package rtc

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, h *Handler) (string, context.CancelFunc) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "rtc.sock")
	srv := NewServer(sock, h)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	go func() {
		close(started)
		_ = srv.Start(ctx)
	}()
	<-started
	require.Eventually(t, func() bool {
		c, err := net.Dial("unix", sock)
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, time.Second, 10*time.Millisecond)

	return sock, cancel
}

func TestShutdownCommand(t *testing.T) {
	h := NewHandler()
	called := make(chan struct{})
	h.OnShutdown(func() { close(called) })

	sock, cancel := startTestServer(t, h)
	defer cancel()

	client := NewClient(sock, time.Second)
	resp, err := client.Shutdown(context.Background())
	require.NoError(t, err)
	assert.Nil(t, resp.Error)

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("shutdown hook not invoked")
	}
}

func TestSNMPCacheReloadCommandPropagatesError(t *testing.T) {
	h := NewHandler()
	h.OnSNMPCacheReload(func() error { return errors.New("cache unavailable") })

	sock, cancel := startTestServer(t, h)
	defer cancel()

	client := NewClient(sock, time.Second)
	resp, err := client.ReloadSNMPCache(context.Background())
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInternalError, resp.Error.Code)
}

func TestUnknownMethod(t *testing.T) {
	h := NewHandler()
	sock, cancel := startTestServer(t, h)
	defer cancel()

	client := NewClient(sock, time.Second)
	resp, err := client.Call(context.Background(), "BOGUS", nil)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodUnknown, resp.Error.Code)
}
