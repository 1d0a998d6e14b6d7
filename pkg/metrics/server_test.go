package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	server := NewServer(":0", reg, nil)

	require.NotNil(t, server)
	require.NotNil(t, server.httpServer)
	require.Equal(t, ":0", server.Addr())
}

func httpGet(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return http.DefaultClient.Do(req)
}

func startServer(t *testing.T, reg *prometheus.Registry, health HealthFunc) (*Server, <-chan error) {
	t.Helper()
	server := NewServer("127.0.0.1:0", reg, health)
	errCh := server.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})
	return server, errCh
}

func TestServer_StartAndShutdown(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	server, errCh := startServer(t, reg, nil)

	resp, err := httpGet(t.Context(), "http://"+server.Addr()+"/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))

	select {
	case err, ok := <-errCh:
		require.False(t, ok, "expected channel closed without error, got %v", err)
	case <-time.After(time.Second):
		require.Fail(t, "error channel not closed after shutdown")
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	m.UpdateWindowMetrics(7, 9, 1)

	server, _ := startServer(t, reg, nil)

	resp, err := httpGet(t.Context(), "http://"+server.Addr()+"/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "watermarkset_window_lowest 7")
}

func TestServer_HealthFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	server, _ := startServer(t, reg, func() error { return errors.New("producer down") })

	resp, err := httpGet(t.Context(), "http://"+server.Addr()+"/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "producer down", string(body))
}

func TestServer_StartBindError(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, errCh := startServer(t, reg, nil)
	select {
	case err := <-errCh:
		require.NoError(t, err)
	default:
	}

	second := NewServer(first.Addr(), reg, nil)
	err := <-second.Start()
	require.Error(t, err)
	require.Contains(t, err.Error(), "metrics server")
}
