package rest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startAdapter(t *testing.T, config RESTConfig, handler http.Handler) (*RESTAdapter, context.CancelFunc, <-chan error) {
	t.Helper()

	a := New(config, handler, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	select {
	case <-a.Listening():
	case err := <-done:
		cancel()
		t.Fatalf("adapter exited early: %v", err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("adapter did not start listening")
	}
	return a, cancel, done
}

func TestNew_AppliesDefaults(t *testing.T) {
	a := New(RESTConfig{Port: 8080}, http.NotFoundHandler(), nil)

	assert.Equal(t, "0.0.0.0", a.config.Host)
	assert.Equal(t, 30*time.Second, a.config.ShutdownTimeout)
	assert.Equal(t, 1<<20, a.config.MaxHeaderBytes)
	assert.Equal(t, 8080, a.Port())
	assert.Equal(t, "REST", a.Protocol())
}

func TestNew_PanicsOnInvalidConfig(t *testing.T) {
	assert.Panics(t, func() {
		New(RESTConfig{Port: 70000}, http.NotFoundHandler(), nil)
	})
	assert.Panics(t, func() {
		New(RESTConfig{ShutdownTimeout: -time.Second}, http.NotFoundHandler(), nil)
	})
	assert.Panics(t, func() {
		New(RESTConfig{}, nil, nil)
	})
}

func TestServe_AndShutdownOnCancel(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})

	a, cancel, done := startAdapter(t, RESTConfig{Host: "127.0.0.1"}, handler)
	require.NotZero(t, a.Port())

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/ping", a.Port()))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("adapter did not stop")
	}
}

func TestServe_Compression(t *testing.T) {
	payload := strings.Repeat("compressible ", 1000)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, payload)
	})

	a, cancel, done := startAdapter(t, RESTConfig{Host: "127.0.0.1", Compression: true}, handler)
	defer func() {
		cancel()
		<-done
	}()

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("http://127.0.0.1:%d/", a.Port()), nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")

	// An explicit Accept-Encoding disables transparent decompression.
	resp, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
}

func TestStop_Idempotent(t *testing.T) {
	a, cancel, done := startAdapter(t, RESTConfig{Host: "127.0.0.1"}, http.NotFoundHandler())
	defer cancel()

	ctx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()

	require.NoError(t, a.Stop(ctx))
	require.NoError(t, a.Stop(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}

func TestServe_ListenError(t *testing.T) {
	a, cancel, done := startAdapter(t, RESTConfig{Host: "127.0.0.1"}, http.NotFoundHandler())
	defer func() {
		cancel()
		<-done
	}()

	clash := New(RESTConfig{Host: "127.0.0.1", Port: a.Port()}, http.NotFoundHandler(), nil)
	err := clash.Serve(context.Background())
	assert.Error(t, err)
}

func TestRateLimitConfig_BurstDefaultsToRate(t *testing.T) {
	cfg := RateLimitConfig{RequestsPerSecond: 20, IdleTTL: time.Minute}.LimiterConfig()
	assert.Equal(t, uint(20), cfg.Burst)
	assert.Equal(t, time.Minute, cfg.IdleTTL)

	cfg = RateLimitConfig{RequestsPerSecond: 20, Burst: 5}.LimiterConfig()
	assert.Equal(t, uint(5), cfg.Burst)
}
