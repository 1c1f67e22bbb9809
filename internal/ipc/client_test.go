//go:build !windows

package ipc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatterd/internal/capture"
	"chatterd/internal/engine"
	"chatterd/internal/filter"
)

// startDaemonStack brings up a real engine behind a unix-socket server
// so the typed client methods are exercised end to end.
func startDaemonStack(t *testing.T) (*Client, *capture.Simulated) {
	t.Helper()

	src := capture.NewSimulated()
	eng, err := engine.New(engine.Options{Source: src})
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { eng.Stop() })

	srv, cfg := startTestServer(t, NewDaemonHandler(eng, nil, "1.2.3", nil))
	eng.SetBlockedFunc(func(key uint16, deltaMs int64, blockedSeen uint64) {
		srv.Broadcast(&Event{
			Type:      EventKeyBlocked,
			Timestamp: time.Now(),
			Data:      &KeyBlockedEvent{Key: key, DeltaMs: deltaMs, BlockedSeen: blockedSeen},
		})
	})

	return connectTestClient(t, cfg), src
}

func TestClientStatusEndToEnd(t *testing.T) {
	client, src := startDaemonStack(t)

	src.Inject(capture.KeyEvent{Code: 30, Kind: filter.Press, TimestampMs: 1000})

	status, err := client.Status()
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", status.Version)
	assert.Equal(t, "adaptive", status.Policy)
	assert.True(t, status.Capturing)
	assert.False(t, status.Paused)
	assert.EqualValues(t, 1, status.EventsTotal)
}

func TestClientSetPolicyEndToEnd(t *testing.T) {
	client, _ := startDaemonStack(t)

	require.NoError(t, client.SetPolicy("pattern"))

	status, err := client.Status()
	require.NoError(t, err)
	assert.Equal(t, "pattern", status.Policy)

	assert.Error(t, client.SetPolicy("bogus"))
}

func TestClientPauseResumeEndToEnd(t *testing.T) {
	client, _ := startDaemonStack(t)

	require.NoError(t, client.PauseCapture())
	status, err := client.Status()
	require.NoError(t, err)
	assert.True(t, status.Paused)

	require.NoError(t, client.ResumeCapture())
	status, err = client.Status()
	require.NoError(t, err)
	assert.False(t, status.Paused)
}

func TestClientStatsErrorWhenDisabled(t *testing.T) {
	client, _ := startDaemonStack(t)

	// The stack runs without a stats store; the daemon must say so
	// rather than hang or panic.
	_, err := client.Stats(0)
	assert.Error(t, err)
}

func TestClientBlockedEventStream(t *testing.T) {
	client, src := startDaemonStack(t)

	require.NoError(t, client.Subscribe(EventKeyBlocked))

	src.Inject(capture.KeyEvent{Code: 30, Kind: filter.Press, TimestampMs: 1000})
	src.Inject(capture.KeyEvent{Code: 30, Kind: filter.Release, TimestampMs: 1010})
	src.Inject(capture.KeyEvent{Code: 30, Kind: filter.Press, TimestampMs: 1015})

	select {
	case ev := <-client.Events():
		require.Equal(t, EventKeyBlocked, ev.Type)
		var blocked KeyBlockedEvent
		raw, err := Encode(ev.Data)
		require.NoError(t, err)
		require.NoError(t, Decode(raw, &blocked))
		assert.EqualValues(t, 30, blocked.Key)
		assert.EqualValues(t, 15, blocked.DeltaMs)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for blocked event")
	}
}

func TestClientShutdownEndToEnd(t *testing.T) {
	src := capture.NewSimulated()
	eng, err := engine.New(engine.Options{Source: src})
	require.NoError(t, err)

	done := make(chan struct{})
	_, cfg := startTestServer(t, NewDaemonHandler(eng, nil, "1.2.3", func() { close(done) }))
	client := connectTestClient(t, cfg)

	require.NoError(t, client.Shutdown())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback not invoked")
	}
}
