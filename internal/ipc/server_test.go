//go:build !windows

package ipc

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func startTestServer(t *testing.T, handler Handler) (*Server, ClientConfig) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "chatterd.sock")
	cfg := DefaultServerConfig(socketPath)
	srv := NewServer(cfg, handler)
	if err := srv.Start(); err != nil {
		t.Fatalf("server start: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return srv, DefaultClientConfig(socketPath)
}

func connectTestClient(t *testing.T, cfg ClientConfig) *Client {
	t.Helper()

	client := NewClient(cfg)
	if err := client.Connect(); err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestServerPing(t *testing.T) {
	_, cfg := startTestServer(t, nil)
	client := connectTestClient(t, cfg)

	rtt, err := client.Ping()
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if rtt <= 0 {
		t.Errorf("expected positive round-trip time, got %v", rtt)
	}
}

func TestServerHandshakeVersion(t *testing.T) {
	_, cfg := startTestServer(t, nil)
	client := connectTestClient(t, cfg)

	if client.ServerVersion() != "1.0.0" {
		t.Errorf("expected server version 1.0.0, got %q", client.ServerVersion())
	}
}

func TestServerDispatchesToHandler(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, conn *ClientConn, msg *Message) (*Message, error) {
		if msg.Header.Type != MsgStatusRequest {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "unexpected type"), nil
		}
		return NewResponse(MsgStatusResponse, msg.Header.RequestID, &StatusResponse{
			Version:   "test",
			Policy:    "adaptive",
			Capturing: true,
		})
	})

	_, cfg := startTestServer(t, handler)
	client := connectTestClient(t, cfg)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Policy != "adaptive" || !status.Capturing {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestServerNoHandlerReturnsError(t *testing.T) {
	_, cfg := startTestServer(t, nil)
	client := connectTestClient(t, cfg)

	if _, err := client.Status(); err == nil {
		t.Error("expected error when no handler is registered")
	}
}

func TestServerBroadcast(t *testing.T) {
	srv, cfg := startTestServer(t, nil)
	client := connectTestClient(t, cfg)

	if err := client.Subscribe(EventKeyBlocked); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	srv.Broadcast(&Event{
		Type:      EventKeyBlocked,
		Timestamp: time.Now(),
		Data:      &KeyBlockedEvent{Key: 30, DeltaMs: 8},
	})

	select {
	case ev := <-client.Events():
		if ev.Type != EventKeyBlocked {
			t.Errorf("expected key-blocked event, got %d", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast event")
	}
}

func TestServerClientCount(t *testing.T) {
	srv, cfg := startTestServer(t, nil)
	connectTestClient(t, cfg)

	deadline := time.Now().Add(time.Second)
	for srv.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if srv.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", srv.ClientCount())
	}
}

func TestServerStopRemovesSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "chatterd.sock")
	srv := NewServer(DefaultServerConfig(socketPath), nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("server start: %v", err)
	}

	if !IsSocketListening(socketPath) {
		t.Error("expected socket to be listening")
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("server stop: %v", err)
	}
	if IsSocketListening(socketPath) {
		t.Error("socket still listening after stop")
	}
}
