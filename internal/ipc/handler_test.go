package ipc

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"chatterd/internal/capture"
	"chatterd/internal/config"
	"chatterd/internal/engine"
	"chatterd/internal/filter"
	"chatterd/internal/stats"
)

func newTestHandler(t *testing.T, withStore bool) (*DaemonHandler, *capture.Simulated) {
	t.Helper()

	var store *stats.Store
	if withStore {
		var err error
		store, err = stats.Open(filepath.Join(t.TempDir(), "stats.db"), time.Hour)
		if err != nil {
			t.Fatalf("stats.Open: %v", err)
		}
		t.Cleanup(func() { store.Close() })
	}

	src := capture.NewSimulated()
	eng, err := engine.New(engine.Options{Source: src, Store: store})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("engine.Start: %v", err)
	}
	t.Cleanup(func() { eng.Stop() })

	return NewDaemonHandler(eng, nil, "test", nil), src
}

func injectChatter(src *capture.Simulated, key uint16, ts int64) {
	src.Inject(capture.KeyEvent{Code: key, Kind: filter.Press, TimestampMs: ts})
	src.Inject(capture.KeyEvent{Code: key, Kind: filter.Release, TimestampMs: ts + 10})
	src.Inject(capture.KeyEvent{Code: key, Kind: filter.Press, TimestampMs: ts + 15})
}

func request(t *testing.T, h *DaemonHandler, msgType MessageType, payload any) *Message {
	t.Helper()
	var raw []byte
	if payload != nil {
		var err error
		raw, err = Encode(payload)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	resp, err := h.HandleMessage(context.Background(), nil, NewMessage(msgType, 1, raw))
	if err != nil {
		t.Fatalf("HandleMessage(%v): %v", msgType, err)
	}
	if resp == nil {
		t.Fatalf("HandleMessage(%v): nil response", msgType)
	}
	return resp
}

func TestHandlerStatus(t *testing.T) {
	h, src := newTestHandler(t, true)
	injectChatter(src, 30, 1000)

	resp := request(t, h, MsgStatusRequest, nil)
	if resp.Header.Type != MsgStatusResponse {
		t.Fatalf("type = %v, want MsgStatusResponse", resp.Header.Type)
	}

	var status StatusResponse
	if err := Decode(resp.Payload, &status); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if status.Version != "test" {
		t.Errorf("Version = %q, want test", status.Version)
	}
	if !status.Capturing {
		t.Error("Capturing = false, want true")
	}
	if status.EventsTotal != 3 {
		t.Errorf("EventsTotal = %d, want 3", status.EventsTotal)
	}
	if status.BlockedTotal != 1 {
		t.Errorf("BlockedTotal = %d, want 1", status.BlockedTotal)
	}
}

func TestHandlerStats(t *testing.T) {
	h, src := newTestHandler(t, true)
	injectChatter(src, 30, 1000)
	injectChatter(src, 57, 2000)

	resp := request(t, h, MsgStatsRequest, &StatsRequest{})
	if resp.Header.Type != MsgStatsResponse {
		t.Fatalf("type = %v, want MsgStatsResponse", resp.Header.Type)
	}

	var st StatsResponse
	if err := Decode(resp.Payload, &st); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if st.BlockedTotal != 2 {
		t.Errorf("BlockedTotal = %d, want 2", st.BlockedTotal)
	}
	if len(st.Keys) != 2 {
		t.Fatalf("len(Keys) = %d, want 2", len(st.Keys))
	}
	for _, k := range st.Keys {
		if k.BlockedCount != 1 {
			t.Errorf("key %d BlockedCount = %d, want 1", k.Key, k.BlockedCount)
		}
		if k.KeyName == "" {
			t.Errorf("key %d has no name", k.Key)
		}
	}
}

func TestHandlerStatsSince(t *testing.T) {
	h, src := newTestHandler(t, true)
	injectChatter(src, 30, 1000)
	injectChatter(src, 57, 5000)

	resp := request(t, h, MsgStatsRequest, &StatsRequest{SinceMs: 3000})
	var st StatsResponse
	if err := Decode(resp.Payload, &st); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(st.Keys) != 1 {
		t.Fatalf("len(Keys) = %d, want 1", len(st.Keys))
	}
	if st.Keys[0].Key != 57 {
		t.Errorf("key = %d, want 57", st.Keys[0].Key)
	}
}

func TestHandlerStatsDisabled(t *testing.T) {
	h, _ := newTestHandler(t, false)

	resp := request(t, h, MsgStatsRequest, nil)
	if resp.Header.Type != MsgError {
		t.Fatalf("type = %v, want MsgError", resp.Header.Type)
	}
}

func TestHandlerTopKeys(t *testing.T) {
	h, src := newTestHandler(t, true)
	injectChatter(src, 30, 1000)
	injectChatter(src, 30, 2000)
	injectChatter(src, 57, 3000)

	resp := request(t, h, MsgTopKeysRequest, &TopKeysRequest{Limit: 1})
	if resp.Header.Type != MsgTopKeysResponse {
		t.Fatalf("type = %v, want MsgTopKeysResponse", resp.Header.Type)
	}

	var st StatsResponse
	if err := Decode(resp.Payload, &st); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(st.Keys) != 1 {
		t.Fatalf("len(Keys) = %d, want 1", len(st.Keys))
	}
	if st.Keys[0].Key != 30 {
		t.Errorf("top key = %d, want 30", st.Keys[0].Key)
	}
	if st.Keys[0].BlockedCount != 2 {
		t.Errorf("top key blocked = %d, want 2", st.Keys[0].BlockedCount)
	}
}

func TestHandlerResetStats(t *testing.T) {
	h, src := newTestHandler(t, true)
	injectChatter(src, 30, 1000)

	resp := request(t, h, MsgResetStats, nil)
	var ack ResetStatsResponse
	if err := Decode(resp.Payload, &ack); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !ack.Success {
		t.Fatalf("reset failed: %s", ack.Error)
	}

	resp = request(t, h, MsgStatsRequest, nil)
	var st StatsResponse
	if err := Decode(resp.Payload, &st); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(st.Keys) != 0 {
		t.Errorf("len(Keys) = %d after reset, want 0", len(st.Keys))
	}
}

func TestHandlerGetConfig(t *testing.T) {
	h, _ := newTestHandler(t, false)

	resp := request(t, h, MsgGetConfig, nil)
	if resp.Header.Type != MsgGetConfigResp {
		t.Fatalf("type = %v, want MsgGetConfigResp", resp.Header.Type)
	}

	var cr ConfigResponse
	if err := Decode(resp.Payload, &cr); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := cr.Config["filter"]; !ok {
		t.Error("config missing filter section")
	}
}

func TestHandlerSetPolicy(t *testing.T) {
	h, _ := newTestHandler(t, false)

	resp := request(t, h, MsgSetPolicy, &SetPolicyRequest{Policy: "pattern"})
	var ack SetPolicyResponse
	if err := Decode(resp.Payload, &ack); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !ack.Success {
		t.Fatalf("set policy failed: %s", ack.Error)
	}
	if ack.Policy != "pattern" {
		t.Errorf("Policy = %q, want pattern", ack.Policy)
	}
}

func TestHandlerSetPolicyInvalid(t *testing.T) {
	h, _ := newTestHandler(t, false)

	resp := request(t, h, MsgSetPolicy, &SetPolicyRequest{Policy: "bogus"})
	var ack SetPolicyResponse
	if err := Decode(resp.Payload, &ack); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ack.Success {
		t.Error("set policy succeeded for unknown policy")
	}
}

func TestHandlerPauseResume(t *testing.T) {
	h, _ := newTestHandler(t, false)

	resp := request(t, h, MsgPauseCapture, nil)
	var ack PauseResponse
	if err := Decode(resp.Payload, &ack); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !ack.Success || !ack.Paused {
		t.Fatalf("pause ack = %+v", ack)
	}

	resp = request(t, h, MsgResumeCapture, nil)
	if err := Decode(resp.Payload, &ack); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !ack.Success || ack.Paused {
		t.Fatalf("resume ack = %+v", ack)
	}
}

func TestHandlerShutdown(t *testing.T) {
	src := capture.NewSimulated()
	eng, err := engine.New(engine.Options{Source: src})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	called := make(chan struct{}, 1)
	h := NewDaemonHandler(eng, nil, "test", func() { called <- struct{}{} })

	resp := request(t, h, MsgShutdown, nil)
	if resp.Header.Type != MsgPong {
		t.Fatalf("type = %v, want MsgPong", resp.Header.Type)
	}
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("shutdown callback never invoked")
	}
}

func TestHandlerUnknownType(t *testing.T) {
	h, _ := newTestHandler(t, false)

	resp := request(t, h, MessageType(0x7777), nil)
	if resp.Header.Type != MsgError {
		t.Fatalf("type = %v, want MsgError", resp.Header.Type)
	}
}

func TestHandlerReloadWithoutLoader(t *testing.T) {
	h, _ := newTestHandler(t, false)

	resp := request(t, h, MsgReloadConfig, nil)
	if resp.Header.Type != MsgError {
		t.Fatalf("type = %v, want MsgError", resp.Header.Type)
	}
}

func TestHandlerReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	loader := config.NewLoader(path)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	src := capture.NewSimulated()
	eng, err := engine.New(engine.Options{Config: loader.Config(), Source: src})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	h := NewDaemonHandler(eng, loader, "test", nil)

	resp := request(t, h, MsgReloadConfig, nil)
	var ack ReloadConfigResponse
	if err := Decode(resp.Payload, &ack); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !ack.Success {
		t.Fatalf("reload failed: %s", ack.Error)
	}
}
