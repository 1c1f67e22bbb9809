package ipc

import (
	"context"
	"sort"
	"time"

	"chatterd/internal/capture"
	"chatterd/internal/config"
	"chatterd/internal/engine"
	"chatterd/internal/stats"
)

// DaemonHandler serves control requests against the running engine.
type DaemonHandler struct {
	engine  *engine.Engine
	loader  *config.Loader
	version string

	// shutdown is invoked on MsgShutdown; typically cancels the daemon
	// context.
	shutdown func()
}

// NewDaemonHandler builds the daemon request handler. loader and
// shutdown may be nil.
func NewDaemonHandler(eng *engine.Engine, loader *config.Loader, version string, shutdown func()) *DaemonHandler {
	return &DaemonHandler{
		engine:   eng,
		loader:   loader,
		version:  version,
		shutdown: shutdown,
	}
}

// HandleMessage implements Handler.
func (h *DaemonHandler) HandleMessage(ctx context.Context, client *ClientConn, msg *Message) (*Message, error) {
	switch msg.Header.Type {
	case MsgStatusRequest:
		return h.handleStatus(msg)
	case MsgStatsRequest:
		return h.handleStats(msg)
	case MsgTopKeysRequest:
		return h.handleTopKeys(msg)
	case MsgResetStats:
		return h.handleResetStats(msg)
	case MsgGetConfig:
		return h.handleGetConfig(msg)
	case MsgReloadConfig:
		return h.handleReloadConfig(msg)
	case MsgSetPolicy:
		return h.handleSetPolicy(msg)
	case MsgPauseCapture:
		return h.handlePause(msg, true)
	case MsgResumeCapture:
		return h.handlePause(msg, false)
	case MsgListDevices:
		return h.handleListDevices(msg)
	case MsgShutdown:
		if h.shutdown != nil {
			// Ack before the daemon context unwinds.
			defer h.shutdown()
		}
		return NewMessage(MsgPong, msg.Header.RequestID, nil), nil
	default:
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest,
			"unknown message type"), nil
	}
}

func (h *DaemonHandler) handleStatus(msg *Message) (*Message, error) {
	snap := h.engine.Stats()
	devices, _ := capture.ListDevices()

	return NewResponse(MsgStatusResponse, msg.Header.RequestID, &StatusResponse{
		Version:      h.version,
		Uptime:       snap.Uptime,
		StartedAt:    snap.StartedAt,
		Policy:       snap.Policy,
		Capturing:    snap.Running,
		Paused:       snap.Paused,
		Devices:      devices,
		EventsTotal:  snap.EventsTotal,
		BlockedTotal: snap.BlockedTotal,
	})
}

func (h *DaemonHandler) handleStats(msg *Message) (*Message, error) {
	store := h.engine.Store()
	if store == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrNotFound,
			"statistics persistence is disabled"), nil
	}

	var req StatsRequest
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest,
				"malformed stats request"), nil
		}
	}

	// Surface buffered events before reading.
	if err := store.Flush(); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error()), nil
	}

	var keys []KeyStats
	if req.SinceMs > 0 {
		events, err := store.BlockedSince(req.SinceMs)
		if err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error()), nil
		}
		keys = aggregateBlocked(events)
	} else {
		counters, err := store.Counters()
		if err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error()), nil
		}
		keys = countersToStats(counters)
	}

	snap := h.engine.Stats()
	return NewResponse(MsgStatsResponse, msg.Header.RequestID, &StatsResponse{
		EventsTotal:  snap.EventsTotal,
		BlockedTotal: snap.BlockedTotal,
		Keys:         keys,
	})
}

func (h *DaemonHandler) handleTopKeys(msg *Message) (*Message, error) {
	store := h.engine.Store()
	if store == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrNotFound,
			"statistics persistence is disabled"), nil
	}

	var req TopKeysRequest
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest,
				"malformed top-keys request"), nil
		}
	}

	if err := store.Flush(); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error()), nil
	}

	counters, err := store.TopBlocked(req.Limit)
	if err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error()), nil
	}

	snap := h.engine.Stats()
	return NewResponse(MsgTopKeysResponse, msg.Header.RequestID, &StatsResponse{
		EventsTotal:  snap.EventsTotal,
		BlockedTotal: snap.BlockedTotal,
		Keys:         countersToStats(counters),
	})
}

func (h *DaemonHandler) handleResetStats(msg *Message) (*Message, error) {
	store := h.engine.Store()
	if store == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrNotFound,
			"statistics persistence is disabled"), nil
	}
	if err := store.Reset(); err != nil {
		return NewResponse(MsgResetStatsResp, msg.Header.RequestID,
			&ResetStatsResponse{Success: false, Error: err.Error()})
	}
	return NewResponse(MsgResetStatsResp, msg.Header.RequestID,
		&ResetStatsResponse{Success: true})
}

func (h *DaemonHandler) handleGetConfig(msg *Message) (*Message, error) {
	cfg := h.engine.Config()

	// Round-trip through JSON to get a generic map for the wire.
	raw, err := Encode(cfg)
	if err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error()), nil
	}
	var m map[string]any
	if err := Decode(raw, &m); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error()), nil
	}

	return NewResponse(MsgGetConfigResp, msg.Header.RequestID,
		&ConfigResponse{Config: m})
}

func (h *DaemonHandler) handleReloadConfig(msg *Message) (*Message, error) {
	if h.loader == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrNotFound,
			"no configuration file loaded"), nil
	}
	cfg, err := h.loader.Load()
	if err != nil {
		return NewResponse(MsgReloadConfigResp, msg.Header.RequestID,
			&ReloadConfigResponse{Success: false, Error: err.Error()})
	}
	if err := h.engine.Reload(cfg); err != nil {
		return NewResponse(MsgReloadConfigResp, msg.Header.RequestID,
			&ReloadConfigResponse{Success: false, Error: err.Error()})
	}
	return NewResponse(MsgReloadConfigResp, msg.Header.RequestID,
		&ReloadConfigResponse{Success: true})
}

func (h *DaemonHandler) handleSetPolicy(msg *Message) (*Message, error) {
	var req SetPolicyRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest,
			"malformed set-policy request"), nil
	}
	if err := h.engine.SetPolicy(req.Policy); err != nil {
		return NewResponse(MsgSetPolicyResp, msg.Header.RequestID,
			&SetPolicyResponse{Success: false, Error: err.Error()})
	}
	return NewResponse(MsgSetPolicyResp, msg.Header.RequestID,
		&SetPolicyResponse{Success: true, Policy: h.engine.PolicyName()})
}

func (h *DaemonHandler) handlePause(msg *Message, pause bool) (*Message, error) {
	respType := MsgPauseResp
	if pause {
		h.engine.Pause()
	} else {
		h.engine.Resume()
		respType = MsgResumeResp
	}
	return NewResponse(respType, msg.Header.RequestID,
		&PauseResponse{Success: true, Paused: h.engine.Paused()})
}

func (h *DaemonHandler) handleListDevices(msg *Message) (*Message, error) {
	devices, err := capture.ListDevices()
	if err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error()), nil
	}
	return NewResponse(MsgListDevicesResp, msg.Header.RequestID,
		&ListDevicesResponse{Devices: devices})
}

func countersToStats(counters []stats.KeyCounter) []KeyStats {
	out := make([]KeyStats, 0, len(counters))
	for _, c := range counters {
		ks := KeyStats{
			Key:          c.Key,
			KeyName:      engine.KeyName(c.Key),
			PressCount:   c.PressCount,
			BlockedCount: c.BlockedCount,
		}
		if c.LastBlockedMs > 0 {
			ks.LastBlocked = time.UnixMilli(c.LastBlockedMs)
		}
		out = append(out, ks)
	}
	return out
}

// aggregateBlocked folds journal rows into per-key stats, ordered by
// blocked count descending.
func aggregateBlocked(events []stats.BlockedEvent) []KeyStats {
	byKey := make(map[uint16]*KeyStats)
	for _, ev := range events {
		ks, ok := byKey[ev.Key]
		if !ok {
			ks = &KeyStats{Key: ev.Key, KeyName: engine.KeyName(ev.Key)}
			byKey[ev.Key] = ks
		}
		ks.BlockedCount++
		if t := time.UnixMilli(ev.TimestampMs); t.After(ks.LastBlocked) {
			ks.LastBlocked = t
		}
	}

	out := make([]KeyStats, 0, len(byKey))
	for _, ks := range byKey {
		out = append(out, *ks)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].BlockedCount > out[j].BlockedCount
	})
	return out
}
