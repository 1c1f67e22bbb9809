// Package ipc provides inter-process communication between the chatterd
// daemon and client applications (chatterctl, third-party tools).
//
// The protocol uses a fixed binary header for framing with JSON payloads:
// request/response for commands, plus event streaming for live
// blocked-key notifications.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Protocol version for compatibility checking
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x43495043 // "CIPC" - Chatterd IPC
)

// MessageType identifies the type of IPC message
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgHandshake    MessageType = 0x0003
	MsgHandshakeAck MessageType = 0x0004
	MsgError        MessageType = 0x0005
	MsgShutdown     MessageType = 0x0006

	// Status messages (0x01xx)
	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101

	// Stats operations (0x02xx)
	MsgStatsRequest    MessageType = 0x0200
	MsgStatsResponse   MessageType = 0x0201
	MsgResetStats      MessageType = 0x0202
	MsgResetStatsResp  MessageType = 0x0203
	MsgTopKeysRequest  MessageType = 0x0204
	MsgTopKeysResponse MessageType = 0x0205

	// Configuration (0x03xx)
	MsgGetConfig        MessageType = 0x0300
	MsgGetConfigResp    MessageType = 0x0301
	MsgReloadConfig     MessageType = 0x0302
	MsgReloadConfigResp MessageType = 0x0303
	MsgSetPolicy        MessageType = 0x0304
	MsgSetPolicyResp    MessageType = 0x0305

	// Capture control (0x04xx)
	MsgPauseCapture    MessageType = 0x0400
	MsgPauseResp       MessageType = 0x0401
	MsgResumeCapture   MessageType = 0x0402
	MsgResumeResp      MessageType = 0x0403
	MsgListDevices     MessageType = 0x0404
	MsgListDevicesResp MessageType = 0x0405

	// Event streaming (0x05xx)
	MsgSubscribe       MessageType = 0x0500
	MsgSubscribeResp   MessageType = 0x0501
	MsgUnsubscribe     MessageType = 0x0502
	MsgUnsubscribeResp MessageType = 0x0503
	MsgEvent           MessageType = 0x0504
)

// EventType identifies the type of streamed event
type EventType uint16

const (
	EventKeyBlocked     EventType = 0x0001
	EventConfigChanged  EventType = 0x0002
	EventCapturePaused  EventType = 0x0003
	EventCaptureResumed EventType = 0x0004
	EventDaemonShutdown EventType = 0x0005
)

// Header is the fixed-size message header (16 bytes)
type Header struct {
	Magic     uint32      // Protocol magic number
	Version   uint8       // Protocol version
	Flags     uint8       // Message flags
	Type      MessageType // Message type
	RequestID uint32      // Request ID for correlation
	Length    uint32      // Payload length (not including header)
}

// HeaderSize is the size of the header in bytes
const HeaderSize = 16

// Header flags
const (
	FlagJSON        uint8 = 0x01
	FlagStreamStart uint8 = 0x02
	FlagStreamEnd   uint8 = 0x04
)

// MaxPayloadSize caps a single message payload.
const MaxPayloadSize = 16 * 1024 * 1024

// Message wraps a header and payload
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Flags:     FlagJSON,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to a writer
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads a header from a reader
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}

	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}

	return h, nil
}

// Write writes the message to a writer
func (m *Message) Write(w io.Writer) error {
	if err := m.Header.Write(w); err != nil {
		return err
	}
	if len(m.Payload) > 0 {
		_, err := w.Write(m.Payload)
		return err
	}
	return nil
}

// ReadMessage reads a complete message from a reader
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayloadSize {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Request/Response payloads

// HandshakeRequest is sent by the client to initiate connection
type HandshakeRequest struct {
	ClientVersion   string `json:"client_version"`
	ClientName      string `json:"client_name"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// HandshakeResponse is sent by the server to acknowledge connection
type HandshakeResponse struct {
	ServerVersion   string `json:"server_version"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// ErrorResponse is sent when an operation fails
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error codes
const (
	ErrUnknown        = 1
	ErrInvalidRequest = 2
	ErrNotFound       = 3
	ErrInternalError  = 5
	ErrNotRunning     = 7
)

// StatusResponse contains daemon status
type StatusResponse struct {
	Version      string        `json:"version"`
	Uptime       time.Duration `json:"uptime"`
	StartedAt    time.Time     `json:"started_at"`
	Policy       string        `json:"policy"`
	Capturing    bool          `json:"capturing"`
	Paused       bool          `json:"paused"`
	Devices      []string      `json:"devices,omitempty"`
	EventsTotal  uint64        `json:"events_total"`
	BlockedTotal uint64        `json:"blocked_total"`
}

// StatsRequest requests blocked-key statistics.
type StatsRequest struct {
	// SinceMs restricts results to events after this Unix-millisecond
	// timestamp. Zero means all time.
	SinceMs int64 `json:"since_ms,omitempty"`
}

// KeyStats holds per-key counters.
type KeyStats struct {
	Key          uint16    `json:"key"`
	KeyName      string    `json:"key_name,omitempty"`
	PressCount   uint64    `json:"press_count"`
	BlockedCount uint64    `json:"blocked_count"`
	LastBlocked  time.Time `json:"last_blocked,omitempty"`
}

// StatsResponse contains blocked-key statistics.
type StatsResponse struct {
	EventsTotal  uint64     `json:"events_total"`
	BlockedTotal uint64     `json:"blocked_total"`
	Keys         []KeyStats `json:"keys"`
}

// ResetStatsResponse acknowledges a stats reset.
type ResetStatsResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TopKeysRequest requests the noisiest keys.
type TopKeysRequest struct {
	Limit int `json:"limit,omitempty"`
}

// ConfigResponse contains the running configuration.
type ConfigResponse struct {
	Config map[string]any `json:"config"`
}

// ReloadConfigResponse acknowledges a configuration reload.
type ReloadConfigResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SetPolicyRequest switches the active decision policy.
type SetPolicyRequest struct {
	Policy string `json:"policy"`
}

// SetPolicyResponse acknowledges a policy switch.
type SetPolicyResponse struct {
	Success bool   `json:"success"`
	Policy  string `json:"policy,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PauseResponse acknowledges pausing or resuming capture.
type PauseResponse struct {
	Success bool   `json:"success"`
	Paused  bool   `json:"paused"`
	Error   string `json:"error,omitempty"`
}

// ListDevicesResponse lists detected keyboard devices.
type ListDevicesResponse struct {
	Devices []string `json:"devices"`
}

// SubscribeRequest requests event subscription
type SubscribeRequest struct {
	Events []EventType `json:"events"` // Empty means all events
}

// SubscribeResponse acknowledges subscription
type SubscribeResponse struct {
	Success        bool   `json:"success"`
	SubscriptionID string `json:"subscription_id"`
}

// UnsubscribeRequest requests event unsubscription
type UnsubscribeRequest struct {
	SubscriptionID string `json:"subscription_id"`
}

// Event is a streamed event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// KeyBlockedEvent reports a chatter press that was suppressed.
type KeyBlockedEvent struct {
	Key         uint16 `json:"key"`
	KeyName     string `json:"key_name,omitempty"`
	DeltaMs     int64  `json:"delta_ms"`
	BlockedSeen uint64 `json:"blocked_seen"`
}

// Encode encodes a payload to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to a payload
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{
		Code:    code,
		Message: message,
	})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response message
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
