package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Common errors
var (
	ErrNotConnected     = errors.New("not connected to daemon")
	ErrConnectionLost   = errors.New("connection to daemon lost")
	ErrTimeout          = errors.New("request timeout")
	ErrDaemonNotRunning = errors.New("daemon is not running")
)

// Client communicates with the chatterd daemon.
type Client struct {
	mu            sync.RWMutex
	conn          net.Conn
	serverVersion string

	connected atomic.Bool

	pending   map[uint32]chan *Message
	pendingMu sync.Mutex
	nextReqID atomic.Uint32

	eventChan    chan *Event
	eventHandler EventHandler
	eventMu      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	config ClientConfig
}

// ClientConfig configures the IPC client
type ClientConfig struct {
	SocketPath     string
	ListenAddr     string
	ClientName     string
	ClientVersion  string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(socketPath string) ClientConfig {
	return ClientConfig{
		SocketPath:     socketPath,
		ListenAddr:     "127.0.0.1:48632",
		ClientName:     "chatterctl",
		ClientVersion:  "1.0.0",
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// EventHandler is called when events are received
type EventHandler func(event *Event)

// NewClient creates a new IPC client
func NewClient(cfg ClientConfig) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	return &Client{
		pending:   make(map[uint32]chan *Message),
		eventChan: make(chan *Event, 100),
		ctx:       ctx,
		cancel:    cancel,
		config:    cfg,
	}
}

// Connect establishes a connection to the daemon and performs the
// protocol handshake.
func (c *Client) Connect() error {
	c.mu.Lock()

	if c.connected.Load() {
		c.mu.Unlock()
		return nil
	}

	conn, err := dial(c.config.SocketPath, c.config.ListenAddr)
	if err != nil {
		c.mu.Unlock()
		return ErrDaemonNotRunning
	}

	c.conn = conn
	c.connected.Store(true)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop()

	if err := c.handshake(); err != nil {
		c.close()
		return fmt.Errorf("handshake: %w", err)
	}

	return nil
}

// Close closes the connection to the daemon
func (c *Client) Close() error {
	c.cancel()
	c.close()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}

	return nil
}

// close closes the connection without signaling shutdown
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected.Store(false)

	c.pendingMu.Lock()
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = make(map[uint32]chan *Message)
	c.pendingMu.Unlock()
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// ServerVersion returns the daemon version reported at handshake.
func (c *Client) ServerVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverVersion
}

// SetEventHandler sets the handler for streamed events
func (c *Client) SetEventHandler(handler EventHandler) {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	c.eventHandler = handler
}

// Events returns the event channel for streaming events
func (c *Client) Events() <-chan *Event {
	return c.eventChan
}

// handshake performs the initial handshake with the server
func (c *Client) handshake() error {
	req := &HandshakeRequest{
		ClientVersion:   c.config.ClientVersion,
		ClientName:      c.config.ClientName,
		ProtocolVersion: ProtocolVersion,
	}

	resp, err := c.request(MsgHandshake, req)
	if err != nil {
		return err
	}

	if resp.Header.Type != MsgHandshakeAck {
		return fmt.Errorf("unexpected response type: %d", resp.Header.Type)
	}

	var ack HandshakeResponse
	if err := Decode(resp.Payload, &ack); err != nil {
		return err
	}

	c.mu.Lock()
	c.serverVersion = ack.ServerVersion
	c.mu.Unlock()

	return nil
}

// request sends a request and waits for a response
func (c *Client) request(msgType MessageType, payload any) (*Message, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	var data []byte
	if payload != nil {
		var err error
		data, err = Encode(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
	}

	reqID := c.nextReqID.Add(1)
	msg := NewMessage(msgType, reqID, data)

	respChan := make(chan *Message, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return nil, ErrNotConnected
	}

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := msg.Write(conn); err != nil {
		c.close()
		return nil, fmt.Errorf("write message: %w", err)
	}

	select {
	case resp, ok := <-respChan:
		if !ok {
			return nil, ErrConnectionLost
		}
		if resp.Header.Type == MsgError {
			var errResp ErrorResponse
			if err := Decode(resp.Payload, &errResp); err == nil {
				return nil, fmt.Errorf("daemon error %d: %s", errResp.Code, errResp.Message)
			}
			return nil, errors.New("daemon error")
		}
		return resp, nil
	case <-time.After(c.config.RequestTimeout):
		return nil, ErrTimeout
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

// readLoop reads messages from the connection
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		msg, err := ReadMessage(conn)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.sendPing()
				continue
			}
			c.close()
			return
		}

		c.handleMessage(msg)
	}
}

// handleMessage processes an incoming message
func (c *Client) handleMessage(msg *Message) {
	switch msg.Header.Type {
	case MsgPong:
		// Ping response, ignore

	case MsgPing:
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn != nil {
			pong := NewMessage(MsgPong, msg.Header.RequestID, nil)
			pong.Write(conn)
		}

	case MsgEvent:
		var event Event
		if err := Decode(msg.Payload, &event); err == nil {
			select {
			case c.eventChan <- &event:
			default:
			}

			c.eventMu.RLock()
			handler := c.eventHandler
			c.eventMu.RUnlock()
			if handler != nil {
				go handler(&event)
			}
		}

	default:
		c.pendingMu.Lock()
		if ch, ok := c.pending[msg.Header.RequestID]; ok {
			select {
			case ch <- msg:
			default:
			}
		}
		c.pendingMu.Unlock()
	}
}

// sendPing sends a ping to keep connection alive
func (c *Client) sendPing() {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn != nil {
		msg := NewMessage(MsgPing, c.nextReqID.Add(1), nil)
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		msg.Write(conn)
	}
}

// Typed convenience requests.

// Ping checks daemon liveness and returns the round-trip time.
func (c *Client) Ping() (time.Duration, error) {
	start := time.Now()
	resp, err := c.request(MsgPing, nil)
	if err != nil {
		return 0, err
	}
	if resp.Header.Type != MsgPong {
		return 0, fmt.Errorf("unexpected response type: %d", resp.Header.Type)
	}
	return time.Since(start), nil
}

// Status fetches daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	resp, err := c.request(MsgStatusRequest, nil)
	if err != nil {
		return nil, err
	}
	var status StatusResponse
	if err := Decode(resp.Payload, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Stats fetches blocked-key statistics.
func (c *Client) Stats(sinceMs int64) (*StatsResponse, error) {
	resp, err := c.request(MsgStatsRequest, &StatsRequest{SinceMs: sinceMs})
	if err != nil {
		return nil, err
	}
	var stats StatsResponse
	if err := Decode(resp.Payload, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// TopKeys fetches the keys with the most blocked presses.
func (c *Client) TopKeys(limit int) (*StatsResponse, error) {
	resp, err := c.request(MsgTopKeysRequest, &TopKeysRequest{Limit: limit})
	if err != nil {
		return nil, err
	}
	var stats StatsResponse
	if err := Decode(resp.Payload, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ResetStats clears all recorded statistics.
func (c *Client) ResetStats() error {
	resp, err := c.request(MsgResetStats, nil)
	if err != nil {
		return err
	}
	var ack ResetStatsResponse
	if err := Decode(resp.Payload, &ack); err != nil {
		return err
	}
	if !ack.Success {
		return fmt.Errorf("reset stats: %s", ack.Error)
	}
	return nil
}

// GetConfig fetches the running configuration.
func (c *Client) GetConfig() (map[string]any, error) {
	resp, err := c.request(MsgGetConfig, nil)
	if err != nil {
		return nil, err
	}
	var cfg ConfigResponse
	if err := Decode(resp.Payload, &cfg); err != nil {
		return nil, err
	}
	return cfg.Config, nil
}

// ReloadConfig asks the daemon to re-read its configuration file.
func (c *Client) ReloadConfig() error {
	resp, err := c.request(MsgReloadConfig, nil)
	if err != nil {
		return err
	}
	var ack ReloadConfigResponse
	if err := Decode(resp.Payload, &ack); err != nil {
		return err
	}
	if !ack.Success {
		return fmt.Errorf("reload config: %s", ack.Error)
	}
	return nil
}

// SetPolicy switches the active decision policy.
func (c *Client) SetPolicy(policy string) error {
	resp, err := c.request(MsgSetPolicy, &SetPolicyRequest{Policy: policy})
	if err != nil {
		return err
	}
	var ack SetPolicyResponse
	if err := Decode(resp.Payload, &ack); err != nil {
		return err
	}
	if !ack.Success {
		return fmt.Errorf("set policy: %s", ack.Error)
	}
	return nil
}

// PauseCapture suspends filtering; events pass through untouched.
func (c *Client) PauseCapture() error {
	return c.pauseResume(MsgPauseCapture)
}

// ResumeCapture resumes filtering.
func (c *Client) ResumeCapture() error {
	return c.pauseResume(MsgResumeCapture)
}

func (c *Client) pauseResume(msgType MessageType) error {
	resp, err := c.request(msgType, nil)
	if err != nil {
		return err
	}
	var ack PauseResponse
	if err := Decode(resp.Payload, &ack); err != nil {
		return err
	}
	if !ack.Success {
		return fmt.Errorf("capture control: %s", ack.Error)
	}
	return nil
}

// ListDevices fetches the keyboard devices the daemon sees.
func (c *Client) ListDevices() ([]string, error) {
	resp, err := c.request(MsgListDevices, nil)
	if err != nil {
		return nil, err
	}
	var devices ListDevicesResponse
	if err := Decode(resp.Payload, &devices); err != nil {
		return nil, err
	}
	return devices.Devices, nil
}

// Shutdown asks the daemon to exit cleanly.
func (c *Client) Shutdown() error {
	resp, err := c.request(MsgShutdown, nil)
	if err != nil {
		return err
	}
	if resp.Header.Type != MsgPong {
		return fmt.Errorf("unexpected response type: %d", resp.Header.Type)
	}
	return nil
}

// Subscribe subscribes to streamed events. An empty list means all
// event types.
func (c *Client) Subscribe(events ...EventType) error {
	resp, err := c.request(MsgSubscribe, &SubscribeRequest{Events: events})
	if err != nil {
		return err
	}
	var ack SubscribeResponse
	if err := Decode(resp.Payload, &ack); err != nil {
		return err
	}
	if !ack.Success {
		return errors.New("subscribe failed")
	}
	return nil
}
