package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/VaXeS13/MP-sub002/internal/logger"
)

// State is the link's connection state.
type State string

const (
	StateDisconnected State = "Disconnected"
	StateConnecting   State = "Connecting"
	StateConnected    State = "Connected"
	StateReconnecting State = "Reconnecting"
)

// ConnectionError covers link establishment and send failures. It triggers
// reconnect backoff and never terminates the agent process.
type ConnectionError struct {
	Op    string
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("realtime %s: %v", e.Op, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// BackoffDelay is the fixed reconnect schedule: immediate, 2s, 10s, then
// 30s for every further attempt. Bounds reconnection latency while avoiding
// a thundering herd.
func BackoffDelay(attempt int) time.Duration {
	switch {
	case attempt <= 0:
		return 0
	case attempt == 1:
		return 2 * time.Second
	case attempt == 2:
		return 10 * time.Second
	default:
		return 30 * time.Second
	}
}

// Link owns the single logical websocket connection to the cloud hub. It
// performs no interpretation of command semantics: inbound commands are
// handed to the registered handler as opaque bytes.
type Link struct {
	signer   *Signer
	snapshot func() RegistrationSnapshot

	mu        sync.Mutex
	conn      *websocket.Conn
	state     State
	serverURL string
	tenantID  string
	agentID   string

	onCommand func([]byte)
	onState   func(State)

	stopCh chan struct{}
	doneCh chan struct{}

	log zerolog.Logger
}

// NewLink builds a link. snapshot provides the registration payload sent
// once per successful connect.
func NewLink(signer *Signer, snapshot func() RegistrationSnapshot) *Link {
	return &Link{
		signer:   signer,
		snapshot: snapshot,
		state:    StateDisconnected,
		log:      logger.With("realtime-link"),
	}
}

// OnCommand registers the inbound command handler. Must be set before
// Connect.
func (l *Link) OnCommand(fn func([]byte)) { l.onCommand = fn }

// OnStateChange registers the state observer. Called outside the link lock.
func (l *Link) OnStateChange(fn func(State)) { l.onState = fn }

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) setState(s State) {
	l.mu.Lock()
	prev := l.state
	l.state = s
	fn := l.onState
	l.mu.Unlock()
	if prev != s && fn != nil {
		fn(s)
	}
}

// Connect establishes the channel, authenticates with a token derived from
// tenant/agent identity, pushes the registration snapshot and starts the
// receive loop. Fails loudly; the caller decides whether to retry.
func (l *Link) Connect(ctx context.Context, serverURL, tenantID, agentID string) error {
	l.mu.Lock()
	if l.state == StateConnected || l.state == StateConnecting {
		l.mu.Unlock()
		return &ConnectionError{Op: "connect", Cause: fmt.Errorf("already %s", l.state)}
	}
	l.serverURL = serverURL
	l.tenantID = tenantID
	l.agentID = agentID
	l.mu.Unlock()

	l.setState(StateConnecting)
	if err := l.dial(ctx); err != nil {
		l.setState(StateDisconnected)
		return err
	}

	l.mu.Lock()
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	l.mu.Unlock()
	l.setState(StateConnected)

	go l.receiveLoop()
	return nil
}

func (l *Link) dial(ctx context.Context) error {
	token, err := l.signer.Sign(l.tenantID, l.agentID)
	if err != nil {
		return &ConnectionError{Op: "sign token", Cause: err}
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.serverURL, header)
	if err != nil {
		return &ConnectionError{Op: "dial", Cause: err}
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	if err := l.register(); err != nil {
		l.closeConn()
		return err
	}
	l.log.Info().Str("url", l.serverURL).Msg("Connected to cloud hub")
	return nil
}

func (l *Link) register() error {
	if l.snapshot == nil {
		return nil
	}
	snap := l.snapshot()
	if err := l.send(FrameRegisterAgent, snap); err != nil {
		return &ConnectionError{Op: "register", Cause: err}
	}
	return nil
}

// Disconnect tears the link down and stops the receive loop.
func (l *Link) Disconnect() {
	l.mu.Lock()
	stopCh := l.stopCh
	doneCh := l.doneCh
	l.mu.Unlock()

	if stopCh != nil {
		select {
		case <-stopCh:
		default:
			close(stopCh)
		}
	}
	l.closeConn()
	if doneCh != nil {
		<-doneCh
	}
	l.setState(StateDisconnected)
}

func (l *Link) closeConn() {
	l.mu.Lock()
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
	l.mu.Unlock()
}

func (l *Link) send(frameType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", frameType, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return fmt.Errorf("not connected")
	}
	return l.conn.WriteJSON(Frame{Type: frameType, Payload: raw})
}

// SendCommandResponse reports a command outcome. Loud: the caller must see
// a delivery failure for responses.
func (l *Link) SendCommandResponse(resp CommandResponse) error {
	if err := l.send(FrameCommandResponse, resp); err != nil {
		return &ConnectionError{Op: "send response", Cause: err}
	}
	return nil
}

// SendDeviceStatus is best-effort telemetry: failures are logged, never
// returned.
func (l *Link) SendDeviceStatus(deviceID, status, details string, at time.Time) {
	err := l.send(FrameDeviceStatus, DeviceStatusReport{DeviceID: deviceID, Status: status, Details: details, Timestamp: at})
	if err != nil {
		l.log.Warn().Err(err).Str("device", deviceID).Msg("Device status report dropped")
	}
}

// SendHeartbeat is best-effort: failures are logged, never returned.
func (l *Link) SendHeartbeat() {
	l.mu.Lock()
	agentID := l.agentID
	l.mu.Unlock()
	if err := l.send(FrameHeartbeat, Heartbeat{AgentID: agentID, At: time.Now()}); err != nil {
		l.log.Warn().Err(err).Msg("Heartbeat dropped")
	}
}

func (l *Link) receiveLoop() {
	l.mu.Lock()
	stopCh := l.stopCh
	doneCh := l.doneCh
	l.mu.Unlock()
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		l.mu.Lock()
		conn := l.conn
		l.mu.Unlock()

		if conn == nil {
			if !l.reconnect() {
				return
			}
			continue
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stopCh:
				return
			default:
			}
			l.log.Error().Err(err).Msg("Connection lost")
			l.closeConn()
			if !l.reconnect() {
				return
			}
			continue
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			l.log.Error().Err(err).Msg("Malformed frame dropped")
			continue
		}
		if frame.Type == FrameExecuteCommand && l.onCommand != nil {
			l.onCommand(frame.Payload)
		}
	}
}

// reconnect retries forever on the fixed schedule until it succeeds or the
// link is stopped. Returns false when stopped.
func (l *Link) reconnect() bool {
	l.setState(StateReconnecting)
	for attempt := 0; ; attempt++ {
		delay := BackoffDelay(attempt)
		if delay > 0 {
			select {
			case <-l.stopCh:
				return false
			case <-time.After(delay):
			}
		}
		select {
		case <-l.stopCh:
			return false
		default:
		}

		l.log.Info().Int("attempt", attempt+1).Msg("Reconnecting to cloud hub")
		if err := l.dial(context.Background()); err != nil {
			l.log.Error().Err(err).Int("attempt", attempt+1).Msg("Reconnect failed")
			continue
		}
		l.setState(StateConnected)
		return true
	}
}
