package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coursebridge/launchgate/launch"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// State is the connection state of an embedding session.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

// TokenExchanger redeems a launch token for a runtime token. Implemented by
// *launch.Exchanger directly, or by an HTTP client when the exchange endpoint
// is remote.
type TokenExchanger interface {
	Exchange(ctx context.Context, rawToken, requestOrigin string) (*launch.Result, error)
}

// ErrNotStarted is returned by operations that need an exchanged runtime
// token before Start has succeeded.
var ErrNotStarted = errors.New("session not started")

// Controller supervises one embedding session: it exchanges the launch
// token, hands the runtime token to the content, and tracks the connection
// state machine from channel traffic. Messages from any origin other than
// the expected one are dropped without a state change; a malformed payload
// on a known message type is a protocol violation and moves the session to
// the error state.
type Controller struct {
	exchanger TokenExchanger
	channel   Channel
	forwarder Forwarder
	origin    string

	watchdog  time.Duration
	onSlow    func()
	nowFunc   func() time.Time
	logger    zerolog.Logger
	forwardWG sync.WaitGroup

	mu               sync.Mutex
	state            State
	runtimeToken     string
	expiresAt        time.Time
	lastHeartbeatAt  time.Time
	lastCheckpointAt time.Time
	watchdogTimer    *time.Timer
	unsubscribe      func()
}

// ControllerOption modifies a Controller.
type ControllerOption func(*Controller)

// WithWatchdog sets how long the session waits for a readiness signal before
// reporting the content as slow. Default 8s.
func WithWatchdog(d time.Duration) ControllerOption {
	return func(c *Controller) { c.watchdog = d }
}

// WithSlowStartFunc sets the non-fatal callback fired when the watchdog
// elapses. The session keeps waiting; content may still become ready.
func WithSlowStartFunc(fn func()) ControllerOption {
	return func(c *Controller) { c.onSlow = fn }
}

// WithControllerNowFunc sets the clock (primarily for testing).
func WithControllerNowFunc(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.nowFunc = now }
}

// WithControllerLogger sets the component logger.
func WithControllerLogger(logger zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

// NewController wires a session for content expected to talk from origin.
func NewController(exchanger TokenExchanger, channel Channel, forwarder Forwarder, origin string, options ...ControllerOption) (*Controller, error) {
	if exchanger == nil {
		return nil, errors.New("[NewController] exchanger is required")
	}
	if channel == nil {
		return nil, errors.New("[NewController] channel is required")
	}
	if forwarder == nil {
		return nil, errors.New("[NewController] forwarder is required")
	}
	if origin == "" {
		return nil, errors.New("[NewController] origin is required")
	}

	c := &Controller{
		exchanger: exchanger,
		channel:   channel,
		forwarder: forwarder,
		origin:    origin,
		watchdog:  8 * time.Second,
		nowFunc:   time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	c.state = StateIdle
	return c, nil
}

// Start exchanges the launch token and hands the runtime token to the
// content. On success the session is Connecting until the content signals
// readiness.
func (c *Controller) Start(ctx context.Context, launchToken string) error {
	res, err := c.exchanger.Exchange(ctx, launchToken, c.origin)
	if err != nil {
		c.mu.Lock()
		c.state = StateError
		c.mu.Unlock()
		return errors.Wrap(err, "[Controller.Start] exchange")
	}

	env, err := NewEnvelope(TypeRuntimeToken, RuntimeTokenPayload{
		RuntimeToken: res.RuntimeToken,
		ExpiresAt:    res.ExpiresAt,
	})
	if err != nil {
		return errors.Wrap(err, "[Controller.Start] envelope")
	}

	c.mu.Lock()
	c.runtimeToken = res.RuntimeToken
	c.expiresAt = res.ExpiresAt
	c.state = StateConnecting
	c.unsubscribe = c.channel.Subscribe(c.handle)
	c.watchdogTimer = time.AfterFunc(c.watchdog, c.watchdogFired)
	c.mu.Unlock()

	if err := c.channel.Send(env); err != nil {
		return errors.Wrap(err, "[Controller.Start] send")
	}
	return nil
}

// Resume asks the content to load its last checkpoint. Fire and forget;
// there is no reply correlation.
func (c *Controller) Resume(state json.RawMessage) error {
	c.mu.Lock()
	started := c.runtimeToken != ""
	c.mu.Unlock()
	if !started {
		return ErrNotStarted
	}

	env, err := NewEnvelope(TypeCheckpointLoad, CheckpointLoadPayload{State: state})
	if err != nil {
		return errors.Wrap(err, "[Controller.Resume] envelope")
	}
	return c.channel.Send(env)
}

// Close tears the session down: the watchdog is cancelled so it cannot fire
// after the surface is gone, and channel traffic is no longer handled.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.watchdogTimer != nil {
		c.watchdogTimer.Stop()
		c.watchdogTimer = nil
	}
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.state = StateIdle
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	c.forwardWG.Wait()
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastHeartbeatAt returns when the content last signalled liveness.
func (c *Controller) LastHeartbeatAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeatAt
}

// LastCheckpointAt returns when the content last saved a checkpoint.
func (c *Controller) LastCheckpointAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCheckpointAt
}

func (c *Controller) watchdogFired() {
	c.mu.Lock()
	slow := c.state == StateConnecting
	if slow {
		c.state = StateDisconnected
	}
	onSlow := c.onSlow
	c.mu.Unlock()

	if slow {
		c.logger.Warn().Str("origin", c.origin).Msg("content readiness is taking longer than expected")
		if onSlow != nil {
			onSlow()
		}
	}
}

func (c *Controller) handle(msg Inbound) {
	if msg.Origin != c.origin {
		// Not ours. Dropped, not surfaced.
		return
	}

	switch msg.Envelope.Type {
	case TypeReady, TypeHeartbeat:
		c.mu.Lock()
		c.state = StateConnected
		c.lastHeartbeatAt = c.nowFunc()
		c.mu.Unlock()

	case TypeCheckpointSave:
		var p CheckpointSavePayload
		if err := json.Unmarshal(msg.Envelope.Data, &p); err != nil {
			c.protocolViolation("checkpoint.save", err)
			return
		}
		c.mu.Lock()
		c.lastCheckpointAt = c.nowFunc()
		c.mu.Unlock()
		c.forward(func(ctx context.Context, bearer string) error {
			return c.forwarder.SaveCheckpoint(ctx, bearer, p.State)
		})

	case TypeProgress:
		var p ProgressPayload
		if err := json.Unmarshal(msg.Envelope.Data, &p); err != nil {
			c.protocolViolation("progress", err)
			return
		}
		c.forward(func(ctx context.Context, bearer string) error {
			return c.forwarder.WriteProgress(ctx, bearer, p.Pct, p.Topic)
		})

	case TypeAttemptCompleted:
		var p AttemptCompletedPayload
		if err := json.Unmarshal(msg.Envelope.Data, &p); err != nil {
			c.protocolViolation("attempt.completed", err)
			return
		}
		c.forward(func(ctx context.Context, bearer string) error {
			return c.forwarder.SubmitAttempt(ctx, bearer, p.Score, p.Max, p.Passed, p.RuntimeAttemptID)
		})

	case TypeError:
		var p ErrorPayload
		if err := json.Unmarshal(msg.Envelope.Data, &p); err != nil {
			c.protocolViolation("error", err)
			return
		}
		c.logger.Warn().Str("code", p.Code).Str("message", p.Message).Msg("content reported an error")

	default:
		// Unknown tags are ignored for forward compatibility.
	}
}

// forward relays one outbound write. Failures are logged and swallowed;
// telemetry never takes the session down.
func (c *Controller) forward(fn func(ctx context.Context, bearer string) error) {
	c.mu.Lock()
	bearer := c.runtimeToken
	c.mu.Unlock()

	c.forwardWG.Add(1)
	go func() {
		defer c.forwardWG.Done()
		if err := fn(context.Background(), bearer); err != nil {
			c.logger.Warn().Err(err).Msg("outcome forwarding failed")
		}
	}()
}

func (c *Controller) protocolViolation(msgType string, err error) {
	c.mu.Lock()
	c.state = StateError
	c.mu.Unlock()
	c.logger.Error().Err(err).Str("message_type", msgType).Msg("malformed channel message")
}
