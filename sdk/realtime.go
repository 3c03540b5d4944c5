package englify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/englify-app/englify/pkg/core"
)

// SessionState is the externally observable state of a realtime session.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateConnecting SessionState = "connecting"
	StateConnected  SessionState = "connected"
	StateTalking    SessionState = "talking"
)

const (
	maxReconnectAttempts = 3
	reconnectBaseDelay   = time.Second
	reconnectMaxDelay    = 5 * time.Second
	livenessInterval     = 10 * time.Second
	livenessTimeout      = 60 * time.Second

	configureDelay   = 50 * time.Millisecond
	instructionDelay = 150 * time.Millisecond
	triggerDelay     = 500 * time.Millisecond
)

// CredentialFunc mints an ephemeral realtime secret.
type CredentialFunc func(ctx context.Context, model, voice string) (string, error)

// timerHandle is a cancelable pending timer.
type timerHandle interface {
	Stop() bool
}

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool { return r.t.Stop() }

func stdAfterFunc(d time.Duration, f func()) timerHandle {
	return realTimer{t: time.AfterFunc(d, f)}
}

// RealtimeOptions configures a RealtimeSession.
type RealtimeOptions struct {
	Model string
	Voice string
	// Config is pushed to the remote session shortly after creation.
	Config SessionConfig
	// Instruction is the introductory instruction sent once the session is
	// configured, immediately followed (after a short delay) by a response
	// trigger.
	Instruction string

	Credentials CredentialFunc
	Transport   Transport
	// Media is optional; when nil no capture device is acquired.
	Media  MediaSource
	Logger *slog.Logger

	// OnStateChange observes public state transitions.
	OnStateChange func(SessionState)
	// OnError observes user-visible errors. Called outside the session lock.
	OnError func(error)
}

// RealtimeSession manages one realtime voice connection: connect and
// teardown, bounded reconnection with backoff, liveness detection, and the
// translation of protocol events into a transcript. All state mutation is
// serialized under one mutex; callbacks and timers re-enter through it.
type RealtimeSession struct {
	opts RealtimeOptions

	mu               sync.Mutex
	state            SessionState
	transportReady   bool
	channelReady     bool
	talking          bool
	sessionID        string
	reconnectAttempt int
	lastActivity     time.Time
	manualTeardown   bool
	lastError        string

	// generation increments on every teardown; in-flight work from a prior
	// generation is discarded when it completes.
	generation uint64

	channel    ControlChannel
	track      MediaTrack
	transcript Transcript

	reconnectTimer timerHandle
	livenessTimer  timerHandle
	followUps      []timerHandle

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) timerHandle
}

// NewRealtimeSession creates an idle session bound to a gateway client. The
// client supplies credentials unless RealtimeOptions.Credentials overrides.
func NewRealtimeSession(client *Client, opts RealtimeOptions) *RealtimeSession {
	if opts.Credentials == nil && client != nil {
		opts.Credentials = client.RealtimeCredential
	}
	if opts.Transport == nil {
		opts.Transport = NewWebSocketTransport()
	}
	if opts.Logger == nil {
		if client != nil && client.logger != nil {
			opts.Logger = client.logger
		} else {
			opts.Logger = slog.Default()
		}
	}
	return &RealtimeSession{
		opts:      opts,
		state:     StateIdle,
		now:       time.Now,
		afterFunc: stdAfterFunc,
	}
}

// State returns the current public state.
func (s *RealtimeSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the remote session id, empty until assigned.
func (s *RealtimeSession) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// LastError returns the most recent user-visible error message.
func (s *RealtimeSession) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Turns returns a snapshot of the session transcript.
func (s *RealtimeSession) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Turns()
}

// Connect establishes the realtime connection. An explicit call never counts
// against the automatic reconnect budget.
func (s *RealtimeSession) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil
	}
	s.manualTeardown = false
	s.lastError = ""
	s.mu.Unlock()
	return s.connect(ctx, false)
}

func (s *RealtimeSession) connect(ctx context.Context, auto bool) error {
	s.mu.Lock()
	if s.state != StateIdle || s.manualTeardown {
		s.mu.Unlock()
		return nil
	}
	s.setStateLocked(StateConnecting)
	gen := s.generation
	s.mu.Unlock()

	secret, err := s.opts.Credentials(ctx, s.opts.Model, s.opts.Voice)
	if err != nil {
		return s.failConnect(gen, auto, core.NewCredentialError(err.Error()))
	}
	if s.abandoned(gen) {
		return nil
	}

	var track MediaTrack
	if s.opts.Media != nil {
		track, err = s.opts.Media.Acquire(ctx)
		if err != nil {
			return s.failConnect(gen, auto, core.NewMediaAccessError(err.Error()))
		}
		if s.abandoned(gen) {
			track.Stop()
			return nil
		}
	}

	channel, err := s.opts.Transport.Connect(ctx, s.opts.Model, secret, ChannelEvents{
		OnTransportState: func(connected bool) { s.onTransportState(gen, connected) },
		OnOpen:           func() { s.onChannelOpen(gen) },
		OnMessage:        func(raw []byte) { s.onMessage(gen, raw) },
		OnClose:          func(err error) { s.onChannelClose(gen, err) },
	})
	if err != nil {
		if track != nil {
			track.Stop()
		}
		var cerr *core.Error
		if !errors.As(err, &cerr) {
			cerr = core.NewNegotiationError(err.Error())
		}
		return s.failConnect(gen, auto, cerr)
	}

	s.mu.Lock()
	if gen != s.generation || s.manualTeardown {
		// A disconnect won the race; this attempt is no longer wanted.
		s.mu.Unlock()
		channel.Close()
		if track != nil {
			track.Stop()
		}
		return nil
	}
	s.channel = channel
	s.track = track
	s.lastActivity = s.now()
	s.armLivenessLocked(gen)
	s.mu.Unlock()
	return nil
}

// failConnect tears down a failed attempt and surfaces the error. Automatic
// attempts reschedule within the reconnect budget; manual ones do not.
func (s *RealtimeSession) failConnect(gen uint64, auto bool, cerr *core.Error) error {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return nil
	}
	s.lastError = cerr.Message
	s.teardownLocked()
	if auto {
		s.scheduleReconnectLocked()
	}
	s.mu.Unlock()

	s.opts.Logger.Error("realtime connect failed", "type", cerr.Type, "error", cerr.Message)
	if s.opts.OnError != nil {
		s.opts.OnError(cerr)
	}
	return cerr
}

func (s *RealtimeSession) abandoned(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != s.generation || s.manualTeardown
}

// Disconnect releases all session resources and suppresses any automatic
// reconnection. Idempotent.
func (s *RealtimeSession) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle && s.channel == nil && s.reconnectTimer == nil && !s.manualTeardown {
		s.manualTeardown = true
		return
	}
	s.manualTeardown = true
	s.reconnectAttempt = 0
	s.transcript.Reset()
	s.teardownLocked()
}

// teardownLocked releases the channel, track, and all pending timers, resets
// readiness, clears the session id, and returns the machine to idle. It never
// touches manualTeardown.
func (s *RealtimeSession) teardownLocked() {
	s.generation++

	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.livenessTimer != nil {
		s.livenessTimer.Stop()
		s.livenessTimer = nil
	}
	for _, t := range s.followUps {
		t.Stop()
	}
	s.followUps = nil

	if s.channel != nil {
		ch := s.channel
		s.channel = nil
		go ch.Close()
	}
	if s.track != nil {
		s.track.Stop()
		s.track = nil
	}

	s.transportReady = false
	s.channelReady = false
	s.talking = false
	s.sessionID = ""
	s.setStateLocked(StateIdle)
}

// scheduleReconnectLocked arms the single outstanding reconnect timer, if the
// attempt budget allows. Delay grows with the attempt counter up to a cap.
func (s *RealtimeSession) scheduleReconnectLocked() {
	if s.manualTeardown || s.reconnectAttempt >= maxReconnectAttempts || s.reconnectTimer != nil {
		return
	}
	delay := reconnectBaseDelay * time.Duration(s.reconnectAttempt+1)
	if delay > reconnectMaxDelay {
		delay = reconnectMaxDelay
	}
	s.reconnectAttempt++
	attempt := s.reconnectAttempt

	s.opts.Logger.Info("scheduling realtime reconnect", "attempt", attempt, "delay", delay)
	s.reconnectTimer = s.afterFunc(delay, func() {
		s.mu.Lock()
		s.reconnectTimer = nil
		wanted := !s.manualTeardown && s.state == StateIdle
		s.mu.Unlock()
		if wanted {
			s.connect(context.Background(), true)
		}
	})
}

// armLivenessLocked starts the periodic staleness sweep for this generation.
func (s *RealtimeSession) armLivenessLocked(gen uint64) {
	s.livenessTimer = s.afterFunc(livenessInterval, func() { s.sweepLiveness(gen) })
}

func (s *RealtimeSession) sweepLiveness(gen uint64) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	connected := s.state == StateConnected || s.state == StateTalking
	if connected && !s.manualTeardown && s.now().Sub(s.lastActivity) > livenessTimeout {
		s.opts.Logger.Warn("realtime session stale, reconnecting",
			"idle", s.now().Sub(s.lastActivity))
		s.teardownLocked()
		s.scheduleReconnectLocked()
		s.mu.Unlock()
		return
	}
	s.armLivenessLocked(gen)
	s.mu.Unlock()
}

func (s *RealtimeSession) onTransportState(gen uint64, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	s.transportReady = connected
	s.refreshStateLocked()
}

func (s *RealtimeSession) onChannelOpen(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	s.channelReady = true
	s.refreshStateLocked()
}

// refreshStateLocked derives the public state from the two readiness
// booleans. A fresh connected transition resets the reconnect budget.
func (s *RealtimeSession) refreshStateLocked() {
	if s.transportReady && s.channelReady {
		if s.state == StateConnecting || s.state == StateIdle {
			s.reconnectAttempt = 0
			s.lastActivity = s.now()
			s.setStateLocked(StateConnected)
		}
	} else if s.state == StateConnected || s.state == StateTalking {
		s.setStateLocked(StateConnecting)
	}
}

func (s *RealtimeSession) onChannelClose(gen uint64, cause error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	wasActive := s.state != StateIdle
	s.teardownLocked()
	if wasActive && !s.manualTeardown {
		s.scheduleReconnectLocked()
	}
	s.mu.Unlock()

	if cause != nil {
		s.opts.Logger.Warn("control channel closed", "error", cause)
	}
}

func (s *RealtimeSession) onMessage(gen uint64, raw []byte) {
	ev, err := decodeInboundEvent(raw)
	if err != nil {
		s.opts.Logger.Warn("dropping malformed realtime event", "error", err)
		return
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.lastActivity = s.now()

	var surfaced string
	switch ev.Kind {
	case eventSessionCreated:
		if s.sessionID == "" {
			s.sessionID = ev.SessionID
			s.scheduleSetupLocked(gen)
		}

	case eventAssistantMessage, eventAssistantTranscript:
		if ev.Text != "" {
			s.transcript.Append(RoleAssistant, ev.Text)
		}

	case eventUserTranscript:
		if ev.Text != "" {
			s.transcript.Append(RoleUser, ev.Text)
		}

	case eventSpeechStarted:
		s.talking = true
		if s.state == StateConnected {
			s.setStateLocked(StateTalking)
		}

	case eventSpeechStopped:
		s.talking = false
		if s.state == StateTalking {
			s.setStateLocked(StateConnected)
		}

	case eventError:
		s.lastError = ev.ErrorMsg
		surfaced = ev.ErrorMsg

	default:
		s.opts.Logger.Debug("ignoring realtime event", "type", ev.RawType)
	}
	s.mu.Unlock()

	if surfaced != "" {
		s.opts.Logger.Error("realtime protocol error", "error", surfaced)
		if s.opts.OnError != nil {
			s.opts.OnError(core.NewProviderError("realtime", errors.New(surfaced)))
		}
	}
}

// scheduleSetupLocked queues the post-creation handshake: the configuration
// update, then the introductory instruction once the configuration has had
// time to apply, then the response trigger. Every send re-checks channel
// state at fire time.
func (s *RealtimeSession) scheduleSetupLocked(gen uint64) {
	s.queueSendLocked(gen, configureDelay, func() ([]byte, error) {
		return encodeSessionUpdate(s.opts.Config)
	})
	if s.opts.Instruction != "" {
		s.queueSendLocked(gen, instructionDelay, func() ([]byte, error) {
			return encodeItemCreate("user", s.opts.Instruction)
		})
		s.queueSendLocked(gen, instructionDelay+triggerDelay, func() ([]byte, error) {
			return encodeResponseCreate()
		})
	}
}

// queueSendLocked arms a delayed control-channel send that is dropped if the
// channel closed or the session was torn down during the delay.
func (s *RealtimeSession) queueSendLocked(gen uint64, delay time.Duration, encode func() ([]byte, error)) {
	s.followUps = append(s.followUps, s.afterFunc(delay, func() {
		s.mu.Lock()
		ch := s.channel
		stale := gen != s.generation || ch == nil || !ch.Open()
		s.mu.Unlock()
		if stale {
			return
		}
		data, err := encode()
		if err != nil {
			s.opts.Logger.Warn("encoding control message failed", "error", err)
			return
		}
		if err := ch.Send(data); err != nil {
			s.opts.Logger.Warn("control channel send failed", "error", err)
		}
	}))
}

// SendUserText appends a finalized user turn and, when a session id is
// assigned and the channel is open, forwards it as a conversation item with
// a delayed response trigger.
func (s *RealtimeSession) SendUserText(text string) error {
	if text == "" {
		return nil
	}
	s.mu.Lock()
	s.transcript.Append(RoleUser, text)
	ch := s.channel
	ready := s.sessionID != "" && ch != nil && ch.Open()
	if ready {
		gen := s.generation
		s.queueSendLocked(gen, triggerDelay, func() ([]byte, error) {
			return encodeResponseCreate()
		})
	}
	s.mu.Unlock()

	if !ready {
		return nil
	}
	data, err := encodeItemCreate("user", text)
	if err != nil {
		return err
	}
	return ch.Send(data)
}

func (s *RealtimeSession) setStateLocked(next SessionState) {
	if s.state == next {
		return
	}
	s.state = next
	if s.opts.OnStateChange != nil {
		// Observers must not re-enter the session; notify asynchronously.
		cb := s.opts.OnStateChange
		go cb(next)
	}
}
