package englify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/englify-app/englify/pkg/core"
)

// fakeScheduler replaces the wall clock and timer creation so tests drive
// time explicitly.
type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	delays []time.Duration
}

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{now: time.Unix(1700000000, 0)}
}

func (s *fakeScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) timerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{at: s.now.Add(d), f: f}
	s.timers = append(s.timers, t)
	s.delays = append(s.delays, d)
	return t
}

// Advance moves the clock to now+d, firing due timers in deadline order.
// Timers armed by fired callbacks participate if they fall inside the window.
func (s *fakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range s.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			break
		}
		next.fired = true
		if next.at.After(s.now) {
			s.now = next.at
		}
		f := next.f
		s.mu.Unlock()
		f()
		s.mu.Lock()
	}
	s.now = target
	s.mu.Unlock()
}

// pending counts timers that are armed and not yet fired or stopped.
func (s *fakeScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeChannel is a scriptable control channel.
type fakeChannel struct {
	mu     sync.Mutex
	sent   [][]byte
	open   bool
	closed atomic.Bool
}

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return errors.New("channel closed")
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeChannel) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	c.closed.Store(true)
	return nil
}

func (c *fakeChannel) sentTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var types []string
	for _, data := range c.sent {
		var msg struct {
			Type string `json:"type"`
		}
		json.Unmarshal(data, &msg)
		types = append(types, msg.Type)
	}
	return types
}

// fakeTransport hands out fakeChannels and keeps the event callbacks so
// tests can inject protocol activity.
type fakeTransport struct {
	mu       sync.Mutex
	connects int
	channel  *fakeChannel
	events   ChannelEvents
	// signalOnConnect immediately reports transport and channel readiness,
	// as the real transport does.
	signalOnConnect bool
	failWith        error
}

func (t *fakeTransport) Connect(ctx context.Context, model, secret string, events ChannelEvents) (ControlChannel, error) {
	t.mu.Lock()
	t.connects++
	if t.failWith != nil {
		err := t.failWith
		t.mu.Unlock()
		return nil, err
	}
	ch := &fakeChannel{open: true}
	t.channel = ch
	t.events = events
	signal := t.signalOnConnect
	t.mu.Unlock()

	if signal {
		events.OnTransportState(true)
		events.OnOpen()
	}
	return ch, nil
}

func (t *fakeTransport) connectCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

type fakeTrack struct{ stopped atomic.Bool }

func (t *fakeTrack) Stop() { t.stopped.Store(true) }

type fakeMedia struct {
	track *fakeTrack
	err   error
}

func (m *fakeMedia) Acquire(ctx context.Context) (MediaTrack, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.track = &fakeTrack{}
	return m.track, nil
}

func okCredentials(ctx context.Context, model, voice string) (string, error) {
	return "ephemeral-secret", nil
}

func newTestSession(t *testing.T, sched *fakeScheduler, transport *fakeTransport, opts RealtimeOptions) *RealtimeSession {
	t.Helper()
	if opts.Credentials == nil {
		opts.Credentials = okCredentials
	}
	opts.Transport = transport
	s := NewRealtimeSession(nil, opts)
	s.now = sched.Now
	s.afterFunc = sched.AfterFunc
	return s
}

func waitClosed(t *testing.T, ch *fakeChannel) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if ch.closed.Load() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("channel never closed")
}

func TestConnectRequiresBothReadinessSignals(t *testing.T) {
	sched := newFakeScheduler()
	transport := &fakeTransport{}
	s := newTestSession(t, sched, transport, RealtimeOptions{Model: "m", Voice: "v"})

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if got := s.State(); got != StateConnecting {
		t.Fatalf("state = %v before readiness, want connecting", got)
	}

	transport.events.OnOpen()
	if got := s.State(); got != StateConnecting {
		t.Fatalf("state = %v with channel open only, want connecting", got)
	}
	transport.events.OnTransportState(true)
	if got := s.State(); got != StateConnected {
		t.Fatalf("state = %v with both signals, want connected", got)
	}
}

func TestConnectReadinessSignalsInReverseOrder(t *testing.T) {
	sched := newFakeScheduler()
	transport := &fakeTransport{}
	s := newTestSession(t, sched, transport, RealtimeOptions{})

	s.Connect(context.Background())
	transport.events.OnTransportState(true)
	if got := s.State(); got != StateConnecting {
		t.Fatalf("state = %v with transport only, want connecting", got)
	}
	transport.events.OnOpen()
	if got := s.State(); got != StateConnected {
		t.Fatalf("state = %v, want connected", got)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	sched := newFakeScheduler()
	transport := &fakeTransport{signalOnConnect: true}
	media := &fakeMedia{}
	s := newTestSession(t, sched, transport, RealtimeOptions{Media: media})

	s.Connect(context.Background())
	if got := s.State(); got != StateConnected {
		t.Fatalf("state = %v, want connected", got)
	}

	s.Disconnect()
	s.Disconnect()

	if got := s.State(); got != StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}
	if s.SessionID() != "" {
		t.Fatalf("session id not cleared")
	}
	if n := sched.pending(); n != 0 {
		t.Fatalf("%d timers still outstanding after disconnect", n)
	}
	if !media.track.stopped.Load() {
		t.Fatal("media track not released")
	}
	waitClosed(t, transport.channel)
}

func TestNoReconnectAfterManualDisconnect(t *testing.T) {
	sched := newFakeScheduler()
	transport := &fakeTransport{signalOnConnect: true}
	s := newTestSession(t, sched, transport, RealtimeOptions{})

	s.Connect(context.Background())
	events := transport.events
	s.Disconnect()

	// The transport reports the closure after the manual teardown.
	events.OnClose(errors.New("going away"))
	sched.Advance(time.Minute)

	if got := transport.connectCount(); got != 1 {
		t.Fatalf("connect count = %d after manual disconnect, want 1", got)
	}
	if got := s.State(); got != StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}
}

func TestReconnectBackoffAndBound(t *testing.T) {
	sched := newFakeScheduler()
	transport := &fakeTransport{signalOnConnect: true}

	var failing atomic.Bool
	creds := func(ctx context.Context, model, voice string) (string, error) {
		if failing.Load() {
			return "", errors.New("credential endpoint down")
		}
		return "secret", nil
	}
	s := newTestSession(t, sched, transport, RealtimeOptions{Credentials: creds})

	s.Connect(context.Background())
	if got := s.State(); got != StateConnected {
		t.Fatalf("state = %v, want connected", got)
	}

	// Every subsequent attempt fails, so the machine walks the whole budget.
	failing.Store(true)
	transport.events.OnClose(errors.New("connection reset"))

	sched.Advance(time.Hour)

	// One manual connect plus three automatic attempts.
	if got := transport.connectCount(); got != 1 {
		t.Fatalf("transport dials = %d, want 1 (credential failures precede dialing)", got)
	}

	var reconnectDelays []time.Duration
	sched.mu.Lock()
	for _, d := range sched.delays {
		if d < livenessInterval {
			reconnectDelays = append(reconnectDelays, d)
		}
	}
	sched.mu.Unlock()

	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	if len(reconnectDelays) != len(want) {
		t.Fatalf("reconnect delays = %v, want %v", reconnectDelays, want)
	}
	for i := range want {
		if reconnectDelays[i] != want[i] {
			t.Fatalf("delay %d = %v, want %v", i+1, reconnectDelays[i], want[i])
		}
	}
	if got := s.State(); got != StateIdle {
		t.Fatalf("state = %v after exhausting attempts, want idle", got)
	}
}

func TestReconnectCounterResetsOnSuccess(t *testing.T) {
	sched := newFakeScheduler()
	transport := &fakeTransport{signalOnConnect: true}
	s := newTestSession(t, sched, transport, RealtimeOptions{})

	s.Connect(context.Background())
	transport.events.OnClose(errors.New("reset"))
	sched.Advance(2 * time.Second)

	if got := s.State(); got != StateConnected {
		t.Fatalf("state = %v after automatic reconnect, want connected", got)
	}

	// A fresh closure gets the full budget again, starting at the base delay.
	transport.events.OnClose(errors.New("reset again"))
	sched.Advance(1500 * time.Millisecond)
	if got := s.State(); got != StateConnected {
		t.Fatalf("state = %v, want reconnected within base delay", got)
	}
}

func TestStaleSessionTearsDownAndReschedules(t *testing.T) {
	sched := newFakeScheduler()
	transport := &fakeTransport{signalOnConnect: true}
	s := newTestSession(t, sched, transport, RealtimeOptions{})

	s.Connect(context.Background())
	first := transport.channel

	// 61 simulated seconds with no inbound events: the sweep at 70s sees a
	// lapse past the 60s budget and recycles the connection.
	sched.Advance(71 * time.Second)

	waitClosed(t, first)
	s.mu.Lock()
	manual := s.manualTeardown
	s.mu.Unlock()
	if manual {
		t.Fatal("staleness teardown must not look like a user disconnect")
	}
	if got := transport.connectCount(); got != 2 {
		t.Fatalf("connect count = %d, want reconnect after staleness", got)
	}
	if got := s.State(); got != StateConnected {
		t.Fatalf("state = %v, want reconnected", got)
	}
}

func TestInboundEventsKeepSessionAlive(t *testing.T) {
	sched := newFakeScheduler()
	transport := &fakeTransport{signalOnConnect: true}
	s := newTestSession(t, sched, transport, RealtimeOptions{})

	s.Connect(context.Background())
	for i := 0; i < 12; i++ {
		sched.Advance(9 * time.Second)
		transport.events.OnMessage([]byte(`{"type":"response.audio.delta"}`))
	}
	if got := transport.connectCount(); got != 1 {
		t.Fatalf("connect count = %d, want 1 while events flow", got)
	}
	if got := s.State(); got != StateConnected {
		t.Fatalf("state = %v, want connected", got)
	}
}

func TestConnectCredentialFailure(t *testing.T) {
	sched := newFakeScheduler()
	transport := &fakeTransport{signalOnConnect: true}
	media := &fakeMedia{}
	creds := func(ctx context.Context, model, voice string) (string, error) {
		return "", errors.New("payload missing client secret")
	}
	s := newTestSession(t, sched, transport, RealtimeOptions{Credentials: creds, Media: media})

	err := s.Connect(context.Background())
	var cerr *core.Error
	if !errors.As(err, &cerr) || cerr.Type != core.ErrCredential {
		t.Fatalf("Connect() error = %v, want credential error", err)
	}
	if got := s.State(); got != StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}
	if transport.connectCount() != 0 {
		t.Fatal("transport dialed despite credential failure")
	}
	if media.track != nil {
		t.Fatal("media acquired despite credential failure")
	}
	if n := sched.pending(); n != 0 {
		t.Fatalf("%d timers scheduled after manual connect failure, want 0", n)
	}
}

func TestConnectMediaFailureReleasesNothing(t *testing.T) {
	sched := newFakeScheduler()
	transport := &fakeTransport{signalOnConnect: true}
	media := &fakeMedia{err: errors.New("permission denied")}
	s := newTestSession(t, sched, transport, RealtimeOptions{Media: media})

	err := s.Connect(context.Background())
	var cerr *core.Error
	if !errors.As(err, &cerr) || cerr.Type != core.ErrMediaAccess {
		t.Fatalf("Connect() error = %v, want media access error", err)
	}
	if got := s.State(); got != StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}
	if transport.connectCount() != 0 {
		t.Fatal("transport dialed despite media failure")
	}
}

func TestDisconnectDuringConnectDiscardsAttempt(t *testing.T) {
	sched := newFakeScheduler()
	transport := &fakeTransport{signalOnConnect: true}

	release := make(chan struct{})
	creds := func(ctx context.Context, model, voice string) (string, error) {
		<-release
		return "secret", nil
	}
	s := newTestSession(t, sched, transport, RealtimeOptions{Credentials: creds})

	done := make(chan error, 1)
	go func() { done <- s.Connect(context.Background()) }()

	// Wait for the attempt to enter connecting, then cancel it.
	for i := 0; i < 200 && s.State() != StateConnecting; i++ {
		time.Sleep(time.Millisecond)
	}
	s.Disconnect()
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("abandoned Connect() error: %v", err)
	}
	if got := s.State(); got != StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}
	if transport.connectCount() != 0 {
		t.Fatal("abandoned attempt still dialed the transport")
	}
}

func TestSessionCreatedSetupSequence(t *testing.T) {
	sched := newFakeScheduler()
	transport := &fakeTransport{signalOnConnect: true}
	s := newTestSession(t, sched, transport, RealtimeOptions{
		Config:      SessionConfig{Modalities: []string{"audio", "text"}, Voice: "verse"},
		Instruction: "Greet the student and suggest a topic.",
	})

	s.Connect(context.Background())
	transport.events.OnMessage([]byte(`{"type":"session.created","session":{"id":"sess_1"}}`))

	if got := s.SessionID(); got != "sess_1" {
		t.Fatalf("session id = %q, want sess_1", got)
	}

	sched.Advance(configureDelay)
	if types := transport.channel.sentTypes(); len(types) != 1 || types[0] != "session.update" {
		t.Fatalf("sent after configure delay = %v, want [session.update]", types)
	}

	sched.Advance(instructionDelay + triggerDelay)
	want := []string{"session.update", "conversation.item.create", "response.create"}
	got := transport.channel.sentTypes()
	if len(got) != len(want) {
		t.Fatalf("sent = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sent[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// A second session.created must not reassign the id.
	transport.events.OnMessage([]byte(`{"type":"session.created","session":{"id":"sess_2"}}`))
	if got := s.SessionID(); got != "sess_1" {
		t.Fatalf("session id reassigned to %q", got)
	}
}

func TestDelayedSendsCheckChannelState(t *testing.T) {
	sched := newFakeScheduler()
	transport := &fakeTransport{signalOnConnect: true}
	s := newTestSession(t, sched, transport, RealtimeOptions{Instruction: "hello"})

	s.Connect(context.Background())
	transport.events.OnMessage([]byte(`{"type":"session.created","session":{"id":"sess_1"}}`))

	// The channel dies before any of the delayed sends fire.
	transport.channel.Close()
	sched.Advance(time.Second)

	if types := transport.channel.sentTypes(); len(types) != 0 {
		t.Fatalf("sent on a closed channel: %v", types)
	}
}

func TestTranscriptEvents(t *testing.T) {
	sched := newFakeScheduler()
	transport := &fakeTransport{signalOnConnect: true}
	s := newTestSession(t, sched, transport, RealtimeOptions{})

	s.Connect(context.Background())
	ev := transport.events

	ev.OnMessage([]byte(`{"type":"conversation.item.input_audio_transcription.completed","transcript":"How do I say hola?"}`))
	ev.OnMessage([]byte(`{"type":"response.audio_transcript.done","transcript":"You say hello."}`))
	ev.OnMessage([]byte(`{"type":"response.done","response":{"output":[{"role":"assistant","content":[{"type":"text","text":"Anything else?"}]}]}}`))

	turns := s.Turns()
	if len(turns) != 3 {
		t.Fatalf("transcript has %d turns, want 3: %+v", len(turns), turns)
	}
	wantRoles := []Role{RoleUser, RoleAssistant, RoleAssistant}
	wantText := []string{"How do I say hola?", "You say hello.", "Anything else?"}
	for i, turn := range turns {
		if turn.Role != wantRoles[i] || turn.Content != wantText[i] || !turn.Final {
			t.Fatalf("turn %d = %+v, want final %s %q", i, turn, wantRoles[i], wantText[i])
		}
	}
}

func TestSpeechEventsToggleTalking(t *testing.T) {
	sched := newFakeScheduler()
	transport := &fakeTransport{signalOnConnect: true}
	s := newTestSession(t, sched, transport, RealtimeOptions{})

	s.Connect(context.Background())
	ev := transport.events

	ev.OnMessage([]byte(`{"type":"input_audio_buffer.speech_started"}`))
	if got := s.State(); got != StateTalking {
		t.Fatalf("state = %v, want talking", got)
	}
	ev.OnMessage([]byte(`{"type":"input_audio_buffer.speech_stopped"}`))
	if got := s.State(); got != StateConnected {
		t.Fatalf("state = %v, want connected", got)
	}
}

func TestProtocolErrorSurfacesWithoutTeardown(t *testing.T) {
	sched := newFakeScheduler()
	transport := &fakeTransport{signalOnConnect: true}

	errs := make(chan error, 1)
	s := newTestSession(t, sched, transport, RealtimeOptions{
		OnError: func(err error) { errs <- err },
	})

	s.Connect(context.Background())
	transport.events.OnMessage([]byte(`{"type":"error","error":{"message":"rate limited"}}`))

	select {
	case err := <-errs:
		if err.Error() == "" {
			t.Fatal("surfaced error has no message")
		}
	case <-time.After(time.Second):
		t.Fatal("protocol error never surfaced")
	}
	if got := s.State(); got != StateConnected {
		t.Fatalf("state = %v after protocol error, want still connected", got)
	}
	if got := s.LastError(); got != "rate limited" {
		t.Fatalf("LastError() = %q, want rate limited", got)
	}
}

func TestUnknownEventsIgnoredButRefreshActivity(t *testing.T) {
	sched := newFakeScheduler()
	transport := &fakeTransport{signalOnConnect: true}
	s := newTestSession(t, sched, transport, RealtimeOptions{})

	s.Connect(context.Background())
	transport.events.OnMessage([]byte(`{"type":"some.future.event"}`))
	transport.events.OnMessage([]byte(`not even json`))

	if got := s.State(); got != StateConnected {
		t.Fatalf("state = %v, want connected", got)
	}
	if len(s.Turns()) != 0 {
		t.Fatal("unknown events must not touch the transcript")
	}
}

func TestSendUserTextForwardsWhenSessionAssigned(t *testing.T) {
	sched := newFakeScheduler()
	transport := &fakeTransport{signalOnConnect: true}
	s := newTestSession(t, sched, transport, RealtimeOptions{})

	s.Connect(context.Background())

	// Without a session id the turn is recorded locally only.
	if err := s.SendUserText("first"); err != nil {
		t.Fatalf("SendUserText() error: %v", err)
	}
	if types := transport.channel.sentTypes(); len(types) != 0 {
		t.Fatalf("sent without session id: %v", types)
	}

	transport.events.OnMessage([]byte(`{"type":"session.created","session":{"id":"sess_1"}}`))
	if err := s.SendUserText("second"); err != nil {
		t.Fatalf("SendUserText() error: %v", err)
	}
	sched.Advance(time.Second)

	found := false
	for _, typ := range transport.channel.sentTypes() {
		if typ == "conversation.item.create" {
			found = true
		}
	}
	if !found {
		t.Fatalf("conversation item never sent: %v", transport.channel.sentTypes())
	}

	turns := s.Turns()
	if len(turns) != 2 || turns[0].Content != "first" || turns[1].Content != "second" {
		t.Fatalf("transcript = %+v, want both user turns", turns)
	}
}

func TestTranscriptTailInvariant(t *testing.T) {
	var tr Transcript
	tr.UpdatePartial("He")
	tr.UpdatePartial("Hel")
	tr.UpdatePartial("Hello")

	assertTail := func() {
		t.Helper()
		turns := tr.Turns()
		open := 0
		for i, turn := range turns {
			if turn.Role == RoleAssistant && !turn.Final {
				open++
				if i != len(turns)-1 {
					t.Fatalf("non-final assistant turn at %d of %d", i, len(turns))
				}
			}
		}
		if open > 1 {
			t.Fatalf("%d open assistant turns, want at most 1", open)
		}
	}
	assertTail()

	// A new user turn seals the streaming tail first.
	tr.Append(RoleUser, "wait")
	assertTail()
	if turns := tr.Turns(); !turns[0].Final || turns[0].Content != "Hello" {
		t.Fatalf("tail not sealed before new turn: %+v", turns[0])
	}

	tr.UpdatePartial("Sure")
	assertTail()
	tr.FinalizePartial("Sure thing.")
	assertTail()
	turns := tr.Turns()
	last := turns[len(turns)-1]
	if !last.Final || last.Content != "Sure thing." {
		t.Fatalf("finalized tail = %+v", last)
	}
}

func TestDecodeInboundEventShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind eventKind
		text string
	}{
		{
			"item created",
			`{"type":"conversation.item.created","item":{"role":"assistant","content":[{"type":"text","text":"Hi there"}]}}`,
			eventAssistantMessage, "Hi there",
		},
		{
			"response done with transcript part",
			`{"type":"response.done","response":{"output":[{"role":"assistant","content":[{"type":"audio","transcript":"Spoken reply"}]}]}}`,
			eventAssistantMessage, "Spoken reply",
		},
		{
			"user item ignored",
			`{"type":"conversation.item.created","item":{"role":"user","content":[{"type":"text","text":"mine"}]}}`,
			eventUnknown, "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := decodeInboundEvent([]byte(tt.raw))
			if err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if ev.Kind != tt.kind || ev.Text != tt.text {
				t.Fatalf("event = %+v, want kind %s text %q", ev, tt.kind, tt.text)
			}
		})
	}
}

func TestReconnectAfterTransportFailureCounts(t *testing.T) {
	sched := newFakeScheduler()
	transport := &fakeTransport{signalOnConnect: true}
	s := newTestSession(t, sched, transport, RealtimeOptions{})

	s.Connect(context.Background())
	transport.mu.Lock()
	transport.failWith = fmt.Errorf("%w", core.NewNegotiationError("offer rejected"))
	transport.mu.Unlock()

	transport.events.OnClose(errors.New("reset"))
	sched.Advance(time.Hour)

	// Initial dial plus three automatic redials.
	if got := transport.connectCount(); got != 4 {
		t.Fatalf("dials = %d, want 4", got)
	}
	if got := s.State(); got != StateIdle {
		t.Fatalf("state = %v, want idle after budget exhausted", got)
	}
}
