package englify

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/englify-app/englify/pkg/core"
)

// DefaultRealtimeEndpoint is the remote realtime control endpoint.
const DefaultRealtimeEndpoint = "wss://api.openai.com/v1/realtime"

// ChannelEvents carries the callbacks a control channel invokes. Transport
// readiness and channel readiness are reported independently; either may
// arrive first.
type ChannelEvents struct {
	// OnTransportState reports the underlying transport's connectivity.
	OnTransportState func(connected bool)
	// OnOpen fires once the control channel is ready to exchange events.
	OnOpen func()
	// OnMessage delivers one inbound event payload. Called from a single
	// goroutine in receipt order.
	OnMessage func(raw []byte)
	// OnClose fires once when the channel shuts down, with the cause for
	// unexpected closures and nil for local ones.
	OnClose func(err error)
}

// ControlChannel is the ordered, reliable event channel of a realtime
// session.
type ControlChannel interface {
	// Send writes one event payload. Fails when the channel is not open.
	Send(data []byte) error
	// Open reports whether the channel is ready for Send.
	Open() bool
	Close() error
}

// Transport establishes control channels against the remote realtime
// endpoint.
type Transport interface {
	Connect(ctx context.Context, model, secret string, events ChannelEvents) (ControlChannel, error)
}

// MediaTrack is an acquired capture track.
type MediaTrack interface {
	Stop()
}

// MediaSource acquires the local capture device. Acquisition failure maps to
// a media access error.
type MediaSource interface {
	Acquire(ctx context.Context) (MediaTrack, error)
}

// WebSocketTransport connects the control channel over a websocket.
type WebSocketTransport struct {
	Endpoint string
	Dialer   *websocket.Dialer
}

// NewWebSocketTransport creates a transport against the default endpoint.
func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{
		Endpoint: DefaultRealtimeEndpoint,
		Dialer:   websocket.DefaultDialer,
	}
}

// Connect dials the realtime endpoint and starts the read loop. Transport
// readiness and channel open are both signaled once the dial completes.
func (t *WebSocketTransport) Connect(ctx context.Context, model, secret string, events ChannelEvents) (ControlChannel, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+secret)
	header.Set("OpenAI-Beta", "realtime=v1")

	endpoint := t.Endpoint
	if endpoint == "" {
		endpoint = DefaultRealtimeEndpoint
	}
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint+"?model="+model, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, core.NewNegotiationError(err.Error())
	}

	ch := &wsChannel{conn: conn, events: events}
	ch.open.Store(true)
	if events.OnTransportState != nil {
		events.OnTransportState(true)
	}
	if events.OnOpen != nil {
		events.OnOpen()
	}
	go ch.readLoop()
	return ch, nil
}

type wsChannel struct {
	conn    *websocket.Conn
	events  ChannelEvents
	writeMu sync.Mutex
	open    atomic.Bool
	once    sync.Once
}

func (c *wsChannel) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		if c.events.OnMessage != nil {
			c.events.OnMessage(data)
		}
	}
}

func (c *wsChannel) Send(data []byte) error {
	if !c.open.Load() {
		return core.NewAPIError("control channel is closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsChannel) Open() bool { return c.open.Load() }

func (c *wsChannel) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *wsChannel) shutdown(cause error) {
	c.once.Do(func() {
		c.open.Store(false)
		c.conn.Close()
		if c.events.OnTransportState != nil {
			c.events.OnTransportState(false)
		}
		if c.events.OnClose != nil {
			c.events.OnClose(cause)
		}
	})
}
