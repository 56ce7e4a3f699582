package protocol

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"

	"waenhancer/internal/constants"
	"waenhancer/internal/security"
	"waenhancer/internal/versioning"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by calls pending when the connection goes away.
var ErrClosed = stderrors.New("protocol connection closed")

// RequestHandler answers a request. It returns nil for notifications.
type RequestHandler func(ctx context.Context, req *Request) *Response

// CommandHandler executes a command received from the background process.
type CommandHandler func(ctx context.Context, cmd *Command)

// Conn is one side of a monitor <-> background websocket. Either side may send
// requests; responses are matched to callers by id.
type Conn struct {
	ws        *websocket.Conn
	logger    *logrus.Logger
	onRequest RequestHandler
	onCommand CommandHandler

	mu      sync.Mutex
	pending map[string]chan *Response
	closed  bool

	commands chan *Command
	done     chan struct{}
}

type ConnOption func(*Conn)

func WithRequestHandler(h RequestHandler) ConnOption {
	return func(c *Conn) { c.onRequest = h }
}

func WithCommandHandler(h CommandHandler) ConnOption {
	return func(c *Conn) { c.onCommand = h }
}

func NewConn(ws *websocket.Conn, logger *logrus.Logger, opts ...ConnOption) *Conn {
	ws.SetReadLimit(constants.MaxProtocolMessageBytes)
	c := &Conn{
		ws:       ws,
		logger:   logger,
		pending:  make(map[string]chan *Response),
		commands: make(chan *Command, 64),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects a monitor to the background process.
func Dial(ctx context.Context, url, token string, logger *logrus.Logger, opts ...ConnOption) (*Conn, error) {
	header := http.Header{}
	header.Set(versioning.APIVersionHeader, versioning.CurrentVersion.String())
	if token != "" {
		header.Set(security.TokenHeader, token)
	}
	ws, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return NewConn(ws, logger, opts...), nil
}

// Accept upgrades an HTTP request from a monitor.
func Accept(w http.ResponseWriter, r *http.Request, logger *logrus.Logger, opts ...ConnOption) (*Conn, error) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to accept websocket: %w", err)
	}
	return NewConn(ws, logger, opts...), nil
}

// Run reads frames until the connection or ctx ends. Requests are answered
// concurrently; commands are executed one at a time in arrival order.
func (c *Conn) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.runCommands(ctx)
	}()

	err := c.readLoop(ctx)
	c.shutdown()
	cancel()
	wg.Wait()
	return err
}

func (c *Conn) readLoop(ctx context.Context) error {
	for {
		var frame Frame
		if err := wsjson.Read(ctx, c.ws, &frame); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch frame.Kind {
		case KindResponse:
			if frame.Response != nil {
				c.deliver(frame.Response)
			}
		case KindRequest:
			if frame.Request != nil {
				go c.handleRequest(ctx, frame.Request)
			}
		case KindCommand:
			if frame.Command == nil {
				continue
			}
			select {
			case c.commands <- frame.Command:
			default:
				c.logger.WithField("command", frame.Command.Type).Warn("Command queue full, dropping command")
			}
		default:
			c.logger.WithField("kind", frame.Kind).Warn("Ignoring frame of unknown kind")
		}
	}
}

func (c *Conn) runCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.commands:
			if c.onCommand == nil {
				c.logger.WithField("command", cmd.Type).Debug("No command handler registered")
				continue
			}
			c.onCommand(ctx, cmd)
		}
	}
}

func (c *Conn) handleRequest(ctx context.Context, req *Request) {
	if c.onRequest == nil {
		if req.ID != "" {
			_ = c.write(ctx, &Frame{Kind: KindResponse, Response: &Response{
				ID: req.ID, Error: "requests are not accepted on this side", ErrorCode: "VALIDATION_FAILED",
			}})
		}
		return
	}

	resp := c.onRequest(ctx, req)
	if resp == nil || req.ID == "" {
		return
	}
	resp.ID = req.ID
	if err := c.write(ctx, &Frame{Kind: KindResponse, Response: resp}); err != nil {
		c.logger.WithError(err).WithField("type", req.Type).Warn("Failed to write response")
	}
}

func (c *Conn) deliver(resp *Response) {
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	delete(c.pending, resp.ID)
	c.mu.Unlock()

	if !ok {
		c.logger.WithField("id", resp.ID).Debug("Response for unknown request")
		return
	}
	ch <- resp
}

// Call sends req and waits for its response.
func (c *Conn) Call(ctx context.Context, req *Request) (*Response, error) {
	req.ID = uuid.NewString()
	ch := make(chan *Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	if err := c.write(ctx, &Frame{Kind: KindRequest, Request: req}); err != nil {
		c.forget(req.ID)
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		return resp, nil
	case <-ctx.Done():
		c.forget(req.ID)
		return nil, ctx.Err()
	}
}

// Notify sends a request that expects no response.
func (c *Conn) Notify(ctx context.Context, req *Request) error {
	req.ID = ""
	return c.write(ctx, &Frame{Kind: KindRequest, Request: req})
}

// SendCommand pushes cmd to the peer.
func (c *Conn) SendCommand(ctx context.Context, cmd *Command) error {
	return c.write(ctx, &Frame{Kind: KindCommand, Command: cmd})
}

// Done is closed once the read loop has stopped.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close ends the connection with a normal closure.
func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}

func (c *Conn) write(ctx context.Context, f *Frame) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return wsjson.Write(ctx, c.ws, f)
}

func (c *Conn) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Conn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	close(c.done)
	_ = c.ws.CloseNow()
}
