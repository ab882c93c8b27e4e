package ami

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by Send while no session is established.
var ErrNotConnected = errors.New("ami: not connected")

// Handler receives every event read from the manager connection.
type Handler func(Event)

// ClientOptions configures a Client.
type ClientOptions struct {
	Addr           string
	Username       string
	Secret         string
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	ReconnectDelay time.Duration
	Logger         *zap.Logger
}

// Client is a manager interface connection that logs in, streams events to a
// Handler and reconnects when the connection drops.
type Client struct {
	opts ClientOptions
	log  *zap.Logger

	mu   sync.Mutex
	conn net.Conn
}

// NewClient creates a Client. Nothing is dialed until Run or Session.
func NewClient(opts ClientOptions) *Client {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{opts: opts, log: log}
}

// Run keeps a session alive until ctx is cancelled.
func (c *Client) Run(ctx context.Context, handle Handler) error {
	for {
		err := c.Session(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.log.Warn("AMI session ended, reconnecting",
				zap.Error(err), zap.Duration("delay", c.opts.ReconnectDelay))
			select {
			case <-time.After(c.opts.ReconnectDelay):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Session dials, logs in and streams events until the connection closes or
// ctx is cancelled.
func (c *Client) Session(ctx context.Context, handle Handler) error {
	c.log.Info("connecting to AMI", zap.String("addr", c.opts.Addr))

	d := net.Dialer{Timeout: c.opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.opts.Addr)
	if err != nil {
		return fmt.Errorf("dial AMI: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	reader := bufio.NewReader(conn)
	banner, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading AMI banner: %w", err)
	}
	c.log.Info("AMI banner", zap.String("banner", strings.TrimSpace(banner)))

	c.setConn(conn)
	defer c.setConn(nil)

	loginID := "login-" + uuid.NewString()
	login := NewAction("Login",
		"ActionID", loginID,
		"Username", c.opts.Username,
		"Secret", c.opts.Secret,
		"Events", "on",
	)
	if err := c.Send(login); err != nil {
		return fmt.Errorf("sending login: %w", err)
	}

	parser := NewParser(reader)
	authenticated := false
	for {
		evt, ok := parser.Next()
		if !ok {
			if ctx.Err() != nil {
				return nil
			}
			if err := parser.Err(); err != nil {
				return fmt.Errorf("reading AMI stream: %w", err)
			}
			return errors.New("AMI connection closed")
		}

		if !authenticated && evt.IsResponse() && evt.ActionID() == loginID {
			if !strings.EqualFold(evt.Get("Response"), "Success") {
				return fmt.Errorf("AMI login rejected: %s", evt.Get("Message"))
			}
			authenticated = true
			c.log.Info("AMI authenticated, processing events")
			continue
		}
		handle(evt)
	}
}

func (c *Client) setConn(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

// Send writes a to the current session. Writes are serialized and bounded
// by the write timeout.
func (c *Client) Send(a Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if _, err := c.conn.Write(a.Encode()); err != nil {
		return fmt.Errorf("writing %s action: %w", a.Name(), err)
	}
	return nil
}
