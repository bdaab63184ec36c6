package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one message from the subscribe stream.
type Event struct {
	Name         string    `json:"name"`
	ResourceType string    `json:"resourceType,omitempty"`
	Data         *Cluster  `json:"data,omitempty"`
	Time         time.Time `json:"time"`
}

// Subscription is an open event stream.
type Subscription struct {
	conn   *websocket.Conn
	events chan Event
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	err    error
	closed bool
}

// Events returns the event channel. It is closed when the stream ends.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Err returns the error that ended the stream, or nil after Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the stream.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

// handshakeHeaders are set by the dialer itself and may not be supplied.
var handshakeHeaders = map[string]bool{
	"Upgrade":                  true,
	"Connection":               true,
	"Sec-Websocket-Key":        true,
	"Sec-Websocket-Version":    true,
	"Sec-Websocket-Extensions": true,
}

// Subscribe opens the cluster event stream. The stream stays open until
// ctx is done or Close is called.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.opts.timeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	if c.opts.insecure {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	header := http.Header{}
	for k, vs := range c.opts.headers {
		if handshakeHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		header[http.CanonicalHeaderKey(k)] = vs
	}
	header.Set("User-Agent", c.opts.userAgent)
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := dialer.DialContext(ctx, c.wsURL("/v3/subscribe"), header)
	if err != nil {
		if resp != nil {
			return nil, responseError(resp)
		}
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	s := &Subscription{conn: conn, events: make(chan Event, 16), done: make(chan struct{})}
	go s.read(ctx)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

func (s *Subscription) read(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)
	for {
		var e Event
		if err := s.conn.ReadJSON(&e); err != nil {
			s.mu.Lock()
			if !s.closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.err = err
			}
			s.mu.Unlock()
			return
		}
		select {
		case s.events <- e:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) wsURL(path string) string {
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://") + path
	case strings.HasPrefix(c.baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://") + path
	default:
		return c.baseURL + path
	}
}

// responseError decodes a failed handshake response.
func responseError(resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	apiErr.Status = resp.StatusCode
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
