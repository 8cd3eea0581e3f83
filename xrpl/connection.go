package xrpl

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Conn is a single command/response connection to an XRPL node. Requests are
// correlated to responses by id through a reader goroutine, so a connection
// can serve multiple requests concurrently.
type Conn interface {
	Do(ctx context.Context, command string, params map[string]interface{}) (json.RawMessage, error)
	Ping(ctx context.Context) error
	Endpoint() string
	Close() error
}

// Dialer opens a connection to an endpoint; injectable for tests.
type Dialer func(endpoint string) (Conn, error)

type wsConn struct {
	endpoint string
	ws       *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	nextId  uint64
	pending map[uint64]chan wsResult
	closed  bool
}

type wsResult struct {
	message json.RawMessage
	err     error
}

type wsResponse struct {
	Id     uint64          `json:"id"`
	Status string          `json:"status"`
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

// DialEndpoint opens a websocket connection and starts its reader.
func DialEndpoint(endpoint string) (Conn, error) {
	ws, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error dialing %s: %w", endpoint, err)
	}

	c := &wsConn{
		endpoint: endpoint,
		ws:       ws,
		pending:  make(map[uint64]chan wsResult),
	}
	go c.readLoop()
	return c, nil
}

func (c *wsConn) Endpoint() string {
	return c.endpoint
}

func (c *wsConn) readLoop() {
	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			c.failAll(err)
			return
		}

		var response wsResponse
		if err := json.Unmarshal(message, &response); err != nil {
			log.Warn("[XRPL] Error unmarshalling response from ", c.endpoint, ": ", err)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[response.Id]
		if ok {
			delete(c.pending, response.Id)
		}
		c.mu.Unlock()
		if !ok {
			continue
		}

		if response.Status == "error" || response.Error != "" {
			ch <- wsResult{err: fmt.Errorf("xrpl error: %s", response.Error)}
			continue
		}
		ch <- wsResult{message: response.Result}
	}
}

func (c *wsConn) failAll(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- wsResult{err: err}
	}
}

func (c *wsConn) Do(ctx context.Context, command string, params map[string]interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("connection to %s is closed", c.endpoint)
	}
	c.nextId++
	id := c.nextId
	ch := make(chan wsResult, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	request := map[string]interface{}{
		"id":      id,
		"command": command,
	}
	for key, value := range params {
		request[key] = value
	}

	c.writeMu.Lock()
	err := c.ws.WriteJSON(request)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("error writing %s request: %w", command, err)
	}

	select {
	case result := <-ch:
		return result.message, result.err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (c *wsConn) Ping(ctx context.Context) error {
	_, err := c.Do(ctx, "ping", nil)
	return err
}

func (c *wsConn) Close() error {
	c.failAll(fmt.Errorf("connection closed"))
	return c.ws.Close()
}
