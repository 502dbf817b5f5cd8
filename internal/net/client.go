package net

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"LocalWhiteboard/internal/logging"
	"LocalWhiteboard/internal/storage"
)

// Scheme prefixes share links handed out by a hub.
const Scheme = "whiteboard://"

// Client is a Store backed by a remote Hub.
type Client struct {
	ws  *websocket.Conn
	wmu sync.Mutex
	log *slog.Logger

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan Message
	closed  bool

	watchers storage.Watchers
	done     chan struct{}
}

var _ storage.Store = (*Client)(nil)

// WebsocketURL turns a share link, host:port or ws:// URL into the hub's
// websocket URL.
func WebsocketURL(addr string) string {
	addr = strings.TrimSuffix(strings.TrimPrefix(addr, Scheme), "/")
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr
	}
	return "ws://" + addr + Path
}

// Dial connects to the hub at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	url := WebsocketURL(addr)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("hub: dial %s: %w", url, err)
	}
	c := &Client{
		ws:      ws,
		log:     logging.For("hub-client").With("url", url),
		pending: make(map[uint64]chan Message),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer c.shutdown()
	for {
		var m Message
		if err := c.ws.ReadJSON(&m); err != nil {
			c.log.Debug("connection closed", "err", err)
			return
		}
		if m.Type == TypeChanged {
			c.watchers.Notify(storage.Event{Key: m.Key, Origin: m.Origin})
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[m.ID]
		delete(c.pending, m.ID)
		c.mu.Unlock()
		if ok {
			ch <- m
		}
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.pending = nil
	c.mu.Unlock()

	close(c.done)
	c.watchers.Close()
	c.ws.Close()
}

func (c *Client) request(ctx context.Context, m Message) (Message, error) {
	ch := make(chan Message, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Message{}, storage.ErrClosed
	}
	c.nextID++
	m.ID = c.nextID
	c.pending[m.ID] = ch
	c.mu.Unlock()

	c.wmu.Lock()
	err := c.ws.WriteJSON(m)
	c.wmu.Unlock()
	if err != nil {
		c.forget(m.ID)
		return Message{}, fmt.Errorf("hub: send: %w", err)
	}

	select {
	case reply := <-ch:
		if reply.Type == TypeError {
			return reply, replyError(reply)
		}
		return reply, nil
	case <-c.done:
		return Message{}, storage.ErrClosed
	case <-ctx.Done():
		c.forget(m.ID)
		return Message{}, ctx.Err()
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

func replyError(m Message) error {
	switch m.Error {
	case codeNotFound:
		return fmt.Errorf("%w: %s", storage.ErrNotFound, m.Key)
	case codeQuota:
		return fmt.Errorf("%w: %s", storage.ErrQuotaExceeded, m.Key)
	case codeClosed:
		return storage.ErrClosed
	}
	return errors.New("hub: " + m.Error)
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	reply, err := c.request(ctx, Message{Type: TypeGet, Key: key})
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

func (c *Client) Set(ctx context.Context, key string, value []byte) error {
	_, err := c.request(ctx, Message{Type: TypeSet, Key: key, Value: value})
	return err
}

// Watch reports writes to key made by other clients of the hub.
func (c *Client) Watch(ctx context.Context, key string) (<-chan storage.Event, error) {
	return c.watchers.Add(ctx, key)
}

func (c *Client) Close() error {
	c.wmu.Lock()
	// the hub may already be gone
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.wmu.Unlock()
	c.shutdown()
	return nil
}
