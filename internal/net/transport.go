package net

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"LocalWhiteboard/internal/logging"
	"LocalWhiteboard/internal/storage"
)

// Message types exchanged between Hub and Client.
const (
	TypeGet     = "get"
	TypeSet     = "set"
	TypeValue   = "value"
	TypeOK      = "ok"
	TypeError   = "error"
	TypeChanged = "changed"
)

// Error codes carried in Message.Error for storage sentinels.
const (
	codeNotFound = "not_found"
	codeQuota    = "quota_exceeded"
	codeClosed   = "closed"
)

// Path is where the hub serves its websocket endpoint.
const Path = "/ws"

// Message is one JSON frame on the hub connection. Requests carry an ID that
// the reply echoes; changed notifications have none.
type Message struct {
	Type   string `json:"type"`
	ID     uint64 `json:"id,omitempty"`
	Key    string `json:"key,omitempty"`
	Value  []byte `json:"value,omitempty"`
	Origin string `json:"origin,omitempty"`
	Error  string `json:"error,omitempty"`
}

type peer struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex
}

func (p *peer) send(m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ws.WriteJSON(m)
}

// Hub shares one backing store with every connected client. It is the
// storage scope for boards opened through a whiteboard:// link.
type Hub struct {
	store    storage.Store
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu    sync.RWMutex
	peers map[*peer]struct{}
}

// NewHub serves store to websocket clients.
func NewHub(store storage.Store) *Hub {
	return &Hub{
		store: store,
		upgrader: websocket.Upgrader{
			// LAN tool; clients are other board instances, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:   logging.For("hub"),
		peers: make(map[*peer]struct{}),
	}
}

func (h *Hub) add(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p] = struct{}{}
	h.log.Info("client connected", "peer", p.id, "addr", p.ws.RemoteAddr().String())
}

func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, p)
	h.log.Info("client disconnected", "peer", p.id)
}

// Peers returns the number of connected clients.
func (h *Hub) Peers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// broadcast sends m to every peer except exclude.
func (h *Hub) broadcast(m Message, exclude *peer) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for p := range h.peers {
		if p == exclude {
			continue
		}
		if err := p.send(m); err != nil {
			h.log.Warn("send failed", "peer", p.id, "err", err)
		}
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "err", err)
		return
	}
	p := &peer{id: uuid.NewString(), ws: ws}
	h.add(p)
	defer func() {
		h.remove(p)
		ws.Close()
	}()

	for {
		var m Message
		if err := ws.ReadJSON(&m); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("read failed", "peer", p.id, "err", err)
			}
			return
		}
		reply := h.handle(r.Context(), p, m)
		if err := p.send(reply); err != nil {
			h.log.Warn("reply failed", "peer", p.id, "err", err)
			return
		}
	}
}

func (h *Hub) handle(ctx context.Context, p *peer, m Message) Message {
	reply := Message{ID: m.ID, Key: m.Key}
	switch m.Type {
	case TypeGet:
		v, err := h.store.Get(ctx, m.Key)
		if err != nil {
			return errorReply(reply, err)
		}
		reply.Type, reply.Value = TypeValue, v
	case TypeSet:
		if err := h.store.Set(ctx, m.Key, m.Value); err != nil {
			h.log.Warn("set failed", "peer", p.id, "key", m.Key, "err", err)
			return errorReply(reply, err)
		}
		reply.Type = TypeOK
		h.log.Debug("stored", "peer", p.id, "key", m.Key, "bytes", len(m.Value))
		h.broadcast(Message{Type: TypeChanged, Key: m.Key, Origin: p.id}, p)
	default:
		reply.Type, reply.Error = TypeError, fmt.Sprintf("unknown message type %q", m.Type)
	}
	return reply
}

func errorReply(reply Message, err error) Message {
	reply.Type = TypeError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		reply.Error = codeNotFound
	case errors.Is(err, storage.ErrQuotaExceeded):
		reply.Error = codeQuota
	case errors.Is(err, storage.ErrClosed):
		reply.Error = codeClosed
	default:
		reply.Error = err.Error()
	}
	return reply
}

// Serve runs the hub on ln until ctx is done.
func (h *Hub) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle(Path, h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		h.closeAll()
	}()

	h.log.Info("hub listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("hub: %w", err)
	}
	return nil
}

// closeAll drops hijacked websocket connections, which Shutdown does not track.
func (h *Hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for p := range h.peers {
		p.ws.Close()
	}
}
