// Package p2p fans consensus announcements out to connected peers.
package p2p

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/solvenet/solvenet/core"
)

// writeWait bounds a single broadcast write; a peer that neither reads nor
// errors would otherwise stall every later announcement.
const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // peers connect from anywhere
	},
}

// Announcement is the wire form of a gossip message.
type Announcement struct {
	Type      string      `json:"type"` // "header" | "reveal"
	BlockHash string      `json:"block_hash"`
	Height    uint64      `json:"height,omitempty"`
	CID       string      `json:"cid,omitempty"`
	Block     *core.Block `json:"block,omitempty"`
}

// Hub broadcasts header and reveal announcements to every subscribed peer.
// Delivery is fire-and-forget: a peer that cannot keep up is dropped, and
// consensus never waits on the network.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]bool
	log   *slog.Logger
}

// NewHub creates an empty announcement hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		conns: make(map[*websocket.Conn]bool),
		log:   log,
	}
}

// ServeWS upgrades an HTTP request to a gossip subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = true
	h.mu.Unlock()
	h.log.Info("peer subscribed", "remote", conn.RemoteAddr().String())

	// Reads are discarded; the subscription only pushes. The read loop
	// exists to notice disconnects.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// AnnounceHeader implements core.Announcer.
func (h *Hub) AnnounceHeader(b *core.Block) {
	h.broadcast(Announcement{
		Type:      "header",
		BlockHash: b.BlockHash.String(),
		Height:    b.Index,
		Block:     b,
	})
}

// AnnounceReveal implements core.Announcer.
func (h *Hub) AnnounceReveal(blockHash core.Hash, cid string) {
	h.broadcast(Announcement{
		Type:      "reveal",
		BlockHash: blockHash.String(),
		CID:       cid,
	})
}

// PeerCount returns the number of subscribed peers.
func (h *Hub) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) broadcast(a Announcement) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(a); err != nil {
			h.log.Warn("dropping slow peer", "remote", conn.RemoteAddr().String(), "error", err)
			delete(h.conns, conn)
			conn.Close()
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if h.conns[conn] {
		delete(h.conns, conn)
		conn.Close()
	}
	h.mu.Unlock()
}
