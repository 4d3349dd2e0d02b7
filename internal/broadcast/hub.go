// Package broadcast fans incremental standings diffs out to websocket
// subscribers. Clients join one competition room; diffs go to the room,
// a lighter changed-count event goes to every connected client.
//
// Delivery is at-most-once per cycle: a client whose send buffer is full
// is dropped instead of blocking the cycle, and reconnecting clients are
// expected to pull a full snapshot from the read API rather than rely on
// buffered diffs.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/pitchside/gameweek-engine/internal/standings"
)

// DiffMessage carries the entries whose rank or score changed this cycle.
// Never the full table — message size stays bounded.
type DiffMessage struct {
	Type          string            `json:"type"`
	CompetitionID int               `json:"competition_id"`
	Entries       []standings.Entry `json:"entries"`
}

// GlobalMessage is the lightweight event sent to all connected clients.
type GlobalMessage struct {
	Type          string `json:"type"`
	CompetitionID int    `json:"competition_id"`
	Changed       int    `json:"changed"`
}

// Hub tracks connected clients and their room membership.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[int]map[*Client]struct{} // competition id → members
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*Client]struct{}),
		rooms:   make(map[int]map[*Client]struct{}),
	}
}

// PublishDiff delivers changed entries to the competition's room only.
func (h *Hub) PublishDiff(competitionID int, changed []standings.Entry) {
	if len(changed) == 0 {
		return
	}
	payload, err := json.Marshal(DiffMessage{
		Type:          "standings_diff",
		CompetitionID: competitionID,
		Entries:       changed,
	})
	if err != nil {
		h.logger.Warn("marshal diff message", "competition_id", competitionID, "error", err)
		return
	}

	h.mu.RLock()
	members := make([]target, 0, len(h.rooms[competitionID]))
	for c := range h.rooms[competitionID] {
		members = append(members, target{c: c, room: c.competitionID})
	}
	h.mu.RUnlock()

	for _, m := range members {
		h.send(m, payload)
	}
}

// PublishGlobal delivers the changed-count event to every connected client.
func (h *Hub) PublishGlobal(competitionID, changedCount int) {
	payload, err := json.Marshal(GlobalMessage{
		Type:          "standings_changed",
		CompetitionID: competitionID,
		Changed:       changedCount,
	})
	if err != nil {
		h.logger.Warn("marshal global message", "competition_id", competitionID, "error", err)
		return
	}

	h.mu.RLock()
	all := make([]target, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, target{c: c, room: c.competitionID})
	}
	h.mu.RUnlock()

	for _, m := range all {
		h.send(m, payload)
	}
}

// target pairs a client with its room id, both captured under the hub lock.
// A concurrent re-subscribe rewrites competitionID, so it is never read off
// the client outside the lock.
type target struct {
	c    *Client
	room int
}

// send enqueues without blocking; a full buffer means a slow client, which
// gets disconnected rather than stalling the cycle.
func (h *Hub) send(t target, payload []byte) {
	select {
	case t.c.sendCh <- payload:
	default:
		h.logger.Warn("dropping slow client", "competition_id", t.room)
		h.remove(t.c)
		t.c.close()
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// join moves a client into a competition room, leaving any previous room.
func (h *Hub) join(c *Client, competitionID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c)
	room, ok := h.rooms[competitionID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[competitionID] = room
	}
	room[c] = struct{}{}
	c.competitionID = competitionID
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c)
	delete(h.clients, c)
}

func (h *Hub) leaveLocked(c *Client) {
	if room, ok := h.rooms[c.competitionID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, c.competitionID)
		}
	}
}

// counts returns (clients, rooms) for the status endpoint.
func (h *Hub) counts() (int, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients), len(h.rooms)
}

// Stats reports hub occupancy.
func (h *Hub) Stats() map[string]int {
	clients, rooms := h.counts()
	return map[string]int{"clients": clients, "rooms": rooms}
}
