// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package room is the Room Registry (§4.3): the set of rooms, who is a
// member of each, and the single-screen-share-per-room arbitration a
// Client Session consults before a produce(screen) call is allowed to
// succeed.
package room

import (
	"sync"
)

// Event is whatever the signaling layer wants fanned out to every other
// member of a room (a new producer appearing, a consumer closing, a
// screen share being taken over). It is opaque to this package.
type Event any

// Member is a room participant capable of receiving broadcast Events.
// The signaling layer's per-connection dispatcher implements this by
// wrapping its outbound message channel.
type Member interface {
	ClientID() string
	TrySend(ev Event) error
}

// PublishResult reports how many members actually received a broadcast
// and which ones did not, so the caller can decide whether a slow or
// dead connection needs to be torn down.
type PublishResult struct {
	SendTo  int
	Dropped []Member
}

type room struct {
	id      string
	members map[string]Member

	mut sync.RWMutex

	// screenShareOwner is the clientID currently holding the room's one
	// screen-share slot, or "" if free (§3 invariant I5: at most one
	// active screen share per room).
	screenShareOwner string
	// screenShareProducerID is set once the Producer backing
	// screenShareOwner's slot actually exists (ConfirmScreenShare).
	// Empty while the slot is merely reserved (between AcquireScreenShare
	// and the MediaRouter call succeeding) — that's what lets a retried
	// produce after a MediaRouter failure re-acquire its own reservation
	// without being mistaken for a second live screen share.
	screenShareProducerID string
}

// Registry is the process-wide collection of rooms, keyed by id and
// created lazily on first join, mirroring the teacher's group/call
// registry pattern.
type Registry struct {
	mut   sync.RWMutex
	rooms map[string]*room
}

func New() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

func (reg *Registry) getOrCreateRoom(id string) *room {
	reg.mut.Lock()
	defer reg.mut.Unlock()
	r, ok := reg.rooms[id]
	if !ok {
		r = &room{id: id, members: make(map[string]Member)}
		reg.rooms[id] = r
	}
	return r
}

func (reg *Registry) getRoom(id string) *room {
	reg.mut.RLock()
	defer reg.mut.RUnlock()
	return reg.rooms[id]
}

// Join adds member to roomID, creating the room if this is its first
// member. Joining twice with the same clientID replaces the prior
// Member value (a reconnect under a superseded session, per I6).
func (reg *Registry) Join(roomID string, member Member) {
	r := reg.getOrCreateRoom(roomID)
	r.mut.Lock()
	r.members[member.ClientID()] = member
	r.mut.Unlock()
}

// Leave removes clientID from roomID. If it held the screen-share slot,
// the slot is freed. An empty room is pruned from the registry so
// abandoned rooms don't accumulate forever.
func (reg *Registry) Leave(roomID, clientID string) {
	r := reg.getRoom(roomID)
	if r == nil {
		return
	}

	r.mut.Lock()
	delete(r.members, clientID)
	if r.screenShareOwner == clientID {
		r.screenShareOwner = ""
		r.screenShareProducerID = ""
	}
	empty := len(r.members) == 0
	r.mut.Unlock()

	if empty {
		reg.mut.Lock()
		if cur := reg.rooms[roomID]; cur == r && len(r.members) == 0 {
			delete(reg.rooms, roomID)
		}
		reg.mut.Unlock()
	}
}

// RoomOf reports which of reg's rooms clientID currently belongs to,
// or "" if none. Only used by tests and admin tooling; the hot path
// already knows its own roomID from the Client Session.
func (reg *Registry) RoomOf(clientID string) string {
	reg.mut.RLock()
	defer reg.mut.RUnlock()
	for id, r := range reg.rooms {
		r.mut.RLock()
		_, ok := r.members[clientID]
		r.mut.RUnlock()
		if ok {
			return id
		}
	}
	return ""
}

// Members lists the clientIDs currently joined to roomID.
func (reg *Registry) Members(roomID string) []string {
	r := reg.getRoom(roomID)
	if r == nil {
		return nil
	}
	r.mut.RLock()
	defer r.mut.RUnlock()
	out := make([]string, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	return out
}

// Broadcast delivers ev to every member of roomID except excludeClientID,
// reporting delivery stats so a caller can react to backpressure the
// way the teacher's call/group fan-out does.
func (reg *Registry) Broadcast(roomID string, excludeClientID string, ev Event) PublishResult {
	r := reg.getRoom(roomID)
	if r == nil {
		return PublishResult{}
	}

	r.mut.RLock()
	defer r.mut.RUnlock()

	res := PublishResult{}
	for id, m := range r.members {
		if id == excludeClientID {
			continue
		}
		if err := m.TrySend(ev); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	return res
}

// AcquireScreenShare atomically grants clientID the room's screen-share
// slot if it is free, returning false (and the current owner) otherwise.
// Serializing this under the room's own mutex is what resolves the
// Open Question on concurrent produce(screen) calls: the second caller
// gets a synchronous "screen share already active" error instead of a
// race (§6.1).
//
// Re-acquiring while already the owner only succeeds if no Producer has
// been confirmed against the reservation yet (ConfirmScreenShare) — a
// retry of a produce call that failed the MediaRouter step. Once a
// Producer is confirmed, a second produce(screen) from the same owner is
// rejected just like one from anyone else: I5 caps the room at one live
// screen Producer, not one per client.
func (reg *Registry) AcquireScreenShare(roomID, clientID string) (ok bool, currentOwner string) {
	r := reg.getOrCreateRoom(roomID)
	r.mut.Lock()
	defer r.mut.Unlock()

	if r.screenShareOwner == "" || (r.screenShareOwner == clientID && r.screenShareProducerID == "") {
		r.screenShareOwner = clientID
		return true, clientID
	}
	return false, r.screenShareOwner
}

// ConfirmScreenShare records producerID as the Producer backing
// clientID's held screen-share slot, so a subsequent AcquireScreenShare
// by the same client is rejected rather than granted while that
// Producer is still live.
func (reg *Registry) ConfirmScreenShare(roomID, clientID, producerID string) {
	r := reg.getRoom(roomID)
	if r == nil {
		return
	}
	r.mut.Lock()
	if r.screenShareOwner == clientID {
		r.screenShareProducerID = producerID
	}
	r.mut.Unlock()
}

// ReleaseScreenShare frees the slot if clientID currently holds it.
// A no-op otherwise, so a stale release (e.g. racing a disconnect) is
// harmless.
func (reg *Registry) ReleaseScreenShare(roomID, clientID string) {
	r := reg.getRoom(roomID)
	if r == nil {
		return
	}
	r.mut.Lock()
	if r.screenShareOwner == clientID {
		r.screenShareOwner = ""
		r.screenShareProducerID = ""
	}
	r.mut.Unlock()
}

// ScreenShareOwner reports the current screen-share holder of roomID,
// or "" if the slot is free.
func (reg *Registry) ScreenShareOwner(roomID string) string {
	r := reg.getRoom(roomID)
	if r == nil {
		return ""
	}
	r.mut.RLock()
	defer r.mut.RUnlock()
	return r.screenShareOwner
}

// Count reports the number of rooms with at least one member.
func (reg *Registry) Count() int {
	reg.mut.RLock()
	defer reg.mut.RUnlock()
	return len(reg.rooms)
}

// Snapshot is one room's membership and screen-share state, for the
// admin dump endpoint. It is a point-in-time copy, not a live view.
type Snapshot struct {
	RoomID           string   `json:"roomId"`
	Members          []string `json:"members"`
	ScreenShareOwner string   `json:"screenShareOwner,omitempty"`
}

// ListRooms returns a Snapshot of every currently non-empty room,
// sufficient for the admin /rooms dump without exposing the Member
// interface itself outside this package.
func (reg *Registry) ListRooms() []Snapshot {
	reg.mut.RLock()
	rooms := make([]*room, 0, len(reg.rooms))
	ids := make([]string, 0, len(reg.rooms))
	for id, r := range reg.rooms {
		ids = append(ids, id)
		rooms = append(rooms, r)
	}
	reg.mut.RUnlock()

	out := make([]Snapshot, 0, len(rooms))
	for i, r := range rooms {
		r.mut.RLock()
		members := make([]string, 0, len(r.members))
		for id := range r.members {
			members = append(members, id)
		}
		owner := r.screenShareOwner
		r.mut.RUnlock()
		out = append(out, Snapshot{RoomID: ids[i], Members: members, ScreenShareOwner: owner})
	}
	return out
}
