// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package room

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeMember struct {
	id       string
	received []Event
	fail     bool
}

func (m *fakeMember) ClientID() string { return m.id }

func (m *fakeMember) TrySend(ev Event) error {
	if m.fail {
		return errors.New("send buffer full")
	}
	m.received = append(m.received, ev)
	return nil
}

func TestJoinLeavePrunesEmptyRoom(t *testing.T) {
	reg := New()
	alice := &fakeMember{id: "alice"}

	reg.Join("room1", alice)
	require.Equal(t, []string{"alice"}, reg.Members("room1"))
	require.Equal(t, "room1", reg.RoomOf("alice"))

	reg.Leave("room1", "alice")
	require.Empty(t, reg.Members("room1"))
	require.Equal(t, "", reg.RoomOf("alice"))
}

func TestBroadcastExcludesSenderAndReportsDropped(t *testing.T) {
	reg := New()
	alice := &fakeMember{id: "alice"}
	bob := &fakeMember{id: "bob"}
	carol := &fakeMember{id: "carol", fail: true}

	reg.Join("room1", alice)
	reg.Join("room1", bob)
	reg.Join("room1", carol)

	res := reg.Broadcast("room1", "alice", "hello")

	require.Equal(t, 1, res.SendTo)
	require.Len(t, res.Dropped, 1)
	require.Equal(t, "carol", res.Dropped[0].ClientID())
	require.Equal(t, []Event{"hello"}, bob.received)
	require.Empty(t, alice.received)
}

func TestAcquireScreenShareIsExclusive(t *testing.T) {
	reg := New()

	ok, owner := reg.AcquireScreenShare("room1", "alice")
	require.True(t, ok)
	require.Equal(t, "alice", owner)

	ok, owner = reg.AcquireScreenShare("room1", "bob")
	require.False(t, ok)
	require.Equal(t, "alice", owner)

	// alice re-acquiring before a Producer is confirmed (e.g. a retried
	// produce after the MediaRouter call itself failed) is idempotent,
	// not a conflict.
	ok, _ = reg.AcquireScreenShare("room1", "alice")
	require.True(t, ok)

	reg.ReleaseScreenShare("room1", "alice")
	require.Equal(t, "", reg.ScreenShareOwner("room1"))

	ok, owner = reg.AcquireScreenShare("room1", "bob")
	require.True(t, ok)
	require.Equal(t, "bob", owner)
}

// I5 caps the room at one live screen Producer, period — not one per
// client. Once alice's reservation is confirmed against an actual
// Producer, a second produce(screen) from alice herself (no intervening
// close) must be rejected exactly like one from anyone else.
func TestAcquireScreenShareRejectsSecondLiveProducerFromSameOwner(t *testing.T) {
	reg := New()

	ok, _ := reg.AcquireScreenShare("room1", "alice")
	require.True(t, ok)
	reg.ConfirmScreenShare("room1", "alice", "producer-1")

	ok, owner := reg.AcquireScreenShare("room1", "alice")
	require.False(t, ok)
	require.Equal(t, "alice", owner)

	reg.ReleaseScreenShare("room1", "alice")
	ok, _ = reg.AcquireScreenShare("room1", "alice")
	require.True(t, ok, "releasing the confirmed producer must free the slot for a fresh one")
}

func TestLeaveFreesScreenShareSlot(t *testing.T) {
	reg := New()
	alice := &fakeMember{id: "alice"}
	reg.Join("room1", alice)

	ok, _ := reg.AcquireScreenShare("room1", "alice")
	require.True(t, ok)

	reg.Leave("room1", "alice")
	require.Equal(t, "", reg.ScreenShareOwner("room1"))
}
