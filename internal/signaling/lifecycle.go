// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package signaling

import (
	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

// handleDisconnect implements the Lifecycle Supervisor's disconnect
// cascade (spec.md §4.5, item 1): a closed connection tears down every
// resource its session owned, notifies the room, and forgets the
// session. Safe to call twice for the same connID (a verb-triggered I6
// supersession and a later ws.CloseMessage for the same connection both
// land here) — everything below is idempotent.
func (s *Server) handleDisconnect(connID string) {
	sess := s.sessionFor(connID)
	if sess == nil {
		return
	}
	defer s.removeSession(connID)

	if sess.Closed() {
		return
	}
	wasJoined := sess.Joined()
	sess.Close()

	if !wasJoined {
		return
	}

	clientID := sess.ClientID()
	roomID := sess.RoomID()

	if err := s.registry.CloseClient(clientID); err != nil {
		s.log.Error("signaling: error closing client resources",
			mlog.String("clientID", clientID), mlog.Err(err))
	}

	s.rooms.Leave(roomID, clientID)
	s.unbindClient(clientID, connID)

	s.broadcastEvent(roomID, clientID, "clientDisconnected", ClientDisconnectedEvent{ClientID: clientID})
}
