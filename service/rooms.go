// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"net/http"
)

// getRooms is an operational dump of live room membership and
// screen-share ownership, gated behind the same admin auth as
// getStats. It does not persist anything, so it doesn't reintroduce
// the persistent-rooms feature the signaling path excludes.
func (s *Service) getRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	data := newHTTPData()
	defer s.httpAudit("getRooms", data, w, r)

	if _, err := s.authHandler(w, r); err != nil {
		data.err = err.Error()
		data.code = http.StatusUnauthorized
		return
	}

	data.resData["rooms"] = s.signaling.ListRooms()

	data.code = http.StatusOK
}
