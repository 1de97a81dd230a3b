// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"net/http"
)

func (s *Service) getStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	data := newHTTPData()
	defer s.httpAudit("getStats", data, w, r)

	if _, err := s.authHandler(w, r); err != nil {
		data.err = err.Error()
		data.code = http.StatusUnauthorized
		return
	}

	data.resData["rooms"] = s.signaling.RoomCount()
	data.resData["transports"] = s.signaling.TransportCount()
	data.resData["producers"] = s.signaling.ProducerCount()
	data.resData["consumers"] = s.signaling.ConsumerCount()

	data.code = http.StatusOK
}
