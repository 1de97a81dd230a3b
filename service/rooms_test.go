// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetRooms(t *testing.T) {
	th := SetupTestHelper(t, nil)
	defer th.Teardown()

	t.Run("invalid method", func(t *testing.T) {
		resp, err := http.Post(th.apiURL+"/rooms", "", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("unauthorized", func(t *testing.T) {
		resp, err := http.Get(th.apiURL + "/rooms")
		require.NoError(t, err)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid response", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, th.apiURL+"/rooms", nil)
		require.NoError(t, err)
		req.SetBasicAuth("", th.srvc.cfg.API.Security.AdminSecretKey)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		defer resp.Body.Close()
		var data map[string]interface{}
		err = json.NewDecoder(resp.Body).Decode(&data)
		require.NoError(t, err)
		rooms, ok := data["rooms"].([]interface{})
		require.True(t, ok)
		require.Empty(t, rooms)
	})
}
