// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"fmt"
	"testing"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"github.com/stretchr/testify/require"

	"github.com/sfurelay/rtcd/internal/mediarouter"
)

// TestHelper stands up a real Service bound to an ephemeral port, the
// way the teacher's service package drives its HTTP handler tests end
// to end rather than mocking http.ResponseWriter.
type TestHelper struct {
	t      *testing.T
	srvc   *Service
	apiURL string
}

// MakeDefaultCfg returns a valid Config pointed at a scratch bitcask
// data source under t.TempDir, with the admin API enabled.
func MakeDefaultCfg(t *testing.T) *Config {
	var cfg Config
	cfg.SetDefaults()
	cfg.API.HTTP.ListenAddress = "127.0.0.1:0"
	cfg.API.Security.EnableAdmin = true
	cfg.API.Security.AdminSecretKey = "adminSecretKey"
	cfg.Room.ICEPortUDPMin = 30000
	cfg.Room.ICEPortUDPMax = 30099
	cfg.Room.STUNServers = nil
	cfg.Room.UDPSocketsCount = 1
	cfg.Room.Codecs = mediarouter.DefaultCodecs()
	cfg.Store.DataSource = t.TempDir() + "/rtcd_db"
	cfg.Logger.EnableConsole = false
	cfg.Logger.EnableFile = false
	return &cfg
}

func SetupTestHelper(t *testing.T, cfg *Config) *TestHelper {
	t.Helper()

	if cfg == nil {
		cfg = MakeDefaultCfg(t)
	}

	log, err := mlog.NewLogger()
	require.NoError(t, err)

	srvc, err := New(*cfg, log)
	require.NoError(t, err)
	require.NoError(t, srvc.Start())

	return &TestHelper{
		t:      t,
		srvc:   srvc,
		apiURL: fmt.Sprintf("http://%s", srvc.apiServer.Addr()),
	}
}

func (th *TestHelper) Teardown() {
	require.NoError(th.t, th.srvc.Stop())
}
