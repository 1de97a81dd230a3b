// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/procfs"

	"github.com/mattermost/mattermost/server/public/shared/mlog"

	"github.com/sfurelay/rtcd/internal/mediarouter"
	"github.com/sfurelay/rtcd/internal/signaling"
	"github.com/sfurelay/rtcd/service/api"
	"github.com/sfurelay/rtcd/service/auth"
	"github.com/sfurelay/rtcd/service/perf"
	"github.com/sfurelay/rtcd/service/store"
	"github.com/sfurelay/rtcd/service/ws"
)

// Service is the process-wide object cmd/sfusignald builds: the admin
// HTTP surface of auth.go/stats.go/system.go/version.go layered over
// the signaling.Server that runs the verb protocol, generalized from
// the teacher's pairing of an api.Server with a single rtc.Server.
type Service struct {
	cfg       Config
	log       *mlog.Logger
	apiServer *api.Server
	wsServer  *ws.Server
	router    mediarouter.Router
	signaling *signaling.Server
	auth      *auth.Service
	store     store.Store
	metrics   *perf.Metrics
	proc      procfs.Proc
}

func New(cfg Config, log *mlog.Logger) (*Service, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, err
	}

	s := &Service{
		log: log,
		cfg: cfg,
	}

	var err error

	s.store, err = store.New(cfg.Store.DataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	s.auth, err = auth.NewService(s.store)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	s.metrics = perf.NewMetrics("sfusignald", prometheus.NewRegistry())

	if proc, err := procfs.Self(); err == nil {
		s.proc = proc
	} else {
		s.log.Warn("failed to open procfs self handle", mlog.Err(err))
	}

	s.apiServer, err = api.NewServer(cfg.API.HTTP, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create api server: %w", err)
	}

	wsConfig := ws.ServerConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		PingInterval:    10 * time.Second,
	}
	s.wsServer, err = ws.NewServer(wsConfig, log, ws.WithUpgradeCb(s.wsAuthHandler))
	if err != nil {
		return nil, fmt.Errorf("failed to create ws server: %w", err)
	}

	s.router, err = mediarouter.NewRouter(cfg.Room, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create media router: %w", err)
	}

	s.signaling = signaling.NewServer(log, s.wsServer, s.router, s.metrics)

	s.apiServer.RegisterHandleFunc("/version", s.getVersion)
	s.apiServer.RegisterHandleFunc("/system", s.getSystemInfo)
	s.apiServer.RegisterHandleFunc("/stats", s.getStats)
	s.apiServer.RegisterHandleFunc("/rooms", s.getRooms)
	s.apiServer.RegisterHandleFunc("/register", s.registerClient)
	s.apiServer.RegisterHandleFunc("/unregister", s.unregisterClient)
	s.apiServer.RegisterHandler("/metrics", s.metrics.Handler())
	s.apiServer.RegisterHandler("/ws", s.wsServer)

	return s, nil
}

// wsAuthHandler gates every WebSocket upgrade behind the same
// clientID/authKey basic-auth check the admin HTTP handlers use,
// rejecting the upgrade before a Session is ever created.
func (s *Service) wsAuthHandler(connID string, w http.ResponseWriter, r *http.Request) error {
	_, err := s.authHandler(w, r)
	return err
}

func (s *Service) Start() error {
	go s.signaling.Run()

	if err := s.apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

func (s *Service) Stop() error {
	if err := s.apiServer.Stop(); err != nil {
		return fmt.Errorf("failed to stop API server: %w", err)
	}

	if err := s.signaling.Close(); err != nil {
		s.log.Error("failed to close signaling server", mlog.Err(err))
	}

	if err := s.store.Close(); err != nil {
		s.log.Error("failed to close store", mlog.Err(err))
	}

	return nil
}
