// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package signaling

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mattermost/mattermost/server/public/shared/mlog"

	"github.com/sfurelay/rtcd/internal/mediarouter"
	"github.com/sfurelay/rtcd/internal/registry"
	"github.com/sfurelay/rtcd/internal/room"
	"github.com/sfurelay/rtcd/service/perf"
	"github.com/sfurelay/rtcd/service/ws"
)

// metricsPollInterval is how often the domain gauges (rooms, transports,
// producers, consumers) are snapshotted from the registries, rather than
// incrementally maintained at every call site.
const metricsPollInterval = 5 * time.Second

// screenShareVerbRateLimit throttles how often a single client may call
// closeAllScreenShares, per the Domain Stack note that a client
// hammering the verb gets throttled rather than erroring (§3).
const (
	screenShareVerbRateLimit = rate.Limit(0.5)
	screenShareVerbRateBurst = 2
)

// Server wires the ws transport, the MediaRouter adapter, and the
// Resource/Room registries into the signaling verb dispatch table and
// the Lifecycle Supervisor's cascades — the Signaling Protocol Handler
// of spec.md §4.4, generalized from the teacher's Service/rtc.Server
// pairing of a ws.Server with a call/group registry.
type Server struct {
	log      mlog.LoggerIFace
	ws       *ws.Server
	router   mediarouter.Router
	registry *registry.Registry
	rooms    *room.Registry
	metrics  *perf.Metrics

	mut             sync.RWMutex
	sessions        map[string]*Session // connID -> session
	clientConns     map[string]string   // clientID -> connID, for I6 supersession
	producerRooms   map[string]string   // producerID -> roomID, cleared on EventProducerClose
	screenShareRate map[string]*rate.Limiter

	closeCh chan struct{}
}

func NewServer(log mlog.LoggerIFace, wsServer *ws.Server, router mediarouter.Router, metrics *perf.Metrics) *Server {
	s := &Server{
		log:             log,
		ws:              wsServer,
		router:          router,
		metrics:         metrics,
		registry:        registry.New(),
		rooms:           room.New(),
		sessions:        make(map[string]*Session),
		clientConns:     make(map[string]string),
		producerRooms:   make(map[string]string),
		screenShareRate: make(map[string]*rate.Limiter),
		closeCh:         make(chan struct{}),
	}
	return s
}

// Run starts the connection dispatch loop, the MediaRouter event loop,
// and the metrics poller; it blocks until Close is called.
func (s *Server) Run() {
	go s.eventLoop()
	go s.metricsLoop()
	s.dispatchLoop()
}

// metricsLoop periodically snapshots the registries into the domain
// gauges, rather than maintaining counters at every call site.
func (s *Server) metricsLoop() {
	if s.metrics == nil {
		return
	}
	ticker := time.NewTicker(metricsPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.metrics.RoomsActive.Set(float64(s.rooms.Count()))
			s.metrics.TransportsActive.Set(float64(s.registry.TransportCount()))
			s.metrics.ProducersActive.Set(float64(s.registry.ProducerCount()))
			s.metrics.ConsumersActive.Set(float64(s.registry.ConsumerCount()))
		case <-s.closeCh:
			return
		}
	}
}

func (s *Server) Close() error {
	close(s.closeCh)
	return s.router.Close()
}

func (s *Server) sessionFor(connID string) *Session {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return s.sessions[connID]
}

func (s *Server) addSession(sess *Session) {
	s.mut.Lock()
	s.sessions[sess.ConnID] = sess
	s.mut.Unlock()
}

func (s *Server) removeSession(connID string) {
	s.mut.Lock()
	delete(s.sessions, connID)
	s.mut.Unlock()
}

func (s *Server) rateLimiterFor(clientID string) *rate.Limiter {
	s.mut.Lock()
	defer s.mut.Unlock()
	l, ok := s.screenShareRate[clientID]
	if !ok {
		l = rate.NewLimiter(screenShareVerbRateLimit, screenShareVerbRateBurst)
		s.screenShareRate[clientID] = l
	}
	return l
}

// bindClient registers clientID -> connID and returns the connection
// that held clientID before ("" if none). It closes nothing itself;
// handleJoinRoom supersedes the returned connection via
// handleDisconnect, per §6.1's I6 decision.
func (s *Server) bindClient(clientID, connID string) (priorConnID string) {
	s.mut.Lock()
	priorConnID = s.clientConns[clientID]
	s.clientConns[clientID] = connID
	s.mut.Unlock()
	return priorConnID
}

func (s *Server) unbindClient(clientID, connID string) {
	s.mut.Lock()
	if s.clientConns[clientID] == connID {
		delete(s.clientConns, clientID)
	}
	s.mut.Unlock()
}

func (s *Server) trackProducerRoom(producerID, roomID string) {
	s.mut.Lock()
	s.producerRooms[producerID] = roomID
	s.mut.Unlock()
}

func (s *Server) popProducerRoom(producerID string) (string, bool) {
	s.mut.Lock()
	defer s.mut.Unlock()
	roomID, ok := s.producerRooms[producerID]
	delete(s.producerRooms, producerID)
	return roomID, ok
}

// sessionMember adapts a connection onto room.Member, sending envelopes
// over the ws.Server's shared send channel without blocking the room
// broadcast on a slow peer — a dropped send is reported back to the
// caller (room.PublishResult) rather than stalling the broadcaster.
type sessionMember struct {
	srv    *Server
	connID string
	id     string
}

func (m *sessionMember) ClientID() string { return m.id }

func (m *sessionMember) TrySend(ev room.Event) error {
	env, ok := ev.(*Envelope)
	if !ok {
		return fmt.Errorf("signaling: unexpected event payload type %T", ev)
	}
	data, err := env.Pack()
	if err != nil {
		return fmt.Errorf("failed to pack event envelope: %w", err)
	}
	select {
	case m.srv.ws.SendCh() <- ws.Message{ConnID: m.connID, Type: ws.BinaryMessage, Data: data}:
		return nil
	default:
		return fmt.Errorf("signaling: send channel full for client %s", m.id)
	}
}

// RoomCount, TransportCount, ProducerCount and ConsumerCount back the
// admin stats endpoint with a live snapshot of the registries.
func (s *Server) RoomCount() int      { return s.rooms.Count() }
func (s *Server) TransportCount() int { return s.registry.TransportCount() }
func (s *Server) ProducerCount() int  { return s.registry.ProducerCount() }
func (s *Server) ConsumerCount() int  { return s.registry.ConsumerCount() }

// ListRooms backs the admin /rooms dump endpoint with a snapshot of
// every live room's membership and screen-share owner.
func (s *Server) ListRooms() []room.Snapshot { return s.rooms.ListRooms() }

func (s *Server) broadcastEvent(roomID, excludeClientID, name string, payload interface{}) room.PublishResult {
	res := s.rooms.Broadcast(roomID, excludeClientID, newEvent(name, payload))
	if len(res.Dropped) > 0 {
		ids := make([]string, 0, len(res.Dropped))
		for _, m := range res.Dropped {
			ids = append(ids, m.ClientID())
		}
		s.log.Warn("signaling: dropped broadcast deliveries",
			mlog.String("roomID", roomID), mlog.String("event", name), mlog.Any("to", ids))
	}
	return res
}
