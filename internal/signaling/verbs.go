// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package signaling

import (
	"fmt"

	"github.com/sfurelay/rtcd/internal/mediarouter"
	"github.com/sfurelay/rtcd/internal/registry"
)

type verbHandler func(s *Server, sess *Session, env *Envelope) (interface{}, error)

// verbTable is the Signaling Protocol Handler's dispatch table,
// spec.md §4.4's verb list plus the §6.1 supplements.
var verbTable = map[string]verbHandler{
	"getRtpCapabilities":   handleGetRtpCapabilities,
	"joinRoom":             handleJoinRoom,
	"createTransport":      handleCreateTransport,
	"connectTransport":     handleConnectTransport,
	"produce":              handleProduce,
	"consume":              handleConsume,
	"closeAllScreenShares": handleCloseAllScreenShares,
	"pauseProducer":        handlePauseProducer,
	"resumeProducer":       handleResumeProducer,
	"closeProducer":        handleCloseProducer,
	"getStats":             handleGetStats,
}

func handleGetRtpCapabilities(s *Server, _ *Session, _ *Envelope) (interface{}, error) {
	return GetRtpCapabilitiesAck{RTPCapabilities: s.router.RTPCapabilities()}, nil
}

// handleJoinRoom implements spec.md §4.4's joinRoom verb, including the
// §6.1 I6 decision: a second join under an already-connected clientId
// force-closes the prior connection's session first.
func handleJoinRoom(s *Server, sess *Session, env *Envelope) (interface{}, error) {
	var req JoinRoomRequest
	if err := env.Bind(&req); err != nil {
		return nil, ErrBadRequest
	}
	if req.RoomID == "" || req.ClientID == "" {
		return nil, ErrBadRequest
	}
	if sess.Joined() {
		return nil, ErrAlreadyJoined
	}

	if priorConnID := s.bindClient(req.ClientID, sess.ConnID); priorConnID != "" && priorConnID != sess.ConnID {
		s.handleDisconnect(priorConnID)
	}

	if err := sess.Join(req.ClientID, req.RoomID); err != nil {
		return nil, err
	}

	member := &sessionMember{srv: s, connID: sess.ConnID, id: req.ClientID}
	s.rooms.Join(req.RoomID, member)

	infos := s.registry.ListProducers(req.RoomID, "", req.ClientID)
	producers := make([]ProducerView, 0, len(infos))
	for _, info := range infos {
		producers = append(producers, producerView(info))
	}

	s.broadcastEvent(req.RoomID, req.ClientID, "clientJoined", ClientJoinedEvent{ClientID: req.ClientID})

	return JoinRoomAck{Producers: producers}, nil
}

func producerView(info *registry.ProducerInfo) ProducerView {
	return ProducerView{
		ProducerID: info.Producer.ID(),
		ClientID:   info.Producer.OwnerClientID(),
		Kind:       string(info.Producer.Kind()),
		AppData:    AppData{Source: MediaSource(info.Source)},
	}
}

func handleCreateTransport(s *Server, sess *Session, env *Envelope) (interface{}, error) {
	if !sess.Joined() {
		return nil, ErrNotJoined
	}
	var req CreateTransportRequest
	if err := env.Bind(&req); err != nil {
		return nil, ErrBadRequest
	}
	direction, err := req.Type.toMediaRouter()
	if err != nil {
		return nil, err
	}

	existing := sess.SendTransportID()
	if direction == mediarouter.DirectionRecv {
		existing = sess.RecvTransportID()
	}
	if existing != "" {
		return nil, ErrTransportExists
	}

	t, err := s.router.CreateTransport(sess.ClientID(), direction)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	if err := s.registry.PutTransport(t); err != nil {
		return nil, err
	}
	if err := sess.SetTransport(req.Type, t.ID()); err != nil {
		_ = s.registry.CloseTransport(t.ID())
		return nil, err
	}

	return TransportOptionsAck{TransportOptions: t.Options()}, nil
}

func handleConnectTransport(s *Server, sess *Session, env *Envelope) (interface{}, error) {
	if !sess.Joined() {
		return nil, ErrNotJoined
	}
	var req ConnectTransportRequest
	if err := env.Bind(&req); err != nil {
		return nil, ErrBadRequest
	}
	if !sess.OwnsTransport(req.TransportID) {
		return nil, ErrNotOwner
	}

	t, err := s.registry.GetTransport(req.TransportID)
	if err != nil {
		return nil, ErrTransportNotFound
	}
	if err := t.Connect(req.DTLSParameters); err != nil {
		return nil, err
	}
	sess.MarkConnected(req.TransportID)

	return OKAck{OK: true}, nil
}

// handleProduce implements spec.md §4.4's produce verb, enforcing the
// §6.1 decision that a second concurrent screen produce from the same
// caller is a synchronous error rather than a race, and arbitrating the
// single-screen-share-per-room invariant (I5) by acquiring the room's
// screen slot atomically before the MediaRouter call.
func handleProduce(s *Server, sess *Session, env *Envelope) (interface{}, error) {
	if !sess.Joined() {
		return nil, ErrNotJoined
	}
	var req ProduceRequest
	if err := env.Bind(&req); err != nil {
		return nil, ErrBadRequest
	}
	if err := req.AppData.Source.IsValid(); err != nil {
		return nil, err
	}
	if sess.SendTransportID() != req.TransportID {
		return nil, ErrNotOwner
	}

	isScreen := req.AppData.Source == SourceScreen
	if isScreen {
		if !sess.TryBeginScreenProduce() {
			return nil, ErrScreenShareInFlight
		}
		defer sess.EndScreenProduce()

		if ok, owner := s.rooms.AcquireScreenShare(sess.RoomID(), sess.ClientID()); !ok {
			return nil, fmt.Errorf("signaling: screen share already active for client %s", owner)
		}
		if s.metrics != nil {
			s.metrics.ScreenShareChanges.Inc()
		}
	}

	t, err := s.registry.GetTransport(req.TransportID)
	if err != nil {
		return nil, ErrTransportNotFound
	}

	kind := mediarouter.Kind(req.Kind)
	prod, err := t.Produce(kind, req.RTPParameters, map[string]any{"source": string(req.AppData.Source)})
	if err != nil {
		if isScreen {
			s.rooms.ReleaseScreenShare(sess.RoomID(), sess.ClientID())
		}
		return nil, fmt.Errorf("failed to produce: %w", err)
	}

	if err := s.registry.PutProducer(prod, sess.RoomID(), string(req.AppData.Source), req.TransportID); err != nil {
		_ = prod.Close()
		if isScreen {
			s.rooms.ReleaseScreenShare(sess.RoomID(), sess.ClientID())
		}
		return nil, err
	}
	s.trackProducerRoom(prod.ID(), sess.RoomID())
	if isScreen {
		s.rooms.ConfirmScreenShare(sess.RoomID(), sess.ClientID(), prod.ID())
	}

	s.broadcastEvent(sess.RoomID(), sess.ClientID(), "newProducer", NewProducerEvent{
		ProducerID: prod.ID(), ClientID: sess.ClientID(), Kind: req.Kind, AppData: req.AppData,
	})

	return ProduceAck{ProducerID: prod.ID()}, nil
}

func handleConsume(s *Server, sess *Session, env *Envelope) (interface{}, error) {
	if !sess.Joined() {
		return nil, ErrNotJoined
	}
	var req ConsumeRequest
	if err := env.Bind(&req); err != nil {
		return nil, ErrBadRequest
	}
	if sess.RecvTransportID() != req.TransportID {
		return nil, ErrNotOwner
	}

	t, err := s.registry.GetTransport(req.TransportID)
	if err != nil {
		return nil, ErrTransportNotFound
	}

	info, err := s.registry.GetProducer(req.ProducerID)
	if err != nil {
		return nil, ErrProducerNotFound
	}
	if info.Producer.Closed() {
		return nil, ErrProducerNotFound
	}

	cons, err := t.Consume(info.Producer, req.RTPCapabilities)
	if err != nil {
		return nil, fmt.Errorf("failed to consume: %w", err)
	}
	if err := s.registry.PutConsumer(cons, req.TransportID); err != nil {
		return nil, err
	}

	return ConsumeAck{
		ConsumerID: cons.ID(), ProducerID: info.Producer.ID(), Kind: string(info.Producer.Kind()),
		RTPParameters: cons.RTPParameters(),
	}, nil
}

// handleCloseAllScreenShares implements spec.md §4.4's critical-section
// arbitration algorithm: snapshot the room's screen producers owned by
// someone other than the caller, close each, and broadcast producerClosed
// per id. Idempotent (P5): a duplicate call with no matching producers
// left is a no-op returning closedCount=0.
func handleCloseAllScreenShares(s *Server, sess *Session, env *Envelope) (interface{}, error) {
	if !sess.Joined() {
		return nil, ErrNotJoined
	}
	var req CloseAllScreenSharesRequest
	_ = env.Bind(&req) // clientId is informational; the session already knows its own id

	if !s.rateLimiterFor(sess.ClientID()).Allow() {
		return CloseAllScreenSharesAck{ClosedCount: 0}, nil
	}

	infos := s.registry.ListProducers(sess.RoomID(), string(SourceScreen), sess.ClientID())
	for _, info := range infos {
		_ = s.registry.CloseProducer(info.Producer.ID())
		s.rooms.ReleaseScreenShare(sess.RoomID(), info.Producer.OwnerClientID())
	}

	return CloseAllScreenSharesAck{ClosedCount: len(infos)}, nil
}

func handlePauseProducer(s *Server, sess *Session, env *Envelope) (interface{}, error) {
	return setProducerPaused(s, sess, env, true, "producerPaused")
}

func handleResumeProducer(s *Server, sess *Session, env *Envelope) (interface{}, error) {
	return setProducerPaused(s, sess, env, false, "producerResumed")
}

func setProducerPaused(s *Server, sess *Session, env *Envelope, paused bool, eventName string) (interface{}, error) {
	if !sess.Joined() {
		return nil, ErrNotJoined
	}
	var req PauseResumeProducerRequest
	if err := env.Bind(&req); err != nil {
		return nil, ErrBadRequest
	}

	info, err := s.registry.GetProducer(req.ProducerID)
	if err != nil {
		return nil, ErrProducerNotFound
	}
	if info.Producer.OwnerClientID() != sess.ClientID() {
		return nil, ErrNotOwner
	}
	if info.Producer.Closed() {
		return nil, ErrProducerNotFound
	}

	if paused {
		info.Producer.Pause()
	} else {
		info.Producer.Resume()
	}

	s.broadcastEvent(sess.RoomID(), "", eventName, map[string]string{"producerId": req.ProducerID})

	return OKAck{OK: true}, nil
}

func handleCloseProducer(s *Server, sess *Session, env *Envelope) (interface{}, error) {
	if !sess.Joined() {
		return nil, ErrNotJoined
	}
	var req CloseProducerRequest
	if err := env.Bind(&req); err != nil {
		return nil, ErrBadRequest
	}

	info, err := s.registry.GetProducer(req.ProducerID)
	if err != nil {
		return nil, ErrProducerNotFound
	}
	if info.Producer.OwnerClientID() != sess.ClientID() {
		return nil, ErrNotOwner
	}

	if info.Source == string(SourceScreen) {
		s.rooms.ReleaseScreenShare(info.RoomID, sess.ClientID())
	}

	if err := s.registry.CloseProducer(req.ProducerID); err != nil {
		return nil, fmt.Errorf("failed to close producer: %w", err)
	}

	return OKAck{OK: true}, nil
}

func handleGetStats(s *Server, sess *Session, _ *Envelope) (interface{}, error) {
	if !sess.Joined() {
		return nil, ErrNotJoined
	}
	transports := s.registry.ListClientTransports(sess.ClientID())
	producers := s.registry.ListProducers(sess.RoomID(), "", "")
	owned := 0
	for _, p := range producers {
		if p.Producer.OwnerClientID() == sess.ClientID() {
			owned++
		}
	}
	return StatsAck{
		Transports: len(transports),
		Producers:  owned,
		Consumers:  s.registry.ClientConsumerCount(sess.ClientID()),
	}, nil
}
