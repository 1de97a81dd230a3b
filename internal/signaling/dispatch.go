// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package signaling

import (
	"fmt"

	"github.com/mattermost/mattermost/server/public/shared/mlog"

	"github.com/sfurelay/rtcd/internal/mediarouter"
	"github.com/sfurelay/rtcd/service/ws"
)

// dispatchLoop drains the ws.Server's single shared receive channel,
// exactly the pattern the teacher uses to serialize connection
// open/message/close events through one goroutine (service/rtc/server.go):
// per-connection ordering falls out of WS read ordering, and cross-
// connection parallelism falls out of the registries' own locking.
func (s *Server) dispatchLoop() {
	for msg := range s.ws.ReceiveCh() {
		switch msg.Type {
		case ws.OpenMessage:
			s.addSession(NewSession(msg.ConnID))
			if s.metrics != nil {
				s.metrics.WSConnections.Inc()
			}
		case ws.CloseMessage:
			s.handleDisconnect(msg.ConnID)
			if s.metrics != nil {
				s.metrics.WSConnections.Dec()
			}
		case ws.TextMessage, ws.BinaryMessage:
			if s.metrics != nil {
				s.metrics.IncWSMessages("in")
			}
			s.handleMessage(msg.ConnID, msg.Data)
		}
	}
}

// handleMessage decodes one envelope and dispatches it to its verb
// handler under a recover, turning an unexpected panic into a generic
// error ack instead of taking down the dispatch loop (spec.md §7's
// "unexpected exceptions ... caught, logged, and reported as a generic
// error ack", grounded on the teacher's per-connection goroutine
// isolation in service/ws/server.go's ServeHTTP).
func (s *Server) handleMessage(connID string, data []byte) {
	sess := s.sessionFor(connID)
	if sess == nil {
		s.log.Error("signaling: message for unknown session", mlog.String("connID", connID))
		return
	}

	env, err := UnpackEnvelope(data)
	if err != nil {
		s.log.Error("signaling: failed to decode envelope", mlog.String("connID", connID), mlog.Err(err))
		return
	}
	if env.Kind != KindRequest {
		return
	}

	ack := s.dispatchVerb(sess, env)
	s.sendAck(connID, ack)
}

func (s *Server) dispatchVerb(sess *Session, env *Envelope) (ack *Envelope) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("signaling: panic in verb handler",
				mlog.String("verb", env.Name), mlog.Any("panic", r))
			ack = newErrorAck(env.ReqID, fmt.Errorf("signaling: internal error"))
		}
	}()

	handler, ok := verbTable[env.Name]
	if !ok {
		return newErrorAck(env.ReqID, fmt.Errorf("signaling: unknown verb %q", env.Name))
	}

	data, err := handler(s, sess, env)
	if err != nil {
		return newErrorAck(env.ReqID, err)
	}
	return newAck(env.ReqID, data)
}

func (s *Server) sendAck(connID string, env *Envelope) {
	data, err := env.Pack()
	if err != nil {
		s.log.Error("signaling: failed to pack ack", mlog.Err(err))
		return
	}
	select {
	case s.ws.SendCh() <- ws.Message{ConnID: connID, Type: ws.BinaryMessage, Data: data}:
		if s.metrics != nil {
			s.metrics.IncWSMessages("out")
		}
	default:
		s.log.Warn("signaling: send channel full, dropping ack", mlog.String("connID", connID))
	}
}

// eventLoop drains mediarouter.Router events, keeping the Resource
// Registry consistent with asynchronous cascades (DTLS close, producer
// close not driven by a verb) and broadcasting producerClosed for every
// producer close regardless of origin — the single place that event
// fires from, per the Lifecycle Supervisor's event-stream design (§5.6,
// Design Notes: "model MediaRouter as producing an event stream; one
// supervisor task consumes it").
func (s *Server) eventLoop() {
	for ev := range s.router.EventCh() {
		switch ev.Type {
		case mediarouter.EventProducerClose:
			info, infoErr := s.registry.GetProducer(ev.ResourceID)
			_ = s.registry.CloseProducer(ev.ResourceID)
			if roomID, ok := s.popProducerRoom(ev.ResourceID); ok {
				if infoErr == nil && info.Source == string(SourceScreen) {
					s.rooms.ReleaseScreenShare(roomID, info.Producer.OwnerClientID())
				}
				s.broadcastEvent(roomID, "", "producerClosed", ProducerClosedEvent{ProducerID: ev.ResourceID})
			}
		case mediarouter.EventClose:
			if ev.ResourceType == "transport" {
				_ = s.registry.CloseTransport(ev.ResourceID)
			}
		}
	}
}
