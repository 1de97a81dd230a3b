// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package signaling implements the Client Session state machine, the
// verb dispatch table, and the disconnect/reaper lifecycle cascade
// described by the room's producer/consumer control plane: connect,
// join a room, negotiate transports, publish and subscribe to media.
package signaling

import (
	"errors"

	"github.com/sfurelay/rtcd/internal/mediarouter"
)

var (
	ErrNotJoined           = errors.New("signaling: session has not joined a room")
	ErrAlreadyJoined       = errors.New("signaling: session already joined a room")
	ErrTransportExists     = errors.New("signaling: transport of that direction already exists")
	ErrTransportNotFound   = errors.New("signaling: transport not found")
	ErrProducerNotFound    = errors.New("signaling: producer not found")
	ErrNotOwner            = errors.New("signaling: resource not owned by caller")
	ErrBadRequest          = errors.New("signaling: invalid request")
	ErrScreenShareInFlight = errors.New("signaling: screen produce already in progress")
)

// MediaSource is the sum type spec.md's Design Notes demand in place of
// a bare `any`-typed appData: only "camera" and "screen" are accepted
// on the wire, and a request naming any other key (e.g. the rejected
// mediaType variant) is a validation error.
type MediaSource string

const (
	SourceCamera MediaSource = "camera"
	SourceScreen MediaSource = "screen"
)

func (s MediaSource) IsValid() error {
	if s != SourceCamera && s != SourceScreen {
		return ErrBadRequest
	}
	return nil
}

// AppData is the one accepted application-metadata shape for produce.
type AppData struct {
	Source MediaSource `msgpack:"source" json:"source"`
}

// TransportDirection mirrors the wire's "send"/"recv" strings onto
// mediarouter.Direction without leaking the adapter package's type
// into every request struct's json/msgpack tags.
type TransportDirection string

const (
	DirectionSend TransportDirection = "send"
	DirectionRecv TransportDirection = "recv"
)

func (d TransportDirection) toMediaRouter() (mediarouter.Direction, error) {
	switch d {
	case DirectionSend:
		return mediarouter.DirectionSend, nil
	case DirectionRecv:
		return mediarouter.DirectionRecv, nil
	default:
		return "", ErrBadRequest
	}
}

// ProducerView is the wire shape returned for every producer a newly
// joining client is told about, and broadcast as newProducer.
type ProducerView struct {
	ProducerID string  `msgpack:"producerId" json:"producerId"`
	ClientID   string  `msgpack:"clientId" json:"clientId"`
	Kind       string  `msgpack:"kind" json:"kind"`
	AppData    AppData `msgpack:"appData" json:"appData"`
}

// Request payload shapes, one struct per verb (spec.md §6).

type JoinRoomRequest struct {
	RoomID   string `msgpack:"roomId" json:"roomId"`
	ClientID string `msgpack:"clientId" json:"clientId"`
}

type JoinRoomAck struct {
	Producers []ProducerView `msgpack:"producers" json:"producers"`
}

type CreateTransportRequest struct {
	Type TransportDirection `msgpack:"type" json:"type"`
}

type TransportOptionsAck struct {
	TransportOptions mediarouter.TransportOptions `msgpack:"transportOptions" json:"transportOptions"`
}

type ConnectTransportRequest struct {
	TransportID    string                     `msgpack:"transportId" json:"transportId"`
	DTLSParameters mediarouter.DTLSParameters `msgpack:"dtlsParameters" json:"dtlsParameters"`
}

type ProduceRequest struct {
	TransportID string                    `msgpack:"transportId" json:"transportId"`
	ClientID    string                    `msgpack:"clientId" json:"clientId"`
	Kind        string                    `msgpack:"kind" json:"kind"`
	RTPParameters mediarouter.RTPParameters `msgpack:"rtpParameters" json:"rtpParameters"`
	AppData     AppData                   `msgpack:"appData" json:"appData"`
}

type ProduceAck struct {
	ProducerID string `msgpack:"producerId" json:"producerId"`
}

type ConsumeRequest struct {
	TransportID     string                        `msgpack:"transportId" json:"transportId"`
	ProducerID      string                        `msgpack:"producerId" json:"producerId"`
	RTPCapabilities mediarouter.RTPCapabilities `msgpack:"rtpCapabilities" json:"rtpCapabilities"`
}

type ConsumeAck struct {
	ConsumerID    string                    `msgpack:"consumerId" json:"consumerId"`
	ProducerID    string                    `msgpack:"producerId" json:"producerId"`
	Kind          string                    `msgpack:"kind" json:"kind"`
	RTPParameters mediarouter.RTPParameters `msgpack:"rtpParameters" json:"rtpParameters"`
}

type CloseAllScreenSharesRequest struct {
	ClientID string `msgpack:"clientId" json:"clientId"`
}

type CloseAllScreenSharesAck struct {
	ClosedCount int `msgpack:"closedCount" json:"closedCount"`
}

type PauseResumeProducerRequest struct {
	ProducerID string `msgpack:"producerId" json:"producerId"`
}

type CloseProducerRequest struct {
	ProducerID string `msgpack:"producerId" json:"producerId"`
}

type OKAck struct {
	OK bool `msgpack:"ok" json:"ok"`
}

type GetRtpCapabilitiesAck struct {
	RTPCapabilities mediarouter.RTPCapabilities `msgpack:"rtpCapabilities" json:"rtpCapabilities"`
}

// StatsAck is the getStats verb's ack, a snapshot of the caller's
// owned resource counts.
type StatsAck struct {
	Transports int `msgpack:"transports" json:"transports"`
	Producers  int `msgpack:"producers" json:"producers"`
	Consumers  int `msgpack:"consumers" json:"consumers"`
}

// Event payload shapes, server-pushed (spec.md §6).

type NewProducerEvent struct {
	ProducerID string  `msgpack:"producerId" json:"producerId"`
	ClientID   string  `msgpack:"clientId" json:"clientId"`
	Kind       string  `msgpack:"kind" json:"kind"`
	AppData    AppData `msgpack:"appData" json:"appData"`
}

type ProducerClosedEvent struct {
	ProducerID string `msgpack:"producerId" json:"producerId"`
}

type ProducerPausedEvent struct {
	ProducerID string `msgpack:"producerId" json:"producerId"`
}

type ProducerResumedEvent struct {
	ProducerID string `msgpack:"producerId" json:"producerId"`
}

type ClientJoinedEvent struct {
	ClientID string `msgpack:"clientId" json:"clientId"`
}

type ClientDisconnectedEvent struct {
	ClientID string `msgpack:"clientId" json:"clientId"`
}
