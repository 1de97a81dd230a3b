// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package mediarouter is the adapter boundary over the SFU media engine.
// It hides the details of DTLS/ICE negotiation and RTP/RTCP forwarding
// behind a small, mediasoup-shaped surface (Router.CreateTransport,
// Transport.Produce, Transport.Consume) so the signaling core never has
// to import pion/webrtc directly.
package mediarouter

import (
	"errors"
	"time"
)

var (
	ErrClosed           = errors.New("mediarouter: resource is closed")
	ErrAlreadyConnected = errors.New("mediarouter: transport is already connected")
	ErrNotConnected     = errors.New("mediarouter: transport is not connected")
	ErrWrongDirection   = errors.New("mediarouter: wrong transport direction")
	ErrBadParameters    = errors.New("mediarouter: invalid parameters")
	ErrCannotConsume    = errors.New("mediarouter: cannot consume producer with given capabilities")
)

// Direction is the logical role of a Transport, taken from the client's
// point of view.
type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

// Kind is the media kind carried by a Producer/Consumer.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// RTPCapabilities is an opaque, process-lifetime-stable capability
// descriptor advertised by the Router and compared against a consumer's
// own capabilities by CanConsume.
type RTPCapabilities struct {
	Codecs []CodecConfig `json:"codecs"`
}

// ICEParameters/ICECandidate/DTLSParameters mirror the wire shapes a
// WebRTC client expects back from createTransport.
type ICEParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	ICELite          bool   `json:"iceLite,omitempty"`
}

type ICECandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	IP         string `json:"ip"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
}

type DTLSFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type DTLSParameters struct {
	Role         string            `json:"role"`
	Fingerprints []DTLSFingerprint `json:"fingerprints"`
}

// TransportOptions is the ack payload for createTransport.
type TransportOptions struct {
	ID             string         `json:"id"`
	ICEParameters  ICEParameters  `json:"iceParameters"`
	ICECandidates  []ICECandidate `json:"iceCandidates"`
	DTLSParameters DTLSParameters `json:"dtlsParameters"`
}

// RTPParameters is passed through opaquely between clients; the adapter
// only needs to know it is present, never its internal shape.
type RTPParameters map[string]any

// EventType enumerates the asynchronous events a Router can raise for a
// transport, producer, or consumer.
type EventType string

const (
	EventDTLSStateChange EventType = "dtls-state-change"
	EventClose           EventType = "close"
	EventProducerClose   EventType = "producer-close"
)

// Event is a single asynchronous notification raised by the media
// engine. ResourceType distinguishes which table OwnerClientID/ResourceID
// refer to.
type Event struct {
	Type           EventType
	ResourceType   string // "transport" | "producer" | "consumer"
	ResourceID     string
	OwnerClientID  string
	DTLSState      string // populated for EventDTLSStateChange
	At             time.Time
}
