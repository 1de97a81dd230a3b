// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package mediarouter

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/mattermost/mattermost/server/public/shared/mlog"

	"github.com/sfurelay/rtcd/service/random"
)

// Transport is a peer-to-router connection carrying encrypted RTP,
// scoped to exactly one client and one Direction (§4.1, §3 "Transport").
type Transport interface {
	ID() string
	OwnerClientID() string
	Direction() Direction
	Connected() bool
	Closed() bool
	Options() TransportOptions
	Connect(dtls DTLSParameters) error
	Produce(kind Kind, rtpParams RTPParameters, appData map[string]any) (Producer, error)
	Consume(producer Producer, caps RTPCapabilities) (Consumer, error)
	Close() error
}

type transport struct {
	r         *router
	id        string
	ownerID   string
	direction Direction

	iceGatherer *webrtc.ICEGatherer
	iceTransport *webrtc.ICETransport
	dtlsTransport *webrtc.DTLSTransport
	options     TransportOptions

	mut       sync.Mutex
	connected bool
	closed    bool

	producers map[string]*producer
	consumers map[string]*consumer
}

// CreateTransport allocates a send or recv Transport for clientID,
// gathering ICE candidates against the router's announced address
// (§4.1: "Transports listen on a configured IP with UDP preferred,
// TCP fallback").
func (r *router) CreateTransport(clientID string, direction Direction) (Transport, error) {
	if direction != DirectionSend && direction != DirectionRecv {
		return nil, ErrWrongDirection
	}

	gatherer, err := r.api.NewICEGatherer(webrtc.ICEGatherOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create ice gatherer: %w", err)
	}

	iceTransport := r.api.NewICETransport(gatherer)

	certs, err := webrtc.GenerateCertificate(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate dtls certificate: %w", err)
	}

	dtlsTransport, err := r.api.NewDTLSTransport(iceTransport, []webrtc.Certificate{*certs})
	if err != nil {
		return nil, fmt.Errorf("failed to create dtls transport: %w", err)
	}

	if err := gatherer.Gather(); err != nil {
		return nil, fmt.Errorf("failed to gather ice candidates: %w", err)
	}

	iceParams, err := gatherer.GetLocalParameters()
	if err != nil {
		return nil, fmt.Errorf("failed to get local ice parameters: %w", err)
	}

	iceCandidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		return nil, fmt.Errorf("failed to get local ice candidates: %w", err)
	}

	dtlsParams, err := dtlsTransport.GetLocalParameters(false)
	if err != nil {
		return nil, fmt.Errorf("failed to get local dtls parameters: %w", err)
	}

	t := &transport{
		r:             r,
		id:            random.NewID(),
		ownerID:       clientID,
		direction:     direction,
		iceGatherer:   gatherer,
		iceTransport:  iceTransport,
		dtlsTransport: dtlsTransport,
		producers:     make(map[string]*producer),
		consumers:     make(map[string]*consumer),
	}
	t.options = toTransportOptions(t.id, iceParams, iceCandidates, dtlsParams)

	r.addTransport(t)
	go t.watchDTLSState()
	go t.reapIfUnconnected(r.cfg.UnconnectedTransportTimeout)

	return t, nil
}

func toTransportOptions(id string, iceParams webrtc.ICEParameters, candidates []webrtc.ICECandidate, dtls webrtc.DTLSParameters) TransportOptions {
	opts := TransportOptions{
		ID: id,
		ICEParameters: ICEParameters{
			UsernameFragment: iceParams.UsernameFragment,
			Password:         iceParams.Password,
			ICELite:          iceParams.ICELite,
		},
	}
	for _, c := range candidates {
		opts.ICECandidates = append(opts.ICECandidates, ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			IP:         c.Address,
			Protocol:   string(c.Protocol),
			Port:       c.Port,
			Type:       string(c.Typ),
		})
	}
	for _, fp := range dtls.Fingerprints {
		opts.DTLSParameters.Fingerprints = append(opts.DTLSParameters.Fingerprints, DTLSFingerprint{
			Algorithm: fp.Algorithm,
			Value:     fp.Value,
		})
	}
	opts.DTLSParameters.Role = "auto"
	return opts
}

func (t *transport) ID() string            { return t.id }
func (t *transport) OwnerClientID() string { return t.ownerID }
func (t *transport) Direction() Direction  { return t.direction }

func (t *transport) Connected() bool {
	t.mut.Lock()
	defer t.mut.Unlock()
	return t.connected
}

func (t *transport) Closed() bool {
	t.mut.Lock()
	defer t.mut.Unlock()
	return t.closed
}

func (t *transport) Options() TransportOptions {
	return t.options
}

// Connect applies the client's DTLS parameters, starting ICE (as the
// controlled agent, since the router is ICE-lite) and then DTLS.
func (t *transport) Connect(dtls DTLSParameters) error {
	t.mut.Lock()
	if t.closed {
		t.mut.Unlock()
		return ErrClosed
	}
	if t.connected {
		t.mut.Unlock()
		return ErrAlreadyConnected
	}
	if len(dtls.Fingerprints) == 0 {
		t.mut.Unlock()
		return ErrBadParameters
	}
	t.mut.Unlock()

	remoteICE := webrtc.ICEParameters{}
	if err := t.iceTransport.Start(t.iceGatherer, remoteICE, webrtc.ICERoleControlled.Pointer()); err != nil {
		return fmt.Errorf("failed to start ice transport: %w", err)
	}

	remoteDTLS := webrtc.DTLSParameters{Role: webrtc.DTLSRoleClient}
	for _, fp := range dtls.Fingerprints {
		remoteDTLS.Fingerprints = append(remoteDTLS.Fingerprints, webrtc.DTLSFingerprint{
			Algorithm: fp.Algorithm, Value: fp.Value,
		})
	}
	if err := t.dtlsTransport.Start(remoteDTLS); err != nil {
		return fmt.Errorf("failed to start dtls transport: %w", err)
	}

	t.mut.Lock()
	t.connected = true
	t.mut.Unlock()

	return nil
}

// watchDTLSState forwards the underlying DTLS state machine's closure
// into a router-level Event, per §4.4's "DTLS state change to closed on
// a transport triggers asynchronous cleanup."
func (t *transport) watchDTLSState() {
	t.dtlsTransport.OnStateChange(func(state webrtc.DTLSTransportState) {
		t.r.emit(Event{
			Type:          EventDTLSStateChange,
			ResourceType:  "transport",
			ResourceID:    t.id,
			OwnerClientID: t.ownerID,
			DTLSState:     state.String(),
			At:            time.Now(),
		})
		if state == webrtc.DTLSTransportStateClosed || state == webrtc.DTLSTransportStateFailed {
			_ = t.Close()
		}
	})
}

// reapIfUnconnected implements the unconnected-transport reaper of
// §4.5: a timer started at creation closes the transport if it never
// becomes connected. Resets are not needed — if the transport is
// connected by the time the timer fires, it is left open.
func (t *transport) reapIfUnconnected(timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	<-timer.C

	if !t.Connected() {
		t.r.log.Info("mediarouter: reaping unconnected transport",
			mlog.String("transportID", t.id), mlog.String("clientID", t.ownerID))
		_ = t.Close()
	}
}

func (t *transport) Close() error {
	t.mut.Lock()
	if t.closed {
		t.mut.Unlock()
		return nil
	}
	t.closed = true
	producers := make([]*producer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	consumers := make([]*consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	t.mut.Unlock()

	for _, p := range producers {
		_ = p.Close()
	}
	for _, c := range consumers {
		_ = c.Close()
	}

	_ = t.dtlsTransport.Stop()
	_ = t.iceTransport.Stop()

	t.r.removeTransport(t.id)
	t.r.emit(Event{
		Type: EventClose, ResourceType: "transport", ResourceID: t.id,
		OwnerClientID: t.ownerID, At: time.Now(),
	})

	return nil
}
