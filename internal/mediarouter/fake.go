// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package mediarouter

import (
	"sync"
	"time"

	"github.com/sfurelay/rtcd/service/random"
)

// Fake is a deterministic, in-process Router used by signaling-layer
// tests. It implements the same verb-level contract as the pion-backed
// Router (connect/produce/consume bookkeeping, close cascades, events)
// without touching a socket, so tests can drive the six end-to-end
// scenarios without a real network stack.
type Fake struct {
	caps RTPCapabilities

	mut         sync.Mutex
	transports  map[string]*fakeTransport
	eventCh     chan Event
	closed      bool
	connectErrs map[string]error // transportID -> error to return from Connect, for fault injection
}

func NewFake(caps RTPCapabilities) *Fake {
	return &Fake{
		caps:        caps,
		transports:  make(map[string]*fakeTransport),
		eventCh:     make(chan Event, eventChSize),
		connectErrs: make(map[string]error),
	}
}

func (f *Fake) RTPCapabilities() RTPCapabilities { return f.caps }

func (f *Fake) CreateTransport(clientID string, direction Direction) (Transport, error) {
	f.mut.Lock()
	defer f.mut.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	t := &fakeTransport{
		f:         f,
		id:        random.NewID(),
		ownerID:   clientID,
		direction: direction,
		producers: make(map[string]*fakeProducer),
		consumers: make(map[string]*fakeConsumer),
	}
	t.opts = TransportOptions{ID: t.id, ICEParameters: ICEParameters{UsernameFragment: t.id, Password: "fake"}}
	f.transports[t.id] = t
	return t, nil
}

func (f *Fake) CanConsume(producer Producer, caps RTPCapabilities) bool {
	for _, c := range caps.Codecs {
		if c.Kind == string(producer.Kind()) {
			return true
		}
	}
	return false
}

func (f *Fake) EventCh() <-chan Event { return f.eventCh }

func (f *Fake) emit(ev Event) {
	select {
	case f.eventCh <- ev:
	default:
	}
}

// InjectConnectError makes the next Connect call on transportID fail,
// simulating a DTLS handshake failure for lifecycle tests.
func (f *Fake) InjectConnectError(transportID string, err error) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.connectErrs[transportID] = err
}

// ReapUnconnected closes transportID if it has never become connected,
// mirroring the real adapter's unconnected-transport reaper
// (transport.go's reapIfUnconnected) as something a test can trigger
// directly instead of racing the real config's multi-minute timeout.
// A no-op if transportID is already connected.
func (f *Fake) ReapUnconnected(transportID string) error {
	f.mut.Lock()
	t, ok := f.transports[transportID]
	f.mut.Unlock()
	if !ok {
		return ErrClosed
	}
	if t.Connected() {
		return nil
	}
	return t.Close()
}

func (f *Fake) Close() error {
	f.mut.Lock()
	transports := make([]*fakeTransport, 0, len(f.transports))
	for _, t := range f.transports {
		transports = append(transports, t)
	}
	f.closed = true
	f.mut.Unlock()

	for _, t := range transports {
		_ = t.Close()
	}
	close(f.eventCh)
	return nil
}

type fakeTransport struct {
	f         *Fake
	id        string
	ownerID   string
	direction Direction
	opts      TransportOptions

	mut       sync.Mutex
	connected bool
	closed    bool
	producers map[string]*fakeProducer
	consumers map[string]*fakeConsumer
}

func (t *fakeTransport) ID() string            { return t.id }
func (t *fakeTransport) OwnerClientID() string { return t.ownerID }
func (t *fakeTransport) Direction() Direction  { return t.direction }
func (t *fakeTransport) Options() TransportOptions { return t.opts }

func (t *fakeTransport) Connected() bool {
	t.mut.Lock()
	defer t.mut.Unlock()
	return t.connected
}

func (t *fakeTransport) Closed() bool {
	t.mut.Lock()
	defer t.mut.Unlock()
	return t.closed
}

func (t *fakeTransport) Connect(dtls DTLSParameters) error {
	t.f.mut.Lock()
	err := t.f.connectErrs[t.id]
	delete(t.f.connectErrs, t.id)
	t.f.mut.Unlock()
	if err != nil {
		return err
	}

	t.mut.Lock()
	defer t.mut.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.connected {
		return ErrAlreadyConnected
	}
	if len(dtls.Fingerprints) == 0 {
		return ErrBadParameters
	}
	t.connected = true
	return nil
}

func (t *fakeTransport) Produce(kind Kind, rtpParams RTPParameters, appData map[string]any) (Producer, error) {
	if t.Direction() != DirectionSend {
		return nil, ErrWrongDirection
	}
	if !t.Connected() {
		return nil, ErrNotConnected
	}
	p := &fakeProducer{
		t: t, id: random.NewID(), kind: kind, appData: appData, rtpParams: rtpParams,
		consumers: make(map[string]*fakeConsumer),
	}
	t.mut.Lock()
	t.producers[p.id] = p
	t.mut.Unlock()
	return p, nil
}

func (t *fakeTransport) Consume(prod Producer, caps RTPCapabilities) (Consumer, error) {
	if t.Direction() != DirectionRecv {
		return nil, ErrWrongDirection
	}
	if !t.Connected() {
		return nil, ErrNotConnected
	}
	p, ok := prod.(*fakeProducer)
	if !ok || p.Closed() {
		return nil, ErrClosed
	}
	if !t.f.CanConsume(prod, caps) {
		return nil, ErrCannotConsume
	}
	c := &fakeConsumer{t: t, id: random.NewID(), producer: p}
	t.mut.Lock()
	t.consumers[c.id] = c
	t.mut.Unlock()
	p.mut.Lock()
	p.consumers[c.id] = c
	p.mut.Unlock()
	return c, nil
}

func (t *fakeTransport) Close() error {
	t.mut.Lock()
	if t.closed {
		t.mut.Unlock()
		return nil
	}
	t.closed = true
	producers := make([]*fakeProducer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	consumers := make([]*fakeConsumer, 0, len(t.consumers))
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

	t.f.mut.Lock()
	delete(t.f.transports, t.id)
	t.f.mut.Unlock()

	t.f.emit(Event{Type: EventClose, ResourceType: "transport", ResourceID: t.id, OwnerClientID: t.ownerID, At: time.Now()})
	return nil
}

type fakeProducer struct {
	t         *fakeTransport
	id        string
	kind      Kind
	appData   map[string]any
	rtpParams RTPParameters

	mut       sync.Mutex
	paused    bool
	closed    bool
	consumers map[string]*fakeConsumer
}

func (p *fakeProducer) ID() string                   { return p.id }
func (p *fakeProducer) OwnerClientID() string        { return p.t.ownerID }
func (p *fakeProducer) Kind() Kind                   { return p.kind }
func (p *fakeProducer) AppData() map[string]any      { return p.appData }
func (p *fakeProducer) RTPParameters() RTPParameters { return p.rtpParams }

func (p *fakeProducer) Paused() bool {
	p.mut.Lock()
	defer p.mut.Unlock()
	return p.paused
}
func (p *fakeProducer) Pause()  { p.mut.Lock(); p.paused = true; p.mut.Unlock() }
func (p *fakeProducer) Resume() { p.mut.Lock(); p.paused = false; p.mut.Unlock() }

func (p *fakeProducer) Closed() bool {
	p.mut.Lock()
	defer p.mut.Unlock()
	return p.closed
}

func (p *fakeProducer) Close() error {
	p.mut.Lock()
	if p.closed {
		p.mut.Unlock()
		return nil
	}
	p.closed = true
	consumers := make([]*fakeConsumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		consumers = append(consumers, c)
	}
	p.mut.Unlock()

	for _, c := range consumers {
		_ = c.Close()
	}

	p.t.mut.Lock()
	delete(p.t.producers, p.id)
	p.t.mut.Unlock()

	p.t.f.emit(Event{Type: EventProducerClose, ResourceType: "producer", ResourceID: p.id, OwnerClientID: p.t.ownerID, At: time.Now()})
	return nil
}

type fakeConsumer struct {
	t        *fakeTransport
	id       string
	producer *fakeProducer

	mut            sync.Mutex
	closed         bool
	keyFrameReqs   int
}

func (c *fakeConsumer) ID() string                   { return c.id }
func (c *fakeConsumer) OwnerClientID() string        { return c.t.ownerID }
func (c *fakeConsumer) ProducerID() string           { return c.producer.id }
func (c *fakeConsumer) Kind() Kind                   { return c.producer.kind }
func (c *fakeConsumer) RTPParameters() RTPParameters { return c.producer.RTPParameters() }

func (c *fakeConsumer) Closed() bool {
	c.mut.Lock()
	defer c.mut.Unlock()
	return c.closed
}

// RequestKeyFrame just counts calls; tests can assert on KeyFrameRequests.
func (c *fakeConsumer) RequestKeyFrame() {
	c.mut.Lock()
	c.keyFrameReqs++
	c.mut.Unlock()
}

func (c *fakeConsumer) KeyFrameRequests() int {
	c.mut.Lock()
	defer c.mut.Unlock()
	return c.keyFrameReqs
}

func (c *fakeConsumer) Close() error {
	c.mut.Lock()
	if c.closed {
		c.mut.Unlock()
		return nil
	}
	c.closed = true
	c.mut.Unlock()

	c.t.mut.Lock()
	delete(c.t.consumers, c.id)
	c.t.mut.Unlock()

	c.producer.mut.Lock()
	delete(c.producer.consumers, c.id)
	c.producer.mut.Unlock()
	return nil
}
