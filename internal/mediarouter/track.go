// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package mediarouter

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"golang.org/x/time/rate"

	"github.com/mattermost/mattermost/server/public/shared/mlog"

	"github.com/sfurelay/rtcd/service/random"
)

// pliRateLimit caps how often a Consumer may ask its Producer to send a
// new keyframe, mirroring the teacher's per-session RTCP throttling.
const pliRateLimit = rate.Limit(1)
const pliRateBurst = 1

// Producer is a client-uploaded RTP source. One Transport may host many
// Producers; each can be consumed by any number of Consumers across the
// room, per §4.1 "produce"/"consume".
type Producer interface {
	ID() string
	OwnerClientID() string
	Kind() Kind
	AppData() map[string]any
	RTPParameters() RTPParameters
	Paused() bool
	Pause()
	Resume()
	Closed() bool
	Close() error
}

type producer struct {
	t         *transport
	id        string
	kind      Kind
	appData   map[string]any
	rtpParams RTPParameters

	receiver *webrtc.RTPReceiver

	mut       sync.Mutex
	paused    bool
	closed    bool
	consumers map[string]*consumer
}

// Produce attaches an RTPReceiver to the transport's DTLS transport and
// registers a Producer the room can fan out to other members' Consumers.
func (t *transport) Produce(kind Kind, rtpParams RTPParameters, appData map[string]any) (Producer, error) {
	if t.Direction() != DirectionSend {
		return nil, ErrWrongDirection
	}
	if !t.Connected() {
		return nil, ErrNotConnected
	}

	var codecType webrtc.RTPCodecType
	if kind == KindAudio {
		codecType = webrtc.RTPCodecTypeAudio
	} else {
		codecType = webrtc.RTPCodecTypeVideo
	}

	receiver, err := t.r.api.NewRTPReceiver(codecType, t.dtlsTransport)
	if err != nil {
		return nil, fmt.Errorf("failed to create rtp receiver: %w", err)
	}

	if err := receiver.Receive(webrtc.RTPReceiveParameters{}); err != nil {
		return nil, fmt.Errorf("failed to start rtp receiver: %w", err)
	}

	p := &producer{
		t:         t,
		id:        random.NewID(),
		kind:      kind,
		appData:   appData,
		rtpParams: rtpParams,
		receiver:  receiver,
		consumers: make(map[string]*consumer),
	}

	t.mut.Lock()
	t.producers[p.id] = p
	t.mut.Unlock()

	go p.forwardRTP()

	return p, nil
}

// forwardRTP reads RTP packets off the underlying TrackRemote and fans
// them out to every attached Consumer's local track.
func (p *producer) forwardRTP() {
	track := p.receiver.Track()
	if track == nil {
		return
	}
	buf := make([]byte, 1500)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}
		if p.Paused() {
			continue
		}

		p.mut.Lock()
		consumers := make([]*consumer, 0, len(p.consumers))
		for _, c := range p.consumers {
			consumers = append(consumers, c)
		}
		p.mut.Unlock()

		for _, c := range consumers {
			c.writeRTP(buf[:n])
		}
	}
}

func (p *producer) ID() string                       { return p.id }
func (p *producer) OwnerClientID() string            { return p.t.ownerID }
func (p *producer) Kind() Kind                       { return p.kind }
func (p *producer) AppData() map[string]any          { return p.appData }
func (p *producer) RTPParameters() RTPParameters     { return p.rtpParams }

func (p *producer) Paused() bool {
	p.mut.Lock()
	defer p.mut.Unlock()
	return p.paused
}

func (p *producer) Pause() {
	p.mut.Lock()
	p.paused = true
	p.mut.Unlock()
}

func (p *producer) Resume() {
	p.mut.Lock()
	p.paused = false
	p.mut.Unlock()
}

func (p *producer) Closed() bool {
	p.mut.Lock()
	defer p.mut.Unlock()
	return p.closed
}

// sendPLI asks the producer's upstream sender for a new keyframe. It
// does no throttling itself; consumer.RequestKeyFrame applies
// pliRateLimit before calling it.
func (p *producer) sendPLI() {
	if err := p.receiver.SendRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(p.receiver.Track().SSRC())},
	}); err != nil {
		p.t.r.log.Debug("mediarouter: failed to send pli", mlog.Err(err))
	}
}

func (p *producer) Close() error {
	p.mut.Lock()
	if p.closed {
		p.mut.Unlock()
		return nil
	}
	p.closed = true
	consumers := make([]*consumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		consumers = append(consumers, c)
	}
	p.mut.Unlock()

	for _, c := range consumers {
		_ = c.Close()
	}

	_ = p.receiver.Stop()

	p.t.mut.Lock()
	delete(p.t.producers, p.id)
	p.t.mut.Unlock()

	p.t.r.emit(Event{
		Type: EventProducerClose, ResourceType: "producer", ResourceID: p.id,
		OwnerClientID: p.t.ownerID, At: time.Now(),
	})

	return nil
}

// Consumer delivers one remote Producer's RTP stream onto a recv
// Transport belonging to a different client, per §4.1 "consume".
type Consumer interface {
	ID() string
	OwnerClientID() string
	ProducerID() string
	Kind() Kind
	RTPParameters() RTPParameters
	Closed() bool
	RequestKeyFrame()
	Close() error
}

type consumer struct {
	t        *transport
	id       string
	producer *producer
	kind     Kind

	sender     *webrtc.RTPSender
	localTrack *webrtc.TrackLocalStaticRTP

	pliLimiter *rate.Limiter

	mut    sync.Mutex
	closed bool
}

// CanConsume reports whether the router's negotiated capabilities
// include the producer's codec, per the "consume" verb's precondition.
func (r *router) CanConsume(producer Producer, caps RTPCapabilities) bool {
	wanted := string(producer.Kind())
	for _, c := range caps.Codecs {
		if c.Kind == wanted {
			return true
		}
	}
	return false
}

// Consume attaches an RTPSender fed by the Producer's forwarded packets.
func (t *transport) Consume(prod Producer, caps RTPCapabilities) (Consumer, error) {
	if t.Direction() != DirectionRecv {
		return nil, ErrWrongDirection
	}
	if !t.Connected() {
		return nil, ErrNotConnected
	}

	p, ok := prod.(*producer)
	if !ok || p.Closed() {
		return nil, ErrClosed
	}

	if !t.r.CanConsume(prod, caps) {
		return nil, ErrCannotConsume
	}

	mimeType := "video/VP8"
	if p.kind == KindAudio {
		mimeType = "audio/opus"
	}

	localTrack, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: mimeType}, string(p.kind), p.t.ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to create local track: %w", err)
	}

	sender, err := t.r.api.NewRTPSender(localTrack, t.dtlsTransport)
	if err != nil {
		return nil, fmt.Errorf("failed to create rtp sender: %w", err)
	}

	if err := sender.Send(webrtc.RTPSendParameters{}); err != nil {
		return nil, fmt.Errorf("failed to start rtp sender: %w", err)
	}

	c := &consumer{
		t:          t,
		id:         random.NewID(),
		producer:   p,
		kind:       p.kind,
		sender:     sender,
		localTrack: localTrack,
		pliLimiter: rate.NewLimiter(pliRateLimit, pliRateBurst),
	}

	t.mut.Lock()
	t.consumers[c.id] = c
	t.mut.Unlock()

	p.mut.Lock()
	p.consumers[c.id] = c
	p.mut.Unlock()

	go c.readRTCP()

	return c, nil
}

func (c *consumer) writeRTP(pkt []byte) {
	if _, err := c.localTrack.Write(pkt); err != nil {
		c.t.r.log.Debug("mediarouter: failed to write rtp to consumer", mlog.Err(err))
	}
}

// readRTCP drains feedback from the receiving client (NACK/PLI) and
// rate-limits keyframe requests upstream to the producer, the same
// throttle the teacher applies before forwarding sender RTCP.
func (c *consumer) readRTCP() {
	for {
		pkts, _, err := c.sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			if _, ok := pkt.(*rtcp.PictureLossIndication); ok {
				c.RequestKeyFrame()
			}
		}
	}
}

func (c *consumer) RequestKeyFrame() {
	if c.producer.Closed() {
		return
	}
	if !c.pliLimiter.Allow() {
		return
	}
	c.producer.sendPLI()
}

func (c *consumer) ID() string                   { return c.id }
func (c *consumer) OwnerClientID() string        { return c.t.ownerID }
func (c *consumer) ProducerID() string           { return c.producer.id }
func (c *consumer) Kind() Kind                   { return c.kind }
func (c *consumer) RTPParameters() RTPParameters { return c.producer.RTPParameters() }

func (c *consumer) Closed() bool {
	c.mut.Lock()
	defer c.mut.Unlock()
	return c.closed
}

func (c *consumer) Close() error {
	c.mut.Lock()
	if c.closed {
		c.mut.Unlock()
		return nil
	}
	c.closed = true
	c.mut.Unlock()

	_ = c.sender.Stop()

	c.t.mut.Lock()
	delete(c.t.consumers, c.id)
	c.t.mut.Unlock()

	c.producer.mut.Lock()
	delete(c.producer.consumers, c.id)
	c.producer.mut.Unlock()

	return nil
}
