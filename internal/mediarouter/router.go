// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package mediarouter

import (
	"fmt"
	"net"
	"sync"

	"github.com/pion/ice/v4"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

const eventChSize = 256

// Router is the process-wide handle onto the media engine. It is the
// "create router" operation of §4.1: one Router per process, holding
// the negotiated codec set and the ICE/DTLS machinery every Transport
// is built from.
type Router interface {
	RTPCapabilities() RTPCapabilities
	CreateTransport(clientID string, direction Direction) (Transport, error)
	CanConsume(producer Producer, caps RTPCapabilities) bool
	EventCh() <-chan Event
	Close() error
}

type router struct {
	cfg Config
	log mlog.LoggerIFace

	api             *webrtc.API
	settingEngine   webrtc.SettingEngine
	rtpCapabilities RTPCapabilities

	udpConn net.PacketConn // multiConn fanning in/out across the SO_REUSEPORT pool
	udpMux  ice.UDPMux

	eventCh chan Event

	mut        sync.Mutex
	transports map[string]*transport
}

// NewRouter builds the shared webrtc.API (MediaEngine + SettingEngine +
// pion's default interceptor set) and opens the UDP listener pool.
// This is the adapter's one-time "create router" call; every Transport
// allocated afterwards shares this engine.
func NewRouter(cfg Config, log mlog.LoggerIFace) (Router, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid mediarouter config: %w", err)
	}

	mediaEngine, err := buildMediaEngine(cfg.Codecs)
	if err != nil {
		return nil, fmt.Errorf("failed to build media engine: %w", err)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.SetLite(true) // the SFU is ICE-lite: it never initiates connectivity checks
	if err := se.SetEphemeralUDPPortRange(uint16(cfg.ICEPortUDPMin), uint16(cfg.ICEPortUDPMax)); err != nil {
		return nil, fmt.Errorf("failed to set udp port range: %w", err)
	}
	se.SetNAT1To1IPs([]string{resolveAnnouncedIP(log, cfg.ICEHostOverride, cfg.STUNServers)}, webrtc.ICECandidateTypeHost)

	udpConns, err := listenUDPPool(log, fmt.Sprintf(":%d", cfg.ICEPortUDPMin), cfg.UDPSocketsCount)
	if err != nil {
		return nil, fmt.Errorf("failed to open udp listener pool: %w", err)
	}
	udpConn, err := newMultiConn(udpConns)
	if err != nil {
		return nil, fmt.Errorf("failed to fan in udp listener pool: %w", err)
	}
	udpMux := webrtc.NewICEUDPMux(nil, udpConn)
	se.SetICEUDPMux(udpMux)

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithSettingEngine(se), webrtc.WithInterceptorRegistry(ir))

	r := &router{
		cfg:             cfg,
		log:             log,
		api:             api,
		settingEngine:   se,
		rtpCapabilities: RTPCapabilities{Codecs: cfg.Codecs},
		udpConn:         udpConn,
		udpMux:          udpMux,
		eventCh:         make(chan Event, eventChSize),
		transports:      make(map[string]*transport),
	}

	return r, nil
}

func buildMediaEngine(codecs []CodecConfig) (*webrtc.MediaEngine, error) {
	me := &webrtc.MediaEngine{}
	for _, c := range codecs {
		var kind webrtc.RTPCodecType
		if c.Kind == "audio" {
			kind = webrtc.RTPCodecTypeAudio
		} else {
			kind = webrtc.RTPCodecTypeVideo
		}

		sdpFmtpLine := ""
		for k, v := range c.Parameters {
			if sdpFmtpLine != "" {
				sdpFmtpLine += ";"
			}
			sdpFmtpLine += k + "=" + v
		}

		codec := webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    c.MimeType,
				ClockRate:   c.ClockRate,
				Channels:    c.Channels,
				SDPFmtpLine: sdpFmtpLine,
			},
			PayloadType: 0, // negotiated by RegisterCodec
		}
		if err := me.RegisterCodec(codec, kind); err != nil {
			return nil, fmt.Errorf("failed to register codec %s: %w", c.MimeType, err)
		}
	}
	return me, nil
}

func (r *router) RTPCapabilities() RTPCapabilities {
	return r.rtpCapabilities
}

func (r *router) EventCh() <-chan Event {
	return r.eventCh
}

func (r *router) emit(ev Event) {
	select {
	case r.eventCh <- ev:
	default:
		r.log.Error("mediarouter: event channel full, dropping event",
			mlog.String("type", string(ev.Type)), mlog.String("resourceID", ev.ResourceID))
	}
}

func (r *router) addTransport(t *transport) {
	r.mut.Lock()
	r.transports[t.id] = t
	r.mut.Unlock()
}

func (r *router) removeTransport(id string) {
	r.mut.Lock()
	delete(r.transports, id)
	r.mut.Unlock()
}

func (r *router) Close() error {
	r.mut.Lock()
	transports := make([]*transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	r.mut.Unlock()

	for _, t := range transports {
		_ = t.Close()
	}

	if r.udpMux != nil {
		_ = r.udpMux.Close()
	}
	if r.udpConn != nil {
		_ = r.udpConn.Close()
	}

	close(r.eventCh)

	return nil
}
