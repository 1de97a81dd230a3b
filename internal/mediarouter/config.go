// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package mediarouter

import (
	"fmt"
	"runtime"
	"time"
)

// CodecConfig describes one entry of the codec list a Router advertises
// to clients through RtpCapabilities.
type CodecConfig struct {
	Kind       string            `toml:"kind"`       // "audio" or "video"
	MimeType   string            `toml:"mime_type"`  // e.g. "audio/opus", "video/VP8"
	ClockRate  uint32            `toml:"clock_rate"`
	Channels   uint16            `toml:"channels,omitempty"`
	Parameters map[string]string `toml:"parameters,omitempty"`
}

func (c CodecConfig) IsValid() error {
	if c.Kind != "audio" && c.Kind != "video" {
		return fmt.Errorf("invalid Kind value %q", c.Kind)
	}
	if c.MimeType == "" {
		return fmt.Errorf("invalid MimeType value: should not be empty")
	}
	if c.ClockRate == 0 {
		return fmt.Errorf("invalid ClockRate value: should be greater than zero")
	}
	return nil
}

// DefaultCodecs is the opus/VP8/VP9/H264 set called out in the wire
// protocol's environment configuration.
func DefaultCodecs() []CodecConfig {
	return []CodecConfig{
		{Kind: "audio", MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{Kind: "video", MimeType: "video/VP8", ClockRate: 90000},
		{Kind: "video", MimeType: "video/VP9", ClockRate: 90000},
		{
			Kind: "video", MimeType: "video/H264", ClockRate: 90000,
			Parameters: map[string]string{
				"level-asymmetry-allowed": "1",
				"packetization-mode":      "1",
				"profile-level-id":        "42e01f",
			},
		},
	}
}

// Config holds the settings needed to stand up a Router: the announced
// ICE candidate address, the UDP/TCP listening range, the codec list,
// and the timeout applied to transports that never connect.
type Config struct {
	// ICEHostOverride is the address announced in ICE candidates. If
	// empty, it is discovered via STUN against STUNServers, falling
	// back to loopback if none are configured or reachable.
	ICEHostOverride string `toml:"ice_host_override"`
	// STUNServers is a list of "stun:host:port" URLs used for public-IP
	// discovery when ICEHostOverride is unset.
	STUNServers   []string `toml:"stun_servers"`
	ICEPortUDPMin int      `toml:"ice_port_udp_min"`
	ICEPortUDPMax int      `toml:"ice_port_udp_max"`
	ICEPortTCP    int      `toml:"ice_port_tcp"`

	Codecs []CodecConfig `toml:"codecs"`

	// UnconnectedTransportTimeout is how long an allocated transport may
	// sit without a connectTransport call before the reaper closes it.
	UnconnectedTransportTimeout time.Duration `toml:"unconnected_transport_timeout"`

	// UDPSocketsCount is the number of UDP listening sockets to open with
	// SO_REUSEPORT, spreading ICE traffic across the available CPUs.
	UDPSocketsCount int `toml:"udp_sockets_count"`
}

func (c Config) IsValid() error {
	if c.ICEPortUDPMin <= 0 || c.ICEPortUDPMax <= 0 {
		return fmt.Errorf("invalid ICE UDP port range: both bounds must be greater than zero")
	}
	if c.ICEPortUDPMin > c.ICEPortUDPMax {
		return fmt.Errorf("invalid ICE UDP port range: min is greater than max")
	}
	if c.ICEPortTCP <= 0 {
		return fmt.Errorf("invalid ICEPortTCP value: should be greater than zero")
	}
	if len(c.Codecs) == 0 {
		return fmt.Errorf("invalid Codecs value: should not be empty")
	}
	for _, codec := range c.Codecs {
		if err := codec.IsValid(); err != nil {
			return fmt.Errorf("invalid codec entry: %w", err)
		}
	}
	if c.UnconnectedTransportTimeout <= 0 {
		return fmt.Errorf("invalid UnconnectedTransportTimeout value: should be greater than zero")
	}
	if c.UDPSocketsCount <= 0 {
		return fmt.Errorf("invalid UDPSocketsCount value: should be greater than zero")
	}
	return nil
}

// GetDefaultUDPListeningSocketsCount mirrors the host's CPU count, the
// same heuristic used to size the UDP listener pool.
func GetDefaultUDPListeningSocketsCount() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}

func (c *Config) SetDefaults() {
	c.ICEPortUDPMin = 40000
	c.ICEPortUDPMax = 40999
	c.ICEPortTCP = 8443
	c.STUNServers = []string{"stun:stun.l.google.com:19302"}
	c.Codecs = DefaultCodecs()
	c.UnconnectedTransportTimeout = 30 * time.Minute
	c.UDPSocketsCount = GetDefaultUDPListeningSocketsCount()
}
