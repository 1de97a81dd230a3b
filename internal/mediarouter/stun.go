// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package mediarouter

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

// discoverPublicIP performs a single STUN binding request against the
// first stun: URL in iceServers, the same dance the teacher runs in
// service/rtc/stun.go to learn the address to announce in ICE
// candidates when no explicit ICEHostOverride is configured.
func discoverPublicIP(iceServers []string) (string, error) {
	var stunURL string
	for _, u := range iceServers {
		if strings.HasPrefix(u, "stun:") {
			stunURL = u
			break
		}
	}
	if stunURL == "" {
		return "", fmt.Errorf("mediarouter: no stun server url configured")
	}
	serverAddr, err := net.ResolveUDPAddr("udp", stunURL[strings.Index(stunURL, ":")+1:])
	if err != nil {
		return "", fmt.Errorf("failed to resolve stun host: %w", err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return "", fmt.Errorf("failed to open stun socket: %w", err)
	}
	defer conn.Close()

	addr, err := getXORMappedAddr(conn, serverAddr, 5*time.Second)
	if err != nil {
		return "", fmt.Errorf("failed to get public address: %w", err)
	}

	return addr.IP.String(), nil
}

func getXORMappedAddr(conn net.PacketConn, serverAddr net.Addr, deadline time.Duration) (*stun.XORMappedAddress, error) {
	if deadline > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
			return nil, err
		}
		defer conn.SetReadDeadline(time.Time{})
	}

	req, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	if err != nil {
		return nil, err
	}
	if _, err := conn.WriteTo(req.Raw, serverAddr); err != nil {
		return nil, err
	}

	buf := make([]byte, 1280)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		return nil, err
	}
	res := &stun.Message{Raw: buf[:n]}
	if err := res.Decode(); err != nil {
		return nil, err
	}

	var addr stun.XORMappedAddress
	if err := addr.GetFrom(res); err != nil {
		return nil, err
	}
	return &addr, nil
}
