// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package mediarouter

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

const udpSocketBufferSize = 1024 * 1024 * 16 // 16MB

// listenUDPPool opens count UDP sockets bound to the same address with
// SO_REUSEADDR/SO_REUSEPORT, spreading inbound ICE/RTP traffic for a
// single Router across multiple OS threads.
func listenUDPPool(log mlog.LoggerIFace, listenAddress string, count int) ([]net.PacketConn, error) {
	if count <= 0 {
		count = 1
	}

	conns := make([]net.PacketConn, 0, count)
	for i := 0; i < count; i++ {
		lc := net.ListenConfig{
			Control: func(_, _ string, c syscall.RawConn) error {
				return c.Control(func(fd uintptr) {
					if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
						log.Error("mediarouter: failed to set reuseaddr", mlog.Err(err))
					}
					if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
						log.Error("mediarouter: failed to set reuseport", mlog.Err(err))
					}
				})
			},
		}

		conn, err := lc.ListenPacket(context.Background(), "udp4", listenAddress)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on udp %s: %w", listenAddress, err)
		}

		if udpConn, ok := conn.(*net.UDPConn); ok {
			if err := udpConn.SetReadBuffer(udpSocketBufferSize); err != nil {
				log.Warn("mediarouter: failed to set udp read buffer", mlog.Err(err))
			}
			if err := udpConn.SetWriteBuffer(udpSocketBufferSize); err != nil {
				log.Warn("mediarouter: failed to set udp write buffer", mlog.Err(err))
			}
		}

		conns = append(conns, conn)
	}

	log.Info("mediarouter: listening on udp",
		mlog.String("addr", listenAddress), mlog.Int("sockets", len(conns)))

	return conns, nil
}

// resolveAnnouncedIP returns the address to embed in ICE candidates:
// the configured override if set, otherwise a STUN-discovered public
// address, falling back to loopback if no STUN server is reachable,
// per §6's "defaults to loopback" environment-configuration note.
func resolveAnnouncedIP(log mlog.LoggerIFace, override string, stunServers []string) string {
	if override != "" {
		return override
	}
	if ip, err := discoverPublicIP(stunServers); err == nil {
		return ip
	} else if len(stunServers) > 0 {
		log.Warn("mediarouter: stun discovery failed, falling back to loopback", mlog.Err(err))
	}
	return "127.0.0.1"
}
