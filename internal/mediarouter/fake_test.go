// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package mediarouter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testCaps() RTPCapabilities {
	return RTPCapabilities{Codecs: DefaultCodecs()}
}

func TestFakeTransportLifecycle(t *testing.T) {
	f := NewFake(testCaps())
	defer f.Close()

	tr, err := f.CreateTransport("client1", DirectionSend)
	require.NoError(t, err)
	require.False(t, tr.Connected())

	_, err = tr.Produce(KindVideo, nil, map[string]any{"source": "camera"})
	require.ErrorIs(t, err, ErrNotConnected)

	err = tr.Connect(DTLSParameters{Fingerprints: []DTLSFingerprint{{Algorithm: "sha-256", Value: "aa"}}})
	require.NoError(t, err)
	require.True(t, tr.Connected())

	err = tr.Connect(DTLSParameters{Fingerprints: []DTLSFingerprint{{Algorithm: "sha-256", Value: "aa"}}})
	require.ErrorIs(t, err, ErrAlreadyConnected)

	require.NoError(t, tr.Close())
	require.True(t, tr.Closed())
}

func TestFakeProduceConsume(t *testing.T) {
	f := NewFake(testCaps())
	defer f.Close()

	sendTr, err := f.CreateTransport("alice", DirectionSend)
	require.NoError(t, err)
	require.NoError(t, sendTr.Connect(DTLSParameters{Fingerprints: []DTLSFingerprint{{Algorithm: "sha-256", Value: "aa"}}}))

	prod, err := sendTr.Produce(KindVideo, nil, map[string]any{"source": "camera"})
	require.NoError(t, err)
	require.Equal(t, "alice", prod.OwnerClientID())
	require.Equal(t, KindVideo, prod.Kind())

	recvTr, err := f.CreateTransport("bob", DirectionRecv)
	require.NoError(t, err)
	require.NoError(t, recvTr.Connect(DTLSParameters{Fingerprints: []DTLSFingerprint{{Algorithm: "sha-256", Value: "bb"}}}))

	cons, err := recvTr.Consume(prod, testCaps())
	require.NoError(t, err)
	require.Equal(t, prod.ID(), cons.ProducerID())

	cons.RequestKeyFrame()
	require.Equal(t, 1, cons.(*fakeConsumer).KeyFrameRequests())

	require.NoError(t, prod.Close())
	require.True(t, cons.Closed())
}

func TestFakeConsumeWrongDirection(t *testing.T) {
	f := NewFake(testCaps())
	defer f.Close()

	sendTr, err := f.CreateTransport("alice", DirectionSend)
	require.NoError(t, err)
	require.NoError(t, sendTr.Connect(DTLSParameters{Fingerprints: []DTLSFingerprint{{Algorithm: "sha-256", Value: "aa"}}}))

	prod, err := sendTr.Produce(KindAudio, nil, nil)
	require.NoError(t, err)

	_, err = sendTr.Consume(prod, testCaps())
	require.ErrorIs(t, err, ErrWrongDirection)
}

func TestFakeInjectConnectError(t *testing.T) {
	f := NewFake(testCaps())
	defer f.Close()

	tr, err := f.CreateTransport("client1", DirectionSend)
	require.NoError(t, err)

	injected := ErrBadParameters
	f.InjectConnectError(tr.ID(), injected)

	err = tr.Connect(DTLSParameters{Fingerprints: []DTLSFingerprint{{Algorithm: "sha-256", Value: "aa"}}})
	require.ErrorIs(t, err, injected)

	// the fault only fires once
	err = tr.Connect(DTLSParameters{Fingerprints: []DTLSFingerprint{{Algorithm: "sha-256", Value: "aa"}}})
	require.NoError(t, err)
}
