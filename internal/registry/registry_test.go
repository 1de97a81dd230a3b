// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sfurelay/rtcd/internal/mediarouter"
)

func newConnectedPair(t *testing.T, f *mediarouter.Fake, sendClient, recvClient string) (mediarouter.Transport, mediarouter.Transport) {
	sendTr, err := f.CreateTransport(sendClient, mediarouter.DirectionSend)
	require.NoError(t, err)
	require.NoError(t, sendTr.Connect(mediarouter.DTLSParameters{Fingerprints: []mediarouter.DTLSFingerprint{{Algorithm: "sha-256", Value: "aa"}}}))

	recvTr, err := f.CreateTransport(recvClient, mediarouter.DirectionRecv)
	require.NoError(t, err)
	require.NoError(t, recvTr.Connect(mediarouter.DTLSParameters{Fingerprints: []mediarouter.DTLSFingerprint{{Algorithm: "sha-256", Value: "bb"}}}))

	return sendTr, recvTr
}

func TestCloseProducerCascadesToConsumers(t *testing.T) {
	caps := mediarouter.RTPCapabilities{Codecs: mediarouter.DefaultCodecs()}
	f := mediarouter.NewFake(caps)
	defer f.Close()

	sendTr, recvTr := newConnectedPair(t, f, "alice", "bob")

	reg := New()
	require.NoError(t, reg.PutTransport(sendTr))
	require.NoError(t, reg.PutTransport(recvTr))

	prod, err := sendTr.Produce(mediarouter.KindVideo, nil, map[string]any{"source": "camera"})
	require.NoError(t, err)
	require.NoError(t, reg.PutProducer(prod, "room1", "camera", sendTr.ID()))

	cons, err := recvTr.Consume(prod, caps)
	require.NoError(t, err)
	require.NoError(t, reg.PutConsumer(cons, recvTr.ID()))

	require.NoError(t, reg.CloseProducer(prod.ID()))

	require.True(t, prod.Closed())
	require.True(t, cons.Closed())

	_, err = reg.GetProducer(prod.ID())
	require.ErrorIs(t, err, ErrNotFound)
	_, err = reg.GetConsumer(cons.ID())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCloseClientCascadesEverything(t *testing.T) {
	caps := mediarouter.RTPCapabilities{Codecs: mediarouter.DefaultCodecs()}
	f := mediarouter.NewFake(caps)
	defer f.Close()

	sendTr, recvTr := newConnectedPair(t, f, "alice", "bob")

	reg := New()
	require.NoError(t, reg.PutTransport(sendTr))
	require.NoError(t, reg.PutTransport(recvTr))

	prod, err := sendTr.Produce(mediarouter.KindAudio, nil, map[string]any{"source": "camera"})
	require.NoError(t, err)
	require.NoError(t, reg.PutProducer(prod, "room1", "camera", sendTr.ID()))

	cons, err := recvTr.Consume(prod, caps)
	require.NoError(t, err)
	require.NoError(t, reg.PutConsumer(cons, recvTr.ID()))

	require.NoError(t, reg.CloseClient("alice"))

	require.True(t, prod.Closed())
	require.True(t, cons.Closed())
	require.True(t, sendTr.Closed())
	require.Empty(t, reg.ListClientTransports("alice"))

	// bob's own transport is untouched by alice's disconnect.
	require.False(t, recvTr.Closed())

	// a second close is a no-op, not an error.
	require.NoError(t, reg.CloseClient("alice"))
}

func TestListProducersFiltersBySourceAndExcludesSelf(t *testing.T) {
	caps := mediarouter.RTPCapabilities{Codecs: mediarouter.DefaultCodecs()}
	f := mediarouter.NewFake(caps)
	defer f.Close()

	reg := New()

	aliceTr, err := f.CreateTransport("alice", mediarouter.DirectionSend)
	require.NoError(t, err)
	require.NoError(t, aliceTr.Connect(mediarouter.DTLSParameters{Fingerprints: []mediarouter.DTLSFingerprint{{Algorithm: "sha-256", Value: "aa"}}}))
	require.NoError(t, reg.PutTransport(aliceTr))

	camProd, err := aliceTr.Produce(mediarouter.KindVideo, nil, map[string]any{"source": "camera"})
	require.NoError(t, err)
	require.NoError(t, reg.PutProducer(camProd, "room1", "camera", aliceTr.ID()))

	screenProd, err := aliceTr.Produce(mediarouter.KindVideo, nil, map[string]any{"source": "screen"})
	require.NoError(t, err)
	require.NoError(t, reg.PutProducer(screenProd, "room1", "screen", aliceTr.ID()))

	all := reg.ListProducers("room1", "", "")
	require.Len(t, all, 2)

	onlyScreen := reg.ListProducers("room1", "screen", "")
	require.Len(t, onlyScreen, 1)
	require.Equal(t, screenProd.ID(), onlyScreen[0].Producer.ID())

	excludingAlice := reg.ListProducers("room1", "", "alice")
	require.Empty(t, excludingAlice)
}
