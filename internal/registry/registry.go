// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package registry is the process-wide bookkeeping layer over every
// Transport, Producer, and Consumer a mediarouter.Router has handed
// out. It answers two questions the signaling layer needs constantly:
// "what does clientID own" and "who is consuming producerID", and it
// is the single place cascading closes (disconnect, closeAllScreenShares)
// fan out from.
package registry

import (
	"errors"
	"sync"

	"github.com/sfurelay/rtcd/internal/mediarouter"
)

var (
	ErrNotFound = errors.New("registry: resource not found")
	ErrExists   = errors.New("registry: resource already registered")
)

// ProducerInfo pairs a mediarouter.Producer with the bookkeeping the
// signaling layer needs without reaching back into the adapter: which
// room it belongs to and the decoded appData.source classification
// (§6.1's canonical appData schema).
type ProducerInfo struct {
	Producer    mediarouter.Producer
	RoomID      string
	Source      string // "camera" | "screen"
	TransportID string
}

// Registry indexes live resources by id and by owning client, and is
// safe for concurrent use from every connection's goroutine.
type Registry struct {
	mut sync.RWMutex

	transports map[string]mediarouter.Transport
	producers  map[string]*ProducerInfo
	consumers  map[string]mediarouter.Consumer

	clientTransports map[string]map[string]struct{} // clientID -> transportID set
	clientProducers  map[string]map[string]struct{} // clientID -> producerID set
	clientConsumers  map[string]map[string]struct{} // clientID -> consumerID set

	transportProducers map[string]map[string]struct{} // transportID -> producerID set
	transportConsumers map[string]map[string]struct{} // transportID -> consumerID set
	producerConsumers  map[string]map[string]struct{} // producerID -> consumerID set
	consumerTransport  map[string]string              // consumerID -> transportID
}

func New() *Registry {
	return &Registry{
		transports:         make(map[string]mediarouter.Transport),
		producers:          make(map[string]*ProducerInfo),
		consumers:          make(map[string]mediarouter.Consumer),
		clientTransports:   make(map[string]map[string]struct{}),
		clientProducers:    make(map[string]map[string]struct{}),
		clientConsumers:    make(map[string]map[string]struct{}),
		transportProducers: make(map[string]map[string]struct{}),
		transportConsumers: make(map[string]map[string]struct{}),
		producerConsumers:  make(map[string]map[string]struct{}),
		consumerTransport:  make(map[string]string),
	}
}

func addTo(index map[string]map[string]struct{}, key, id string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[id] = struct{}{}
}

func removeFrom(index map[string]map[string]struct{}, key, id string) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(index, key)
	}
}

// PutTransport registers a newly created Transport under its owner.
func (reg *Registry) PutTransport(t mediarouter.Transport) error {
	reg.mut.Lock()
	defer reg.mut.Unlock()
	if _, ok := reg.transports[t.ID()]; ok {
		return ErrExists
	}
	reg.transports[t.ID()] = t
	addTo(reg.clientTransports, t.OwnerClientID(), t.ID())
	return nil
}

func (reg *Registry) GetTransport(id string) (mediarouter.Transport, error) {
	reg.mut.RLock()
	defer reg.mut.RUnlock()
	t, ok := reg.transports[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

// ListClientTransports returns every Transport owned by clientID.
func (reg *Registry) ListClientTransports(clientID string) []mediarouter.Transport {
	reg.mut.RLock()
	defer reg.mut.RUnlock()
	ids := reg.clientTransports[clientID]
	out := make([]mediarouter.Transport, 0, len(ids))
	for id := range ids {
		if t, ok := reg.transports[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// ClientConsumerCount reports how many live consumers clientID owns.
func (reg *Registry) ClientConsumerCount(clientID string) int {
	reg.mut.RLock()
	defer reg.mut.RUnlock()
	return len(reg.clientConsumers[clientID])
}

// CloseTransport closes the underlying Transport and removes it and
// every Producer/Consumer it hosted from the registry. Safe to call
// more than once for the same id.
func (reg *Registry) CloseTransport(id string) error {
	reg.mut.Lock()
	t, ok := reg.transports[id]
	if !ok {
		reg.mut.Unlock()
		return nil
	}
	delete(reg.transports, id)
	removeFrom(reg.clientTransports, t.OwnerClientID(), id)

	producerIDs := make([]string, 0, len(reg.transportProducers[id]))
	for pid := range reg.transportProducers[id] {
		producerIDs = append(producerIDs, pid)
	}
	consumerIDs := make([]string, 0, len(reg.transportConsumers[id]))
	for cid := range reg.transportConsumers[id] {
		consumerIDs = append(consumerIDs, cid)
	}
	reg.mut.Unlock()

	for _, pid := range producerIDs {
		_ = reg.CloseProducer(pid)
	}
	for _, cid := range consumerIDs {
		_ = reg.CloseConsumer(cid)
	}

	return t.Close()
}

// PutProducer registers a newly produced Producer, tagging it with its
// room and its appData-derived media source for later filtering.
func (reg *Registry) PutProducer(p mediarouter.Producer, roomID, source, transportID string) error {
	reg.mut.Lock()
	defer reg.mut.Unlock()
	if _, ok := reg.producers[p.ID()]; ok {
		return ErrExists
	}
	reg.producers[p.ID()] = &ProducerInfo{Producer: p, RoomID: roomID, Source: source, TransportID: transportID}
	addTo(reg.clientProducers, p.OwnerClientID(), p.ID())
	addTo(reg.transportProducers, transportID, p.ID())
	return nil
}

func (reg *Registry) GetProducer(id string) (*ProducerInfo, error) {
	reg.mut.RLock()
	defer reg.mut.RUnlock()
	info, ok := reg.producers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return info, nil
}

// ListProducers returns every Producer in roomID, optionally narrowed
// to a single media source ("camera"/"screen"); an empty source lists
// all of them. Excludes excludeClientID's own producers when set, the
// shape the "consume everyone else's producers on join" flow needs.
func (reg *Registry) ListProducers(roomID, source, excludeClientID string) []*ProducerInfo {
	reg.mut.RLock()
	defer reg.mut.RUnlock()
	var out []*ProducerInfo
	for _, info := range reg.producers {
		if info.RoomID != roomID {
			continue
		}
		if source != "" && info.Source != source {
			continue
		}
		if excludeClientID != "" && info.Producer.OwnerClientID() == excludeClientID {
			continue
		}
		out = append(out, info)
	}
	return out
}

// CloseProducer closes the Producer and every Consumer attached to it.
func (reg *Registry) CloseProducer(id string) error {
	reg.mut.Lock()
	info, ok := reg.producers[id]
	if !ok {
		reg.mut.Unlock()
		return nil
	}
	delete(reg.producers, id)
	removeFrom(reg.clientProducers, info.Producer.OwnerClientID(), id)
	removeFrom(reg.transportProducers, info.TransportID, id)
	consumerIDs := reg.producerConsumers[id]
	delete(reg.producerConsumers, id)
	var toClose []string
	for cid := range consumerIDs {
		toClose = append(toClose, cid)
	}
	reg.mut.Unlock()

	for _, cid := range toClose {
		_ = reg.CloseConsumer(cid)
	}

	return info.Producer.Close()
}

// PutConsumer registers a Consumer and indexes it against its Producer
// so CloseProducer can cascade.
func (reg *Registry) PutConsumer(c mediarouter.Consumer, transportID string) error {
	reg.mut.Lock()
	defer reg.mut.Unlock()
	if _, ok := reg.consumers[c.ID()]; ok {
		return ErrExists
	}
	reg.consumers[c.ID()] = c
	addTo(reg.clientConsumers, c.OwnerClientID(), c.ID())
	addTo(reg.producerConsumers, c.ProducerID(), c.ID())
	addTo(reg.transportConsumers, transportID, c.ID())
	reg.consumerTransport[c.ID()] = transportID
	return nil
}

func (reg *Registry) GetConsumer(id string) (mediarouter.Consumer, error) {
	reg.mut.RLock()
	defer reg.mut.RUnlock()
	c, ok := reg.consumers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (reg *Registry) CloseConsumer(id string) error {
	reg.mut.Lock()
	c, ok := reg.consumers[id]
	if !ok {
		reg.mut.Unlock()
		return nil
	}
	delete(reg.consumers, id)
	removeFrom(reg.clientConsumers, c.OwnerClientID(), id)
	removeFrom(reg.producerConsumers, c.ProducerID(), id)
	removeFrom(reg.transportConsumers, reg.consumerTransport[id], id)
	delete(reg.consumerTransport, id)
	reg.mut.Unlock()

	return c.Close()
}

// CloseClient tears down everything clientID owns: its producers
// (cascading to consumers of those producers), its own consumers, and
// finally its transports. This is the Lifecycle Supervisor's disconnect
// cascade (§4.5), made idempotent so a retried disconnect is a no-op.
func (reg *Registry) CloseClient(clientID string) error {
	reg.mut.Lock()
	producerIDs := make([]string, 0, len(reg.clientProducers[clientID]))
	for id := range reg.clientProducers[clientID] {
		producerIDs = append(producerIDs, id)
	}
	consumerIDs := make([]string, 0, len(reg.clientConsumers[clientID]))
	for id := range reg.clientConsumers[clientID] {
		consumerIDs = append(consumerIDs, id)
	}
	transportIDs := make([]string, 0, len(reg.clientTransports[clientID]))
	for id := range reg.clientTransports[clientID] {
		transportIDs = append(transportIDs, id)
	}
	reg.mut.Unlock()

	var firstErr error
	for _, id := range producerIDs {
		if err := reg.CloseProducer(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, id := range consumerIDs {
		if err := reg.CloseConsumer(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, id := range transportIDs {
		if err := reg.CloseTransport(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	reg.mut.Lock()
	delete(reg.clientProducers, clientID)
	delete(reg.clientConsumers, clientID)
	delete(reg.clientTransports, clientID)
	reg.mut.Unlock()

	return firstErr
}

// TransportCount reports the number of live transports, for the admin
// stats endpoint.
func (reg *Registry) TransportCount() int {
	reg.mut.RLock()
	defer reg.mut.RUnlock()
	return len(reg.transports)
}

// ProducerCount reports the number of live producers.
func (reg *Registry) ProducerCount() int {
	reg.mut.RLock()
	defer reg.mut.RUnlock()
	return len(reg.producers)
}

// ConsumerCount reports the number of live consumers.
func (reg *Registry) ConsumerCount() int {
	reg.mut.RLock()
	defer reg.mut.RUnlock()
	return len(reg.consumers)
}
