// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package signaling

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EnvelopeKind distinguishes the three message shapes that cross the
// wire, mirroring the request/ack/event split of spec.md §6.
type EnvelopeKind string

const (
	KindRequest EnvelopeKind = "req"
	KindAck     EnvelopeKind = "ack"
	KindEvent   EnvelopeKind = "event"
)

// Envelope is the one wire shape every message takes, generalizing the
// teacher's ClientMessage{Type, Data} pair with a request id so acks
// can be matched to their request without relying on transport-level
// ordering alone.
type Envelope struct {
	Kind EnvelopeKind `msgpack:"kind"`
	ReqID string      `msgpack:"reqId,omitempty"`
	Name  string      `msgpack:"name"` // verb name for req, event name for event, "" for ack
	Data  interface{} `msgpack:"data,omitempty"`
	Error string      `msgpack:"error,omitempty"`
}

var _ msgpack.CustomEncoder = (*Envelope)(nil)
var _ msgpack.CustomDecoder = (*Envelope)(nil)

func (e *Envelope) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeMulti(e.Kind, e.ReqID, e.Name, e.Data, e.Error)
}

func (e *Envelope) DecodeMsgpack(dec *msgpack.Decoder) error {
	kind, err := dec.DecodeString()
	if err != nil {
		return fmt.Errorf("failed to decode envelope.Kind: %w", err)
	}
	e.Kind = EnvelopeKind(kind)

	reqID, err := dec.DecodeString()
	if err != nil {
		return fmt.Errorf("failed to decode envelope.ReqID: %w", err)
	}
	e.ReqID = reqID

	name, err := dec.DecodeString()
	if err != nil {
		return fmt.Errorf("failed to decode envelope.Name: %w", err)
	}
	e.Name = name

	data, err := dec.DecodeInterface()
	if err != nil {
		return fmt.Errorf("failed to decode envelope.Data: %w", err)
	}
	e.Data = data

	errStr, err := dec.DecodeString()
	if err != nil {
		return fmt.Errorf("failed to decode envelope.Error: %w", err)
	}
	e.Error = errStr

	return nil
}

// Pack/Unpack mirror the teacher's ClientMessage helpers.
func (e *Envelope) Pack() ([]byte, error) {
	return msgpack.Marshal(e)
}

func UnpackEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Bind decodes e.Data (itself decoded generically by DecodeInterface)
// into target, round-tripping through msgpack. This is what lets each
// verb handler work with a typed request struct instead of a bare map.
func (e *Envelope) Bind(target interface{}) error {
	raw, err := msgpack.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to remarshal envelope.Data: %w", err)
	}
	if err := msgpack.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to bind envelope.Data: %w", err)
	}
	return nil
}

func newAck(reqID string, data interface{}) *Envelope {
	return &Envelope{Kind: KindAck, ReqID: reqID, Data: data}
}

func newErrorAck(reqID string, err error) *Envelope {
	return &Envelope{Kind: KindAck, ReqID: reqID, Error: err.Error()}
}

func newEvent(name string, data interface{}) *Envelope {
	return &Envelope{Kind: KindEvent, Name: name, Data: data}
}
