// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package filter

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
)

// MessageTag identifies which of the three request/response pairs a
// wire frame carries (spec.md §6: "messages are length-prefixed tagged
// unions").
type MessageTag uint8

const (
	TagGetCheckPoints MessageTag = iota
	TagCheckPoints
	TagGetHashes
	TagHashes
	TagGetFilters
	TagFilters
)

// Envelope is the outer tagged-union frame sent over the websocket
// transport; Payload is the JSON encoding of the tag's corresponding
// request/response struct. A length-prefixed binary encoding is what
// spec.md §6 calls for at the wire level; gorilla/websocket frames are
// already length-delimited, so the envelope only needs to carry the tag.
type Envelope struct {
	Tag     MessageTag      `json:"tag"`
	Payload json.RawMessage `json:"payload"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// ServeHTTP upgrades an inbound HTTP request to a websocket connection
// and serves the Filter sub-protocol over it until the peer disconnects.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		resp, err := s.dispatch(env)
		if err != nil {
			return
		}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func (s *Service) dispatch(env Envelope) (Envelope, error) {
	switch env.Tag {
	case TagGetCheckPoints:
		var req GetBlockFilterCheckPoints
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return Envelope{}, err
		}
		return encodeEnvelope(TagCheckPoints, s.HandleGetCheckPoints(req))
	case TagGetHashes:
		var req GetBlockFilterHashes
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return Envelope{}, err
		}
		return encodeEnvelope(TagHashes, s.HandleGetHashes(req))
	case TagGetFilters:
		var req GetBlockFilters
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return Envelope{}, err
		}
		return encodeEnvelope(TagFilters, s.HandleGetFilters(req))
	default:
		return Envelope{}, errUnknownTag
	}
}

func encodeEnvelope(tag MessageTag, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Tag: tag, Payload: raw}, nil
}

var errUnknownTag = errors.New("filter: unknown message tag")
