// Copyright 2024 The Outline Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tlsrec re-frames TLS records without touching any cryptographic
// state. Splitting one handshake record into two back-to-back records is
// legal per the TLS record layer, but DPI engines that expect a
// single-record ClientHello lose track of the session.
package tlsrec

import (
	"encoding/binary"
	"errors"
)

const (
	// HeaderLen is the length of a TLS record header: one content-type byte,
	// two version bytes and a big-endian uint16 payload length.
	HeaderLen = 5
	// MaxRecordPayloadLen is the largest payload a single record may carry.
	MaxRecordPayloadLen = 1 << 14

	recordTypeHandshake byte = 22

	versionTLS10 uint16 = 0x0301
	versionTLS11 uint16 = 0x0302
	versionTLS12 uint16 = 0x0303
	versionTLS13 uint16 = 0x0304
)

// HandshakeRecordHeader is a view over the first [HeaderLen] bytes of a TLS
// handshake record.
type HandshakeRecordHeader []byte

// NewHandshakeRecordHeader interprets the start of p as a record header.
func NewHandshakeRecordHeader(p []byte) (HandshakeRecordHeader, error) {
	if len(p) < HeaderLen {
		return nil, errors.New("HandshakeRecordHeader requires at least 5 bytes")
	}
	return HandshakeRecordHeader(p), nil
}

// Validate checks the content type, version and length fields.
func (h HandshakeRecordHeader) Validate() error {
	if h[0] != recordTypeHandshake {
		return errors.New("record type must be handshake")
	}
	version := binary.BigEndian.Uint16(h[1:3])
	if version != versionTLS10 && version != versionTLS11 && version != versionTLS12 && version != versionTLS13 {
		return errors.New("invalid TLS version")
	}
	if len := h.PayloadLen(); len == 0 || len > MaxRecordPayloadLen {
		return errors.New("record length out of range")
	}
	return nil
}

// PayloadLen returns the length of the record payload following the header.
func (h HandshakeRecordHeader) PayloadLen() uint16 {
	return binary.BigEndian.Uint16(h[3:5])
}

// SetPayloadLen overwrites the length field.
func (h HandshakeRecordHeader) SetPayloadLen(len uint16) error {
	if len == 0 || len > MaxRecordPayloadLen {
		return errors.New("record length out of range")
	}
	binary.BigEndian.PutUint16(h[3:5], len)
	return nil
}

// Split rewrites the single TLS record at the start of record into two
// consecutive records, splitting the payload at offset pos. Both resulting
// records carry the original content type and version; the first has length
// pos, the second the remainder. The returned buffer is exactly 5 bytes
// longer than the input. Any bytes following the original record are carried
// over unchanged.
//
// If pos does not fall strictly inside the record payload, or the record is
// too short or oversized, the input is returned unmodified.
func Split(record []byte, pos int) []byte {
	if len(record) < HeaderLen || pos <= 0 {
		return record
	}
	recordLen := int(binary.BigEndian.Uint16(record[3:5]))
	if recordLen > MaxRecordPayloadLen || pos >= recordLen || HeaderLen+pos >= len(record) {
		return record
	}

	out := make([]byte, len(record)+HeaderLen)
	header := record[:3]

	copy(out, header)
	binary.BigEndian.PutUint16(out[3:], uint16(pos))
	copy(out[HeaderLen:], record[HeaderLen:HeaderLen+pos])

	copy(out[HeaderLen+pos:], header)
	binary.BigEndian.PutUint16(out[HeaderLen+pos+3:], uint16(recordLen-pos))
	copy(out[2*HeaderLen+pos:], record[HeaderLen+pos:])
	return out
}
