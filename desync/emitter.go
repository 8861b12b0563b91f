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

package desync

import (
	"fmt"
	"io"

	"github.com/Jigsaw-Code/outline-desync/sockopt"
	"github.com/Jigsaw-Code/outline-desync/tlsrec"
)

// oobFillByte replaces the urgent byte in the transmitted copy of an OOB
// segment. The receiver's TCP stack strips the urgent byte, so substituting
// it keeps the reassembled stream intact without leaking the real byte as
// the urgent marker.
const oobFillByte = 'a'

// Emitter writes a classified first payload to the upstream socket, applying
// the configured perturbations between segments. The connection must have
// TCP_NODELAY enabled for the segment boundaries to be visible on the wire.
type Emitter struct {
	writer io.Writer
	opts   sockopt.TCPOptions
	params *Params
}

// NewEmitter creates an [Emitter] writing to w. opts manipulates the socket
// options of the same connection w writes to.
func NewEmitter(w io.Writer, opts sockopt.TCPOptions, params *Params) *Emitter {
	return &Emitter{writer: w, opts: opts, params: params}
}

// Send transmits payload upstream. When isTLS is set and a TLS record split
// is configured, the payload is re-framed first. The configured methods are
// then consumed in descending position order; each one emits the segment
// between the previous boundary and its own position, and the loop stops at
// the first method whose position does not advance past the boundary.
// Whatever remains after the last boundary is written verbatim.
//
// Any I/O or socket-option error aborts immediately; the payload may have
// been partially transmitted.
func (e *Emitter) Send(payload []byte, isTLS bool) error {
	// Work on a scratch copy: the record split grows the buffer and the OOB
	// action briefly masks a byte.
	buf := make([]byte, len(payload))
	copy(buf, payload)

	if rec := e.params.tlsRec; isTLS && rec != nil && rec.Pos < len(buf) {
		buf = tlsrec.Split(buf, rec.Pos)
	}

	offset := 0
	for _, method := range e.params.methods {
		pos := method.Part.Pos
		if pos <= offset || pos >= len(buf) {
			break
		}
		var err error
		switch method.Kind {
		case Split:
			_, err = e.writer.Write(buf[offset:pos])
		case Disorder:
			err = e.writeDisordered(buf[offset:pos])
		case OOB:
			err = e.writeOOB(buf, offset, pos)
		}
		if err != nil {
			return fmt.Errorf("%v segment ending at %d: %w", method.Kind, pos, err)
		}
		offset = pos
	}
	if offset < len(buf) {
		if _, err := e.writer.Write(buf[offset:]); err != nil {
			return err
		}
	}
	return nil
}

// writeDisordered emits segment with the hop limit clamped to 1, then
// restores the previous value. The clamped segment dies in transit; the OS
// retransmits it later at the restored hop limit.
func (e *Emitter) writeDisordered(segment []byte) error {
	hopLimit, err := e.opts.HopLimit()
	if err != nil {
		return err
	}
	if err := e.opts.SetHopLimit(1); err != nil {
		return err
	}
	if _, err := e.writer.Write(segment); err != nil {
		return err
	}
	return e.opts.SetHopLimit(hopLimit)
}

// writeOOB sends buf[offset:pos+1] as urgent data with the byte at pos
// masked. The in-memory byte is restored afterwards so the next segment
// re-sends the real value, which the receiver keeps.
func (e *Emitter) writeOOB(buf []byte, offset, pos int) error {
	saved := buf[pos]
	buf[pos] = oobFillByte
	err := e.opts.SendOOB(buf[offset : pos+1])
	buf[pos] = saved
	return err
}
