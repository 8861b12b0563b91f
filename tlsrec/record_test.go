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

package tlsrec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

var header = []byte{0x16, 0x03, 0x01}

// makeRecord builds a handshake record with payloadLen payload bytes
// numbered from 1.
func makeRecord(payloadLen int) []byte {
	record := make([]byte, HeaderLen+payloadLen)
	copy(record, header)
	binary.BigEndian.PutUint16(record[3:], uint16(payloadLen))
	for i := 0; i < payloadLen; i++ {
		record[HeaderLen+i] = byte(i + 1)
	}
	return record
}

func TestSplit(t *testing.T) {
	record := []byte{0x16, 0x03, 0x01, 0, 10, 0x01, 0, 0, 6, 0x03, 0x03, 1, 2, 3, 4}
	out := Split(record, 1)
	require.Equal(t,
		[]byte{0x16, 0x03, 0x01, 0, 1, 0x01, 0x16, 0x03, 0x01, 0, 9, 0, 0, 6, 0x03, 0x03, 1, 2, 3, 4},
		out)
}

func TestSplit_Length(t *testing.T) {
	// The output is always exactly one header longer than the input.
	for _, payloadLen := range []int{2, 16, 195, 512} {
		record := makeRecord(payloadLen)
		for _, pos := range []int{1, payloadLen / 2, payloadLen - 1} {
			if pos <= 0 || pos >= payloadLen {
				continue
			}
			out := Split(record, pos)
			require.Equal(t, len(record)+HeaderLen, len(out), "payloadLen=%d pos=%d", payloadLen, pos)
		}
	}
}

func TestSplit_Framing(t *testing.T) {
	const payloadLen = 40
	const pos = 13
	record := makeRecord(payloadLen)
	out := Split(record, pos)

	require.Equal(t, header, out[:3])
	require.Equal(t, uint16(pos), binary.BigEndian.Uint16(out[3:5]))
	require.Equal(t, record[HeaderLen:HeaderLen+pos], out[HeaderLen:HeaderLen+pos])

	second := out[HeaderLen+pos:]
	require.Equal(t, header, second[:3])
	require.Equal(t, uint16(payloadLen-pos), binary.BigEndian.Uint16(second[3:5]))
	require.Equal(t, record[HeaderLen+pos:], second[HeaderLen:])
}

func TestSplit_ClientHelloAtOne(t *testing.T) {
	// A 200-byte record with header 16 03 01 00 C3 splits into 205 bytes.
	record := makeRecord(0xc3)
	require.Len(t, record, 200)

	out := Split(record, 1)
	require.Len(t, out, 205)
	require.Equal(t, []byte{0x16, 0x03, 0x01, 0x00, 0x01}, out[:5])
	require.Equal(t, []byte{0x16, 0x03, 0x01, 0x00, 0xc2}, out[6:11])
}

func TestSplit_TrailingBytesCarriedOver(t *testing.T) {
	record := makeRecord(6)
	record = append(record, 0xff, 0xfe)
	out := Split(record, 2)
	require.Equal(t, []byte{0xff, 0xfe}, out[len(out)-2:])
	require.Equal(t, uint16(4), binary.BigEndian.Uint16(out[HeaderLen+2+3:]))
}

func TestSplit_InvalidPositions(t *testing.T) {
	record := makeRecord(16)
	require.Equal(t, record, Split(record, 0))
	require.Equal(t, record, Split(record, -3))
	require.Equal(t, record, Split(record, 16))
	require.Equal(t, record, Split(record, 100))
}

func TestSplit_TruncatedRecord(t *testing.T) {
	// The length field claims more payload than the buffer holds.
	record := makeRecord(16)[:10]
	require.Equal(t, record, Split(record, 8))
}

func TestSplit_ShortBuffer(t *testing.T) {
	record := []byte{0x16, 0x03}
	require.Equal(t, record, Split(record, 1))
}

func TestHandshakeRecordHeader(t *testing.T) {
	record := makeRecord(32)
	h, err := NewHandshakeRecordHeader(record)
	require.NoError(t, err)
	require.NoError(t, h.Validate())
	require.Equal(t, uint16(32), h.PayloadLen())

	require.NoError(t, h.SetPayloadLen(7))
	require.Equal(t, uint16(7), h.PayloadLen())
}

func TestHandshakeRecordHeader_Invalid(t *testing.T) {
	_, err := NewHandshakeRecordHeader([]byte{0x16, 0x03})
	require.Error(t, err)

	h, err := NewHandshakeRecordHeader([]byte{0x17, 0x03, 0x03, 0x00, 0x10})
	require.NoError(t, err)
	require.Error(t, h.Validate())

	h, err = NewHandshakeRecordHeader([]byte{0x16, 0x05, 0x01, 0x00, 0x10})
	require.NoError(t, err)
	require.Error(t, h.Validate())

	h, err = NewHandshakeRecordHeader([]byte{0x16, 0x03, 0x01, 0x00, 0x00})
	require.NoError(t, err)
	require.Error(t, h.Validate())

	require.Error(t, HandshakeRecordHeader(makeRecord(8)).SetPayloadLen(0))
}
