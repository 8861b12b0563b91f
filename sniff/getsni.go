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

package sniff

import "golang.org/x/crypto/cryptobyte"

// server_name extension, RFC 6066 section 3.
const (
	extensionServerName uint16 = 0
	sniTypeHostName     uint8  = 0
)

// ServerName extracts the host_name carried by the SNI extension of the
// ClientHello starting at hello. It reports false when the payload is not a
// well-formed ClientHello or names no host.
//
// The hello is only ever logged, never acted on, so parsing is deliberately
// lax: fields before the extension list are skipped by length, unknown
// extensions and name types are ignored, and trailing garbage after the
// record is tolerated.
func ServerName(hello []byte) (name string, ok bool) {
	record := cryptobyte.String(hello)
	var body cryptobyte.String
	// Record header: ContentType, ProtocolVersion, length-prefixed payload.
	if !record.Skip(1+2) || !record.ReadUint16LengthPrefixed(&body) {
		return "", false
	}

	// HandshakeType, uint24 length, client version, 32-byte random.
	var sessionID, cipherSuites, compressionMethods, extensions cryptobyte.String
	if !body.Skip(1+3+2+32) ||
		!body.ReadUint8LengthPrefixed(&sessionID) ||
		!body.ReadUint16LengthPrefixed(&cipherSuites) ||
		!body.ReadUint8LengthPrefixed(&compressionMethods) ||
		!body.ReadUint16LengthPrefixed(&extensions) {
		return "", false
	}

	for !extensions.Empty() {
		var extension uint16
		var extData cryptobyte.String
		if !extensions.ReadUint16(&extension) ||
			!extensions.ReadUint16LengthPrefixed(&extData) {
			return "", false
		}
		if extension != extensionServerName {
			continue
		}
		var nameList cryptobyte.String
		if !extData.ReadUint16LengthPrefixed(&nameList) {
			return "", false
		}
		for !nameList.Empty() {
			var nameType uint8
			var hostName cryptobyte.String
			if !nameList.ReadUint8(&nameType) ||
				!nameList.ReadUint16LengthPrefixed(&hostName) {
				return "", false
			}
			if nameType == sniTypeHostName && !hostName.Empty() {
				return string(hostName), true
			}
		}
		return "", false
	}
	return "", false
}
