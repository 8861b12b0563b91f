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

// Package sniff classifies the first payload of a TCP stream.
//
// The classifiers are pure functions over a byte slice. They never block and
// never panic, so they can run on every accepted connection before any
// perturbation decision is made.
package sniff

import "bytes"

// TLS record layout from [RFC 8446]:
//
//	+-------------+ 0
//	| RecordType  |
//	+-------------+ 1
//	|  Protocol   |
//	|  Version    |
//	+-------------+ 3
//	|   Record    |
//	|   Length    |
//	+-------------+ 5
//	|   Message   |
//	|    Data     |
//	|     ...     |
//
// [RFC 8446]: https://datatracker.ietf.org/doc/html/rfc8446#section-5.1
const (
	recordHeaderLen = 5

	recordTypeHandshake  byte = 22
	handshakeClientHello byte = 1
	versionMajorTLS      byte = 3
)

// sniExtensionID is the two zero bytes that open the server_name extension
// header. The first occurrence inside a ClientHello approximates the
// extension start; anchorSkip lands past the header inside the name itself.
var sniExtensionID = []byte{0x00, 0x00}

const anchorSkip = 9

// IsTLSClientHello reports whether b starts a TLS ClientHello record.
// On success it also returns an anchor offset just inside the SNI string.
// The anchor is a heuristic: the name list is not parsed, see [ServerName]
// for that.
func IsTLSClientHello(b []byte) (anchor int, ok bool) {
	if len(b) <= recordHeaderLen {
		return 0, false
	}
	if b[0] != recordTypeHandshake || b[1] != versionMajorTLS || b[recordHeaderLen] != handshakeClientHello {
		return 0, false
	}
	i := bytes.Index(b, sniExtensionID)
	if i < 0 {
		return 0, false
	}
	return i + anchorSkip, true
}

// httpMethods are the request methods an HTTP/1.x request line may begin with.
var httpMethods = [][]byte{
	[]byte("HEAD"), []byte("GET"), []byte("POST"), []byte("PUT"), []byte("DELETE"),
	[]byte("OPTIONS"), []byte("CONNECT"), []byte("TRACE"), []byte("PATCH"),
}

var hostHeader = []byte("\nhost:")

// IsHTTPRequest reports whether b starts an HTTP/1.x request carrying a Host
// header. On success it also returns the offset of the first non-space byte
// of the Host header value. The header search is byte-level and
// case-insensitive.
func IsHTTPRequest(b []byte) (anchor int, ok bool) {
	for _, method := range httpMethods {
		if !bytes.HasPrefix(b, method) {
			continue
		}
		lower := bytes.ToLower(b)
		i := bytes.Index(lower, hostHeader)
		if i < 0 {
			return 0, false
		}
		for j := i + len(hostHeader); j < len(lower); j++ {
			if lower[j] != ' ' {
				return j, true
			}
		}
		return 0, false
	}
	return 0, false
}
