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

// Package desync perturbs the first payload of an upstream TCP connection so
// that stateful DPI middleboxes lose track of the stream, while the endpoint
// still reassembles it byte-for-byte.
package desync

import (
	"fmt"
	"sort"
	"strings"
)

// Flag selects how a [Part] position is anchored within the payload.
// Only [FlagNone] is acted upon today; the classifier already produces the
// SNI and Host anchors, so binding them here is an additive change.
type Flag int

const (
	// FlagNone interprets the position as an absolute offset from payload byte 0.
	FlagNone Flag = iota
	// FlagOffsetSNI measures the position from the start of the SNI extension.
	FlagOffsetSNI
	// FlagOffsetHost measures the position from the HTTP Host header value.
	FlagOffsetHost
)

// Part is a perturbation anchor: a byte offset into the first payload, plus
// the policy by which that offset is derived.
type Part struct {
	Pos  int
	Flag Flag
}

// MethodKind tags the perturbation applied at a [Part].
type MethodKind int

const (
	// Split flushes the payload prefix in its own TCP segment.
	Split MethodKind = iota
	// Disorder sends the prefix with the hop limit clamped to 1 so the
	// segment dies before the middlebox; the endpoint recovers it on
	// retransmission at full hop limit.
	Disorder
	// OOB sends the prefix plus one masked byte as TCP urgent data.
	OOB
)

func (k MethodKind) String() string {
	switch k {
	case Split:
		return "split"
	case Disorder:
		return "disorder"
	case OOB:
		return "oob"
	default:
		return fmt.Sprintf("method(%d)", int(k))
	}
}

// Method pairs a perturbation kind with its anchor.
type Method struct {
	Kind MethodKind
	Part Part
}

// Params is the process-wide desync configuration. It is immutable after
// construction and safely shareable across connections.
type Params struct {
	tlsRec  *Part
	methods []Method
}

// NewParams builds the shared configuration. tlsRec optionally selects a TLS
// record split position; methods are the perturbations to apply.
//
// The methods are sorted by position descending and later consumed in that
// order, with emission stopping at the first non-advancing position. In
// practice the method with the largest position wins and lower-positioned
// ones are skipped. This mirrors the behavior tools in the field exhibit;
// callers wanting a single well-defined segment boundary should configure a
// single method.
func NewParams(tlsRec *Part, methods []Method) *Params {
	ms := make([]Method, len(methods))
	copy(ms, methods)
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Part.Pos > ms[j].Part.Pos })
	var rec *Part
	if tlsRec != nil {
		recCopy := *tlsRec
		rec = &recCopy
	}
	return &Params{tlsRec: rec, methods: ms}
}

// Empty reports whether the configuration perturbs anything at all.
func (p *Params) Empty() bool {
	return p.tlsRec == nil && len(p.methods) == 0
}

// String describes the configuration for logging.
func (p *Params) String() string {
	var parts []string
	for _, m := range p.methods {
		parts = append(parts, fmt.Sprintf("%v@%d", m.Kind, m.Part.Pos))
	}
	if p.tlsRec != nil {
		parts = append(parts, fmt.Sprintf("tlsrec@%d", p.tlsRec.Pos))
	}
	if len(parts) == 0 {
		return "passthrough"
	}
	return strings.Join(parts, " ")
}
