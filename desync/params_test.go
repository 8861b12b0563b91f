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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewParams_SortsDescending(t *testing.T) {
	params := NewParams(nil, []Method{
		{Kind: Split, Part: Part{Pos: 20}},
		{Kind: OOB, Part: Part{Pos: 80}},
		{Kind: Disorder, Part: Part{Pos: 50}},
	})
	positions := make([]int, 0, len(params.methods))
	for _, m := range params.methods {
		positions = append(positions, m.Part.Pos)
	}
	require.Equal(t, []int{80, 50, 20}, positions)
}

func TestNewParams_StableForEqualPositions(t *testing.T) {
	params := NewParams(nil, []Method{
		{Kind: Disorder, Part: Part{Pos: 50}},
		{Kind: Split, Part: Part{Pos: 50}},
	})
	require.Equal(t, Disorder, params.methods[0].Kind)
	require.Equal(t, Split, params.methods[1].Kind)
}

func TestNewParams_CopiesInputs(t *testing.T) {
	methods := []Method{{Kind: Split, Part: Part{Pos: 10}}}
	rec := &Part{Pos: 3}
	params := NewParams(rec, methods)

	methods[0].Part.Pos = 99
	rec.Pos = 99

	require.Equal(t, 10, params.methods[0].Part.Pos)
	require.Equal(t, 3, params.tlsRec.Pos)
}

func TestParams_Empty(t *testing.T) {
	require.True(t, NewParams(nil, nil).Empty())
	require.False(t, NewParams(&Part{Pos: 1}, nil).Empty())
	require.False(t, NewParams(nil, []Method{{Kind: Split, Part: Part{Pos: 5}}}).Empty())
}

func TestParams_String(t *testing.T) {
	require.Equal(t, "passthrough", NewParams(nil, nil).String())

	params := NewParams(&Part{Pos: 1}, []Method{
		{Kind: Disorder, Part: Part{Pos: 8}},
		{Kind: Split, Part: Part{Pos: 20}},
	})
	require.Equal(t, "split@20 disorder@8 tlsrec@1", params.String())
}
