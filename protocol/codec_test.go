// Copyright (C) 2019-2024 Algorand, Inc.
// This file is part of go-twochain
//
// go-twochain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// go-twochain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with go-twochain.  If not, see <https://www.gnu.org/licenses/>.

package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-twochain/test/partitiontest"
)

type testHeader struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`
	Epoch   uint64   `codec:"e"`
	Round   uint64   `codec:"r"`
	Author  []byte   `codec:"a"`
}

type testEnvelope struct {
	_struct struct{}    `codec:",omitempty,omitemptyarray"`
	Header  testHeader  `codec:"h"`
	Parent  *testHeader `codec:"p"`
	Labels  []string    `codec:"l"`
}

func TestOmitEmpty(t *testing.T) {
	partitiontest.PartitionTest(t)

	var x testEnvelope
	enc := EncodeReflect(&x)
	require.Equal(t, 1, len(enc))
}

func TestEncodeCanonical(t *testing.T) {
	partitiontest.PartitionTest(t)

	a := testEnvelope{Header: testHeader{Epoch: 1, Round: 9, Author: []byte{1, 2}}, Labels: []string{"x"}}
	b := a
	require.Equal(t, EncodeReflect(&a), EncodeReflect(&b))

	var dec testEnvelope
	require.NoError(t, DecodeReflect(EncodeReflect(&a), &dec))
	require.Equal(t, a.Header, dec.Header)
	require.Nil(t, dec.Parent)
}

func TestDecodeRejectsUnknownField(t *testing.T) {
	partitiontest.PartitionTest(t)

	type other struct {
		Z uint64 `codec:"z"`
	}
	var dec testHeader
	require.Error(t, DecodeReflect(EncodeReflect(other{Z: 5}), &dec))
	require.Error(t, DecodeReflect([]byte{0xc1, 0xff}, &dec))
}

func TestDecodeGarbageDoesNotPanic(t *testing.T) {
	partitiontest.PartitionTest(t)

	var dec testEnvelope
	for _, b := range [][]byte{nil, {0x81}, {0x81, 0xa1, 'h', 0xc1}, {0xdf, 0xff, 0xff, 0xff, 0xff}} {
		require.NotPanics(t, func() { _ = DecodeReflect(b, &dec) })
	}
}

func TestEncodeReusesNoBuffer(t *testing.T) {
	partitiontest.PartitionTest(t)

	first := EncodeReflect(&testHeader{Round: 1})
	saved := append([]byte(nil), first...)
	_ = EncodeReflect(&testHeader{Round: 2, Author: []byte{9, 9, 9}})
	require.Equal(t, saved, first)
}
