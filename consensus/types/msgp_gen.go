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

package types

// Code in this file follows the layout of msgp generated codecs. Only the
// encoding side exists: these representations are hashed and signed, never
// decoded from the wire.

import (
	"github.com/algorand/msgp/msgp"
)

// MarshalMsg implements msgp.Marshaler
func (z *BlockInfo) MarshalMsg(b []byte) (o []byte) {
	o = msgp.Require(b, z.Msgsize())
	// omitempty: check for empty values
	zb0001Len := uint32(6)
	var zb0001Mask uint8 /* 7 bits */
	if (*z).Epoch == 0 {
		zb0001Len--
		zb0001Mask |= 0x2
	}
	if (*z).ID.IsZero() {
		zb0001Len--
		zb0001Mask |= 0x4
	}
	if (*z).Round == 0 {
		zb0001Len--
		zb0001Mask |= 0x8
	}
	if (*z).ExecutedStateID.IsZero() {
		zb0001Len--
		zb0001Mask |= 0x10
	}
	if (*z).Timestamp == 0 {
		zb0001Len--
		zb0001Mask |= 0x20
	}
	if (*z).Version == 0 {
		zb0001Len--
		zb0001Mask |= 0x40
	}
	o = msgp.AppendMapHeader(o, zb0001Len)
	if zb0001Len != 0 {
		if (zb0001Mask & 0x2) == 0 { // if not empty
			// string "e"
			o = append(o, 0xa1, 0x65)
			o = msgp.AppendUint64(o, uint64((*z).Epoch))
		}
		if (zb0001Mask & 0x4) == 0 { // if not empty
			// string "id"
			o = append(o, 0xa2, 0x69, 0x64)
			o = msgp.AppendBytes(o, ((*z).ID)[:])
		}
		if (zb0001Mask & 0x8) == 0 { // if not empty
			// string "r"
			o = append(o, 0xa1, 0x72)
			o = msgp.AppendUint64(o, uint64((*z).Round))
		}
		if (zb0001Mask & 0x10) == 0 { // if not empty
			// string "s"
			o = append(o, 0xa1, 0x73)
			o = msgp.AppendBytes(o, ((*z).ExecutedStateID)[:])
		}
		if (zb0001Mask & 0x20) == 0 { // if not empty
			// string "t"
			o = append(o, 0xa1, 0x74)
			o = msgp.AppendUint64(o, (*z).Timestamp)
		}
		if (zb0001Mask & 0x40) == 0 { // if not empty
			// string "v"
			o = append(o, 0xa1, 0x76)
			o = msgp.AppendUint64(o, (*z).Version)
		}
	}
	return
}

func (_ *BlockInfo) CanMarshalMsg(z interface{}) bool {
	_, ok := (z).(*BlockInfo)
	return ok
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by the serialized message
func (z *BlockInfo) Msgsize() (s int) {
	s = 1 + 2 + msgp.Uint64Size + 3 + msgp.BytesPrefixSize + len((*z).ID) + 2 + msgp.Uint64Size + 2 + msgp.BytesPrefixSize + len((*z).ExecutedStateID) + 2 + msgp.Uint64Size + 2 + msgp.Uint64Size
	return
}

// MsgIsZero returns whether this is a zero value
func (z *BlockInfo) MsgIsZero() bool {
	return ((*z).Epoch == 0) && ((*z).Round == 0) && ((*z).ID.IsZero()) && ((*z).ExecutedStateID.IsZero()) && ((*z).Version == 0) && ((*z).Timestamp == 0)
}

// MarshalMsg implements msgp.Marshaler
func (z *LedgerInfo) MarshalMsg(b []byte) (o []byte) {
	o = msgp.Require(b, z.Msgsize())
	// omitempty: check for empty values
	zb0001Len := uint32(2)
	var zb0001Mask uint8 /* 3 bits */
	if (*z).CommitInfo.MsgIsZero() {
		zb0001Len--
		zb0001Mask |= 0x2
	}
	if (*z).ConsensusDataHash.IsZero() {
		zb0001Len--
		zb0001Mask |= 0x4
	}
	o = msgp.AppendMapHeader(o, zb0001Len)
	if zb0001Len != 0 {
		if (zb0001Mask & 0x2) == 0 { // if not empty
			// string "ci"
			o = append(o, 0xa2, 0x63, 0x69)
			o = (*z).CommitInfo.MarshalMsg(o)
		}
		if (zb0001Mask & 0x4) == 0 { // if not empty
			// string "h"
			o = append(o, 0xa1, 0x68)
			o = msgp.AppendBytes(o, ((*z).ConsensusDataHash)[:])
		}
	}
	return
}

func (_ *LedgerInfo) CanMarshalMsg(z interface{}) bool {
	_, ok := (z).(*LedgerInfo)
	return ok
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by the serialized message
func (z *LedgerInfo) Msgsize() (s int) {
	s = 1 + 3 + (*z).CommitInfo.Msgsize() + 2 + msgp.BytesPrefixSize + len((*z).ConsensusDataHash)
	return
}

// MsgIsZero returns whether this is a zero value
func (z *LedgerInfo) MsgIsZero() bool {
	return ((*z).CommitInfo.MsgIsZero()) && ((*z).ConsensusDataHash.IsZero())
}

// MarshalMsg implements msgp.Marshaler
func (z *timeoutSigningRepr) MarshalMsg(b []byte) (o []byte) {
	o = msgp.Require(b, z.Msgsize())
	// omitempty: check for empty values
	zb0001Len := uint32(3)
	var zb0001Mask uint8 /* 4 bits */
	if (*z).Epoch == 0 {
		zb0001Len--
		zb0001Mask |= 0x2
	}
	if (*z).HQCRound == 0 {
		zb0001Len--
		zb0001Mask |= 0x4
	}
	if (*z).Round == 0 {
		zb0001Len--
		zb0001Mask |= 0x8
	}
	o = msgp.AppendMapHeader(o, zb0001Len)
	if zb0001Len != 0 {
		if (zb0001Mask & 0x2) == 0 { // if not empty
			// string "e"
			o = append(o, 0xa1, 0x65)
			o = msgp.AppendUint64(o, uint64((*z).Epoch))
		}
		if (zb0001Mask & 0x4) == 0 { // if not empty
			// string "hqc"
			o = append(o, 0xa3, 0x68, 0x71, 0x63)
			o = msgp.AppendUint64(o, uint64((*z).HQCRound))
		}
		if (zb0001Mask & 0x8) == 0 { // if not empty
			// string "r"
			o = append(o, 0xa1, 0x72)
			o = msgp.AppendUint64(o, uint64((*z).Round))
		}
	}
	return
}

func (_ *timeoutSigningRepr) CanMarshalMsg(z interface{}) bool {
	_, ok := (z).(*timeoutSigningRepr)
	return ok
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by the serialized message
func (z *timeoutSigningRepr) Msgsize() (s int) {
	s = 1 + 2 + msgp.Uint64Size + 4 + msgp.Uint64Size + 2 + msgp.Uint64Size
	return
}

// MsgIsZero returns whether this is a zero value
func (z *timeoutSigningRepr) MsgIsZero() bool {
	return ((*z).Epoch == 0) && ((*z).HQCRound == 0) && ((*z).Round == 0)
}
