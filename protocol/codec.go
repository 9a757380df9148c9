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
	"fmt"
	"sync"

	"github.com/algorand/go-codec/codec"
	"github.com/algorand/msgp/msgp"
)

// CodecHandle encodes every message, block and record canonically and
// rejects fields the decoding type does not know.
var CodecHandle = &codec.MsgpackHandle{}

func init() {
	CodecHandle.ErrorIfNoField = true
	CodecHandle.ErrorIfNoArrayExpand = true
	CodecHandle.Canonical = true
	CodecHandle.RecursiveEmptyCheck = true
	CodecHandle.WriteExt = true
	CodecHandle.PositiveIntUnsigned = true
	CodecHandle.Raw = true
}

const initEncodeBufSize = 256

var encoderPool = sync.Pool{
	New: func() interface{} {
		return codec.NewEncoderBytes(nil, CodecHandle)
	},
}

// EncodeReflect msgpack-encodes obj by reflection. Encoding a type the
// codec cannot handle panics.
func EncodeReflect(obj interface{}) []byte {
	enc := encoderPool.Get().(*codec.Encoder)
	buf := make([]byte, 0, initEncodeBufSize)
	enc.ResetBytes(&buf)
	enc.MustEncode(obj)
	encoderPool.Put(enc)
	return buf
}

// DecodeReflect decodes b into objptr by reflection. Malformed input is an
// error, never a panic.
func DecodeReflect(b []byte, objptr interface{}) (err error) {
	defer func() {
		if x := recover(); x != nil {
			err = fmt.Errorf("decoding %T: %v", objptr, x)
		}
	}()
	return codec.NewDecoderBytes(b, CodecHandle).Decode(objptr)
}

// EncodeMsgp encodes obj with its generated msgp methods. The output is
// byte-identical to EncodeReflect for the same value.
func EncodeMsgp(obj msgp.Marshaler) []byte {
	return obj.MarshalMsg(nil)
}
