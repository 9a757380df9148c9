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

package basics

import (
	"bytes"
	"encoding/base32"
	"errors"
	"fmt"

	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/protocol"
)

// Address identifies a validator. It is the hash of the validator's
// consensus public key.
type Address crypto.Digest

// checksumLength bytes of H(address) follow the address in its text form.
const checksumLength = 4

var addressEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

var errBadAddress = errors.New("malformed address")

type publicKeyRep crypto.PublicKey

func (pk publicKeyRep) ToBeHashed() (protocol.HashID, []byte) {
	return protocol.PublicKeyAddr, pk[:]
}

// AddressFromPublicKey derives the validator address of a consensus key.
func AddressFromPublicKey(pk crypto.PublicKey) Address {
	return Address(crypto.HashObj(publicKeyRep(pk)))
}

func (addr Address) checksum() []byte {
	h := crypto.Hash(addr[:])
	return h[len(h)-checksumLength:]
}

// IsZero is true for the zero Address, which no validator has.
func (addr Address) IsZero() bool {
	return addr == Address{}
}

// Less orders addresses bytewise. Signature lists are sorted by it.
func (addr Address) Less(other Address) bool {
	return bytes.Compare(addr[:], other[:]) < 0
}

// String is the base32 text form: the address followed by its checksum.
func (addr Address) String() string {
	buf := make([]byte, 0, len(addr)+checksumLength)
	buf = append(append(buf, addr[:]...), addr.checksum()...)
	return addressEncoding.EncodeToString(buf)
}

// ShortString is a prefix of String for log lines.
func (addr Address) ShortString() string {
	return addr.String()[:8]
}

// ParseAddress reads the text form produced by String. Anything but the
// canonical form, including a bad checksum, is rejected.
func ParseAddress(s string) (Address, error) {
	var addr Address
	raw, err := addressEncoding.DecodeString(s)
	if err != nil {
		return addr, fmt.Errorf("%w %q: %v", errBadAddress, s, err)
	}
	if len(raw) != len(addr)+checksumLength {
		return addr, fmt.Errorf("%w %q: %d bytes", errBadAddress, s, len(raw))
	}
	copy(addr[:], raw)
	if !bytes.Equal(raw[len(addr):], addr.checksum()) {
		return Address{}, fmt.Errorf("%w %q: checksum mismatch", errBadAddress, s)
	}
	if addr.String() != s {
		return Address{}, fmt.Errorf("%w %q: not canonical", errBadAddress, s)
	}
	return addr, nil
}

// MarshalText implements encoding.TextMarshaler.
func (addr Address) MarshalText() ([]byte, error) {
	return []byte(addr.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (addr *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*addr = parsed
	return nil
}
