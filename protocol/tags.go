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

// Tag represents a message type identifier. Messages have a Tag field. Handlers can register to a given Tag.
type Tag string

// Tags, in lexicographic sort order of tag values to avoid duplicates.
const (
	UnknownMsgTag        Tag = "??"
	BatchTag             Tag = "BA"
	BlockRetrievalReqTag Tag = "BQ"
	BlockRetrievalResTag Tag = "BR"
	FastShareTag         Tag = "FS"
	OptProposalTag       Tag = "OP"
	OrderVoteTag         Tag = "OV"
	ProposalTag          Tag = "PR"
	ProofOfStoreTag      Tag = "PS"
	RoundTimeoutTag      Tag = "RT"
	SignedBatchInfoTag   Tag = "SB"
	SyncInfoTag          Tag = "SI"
	VoteTag              Tag = "VO"
)

// Complement is a convenience function for returning a corresponding response/request tag
func (t Tag) Complement() Tag {
	switch t {
	case BlockRetrievalReqTag:
		return BlockRetrievalResTag
	case BlockRetrievalResTag:
		return BlockRetrievalReqTag
	default:
		return UnknownMsgTag
	}
}

// TagList is a list of all currently used protocol tags.
var TagList = []Tag{
	UnknownMsgTag,
	BatchTag,
	BlockRetrievalReqTag,
	BlockRetrievalResTag,
	FastShareTag,
	OptProposalTag,
	OrderVoteTag,
	ProposalTag,
	ProofOfStoreTag,
	RoundTimeoutTag,
	SignedBatchInfoTag,
	SyncInfoTag,
	VoteTag,
}

// MaxMessageSize returns the maximum size of a message for a given tag.
// Receivers drop larger messages before decoding them.
func (t Tag) MaxMessageSize() uint64 {
	switch t {
	case ProposalTag, OptProposalTag, BatchTag, BlockRetrievalResTag:
		return 8 << 20
	case SyncInfoTag, RoundTimeoutTag, VoteTag, OrderVoteTag, ProofOfStoreTag, SignedBatchInfoTag:
		return 256 << 10
	case BlockRetrievalReqTag, FastShareTag:
		return 4 << 10
	default:
		return 1 << 10
	}
}
