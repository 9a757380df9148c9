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
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-twochain/test/partitiontest"
)

// declaredTags parses tags.go and returns the value of every Tag constant.
func declaredTags(t *testing.T) []Tag {
	f, err := parser.ParseFile(token.NewFileSet(), "tags.go", nil, 0)
	require.NoError(t, err)

	var out []Tag
	ast.Inspect(f, func(n ast.Node) bool {
		v, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		if id, ok := v.Type.(*ast.Ident); !ok || id.Name != "Tag" {
			return false
		}
		for _, expr := range v.Values {
			if lit, ok := expr.(*ast.BasicLit); ok && lit.Kind == token.STRING {
				s, err := strconv.Unquote(lit.Value)
				require.NoError(t, err)
				out = append(out, Tag(s))
			}
		}
		return false
	})
	return out
}

func TestTagListMatchesDeclarations(t *testing.T) {
	partitiontest.PartitionTest(t)
	t.Parallel()

	declared := declaredTags(t)
	require.NotEmpty(t, declared)
	require.ElementsMatch(t, declared, TagList)

	// sorted and two bytes each, so a duplicate shows up as a neighbour
	require.True(t, sort.SliceIsSorted(TagList, func(i, j int) bool { return TagList[i] < TagList[j] }))
	for i, tag := range TagList {
		require.Len(t, string(tag), 2, tag)
		if i > 0 {
			require.NotEqual(t, TagList[i-1], tag)
		}
	}
}

func TestMaxMessageSize(t *testing.T) {
	partitiontest.PartitionTest(t)
	t.Parallel()

	for _, tag := range TagList {
		require.Positive(t, tag.MaxMessageSize(), tag)
	}
	// a proposal carries a payload, a vote never does
	require.Greater(t, ProposalTag.MaxMessageSize(), VoteTag.MaxMessageSize())
	require.Equal(t, ProposalTag.MaxMessageSize(), BlockRetrievalResTag.MaxMessageSize())
}

func TestTagComplement(t *testing.T) {
	partitiontest.PartitionTest(t)
	t.Parallel()

	for _, tag := range TagList {
		c := tag.Complement()
		if c == UnknownMsgTag {
			continue
		}
		require.Equal(t, tag, c.Complement())
	}
	require.Equal(t, BlockRetrievalResTag, BlockRetrievalReqTag.Complement())
	require.Equal(t, UnknownMsgTag, VoteTag.Complement())
}
