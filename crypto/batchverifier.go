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

package crypto

import (
	"errors"

	"github.com/hdevalence/ed25519consensus"
)

const minBatchVerifierAlloc = 16

// ErrBatchHasFailedSigs is returned when at least one enqueued signature is invalid.
var ErrBatchHasFailedSigs = errors.New("at least one signature didn't pass verification")

type batchEntry struct {
	msgHashRep   []byte
	publicKey    PublicKey
	signature    Signature
	failedChecks bool
}

// BatchVerifier enqueues signatures to be validated in batch.
type BatchVerifier struct {
	entries      []batchEntry
	failedChecks bool
	bv           ed25519consensus.BatchVerifier
}

// MakeBatchVerifier creates a BatchVerifier instance with room for hint signatures.
func MakeBatchVerifier(hint int) *BatchVerifier {
	if hint < minBatchVerifierAlloc {
		hint = minBatchVerifierAlloc
	}
	return &BatchVerifier{
		entries: make([]batchEntry, 0, hint),
		bv:      ed25519consensus.NewPreallocatedBatchVerifier(hint),
	}
}

// EnqueueSignature enqueues a signature to be verified
func (b *BatchVerifier) EnqueueSignature(pk PublicKey, message Hashable, sig Signature) {
	msgHashRep := HashRep(message)
	failedChecks := !isCanonicalPoint(pk) || !isCanonicalPoint([32]byte(sig[:32])) || hasSmallOrder(pk)

	b.entries = append(b.entries, batchEntry{
		msgHashRep:   msgHashRep,
		publicKey:    pk,
		signature:    sig,
		failedChecks: failedChecks,
	})
	if failedChecks {
		b.failedChecks = true
	} else {
		b.bv.Add(pk[:], msgHashRep, sig[:])
	}
}

// GetNumberOfEnqueuedSignatures returns the number of signatures currently enqueued into the BatchVerifier
func (b *BatchVerifier) GetNumberOfEnqueuedSignatures() int {
	return len(b.entries)
}

// Verify verifies that all the signatures are valid. in that case nil is returned
func (b *BatchVerifier) Verify() error {
	if len(b.entries) == 0 {
		return nil
	}
	if b.failedChecks || !b.bv.Verify() {
		return ErrBatchHasFailedSigs
	}
	return nil
}

// VerifyWithFeedback verifies that all the signatures are valid.
// If some signatures are invalid, true is set in failed at the corresponding
// indexes and ErrBatchHasFailedSigs is returned.
func (b *BatchVerifier) VerifyWithFeedback() (failed []bool, err error) {
	if len(b.entries) == 0 {
		return nil, nil
	}
	if !b.failedChecks && b.bv.Verify() {
		return nil, nil
	}

	failed = make([]bool, len(b.entries))
	for i := range b.entries {
		if b.entries[i].failedChecks {
			failed[i] = true
		} else {
			failed[i] = !b.entries[i].publicKey.VerifyBytes(b.entries[i].msgHashRep, b.entries[i].signature)
		}
	}
	return failed, ErrBatchHasFailedSigs
}
