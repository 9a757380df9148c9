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

import (
	"errors"
	"fmt"
	"strings"

	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/protocol"
)

// TwoChainTimeout is a validator's statement that it gave up on a round,
// together with its highest quorum cert.
type TwoChainTimeout struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Epoch      basics.Epoch `codec:"e"`
	Round      basics.Round `codec:"r"`
	QuorumCert QuorumCert   `codec:"qc"`
}

// timeoutSigningRepr binds a timeout signature to the signer's own hqc round,
// so signatures from different hqc rounds aggregate into one certificate.
type timeoutSigningRepr struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Epoch    basics.Epoch `codec:"e"`
	Round    basics.Round `codec:"r"`
	HQCRound basics.Round `codec:"hqc"`
}

// ToBeHashed implements the crypto.Hashable interface
func (t timeoutSigningRepr) ToBeHashed() (protocol.HashID, []byte) {
	return protocol.TwoChainTimeout, protocol.EncodeMsgp(&t)
}

// HQCRound is the round certified by the attached quorum cert.
func (t TwoChainTimeout) HQCRound() basics.Round {
	return t.QuorumCert.CertifiedBlock().Round
}

// SigningFormat is what a validator signs when timing out.
func (t TwoChainTimeout) SigningFormat() crypto.Hashable {
	return timeoutSigningRepr{Epoch: t.Epoch, Round: t.Round, HQCRound: t.HQCRound()}
}

// Verify checks the attached certificate.
func (t TwoChainTimeout) Verify(v *ValidatorVerifier) error {
	if t.HQCRound() >= t.Round {
		return fmt.Errorf("timeout round %d not above hqc round %d", t.Round, t.HQCRound())
	}
	if t.QuorumCert.Epoch() != t.Epoch {
		return fmt.Errorf("timeout epoch %d with quorum cert of epoch %d", t.Epoch, t.QuorumCert.Epoch())
	}
	return t.QuorumCert.Verify(v)
}

// TimeoutSignature is one signer's timeout signature and the hqc round it signed.
type TimeoutSignature struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Signer   basics.Address   `codec:"a"`
	HQCRound basics.Round     `codec:"hqc"`
	Sig      crypto.Signature `codec:"s"`
}

// TwoChainTimeoutCertificate proves a quorum timed out a round. Its timeout
// carries the highest quorum cert among the signers.
type TwoChainTimeoutCertificate struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Timeout    TwoChainTimeout    `codec:"to"`
	Signatures []TimeoutSignature `codec:"sigs"`
}

// MakeTwoChainTimeoutCertificate starts an empty certificate for timeout's round.
func MakeTwoChainTimeoutCertificate(timeout TwoChainTimeout) *TwoChainTimeoutCertificate {
	return &TwoChainTimeoutCertificate{Timeout: timeout}
}

// Round of the certificate.
func (tc *TwoChainTimeoutCertificate) Round() basics.Round {
	return tc.Timeout.Round
}

// Epoch of the certificate.
func (tc *TwoChainTimeoutCertificate) Epoch() basics.Epoch {
	return tc.Timeout.Epoch
}

// HighestHQCRound is the largest hqc round among the signers.
func (tc *TwoChainTimeoutCertificate) HighestHQCRound() basics.Round {
	return tc.Timeout.HQCRound()
}

// Signers lists the signers in order.
func (tc *TwoChainTimeoutCertificate) Signers() []basics.Address {
	out := make([]basics.Address, len(tc.Signatures))
	for i, s := range tc.Signatures {
		out[i] = s.Signer
	}
	return out
}

// Add records author's timeout signature. A timeout with a higher quorum
// cert replaces the certificate's timeout.
func (tc *TwoChainTimeoutCertificate) Add(author basics.Address, timeout TwoChainTimeout, sig crypto.Signature) error {
	if timeout.Epoch != tc.Timeout.Epoch || timeout.Round != tc.Timeout.Round {
		return fmt.Errorf("timeout for epoch %d round %d added to certificate for epoch %d round %d",
			timeout.Epoch, timeout.Round, tc.Timeout.Epoch, tc.Timeout.Round)
	}
	if timeout.HQCRound() > tc.Timeout.HQCRound() {
		tc.Timeout = timeout
	}
	entry := TimeoutSignature{Signer: author, HQCRound: timeout.HQCRound(), Sig: sig}
	for i := range tc.Signatures {
		if tc.Signatures[i].Signer == author {
			tc.Signatures[i] = entry
			return nil
		}
		if author.Less(tc.Signatures[i].Signer) {
			tc.Signatures = append(tc.Signatures, TimeoutSignature{})
			copy(tc.Signatures[i+1:], tc.Signatures[i:])
			tc.Signatures[i] = entry
			return nil
		}
	}
	tc.Signatures = append(tc.Signatures, entry)
	return nil
}

// Clone returns a copy that shares no signature slice with tc.
func (tc *TwoChainTimeoutCertificate) Clone() *TwoChainTimeoutCertificate {
	out := *tc
	out.Signatures = append([]TimeoutSignature(nil), tc.Signatures...)
	return &out
}

// Verify checks voting power, every signature and the highest quorum cert.
func (tc *TwoChainTimeoutCertificate) Verify(v *ValidatorVerifier) error {
	for i := 1; i < len(tc.Signatures); i++ {
		if !tc.Signatures[i-1].Signer.Less(tc.Signatures[i].Signer) {
			return errors.New("timeout certificate signers not sorted")
		}
	}
	if _, err := v.CheckVotingPower(tc.Signers(), true); err != nil {
		return fmt.Errorf("timeout certificate for round %d: %w", tc.Round(), err)
	}
	var maxHQC basics.Round
	bv := crypto.MakeBatchVerifier(len(tc.Signatures))
	for _, s := range tc.Signatures {
		maxHQC = basics.MaxRound(maxHQC, s.HQCRound)
		pk, _ := v.GetPublicKey(s.Signer)
		bv.EnqueueSignature(pk, timeoutSigningRepr{Epoch: tc.Epoch(), Round: tc.Round(), HQCRound: s.HQCRound}, s.Sig)
	}
	if maxHQC != tc.HighestHQCRound() {
		return fmt.Errorf("timeout certificate hqc round %d does not match highest signed hqc round %d", tc.HighestHQCRound(), maxHQC)
	}
	if err := bv.Verify(); err != nil {
		return fmt.Errorf("timeout certificate for round %d: %w: %v", tc.Round(), ErrInvalidSignature, err)
	}
	return tc.Timeout.Verify(v)
}

func (tc *TwoChainTimeoutCertificate) String() string {
	return fmt.Sprintf("TC(epoch %d round %d hqc %d, %d sigs)", tc.Epoch(), tc.Round(), tc.HighestHQCRound(), len(tc.Signatures))
}

// RoundTimeoutReasonKind says why a validator timed out.
type RoundTimeoutReasonKind uint8

const (
	// TimeoutReasonUnknown when nothing more specific applies.
	TimeoutReasonUnknown RoundTimeoutReasonKind = iota
	// TimeoutReasonNoQC when the validator voted but no certificate formed.
	TimeoutReasonNoQC
	// TimeoutReasonProposalNotReceived when no proposal arrived for the round.
	TimeoutReasonProposalNotReceived
	// TimeoutReasonPayloadUnavailable when the proposal's batches were missing.
	TimeoutReasonPayloadUnavailable
)

// RoundTimeoutReason is carried by RoundTimeout messages.
type RoundTimeoutReason struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Kind RoundTimeoutReasonKind `codec:"k"`
	// MissingAuthors are the batch authors whose payload was unavailable.
	MissingAuthors []basics.Address `codec:"ma"`
}

func (r RoundTimeoutReason) String() string {
	switch r.Kind {
	case TimeoutReasonNoQC:
		return "NoQC"
	case TimeoutReasonProposalNotReceived:
		return "ProposalNotReceived"
	case TimeoutReasonPayloadUnavailable:
		authors := make([]string, len(r.MissingAuthors))
		for i, a := range r.MissingAuthors {
			authors[i] = a.ShortString()
		}
		return fmt.Sprintf("PayloadUnavailable(%s)", strings.Join(authors, ","))
	default:
		return "Unknown"
	}
}

// RoundTimeout is a signed timeout sent instead of a timeout-marked vote.
type RoundTimeout struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Timeout   TwoChainTimeout    `codec:"to"`
	Author    basics.Address     `codec:"a"`
	Reason    RoundTimeoutReason `codec:"rsn"`
	Signature crypto.Signature   `codec:"sig"`
}

// Round of the timeout.
func (rt RoundTimeout) Round() basics.Round {
	return rt.Timeout.Round
}

// Epoch of the timeout.
func (rt RoundTimeout) Epoch() basics.Epoch {
	return rt.Timeout.Epoch
}

// Verify checks the signature and the embedded quorum cert.
func (rt RoundTimeout) Verify(v *ValidatorVerifier) error {
	if err := rt.Timeout.Verify(v); err != nil {
		return err
	}
	return v.Verify(rt.Author, rt.Timeout.SigningFormat(), rt.Signature)
}
