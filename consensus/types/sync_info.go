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
	"fmt"

	"github.com/algorand/go-twochain/data/basics"
)

// SyncInfo carries a node's highest certificates so a peer can catch up.
type SyncInfo struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	HighestQuorumCert  QuorumCert                  `codec:"qc"`
	HighestOrderedCert *WrappedLedgerInfo          `codec:"oc"`
	HighestTimeoutCert *TwoChainTimeoutCertificate `codec:"tc"`
}

// MakeSyncInfo bundles the certificates. A timeout certificate that is not
// above the quorum cert adds nothing and is dropped.
func MakeSyncInfo(hqc QuorumCert, ordered *WrappedLedgerInfo, htc *TwoChainTimeoutCertificate) SyncInfo {
	if htc != nil && htc.Round() <= hqc.Round() {
		htc = nil
	}
	return SyncInfo{HighestQuorumCert: hqc, HighestOrderedCert: ordered, HighestTimeoutCert: htc}
}

// Epoch of the certificates.
func (s SyncInfo) Epoch() basics.Epoch {
	return s.HighestQuorumCert.Epoch()
}

// HighestCertifiedRound is the round of the highest quorum cert.
func (s SyncInfo) HighestCertifiedRound() basics.Round {
	return s.HighestQuorumCert.Round()
}

// HighestTimeoutRound is the round of the highest timeout cert, or zero.
func (s SyncInfo) HighestTimeoutRound() basics.Round {
	if s.HighestTimeoutCert == nil {
		return 0
	}
	return s.HighestTimeoutCert.Round()
}

// HighestOrderedRound is the round of the highest ordered cert, or zero.
func (s SyncInfo) HighestOrderedRound() basics.Round {
	if s.HighestOrderedCert == nil {
		return 0
	}
	return s.HighestOrderedCert.Round()
}

// HighestRound is the highest round any certificate concludes.
func (s SyncInfo) HighestRound() basics.Round {
	return basics.MaxRound(s.HighestCertifiedRound(), s.HighestTimeoutRound())
}

// HasNewerCertificates reports whether s carries any certificate above other's.
func (s SyncInfo) HasNewerCertificates(other SyncInfo) bool {
	return s.HighestCertifiedRound() > other.HighestCertifiedRound() ||
		s.HighestTimeoutRound() > other.HighestTimeoutRound() ||
		s.HighestOrderedRound() > other.HighestOrderedRound()
}

// Verify checks every certificate against v.
func (s SyncInfo) Verify(v *ValidatorVerifier) error {
	epoch := s.Epoch()
	if s.HighestOrderedCert != nil {
		if s.HighestOrderedCert.Epoch() != epoch {
			return fmt.Errorf("sync info: ordered cert epoch %d != %d", s.HighestOrderedCert.Epoch(), epoch)
		}
		if s.HighestOrderedRound() > s.HighestCertifiedRound() {
			return fmt.Errorf("sync info: ordered round %d above certified round %d", s.HighestOrderedRound(), s.HighestCertifiedRound())
		}
	}
	if s.HighestTimeoutCert != nil && s.HighestTimeoutCert.Epoch() != epoch {
		return fmt.Errorf("sync info: timeout cert epoch %d != %d", s.HighestTimeoutCert.Epoch(), epoch)
	}
	if err := s.HighestQuorumCert.Verify(v); err != nil {
		return err
	}
	if s.HighestOrderedCert != nil {
		if err := s.HighestOrderedCert.Verify(v); err != nil {
			return err
		}
	}
	if s.HighestTimeoutCert != nil {
		if err := s.HighestTimeoutCert.Verify(v); err != nil {
			return err
		}
	}
	return nil
}

func (s SyncInfo) String() string {
	return fmt.Sprintf("SyncInfo[certified %d, ordered %d, timeout %d]", s.HighestCertifiedRound(), s.HighestOrderedRound(), s.HighestTimeoutRound())
}
