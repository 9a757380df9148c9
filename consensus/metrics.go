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

package consensus

import (
	"github.com/algorand/go-twochain/util/metrics"
)

var (
	currentRoundGauge = metrics.MetricName{Name: "consensus_current_round", Description: "Round the node is working on"}
	orderedRoundGauge = metrics.MetricName{Name: "consensus_ordered_round", Description: "Highest round known to be ordered"}
	newRounds         = metrics.MetricName{Name: "consensus_new_rounds", Description: "Rounds entered, by reason"}

	staleMessages    = metrics.MetricName{Name: "consensus_stale_messages", Description: "Messages dropped for an old round, by kind"}
	eventErrors      = metrics.MetricName{Name: "consensus_event_errors", Description: "Event handlers that returned an error, by event"}
	proposalsRejects = metrics.MetricName{Name: "consensus_proposals_rejected", Description: "Proposals rejected before voting, by reason"}

	votesSent         = metrics.MetricName{Name: "consensus_votes_sent", Description: "Votes signed and sent"}
	timeoutsSent      = metrics.MetricName{Name: "consensus_timeouts_sent", Description: "Local round timeouts broadcast, by kind"}
	orderVotesSent    = metrics.MetricName{Name: "consensus_order_votes_sent", Description: "Order votes signed and broadcast"}
	proposalsSent     = metrics.MetricName{Name: "consensus_proposals_sent", Description: "Proposals built by this leader, by kind"}
	fastSharesSent    = metrics.MetricName{Name: "consensus_fast_shares_sent", Description: "Randomness shares broadcast"}
	fastSharesRecv    = metrics.MetricName{Name: "consensus_fast_shares_received", Description: "Randomness shares received"}
	backPressureDelay = metrics.MetricName{Name: "consensus_backpressure_delayed", Description: "Proposals delayed by vote back pressure, by outcome"}
	payloadWaits      = metrics.MetricName{Name: "consensus_payload_waits", Description: "Proposals that waited for their payload, by outcome"}
	optSkipped        = metrics.MetricName{Name: "consensus_opt_rounds_skipped", Description: "Optimistic rounds not started, by reason"}
	certsFormed       = metrics.MetricName{Name: "consensus_certificates_formed", Description: "Certificates aggregated locally, by kind"}
	blocksServed      = metrics.MetricName{Name: "consensus_blocks_served", Description: "Blocks returned to retrieval requests"}
)

func kindLabels(kind string) map[string]string {
	return map[string]string{"kind": kind}
}
