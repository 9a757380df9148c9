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

package network

import (
	"github.com/algorand/go-twochain/util/metrics"
)

var (
	networkSentBytes         = metrics.MetricName{Name: "network_sent_bytes", Description: "Number of bytes sent, by tag"}
	networkMessagesSent      = metrics.MetricName{Name: "network_message_sent", Description: "Number of messages sent, by tag"}
	networkReceivedBytes     = metrics.MetricName{Name: "network_received_bytes", Description: "Number of bytes received, by tag"}
	networkMessagesDropped   = metrics.MetricName{Name: "network_message_dropped", Description: "Number of messages dropped on a full inbound queue, by tag"}
	networkMessagesUnhandled = metrics.MetricName{Name: "network_message_unhandled", Description: "Number of messages received with no handler registered, by tag"}

	inboundRejected = metrics.MetricName{Name: "network_inbound_rejected", Description: "Inbound messages rejected before reaching consensus, by reason"}
	inboundVerified = metrics.MetricName{Name: "network_inbound_verified", Description: "Inbound messages verified and delivered, by tag"}
)

func tagLabels(tag Tag) map[string]string {
	return map[string]string{"tag": string(tag)}
}

func reasonLabels(reason string) map[string]string {
	return map[string]string{"reason": reason}
}
