package meter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reactionsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "autoreact_reactions_sent_total",
	Help: "Number of reactions successfully sent, by source",
}, []string{"source"})

var reactionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "autoreact_reaction_failures_total",
	Help: "Number of react calls that failed, by source",
}, []string{"source"})

var messagesReceived = promauto.NewCounter(prometheus.CounterOpts{
	Name: "autoreact_messages_received_total",
	Help: "Number of inbound messages delivered by the platform client",
})

var sessionReconnects = promauto.NewCounter(prometheus.CounterOpts{
	Name: "autoreact_session_reconnects_total",
	Help: "Number of platform client re-initializations after a disconnect",
})
