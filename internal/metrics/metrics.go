package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector собирает счетчики релея и жизненного цикла тем.
type Collector struct {
	RelayedMessages     *prometheus.CounterVec
	DroppedMessages     *prometheus.CounterVec
	RelayFailures       *prometheus.CounterVec
	PropagatedEdits     prometheus.Counter
	PropagatedReactions prometheus.Counter
	TopicsOpened        prometheus.Counter
	TopicsClosed        prometheus.Counter
	HTTPRequests        prometheus.Counter
	HTTPErrors          prometheus.Counter
}

// NewCollector регистрирует счетчики в указанном реестре.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		RelayedMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_bot_relayed_messages_total",
			Help: "Messages mirrored between applicants and the staff group.",
		}, []string{"direction"}),
		DroppedMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_bot_dropped_messages_total",
			Help: "Messages dropped because no thread mapping existed.",
		}, []string{"direction"}),
		RelayFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_bot_relay_failures_total",
			Help: "Mirror operations rejected by the platform.",
		}, []string{"direction"}),
		PropagatedEdits: factory.NewCounter(prometheus.CounterOpts{
			Name: "intake_bot_propagated_edits_total",
			Help: "Edits applied to counterpart messages.",
		}),
		PropagatedReactions: factory.NewCounter(prometheus.CounterOpts{
			Name: "intake_bot_propagated_reactions_total",
			Help: "Reactions applied to counterpart messages.",
		}),
		TopicsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "intake_bot_topics_opened_total",
			Help: "Forum topics created for applicants.",
		}),
		TopicsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "intake_bot_topics_closed_total",
			Help: "Forum topics torn down for applicants.",
		}),
		HTTPRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "intake_bot_http_requests_total",
			Help: "Total number of HTTP requests.",
		}),
		HTTPErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "intake_bot_http_errors_total",
			Help: "Total number of 5xx HTTP responses.",
		}),
	}
}
