package metrics

import "github.com/prometheus/client_golang/prometheus"

var HttpRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests received",
	},
	[]string{"endpoint", "status", "method"},
)

var HttpRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"endpoint", "method"},
)

var HttpErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_errors_total",
		Help: "Total number of failed HTTP requests (4xx/5xx)",
	},
	[]string{"endpoint", "status", "method"},
)

var HttpRateLimitRejectionsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "http_rate_limit_rejections_total",
		Help: "Total number of HTTP requests rejected due to rate limiting",
	},
)

var EventsConsumedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "engine_events_consumed_total",
		Help: "Total number of events read from the intake stream",
	},
	[]string{"bundle", "application"},
)

var EventsRejectedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "engine_events_rejected_total",
		Help: "Total number of intake messages that could not be parsed",
	},
)

var DuplicateEventsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "engine_events_duplicate_total",
		Help: "Total number of events dropped by the deduplication gate",
	},
)

var ProcessingErrorsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "engine_events_processing_errors_total",
		Help: "Total number of events whose processing ended in an error",
	},
)

var MessagesProcessedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "engine_router_messages_processed_total",
		Help: "Total number of events handed to the endpoint router",
	},
)

var EndpointsTargetedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "engine_router_endpoints_targeted_total",
		Help: "Total number of endpoints targeted across all events",
	},
)

var DeliveriesAttemptedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "engine_deliveries_attempted_total",
		Help: "Total number of delivery attempts per endpoint type and status",
	},
	[]string{"endpoint_type", "status"},
)

var DeliveryDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "engine_delivery_duration_seconds",
		Help:    "Duration of outbound connector calls in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"endpoint_type"},
)

var ReinjectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "engine_reinjections_total",
		Help: "Total number of failed deliveries requeued for retry",
	},
	[]string{"endpoint_type"},
)

var MessageIDTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "engine_message_id_total",
		Help: "Intake message id header occurrences by validity",
	},
	[]string{"validity"},
)

var RecipientsFetchFailuresTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "recipients_directory_failures_total",
		Help: "Total number of failed calls to the user directory",
	},
)

var RecipientsFetchDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "recipients_directory_fetch_duration_seconds",
		Help:    "Duration of user directory fetches in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"kind"},
)

var AggregatorJobDuration = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "aggregator_job_duration_seconds",
		Help: "Duration of the last aggregator run in seconds",
	},
)

var AggregatorLastSuccess = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "aggregator_job_last_success",
		Help: "Unix time of the last successful aggregator run",
	},
)

var AggregatorPairsProcessed = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "aggregator_job_org_application_pairs_processed",
		Help: "Number of org and application pairs processed in the last run",
	},
)

var KafkaPublisherFailure = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kafka_publish_failure_total",
		Help: "Total number of failed Kafka publishes",
	},
	[]string{"topic"},
)

var KafkaPublisherSuccess = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kafka_publish_success_total",
		Help: "Total number of successful Kafka publishes",
	},
	[]string{"topic"},
)

var KafkaSubscriberFailureTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kafka_subscriber_failure_total",
		Help: "Total number of failed Kafka reads",
	},
	[]string{"topic"},
)

func InitAPIMetrics() {
	prometheus.MustRegister(HttpRequestsTotal)
	prometheus.MustRegister(HttpRequestDuration)
	prometheus.MustRegister(HttpErrorsTotal)
	prometheus.MustRegister(HttpRateLimitRejectionsTotal)
}

func InitEngineMetrics() {
	prometheus.MustRegister(EventsConsumedTotal)
	prometheus.MustRegister(EventsRejectedTotal)
	prometheus.MustRegister(DuplicateEventsTotal)
	prometheus.MustRegister(ProcessingErrorsTotal)
	prometheus.MustRegister(MessagesProcessedTotal)
	prometheus.MustRegister(EndpointsTargetedTotal)
	prometheus.MustRegister(DeliveriesAttemptedTotal)
	prometheus.MustRegister(DeliveryDuration)
	prometheus.MustRegister(ReinjectionsTotal)
	prometheus.MustRegister(MessageIDTotal)
	prometheus.MustRegister(RecipientsFetchFailuresTotal)
	prometheus.MustRegister(RecipientsFetchDuration)
}

func InitAggregatorMetrics() {
	prometheus.MustRegister(AggregatorJobDuration)
	prometheus.MustRegister(AggregatorLastSuccess)
	prometheus.MustRegister(AggregatorPairsProcessed)
}

func InitKafkaMetrics() {
	prometheus.MustRegister(KafkaPublisherFailure)
	prometheus.MustRegister(KafkaPublisherSuccess)
	prometheus.MustRegister(KafkaSubscriberFailureTotal)
}
