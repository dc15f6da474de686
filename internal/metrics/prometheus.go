package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helpdesk_message_duration_seconds",
			Help:    "Visitor message processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"outcome"},
	)

	ResponseOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_response_outcomes_total",
			Help: "Total AI responses by outcome",
		},
		[]string{"outcome"},
	)

	TopSimilarity = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "helpdesk_retrieval_top_similarity",
			Help:    "Top similarity score per retrieval",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	RetrievalMatches = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "helpdesk_retrieval_matches_count",
			Help:    "Number of knowledge matches per retrieval",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	ChunksIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "helpdesk_chunks_ingested_total",
			Help: "Total knowledge chunks successfully embedded",
		},
	)

	EmbeddingsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "helpdesk_embeddings_generated_total",
			Help: "Total embeddings generated",
		},
	)

	EmbeddingCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_embedding_cache_hits_total",
			Help: "Embedding cache hits and misses",
		},
		[]string{"result"},
	)

	Escalations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "helpdesk_escalations_total",
			Help: "Total conversations escalated to a human",
		},
	)

	EscalationEmails = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_escalation_emails_total",
			Help: "Escalation email attempts by result",
		},
		[]string{"result"},
	)

	SourcesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_sources_processed_total",
			Help: "Knowledge sources processed by final status",
		},
		[]string{"status"},
	)
)

func Init() {
	prometheus.MustRegister(MessageDuration)
	prometheus.MustRegister(ResponseOutcomes)
	prometheus.MustRegister(TopSimilarity)
	prometheus.MustRegister(RetrievalMatches)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(ChunksIngested)
	prometheus.MustRegister(EmbeddingsGenerated)
	prometheus.MustRegister(EmbeddingCacheHits)
	prometheus.MustRegister(Escalations)
	prometheus.MustRegister(EscalationEmails)
	prometheus.MustRegister(SourcesProcessed)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
