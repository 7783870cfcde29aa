// Package metrics exposes segmentation counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/dgallion1/talkturns/internal/segment"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Page outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeEmpty  = "empty"
	OutcomeFailed = "failed"
)

// Metrics owns a private registry so tests and multiple servers never clash
// on the global one.
type Metrics struct {
	registry    *prometheus.Registry
	pages       *prometheus.CounterVec
	turns       *prometheus.CounterVec
	matches     *prometheus.CounterVec
	ambiguities *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	jobs        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talkturns",
			Name:      "pages_total",
			Help:      "Pages segmented, by language and outcome.",
		}, []string{"lang", "outcome"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talkturns",
			Name:      "turns_total",
			Help:      "Turns emitted.",
		}, []string{"lang"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talkturns",
			Name:      "speaker_markers_total",
			Help:      "Speaker markers found, by kind.",
		}, []string{"lang", "kind"}),
		ambiguities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talkturns",
			Name:      "ambiguities_total",
			Help:      "Recovered segmentation ambiguities, by kind.",
		}, []string{"lang", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "talkturns",
			Name:      "page_duration_seconds",
			Help:      "Time to segment one page.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"lang"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talkturns",
			Name:      "jobs_total",
			Help:      "Finished jobs, by final status.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		m.pages, m.turns, m.matches, m.ambiguities, m.duration, m.jobs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObservePage records one segmented page.
func (m *Metrics) ObservePage(lang, outcome string, turns int, st segment.Stats, elapsed time.Duration) {
	m.pages.WithLabelValues(lang, outcome).Inc()
	m.turns.WithLabelValues(lang).Add(float64(turns))
	m.duration.WithLabelValues(lang).Observe(elapsed.Seconds())

	m.matches.WithLabelValues(lang, "signature").Add(float64(st.Signatures))
	m.matches.WithLabelValues(lang, "dated_signoff").Add(float64(st.DatedSignoffs))
	m.matches.WithLabelValues(lang, "last_paragraph").Add(float64(st.LastParagraphs))

	m.ambiguities.WithLabelValues(lang, "overlap").Add(float64(st.Overlaps))
	m.ambiguities.WithLabelValues(lang, "empty_subsection").Add(float64(st.EmptySubsections))
	m.ambiguities.WithLabelValues(lang, "zero_match_subsection").Add(float64(st.ZeroMatchSubsections))
	m.ambiguities.WithLabelValues(lang, "empty_speaker").Add(float64(st.EmptySpeakers))
}

// ObserveJob records a finished job.
func (m *Metrics) ObserveJob(status string) {
	m.jobs.WithLabelValues(status).Inc()
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
