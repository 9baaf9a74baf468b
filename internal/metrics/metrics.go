// Package metrics holds the Prometheus instrumentation of the reconciler and
// the retrying mutator.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"docprov/internal/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namePrefix = "docprov_"

type metricsProvision struct {
	once sync.Once

	ensured          *prometheus.CounterVec
	mutationAttempts prometheus.Counter
	mutationOutcomes *prometheus.CounterVec
	conflictWaits    prometheus.Counter
	waitDuration     prometheus.Histogram
}

var provMetrics metricsProvision

func (m *metricsProvision) init() {
	m.once.Do(func() {
		m.ensured = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docprov_ensure_total",
			Help: "Ensure-exists calls by resource type and resulting action",
		}, []string{"type", "action"})
		m.mutationAttempts = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docprov_mutation_attempts_total",
			Help: "Mutation attempts made by the retrying mutator",
		})
		m.mutationOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docprov_mutation_outcomes_total",
			Help: "Finished mutations by final state",
		}, []string{"state"})
		m.conflictWaits = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docprov_mutation_conflict_waits_total",
			Help: "Waits entered after a conflict response",
		})
		m.waitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docprov_mutation_wait_seconds",
			Help:    "Backoff waits between mutation attempts",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 15, 30, 60},
		})

		prometheus.MustRegister(
			m.ensured,
			m.mutationAttempts, m.mutationOutcomes,
			m.conflictWaits, m.waitDuration,
		)
	})
}

// RecordEnsure counts one ensure-exists outcome
func RecordEnsure(resourceType, action string) {
	provMetrics.init()
	provMetrics.ensured.WithLabelValues(resourceType, action).Inc()
}

// RecordMutationAttempt counts one attempt of a retried mutation
func RecordMutationAttempt() { provMetrics.init(); provMetrics.mutationAttempts.Inc() }

// RecordConflictWait counts a conflict wait and observes its duration
func RecordConflictWait(d time.Duration) {
	provMetrics.init()
	provMetrics.conflictWaits.Inc()
	provMetrics.waitDuration.Observe(d.Seconds())
}

// RecordMutationOutcome counts a finished mutation by its final state
func RecordMutationOutcome(state string) {
	provMetrics.init()
	provMetrics.mutationOutcomes.WithLabelValues(state).Inc()
}

// Handler returns the HTTP handler exposing the default registry
func Handler() http.Handler {
	provMetrics.init()
	return promhttp.Handler()
}

// Sample is the current value of one docprov series
type Sample struct {
	Name   string
	Labels string
	Value  float64
}

// Snapshot gathers the docprov series of the default registry. Histograms
// are reported by their observation count.
func Snapshot() ([]Sample, error) {
	provMetrics.init()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	var samples []Sample
	for _, family := range families {
		if !strings.HasPrefix(family.GetName(), namePrefix) {
			continue
		}
		for _, metric := range family.GetMetric() {
			pairs := make([]string, 0, len(metric.GetLabel()))
			for _, label := range metric.GetLabel() {
				pairs = append(pairs, fmt.Sprintf("%s=%q", label.GetName(), label.GetValue()))
			}

			sample := Sample{Name: family.GetName(), Labels: strings.Join(pairs, ",")}
			switch {
			case metric.GetCounter() != nil:
				sample.Value = metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				sample.Name += "_count"
				sample.Value = float64(metric.GetHistogram().GetSampleCount())
			default:
				continue
			}
			samples = append(samples, sample)
		}
	}
	return samples, nil
}

// String renders the sample in exposition style
func (s Sample) String() string {
	if s.Labels == "" {
		return fmt.Sprintf("%s %g", s.Name, s.Value)
	}
	return fmt.Sprintf("%s{%s} %g", s.Name, s.Labels, s.Value)
}

// Server exposes the default registry under /metrics on its own listener
type Server struct {
	server   *http.Server
	listener net.Listener
}

// Start listens on addr and serves /metrics until Shutdown
func Start(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	s := &Server{server: &http.Server{Handler: mux}, listener: listener}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics", err, "Metrics server failed")
		}
	}()
	return s, nil
}

// Addr returns the address the server listens on
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Shutdown stops the server, waiting for in-flight scrapes until ctx is done
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
